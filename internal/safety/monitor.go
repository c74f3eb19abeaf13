// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package safety handles the external stop input. A rising edge forces the
// actuator port inactive and holds it there, independent of the I2C loop.
package safety

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/logger"
	"github.com/relabs-tech/leveler/internal/metrics"
)

// DefaultHold is how long a stop keeps the outputs inactive.
const DefaultHold = 1000 * time.Millisecond

// pollTimeout bounds each WaitForEdge so Run notices cancellation.
const pollTimeout = 100 * time.Millisecond

// EdgeSource reports configured edges on an input pin. periph's gpio.PinIn
// satisfies it directly.
type EdgeSource interface {
	WaitForEdge(timeout time.Duration) bool
}

// Stopper forces the outputs inactive for a hold.
type Stopper interface {
	ForceStop(hold time.Duration) error
}

type Monitor struct {
	out     Stopper
	hold    time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger

	mu      sync.Mutex
	armed   bool
	pending bool

	sleep func(time.Duration)
}

// New returns a masked monitor. Edges are latched until Arm.
func New(out Stopper, hold time.Duration, m *metrics.Metrics, log *zap.Logger) *Monitor {
	if hold <= 0 {
		hold = DefaultHold
	}
	return &Monitor{
		out:     out,
		hold:    hold,
		metrics: m,
		log:     logger.OrNop(log),
		sleep:   time.Sleep,
	}
}

// Stop is the stop-edge handler: force the port inactive, then block for
// the hold. The force happens even if the loop is mid-fault.
func (m *Monitor) Stop() {
	m.metrics.SafetyTrip()
	if err := m.out.ForceStop(m.hold); err != nil {
		m.log.Error("safety: force stop failed", zap.Error(err))
	} else {
		m.log.Warn("safety: outputs forced inactive", zap.Duration("hold", m.hold))
	}
	m.sleep(m.hold)
}

// Reserved is the handler of the second edge input. It does nothing.
func (m *Monitor) Reserved() {}

// Trigger delivers a stop edge, or latches it while masked.
func (m *Monitor) Trigger() {
	m.mu.Lock()
	if !m.armed {
		m.pending = true
		m.mu.Unlock()
		m.log.Debug("safety: edge latched while masked")
		return
	}
	m.mu.Unlock()
	m.Stop()
}

// Arm unmasks the monitor. A latched edge is handled before Arm returns.
func (m *Monitor) Arm() {
	m.mu.Lock()
	m.armed = true
	pending := m.pending
	m.pending = false
	m.mu.Unlock()

	if pending {
		m.Stop()
	}
}

// Armed reports whether Arm has been called.
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Run watches both inputs until ctx is done. reserved may be nil.
func (m *Monitor) Run(ctx context.Context, stop, reserved EdgeSource) {
	var wg sync.WaitGroup
	watch := func(src EdgeSource, handler func()) {
		defer wg.Done()
		for ctx.Err() == nil {
			if src.WaitForEdge(pollTimeout) && ctx.Err() == nil {
				handler()
			}
		}
	}

	wg.Add(1)
	go watch(stop, m.Trigger)
	if reserved != nil {
		wg.Add(1)
		go watch(reserved, m.Reserved)
	}
	wg.Wait()
}
