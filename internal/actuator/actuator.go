// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package actuator owns the digital output port and the servo PWM compare
// value, shared between the control loop and the safety monitor.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/logger"
)

// Digital port patterns.
const (
	PatternInactive uint8 = 0x00
	PatternBelow    uint8 = 0x01
	PatternAbove    uint8 = 0x40
	PatternIdle     uint8 = 0xFF
)

// PWM compare values against a 19999 top at 50 Hz.
const (
	DutyBelow  uint16 = 10
	DutyAbove  uint16 = 1340
	DutySettle uint16 = 1320
	DutyLevel  uint16 = 1050

	DefaultTop       uint16 = 19999
	DefaultFrequency        = 50
)

// ErrStopped is returned for writes refused during a safety hold.
var ErrStopped = errors.New("actuator: outputs held by safety stop")

// State is the actuator output.
type State struct {
	Pattern uint8  `json:"pattern"`
	Duty    uint16 `json:"duty"`
}

// PowerOn is the output right after boot: port high, no pulses.
var PowerOn = State{Pattern: PatternIdle, Duty: 0}

// Hardware drives the physical outputs.
type Hardware interface {
	WritePattern(p uint8) error
	WriteDuty(d uint16) error
}

// Output serializes every access to the actuator state.
type Output struct {
	mu        sync.Mutex
	hw        Hardware
	state     State
	holdUntil time.Time
	log       *zap.Logger

	now func() time.Time

	onChange func(State, bool)
}

// NewOutput returns an Output for hw. Call Init before use.
func NewOutput(hw Hardware, log *zap.Logger) *Output {
	return &Output{
		hw:  hw,
		log: logger.OrNop(log),
		now: time.Now,
	}
}

// OnChange registers a callback run after every applied change, with the
// new state and whether a hold is active. It runs inside the critical
// section and must not call back into the Output.
func (o *Output) OnChange(fn func(State, bool)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChange = fn
}

// Init writes s unconditionally.
func (o *Output) Init(s State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.apply(s, true)
}

// State returns the last applied output.
func (o *Output) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stopped reports whether a safety hold is active.
func (o *Output) Stopped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now().Before(o.holdUntil)
}

// Update applies fn to the current state as one read-modify-write. It
// returns ErrStopped without calling fn while a hold is active.
func (o *Output) Update(fn func(State) State) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.now().Before(o.holdUntil) {
		return ErrStopped
	}
	return o.apply(fn(o.state), false)
}

// Set is Update with a fixed target.
func (o *Output) Set(s State) error {
	return o.Update(func(State) State { return s })
}

// ForceStop drives the port inactive and refuses controller writes for
// hold. The PWM compare value is left as is.
func (o *Output) ForceStop(hold time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	until := o.now().Add(hold)
	if until.After(o.holdUntil) {
		o.holdUntil = until
	}

	err := o.hw.WritePattern(PatternInactive)
	if err != nil {
		// still refuse writes; the port state is unknown
		o.log.Error("actuator: force stop write failed", zap.Error(err))
		return fmt.Errorf("actuator: force stop: %w", err)
	}
	o.state.Pattern = PatternInactive
	if o.onChange != nil {
		o.onChange(o.state, true)
	}
	return nil
}

// WaitReady blocks until no hold is active.
func (o *Output) WaitReady(ctx context.Context) error {
	for {
		o.mu.Lock()
		remaining := o.holdUntil.Sub(o.now())
		o.mu.Unlock()

		if remaining <= 0 {
			return nil
		}

		t := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// apply must be called with o.mu held. The port is written before the
// compare value.
func (o *Output) apply(next State, force bool) error {
	if force || next.Pattern != o.state.Pattern {
		if err := o.hw.WritePattern(next.Pattern); err != nil {
			return fmt.Errorf("actuator: write pattern 0x%02X: %w", next.Pattern, err)
		}
		o.state.Pattern = next.Pattern
	}
	if force || next.Duty != o.state.Duty {
		if err := o.hw.WriteDuty(next.Duty); err != nil {
			return fmt.Errorf("actuator: write duty %d: %w", next.Duty, err)
		}
		o.state.Duty = next.Duty
	}
	if o.onChange != nil {
		o.onChange(o.state, false)
	}
	return nil
}

// NopHardware accepts every write. It backs dry runs without outputs.
type NopHardware struct{}

func (NopHardware) WritePattern(uint8) error { return nil }
func (NopHardware) WriteDuty(uint16) error   { return nil }
