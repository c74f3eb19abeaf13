// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control implements the bang-bang leveling loop on the lateral
// acceleration channel.
package control

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/actuator"
	"github.com/relabs-tech/leveler/internal/imu"
	"github.com/relabs-tech/leveler/internal/logger"
)

// State is the controller state within one outer iteration.
type State int32

const (
	Sample State = iota
	BelowThreshold
	AboveThreshold
	Settle
)

func (s State) String() string {
	switch s {
	case Sample:
		return "SAMPLE"
	case BelowThreshold:
		return "BELOW_THRESHOLD"
	case AboveThreshold:
		return "ABOVE_THRESHOLD"
	case Settle:
		return "SETTLE"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Targets driven while a guard holds.
var (
	Below = actuator.State{Pattern: actuator.PatternBelow, Duty: actuator.DutyBelow}
	Above = actuator.State{Pattern: actuator.PatternAbove, Duty: actuator.DutyAbove}
)

// Config tunes the loop.
type Config struct {
	Band float64       // dead band half width around the baseline, g
	Tick time.Duration // hold after each actuator write

	// LegacyBelowGuard uses baseline+Band for the below guard, which makes
	// the below guard true for every negative reading near a zero baseline.
	LegacyBelowGuard bool
}

// DefaultConfig is a 0.3 g band and a 1 ms tick.
func DefaultConfig() Config {
	return Config{Band: 0.3, Tick: time.Millisecond}
}

// Sampler takes a fresh converted sample.
type Sampler interface {
	Sample(ctx context.Context) (imu.ScaledSample, error)
}

// Actuator is the critical section around the outputs.
type Actuator interface {
	Update(fn func(actuator.State) actuator.State) error
	WaitReady(ctx context.Context) error
	Stopped() bool
}

// Observer is told about every state entered.
type Observer interface {
	ControllerState(name string)
}

// Controller runs one outer iteration per call to Iterate.
type Controller struct {
	cfg      Config
	act      Actuator
	sampler  Sampler
	baseline imu.ScaledSample
	obs      Observer
	log      *zap.Logger

	state atomic.Int32
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a controller leveling toward baseline. obs may be nil.
func New(cfg Config, act Actuator, sampler Sampler, baseline imu.ScaledSample, obs Observer, log *zap.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		act:      act,
		sampler:  sampler,
		baseline: baseline,
		obs:      obs,
		log:      logger.OrNop(log),
		sleep:    hold,
	}
}

// Baseline returns the reference sample.
func (c *Controller) Baseline() imu.ScaledSample {
	return c.baseline
}

// State returns the state the controller is in.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) enter(s State) {
	c.state.Store(int32(s))
	if c.obs != nil {
		c.obs.ControllerState(s.String())
	}
}

// BelowGuard reports whether y calls for the below actuation.
func (c *Controller) BelowGuard(y float64) bool {
	limit := c.baseline.Ay - c.cfg.Band
	if c.cfg.LegacyBelowGuard {
		limit = c.baseline.Ay + c.cfg.Band
	}
	return y < limit && y < 0
}

// AboveGuard reports whether y calls for the above actuation.
func (c *Controller) AboveGuard(y float64) bool {
	return y > c.baseline.Ay+c.cfg.Band && y > 0
}

// Iterate runs SAMPLE, at most one threshold state, and SETTLE, starting
// from s. When a safety hold is active at SAMPLE it waits the hold out and
// starts from a fresh sample instead. It returns the sample taken at the end of SETTLE, which feeds the
// next telemetry line.
//
// Errors end the iteration where they occur: actuator.ErrStopped when the
// safety monitor holds the outputs, or a sampling error. The returned sample
// is then the last one successfully taken.
func (c *Controller) Iterate(ctx context.Context, s imu.ScaledSample) (imu.ScaledSample, error) {
	c.enter(Sample)
	held := c.act.Stopped()
	if err := c.act.WaitReady(ctx); err != nil {
		return s, err
	}
	if held {
		// s predates the end of the hold
		fresh, err := c.sampler.Sample(ctx)
		if err != nil {
			return s, err
		}
		s = fresh
	}

	var err error
	switch {
	case c.BelowGuard(s.Ay):
		c.enter(BelowThreshold)
		s, err = c.drive(ctx, s, Below, c.BelowGuard)
	case c.AboveGuard(s.Ay):
		c.enter(AboveThreshold)
		s, err = c.drive(ctx, s, Above, c.AboveGuard)
	}
	if err != nil {
		return s, err
	}

	c.enter(Settle)
	steps := []func(actuator.State) actuator.State{
		func(a actuator.State) actuator.State { a.Duty = actuator.DutySettle; return a },
		func(a actuator.State) actuator.State { a.Duty = actuator.DutyLevel; return a },
	}
	for _, step := range steps {
		if err := c.act.Update(step); err != nil {
			return s, err
		}
		if err := c.sleep(ctx, c.cfg.Tick); err != nil {
			return s, err
		}
	}
	if err := c.act.Update(func(a actuator.State) actuator.State {
		a.Pattern = actuator.PatternIdle
		return a
	}); err != nil {
		return s, err
	}

	next, err := c.sampler.Sample(ctx)
	if err != nil {
		return s, err
	}
	return next, nil
}

// drive holds target while guard stays true, re-sampling after each tick.
func (c *Controller) drive(ctx context.Context, s imu.ScaledSample, target actuator.State, guard func(float64) bool) (imu.ScaledSample, error) {
	for guard(s.Ay) {
		if err := c.act.Update(func(actuator.State) actuator.State { return target }); err != nil {
			return s, err
		}
		if err := c.sleep(ctx, c.cfg.Tick); err != nil {
			return s, err
		}
		next, err := c.sampler.Sample(ctx)
		if err != nil {
			return s, err
		}
		s = next
		c.log.Debug("control: driving",
			zap.Stringer("state", c.State()),
			zap.Float64("ay", s.Ay),
			zap.Float64("baseline_ay", c.baseline.Ay))
	}
	return s, nil
}

func hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
