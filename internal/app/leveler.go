// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/actuator"
	"github.com/relabs-tech/leveler/internal/config"
	"github.com/relabs-tech/leveler/internal/control"
	"github.com/relabs-tech/leveler/internal/imu"
	"github.com/relabs-tech/leveler/internal/logger"
	"github.com/relabs-tech/leveler/internal/metrics"
	"github.com/relabs-tech/leveler/internal/safety"
	"github.com/relabs-tech/leveler/internal/telemetry"
	"github.com/relabs-tech/leveler/internal/transport"
)

// Sensor is the initialized IMU. *mpu6050.Dev satisfies it.
type Sensor interface {
	Init(ctx context.Context) error
	imu.RawSource
}

// Parts are the opened components a Leveler runs on.
type Parts struct {
	Sensor  Sensor
	Output  *actuator.Output
	Sink    transport.Sink
	Monitor *safety.Monitor
	Store   *telemetry.Store
	Metrics *metrics.Metrics
}

// Leveler owns the acquisition cycle: read, convert, send the telemetry
// line, run one controller iteration, publish the frame.
type Leveler struct {
	cfg *config.Config
	p   Parts
	log *zap.Logger

	accelDiv float64
	gyroDiv  float64

	ctrl *control.Controller

	lastRaw     imu.RawSample
	pending     imu.ScaledSample
	havePending bool
	line        []byte

	sleep func(ctx context.Context, d time.Duration) error
}

func NewLeveler(cfg *config.Config, p Parts, log *zap.Logger) *Leveler {
	if p.Store == nil {
		p.Store = &telemetry.Store{}
	}
	gyroDiv := cfg.GyroDivisor
	if gyroDiv == 0 {
		gyroDiv = imu.GyroDivisor(cfg.IMUGyroConfig)
	}
	return &Leveler{
		cfg:      cfg,
		p:        p,
		log:      logger.OrNop(log),
		accelDiv: cfg.AccelDivisor,
		gyroDiv:  gyroDiv,
		line:     make([]byte, 0, telemetry.LineMax),
		sleep:    sleepCtx,
	}
}

// Controller is nil until Boot has captured the baseline.
func (l *Leveler) Controller() *control.Controller {
	return l.ctrl
}

// Boot runs the start-up sequence with the safety monitor still masked:
// sensor registers, actuator power-on state, baseline capture. It arms the
// monitor last.
func (l *Leveler) Boot(ctx context.Context) error {
	if err := l.p.Sensor.Init(ctx); err != nil {
		return fmt.Errorf("leveler: sensor init: %w", err)
	}
	if err := l.p.Output.Init(actuator.PowerOn); err != nil {
		return fmt.Errorf("leveler: actuator init: %w", err)
	}

	var baseline imu.ScaledSample
	for {
		s, err := l.Sample(ctx)
		if err == nil {
			baseline = s
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.Warn("leveler: baseline read failed, retrying", zap.Error(err))
		if err := l.sleep(ctx, l.cfg.TransportRetryDelay); err != nil {
			return err
		}
	}
	l.log.Info("leveler: baseline captured",
		zap.Float64("ax", baseline.Ax),
		zap.Float64("ay", baseline.Ay),
		zap.Float64("az", baseline.Az))

	ccfg := control.Config{
		Band:             l.cfg.ControlBand,
		Tick:             l.cfg.ControlTick,
		LegacyBelowGuard: l.cfg.ControlLegacyBelowGuard,
	}
	l.ctrl = control.New(ccfg, l.p.Output, l, baseline, l.p.Metrics, l.log)

	if l.p.Monitor != nil {
		l.p.Monitor.Arm()
	}
	return nil
}

// Sample reads and converts one sample. It is the controller's Sampler.
func (l *Leveler) Sample(ctx context.Context) (imu.ScaledSample, error) {
	raw, err := l.p.Sensor.ReadRaw(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.p.Metrics.TransportError(transport.KindOf(err))
		}
		return imu.ScaledSample{}, err
	}
	s := imu.Scale(raw, l.accelDiv, l.gyroDiv)
	l.lastRaw = raw
	l.p.Metrics.Sample(s.Ay)
	return s, nil
}

// Step runs one outer iteration. A transport error skips the cycle with the
// actuator held where it is; actuator.ErrStopped means the safety monitor
// pre-empted the controller.
func (l *Leveler) Step(ctx context.Context) error {
	if l.ctrl == nil {
		return errors.New("leveler: Step before Boot")
	}

	// samples taken during a safety hold are stale once it ends
	held := l.p.Output.Stopped()
	if err := l.p.Output.WaitReady(ctx); err != nil {
		return err
	}
	if held {
		l.havePending = false
	}

	s := l.pending
	if !l.havePending {
		var err error
		if s, err = l.Sample(ctx); err != nil {
			return err
		}
	}
	l.havePending = false
	raw := l.lastRaw

	l.send(s)

	next, err := l.ctrl.Iterate(ctx, s)
	l.publish(raw, s)
	if err != nil {
		return err
	}
	l.pending = next
	l.havePending = true
	return nil
}

// send writes the telemetry line. Encoding and sink failures drop the line
// and never stop the loop.
func (l *Leveler) send(s imu.ScaledSample) {
	line, err := telemetry.AppendLine(l.line[:0], s)
	l.line = line
	if err != nil {
		l.p.Metrics.EncodingError()
		l.log.Error("leveler: telemetry line dropped", zap.Error(err))
		return
	}
	if l.p.Sink == nil {
		return
	}
	if err := l.p.Sink.SendString(string(line)); err != nil {
		l.log.Warn("leveler: telemetry send failed", zap.Error(err))
	}
}

func (l *Leveler) publish(raw imu.RawSample, s imu.ScaledSample) {
	st := l.p.Output.State()
	l.p.Store.Put(telemetry.Frame{
		Time:     time.Now(),
		Raw:      raw,
		Sample:   s,
		Baseline: l.ctrl.Baseline(),
		Pattern:  st.Pattern,
		Duty:     st.Duty,
		State:    l.ctrl.State().String(),
		Stopped:  l.p.Output.Stopped(),
	})
}

// Run steps until ctx is done.
func (l *Leveler) Run(ctx context.Context) error {
	l.log.Info("leveler: control loop running",
		zap.Float64("baseline_ay", l.ctrl.Baseline().Ay),
		zap.Float64("band", l.cfg.ControlBand))

	for {
		err := l.Step(ctx)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err == nil:
		case errors.Is(err, actuator.ErrStopped):
			l.log.Info("leveler: iteration pre-empted by safety stop")
		default:
			var te *transport.Error
			if errors.As(err, &te) {
				l.log.Warn("leveler: cycle skipped", zap.Error(err))
			} else {
				l.log.Error("leveler: cycle failed", zap.Error(err))
			}
			if err := l.sleep(ctx, l.cfg.TransportRetryDelay); err != nil {
				return nil
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
