// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/actuator"
	"github.com/relabs-tech/leveler/internal/config"
	"github.com/relabs-tech/leveler/internal/imu"
	"github.com/relabs-tech/leveler/internal/logger"
	"github.com/relabs-tech/leveler/internal/telemetry"
	"github.com/relabs-tech/leveler/internal/transport"
)

// Mock platform motion.
const (
	mockAmplitude = 0.5 // g
	mockPeriod    = 4 * time.Second
)

// RunMockConsole runs the control loop against a simulated sensor with no
// actuator hardware and writes the telemetry lines to w. Without a loaded
// global config the defaults are used.
func RunMockConsole(ctx context.Context, w io.Writer, log *zap.Logger) error {
	log = logger.OrNop(log)
	lev := newMockLeveler(mockConfig(), transport.WriterSink{W: w}, nil, log)
	return runMock(ctx, lev)
}

// RunMockProducer runs the simulated control loop and mirrors its frames to
// the MQTT broker, so the subscribers can be tried without hardware.
func RunMockProducer(ctx context.Context, log *zap.Logger) error {
	log = logger.OrNop(log)
	cfg := mockConfig()
	if cfg.MQTTBroker == "" {
		return errors.New("producer: MQTT_BROKER is not configured")
	}

	client, err := telemetry.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Info("producer: connected", zap.String("broker", cfg.MQTTBroker))

	store := &telemetry.Store{}
	pub := telemetry.NewMQTTPublisher(client, store, cfg.TopicSample,
		time.Duration(cfg.MQTTPublishInterval)*time.Millisecond, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Run(ctx)
	}()

	err = runMock(ctx, newMockLeveler(cfg, nil, store, log))
	cancel()
	<-done
	return err
}

func mockConfig() *config.Config {
	if cfg := config.Get(); cfg != nil {
		return cfg
	}
	return config.Default()
}

func newMockLeveler(cfg *config.Config, sink transport.Sink, store *telemetry.Store, log *zap.Logger) *Leveler {
	log = logger.OrNop(log)
	out := actuator.NewOutput(actuator.NopHardware{}, log)
	out.OnChange(func(s actuator.State, _ bool) {
		log.Debug("mock: actuator", zap.Uint16("duty", s.Duty), zap.Uint8("pattern", s.Pattern))
	})
	return NewLeveler(cfg, Parts{
		Sensor: imu.NewMockSource(mockAmplitude, mockPeriod),
		Output: out,
		Sink:   sink,
		Store:  store,
	}, log)
}

func runMock(ctx context.Context, lev *Leveler) error {
	if err := lev.Boot(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return lev.Run(ctx)
}
