// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/actuator"
	"github.com/relabs-tech/leveler/internal/config"
	"github.com/relabs-tech/leveler/internal/display"
	"github.com/relabs-tech/leveler/internal/logger"
	"github.com/relabs-tech/leveler/internal/metrics"
	"github.com/relabs-tech/leveler/internal/mpu6050"
	"github.com/relabs-tech/leveler/internal/safety"
	"github.com/relabs-tech/leveler/internal/telemetry"
	"github.com/relabs-tech/leveler/internal/transport"
)

// RunLeveler opens the hardware named in the global config, boots and runs
// the control loop until ctx is done.
func RunLeveler(ctx context.Context, log *zap.Logger) error {
	return runLeveler(ctx, config.Get(), log)
}

// openHardware is replaced in tests.
var openHardware = openActuator

func runLeveler(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log = logger.OrNop(log)
	m := metrics.New()
	store := &telemetry.Store{}

	// Outputs and the safety inputs come first so a stop edge during boot
	// is latched.
	hw, closeHW, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer closeHW()

	out := actuator.NewOutput(hw, log)
	out.OnChange(func(s actuator.State, stopped bool) {
		m.Actuator(s, stopped)
		if stopped {
			store.SetStopped(true, s.Pattern)
		}
	})

	monitor := safety.New(out, cfg.SafetyHold, m, log)
	stopSrc, reservedSrc, err := openEdges(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// shutdown stops every goroutine and leaves the port inactive. It runs
	// before any resource opened below is closed.
	var (
		wg           sync.WaitGroup
		shutdownOnce sync.Once
	)
	shutdown := func() {
		shutdownOnce.Do(func() {
			cancel()
			wg.Wait()
			if ferr := hw.WritePattern(actuator.PatternInactive); ferr != nil {
				log.Warn("leveler: final output reset failed", zap.Error(ferr))
			}
		})
	}
	defer shutdown()

	if stopSrc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.Run(ctx, stopSrc, reservedSrc)
		}()
	} else {
		log.Warn("safety: no stop input configured for this actuator backend")
	}

	port, err := openI2C(cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdown()
		port.Close()
	}()

	devCfg := deviceConfig(cfg)
	dev := mpu6050.New(transport.WithTimeout(port, cfg.I2CTimeout), mpu6050.Opts{
		Config:      &devCfg,
		SettleDelay: cfg.IMUSettleDelay,
		Logger:      log,
	})

	sink, closeSink, err := openSink(cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdown()
		closeSink()
	}()

	lev := NewLeveler(cfg, Parts{
		Sensor:  dev,
		Output:  out,
		Sink:    sink,
		Monitor: monitor,
		Store:   store,
		Metrics: m,
	}, log)

	mirrorInterval := time.Duration(cfg.MQTTPublishInterval) * time.Millisecond

	if cfg.MQTTBroker != "" {
		client, err := telemetry.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
		if err != nil {
			return err
		}
		defer func() {
			shutdown()
			client.Disconnect(250)
		}()
		log.Info("mqtt: connected", zap.String("broker", cfg.MQTTBroker))

		pub := telemetry.NewMQTTPublisher(client, store, cfg.TopicSample, mirrorInterval, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Run(ctx)
		}()
	}

	if cfg.WebServerPort != 0 {
		hub := telemetry.NewHub(store, mirrorInterval, log)
		h := NewWebHandler(store, hub, m, devCfg, log)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = hub.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			if err := serveWeb(ctx, cfg.WebServerPort, h, log); err != nil {
				log.Error("web: server stopped", zap.Error(err))
			}
		}()
	}

	if cfg.DisplayEnabled {
		disp, err := display.Open(cfg.DisplayI2CBus, store,
			time.Duration(cfg.DisplayUpdateInterval)*time.Millisecond, log)
		if err != nil {
			// the display is optional
			log.Warn("display: disabled", zap.Error(err))
		} else {
			defer func() {
				shutdown()
				disp.Close()
			}()
			if err := disp.Splash(); err != nil {
				log.Warn("display: splash failed", zap.Error(err))
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				disp.Run(ctx)
			}()
		}
	}

	if err := lev.Boot(ctx); err != nil {
		interrupted := ctx.Err() != nil
		shutdown()
		if interrupted {
			return nil
		}
		return err
	}

	err = lev.Run(ctx)
	shutdown()
	log.Info("leveler: stopped")
	return err
}

func openActuator(cfg *config.Config) (actuator.Hardware, func(), error) {
	switch cfg.ActuatorBackend {
	case "periph":
		hw, err := actuator.OpenPeriphHardware(cfg.ActuatorPorts, cfg.ActuatorPWMPin, cfg.PWMTop, cfg.PWMFrequencyHz)
		if err != nil {
			return nil, nil, err
		}
		return hw, func() {}, nil
	case "rpio":
		hw, err := actuator.OpenRPIOHardware(cfg.ActuatorPorts, cfg.ActuatorPWMPin, cfg.PWMTop, cfg.PWMFrequencyHz)
		if err != nil {
			return nil, nil, err
		}
		return hw, func() { _ = hw.Close() }, nil
	case "none":
		return actuator.NopHardware{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown actuator backend %q", cfg.ActuatorBackend)
	}
}

// openEdges returns the stop and reserved inputs for the actuator backend.
// The rpio backend must be open already.
func openEdges(cfg *config.Config) (safety.EdgeSource, safety.EdgeSource, error) {
	switch cfg.ActuatorBackend {
	case "periph":
		stop, err := safety.OpenPeriphEdge(cfg.SafetyStopPin)
		if err != nil {
			return nil, nil, err
		}
		var reserved safety.EdgeSource
		if cfg.SafetyReservedPin != "" {
			if reserved, err = safety.OpenPeriphEdge(cfg.SafetyReservedPin); err != nil {
				return nil, nil, err
			}
		}
		return stop, reserved, nil
	case "rpio":
		n, err := actuator.BCM(cfg.SafetyStopPin)
		if err != nil {
			return nil, nil, fmt.Errorf("safety: stop pin: %w", err)
		}
		stop := safety.NewRPIOEdge(n)
		var reserved safety.EdgeSource
		if cfg.SafetyReservedPin != "" {
			r, err := actuator.BCM(cfg.SafetyReservedPin)
			if err != nil {
				return nil, nil, fmt.Errorf("safety: reserved pin: %w", err)
			}
			reserved = safety.NewRPIOEdge(r)
		}
		return stop, reserved, nil
	default:
		return nil, nil, nil
	}
}

func deviceConfig(cfg *config.Config) mpu6050.DeviceConfig {
	return mpu6050.DeviceConfig{
		SampleRateDiv: cfg.IMUSampleRateDiv,
		PowerMgmt1:    cfg.IMUPowerMgmt1,
		DLPFConfig:    cfg.IMUDLPFConfig,
		GyroConfig:    cfg.IMUGyroConfig,
		IntEnable:     cfg.IMUIntEnable,
	}
}

func openI2C(cfg *config.Config) (*transport.Port, error) {
	switch cfg.I2CBackend {
	case "periph":
		return transport.OpenPeriph(cfg.I2CBus, cfg.I2CBurst)
	case "embd":
		return transport.OpenEmbd(cfg.I2CBus, cfg.I2CBurst)
	default:
		return nil, fmt.Errorf("unknown I2C backend %q", cfg.I2CBackend)
	}
}

func openSink(cfg *config.Config) (transport.Sink, func(), error) {
	if cfg.SerialPort == "" || cfg.SerialPort == "-" {
		return transport.WriterSink{W: os.Stdout}, func() {}, nil
	}
	s, err := transport.OpenSerial(cfg.SerialPort, cfg.SerialBaudRate)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}
