// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mpu6050 drives an MPU6050 over the primitive I2C bus.
package mpu6050

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/imu"
	"github.com/relabs-tech/leveler/internal/logger"
	"github.com/relabs-tech/leveler/internal/transport"
)

// PowerUpDelay precedes the boot register writes.
const PowerUpDelay = 150 * time.Millisecond

// Dev is an MPU6050 on a primitive bus.
type Dev struct {
	bus    transport.Bus
	cfg    DeviceConfig
	settle time.Duration
	log    *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Opts configures a Dev. Zero values select the boot defaults.
type Opts struct {
	Config      *DeviceConfig
	SettleDelay time.Duration
	Logger      *zap.Logger
}

// New returns a driver for the device on bus. It does not touch the bus.
func New(bus transport.Bus, opts Opts) *Dev {
	cfg := DefaultDeviceConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	settle := opts.SettleDelay
	if settle == 0 {
		settle = PowerUpDelay
	}
	return &Dev{
		bus:    bus,
		cfg:    cfg,
		settle: settle,
		log:    logger.OrNop(opts.Logger),
		sleep:  sleepCtx,
	}
}

// Config returns the register values written by Init.
func (d *Dev) Config() DeviceConfig {
	return d.cfg
}

// Init waits for the power-up delay and writes the boot registers, each in
// its own start/stop transaction. Values are not read back.
func (d *Dev) Init(ctx context.Context) error {
	if err := d.sleep(ctx, d.settle); err != nil {
		return fmt.Errorf("mpu6050: power-up delay: %w", err)
	}

	for _, w := range d.cfg.writes() {
		if err := d.writeReg(w.reg, w.val); err != nil {
			return err
		}
		d.log.Debug("mpu6050: register written",
			zap.String("reg", fmt.Sprintf("0x%02X", w.reg)),
			zap.String("value", fmt.Sprintf("0x%02X", w.val)))
	}

	d.log.Info("mpu6050: initialized",
		zap.Int("output_rate_hz", d.cfg.OutputRateHz()),
		zap.Float64("gyro_lsb_per_dps", imu.GyroDivisor(d.cfg.GyroConfig)))
	return nil
}

func (d *Dev) writeReg(reg, val byte) error {
	if err := d.bus.Start(AddrWrite); err != nil {
		return d.abort("write 0x%02X", reg, err)
	}
	if err := d.bus.Write(reg); err != nil {
		return d.abort("write 0x%02X", reg, err)
	}
	if err := d.bus.Write(val); err != nil {
		return d.abort("write 0x%02X", reg, err)
	}
	if err := d.bus.Stop(); err != nil {
		return fmt.Errorf("mpu6050: write 0x%02X: %w", reg, err)
	}
	return nil
}

// ReadRaw performs one 14 byte burst from ACCEL_XOUT_H. The first 13 bytes
// are acknowledged and the last is not. On error no sample is returned.
func (d *Dev) ReadRaw(ctx context.Context) (imu.RawSample, error) {
	if err := ctx.Err(); err != nil {
		return imu.RawSample{}, err
	}

	var buf [BurstLen]byte
	if err := d.bus.Start(AddrWrite); err != nil {
		return imu.RawSample{}, d.abort("burst read 0x%02X", RegAccelXoutH, err)
	}
	if err := d.bus.Write(RegAccelXoutH); err != nil {
		return imu.RawSample{}, d.abort("burst read 0x%02X", RegAccelXoutH, err)
	}
	if err := d.bus.RepeatedStart(AddrRead); err != nil {
		return imu.RawSample{}, d.abort("burst read 0x%02X", RegAccelXoutH, err)
	}
	for i := 0; i < BurstLen; i++ {
		var (
			b   byte
			err error
		)
		if i == BurstLen-1 {
			b, err = d.bus.ReadNack()
		} else {
			b, err = d.bus.ReadAck()
		}
		if err != nil {
			return imu.RawSample{}, d.abort("burst read 0x%02X", RegAccelXoutH, err)
		}
		buf[i] = b
	}
	if err := d.bus.Stop(); err != nil {
		return imu.RawSample{}, fmt.Errorf("mpu6050: burst read: %w", err)
	}

	return decode(buf), nil
}

// ReadReg reads one register.
func (d *Dev) ReadReg(ctx context.Context, reg byte) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := d.bus.Start(AddrWrite); err != nil {
		return 0, d.abort("read 0x%02X", reg, err)
	}
	if err := d.bus.Write(reg); err != nil {
		return 0, d.abort("read 0x%02X", reg, err)
	}
	if err := d.bus.RepeatedStart(AddrRead); err != nil {
		return 0, d.abort("read 0x%02X", reg, err)
	}
	v, err := d.bus.ReadNack()
	if err != nil {
		return 0, d.abort("read 0x%02X", reg, err)
	}
	if err := d.bus.Stop(); err != nil {
		return 0, fmt.Errorf("mpu6050: read 0x%02X: %w", reg, err)
	}
	return v, nil
}

// abort releases the bus after a failed primitive and wraps the cause.
func (d *Dev) abort(format string, reg byte, err error) error {
	if stopErr := d.bus.Stop(); stopErr != nil {
		d.log.Debug("mpu6050: stop after error failed", zap.Error(stopErr))
	}
	return fmt.Errorf("mpu6050: "+format+": %w", reg, err)
}

func decode(b [BurstLen]byte) imu.RawSample {
	word := func(i int) int16 { return int16(uint16(b[i])<<8 | uint16(b[i+1])) }
	return imu.RawSample{
		Ax:   word(0),
		Ay:   word(2),
		Az:   word(4),
		Temp: word(6),
		Gx:   word(8),
		Gy:   word(10),
		Gz:   word(12),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
