// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/config"
	"github.com/relabs-tech/leveler/internal/logger"
	"github.com/relabs-tech/leveler/internal/mpu6050"
	"github.com/relabs-tech/leveler/internal/transport"
)

// registerReader reads single registers. *mpu6050.Dev satisfies it.
type registerReader interface {
	ReadReg(ctx context.Context, reg byte) (byte, error)
}

// RunRegisterDebug opens the sensor named in the global config and prints
// every known register with its live value next to the boot value. With
// boot set the boot sequence is written first.
func RunRegisterDebug(ctx context.Context, w io.Writer, boot bool, log *zap.Logger) error {
	log = logger.OrNop(log)
	cfg := config.Get()

	port, err := openI2C(cfg)
	if err != nil {
		return err
	}
	defer port.Close()

	devCfg := deviceConfig(cfg)
	dev := mpu6050.New(transport.WithTimeout(port, cfg.I2CTimeout), mpu6050.Opts{
		Config:      &devCfg,
		SettleDelay: cfg.IMUSettleDelay,
		Logger:      log,
	})
	if boot {
		if err := dev.Init(ctx); err != nil {
			return err
		}
	}
	return printRegisters(ctx, w, dev, devCfg, log)
}

// printRegisters writes one row per register. A failed read is shown as
// "--" and the dump continues.
func printRegisters(ctx context.Context, w io.Writer, r registerReader, dev mpu6050.DeviceConfig, log *zap.Logger) error {
	if _, err := fmt.Fprintf(w, "%-5s %-13s %-6s %-5s %-7s %s\n", "ADDR", "NAME", "ACCESS", "LIVE", "WRITTEN", "DESCRIPTION"); err != nil {
		return err
	}
	for _, info := range mpu6050.Registers(dev) {
		if err := ctx.Err(); err != nil {
			return err
		}
		live := "--"
		var addr byte
		if _, err := fmt.Sscanf(info.Address, "0x%02X", &addr); err == nil && strings.Contains(info.Access, "R") {
			v, err := r.ReadReg(ctx, addr)
			if err != nil {
				log.Warn("register_debug: read failed", zap.String("reg", info.Name), zap.Error(err))
			} else {
				live = fmt.Sprintf("0x%02X", v)
			}
		}
		written := info.Written
		if written == "" {
			written = "-"
		}
		if _, err := fmt.Fprintf(w, "%-5s %-13s %-6s %-5s %-7s %s\n",
			info.Address, info.Name, info.Access, live, written, info.Description); err != nil {
			return err
		}
	}
	return nil
}
