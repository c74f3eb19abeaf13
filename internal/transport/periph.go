// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Port is an opened Bus that owns its backend handle.
type Port struct {
	Bus
	close func() error
}

// Close releases the backend handle.
func (p *Port) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// OpenPeriph opens an I2C bus through periph. An empty name selects the
// first bus registered by the host drivers.
func OpenPeriph(name string, burst int) (*Port, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("transport: periph host init: %w", err)
	}

	bc, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("transport: open i2c bus %q: %w", name, err)
	}

	return &Port{
		Bus:   NewTxnBus(periphTx(bc), burst),
		close: bc.Close,
	}, nil
}

func periphTx(bus i2c.Bus) TxFunc {
	return func(addr uint16, w, r []byte) error {
		dev := i2c.Dev{Bus: bus, Addr: addr}
		return dev.Tx(w, r)
	}
}
