// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"
	"strconv"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi" // registers the Raspberry Pi host descriptor
)

// OpenEmbd opens an I2C bus through embd. name is the bus number ("1" on
// a Raspberry Pi); empty means bus 1.
func OpenEmbd(name string, burst int) (*Port, error) {
	num := byte(1)
	if name != "" {
		n, err := strconv.ParseUint(name, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("transport: embd bus number %q: %w", name, err)
		}
		num = byte(n)
	}

	if err := embd.InitI2C(); err != nil {
		return nil, fmt.Errorf("transport: embd i2c init: %w", err)
	}

	bus := embd.NewI2CBus(num)
	return &Port{
		Bus: NewTxnBus(embdTx(bus), burst),
		close: func() error {
			if err := bus.Close(); err != nil {
				return err
			}
			return embd.CloseI2C()
		},
	}, nil
}

// embdTx expresses a transaction with embd's register helpers. A one byte
// write followed by a read is a register read, which embd issues as a
// single combined transfer.
func embdTx(bus embd.I2CBus) TxFunc {
	return func(addr uint16, w, r []byte) error {
		a := byte(addr)
		switch {
		case len(r) == 0:
			return bus.WriteBytes(a, w)
		case len(w) == 1:
			return bus.ReadFromReg(a, w[0], r)
		case len(w) == 0:
			data, err := bus.ReadBytes(a, len(r))
			if err != nil {
				return err
			}
			copy(r, data)
			return nil
		default:
			return fmt.Errorf("embd: %d byte write before read not supported", len(w))
		}
	}
}
