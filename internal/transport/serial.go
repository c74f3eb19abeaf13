// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// SerialSink is a Sink backed by a UART.
type SerialSink struct {
	WriterSink
	port io.ReadWriteCloser
}

// OpenSerial opens portName as 8N1 at baud.
func OpenSerial(portName string, baud int) (*SerialSink, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("transport: open serial %s: %w", portName, err)
	}

	return &SerialSink{WriterSink: WriterSink{W: port}, port: port}, nil
}

// Close closes the port.
func (s *SerialSink) Close() error {
	return s.port.Close()
}
