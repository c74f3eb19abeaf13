// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport provides the byte-level I2C primitives the sensor driver
// is written against, and the byte sink the telemetry line is written to.
package transport

import (
	"errors"
	"fmt"
	"io"
)

// Bus is a synchronous I2C master speaking in primitives.
// Addresses are 8-bit wire addresses: the 7-bit device address shifted left
// with the R/W bit in bit 0 (0xD0 write, 0xD1 read for an MPU6050 at 0x68).
type Bus interface {
	Start(addr byte) error
	RepeatedStart(addr byte) error
	Write(b byte) error
	ReadAck() (byte, error)
	ReadNack() (byte, error)
	Stop() error
}

// Sink accepts whole telemetry lines.
type Sink interface {
	SendString(s string) error
}

// Error kinds. Use errors.Is against a returned *Error.
var (
	ErrBusBusy  = errors.New("bus busy")
	ErrNoAck    = errors.New("no acknowledgment")
	ErrTimeout  = errors.New("timeout")
	ErrSequence = errors.New("primitive out of sequence")
)

// Error is a failed bus primitive.
type Error struct {
	Op   string // "start", "write", "read", ...
	Addr byte   // wire address of the current transaction, 0 if none
	Kind error  // one of the Err* kinds
	Err  error  // backend cause, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("i2c %s addr=0x%02X: %v", e.Op, e.Addr, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the backend cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, addr byte, kind, cause error) *Error {
	return &Error{Op: op, Addr: addr, Kind: kind, Err: cause}
}

// WriterSink sends lines to any io.Writer, such as a serial port or stdout.
type WriterSink struct {
	W io.Writer
}

// SendString writes the whole line.
func (s WriterSink) SendString(line string) error {
	_, err := io.WriteString(s.W, line)
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}

// KindOf returns the kind name of a transport failure, "other" if err is not
// a transport error.
func KindOf(err error) string {
	var te *Error
	if errors.As(err, &te) && te.Kind != nil {
		return te.Kind.Error()
	}
	return "other"
}
