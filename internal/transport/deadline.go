// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"sync/atomic"
	"time"
)

// deadlineBus bounds every primitive of an inner Bus.
// A primitive that does not return within the deadline is reported as
// ErrTimeout and left running; until it finally returns, every further
// primitive fails immediately with ErrBusBusy. When it does return, the
// transaction it belonged to is stopped on the inner bus so the next Start
// finds it idle.
type deadlineBus struct {
	inner   Bus
	timeout time.Duration
	busy    atomic.Bool

	// wire address of the open transaction, for error reports
	addr byte
}

// WithTimeout wraps bus so no primitive blocks longer than d.
// A non-positive d returns bus unchanged.
func WithTimeout(bus Bus, d time.Duration) Bus {
	if d <= 0 {
		return bus
	}
	return &deadlineBus{inner: bus, timeout: d}
}

type result struct {
	b   byte
	err error
}

func (d *deadlineBus) do(op string, fn func() (byte, error)) (byte, error) {
	if !d.busy.CompareAndSwap(false, true) {
		return 0, newError(op, d.addr, ErrBusBusy, nil)
	}

	var abandoned atomic.Bool
	done := make(chan result, 1)
	go func() {
		b, err := fn()
		if abandoned.Load() {
			_ = d.inner.Stop()
		}
		d.busy.Store(false)
		done <- result{b, err}
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.b, r.err
	case <-timer.C:
		abandoned.Store(true)
		return 0, newError(op, d.addr, ErrTimeout, nil)
	}
}

func (d *deadlineBus) Start(addr byte) error {
	d.addr = addr
	_, err := d.do("start", func() (byte, error) { return 0, d.inner.Start(addr) })
	return err
}

func (d *deadlineBus) RepeatedStart(addr byte) error {
	d.addr = addr
	_, err := d.do("repeated start", func() (byte, error) { return 0, d.inner.RepeatedStart(addr) })
	return err
}

func (d *deadlineBus) Write(b byte) error {
	_, err := d.do("write", func() (byte, error) { return 0, d.inner.Write(b) })
	return err
}

func (d *deadlineBus) ReadAck() (byte, error) {
	return d.do("read", d.inner.ReadAck)
}

func (d *deadlineBus) ReadNack() (byte, error) {
	return d.do("read", d.inner.ReadNack)
}

func (d *deadlineBus) Stop() error {
	_, err := d.do("stop", func() (byte, error) { return 0, d.inner.Stop() })
	return err
}
