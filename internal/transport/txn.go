// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"errors"
	"sync"
)

// TxFunc performs one combined write-then-read transaction with a 7-bit
// device address. Either slice may be empty.
type TxFunc func(addr uint16, w, r []byte) error

// txnBus maps the primitive sequence onto a transaction-oriented driver.
// Writes are buffered until Stop or the first read; the first read after a
// read-mode repeated start fetches the whole burst in one transaction and the
// remaining reads are served from it.
type txnBus struct {
	mu    sync.Mutex
	tx    TxFunc
	burst int

	open    bool
	addr    byte
	reading bool
	w       []byte
	r       []byte
	pos     int
	fetched bool
	done    bool
}

// NewTxnBus returns a primitive Bus over tx. burst is the number of bytes
// fetched by the first read of a read phase.
func NewTxnBus(tx TxFunc, burst int) Bus {
	if burst <= 0 {
		burst = 14
	}
	return &txnBus{tx: tx, burst: burst}
}

func (b *txnBus) Start(addr byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		return newError("start", addr, ErrSequence, nil)
	}
	b.reset()
	b.open = true
	b.addr = addr
	b.reading = addr&1 == 1
	return nil
}

func (b *txnBus) RepeatedStart(addr byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open || b.reading || addr>>1 != b.addr>>1 {
		return newError("repeated start", addr, ErrSequence, nil)
	}
	if addr&1 == 0 {
		// write-mode restart: flush what we have and begin a new write phase
		if err := b.flush(); err != nil {
			return err
		}
		b.addr = addr
		return nil
	}
	b.addr = addr
	b.reading = true
	return nil
}

func (b *txnBus) Write(v byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open || b.reading {
		return newError("write", b.addr, ErrSequence, nil)
	}
	b.w = append(b.w, v)
	return nil
}

func (b *txnBus) ReadAck() (byte, error) {
	return b.read(false)
}

func (b *txnBus) ReadNack() (byte, error) {
	return b.read(true)
}

func (b *txnBus) read(last bool) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open || !b.reading || b.done {
		return 0, newError("read", b.addr, ErrSequence, nil)
	}
	if !b.fetched {
		n := b.burst
		if last {
			// a read phase that opens with a NACK is a single byte
			n = 1
		}
		b.r = make([]byte, n)
		if err := b.tx(uint16(b.addr>>1), b.w, b.r); err != nil {
			b.done = true
			return 0, newError("read", b.addr, classify(err), err)
		}
		b.fetched = true
		b.w = b.w[:0]
	}
	if b.pos >= len(b.r) {
		return 0, newError("read", b.addr, ErrSequence, nil)
	}
	v := b.r[b.pos]
	b.pos++
	if last {
		b.done = true
	}
	return v, nil
}

// Stop ends the transaction. It is safe to call when no transaction is open.
func (b *txnBus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	var err error
	if !b.reading {
		err = b.flush()
	}
	b.reset()
	return err
}

func (b *txnBus) flush() error {
	if len(b.w) == 0 {
		return nil
	}
	w := b.w
	b.w = nil
	if err := b.tx(uint16(b.addr>>1), w, nil); err != nil {
		return newError("write", b.addr, classify(err), err)
	}
	return nil
}

func (b *txnBus) reset() {
	b.open = false
	b.addr = 0
	b.reading = false
	b.w = nil
	b.r = nil
	b.pos = 0
	b.fetched = false
	b.done = false
}

// classify maps a backend error onto one of the transport kinds.
func classify(err error) error {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	for _, k := range []error{ErrBusBusy, ErrNoAck, ErrTimeout, ErrSequence} {
		if errors.Is(err, k) {
			return k
		}
	}
	return classifyErrno(err)
}
