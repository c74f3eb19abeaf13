// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"errors"
	"syscall"
)

// classifyErrno maps i2c-dev errno values. The kernel reports a missing ACK
// as EREMOTEIO or ENXIO depending on the adapter driver.
func classifyErrno(err error) error {
	switch {
	case errors.Is(err, syscall.ETIMEDOUT):
		return ErrTimeout
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.EAGAIN):
		return ErrBusBusy
	default:
		return ErrNoAck
	}
}
