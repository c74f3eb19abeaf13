// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stianeikeland/go-rpio/v4"
)

// RPIOHardware drives the outputs through /dev/gpiomem with go-rpio.
// The PWM pin must be a hardware PWM pin (BCM 12, 13, 18 or 19).
type RPIOHardware struct {
	port  [8]rpio.Pin
	pwm   rpio.Pin
	cycle uint32
}

// OpenRPIOHardware maps GPIO memory and configures the pins. Pin names are
// BCM numbers, optionally prefixed with "GPIO".
func OpenRPIOHardware(portPins [8]string, pwmPin string, top uint16, hz int) (*RPIOHardware, error) {
	var port [8]rpio.Pin
	for i, name := range portPins {
		n, err := BCM(name)
		if err != nil {
			return nil, fmt.Errorf("actuator: port bit %d: %w", i, err)
		}
		port[i] = rpio.Pin(n)
	}
	pn, err := BCM(pwmPin)
	if err != nil {
		return nil, fmt.Errorf("actuator: PWM pin: %w", err)
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("actuator: rpio open: %w", err)
	}

	for _, p := range port {
		p.Output()
	}

	h := &RPIOHardware{port: port, pwm: rpio.Pin(pn), cycle: uint32(top) + 1}
	h.pwm.Mode(rpio.Pwm)
	h.pwm.Freq(hz * int(h.cycle))
	return h, nil
}

// WritePattern drives each port pin from its bit.
func (h *RPIOHardware) WritePattern(p uint8) error {
	for i, pin := range h.port {
		if p&(1<<uint(i)) != 0 {
			pin.High()
		} else {
			pin.Low()
		}
	}
	return nil
}

// WriteDuty sets the PWM high time to d/(top+1) of the frame.
func (h *RPIOHardware) WriteDuty(d uint16) error {
	h.pwm.DutyCycle(uint32(d), h.cycle)
	return nil
}

// Close unmaps GPIO memory.
func (h *RPIOHardware) Close() error {
	return rpio.Close()
}

// BCM parses "GPIO17" or "17".
func BCM(name string) (uint8, error) {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "GPIO")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n > 53 {
		return 0, fmt.Errorf("invalid BCM pin %q", name)
	}
	return uint8(n), nil
}
