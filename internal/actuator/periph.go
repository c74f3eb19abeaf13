// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// PeriphHardware drives eight port bits and one PWM pin through periph.
type PeriphHardware struct {
	port [8]gpio.PinOut
	pwm  gpio.PinOut
	top  uint16
	freq physic.Frequency
}

// NewPeriphHardware wraps already resolved pins. Bit i of a pattern drives port[i].
func NewPeriphHardware(port [8]gpio.PinOut, pwm gpio.PinOut, top uint16, hz int) *PeriphHardware {
	return &PeriphHardware{
		port: port,
		pwm:  pwm,
		top:  top,
		freq: physic.Frequency(hz) * physic.Hertz,
	}
}

// OpenPeriphHardware resolves pins by name.
func OpenPeriphHardware(portPins [8]string, pwmPin string, top uint16, hz int) (*PeriphHardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("actuator: periph host init: %w", err)
	}

	var port [8]gpio.PinOut
	for i, name := range portPins {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("actuator: port bit %d pin %q not found", i, name)
		}
		port[i] = p
	}

	pwm := gpioreg.ByName(pwmPin)
	if pwm == nil {
		return nil, fmt.Errorf("actuator: PWM pin %q not found", pwmPin)
	}

	return NewPeriphHardware(port, pwm, top, hz), nil
}

// WritePattern drives each port pin from its bit.
func (h *PeriphHardware) WritePattern(p uint8) error {
	for i, pin := range h.port {
		level := gpio.Low
		if p&(1<<uint(i)) != 0 {
			level = gpio.High
		}
		if err := pin.Out(level); err != nil {
			return fmt.Errorf("port bit %d (%s): %w", i, pin, err)
		}
	}
	return nil
}

// WriteDuty sets the PWM high time to d/(top+1) of the frame.
func (h *PeriphHardware) WriteDuty(d uint16) error {
	return h.pwm.PWM(dutyFraction(d, h.top), h.freq)
}

func dutyFraction(d, top uint16) gpio.Duty {
	return gpio.Duty(int64(d) * int64(gpio.DutyMax) / (int64(top) + 1))
}
