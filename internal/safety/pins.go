// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package safety

import (
	"fmt"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// OpenPeriphEdge configures a periph pin as a pulled-down rising-edge input.
// host.Init must have run.
func OpenPeriphEdge(name string) (gpio.PinIn, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("safety: no gpio pin %q", name)
	}
	if err := p.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("safety: configure %s: %w", name, err)
	}
	return p, nil
}

// RPIOEdge polls the rpio edge detect register. rpio.Open must have run.
type RPIOEdge struct {
	pin  rpio.Pin
	poll time.Duration
}

// NewRPIOEdge configures BCM pin n for rising-edge detection.
func NewRPIOEdge(n uint8) *RPIOEdge {
	pin := rpio.Pin(n)
	pin.Input()
	pin.PullDown()
	pin.Detect(rpio.RiseEdge)
	return &RPIOEdge{pin: pin, poll: time.Millisecond}
}

func (e *RPIOEdge) WaitForEdge(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if e.pin.EdgeDetected() {
			return true
		}
		if timeout >= 0 && time.Now().After(deadline) {
			return false
		}
		time.Sleep(e.poll)
	}
}

// Close disables edge detection.
func (e *RPIOEdge) Close() {
	e.pin.Detect(rpio.NoEdge)
}
