// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

// recordingHardware logs every register write in order.
type recordingHardware struct {
	mu     sync.Mutex
	writes []string
	fail   error
}

func (r *recordingHardware) WritePattern(p uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.writes = append(r.writes, fmt.Sprintf("port=0x%02X", p))
	return nil
}

func (r *recordingHardware) WriteDuty(d uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.writes = append(r.writes, fmt.Sprintf("duty=%d", d))
	return nil
}

func (r *recordingHardware) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

func TestInitWritesBoth(t *testing.T) {
	hw := &recordingHardware{}
	o := NewOutput(hw, nil)
	require.NoError(t, o.Init(PowerOn))
	assert.Equal(t, []string{"port=0xFF", "duty=0"}, hw.log())
	assert.Equal(t, PowerOn, o.State())
}

func TestUpdateWritesOnlyChanges(t *testing.T) {
	hw := &recordingHardware{}
	o := NewOutput(hw, nil)
	require.NoError(t, o.Init(PowerOn))

	require.NoError(t, o.Set(State{Pattern: PatternBelow, Duty: DutyBelow}))
	require.NoError(t, o.Set(State{Pattern: PatternBelow, Duty: DutyBelow}))
	require.NoError(t, o.Update(func(s State) State {
		s.Duty = DutySettle
		return s
	}))

	assert.Equal(t, []string{"port=0xFF", "duty=0", "port=0x01", "duty=10", "duty=1320"}, hw.log())
	assert.Equal(t, State{Pattern: PatternBelow, Duty: DutySettle}, o.State())
}

func TestForceStopHoldsOutputs(t *testing.T) {
	hw := &recordingHardware{}
	o := NewOutput(hw, nil)
	require.NoError(t, o.Init(State{Pattern: PatternAbove, Duty: DutyAbove}))

	var changes []bool
	o.OnChange(func(s State, stopped bool) { changes = append(changes, stopped) })

	require.NoError(t, o.ForceStop(50*time.Millisecond))
	assert.True(t, o.Stopped())
	assert.Equal(t, State{Pattern: PatternInactive, Duty: DutyAbove}, o.State())

	called := false
	err := o.Update(func(s State) State { called = true; return s })
	assert.True(t, errors.Is(err, ErrStopped))
	assert.False(t, called)

	start := time.Now()
	require.NoError(t, o.WaitReady(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.False(t, o.Stopped())

	require.NoError(t, o.Set(State{Pattern: PatternIdle, Duty: DutyLevel}))
	assert.Equal(t, []bool{true, false}, changes)
	assert.Equal(t, []string{"port=0x40", "duty=1340", "port=0x00", "port=0xFF", "duty=1050"}, hw.log())
}

func TestForceStopUsesClock(t *testing.T) {
	now := time.Unix(1000, 0)
	o := NewOutput(&recordingHardware{}, nil)
	o.now = func() time.Time { return now }

	require.NoError(t, o.ForceStop(time.Second))
	now = now.Add(999 * time.Millisecond)
	assert.True(t, o.Stopped())
	now = now.Add(time.Millisecond)
	assert.False(t, o.Stopped())
}

func TestForceStopNeverShortensHold(t *testing.T) {
	now := time.Unix(1000, 0)
	o := NewOutput(&recordingHardware{}, nil)
	o.now = func() time.Time { return now }

	require.NoError(t, o.ForceStop(time.Second))
	require.NoError(t, o.ForceStop(10*time.Millisecond))
	now = now.Add(500 * time.Millisecond)
	assert.True(t, o.Stopped())
}

func TestForceStopHardwareFailureStillHolds(t *testing.T) {
	hw := &recordingHardware{fail: errors.New("gpio gone")}
	o := NewOutput(hw, nil)

	assert.Error(t, o.ForceStop(time.Second))
	assert.True(t, o.Stopped())
}

func TestWaitReadyCancelled(t *testing.T) {
	o := NewOutput(&recordingHardware{}, nil)
	require.NoError(t, o.ForceStop(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(o.WaitReady(ctx), context.DeadlineExceeded))
}

func TestPeriphHardware(t *testing.T) {
	var port [8]gpio.PinOut
	pins := make([]*gpiotest.Pin, 8)
	for i := range port {
		pins[i] = &gpiotest.Pin{N: fmt.Sprintf("P%d", i)}
		port[i] = pins[i]
	}
	pwm := &gpiotest.Pin{N: "PWM"}
	hw := NewPeriphHardware(port, pwm, DefaultTop, DefaultFrequency)

	require.NoError(t, hw.WritePattern(PatternAbove))
	for i, p := range pins {
		assert.Equal(t, i == 6, bool(p.L), "bit %d", i)
	}

	require.NoError(t, hw.WriteDuty(DutyLevel))
	assert.Equal(t, 50*physic.Hertz, pwm.F)
	assert.Equal(t, gpio.Duty(int64(1050)*int64(gpio.DutyMax)/20000), pwm.D)

	require.NoError(t, hw.WritePattern(PatternIdle))
	for _, p := range pins {
		assert.Equal(t, gpio.High, p.L)
	}
}

func TestBCM(t *testing.T) {
	tests := []struct {
		in   string
		want uint8
		ok   bool
	}{
		{"GPIO17", 17, true},
		{"gpio5", 5, true},
		{"18", 18, true},
		{"GPIO99", 0, false},
		{"P1_12", 0, false},
	}
	for _, tt := range tests {
		n, err := BCM(tt.in)
		if tt.ok {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, n)
		} else {
			assert.Error(t, err, tt.in)
		}
	}
}
