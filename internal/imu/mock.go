// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"context"
	"math"
	"time"
)

// MockSource simulates a platform rocking about the X axis: Ay follows a
// sine of the given amplitude and period while Az carries the rest of 1 g.
type MockSource struct {
	Amplitude float64 // g
	Period    time.Duration

	start time.Time
	now   func() time.Time
}

// NewMockSource returns a source rocking ±amplitude g every period.
func NewMockSource(amplitude float64, period time.Duration) *MockSource {
	return &MockSource{Amplitude: amplitude, Period: period, now: time.Now}
}

// Init starts the clock.
func (m *MockSource) Init(ctx context.Context) error {
	m.start = m.now()
	return ctx.Err()
}

// ReadRaw returns the simulated sample for the current time.
func (m *MockSource) ReadRaw(ctx context.Context) (RawSample, error) {
	if err := ctx.Err(); err != nil {
		return RawSample{}, err
	}
	if m.start.IsZero() {
		m.start = m.now()
	}
	t := m.now().Sub(m.start).Seconds()
	w := 2 * math.Pi / m.Period.Seconds()

	ay := m.Amplitude * math.Sin(w*t)
	az := math.Sqrt(math.Max(0, 1-ay*ay))
	// angular rate of the tilt, in °/s at FS_SEL 3
	rate := m.Amplitude * w * math.Cos(w*t) * 180 / math.Pi

	return RawSample{
		Ay:   counts(ay * AccelDivisor),
		Az:   counts(az * AccelDivisor),
		Temp: -3920, // 25 °C
		Gx:   counts(rate * gyroDivisors[3]),
	}, nil
}

func counts(v float64) int16 {
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
}
