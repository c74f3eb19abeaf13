// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/leveler/internal/imu"
)

func TestEncodeLine(t *testing.T) {
	s := imu.ScaledSample{Ax: 0, Ay: -1, Az: 1, Gx: 10, Gy: -10.5, Gz: 1997.99}
	line, err := Encode(s)
	require.NoError(t, err)

	want := " Ax = 0.00 g\t Ay = -1.00 g\t Az = 1.00 g\t" +
		" Gx = 10.00\xF8/s\t Gy = -10.50\xF8/s\t Gz = 1997.99\xF8/s\r\n"
	assert.Equal(t, want, line)
}

func TestEncodeRoundsToNearest(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		// 1.005 is stored as 1.00499999999999989... so nearest is 1.00
		{1.005, "1.00"},
		{1.006, "1.01"},
		{0.125, "0.12"}, // exact half, round half to even
		{0.375, "0.38"},
		{-0.004, "-0.00"},
		{2.0, "2.00"},
		{-1997.99, "-1997.99"},
	}
	for _, tt := range tests {
		got, err := AppendValue(nil, "Ax", tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(got), "value %v", tt.v)
	}
}

func TestEncodeScenarioAx(t *testing.T) {
	line, err := Encode(imu.ScaledSample{Ax: 1.005})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, " Ax = 1.00 g\t"), line)
}

func TestEncodeIsDeterministic(t *testing.T) {
	s := imu.ScaledSample{Ax: 0.123, Ay: -0.987, Az: 1.001, Gx: 3.3, Gy: -4.4, Gz: 5.5}
	a, err := Encode(s)
	require.NoError(t, err)
	b, err := Encode(s)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeRejectsUnrepresentable(t *testing.T) {
	tests := []struct {
		name  string
		s     imu.ScaledSample
		field string
	}{
		{"nan", imu.ScaledSample{Ay: math.NaN()}, "Ay"},
		{"inf", imu.ScaledSample{Gx: math.Inf(1)}, "Gx"},
		{"too wide", imu.ScaledSample{Gz: 1234567.0}, "Gz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Encode(tt.s)
			assert.Empty(t, line)

			var ee *EncodingError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, tt.field, ee.Field)
		})
	}
}

func TestAppendLineLeavesDstOnError(t *testing.T) {
	prefix := []byte("prev")
	out, err := AppendLine(prefix, imu.ScaledSample{Gz: math.NaN()})
	assert.Error(t, err)
	assert.Equal(t, "prev", string(out))
}

func TestEncodeFitsLineMax(t *testing.T) {
	// widest values that still fit each field
	s := imu.ScaledSample{Ax: -99999.99, Ay: -99999.99, Az: -99999.99, Gx: -99999.99, Gy: -99999.99, Gz: -99999.99}
	line, err := Encode(s)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(line), LineMax)
}
