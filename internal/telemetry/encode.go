// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry renders samples for the serial line and mirrors the
// latest frame to MQTT and websocket clients.
package telemetry

import (
	"fmt"
	"math"
	"strconv"

	"github.com/relabs-tech/leveler/internal/imu"
)

const (
	// FieldWidth is the minimum width of a rendered value.
	FieldWidth = 3
	// FieldPrecision is the number of fractional digits.
	FieldPrecision = 2
	// FieldMax is the widest value that fits a field buffer.
	FieldMax = 9

	// Degree is the code page 437 degree sign used by the serial terminal.
	Degree = "\xF8"

	// LineMax bounds one encoded line.
	LineMax = 6 * (7 + FieldMax + 4)
)

// EncodingError reports a value that does not fit its field.
type EncodingError struct {
	Field string
	Value float64
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("telemetry: %s = %v does not fit a %d character field", e.Field, e.Value, FieldMax)
}

type field struct {
	label string
	unit  string
	value func(imu.ScaledSample) float64
	last  bool
}

var fields = [6]field{
	{"Ax", " g", func(s imu.ScaledSample) float64 { return s.Ax }, false},
	{"Ay", " g", func(s imu.ScaledSample) float64 { return s.Ay }, false},
	{"Az", " g", func(s imu.ScaledSample) float64 { return s.Az }, false},
	{"Gx", Degree + "/s", func(s imu.ScaledSample) float64 { return s.Gx }, false},
	{"Gy", Degree + "/s", func(s imu.ScaledSample) float64 { return s.Gy }, false},
	{"Gz", Degree + "/s", func(s imu.ScaledSample) float64 { return s.Gz }, true},
}

// AppendValue appends v with two fractional digits, rounded to nearest,
// right-justified to FieldWidth.
func AppendValue(dst []byte, name string, v float64) ([]byte, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return dst, &EncodingError{Field: name, Value: v}
	}

	var buf [32]byte
	num := strconv.AppendFloat(buf[:0], v, 'f', FieldPrecision, 64)
	if len(num) > FieldMax {
		return dst, &EncodingError{Field: name, Value: v}
	}
	for i := len(num); i < FieldWidth; i++ {
		dst = append(dst, ' ')
	}
	return append(dst, num...), nil
}

// AppendLine appends the serial line for s. On error dst is returned
// unchanged.
func AppendLine(dst []byte, s imu.ScaledSample) ([]byte, error) {
	start := len(dst)
	for _, f := range fields {
		dst = append(dst, ' ')
		dst = append(dst, f.label...)
		dst = append(dst, " = "...)

		var err error
		dst, err = AppendValue(dst, f.label, f.value(s))
		if err != nil {
			return dst[:start], err
		}

		dst = append(dst, f.unit...)
		if f.last {
			dst = append(dst, '\r', '\n')
		} else {
			dst = append(dst, '\t')
		}
	}
	return dst, nil
}

// Encode returns the serial line for s.
func Encode(s imu.ScaledSample) (string, error) {
	var buf [LineMax]byte
	line, err := AppendLine(buf[:0], s)
	if err != nil {
		return "", err
	}
	return string(line), nil
}
