// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "context"

// AccelDivisor converts accelerometer counts to g at ±2 g full scale.
const AccelDivisor = 16384.0

// gyroDivisors are the LSB per °/s for FS_SEL 0..3.
var gyroDivisors = [4]float64{131.0, 65.5, 32.8, 16.4}

// RawSample is one burst read: seven big-endian words starting at ACCEL_XOUT_H.
type RawSample struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Temp int16 `json:"temp"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// ScaledSample is a RawSample in physical units.
type ScaledSample struct {
	Ax float64 `json:"ax_g"`
	Ay float64 `json:"ay_g"`
	Az float64 `json:"az_g"`

	Gx float64 `json:"gx_dps"`
	Gy float64 `json:"gy_dps"`
	Gz float64 `json:"gz_dps"`

	TempC float64 `json:"temp_c"`
}

// Scale converts raw counts with the given divisors. Both must be nonzero.
func Scale(raw RawSample, accelDiv, gyroDiv float64) ScaledSample {
	return ScaledSample{
		Ax:    float64(raw.Ax) / accelDiv,
		Ay:    float64(raw.Ay) / accelDiv,
		Az:    float64(raw.Az) / accelDiv,
		Gx:    float64(raw.Gx) / gyroDiv,
		Gy:    float64(raw.Gy) / gyroDiv,
		Gz:    float64(raw.Gz) / gyroDiv,
		TempC: TempCelsius(raw.Temp),
	}
}

// TempCelsius applies the datasheet formula for TEMP_OUT.
func TempCelsius(raw int16) float64 {
	return float64(raw)/340.0 + 36.53
}

// GyroDivisor returns the sensitivity matching a GYRO_CONFIG value.
// Only FS_SEL (bits 4:3) is considered.
func GyroDivisor(gyroConfig byte) float64 {
	return gyroDivisors[(gyroConfig>>3)&0x03]
}

// RawSource produces raw samples.
type RawSource interface {
	ReadRaw(ctx context.Context) (RawSample, error)
}
