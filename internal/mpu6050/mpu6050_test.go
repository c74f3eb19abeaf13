// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mpu6050

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/relabs-tech/leveler/internal/imu"
	"github.com/relabs-tech/leveler/internal/transport"
)

// recordingBus logs every primitive and serves reads from data.
type recordingBus struct {
	ops    []string
	data   []byte
	failOn string
}

func (r *recordingBus) op(s string) error {
	r.ops = append(r.ops, s)
	if r.failOn != "" && s == r.failOn {
		return &transport.Error{Op: s, Kind: transport.ErrNoAck}
	}
	return nil
}

func (r *recordingBus) Start(addr byte) error {
	return r.op(fmt.Sprintf("start %02X", addr))
}

func (r *recordingBus) RepeatedStart(addr byte) error {
	return r.op(fmt.Sprintf("rstart %02X", addr))
}

func (r *recordingBus) Write(b byte) error {
	return r.op(fmt.Sprintf("w %02X", b))
}

func (r *recordingBus) read(kind string) (byte, error) {
	if err := r.op(kind); err != nil {
		return 0, err
	}
	if len(r.data) == 0 {
		return 0, nil
	}
	b := r.data[0]
	r.data = r.data[1:]
	return b, nil
}

func (r *recordingBus) ReadAck() (byte, error)  { return r.read("ack") }
func (r *recordingBus) ReadNack() (byte, error) { return r.read("nack") }
func (r *recordingBus) Stop() error             { return r.op("stop") }

func newTestDev(bus transport.Bus) (*Dev, *[]time.Duration) {
	var slept []time.Duration
	d := New(bus, Opts{})
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return ctx.Err()
	}
	return d, &slept
}

func TestInitWritesBootSequence(t *testing.T) {
	bus := &recordingBus{}
	d, slept := newTestDev(bus)

	require.NoError(t, d.Init(context.Background()))

	assert.Equal(t, []time.Duration{150 * time.Millisecond}, *slept)
	assert.Equal(t, []string{
		"start D0", "w 19", "w 07", "stop",
		"start D0", "w 6B", "w 01", "stop",
		"start D0", "w 1A", "w 00", "stop",
		"start D0", "w 1B", "w 18", "stop",
		"start D0", "w 38", "w 01", "stop",
	}, bus.ops)
}

func TestInitDelayPrecedesWrites(t *testing.T) {
	bus := &recordingBus{}
	d := New(bus, Opts{})
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		assert.Empty(t, bus.ops, "bus touched before power-up delay")
		return nil
	}
	require.NoError(t, d.Init(context.Background()))
}

func TestInitCancelled(t *testing.T) {
	bus := &recordingBus{}
	d, _ := newTestDev(bus)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Init(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, bus.ops)
}

func TestInitPropagatesTransportError(t *testing.T) {
	bus := &recordingBus{failOn: "w 6B"}
	d, _ := newTestDev(bus)

	err := d.Init(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrNoAck))
	// the failed transaction is released
	assert.Equal(t, "stop", bus.ops[len(bus.ops)-1])
}

func TestReadRawBurst(t *testing.T) {
	bus := &recordingBus{data: []byte{
		0x00, 0x00, // ax 0
		0xC0, 0x00, // ay -16384
		0x40, 0x00, // az 16384
		0xF0, 0xB0, // temp -3920
		0x00, 0xA4, // gx 164
		0xFF, 0x5C, // gy -164
		0x7F, 0xFF, // gz 32767
	}}
	d, _ := newTestDev(bus)

	raw, err := d.ReadRaw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, imu.RawSample{Ax: 0, Ay: -16384, Az: 16384, Temp: -3920, Gx: 164, Gy: -164, Gz: 32767}, raw)

	want := []string{"start D0", "w 3B", "rstart D1"}
	for i := 0; i < 13; i++ {
		want = append(want, "ack")
	}
	want = append(want, "nack", "stop")
	assert.Equal(t, want, bus.ops)

	s := imu.Scale(raw, imu.AccelDivisor, imu.GyroDivisor(d.Config().GyroConfig))
	assert.Equal(t, -1.0, s.Ay)
	assert.InDelta(t, 10.0, s.Gx, 1e-9)
}

func TestReadRawErrorReturnsNoSample(t *testing.T) {
	tests := []string{"start D0", "w 3B", "rstart D1", "ack", "nack", "stop"}
	for _, failOn := range tests {
		t.Run(failOn, func(t *testing.T) {
			bus := &recordingBus{failOn: failOn, data: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}}
			d, _ := newTestDev(bus)

			raw, err := d.ReadRaw(context.Background())
			require.Error(t, err)
			assert.Equal(t, imu.RawSample{}, raw)

			var te *transport.Error
			assert.True(t, errors.As(err, &te))
			assert.Equal(t, "stop", bus.ops[len(bus.ops)-1])
		})
	}
}

func TestReadRawOverTxnBus(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x68, W: []byte{0x3B}, R: []byte{0x01, 0x00, 0xFF, 0xFF, 0x40, 0x00, 0, 0, 0, 0, 0, 0, 0x80, 0x00}},
	}}
	tx := func(addr uint16, w, r []byte) error { return pb.Tx(addr, w, r) }
	d, _ := newTestDev(transport.NewTxnBus(tx, BurstLen))

	raw, err := d.ReadRaw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int16(256), raw.Ax)
	assert.Equal(t, int16(-1), raw.Ay)
	assert.Equal(t, int16(-32768), raw.Gz)
	assert.NoError(t, pb.Close())
}

func TestRegistersReportBootValues(t *testing.T) {
	regs := Registers(DefaultDeviceConfig())
	byName := map[string]RegisterInfo{}
	for _, r := range regs {
		byName[r.Name] = r
	}

	assert.Equal(t, "0x07", byName["SMPLRT_DIV"].Written)
	assert.Equal(t, "0x01", byName["PWR_MGMT_1"].Written)
	assert.Equal(t, "0x00", byName["CONFIG"].Written)
	assert.Equal(t, "0x18", byName["GYRO_CONFIG"].Written)
	assert.Equal(t, "0x01", byName["INT_ENABLE"].Written)
	assert.Empty(t, byName["ACCEL_XOUT_H"].Written)
	assert.Equal(t, 1000, DefaultDeviceConfig().OutputRateHz())
}

func TestReadReg(t *testing.T) {
	bus := &recordingBus{data: []byte{0x68}}
	d, _ := newTestDev(bus)

	v, err := d.ReadReg(context.Background(), RegWhoAmI)
	require.NoError(t, err)
	assert.Equal(t, byte(0x68), v)
	assert.Equal(t, []string{"start D0", "w 75", "rstart D1", "nack", "stop"}, bus.ops)
}

func TestReadRegError(t *testing.T) {
	bus := &recordingBus{failOn: "rstart D1"}
	d, _ := newTestDev(bus)

	_, err := d.ReadReg(context.Background(), RegGyroConfig)
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrNoAck))
	assert.Equal(t, "stop", bus.ops[len(bus.ops)-1])
}
