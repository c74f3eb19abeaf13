// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"bytes"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/leveler/internal/imu"
	"github.com/relabs-tech/leveler/internal/telemetry"
)

type fakePanel struct {
	draws []*image1bit.VerticalLSB
	err   error
}

func (p *fakePanel) Bounds() image.Rectangle { return image.Rect(0, 0, width, height) }

func (p *fakePanel) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	if p.err != nil {
		return p.err
	}
	p.draws = append(p.draws, src.(*image1bit.VerticalLSB))
	return nil
}

func lit(img *image1bit.VerticalLSB) int {
	n := 0
	for _, b := range img.Pix {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func TestRefreshOnlyOnNewFrames(t *testing.T) {
	store := &telemetry.Store{}
	panel := &fakePanel{}
	d := New(panel, store, time.Second, nil)

	require.NoError(t, d.Refresh())
	require.NoError(t, d.Refresh())
	assert.Len(t, panel.draws, 1, "waiting page drawn once")

	store.Put(telemetry.Frame{Sample: imu.ScaledSample{Ay: -0.42}, State: "SETTLE", Duty: 1050, Pattern: 0xFF})
	require.NoError(t, d.Refresh())
	require.NoError(t, d.Refresh())
	assert.Len(t, panel.draws, 2)

	store.SetStopped(true, 0x00)
	require.NoError(t, d.Refresh())
	assert.Len(t, panel.draws, 3)
}

func TestRenderPages(t *testing.T) {
	waiting := Render(telemetry.Frame{}, false)
	assert.Greater(t, lit(waiting), 0)

	f := telemetry.Frame{Sample: imu.ScaledSample{Ay: 0.5}, State: "ABOVE_THRESHOLD", Duty: 1340, Pattern: 0x40}
	running := Render(f, true)
	f.Stopped = true
	stopped := Render(f, true)

	assert.Equal(t, image.Rect(0, 0, width, height), running.Bounds())
	assert.False(t, bytes.Equal(running.Pix, stopped.Pix))
	assert.False(t, bytes.Equal(running.Pix, waiting.Pix))
}

func TestSplashAndDrawError(t *testing.T) {
	panel := &fakePanel{}
	d := New(panel, &telemetry.Store{}, time.Second, nil)
	require.NoError(t, d.Splash())
	assert.Len(t, panel.draws, 1)

	panel.err = errors.New("i2c nack")
	assert.Error(t, d.Refresh())
	assert.NoError(t, d.Close())
}
