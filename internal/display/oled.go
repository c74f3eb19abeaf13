// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display renders the leveler status on an SSD1306 OLED.
package display

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/leveler/internal/logger"
	"github.com/relabs-tech/leveler/internal/telemetry"
)

const (
	width  = 128
	height = 64
)

// Panel is the drawable device. *ssd1306.Dev satisfies it.
type Panel interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

type Display struct {
	panel    Panel
	store    *telemetry.Store
	interval time.Duration
	log      *zap.Logger

	close   func() error
	lastSeq uint64
	drawn   bool
}

// New returns a display refreshed from store every interval.
func New(panel Panel, store *telemetry.Store, interval time.Duration, log *zap.Logger) *Display {
	return &Display{
		panel:    panel,
		store:    store,
		interval: interval,
		log:      logger.OrNop(log),
	}
}

// Open initializes the OLED on the named I2C bus at its default address.
func Open(busName string, store *telemetry.Store, interval time.Duration, log *zap.Logger) (*Display, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("display: periph init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("display: open I2C bus %q: %w", busName, err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("display: init ssd1306: %w", err)
	}
	d := New(dev, store, interval, log)
	d.close = func() error {
		dev.Halt()
		return bus.Close()
	}
	return d, nil
}

// Close blanks the panel and releases the bus.
func (d *Display) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

// Splash shows the boot screen.
func (d *Display) Splash() error {
	img, dr := canvas()
	dr.Dot = fixed.P(22, 26)
	dr.DrawBytes([]byte("Leveler"))
	dr.Dot = fixed.P(8, 43)
	dr.DrawBytes([]byte("Capturing base"))
	return d.panel.Draw(d.panel.Bounds(), img, image.Point{})
}

// Refresh draws the latest frame if it changed since the last draw.
func (d *Display) Refresh() error {
	f, ok := d.store.Latest()
	if d.drawn && (!ok || f.Seq == d.lastSeq) {
		return nil
	}
	if err := d.panel.Draw(d.panel.Bounds(), Render(f, ok), image.Point{}); err != nil {
		return fmt.Errorf("display: draw: %w", err)
	}
	d.drawn = true
	d.lastSeq = f.Seq
	return nil
}

// Run refreshes on a ticker until ctx is done.
func (d *Display) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Refresh(); err != nil {
				d.log.Warn("display: refresh failed", zap.Error(err))
			}
		}
	}
}

// Render draws the status page for f.
func Render(f telemetry.Frame, ok bool) *image1bit.VerticalLSB {
	img, dr := canvas()

	if !ok {
		dr.Dot = fixed.P(0, 26)
		dr.DrawBytes([]byte("Leveler"))
		dr.Dot = fixed.P(0, 39)
		dr.DrawBytes([]byte("Waiting..."))
		return img
	}

	dr.Dot = fixed.P(0, 13)
	dr.DrawBytes([]byte(fmt.Sprintf("Ay:%6.2f g", f.Sample.Ay)))
	dr.Dot = fixed.P(0, 26)
	dr.DrawBytes([]byte(fmt.Sprintf("B: %6.2f g", f.Baseline.Ay)))
	dr.Dot = fixed.P(0, 39)
	dr.DrawBytes([]byte(fmt.Sprintf("PWM:%5d P:%02X", f.Duty, f.Pattern)))
	dr.Dot = fixed.P(0, 52)
	if f.Stopped {
		dr.DrawBytes([]byte("** STOP **"))
	} else {
		dr.DrawBytes([]byte(f.State))
	}
	return img
}

func canvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, width, height))
	return img, &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
}
