// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/leveler/internal/actuator"
	"github.com/relabs-tech/leveler/internal/config"
)

func withHardware(t *testing.T, hw actuator.Hardware) {
	t.Helper()
	prev := openHardware
	openHardware = func(*config.Config) (actuator.Hardware, func(), error) {
		return hw, func() {}, nil
	}
	t.Cleanup(func() { openHardware = prev })
}

func TestRunLevelerOpenFailureResetsPort(t *testing.T) {
	hw := &hwLog{}
	withHardware(t, hw)

	cfg := config.Default()
	cfg.ActuatorBackend = "none"
	cfg.I2CBackend = "spi"

	err := runLeveler(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown I2C backend "spi"`)
	assert.Equal(t, []string{"port=0x00"}, hw.log())
}
