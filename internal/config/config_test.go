// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leveler.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, byte(0x18), cfg.IMUGyroConfig)
	assert.Equal(t, 150*time.Millisecond, cfg.IMUSettleDelay)
	assert.Equal(t, 9600, cfg.SerialBaudRate)
	assert.Equal(t, uint16(19999), cfg.PWMTop)
	assert.Equal(t, 0.3, cfg.ControlBand)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
# leveler
I2C_BACKEND=embd
I2C_BUS=1
IMU_GYRO_CONFIG=0x00
CONTROL_BAND=0.5
CONTROL_LEGACY_BELOW_GUARD=true
SAFETY_HOLD_MS=250
ACTUATOR_PORT_PINS=GPIO1,GPIO2,GPIO3,GPIO4,GPIO5,GPIO6,GPIO7,GPIO8
SERIAL_PORT=-
MQTT_BROKER=tcp://localhost:1883
MQTT_CLIENT_ID_WEB=bench-web
LOG_LEVEL=debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "embd", cfg.I2CBackend)
	assert.Equal(t, "1", cfg.I2CBus)
	assert.Equal(t, byte(0x00), cfg.IMUGyroConfig)
	assert.Equal(t, 0.5, cfg.ControlBand)
	assert.True(t, cfg.ControlLegacyBelowGuard)
	assert.Equal(t, 250*time.Millisecond, cfg.SafetyHold)
	assert.Equal(t, "GPIO8", cfg.ActuatorPorts[7])
	assert.Equal(t, "-", cfg.SerialPort)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "bench-web", cfg.MQTTClientIDWeb)
	assert.Equal(t, "debug", cfg.LogLevel)
	// untouched keys keep their defaults
	assert.Equal(t, 14, cfg.I2CBurst)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "NOPE=1\n"},
		{"backend", "I2C_BACKEND=spi\n"},
		{"burst too small", "I2C_BURST=12\n"},
		{"gyro reserved bits", "IMU_GYRO_CONFIG=0xE0\n"},
		{"dlpf range", "IMU_DLPF_CFG=9\n"},
		{"negative band", "CONTROL_BAND=-0.3\n"},
		{"bool", "CONTROL_LEGACY_BELOW_GUARD=maybe\n"},
		{"port count", "ACTUATOR_PORT_PINS=GPIO1,GPIO2\n"},
		{"pwm top", "PWM_TOP=1000\n"},
		{"negative delay", "SAFETY_HOLD_MS=-1\n"},
		{"baud", "SERIAL_BAUD_RATE=0\n"},
		{"web without interval", "WEB_SERVER_PORT=8080\nMQTT_PUBLISH_INTERVAL=0\n"},
		{"mqtt without interval", "MQTT_BROKER=tcp://localhost:1883\nMQTT_PUBLISH_INTERVAL=0\n"},
		{"section", "[extra]\nLOG_LEVEL=info\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}

func TestShippedConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load("../../leveler_config.txt")
	require.NoError(t, err)

	want := Default()
	want.MQTTBroker = "tcp://localhost:1883"
	want.WebServerPort = 8080
	assert.Equal(t, want, cfg)
}
