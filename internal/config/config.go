// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
)

// Config holds all application configuration values.
// Every field defaults to the value the leveler firmware was built with,
// so running without a file reproduces the fixed boot constants.
type Config struct {
	// I2C
	I2CBackend string // "periph" or "embd"
	I2CBus     string // periph bus name ("" = first bus) or embd bus number
	I2CBurst   int    // bytes fetched per combined write+read transaction
	I2CTimeout time.Duration

	// MPU6050 boot register values (DeviceConfig)
	IMUSampleRateDiv byte // SMPLRT_DIV
	IMUPowerMgmt1    byte // PWR_MGMT_1 clock source
	IMUDLPFConfig    byte // CONFIG
	IMUGyroConfig    byte // GYRO_CONFIG
	IMUIntEnable     byte // INT_ENABLE
	IMUSettleDelay   time.Duration

	// Unit conversion
	AccelDivisor float64
	GyroDivisor  float64 // 0 = derive from IMUGyroConfig

	// Control loop
	ControlBand             float64
	ControlTick             time.Duration
	ControlLegacyBelowGuard bool
	TransportRetryDelay     time.Duration

	// Safety monitor
	SafetyHold        time.Duration
	SafetyStopPin     string
	SafetyReservedPin string

	// Actuator
	ActuatorBackend string    // "periph", "rpio" or "none"
	ActuatorPorts   [8]string // digital port bit 0..7
	ActuatorPWMPin  string
	PWMTop          uint16
	PWMFrequencyHz  int

	// Serial telemetry
	SerialPort     string // "" or "-" writes the telemetry line to stdout
	SerialBaudRate int

	// MQTT
	MQTTBroker           string // "" disables the MQTT mirror
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	TopicSample          string
	MQTTPublishInterval  int // milliseconds

	// Web Server
	WebServerPort int // 0 disables the HTTP server

	// Display
	DisplayEnabled        bool
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds

	// Logging
	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot modify it without locking.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protecting concurrent access to globalConfig.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration matching the firmware boot constants.
func Default() *Config {
	return &Config{
		I2CBackend: "periph",
		I2CBus:     "",
		I2CBurst:   14,
		I2CTimeout: 50 * time.Millisecond,

		IMUSampleRateDiv: 0x07,
		IMUPowerMgmt1:    0x01,
		IMUDLPFConfig:    0x00,
		IMUGyroConfig:    0x18,
		IMUIntEnable:     0x01,
		IMUSettleDelay:   150 * time.Millisecond,

		AccelDivisor: 16384.0,
		GyroDivisor:  0,

		ControlBand:         0.3,
		ControlTick:         time.Millisecond,
		TransportRetryDelay: 10 * time.Millisecond,

		SafetyHold:        1000 * time.Millisecond,
		SafetyStopPin:     "GPIO17",
		SafetyReservedPin: "GPIO27",

		ActuatorBackend: "periph",
		ActuatorPorts:   [8]string{"GPIO5", "GPIO6", "GPIO13", "GPIO19", "GPIO26", "GPIO16", "GPIO20", "GPIO21"},
		ActuatorPWMPin:  "GPIO18",
		PWMTop:          19999,
		PWMFrequencyHz:  50,

		SerialPort:     "/dev/serial0",
		SerialBaudRate: 9600,

		MQTTBroker:           "",
		MQTTClientIDProducer: "leveler-producer",
		MQTTClientIDConsole:  "leveler-console",
		MQTTClientIDWeb:      "leveler-web",
		TopicSample:          "leveler/sample",
		MQTTPublishInterval:  100,

		WebServerPort: 0,

		DisplayEnabled:        false,
		DisplayI2CBus:         "",
		DisplayUpdateInterval: 250,

		LogLevel: "info",
	}
}

// Load reads the configuration file on top of Default and returns the result.
// An empty path returns the defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath == "" {
		return cfg, nil
	}

	file, err := ini.LoadSources(ini.LoadOptions{
		SkipUnrecognizableLines: false,
		UnescapeValueDoubleQuotes: true,
	}, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	for _, section := range file.Sections() {
		if section.Name() != ini.DefaultSection && len(section.Keys()) > 0 {
			return nil, fmt.Errorf("unexpected section [%s]: config is a flat KEY=VALUE file", section.Name())
		}
		for _, key := range section.Keys() {
			if err := cfg.setValue(key.Name(), strings.TrimSpace(key.String())); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// I2C
	case "I2C_BACKEND":
		if value != "periph" && value != "embd" {
			return fmt.Errorf("I2C_BACKEND must be periph or embd, got %q", value)
		}
		c.I2CBackend = value
	case "I2C_BUS":
		c.I2CBus = value
	case "I2C_BURST":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid I2C_BURST %q: %w", value, err)
		}
		if val < 14 || val > 64 {
			return fmt.Errorf("I2C_BURST must be 14-64, got %d", val)
		}
		c.I2CBurst = val
	case "I2C_TIMEOUT_MS":
		d, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.I2CTimeout = d

	// MPU6050 boot registers
	case "IMU_SMPLRT_DIV":
		return parseByte(key, value, 0, 255, &c.IMUSampleRateDiv)
	case "IMU_PWR_MGMT_1":
		return parseByte(key, value, 0, 255, &c.IMUPowerMgmt1)
	case "IMU_DLPF_CFG":
		return parseByte(key, value, 0, 7, &c.IMUDLPFConfig)
	case "IMU_GYRO_CONFIG":
		if err := parseByte(key, value, 0, 255, &c.IMUGyroConfig); err != nil {
			return err
		}
		if c.IMUGyroConfig&^0x18 != 0 {
			return fmt.Errorf("IMU_GYRO_CONFIG may only set FS_SEL bits 4:3, got 0x%02X", c.IMUGyroConfig)
		}
	case "IMU_INT_ENABLE":
		return parseByte(key, value, 0, 255, &c.IMUIntEnable)
	case "IMU_SETTLE_DELAY_MS":
		d, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.IMUSettleDelay = d

	// Unit conversion
	case "ACCEL_DIVISOR":
		return parsePositiveFloat(key, value, &c.AccelDivisor)
	case "GYRO_DIVISOR":
		return parsePositiveFloat(key, value, &c.GyroDivisor)

	// Control loop
	case "CONTROL_BAND":
		return parsePositiveFloat(key, value, &c.ControlBand)
	case "CONTROL_TICK_MS":
		d, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.ControlTick = d
	case "CONTROL_LEGACY_BELOW_GUARD":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid CONTROL_LEGACY_BELOW_GUARD %q: %w", value, err)
		}
		c.ControlLegacyBelowGuard = b
	case "TRANSPORT_RETRY_DELAY_MS":
		d, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.TransportRetryDelay = d

	// Safety
	case "SAFETY_HOLD_MS":
		d, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.SafetyHold = d
	case "SAFETY_STOP_PIN":
		c.SafetyStopPin = value
	case "SAFETY_RESERVED_PIN":
		c.SafetyReservedPin = value

	// Actuator
	case "ACTUATOR_BACKEND":
		if value != "periph" && value != "rpio" && value != "none" {
			return fmt.Errorf("ACTUATOR_BACKEND must be periph, rpio or none, got %q", value)
		}
		c.ActuatorBackend = value
	case "ACTUATOR_PORT_PINS":
		pins := strings.Split(value, ",")
		if len(pins) != 8 {
			return fmt.Errorf("ACTUATOR_PORT_PINS must list 8 pins, got %d", len(pins))
		}
		for i, p := range pins {
			c.ActuatorPorts[i] = strings.TrimSpace(p)
		}
	case "ACTUATOR_PWM_PIN":
		c.ActuatorPWMPin = value
	case "PWM_TOP":
		val, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid PWM_TOP %q: %w", value, err)
		}
		if val < 1340 {
			return fmt.Errorf("PWM_TOP must be at least 1340 to hold the largest duty, got %d", val)
		}
		c.PWMTop = uint16(val)
	case "PWM_FREQUENCY_HZ":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PWM_FREQUENCY_HZ %q: %w", value, err)
		}
		if val <= 0 {
			return fmt.Errorf("PWM_FREQUENCY_HZ must be positive, got %d", val)
		}
		c.PWMFrequencyHz = val

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "TOPIC_SAMPLE":
		c.TopicSample = value
	case "MQTT_PUBLISH_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MQTT_PUBLISH_INTERVAL %q: %w", value, err)
		}
		c.MQTTPublishInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_ENABLED":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = b
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	if c.SerialBaudRate <= 0 {
		return fmt.Errorf("SERIAL_BAUD_RATE must be positive")
	}
	if c.MQTTBroker != "" && c.TopicSample == "" {
		return fmt.Errorf("TOPIC_SAMPLE is required when MQTT_BROKER is set")
	}
	// the interval also paces the websocket hub
	if (c.MQTTBroker != "" || c.WebServerPort != 0) && c.MQTTPublishInterval <= 0 {
		return fmt.Errorf("MQTT_PUBLISH_INTERVAL must be positive when MQTT_BROKER or WEB_SERVER_PORT is set")
	}
	if c.DisplayEnabled && c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive when DISPLAY_ENABLED is set")
	}
	if c.ActuatorBackend != "none" && c.ActuatorPWMPin == "" {
		return fmt.Errorf("ACTUATOR_PWM_PIN is required")
	}
	return nil
}

func parseByte(key, value string, min, max uint64, dst *byte) error {
	val, err := strconv.ParseUint(value, 0, 8)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if val < min || val > max {
		return fmt.Errorf("%s must be %d-%d, got %d", key, min, max, val)
	}
	*dst = byte(val)
	return nil
}

func parseMillis(key, value string) (time.Duration, error) {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if ms < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parsePositiveFloat(key, value string, dst *float64) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if f <= 0 {
		return fmt.Errorf("%s must be positive, got %v", key, f)
	}
	*dst = f
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once so only the first call loads anything.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
