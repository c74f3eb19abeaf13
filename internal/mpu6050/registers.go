// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mpu6050

import "fmt"

// Wire addresses for AD0 low (7-bit 0x68).
const (
	AddrWrite byte = 0xD0
	AddrRead  byte = 0xD1
)

// Registers used by the driver.
const (
	RegSmplrtDiv   byte = 0x19
	RegConfig      byte = 0x1A
	RegGyroConfig  byte = 0x1B
	RegAccelConfig byte = 0x1C
	RegIntEnable   byte = 0x38
	RegAccelXoutH  byte = 0x3B
	RegPwrMgmt1    byte = 0x6B
	RegWhoAmI      byte = 0x75
)

// BurstLen is ACCEL_XOUT_H through GYRO_ZOUT_L.
const BurstLen = 14

// DeviceConfig is the set of register values written once at boot.
type DeviceConfig struct {
	SampleRateDiv byte `json:"smplrt_div"`
	PowerMgmt1    byte `json:"pwr_mgmt_1"`
	DLPFConfig    byte `json:"config"`
	GyroConfig    byte `json:"gyro_config"`
	IntEnable     byte `json:"int_enable"`
}

// DefaultDeviceConfig: 1 kHz / (1+7), PLL on gyro X, 260 Hz bandwidth,
// ±2000 °/s, data ready interrupt.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		SampleRateDiv: 0x07,
		PowerMgmt1:    0x01,
		DLPFConfig:    0x00,
		GyroConfig:    0x18,
		IntEnable:     0x01,
	}
}

type regWrite struct {
	reg byte
	val byte
}

// writes returns the boot sequence in the order it is applied.
func (c DeviceConfig) writes() []regWrite {
	return []regWrite{
		{RegSmplrtDiv, c.SampleRateDiv},
		{RegPwrMgmt1, c.PowerMgmt1},
		{RegConfig, c.DLPFConfig},
		{RegGyroConfig, c.GyroConfig},
		{RegIntEnable, c.IntEnable},
	}
}

// OutputRateHz is the sample rate produced by the divider and filter setting.
func (c DeviceConfig) OutputRateHz() int {
	internal := 1000 // 1kHz with DLPF on
	if c.DLPFConfig&0x07 == 0 || c.DLPFConfig&0x07 == 7 {
		internal = 8000 // 8kHz with DLPF off
	}
	return internal / (1 + int(c.SampleRateDiv))
}

// BitField describes a field within a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo describes one register.
type RegisterInfo struct {
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	Written     string     `json:"written,omitempty"` // value written at boot
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// Registers returns metadata for the registers the driver touches, with the
// boot values from cfg filled in.
func Registers(cfg DeviceConfig) []RegisterInfo {
	written := map[byte]string{}
	for _, w := range cfg.writes() {
		written[w.reg] = fmt.Sprintf("0x%02X", w.val)
	}

	regs := []RegisterInfo{
		// Configuration Registers
		{Address: "0x19", Name: "SMPLRT_DIV", Description: "Sample Rate Divider", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:0", Name: "SMPLRT_DIV", Description: "Sample Rate = Gyroscope_Output_Rate / (1 + SMPLRT_DIV)", Values: "0-255"},
			}},
		{Address: "0x1A", Name: "CONFIG", Description: "Configuration (DLPF)", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5:3", Name: "EXT_SYNC_SET", Description: "External FSYNC pin sampling", Values: "0=Disabled"},
				{Bits: "2:0", Name: "DLPF_CFG", Description: "Digital Low Pass Filter", Values: "0=260Hz, 1=184Hz, 2=94Hz, 3=44Hz, 4=21Hz, 5=10Hz, 6=5Hz"},
			}},
		{Address: "0x1B", Name: "GYRO_CONFIG", Description: "Gyroscope Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "XG_ST", Description: "X Gyro self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "YG_ST", Description: "Y Gyro self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "ZG_ST", Description: "Z Gyro self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4:3", Name: "FS_SEL", Description: "Gyro Full Scale Range", Values: "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s"},
			}},
		{Address: "0x1C", Name: "ACCEL_CONFIG", Description: "Accelerometer Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "XA_ST", Description: "X Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "YA_ST", Description: "Y Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "ZA_ST", Description: "Z Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4:3", Name: "AFS_SEL", Description: "Accel Full Scale Range", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
			}},

		// Interrupt Configuration
		{Address: "0x38", Name: "INT_ENABLE", Description: "Interrupt Enable", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4", Name: "FIFO_OFLOW_EN", Description: "FIFO overflow interrupt", Values: "0=Disabled, 1=Enabled"},
				{Bits: "3", Name: "I2C_MST_INT_EN", Description: "I2C master interrupt sources", Values: "0=Disabled, 1=Enabled"},
				{Bits: "0", Name: "DATA_RDY_EN", Description: "Data ready interrupt", Values: "0=Disabled, 1=Enabled"},
			}},

		// Sensor Data Registers (Read-Only), read in one burst
		{Address: "0x3B", Name: "ACCEL_XOUT_H", Description: "Accelerometer X-Axis High Byte", Access: "R"},
		{Address: "0x3C", Name: "ACCEL_XOUT_L", Description: "Accelerometer X-Axis Low Byte", Access: "R"},
		{Address: "0x3D", Name: "ACCEL_YOUT_H", Description: "Accelerometer Y-Axis High Byte", Access: "R"},
		{Address: "0x3E", Name: "ACCEL_YOUT_L", Description: "Accelerometer Y-Axis Low Byte", Access: "R"},
		{Address: "0x3F", Name: "ACCEL_ZOUT_H", Description: "Accelerometer Z-Axis High Byte", Access: "R"},
		{Address: "0x40", Name: "ACCEL_ZOUT_L", Description: "Accelerometer Z-Axis Low Byte", Access: "R"},
		{Address: "0x41", Name: "TEMP_OUT_H", Description: "Temperature High Byte", Access: "R"},
		{Address: "0x42", Name: "TEMP_OUT_L", Description: "Temperature Low Byte", Access: "R"},
		{Address: "0x43", Name: "GYRO_XOUT_H", Description: "Gyroscope X-Axis High Byte", Access: "R"},
		{Address: "0x44", Name: "GYRO_XOUT_L", Description: "Gyroscope X-Axis Low Byte", Access: "R"},
		{Address: "0x45", Name: "GYRO_YOUT_H", Description: "Gyroscope Y-Axis High Byte", Access: "R"},
		{Address: "0x46", Name: "GYRO_YOUT_L", Description: "Gyroscope Y-Axis Low Byte", Access: "R"},
		{Address: "0x47", Name: "GYRO_ZOUT_H", Description: "Gyroscope Z-Axis High Byte", Access: "R"},
		{Address: "0x48", Name: "GYRO_ZOUT_L", Description: "Gyroscope Z-Axis Low Byte", Access: "R"},

		// Power Management
		{Address: "0x6B", Name: "PWR_MGMT_1", Description: "Power Management 1", Access: "RW", Default: "0x40",
			BitFields: []BitField{
				{Bits: "7", Name: "DEVICE_RESET", Description: "Device reset", Values: "1=Reset device"},
				{Bits: "6", Name: "SLEEP", Description: "Sleep mode", Values: "0=Disabled, 1=Sleep"},
				{Bits: "5", Name: "CYCLE", Description: "Cycle mode", Values: "0=Disabled, 1=Cycle"},
				{Bits: "3", Name: "TEMP_DIS", Description: "Temperature sensor", Values: "0=Enabled, 1=Disabled"},
				{Bits: "2:0", Name: "CLKSEL", Description: "Clock source", Values: "0=Internal 8MHz, 1=PLL gyro X, 2=PLL gyro Y, 3=PLL gyro Z, 4=PLL ext 32.768kHz, 5=PLL ext 19.2MHz"},
			}},

		// Device Identification
		{Address: "0x75", Name: "WHO_AM_I", Description: "Device identification (should be 0x68)", Access: "R", Default: "0x68",
			BitFields: []BitField{
				{Bits: "6:1", Name: "WHO_AM_I", Description: "Upper 6 bits of the 7-bit address", Values: "0x34"},
			}},
	}

	for i := range regs {
		var addr byte
		if _, err := fmt.Sscanf(regs[i].Address, "0x%02X", &addr); err == nil {
			regs[i].Written = written[addr]
		}
	}
	return regs
}
