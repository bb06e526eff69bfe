package config

import (
	"strings"
	"testing"
	"time"
)

const asciiExample = `{
	// bench scale on the first FTDI adapter
	"device": {
		"name": "bench-scale",
		"mode": "ascii",
		"port": "/dev/ttyUSB0",
		"baud": 9600,
		"command": "@P\r\n",
		"repeatsPerBurst": 13,
		"charDelayMs": 7,
		"lineDelayMs": 9,
		"readWindowMs": 160
	},
	"onlyReportOnChange": true
}`

func TestLoad_AsciiConfigWithComments(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(asciiExample))
	if err != nil {
		t.Fatalf("LoadFromReader err=%v", err)
	}

	d := cfg.Device
	if d.Mode != "ascii" || d.Port != "/dev/ttyUSB0" || d.Baud != 9600 {
		t.Fatalf("device parsed wrong: %+v", d)
	}
	if d.Command != "@P\r\n" {
		t.Fatalf("command=%q", d.Command)
	}
	if d.RepeatsPerBurst != 13 {
		t.Fatalf("repeatsPerBurst=%d", d.RepeatsPerBurst)
	}
	if !cfg.OnlyReportOnChange {
		t.Fatalf("onlyReportOnChange not set")
	}

	// defaults filled by Validate
	if d.DataBits != 8 || d.StopBits != 1 || d.Parity != "N" {
		t.Fatalf("serial framing defaults: %+v", d)
	}
	if d.ReadTimeout() != 20*time.Millisecond {
		t.Fatalf("readTimeout=%v, want 20ms default", d.ReadTimeout())
	}
	if d.CharDelay() != 7*time.Millisecond || d.LineDelay() != 9*time.Millisecond {
		t.Fatalf("delays: %v / %v", d.CharDelay(), d.LineDelay())
	}
	if d.ReadWindow() != 160*time.Millisecond {
		t.Fatalf("readWindow=%v", d.ReadWindow())
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	in := `{"device": {"mode": "ascii", "port": "/dev/ttyUSB0", "baud": 9600,
		"command": "P\r\n", "readWindowMs": 100, "bogus": 1}}`
	if _, err := LoadFromReader(strings.NewReader(in)); err == nil {
		t.Fatalf("expected unknown-field error")
	}
}

func TestValidate_AsciiRequiresPortAndWindow(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{Mode: "ascii", Command: "P\r\n"}}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"device.port", "device.baud", "device.readWindowMs"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
}

func TestValidate_RejectsUnknownMode(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{Mode: "bluetooth"}}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "device.mode") {
		t.Fatalf("expected mode error, got %v", err)
	}
}

func TestValidate_ModbusTCPDefaults(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{
		Mode:      "modbus",
		Transport: "tcp",
		TCPAddr:   "10.0.0.5:502",
		UnitId:    1,
	}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate err=%v", err)
	}
	d := cfg.Device
	if d.RegisterCount != 1 || d.Divisor != 1 {
		t.Fatalf("modbus defaults: %+v", d)
	}
	if d.ReadTimeout() != 150*time.Millisecond {
		t.Fatalf("readTimeout=%v, want 150ms default", d.ReadTimeout())
	}
}

func TestValidate_ModbusRTUNeedsSerialLineAndUnit(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{Mode: "modbus"}}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"device.port", "device.unitId"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
}

func TestValidate_MQTTDefaults(t *testing.T) {
	cfg := &Config{
		Device: DeviceConfig{Mode: "ascii", Port: "/dev/ttyUSB0", Baud: 9600,
			Command: "P\r\n", ReadWindowMs: 100},
		MQTT: MQTTConfig{Enabled: true},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate err=%v", err)
	}
	if cfg.MQTT.TopicPrefix != "scale" {
		t.Fatalf("topicPrefix=%q", cfg.MQTT.TopicPrefix)
	}
	if cfg.MQTT.ConnectTimeout() != 10*time.Second || cfg.MQTT.PublishTimeout() != 5*time.Second {
		t.Fatalf("mqtt timeouts: %v / %v", cfg.MQTT.ConnectTimeout(), cfg.MQTT.PublishTimeout())
	}
}
