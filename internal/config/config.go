// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"
)

/* =========================
   Types
   ========================= */

type Config struct {
	Device             DeviceConfig `json:"device"`
	OnlyReportOnChange bool         `json:"onlyReportOnChange"`
	CycleDelayMs       int          `json:"cycleDelayMs"` // optional pause between poll cycles
	MQTT               MQTTConfig   `json:"mqtt"`
}

type DeviceConfig struct {
	Name string `json:"name"`
	Mode string `json:"mode"` // "ascii" | "modbus"

	// Serial line settings (ascii mode, and modbus mode with transport=rtu)
	Port          string `json:"port"`
	Baud          int    `json:"baud"`
	DataBits      int    `json:"dataBits"`
	StopBits      int    `json:"stopBits"`
	Parity        string `json:"parity"`
	ReadTimeoutMs int    `json:"readTimeoutMs"` // per-read timeout on the open port

	// ascii mode: command burst shape and read window
	Command         string `json:"command"` // bytes sent per command, e.g. "@P\r\n"
	RepeatsPerBurst int    `json:"repeatsPerBurst"`
	CharDelayMs     int    `json:"charDelayMs"` // pause after each transmitted byte
	LineDelayMs     int    `json:"lineDelayMs"` // pause between command repeats
	ReadWindowMs    int    `json:"readWindowMs"`

	// modbus mode: weight indicator register geometry
	Transport      string `json:"transport"` // "rtu" | "tcp"
	TCPAddr        string `json:"tcpAddr"`
	UnitId         uint8  `json:"unitId"`
	WeightRegister uint16 `json:"weightRegister"`
	RegisterCount  uint16 `json:"registerCount"` // 1 or 2 input registers
	Divisor        int    `json:"divisor"`       // raw register value / divisor = weight
	Unit           string `json:"unit"`          // unit label for synthesized readings
}

// MQTTConfig enables publishing of reported readings. The broker URL comes
// from the MQTT_URL environment variable, not from this file: the comment
// stripper would eat the "//" inside a tcp:// URL.
type MQTTConfig struct {
	Enabled          bool   `json:"enabled"`
	TopicPrefix      string `json:"topicPrefix"`
	ConnectTimeoutMs int    `json:"connectTimeoutMs"`
	PublishTimeoutMs int    `json:"publishTimeoutMs"`
}

/* =========================
   Helpers
   ========================= */

func (d DeviceConfig) ReadTimeout() time.Duration {
	return time.Duration(d.ReadTimeoutMs) * time.Millisecond
}
func (d DeviceConfig) CharDelay() time.Duration {
	return time.Duration(d.CharDelayMs) * time.Millisecond
}
func (d DeviceConfig) LineDelay() time.Duration {
	return time.Duration(d.LineDelayMs) * time.Millisecond
}
func (d DeviceConfig) ReadWindow() time.Duration {
	return time.Duration(d.ReadWindowMs) * time.Millisecond
}

func (c Config) CycleDelay() time.Duration {
	return time.Duration(c.CycleDelayMs) * time.Millisecond
}

func (m MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeoutMs) * time.Millisecond
}
func (m MQTTConfig) PublishTimeout() time.Duration {
	return time.Duration(m.PublishTimeoutMs) * time.Millisecond
}

/* =========================
   Strict load + validate
   ========================= */

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(raw)
}

func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parse(raw)
}

func parse(raw []byte) (*Config, error) {
	clean := stripJSONComments(raw)

	dec := json.NewDecoder(strings.NewReader(string(clean)))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs multiErr

	d := &c.Device
	if strings.TrimSpace(d.Name) == "" {
		d.Name = "scale"
	}

	switch strings.ToLower(d.Mode) {
	case "", "ascii":
		d.Mode = "ascii"
		c.validateSerialLine(&errs)

		if d.Command == "" {
			errs.add("device.command is required for mode=ascii")
		}
		if d.RepeatsPerBurst <= 0 {
			d.RepeatsPerBurst = 1
		}
		if d.CharDelayMs < 0 || d.LineDelayMs < 0 {
			errs.add("device burst delays cannot be negative")
		}
		if d.ReadWindowMs <= 0 {
			errs.add("device.readWindowMs must be > 0 (e.g., 160)")
		}
		if d.ReadTimeoutMs <= 0 {
			d.ReadTimeoutMs = 20
		}

	case "modbus":
		d.Mode = "modbus"
		switch strings.ToLower(d.Transport) {
		case "", "rtu":
			d.Transport = "rtu"
			c.validateSerialLine(&errs)
		case "tcp":
			d.Transport = "tcp"
			if strings.TrimSpace(d.TCPAddr) == "" {
				errs.add("device.tcpAddr is required for transport=tcp")
			}
		default:
			errs.addf("device.transport must be 'rtu' or 'tcp', got %q", d.Transport)
		}
		if d.UnitId == 0 || d.UnitId > 247 {
			errs.add("device.unitId must be 1..247")
		}
		if d.RegisterCount == 0 {
			d.RegisterCount = 1
		}
		if d.RegisterCount > 2 {
			errs.add("device.registerCount must be 1 or 2")
		}
		if d.Divisor == 0 {
			d.Divisor = 1
		}
		if d.Divisor < 0 {
			errs.add("device.divisor must be > 0")
		}
		if d.ReadTimeoutMs <= 0 {
			d.ReadTimeoutMs = 150
		}

	default:
		errs.addf("device.mode must be 'ascii' or 'modbus', got %q", d.Mode)
	}

	if c.CycleDelayMs < 0 {
		errs.add("cycleDelayMs cannot be negative")
	}

	if c.MQTT.Enabled {
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = "scale"
		}
		if c.MQTT.ConnectTimeoutMs <= 0 {
			c.MQTT.ConnectTimeoutMs = 10000
		}
		if c.MQTT.PublishTimeoutMs <= 0 {
			c.MQTT.PublishTimeoutMs = 5000
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateSerialLine(errs *multiErr) {
	d := &c.Device
	if strings.TrimSpace(d.Port) == "" {
		errs.add("device.port is required")
	}
	if d.Baud <= 0 {
		errs.add("device.baud must be > 0")
	}
	if d.DataBits == 0 {
		d.DataBits = 8
	}
	if d.StopBits == 0 {
		d.StopBits = 1
	}
	if d.Parity == "" {
		d.Parity = "N"
	}
	if !slices.Contains([]string{"N", "E", "O"}, strings.ToUpper(d.Parity)) {
		errs.add("device.parity must be one of N,E,O")
	}
}

/* =========================
   Comment stripping + utils
   ========================= */

var (
	lineComments  = regexp.MustCompile(`(?m)//[^\n\r]*`)
	blockComments = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

func stripJSONComments(in []byte) []byte {
	text := string(in)
	text = blockComments.ReplaceAllString(text, "")
	text = lineComments.ReplaceAllString(text, "")
	return []byte(text)
}

// small multi-error
type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
