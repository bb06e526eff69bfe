package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"scalepoll/internal/config"
	"scalepoll/internal/logging"
	"scalepoll/internal/scale"
)

// ModbusDevice reads the weight from the input registers of a Modbus-attached
// weight indicator. Industrial indicator heads usually expose the net weight
// as a signed 16- or 32-bit value scaled by a fixed divisor.
type ModbusDevice struct {
	cfg    config.DeviceConfig
	client modbus.Client

	closer    io.Closer
	closeOnce sync.Once
	closeErr  error
}

// OpenModbus connects over RTU or TCP, mirroring the transport switch of the
// serial bus pollers this grew out of.
func OpenModbus(cfg config.DeviceConfig) (*ModbusDevice, error) {
	d := &ModbusDevice{cfg: cfg}

	switch cfg.Transport {
	case "rtu":
		h := modbus.NewRTUClientHandler(cfg.Port)
		h.BaudRate = cfg.Baud
		h.DataBits = cfg.DataBits
		h.Parity = cfg.Parity
		h.StopBits = cfg.StopBits
		h.Timeout = cfg.ReadTimeout()
		h.SlaveId = cfg.UnitId
		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("modbus rtu connect %s: %w", cfg.Port, err)
		}
		d.client = modbus.NewClient(h)
		d.closer = h

	case "tcp":
		h := modbus.NewTCPClientHandler(cfg.TCPAddr)
		h.Timeout = cfg.ReadTimeout()
		h.SlaveId = cfg.UnitId
		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("modbus tcp connect %s: %w", cfg.TCPAddr, err)
		}
		d.client = modbus.NewClient(h)
		d.closer = h

	default:
		return nil, fmt.Errorf("unsupported modbus transport: %s", cfg.Transport)
	}

	logging.Info("modbus indicator connected",
		"transport", cfg.Transport, "unitId", cfg.UnitId, "register", cfg.WeightRegister)
	return d, nil
}

// Poll reads the weight registers once and synthesizes a Reading. A timeout
// means the indicator is idle or busy and yields an empty cycle, matching the
// ascii device's empty window.
func (d *ModbusDevice) Poll(ctx context.Context) ([]scale.Reading, error) {
	data, err := d.client.ReadInputRegisters(d.cfg.WeightRegister, d.cfg.RegisterCount)
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read weight registers: %w", err)
	}
	if len(data) < int(d.cfg.RegisterCount)*2 {
		return nil, fmt.Errorf("short register response: %d bytes", len(data))
	}

	var rawValue int64
	if d.cfg.RegisterCount == 2 {
		rawValue = int64(int32(binary.BigEndian.Uint32(data)))
	} else {
		rawValue = int64(int16(binary.BigEndian.Uint16(data)))
	}

	value := formatScaled(rawValue, d.cfg.Divisor)
	return []scale.Reading{{
		At:    time.Now(),
		Value: value,
		Unit:  d.cfg.Unit,
		Raw:   fmt.Sprintf("% x", data),
	}}, nil
}

func (d *ModbusDevice) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.closer.Close()
	})
	return d.closeErr
}

// formatScaled renders raw/divisor with as many decimals as the divisor has
// trailing zeros, so a divisor of 100 gives "12.50", not "12.5".
func formatScaled(raw int64, divisor int) string {
	decimals := 0
	for v := divisor; v > 1 && v%10 == 0; v /= 10 {
		decimals++
	}
	return strconv.FormatFloat(float64(raw)/float64(divisor), 'f', decimals, 64)
}
