package device

import (
	"context"
	"errors"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"

	"scalepoll/internal/config"
)

type fakeModbusClient struct {
	modbus.Client
	data []byte
	err  error
}

func (f *fakeModbusClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return f.data, f.err
}

type nopCloser struct{ closed int }

func (n *nopCloser) Close() error {
	n.closed++
	return nil
}

func modbusConfig(count uint16, divisor int) config.DeviceConfig {
	return config.DeviceConfig{
		Name:           "indicator",
		Mode:           "modbus",
		Transport:      "rtu",
		UnitId:         1,
		WeightRegister: 0,
		RegisterCount:  count,
		Divisor:        divisor,
		Unit:           "kg",
	}
}

func TestModbusPoll_ScalesTwoRegisterValue(t *testing.T) {
	// 0x000004E2 = 1250, divisor 100 -> 12.50
	client := &fakeModbusClient{data: []byte{0x00, 0x00, 0x04, 0xE2}}
	d := &ModbusDevice{cfg: modbusConfig(2, 100), client: client, closer: &nopCloser{}}

	readings, err := d.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll err=%v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(readings))
	}
	r := readings[0]
	if r.Value != "12.50" {
		t.Fatalf("value=%q, want 12.50", r.Value)
	}
	if r.Unit != "kg" {
		t.Fatalf("unit=%q, want kg", r.Unit)
	}
	if r.Raw != "00 00 04 e2" {
		t.Fatalf("raw=%q", r.Raw)
	}
}

func TestModbusPoll_SignedSingleRegister(t *testing.T) {
	// 0xFF38 = -200 as int16, divisor 10 -> -20.0
	client := &fakeModbusClient{data: []byte{0xFF, 0x38}}
	d := &ModbusDevice{cfg: modbusConfig(1, 10), client: client, closer: &nopCloser{}}

	readings, err := d.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll err=%v", err)
	}
	if readings[0].Value != "-20.0" {
		t.Fatalf("value=%q, want -20.0", readings[0].Value)
	}
}

func TestModbusPoll_TimeoutIsEmptyCycle(t *testing.T) {
	client := &fakeModbusClient{err: serial.ErrTimeout}
	d := &ModbusDevice{cfg: modbusConfig(2, 100), client: client, closer: &nopCloser{}}

	readings, err := d.Poll(context.Background())
	if err != nil {
		t.Fatalf("timeout should not be fatal, got %v", err)
	}
	if len(readings) != 0 {
		t.Fatalf("got %d readings, want 0", len(readings))
	}
}

func TestModbusPoll_OtherErrorsAreFatal(t *testing.T) {
	client := &fakeModbusClient{err: errors.New("modbus: exception '2' (illegal data address)")}
	d := &ModbusDevice{cfg: modbusConfig(2, 100), client: client, closer: &nopCloser{}}

	if _, err := d.Poll(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestModbusClose_Once(t *testing.T) {
	closer := &nopCloser{}
	d := &ModbusDevice{cfg: modbusConfig(1, 1), client: &fakeModbusClient{data: []byte{0, 0}}, closer: closer}

	_ = d.Close()
	_ = d.Close()
	if closer.closed != 1 {
		t.Fatalf("closer called %d times, want 1", closer.closed)
	}
}

func TestFormatScaled(t *testing.T) {
	cases := []struct {
		raw     int64
		divisor int
		want    string
	}{
		{1250, 100, "12.50"},
		{1250, 1, "1250"},
		{-75, 10, "-7.5"},
		{5, 1000, "0.005"},
	}
	for _, c := range cases {
		if got := formatScaled(c.raw, c.divisor); got != c.want {
			t.Fatalf("formatScaled(%d, %d)=%q, want %q", c.raw, c.divisor, got, c.want)
		}
	}
}
