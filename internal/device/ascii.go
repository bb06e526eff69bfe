package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/serial"

	"scalepoll/internal/config"
	"scalepoll/internal/logging"
	"scalepoll/internal/scale"
)

// idlePause is slept between empty reads inside a window so a zero or very
// short port timeout cannot turn the window into a busy spin.
const idlePause = 2 * time.Millisecond

// AsciiDevice talks the line-oriented RS232 scale protocol: a timed burst of
// command bytes out, a wall-clock window of weight lines back. The burst is
// paced byte by byte; some scale firmwares drop input when bytes arrive
// back-to-back, and repeating the command covers the occasional lost one.
type AsciiDevice struct {
	cfg  config.DeviceConfig
	conn io.ReadWriteCloser

	rem []byte // partial line carried between reads

	closeOnce sync.Once
	closeErr  error
}

// OpenAscii opens the configured serial port. The port timeout is the short
// per-read timeout; the logical read window is enforced by Poll across many
// such reads.
func OpenAscii(cfg config.DeviceConfig) (*AsciiDevice, error) {
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.Baud,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.ReadTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	logging.Info("serial port open", "port", cfg.Port, "baud", cfg.Baud)
	return NewAscii(cfg, port), nil
}

// NewAscii wraps an already open connection. Split from OpenAscii so tests
// can drive the protocol over a fake connection.
func NewAscii(cfg config.DeviceConfig, conn io.ReadWriteCloser) *AsciiDevice {
	return &AsciiDevice{cfg: cfg, conn: conn}
}

// Poll runs one burst-then-window cycle and returns the readings observed in
// arrival order. An empty result is normal; the scale may be idle. Any write
// error, or any read error other than a timeout, aborts the cycle.
func (d *AsciiDevice) Poll(ctx context.Context) ([]scale.Reading, error) {
	if err := d.sendBurst(); err != nil {
		return nil, err
	}
	return d.readWindow()
}

func (d *AsciiDevice) sendBurst() error {
	cmd := []byte(d.cfg.Command)
	for i := 0; i < d.cfg.RepeatsPerBurst; i++ {
		for _, b := range cmd {
			if _, err := d.conn.Write([]byte{b}); err != nil {
				return fmt.Errorf("write command byte: %w", err)
			}
			time.Sleep(d.cfg.CharDelay())
		}
		time.Sleep(d.cfg.LineDelay())
	}
	return nil
}

func (d *AsciiDevice) readWindow() ([]scale.Reading, error) {
	deadline := time.Now().Add(d.cfg.ReadWindow())
	var readings []scale.Reading
	chunk := make([]byte, 256)

	for time.Now().Before(deadline) {
		n, err := d.conn.Read(chunk)
		if n > 0 {
			d.rem = append(d.rem, chunk[:n]...)
			readings = append(readings, d.drainLines()...)
		}
		if err != nil {
			if isTimeout(err) {
				time.Sleep(idlePause)
				continue
			}
			return readings, fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			time.Sleep(idlePause)
		}
	}
	return readings, nil
}

// drainLines parses every complete line buffered so far. The trailing
// partial line stays in rem; the rest of it may arrive next read.
func (d *AsciiDevice) drainLines() []scale.Reading {
	var out []scale.Reading
	for {
		i := bytes.IndexAny(d.rem, "\r\n")
		if i < 0 {
			return out
		}
		line := d.rem[:i]
		d.rem = d.rem[i+1:]
		if r, ok := scale.ParseLine(line, time.Now()); ok {
			out = append(out, r)
		}
	}
}

func (d *AsciiDevice) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.conn.Close()
	})
	return d.closeErr
}

func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
