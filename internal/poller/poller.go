package poller

import (
	"context"
	"fmt"
	"time"

	"scalepoll/internal/config"
	"scalepoll/internal/device"
	"scalepoll/internal/logging"
	"scalepoll/internal/scale"
)

// Device is one poll cycle against the scale: produce whatever readings
// arrived, in order, or fail hard. The poller depends on nothing else.
type Device interface {
	Poll(ctx context.Context) ([]scale.Reading, error)
	Close() error
}

// Poller drives burst/read cycles against one device forever and reports
// readings. It is strictly sequential: one goroutine owns the device for the
// poller's whole lifetime.
type Poller struct {
	cfg      *config.Config
	device   Device
	reporter scale.Reporter

	// last reported value text; only ever replaced by a different value,
	// never cleared
	lastValue string
	hasLast   bool
}

func New(cfg *config.Config, dev Device, reporter scale.Reporter) *Poller {
	return &Poller{cfg: cfg, device: dev, reporter: reporter}
}

// Open builds a poller with the device backend the config names.
func Open(cfg *config.Config, reporter scale.Reporter) (*Poller, error) {
	var dev Device
	var err error

	switch cfg.Device.Mode {
	case "ascii":
		dev, err = device.OpenAscii(cfg.Device)
	case "modbus":
		dev, err = device.OpenModbus(cfg.Device)
	default:
		return nil, fmt.Errorf("unsupported device mode: %s", cfg.Device.Mode)
	}
	if err != nil {
		return nil, err
	}
	return New(cfg, dev, reporter), nil
}

// Run polls until ctx is cancelled. Cancellation is observed between cycles;
// a burst or read window in flight completes first. The device is closed
// exactly once on the way out. Any device error is fatal: no reconnect
// behavior is defined for a dropped serial link, so the error surfaces to
// the caller instead of looping on a dead port.
func (p *Poller) Run(ctx context.Context) error {
	defer p.device.Close()

	name := p.cfg.Device.Name
	logging.Info("poller started",
		"device", name, "mode", p.cfg.Device.Mode, "onlyReportOnChange", p.cfg.OnlyReportOnChange)

	for {
		select {
		case <-ctx.Done():
			logging.Info("poller stopped", "device", name)
			return nil
		default:
		}

		if err := p.cycle(ctx); err != nil {
			return fmt.Errorf("poll cycle: %w", err)
		}

		if d := p.cfg.CycleDelay(); d > 0 {
			time.Sleep(d)
		}
	}
}

// cycle runs one poll and reports the most recent reading, subject to the
// change-only filter. An empty cycle is normal; the scale may be idle or
// between prints.
func (p *Poller) cycle(ctx context.Context) error {
	readings, err := p.device.Poll(ctx)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		return nil
	}

	r := readings[len(readings)-1]
	if p.cfg.OnlyReportOnChange && p.hasLast && r.Value == p.lastValue {
		return nil
	}

	if err := p.reporter.Report(ctx, r); err != nil {
		// state stays as-is so the reading is retried next cycle
		logging.Warn("report failed", "device", p.cfg.Device.Name, "error", err)
		return nil
	}
	p.lastValue = r.Value
	p.hasLast = true
	return nil
}
