package report

import (
	"context"
	"fmt"
	"io"
	"os"

	"scalepoll/internal/scale"
)

// Console writes one line per reported reading to stdout. This is the data
// plane; logs go to stderr.
type Console struct {
	W io.Writer
}

func NewConsole() *Console {
	return &Console{W: os.Stdout}
}

func (c *Console) Report(_ context.Context, r scale.Reading) error {
	_, err := fmt.Fprintf(c.W, "%s  %s %s   (raw: %s)\n",
		r.At.Format("2006-01-02T15:04:05"), r.Value, r.Unit, r.Raw)
	return err
}
