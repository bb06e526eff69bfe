package scale

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Reading is one parsed observation from the scale. Value keeps the exact
// numeric text as it arrived on the wire; change detection compares text,
// not floats.
type Reading struct {
	At    time.Time `json:"timestamp"`
	Value string    `json:"value"`
	Unit  string    `json:"unit,omitempty"`
	Raw   string    `json:"raw"`
}

// Float returns the numeric value for consumers that want math, not text.
func (r Reading) Float() (float64, error) {
	return strconv.ParseFloat(r.Value, 64)
}

// weightPattern matches a signed number with optional fraction followed by an
// optional unit token (letters or a percent sign). The unit is deliberately
// not whitelisted; scales disagree on spelling (g, kg, lb, oz, %, pcs, ...).
var weightPattern = regexp.MustCompile(`([+-]?\d+(?:\.\d+)?)\s*([a-zA-Z%]+)?`)

// ParseLine decodes a raw line from the device and tries to extract a
// Reading. Undecodable bytes are dropped, surrounding whitespace is trimmed,
// and lines without a recognizable numeric pattern yield ok=false. A failed
// parse is never an error; idle scales emit all kinds of chatter.
func ParseLine(line []byte, at time.Time) (Reading, bool) {
	raw := strings.TrimSpace(dropInvalid(line))
	if raw == "" {
		return Reading{}, false
	}
	m := weightPattern.FindStringSubmatch(raw)
	if m == nil {
		return Reading{}, false
	}
	return Reading{
		At:    at,
		Value: m[1],
		Unit:  m[2],
		Raw:   raw,
	}, true
}

// dropInvalid removes bytes that do not form valid UTF-8. Noisy RS232 links
// routinely corrupt a character without breaking the rest of the line.
func dropInvalid(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var s strings.Builder
	s.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r != utf8.RuneError || size > 1 {
			s.WriteRune(r)
		}
		b = b[size:]
	}
	return s.String()
}

// Reporter receives readings the poller decided to emit.
type Reporter interface {
	Report(ctx context.Context, r Reading) error
}

// Reporters fans a reading out to several sinks; the first error wins but
// every sink still gets the reading.
type Reporters []Reporter

func (rs Reporters) Report(ctx context.Context, r Reading) error {
	var firstErr error
	for _, sink := range rs {
		if err := sink.Report(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
