package hostfn

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/datefmt"
	"github.com/woxQAQ/sourcehost/internal/handle"
	"github.com/woxQAQ/sourcehost/internal/value"
)

// Std is the general purpose value namespace. Besides the container
// operations it can hold dates and host objects.
type Std struct {
	space
}

// CreateDate stores a date given in seconds since the Unix epoch.
func (n *Std) CreateDate(seconds float64) int32 {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return handle.Invalid
	}
	return n.table.Store(value.Date(fromEpoch(seconds)))
}

// ReadDate returns a date value as epoch seconds, or -1.
func (n *Std) ReadDate(h int32) float64 {
	v, ok := n.read(h)
	if !ok {
		return -1
	}
	t, ok := v.AsTime()
	if !ok {
		return -1
	}
	return toEpoch(t)
}

// ReadDateString parses a string value with an ICU style pattern and
// returns epoch seconds, or -1. Locale and zone are optional.
func (n *Std) ReadDateString(h, fmtPtr, fmtLen, localePtr, localeLen, zonePtr, zoneLen int32) float64 {
	v, ok := n.read(h)
	if !ok {
		return -1
	}
	str, ok := v.AsString()
	if !ok {
		return -1
	}
	pattern, ok := n.s.readString(fmtPtr, fmtLen)
	if !ok || pattern == "" {
		return -1
	}
	locale := n.s.readOptional(localePtr, localeLen)
	zone := n.s.readOptional(zonePtr, zoneLen)

	t, err := datefmt.Parse(str, pattern, locale, zone)
	if err != nil {
		n.s.logger.Debug("Date parse failed",
			zap.String("value", str),
			zap.String("format", pattern),
			zap.Error(err),
		)
		return -1
	}
	return toEpoch(t)
}

func fromEpoch(seconds float64) time.Time {
	whole := math.Floor(seconds)
	return time.Unix(int64(whole), int64((seconds-whole)*1e9)).UTC()
}

func toEpoch(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

var stdFunctions = append(
	spaceFunctions("", func(s *Session) *space { return &s.Std.space }),
	def("create_date", "seconds:f64 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Std.CreateDate(argF64(st, 0)))
	}),
	def("read_date", "handle:i32 -> f64", func(_ context.Context, s *Session, st []uint64) {
		retF64(st, s.Std.ReadDate(argI32(st, 0)))
	}),
	def("read_date_string", "handle:i32 format:i32 format_len:i32 locale:i32 locale_len:i32 timezone:i32 timezone_len:i32 -> f64",
		func(_ context.Context, s *Session, st []uint64) {
			retF64(st, s.Std.ReadDateString(
				argI32(st, 0), argI32(st, 1), argI32(st, 2),
				argI32(st, 3), argI32(st, 4), argI32(st, 5), argI32(st, 6),
			))
		}),
)
