package timing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// nanoseconds per container timestamp unit that downstream arithmetic assumes
	RequiredScale uint64 = 1_000_000

	// one timestamp unit once the scale invariant holds
	Unit = time.Millisecond
)

var (
	ErrTimestampScale    = errors.New("unsupported timestamp scale")
	ErrMissingDuration   = errors.New("frame has no duration and track has no default duration")
	ErrOverflow          = errors.New("timestamp arithmetic overflow")
	ErrNegativeTimestamp = errors.New("negative frame timestamp")
)

// Span is the display interval of one subtitle line. Start <= End.
type Span struct {
	Start time.Duration
	End   time.Duration
}

func (s Span) Duration() time.Duration {
	return s.End - s.Start
}

// Duration is an optional length expressed in container timestamp units
type Duration struct {
	Units uint64
	Valid bool
}

// Units returns a valid Duration of n timestamp units
func Units(n uint64) Duration {
	return Duration{Units: n, Valid: true}
}

// FromNanoseconds converts a track default duration, stored in
// nanoseconds, to timestamp units rounded to the nearest unit. A non-zero
// default under half a unit rounds to nothing and is reported as absent,
// so frames relying on it fail with ErrMissingDuration instead of getting
// zero-length spans.
func FromNanoseconds(ns uint64) Duration {
	units := ns / RequiredScale
	if ns%RequiredScale >= RequiredScale/2 {
		units++
	}
	if units == 0 {
		return Duration{}
	}
	return Units(units)
}

// CheckScale verifies the container timestamp scale is one millisecond.
func CheckScale(scale uint64) error {
	if scale != RequiredScale {
		return fmt.Errorf("%w: %d ns per unit, need %d", ErrTimestampScale, scale, RequiredScale)
	}
	return nil
}

// Resolve computes the display span of a frame. The frame's own duration wins
// over the track default; with neither, the frame cannot be emitted.
func Resolve(timestamp int64, frame, fallback Duration) (Span, error) {
	var length uint64
	switch {
	case frame.Valid:
		length = frame.Units
	case fallback.Valid:
		length = fallback.Units
	default:
		return Span{}, ErrMissingDuration
	}

	if timestamp < 0 {
		return Span{}, fmt.Errorf("%w: %d", ErrNegativeTimestamp, timestamp)
	}

	const maxUnits = math.MaxInt64 / int64(Unit)
	if length > uint64(maxUnits) || timestamp > maxUnits-int64(length) {
		return Span{}, fmt.Errorf("%w: %d + %d", ErrOverflow, timestamp, length)
	}

	end := timestamp + int64(length)
	return Span{
		Start: time.Duration(timestamp) * Unit,
		End:   time.Duration(end) * Unit,
	}, nil
}
