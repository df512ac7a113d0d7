package pgs

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/mgpai22/subtools/internal/timing"
)

const (
	supMagic      = "PG"
	supHeaderSize = 13
	ptsClock      = 90_000
)

// LastCueDuration is how long the final image of a .sup stream stays on
// screen when no display set follows it.
const LastCueDuration = 5 * time.Second

// SupReader reads display sets from a standalone .sup stream, where each
// segment carries a "PG" header with presentation timestamps.
type SupReader struct {
	r *bufio.Reader
}

func NewSupReader(r io.Reader) *SupReader {
	return &SupReader{r: bufio.NewReader(r)}
}

// SupDisplaySet is one display set with the PTS of its first segment.
type SupDisplaySet struct {
	PTS      time.Duration
	segments []segment
}

// Next returns the next display set, or io.EOF at the end of the stream.
func (s *SupReader) Next() (SupDisplaySet, error) {
	var set SupDisplaySet
	for {
		var hdr [supHeaderSize]byte
		if _, err := io.ReadFull(s.r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) && len(set.segments) == 0 {
				return set, io.EOF
			}
			return set, fmt.Errorf("%w: truncated .sup header: %v", ErrInvalidSegment, err)
		}
		if string(hdr[0:2]) != supMagic {
			return set, fmt.Errorf("%w: bad magic %q", ErrInvalidSegment, hdr[0:2])
		}
		pts := binary.BigEndian.Uint32(hdr[2:6])
		kind := hdr[10]
		size := int(binary.BigEndian.Uint16(hdr[11:13]))
		data := make([]byte, size)
		if _, err := io.ReadFull(s.r, data); err != nil {
			return set, fmt.Errorf("%w: truncated segment: %v", ErrInvalidSegment, err)
		}
		if len(set.segments) == 0 {
			set.PTS = time.Duration(pts) * time.Second / ptsClock
		}
		set.segments = append(set.segments, segment{kind: kind, data: data})
		if kind == segmentEnd {
			return set, nil
		}
	}
}

// DecodeSup decodes a .sup stream and calls fn for every displayed image.
// An image stays on screen until the next display set starts.
func DecodeSup(r io.Reader, fn func(span timing.Span, img image.Image) error) error {
	reader := NewSupReader(r)
	dec := NewDecoder()

	var (
		pending      *image.NRGBA
		pendingStart time.Duration
	)
	for {
		set, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		ds, err := dec.decodeSegments(set.segments)
		if err != nil {
			return fmt.Errorf("display set at %s: %w", set.PTS, err)
		}
		if pending != nil {
			end := max(set.PTS, pendingStart)
			if err := fn(timing.Span{Start: pendingStart, End: end}, pending); err != nil {
				return err
			}
			pending = nil
		}
		if ds.Image != nil {
			pending, pendingStart = ds.Image, set.PTS
		}
	}
	if pending != nil {
		return fn(timing.Span{Start: pendingStart, End: pendingStart + LastCueDuration}, pending)
	}
	return nil
}
