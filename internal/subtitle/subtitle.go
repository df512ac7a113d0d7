// Package subtitle writes subtitle documents one cue at a time and reads
// finished SubRip and WebVTT files back.
package subtitle

import (
	"errors"
	"image"
	"time"

	"github.com/mgpai22/subtools/internal/timing"
)

// ErrMalformedPayload is returned when a text cue is not valid UTF-8.
var ErrMalformedPayload = errors.New("malformed subtitle payload")

// represents single subtitle entry
type Entry struct {
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// represents complete subtitle track
type Subtitle struct {
	Entries []Entry
	Format  Format
}

// represents supported subtitle formats
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

// Sink consumes the frames of one track in container order.
type Sink interface {
	Accept(span timing.Span, payload []byte) error
	// Close flushes buffered output and releases the destination.
	Close() error
}

// ImageDecoder turns one frame payload into a bitmap. A nil image with a
// nil error means the frame has nothing to show.
type ImageDecoder interface {
	DecodeImage(payload []byte) (image.Image, error)
}

// ImageHandler receives decoded bitmaps, e.g. to save or recognize them.
type ImageHandler interface {
	HandleImage(span timing.Span, img image.Image) error
	Close() error
}
