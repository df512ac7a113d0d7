package subtitle

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/mgpai22/subtools/internal/timing"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SRTSink writes SubRip cues. Output starts with a UTF-8 BOM.
type SRTSink struct {
	w      *bufio.Writer
	closer io.Closer
	count  int
}

func NewSRTSink(w io.Writer) (*SRTSink, error) {
	s := &SRTSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	if _, err := s.w.Write(utf8BOM); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SRTSink) Accept(span timing.Span, payload []byte) error {
	if !utf8.Valid(payload) {
		return fmt.Errorf("%w: cue %d is not valid UTF-8", ErrMalformedPayload, s.count+1)
	}
	s.count++
	// index (1-based)
	_, err := fmt.Fprintf(s.w, "%d\n%s --> %s\n%s\n\n",
		s.count,
		formatSRTTime(span.Start),
		formatSRTTime(span.End),
		payload)
	return err
}

// Count reports the number of cues written so far.
func (s *SRTSink) Count() int {
	return s.count
}

func (s *SRTSink) Close() error {
	return closeWriter(s.w, s.closer)
}

// VTTSink writes WebVTT cues after the optional track header block.
type VTTSink struct {
	w      *bufio.Writer
	closer io.Closer
	count  int
}

func NewVTTSink(w io.Writer, header []byte) (*VTTSink, error) {
	if !utf8.Valid(header) {
		return nil, fmt.Errorf("%w: WebVTT header is not valid UTF-8", ErrMalformedPayload)
	}
	s := &VTTSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}

	s.w.WriteString("WEBVTT\n\n")
	// the header is copied as is; only the blank line ending it is added
	if len(header) > 0 {
		s.w.Write(header)
		switch {
		case bytes.HasSuffix(header, []byte("\n\n")), bytes.HasSuffix(header, []byte("\r\n\r\n")):
		case bytes.HasSuffix(header, []byte("\n")):
			s.w.WriteString("\n")
		default:
			s.w.WriteString("\n\n")
		}
	}
	// bufio keeps the first write error
	if err := s.w.Flush(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *VTTSink) Accept(span timing.Span, payload []byte) error {
	if !utf8.Valid(payload) {
		return fmt.Errorf("%w: cue %d is not valid UTF-8", ErrMalformedPayload, s.count+1)
	}
	s.count++
	_, err := fmt.Fprintf(s.w, "%s --> %s\n%s\n\n",
		formatVTTTime(span.Start),
		formatVTTTime(span.End),
		payload)
	return err
}

func (s *VTTSink) Count() int {
	return s.count
}

func (s *VTTSink) Close() error {
	return closeWriter(s.w, s.closer)
}

func closeWriter(w *bufio.Writer, c io.Closer) error {
	err := w.Flush()
	if c != nil {
		err = errors.Join(err, c.Close())
	}
	return err
}

func formatSRTTime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

func formatVTTTime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
