package subtitle

import (
	"fmt"

	"github.com/mgpai22/subtools/internal/timing"
)

// ImageSink decodes bitmap subtitle frames and passes them on to a handler.
type ImageSink struct {
	dec     ImageDecoder
	handler ImageHandler
	images  int
}

func NewImageSink(dec ImageDecoder, handler ImageHandler) *ImageSink {
	return &ImageSink{dec: dec, handler: handler}
}

func (s *ImageSink) Accept(span timing.Span, payload []byte) error {
	img, err := s.dec.DecodeImage(payload)
	if err != nil {
		return fmt.Errorf("decoding image at %s: %w", formatSRTTime(span.Start), err)
	}
	if img == nil {
		return nil
	}
	s.images++
	return s.handler.HandleImage(span, img)
}

// Images reports how many decoded bitmaps reached the handler.
func (s *ImageSink) Images() int {
	return s.images
}

func (s *ImageSink) Close() error {
	return s.handler.Close()
}
