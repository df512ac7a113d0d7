package ocr

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/mgpai22/subtools/internal/logging"
	"github.com/mgpai22/subtools/internal/mkv"
	"github.com/mgpai22/subtools/internal/subtitle"
	"github.com/mgpai22/subtools/internal/timing"
)

// Pipeline recognizes each bitmap and writes the text as a SubRip cue.
// Bitmaps without text, or with nothing recognized, produce no cue.
type Pipeline struct {
	ctx  context.Context
	rec  Recognizer
	sink *subtitle.SRTSink
	opts PrepareOptions
	log  *logging.Logger

	images int
	empty  int
}

func NewPipeline(ctx context.Context, rec Recognizer, sink *subtitle.SRTSink, log *logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Nop()
	}
	return &Pipeline{
		ctx:  ctx,
		rec:  rec,
		sink: sink,
		opts: DefaultPrepareOptions,
		log:  log,
	}
}

func (p *Pipeline) HandleImage(span timing.Span, img image.Image) error {
	p.images++
	data, ok, err := EncodePNG(img, p.opts)
	if err != nil {
		return fmt.Errorf("preparing image %d: %w", p.images, err)
	}
	if !ok {
		p.empty++
		return nil
	}

	text, err := p.rec.Recognize(p.ctx, data)
	if err != nil {
		return fmt.Errorf("image %d: %w", p.images, err)
	}
	if text == "" {
		p.empty++
		p.log.Debugw("no text recognized", "image", p.images, "start", span.Start)
		return nil
	}
	p.log.Debugw("recognized", "image", p.images, "text", truncateString(text, 60))
	return p.sink.Accept(span, []byte(text))
}

// Cues reports how many lines were written.
func (p *Pipeline) Cues() int {
	return p.sink.Count()
}

func (p *Pipeline) Close() error {
	if p.empty > 0 {
		p.log.Infow("images without text", "count", p.empty, "of", p.images)
	}
	return p.sink.Close()
}

// Handlers builds an OCR pipeline per image track, writing <stem>.srt.
type Handlers struct {
	Ctx        context.Context
	Recognizer Recognizer
	Log        *logging.Logger
}

func (h *Handlers) NewImageHandler(track mkv.Track, stem string, overwrite bool) (subtitle.ImageHandler, string, error) {
	path := stem + ".srt"
	p, err := h.Create(path, overwrite)
	if err != nil {
		return nil, "", err
	}
	return p, path, nil
}

// Create opens path for a new pipeline. Existing files are kept unless
// overwrite is set.
func (h *Handlers) Create(path string, overwrite bool) (*Pipeline, error) {
	f, err := subtitle.CreateFile(path, overwrite)
	if err != nil {
		return nil, err
	}
	sink, err := subtitle.NewSRTSink(f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	ctx := h.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	log := h.Log
	if log != nil {
		log = log.With("output", path)
	}
	return NewPipeline(ctx, h.Recognizer, sink, log), nil
}
