package subtitle

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/mgpai22/subtools/internal/timing"
)

const imageIndexName = "index.srt"

// ImageDir saves each bitmap as NNNN.png and keeps an index.srt whose cues
// name the image shown at that time.
type ImageDir struct {
	dir       string
	overwrite bool
	index     *SRTSink
	n         int
}

func NewImageDir(dir string, overwrite bool) (*ImageDir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	f, err := CreateFile(filepath.Join(dir, imageIndexName), overwrite)
	if err != nil {
		return nil, err
	}
	index, err := NewSRTSink(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ImageDir{dir: dir, overwrite: overwrite, index: index}, nil
}

func (d *ImageDir) Dir() string {
	return d.dir
}

func (d *ImageDir) HandleImage(span timing.Span, img image.Image) error {
	d.n++
	name := fmt.Sprintf("%04d.png", d.n)
	f, err := CreateFile(filepath.Join(d.dir, name), d.overwrite)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		return errors.Join(fmt.Errorf("encoding %s: %w", name, err), f.Close())
	}
	if err := f.Close(); err != nil {
		return err
	}
	return d.index.Accept(span, []byte(name))
}

func (d *ImageDir) Close() error {
	return d.index.Close()
}
