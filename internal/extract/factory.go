package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mgpai22/subtools/internal/codec"
	"github.com/mgpai22/subtools/internal/mkv"
	"github.com/mgpai22/subtools/internal/pgs"
	"github.com/mgpai22/subtools/internal/subtitle"
	"github.com/mgpai22/subtools/internal/vobsub"
)

// ErrUnsupported is returned by a SinkFactory for recognized codecs it has
// no sink for. The track is skipped rather than failed.
var ErrUnsupported = errors.New("codec not supported for extraction")

// Output is a sink ready to receive a track's frames.
type Output struct {
	Sink subtitle.Sink
	// file or directory the sink writes to
	Path string
}

type SinkFactory interface {
	NewSink(track mkv.Track, kind codec.Kind) (Output, error)
}

// ImageHandlerFactory builds the destination of decoded bitmaps for one
// image track. stem is the output path without extension.
type ImageHandlerFactory interface {
	NewImageHandler(track mkv.Track, stem string, overwrite bool) (subtitle.ImageHandler, string, error)
}

// PNGImages writes bitmaps as numbered PNG files with an index.srt.
type PNGImages struct{}

func (PNGImages) NewImageHandler(track mkv.Track, stem string, overwrite bool) (subtitle.ImageHandler, string, error) {
	dir := stem + ".images"
	h, err := subtitle.NewImageDir(dir, overwrite)
	if err != nil {
		return nil, "", err
	}
	return h, dir, nil
}

// FileSinkFactory writes each track next to the others in Dir.
type FileSinkFactory struct {
	Dir       string
	BaseName  string
	Overwrite bool
	// nil disables image codecs
	Images ImageHandlerFactory
}

func (f *FileSinkFactory) NewSink(track mkv.Track, kind codec.Kind) (Output, error) {
	stem := filepath.Join(f.Dir, OutputStem(f.BaseName, track.Number, track.Lang()))
	switch kind {
	case codec.SubRip:
		return f.textSink(stem+"."+kind.Extension(), func(file *os.File) (subtitle.Sink, error) {
			return subtitle.NewSRTSink(file)
		})
	case codec.WebVTT:
		header, err := track.Private()
		if err != nil {
			return Output{}, fmt.Errorf("reading WebVTT header: %w", err)
		}
		return f.textSink(stem+"."+kind.Extension(), func(file *os.File) (subtitle.Sink, error) {
			return subtitle.NewVTTSink(file, header)
		})
	case codec.VobSub, codec.PGS:
		if f.Images == nil {
			return Output{}, fmt.Errorf("%s: image output disabled: %w", kind, ErrUnsupported)
		}
		dec, err := imageDecoder(track, kind)
		if err != nil {
			return Output{}, err
		}
		handler, path, err := f.Images.NewImageHandler(track, stem, f.Overwrite)
		if err != nil {
			return Output{}, err
		}
		return Output{Sink: subtitle.NewImageSink(dec, handler), Path: path}, nil
	default:
		return Output{}, fmt.Errorf("%s: %w", kind, ErrUnsupported)
	}
}

func (f *FileSinkFactory) textSink(path string, build func(*os.File) (subtitle.Sink, error)) (Output, error) {
	file, err := subtitle.CreateFile(path, f.Overwrite)
	if err != nil {
		return Output{}, err
	}
	sink, err := build(file)
	if err != nil {
		file.Close()
		os.Remove(path)
		return Output{}, err
	}
	return Output{Sink: sink, Path: path}, nil
}

func imageDecoder(track mkv.Track, kind codec.Kind) (subtitle.ImageDecoder, error) {
	if kind == codec.PGS {
		return pgs.NewDecoder(), nil
	}
	priv, err := track.Private()
	if err != nil {
		return nil, fmt.Errorf("reading VobSub index: %w", err)
	}
	idx, err := vobsub.ParseIndex(priv)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
