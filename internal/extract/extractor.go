// Package extract pulls subtitle tracks out of Matroska containers and
// writes each one through a subtitle sink.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/mgpai22/subtools/internal/logging"
	"github.com/mgpai22/subtools/internal/mkv"
	"github.com/mgpai22/subtools/internal/timing"
)

// ErrLacedBlock is returned for laced blocks on an extracted track;
// subtitle tracks carry one frame per block.
var ErrLacedBlock = errors.New("laced block on subtitle track")

// Container is the demuxer contract the extractor relies on.
type Container interface {
	Info() mkv.Info
	Tracks() []mkv.Track
	// Next returns io.EOF once every frame has been read.
	Next() (mkv.Frame, error)
	Close() error
}

type Opener func(path string) (Container, error)

func OpenMatroska(path string) (Container, error) {
	return mkv.Open(path)
}

type State int

const (
	StateIdle State = iota
	StateOpened
	StateStreaming
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpened:
		return "opened"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Report describes one extraction run. Outputs written before an abort
// are left on disk.
type Report struct {
	Path    string
	State   State
	Tracks  []TrackResult
	Dropped int
	Err     error
}

// Outputs lists the files written by tracks that were extracted.
func (r *Report) Outputs() []string {
	var out []string
	for _, t := range r.Tracks {
		if t.Output != "" {
			out = append(out, t.Output)
		}
	}
	return out
}

// Extractor runs the extraction of single containers. Each Run starts
// from a clean state, so one Extractor can serve many files.
type Extractor struct {
	Open Opener
	// Sinks builds the sink factory for one input path.
	Sinks func(path string) SinkFactory
	Log   *logging.Logger
}

// FileSinks returns a Sinks function writing into dir, or next to each
// input when dir is empty.
func FileSinks(dir string, overwrite bool, images ImageHandlerFactory) func(string) SinkFactory {
	return func(path string) SinkFactory {
		outDir := dir
		if outDir == "" {
			outDir = filepath.Dir(path)
		}
		return &FileSinkFactory{
			Dir:       outDir,
			BaseName:  BaseName(path),
			Overwrite: overwrite,
			Images:    images,
		}
	}
}

func (e *Extractor) Run(ctx context.Context, path string) (*Report, error) {
	rep := &Report{Path: path, State: StateIdle}
	log := e.logger().With("file", path)

	open := e.Open
	if open == nil {
		open = OpenMatroska
	}
	c, err := open(path)
	if err != nil {
		return rep.abort(fmt.Errorf("opening container: %w", err))
	}
	defer c.Close()
	rep.State = StateOpened

	info := c.Info()
	if err := timing.CheckScale(info.TimestampScale); err != nil {
		log.Errorw("Unsupported timestamp scale", "scale", info.TimestampScale)
		return rep.abort(err)
	}

	active, results := Select(c.Tracks(), e.Sinks(path), log)
	rep.Tracks = results
	if len(active) == 0 {
		log.Infow("No extractable subtitle tracks")
		rep.State = StateDone
		return rep, nil
	}

	rep.State = StateStreaming
	log.Infow("Extracting subtitle tracks", "tracks", len(active))
	streamErr := e.stream(ctx, c, active, rep)
	closeErr := closeTracks(active, rep)

	if rep.Dropped > 0 {
		log.Debugw("Dropped frames of unselected tracks", "frames", rep.Dropped)
	}
	if streamErr != nil {
		log.Errorw("Extraction aborted", "error", streamErr)
		return rep.abort(errors.Join(streamErr, closeErr))
	}
	if closeErr != nil {
		log.Errorw("Failed to finalize outputs", "error", closeErr)
		return rep.abort(closeErr)
	}

	rep.State = StateDone
	for _, t := range rep.Tracks {
		if t.Output != "" {
			log.Infow("Track extracted", "track", t.Number, "output", t.Output, "frames", t.Frames)
		}
	}
	return rep, nil
}

func (e *Extractor) stream(ctx context.Context, c Container, active map[uint64]*ActiveTrack, rep *Report) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := c.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}

		at, ok := active[f.Track]
		if !ok {
			rep.Dropped++
			continue
		}
		if f.Lacing != mkv.LacingNone {
			return fmt.Errorf("track %d at %d: %w", f.Track, f.Timestamp, ErrLacedBlock)
		}
		payload, err := at.Track.Decode(f.Payload)
		if err != nil {
			return fmt.Errorf("track %d at %d: %w", f.Track, f.Timestamp, err)
		}

		var frameDur timing.Duration
		if f.HasDuration {
			frameDur = timing.Units(f.Duration)
		}
		span, err := timing.Resolve(f.Timestamp, frameDur, at.DefaultDuration)
		if err != nil {
			return fmt.Errorf("track %d at %d: %w", f.Track, f.Timestamp, err)
		}
		if err := at.Sink.Accept(span, payload); err != nil {
			return fmt.Errorf("track %d: writing %s: %w", f.Track, at.Output, err)
		}
		at.frames++
	}
}

// closes every sink, in track order for stable error messages
func closeTracks(active map[uint64]*ActiveTrack, rep *Report) error {
	numbers := make([]uint64, 0, len(active))
	for n := range active {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	var errs []error
	for _, n := range numbers {
		at := active[n]
		res := &rep.Tracks[at.result]
		res.Frames = at.frames
		if err := at.Sink.Close(); err != nil {
			err = fmt.Errorf("track %d: closing %s: %w", n, at.Output, err)
			res.Err = err
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Report) abort(err error) (*Report, error) {
	r.State = StateAborted
	r.Err = err
	return r, err
}

func (e *Extractor) logger() *logging.Logger {
	if e.Log == nil {
		return logging.Nop()
	}
	return e.Log
}
