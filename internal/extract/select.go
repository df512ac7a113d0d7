package extract

import (
	"errors"

	"github.com/mgpai22/subtools/internal/codec"
	"github.com/mgpai22/subtools/internal/logging"
	"github.com/mgpai22/subtools/internal/mkv"
	"github.com/mgpai22/subtools/internal/subtitle"
	"github.com/mgpai22/subtools/internal/timing"
)

// ActiveTrack is a selected track with its open sink.
type ActiveTrack struct {
	Track           mkv.Track
	Kind            codec.Kind
	DefaultDuration timing.Duration
	Sink            subtitle.Sink
	Output          string

	frames int
	result int
}

// TrackResult is the outcome for one subtitle track of a container.
type TrackResult struct {
	Number   uint64
	CodecID  string
	Language string
	Output   string
	Frames   int
	// set when the track was not extracted on purpose
	Skipped string
	// set when the track failed
	Err error
}

// Select opens a sink for every subtitle track that can be extracted.
// Non-subtitle tracks are ignored; unknown and unsupported codecs are
// skipped and sink errors fail only the track concerned.
func Select(tracks []mkv.Track, factory SinkFactory, log *logging.Logger) (map[uint64]*ActiveTrack, []TrackResult) {
	active := make(map[uint64]*ActiveTrack)
	var results []TrackResult

	for _, track := range tracks {
		if track.Type != mkv.TypeSubtitle {
			continue
		}
		res := TrackResult{
			Number:   track.Number,
			CodecID:  track.CodecID,
			Language: track.Lang(),
		}
		tlog := log.With("track", track.Number, "codec", track.CodecID)

		kind, err := codec.Resolve(track.CodecID)
		if err != nil {
			tlog.Warnw("Skipping track with unknown codec")
			res.Skipped = "unknown codec"
			results = append(results, res)
			continue
		}

		out, err := factory.NewSink(track, kind)
		switch {
		case errors.Is(err, ErrUnsupported):
			tlog.Infow("Skipping unsupported subtitle track", "reason", err)
			res.Skipped = err.Error()
			results = append(results, res)
			continue
		case err != nil:
			tlog.Errorw("Failed to create output for track", "error", err)
			res.Err = err
			results = append(results, res)
			continue
		}

		res.Output = out.Path
		at := &ActiveTrack{
			Track:  track,
			Kind:   kind,
			Sink:   out.Sink,
			Output: out.Path,
			result: len(results),
		}
		if track.DefaultDuration > 0 {
			at.DefaultDuration = timing.FromNanoseconds(track.DefaultDuration)
			if !at.DefaultDuration.Valid {
				tlog.Warnw("Ignoring default duration shorter than half a millisecond", "ns", track.DefaultDuration)
			}
		}
		active[track.Number] = at
		results = append(results, res)
		tlog.Debugw("Selected track", "output", out.Path, "language", res.Language)
	}
	return active, results
}
