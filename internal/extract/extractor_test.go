package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/mgpai22/subtools/internal/codec"
	"github.com/mgpai22/subtools/internal/mkv"
	"github.com/mgpai22/subtools/internal/mkv/mkvtest"
	"github.com/mgpai22/subtools/internal/subtitle"
	"github.com/mgpai22/subtools/internal/timing"
)

type acceptCall struct {
	span    timing.Span
	payload string
}

type recordingSink struct {
	calls    []acceptCall
	closed   int
	closeErr error
}

func (s *recordingSink) Accept(span timing.Span, payload []byte) error {
	s.calls = append(s.calls, acceptCall{span, string(payload)})
	return nil
}

func (s *recordingSink) Close() error {
	s.closed++
	return s.closeErr
}

type recordingFactory struct {
	sinks map[uint64]*recordingSink
	fail  map[uint64]error
}

func newRecordingFactory() *recordingFactory {
	return &recordingFactory{sinks: map[uint64]*recordingSink{}, fail: map[uint64]error{}}
}

func (f *recordingFactory) NewSink(track mkv.Track, kind codec.Kind) (Output, error) {
	if err := f.fail[track.Number]; err != nil {
		return Output{}, err
	}
	if kind == codec.ASS {
		return Output{}, ErrUnsupported
	}
	s := &recordingSink{}
	f.sinks[track.Number] = s
	return Output{Sink: s, Path: OutputName("test", track.Number, track.Lang(), kind.Extension())}, nil
}

type fakeContainer struct {
	info   mkv.Info
	tracks []mkv.Track
	frames []mkv.Frame
	errAt  int
	err    error
	closed bool
}

func (c *fakeContainer) Info() mkv.Info      { return c.info }
func (c *fakeContainer) Tracks() []mkv.Track { return c.tracks }
func (c *fakeContainer) Close() error        { c.closed = true; return nil }

func (c *fakeContainer) Next() (mkv.Frame, error) {
	if c.err != nil && c.errAt == 0 {
		return mkv.Frame{}, c.err
	}
	c.errAt--
	if len(c.frames) == 0 {
		return mkv.Frame{}, io.EOF
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return f, nil
}

func fakeExtractor(c *fakeContainer, f *recordingFactory) *Extractor {
	return &Extractor{
		Open:  func(string) (Container, error) { return c, nil },
		Sinks: func(string) SinkFactory { return f },
	}
}

func subTrack(n uint64, codecID string) mkv.Track {
	return mkv.Track{Number: n, Type: mkv.TypeSubtitle, CodecID: codecID}
}

func frame(track uint64, ts int64, dur uint64, payload string) mkv.Frame {
	return mkv.Frame{Track: track, Timestamp: ts, Duration: dur, HasDuration: dur > 0, Payload: []byte(payload)}
}

func TestRunDropsUnselectedFrames(t *testing.T) {
	c := &fakeContainer{
		info: mkv.Info{TimestampScale: 1_000_000},
		tracks: []mkv.Track{
			{Number: 1, Type: mkv.TypeVideo, CodecID: "V_VP9"},
			subTrack(2, "S_TEXT/UTF8"),
			subTrack(3, "S_TEXT/ASS"),
			subTrack(4, "S_KATE"),
		},
		frames: []mkv.Frame{
			frame(1, 0, 40, "video"),
			frame(2, 1000, 2000, "Hello"),
			frame(3, 1500, 500, "{\\i1}ass"),
			frame(4, 1600, 500, "kate"),
			frame(9, 1700, 500, "stray"),
			frame(2, 4000, 1500, "World"),
		},
	}
	f := newRecordingFactory()
	rep, err := fakeExtractor(c, f).Run(context.Background(), "in.mkv")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.State != StateDone {
		t.Errorf("State = %s", rep.State)
	}
	if rep.Dropped != 4 {
		t.Errorf("Dropped = %d, want 4", rep.Dropped)
	}
	if !c.closed {
		t.Error("container not closed")
	}

	if len(f.sinks) != 1 {
		t.Fatalf("sinks created for %d tracks, want 1", len(f.sinks))
	}
	sink := f.sinks[2]
	want := []acceptCall{
		{timing.Span{Start: time.Second, End: 3 * time.Second}, "Hello"},
		{timing.Span{Start: 4 * time.Second, End: 5500 * time.Millisecond}, "World"},
	}
	if len(sink.calls) != len(want) {
		t.Fatalf("calls = %+v", sink.calls)
	}
	for i := range want {
		if sink.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, sink.calls[i], want[i])
		}
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times", sink.closed)
	}

	if len(rep.Tracks) != 3 {
		t.Fatalf("Tracks = %+v", rep.Tracks)
	}
	if rep.Tracks[0].Frames != 2 || rep.Tracks[0].Output == "" {
		t.Errorf("track 2 result = %+v", rep.Tracks[0])
	}
	if rep.Tracks[1].Skipped == "" || rep.Tracks[2].Skipped != "unknown codec" {
		t.Errorf("skip reasons = %q, %q", rep.Tracks[1].Skipped, rep.Tracks[2].Skipped)
	}
}

func TestRunDefaultDuration(t *testing.T) {
	track := subTrack(5, "S_TEXT/UTF8")
	track.DefaultDuration = 2_500_000_000
	c := &fakeContainer{
		info:   mkv.Info{TimestampScale: 1_000_000},
		tracks: []mkv.Track{track},
		frames: []mkv.Frame{frame(5, 100, 0, "a"), frame(5, 200, 50, "b")},
	}
	f := newRecordingFactory()
	if _, err := fakeExtractor(c, f).Run(context.Background(), "in.mkv"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	calls := f.sinks[5].calls
	if calls[0].span.End != 2600*time.Millisecond {
		t.Errorf("default duration span = %v", calls[0].span)
	}
	if calls[1].span.End != 250*time.Millisecond {
		t.Errorf("frame duration span = %v", calls[1].span)
	}
}

func TestRunZeroFrameDurationBeatsDefault(t *testing.T) {
	track := subTrack(5, "S_TEXT/UTF8")
	track.DefaultDuration = 2_000_000_000
	zero := mkv.Frame{Track: 5, Timestamp: 300, Duration: 0, HasDuration: true, Payload: []byte("blink")}
	c := &fakeContainer{
		info:   mkv.Info{TimestampScale: 1_000_000},
		tracks: []mkv.Track{track},
		frames: []mkv.Frame{zero},
	}
	f := newRecordingFactory()
	if _, err := fakeExtractor(c, f).Run(context.Background(), "in.mkv"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	span := f.sinks[5].calls[0].span
	if span.Start != 300*time.Millisecond || span.End != 300*time.Millisecond {
		t.Errorf("span = %+v, want a zero-length span at 300ms", span)
	}
}

func TestRunRoundsDefaultDuration(t *testing.T) {
	track := subTrack(5, "S_TEXT/UTF8")
	track.DefaultDuration = 41_708_333
	c := &fakeContainer{
		info:   mkv.Info{TimestampScale: 1_000_000},
		tracks: []mkv.Track{track},
		frames: []mkv.Frame{frame(5, 1000, 0, "a")},
	}
	f := newRecordingFactory()
	if _, err := fakeExtractor(c, f).Run(context.Background(), "in.mkv"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if end := f.sinks[5].calls[0].span.End; end != 1042*time.Millisecond {
		t.Errorf("span end = %v, want 1.042s", end)
	}
}

func TestRunTinyDefaultDurationIsMissing(t *testing.T) {
	track := subTrack(5, "S_TEXT/UTF8")
	track.DefaultDuration = 400_000
	c := &fakeContainer{
		info:   mkv.Info{TimestampScale: 1_000_000},
		tracks: []mkv.Track{track},
		frames: []mkv.Frame{frame(5, 1000, 0, "a")},
	}
	f := newRecordingFactory()
	rep, err := fakeExtractor(c, f).Run(context.Background(), "in.mkv")
	if !errors.Is(err, timing.ErrMissingDuration) {
		t.Fatalf("Run() error = %v, want ErrMissingDuration", err)
	}
	if rep.State != StateAborted || len(f.sinks[5].calls) != 0 {
		t.Errorf("state = %v, calls = %d", rep.State, len(f.sinks[5].calls))
	}
}

func TestRunAborts(t *testing.T) {
	readErr := errors.New("disk on fire")
	tests := []struct {
		name    string
		frames  []mkv.Frame
		err     error
		wantErr error
		wantN   int
	}{
		{
			name:    "missing duration",
			frames:  []mkv.Frame{frame(2, 0, 100, "ok"), frame(2, 200, 0, "no duration")},
			wantErr: timing.ErrMissingDuration,
			wantN:   1,
		},
		{
			name:    "negative timestamp",
			frames:  []mkv.Frame{frame(2, -5, 100, "early")},
			wantErr: timing.ErrNegativeTimestamp,
		},
		{
			name:    "laced block",
			frames:  []mkv.Frame{{Track: 2, Duration: 1, HasDuration: true, Lacing: mkv.LacingXiph}},
			wantErr: ErrLacedBlock,
		},
		{
			name:    "read error",
			frames:  []mkv.Frame{frame(2, 0, 100, "ok")},
			err:     readErr,
			wantErr: readErr,
			wantN:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeContainer{
				info:   mkv.Info{TimestampScale: 1_000_000},
				tracks: []mkv.Track{subTrack(2, "S_TEXT/UTF8")},
				frames: tt.frames,
				err:    tt.err,
				errAt:  len(tt.frames),
			}
			f := newRecordingFactory()
			rep, err := fakeExtractor(c, f).Run(context.Background(), "in.mkv")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if rep.State != StateAborted || !errors.Is(rep.Err, tt.wantErr) {
				t.Errorf("report = %s / %v", rep.State, rep.Err)
			}
			sink := f.sinks[2]
			if len(sink.calls) != tt.wantN {
				t.Errorf("accepted %d frames, want %d", len(sink.calls), tt.wantN)
			}
			if sink.closed != 1 {
				t.Errorf("sink closed %d times after abort", sink.closed)
			}
		})
	}
}

func TestRunCloseErrorAborts(t *testing.T) {
	c := &fakeContainer{
		info:   mkv.Info{TimestampScale: 1_000_000},
		tracks: []mkv.Track{subTrack(2, "S_TEXT/UTF8"), subTrack(3, "S_TEXT/UTF8")},
		frames: []mkv.Frame{frame(2, 0, 10, "a"), frame(3, 0, 10, "b")},
	}
	closeErr := errors.New("flush failed")
	f := &closeFailFactory{recordingFactory: newRecordingFactory(), failTrack: 2, err: closeErr}
	rep, err := fakeExtractor(c, f.recordingFactory).withSinks(f).Run(context.Background(), "in.mkv")
	if !errors.Is(err, closeErr) {
		t.Fatalf("Run() error = %v, want %v", err, closeErr)
	}
	if rep.State != StateAborted {
		t.Errorf("State = %s", rep.State)
	}
	if f.sinks[3].closed != 1 {
		t.Error("sibling sink not closed")
	}
	if !errors.Is(rep.Tracks[0].Err, closeErr) || rep.Tracks[1].Err != nil {
		t.Errorf("track errors = %v / %v", rep.Tracks[0].Err, rep.Tracks[1].Err)
	}
}

type closeFailFactory struct {
	*recordingFactory
	failTrack uint64
	err       error
}

func (f *closeFailFactory) NewSink(track mkv.Track, kind codec.Kind) (Output, error) {
	out, err := f.recordingFactory.NewSink(track, kind)
	if err == nil && track.Number == f.failTrack {
		f.sinks[track.Number].closeErr = f.err
	}
	return out, err
}

func (e *Extractor) withSinks(f SinkFactory) *Extractor {
	e.Sinks = func(string) SinkFactory { return f }
	return e
}

func TestRunSinkFailureIsPerTrack(t *testing.T) {
	c := &fakeContainer{
		info:   mkv.Info{TimestampScale: 1_000_000},
		tracks: []mkv.Track{subTrack(2, "S_TEXT/UTF8"), subTrack(3, "S_TEXT/UTF8")},
		frames: []mkv.Frame{frame(2, 0, 10, "a"), frame(3, 0, 10, "b")},
	}
	f := newRecordingFactory()
	f.fail[2] = errors.New("permission denied")
	rep, err := fakeExtractor(c, f).Run(context.Background(), "in.mkv")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Tracks[0].Err == nil {
		t.Error("failed track has no error")
	}
	if len(f.sinks[3].calls) != 1 {
		t.Errorf("sibling track got %d frames", len(f.sinks[3].calls))
	}
	if rep.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1 (frames of the failed track)", rep.Dropped)
	}
}

func TestRunContextCanceled(t *testing.T) {
	c := &fakeContainer{
		info:   mkv.Info{TimestampScale: 1_000_000},
		tracks: []mkv.Track{subTrack(2, "S_TEXT/UTF8")},
		frames: []mkv.Frame{frame(2, 0, 10, "a")},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := fakeExtractor(c, newRecordingFactory()).Run(ctx, "in.mkv")
	if !errors.Is(err, context.Canceled) || rep.State != StateAborted {
		t.Errorf("Run() = %s / %v", rep.State, err)
	}
}

// files on disk, through the real reader and sinks

func writeSample(t *testing.T, dir string, b *mkvtest.Builder) string {
	t.Helper()
	path := filepath.Join(dir, "movie.mkv")
	b.WriteFile(t, path)
	return path
}

func textBuilder() *mkvtest.Builder {
	return mkvtest.New().
		AddTrack(mkvtest.Track{Number: 1, Type: mkvtest.TypeVideo, CodecID: "V_MPEG4/ISO/AVC"}).
		AddTrack(mkvtest.Track{Number: 2, Type: mkvtest.TypeSubtitle, CodecID: "S_TEXT/UTF8", Language: "eng"}).
		AddTrack(mkvtest.Track{Number: 3, Type: mkvtest.TypeSubtitle, CodecID: "S_TEXT/ASS", Language: "jpn"}).
		Cluster(0,
			mkvtest.Block{Track: 1, Payload: []byte{0}},
			mkvtest.Block{Track: 2, Timecode: 1000, Payload: []byte("Hello"), Duration: 2000, HasDuration: true},
			mkvtest.Block{Track: 3, Timecode: 1000, Payload: []byte("0,0,Default,,0,0,0,,Hi"), Duration: 2000, HasDuration: true},
		).
		Cluster(4000,
			mkvtest.Block{Track: 2, Timecode: 0, Payload: []byte("World"), Duration: 1500, HasDuration: true},
		)
}

func fileExtractor(outDir string) *Extractor {
	return &Extractor{Sinks: FileSinks(outDir, false, PNGImages{})}
}

func TestExtractSRTFile(t *testing.T) {
	dir := t.TempDir()
	in := writeSample(t, dir, textBuilder())
	outDir := filepath.Join(dir, "out")

	rep, err := fileExtractor(outDir).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	path := filepath.Join(outDir, "movie.2.eng.srt")
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	want := "\ufeff1\n00:00:01,000 --> 00:00:03,000\nHello\n\n2\n00:00:04,000 --> 00:00:05,500\nWorld\n\n"
	if string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	// the ASS track is skipped and leaves nothing behind
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 1 {
		t.Errorf("output dir has %d entries, want 1", len(entries))
	}
	if outs := rep.Outputs(); len(outs) != 1 || outs[0] != path {
		t.Errorf("Outputs() = %v", outs)
	}
	if rep.Tracks[1].Skipped == "" {
		t.Errorf("ASS track not reported as skipped: %+v", rep.Tracks[1])
	}
}

func TestExtractScaleMismatch(t *testing.T) {
	dir := t.TempDir()
	in := writeSample(t, dir, textBuilder().TimestampScale(100_000))
	outDir := filepath.Join(dir, "out")

	rep, err := fileExtractor(outDir).Run(context.Background(), in)
	if !errors.Is(err, timing.ErrTimestampScale) {
		t.Fatalf("Run() error = %v, want ErrTimestampScale", err)
	}
	if rep.State != StateAborted {
		t.Errorf("State = %s", rep.State)
	}
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Errorf("output directory created on scale mismatch: %v", err)
	}
}

func TestExtractExistingOutputFailsTrack(t *testing.T) {
	dir := t.TempDir()
	in := writeSample(t, dir, textBuilder())
	existing := filepath.Join(dir, "movie.2.eng.srt")
	if err := os.WriteFile(existing, []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}

	rep, err := fileExtractor("").Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !errors.Is(rep.Tracks[0].Err, subtitle.ErrOutputExists) {
		t.Errorf("track error = %v, want ErrOutputExists", rep.Tracks[0].Err)
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "keep me" {
		t.Errorf("existing output overwritten: %q", data)
	}

	// with overwrite the track is written
	ex := &Extractor{Sinks: FileSinks("", true, nil)}
	if _, err := ex.Run(context.Background(), in); err != nil {
		t.Fatalf("Run(overwrite) error = %v", err)
	}
	data, _ = os.ReadFile(existing)
	if !bytes.Contains(data, []byte("Hello")) {
		t.Errorf("overwrite output = %q", data)
	}
}

func TestExtractWebVTT(t *testing.T) {
	dir := t.TempDir()
	b := mkvtest.New().
		AddTrack(mkvtest.Track{Number: 4, Type: mkvtest.TypeSubtitle, CodecID: "D_WEBVTT/SUBTITLES", CodecPrivate: []byte("STYLE\n::cue { color: lime }\n")}).
		Cluster(0, mkvtest.Block{Track: 4, Timecode: 500, Payload: []byte("Hi"), Duration: 1000, HasDuration: true})
	in := writeSample(t, dir, b)

	if _, err := fileExtractor("").Run(context.Background(), in); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "movie.4.vtt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	want := "WEBVTT\n\nSTYLE\n::cue { color: lime }\n\n00:00:00.500 --> 00:00:01.500\nHi\n\n"
	if string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestExtractMalformedUTF8KeepsPartialOutput(t *testing.T) {
	dir := t.TempDir()
	b := mkvtest.New().
		AddTrack(mkvtest.Track{Number: 2, Type: mkvtest.TypeSubtitle, CodecID: "S_TEXT/UTF8"}).
		Cluster(0,
			mkvtest.Block{Track: 2, Timecode: 0, Payload: []byte("fine"), Duration: 10, HasDuration: true},
			mkvtest.Block{Track: 2, Timecode: 20, Payload: []byte{0xc3, 0x28}, Duration: 10, HasDuration: true},
		)
	in := writeSample(t, dir, b)

	rep, err := fileExtractor("").Run(context.Background(), in)
	if !errors.Is(err, subtitle.ErrMalformedPayload) {
		t.Fatalf("Run() error = %v, want ErrMalformedPayload", err)
	}
	if rep.State != StateAborted {
		t.Errorf("State = %s", rep.State)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "movie.2.srt"))
	if !bytes.Contains(got, []byte("fine")) {
		t.Errorf("flushed output missing: %q", got)
	}
}

func TestExtractImagesDisabled(t *testing.T) {
	dir := t.TempDir()
	b := mkvtest.New().
		AddTrack(mkvtest.Track{Number: 2, Type: mkvtest.TypeSubtitle, CodecID: "S_HDMV/PGS"}).
		Cluster(0, mkvtest.Block{Track: 2, Payload: []byte{0x80, 0x00, 0x00}, Duration: 10, HasDuration: true})
	in := writeSample(t, dir, b)

	ex := &Extractor{Sinks: FileSinks("", false, nil)}
	rep, err := ex.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Tracks[0].Skipped == "" || rep.State != StateDone {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Outputs()) != 0 {
		t.Errorf("Outputs() = %v", rep.Outputs())
	}
}

func TestExtractBadVobSubIndexFailsTrack(t *testing.T) {
	dir := t.TempDir()
	b := mkvtest.New().
		AddTrack(mkvtest.Track{Number: 2, Type: mkvtest.TypeSubtitle, CodecID: "S_VOBSUB", CodecPrivate: []byte("size: 720x480\n")}).
		AddTrack(mkvtest.Track{Number: 3, Type: mkvtest.TypeSubtitle, CodecID: "S_TEXT/UTF8"}).
		Cluster(0, mkvtest.Block{Track: 3, Payload: []byte("text"), Duration: 10, HasDuration: true})
	in := writeSample(t, dir, b)

	rep, err := fileExtractor("").Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Tracks[0].Err == nil {
		t.Error("bad index did not fail the track")
	}
	if rep.Tracks[1].Frames != 1 {
		t.Errorf("sibling frames = %d", rep.Tracks[1].Frames)
	}
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.mkv")
	textBuilder().WriteFile(t, good)
	bad := filepath.Join(dir, "bad.mkv")
	if err := os.WriteFile(bad, []byte("not a container"), 0644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.mkv")

	reports := RunBatch(context.Background(), fileExtractor(""), []string{bad, good, missing}, 2)
	if len(reports) != 3 {
		t.Fatalf("got %d reports", len(reports))
	}
	if !errors.Is(reports[0].Err, mkv.ErrNotMatroska) {
		t.Errorf("bad file error = %v", reports[0].Err)
	}
	if reports[1].State != StateDone || reports[1].Path != good {
		t.Errorf("good file report = %+v", reports[1])
	}
	if reports[2].State != StateAborted {
		t.Errorf("missing file state = %s", reports[2].State)
	}
	if _, err := os.Stat(filepath.Join(dir, "good.2.eng.srt")); err != nil {
		t.Errorf("good file output: %v", err)
	}
}

func TestRunBatchRemovesLockFiles(t *testing.T) {
	oldDir := LockDir
	LockDir = t.TempDir()
	t.Cleanup(func() { LockDir = oldDir })
	dir := t.TempDir()
	in := writeSample(t, dir, textBuilder())

	for _, out := range []string{"first", "second"} {
		reports := RunBatch(context.Background(), fileExtractor(filepath.Join(dir, out)), []string{in}, 1)
		if reports[0].Err != nil {
			t.Fatalf("%s run: %v", out, reports[0].Err)
		}
		if entries, _ := os.ReadDir(LockDir); len(entries) != 0 {
			t.Errorf("%s run left %d lock files", out, len(entries))
		}
	}
}

func TestAcquireLockRetriesRemovedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.lock")

	first, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquireLock() error = %v", err)
	}
	if _, err := acquireLock(path); !errors.Is(err, ErrLocked) {
		t.Errorf("second acquireLock() error = %v, want ErrLocked", err)
	}
	releaseLock(first)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lock file still present: %v", err)
	}

	again, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquireLock() after release error = %v", err)
	}
	releaseLock(again)
}

func TestRunBatchSkipsLockedInput(t *testing.T) {
	oldDir := LockDir
	LockDir = t.TempDir()
	t.Cleanup(func() { LockDir = oldDir })
	dir := t.TempDir()
	in := writeSample(t, dir, textBuilder())

	held := flock.New(lockPath(in))
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock() = %v, %v", locked, err)
	}
	defer held.Unlock()

	reports := RunBatch(context.Background(), fileExtractor(""), []string{in}, 1)
	if !errors.Is(reports[0].Err, ErrLocked) {
		t.Errorf("Err = %v, want ErrLocked", reports[0].Err)
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		base  string
		track uint64
		lang  string
		ext   string
		want  string
	}{
		{"movie", 3, "eng", "srt", "movie.3.eng.srt"},
		{"movie", 12, "", "vtt", "movie.12.vtt"},
		{"show.s01e01", 2, "pt-BR", "srt", "show.s01e01.2.pt-BR.srt"},
		{"movie", 4, "../etc", "srt", "movie.4.etc.srt"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.base, tt.track, tt.lang, tt.ext); got != tt.want {
			t.Errorf("OutputName(%q, %d, %q) = %q, want %q", tt.base, tt.track, tt.lang, got, tt.want)
		}
	}
	if got := BaseName("/videos/show.s01e01.mkv"); got != "show.s01e01" {
		t.Errorf("BaseName() = %q", got)
	}
}
