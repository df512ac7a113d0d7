// Package video remuxes the subtitle streams of non-Matroska containers
// into Matroska with ffmpeg so they can be extracted like any .mkv.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpegbin "github.com/mgpai22/subtools/internal/ffmpeg"
	"github.com/mgpai22/subtools/internal/mkv"
	"github.com/mgpai22/subtools/internal/timing"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// media file information
type Info struct {
	Path     string
	Duration time.Duration
	Streams  []Stream
}

// one elementary stream as reported by ffprobe
type Stream struct {
	Index    int
	Type     string // video, audio, subtitle, ...
	Codec    string
	Language string
	Title    string
}

// SubtitleStreams returns the subtitle streams in container order.
func (i *Info) SubtitleStreams() []Stream {
	var subs []Stream
	for _, s := range i.Streams {
		if s.Type == "subtitle" {
			subs = append(subs, s)
		}
	}
	return subs
}

// defines interface for video processing operations
type Processor interface {
	// retrieves media file information
	GetInfo(ctx context.Context, path string) (*Info, error)

	// copies the subtitle streams of path into a Matroska file
	RemuxSubtitles(ctx context.Context, path, outputPath string, streams []Stream) error
}

// default implementation using ffmpeg
type DefaultProcessor struct {
	tempDir string
}

func NewProcessor(tempDir string) *DefaultProcessor {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &DefaultProcessor{
		tempDir: tempDir,
	}
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		Index     int               `json:"index"`
		CodecType string            `json:"codec_type"`
		CodecName string            `json:"codec_name"`
		Tags      map[string]string `json:"tags"`
	} `json:"streams"`
}

// retrieves media file information
func (p *DefaultProcessor) GetInfo(
	ctx context.Context,
	path string,
) (*Info, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("video file not found: %s", path)
	}

	ffprobePath, err := ffmpegbin.FFprobePath()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	info, err := parseProbe(out.Bytes())
	if err != nil {
		return nil, err
	}
	info.Path = path
	return info, nil
}

func parseProbe(data []byte) (*Info, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &Info{}
	if probe.Format.Duration != "" {
		seconds, err := strconv.ParseFloat(probe.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse duration: %w", err)
		}
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	for _, s := range probe.Streams {
		info.Streams = append(info.Streams, Stream{
			Index:    s.Index,
			Type:     s.CodecType,
			Codec:    s.CodecName,
			Language: s.Tags["language"],
			Title:    s.Tags["title"],
		})
	}
	return info, nil
}

// copies the subtitle streams into a Matroska file
func (p *DefaultProcessor) RemuxSubtitles(
	ctx context.Context,
	path, outputPath string,
	streams []Stream,
) error {
	if len(streams) == 0 {
		return fmt.Errorf("no subtitle streams in %s", path)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	outputDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := ffmpegbin.FFmpegPath()
	if err != nil {
		return err
	}

	err = ffmpeg.Input(path).
		Output(outputPath, remuxArgs(streams)).
		OverWriteOutput().
		SetFfmpegPath(ffmpegPath).
		Run()

	if err != nil {
		return fmt.Errorf("ffmpeg remux failed: %w", err)
	}

	return nil
}

// remuxArgs keeps only subtitle streams. Bitmap and SubRip streams are
// copied; other text codecs (mov_text, ...) are converted to SubRip.
func remuxArgs(streams []Stream) ffmpeg.KwArgs {
	kwargs := ffmpeg.KwArgs{
		"map": "0:s",
		"f":   "matroska",
	}
	for i, s := range streams {
		kwargs["c:s:"+strconv.Itoa(i)] = subtitleCodec(s.Codec)
	}
	return kwargs
}

func subtitleCodec(codec string) string {
	switch strings.ToLower(codec) {
	case "subrip", "srt", "webvtt", "ass", "ssa", "hdmv_pgs_subtitle", "dvd_subtitle":
		return "copy"
	default:
		return "srt"
	}
}

// Remuxed is a Matroska reader over a temporary remux of another
// container. Close removes the temporary file. A source without subtitle
// streams is not remuxed and yields a Remuxed with no tracks.
type Remuxed struct {
	reader *mkv.Reader
	tmp    string
	info   mkv.Info
}

func (r *Remuxed) Info() mkv.Info {
	if r.reader == nil {
		return r.info
	}
	return r.reader.Info()
}

func (r *Remuxed) Tracks() []mkv.Track {
	if r.reader == nil {
		return nil
	}
	return r.reader.Tracks()
}

func (r *Remuxed) Next() (mkv.Frame, error) {
	if r.reader == nil {
		return mkv.Frame{}, io.EOF
	}
	return r.reader.Next()
}

func (r *Remuxed) Close() error {
	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	if rmErr := os.Remove(r.tmp); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// OpenRemuxed remuxes path's subtitle streams to a temporary Matroska file
// and opens it.
func (p *DefaultProcessor) OpenRemuxed(ctx context.Context, path string) (*Remuxed, error) {
	return OpenRemuxed(ctx, p, path, p.tempDir)
}

// OpenRemuxed probes path with p and remuxes its subtitle streams into a
// temporary file in dir.
func OpenRemuxed(ctx context.Context, p Processor, path, dir string) (*Remuxed, error) {
	info, err := p.GetInfo(ctx, path)
	if err != nil {
		return nil, err
	}
	streams := info.SubtitleStreams()
	if len(streams) == 0 {
		return &Remuxed{info: mkv.Info{
			TimestampScale: timing.RequiredScale,
			Duration:       float64(info.Duration / time.Millisecond),
		}}, nil
	}

	tmp, err := os.CreateTemp(dir, "subtools-remux-*.mks")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := p.RemuxSubtitles(ctx, path, tmpPath, streams); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	r, err := mkv.Open(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	return &Remuxed{reader: r, tmp: tmpPath}, nil
}
