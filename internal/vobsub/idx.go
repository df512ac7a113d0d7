// Package vobsub decodes DVD subpicture units as stored in Matroska
// S_VOBSUB tracks, using the idx header kept in the track's codec private.
package vobsub

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"time"
)

const (
	idxSizePrefix       = "size: "
	idxOriginPrefix     = "org: "
	idxAlphaRatioPrefix = "alpha: "
	idxSmoothPrefix     = "smooth: "
	idxFadePrefix       = "fadein/out: "
	idxAlignPrefix      = "align: "
	idxTimeOffsetPrefix = "time offset: "
	idxForcedSubsPrefix = "forced subs: "
	idxLangIdxPrefix    = "langidx: "
	idxPalettePrefix    = "palette: "
	idxPaletteLen       = 16
)

var ErrInvalidIndex = errors.New("invalid VobSub index")

// Index is the idx header of a VobSub track.
type Index struct {
	Width, Height   int
	Origin          image.Point
	AlphaRatio      float64
	Smooth          bool
	FadeIn, FadeOut time.Duration
	Align           string
	TimeOffset      time.Duration
	ForcedSubs      bool
	LangIdx         int
	// opaque colors; alpha comes from each subpicture
	Palette color.Palette
}

// ParseIndex reads an idx header. Unknown lines are ignored; a palette is
// required since nothing can be drawn without one.
func ParseIndex(data []byte) (*Index, error) {
	idx := &Index{AlphaRatio: 1}
	scanner := bufio.NewScanner(bytes.NewReader(bytes.TrimRight(data, "\x00")))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if err := idx.parseLine(line); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	if len(idx.Palette) == 0 {
		return nil, fmt.Errorf("%w: no palette", ErrInvalidIndex)
	}
	return idx, nil
}

func (idx *Index) parseLine(line string) error {
	var err error
	switch {
	case strings.HasPrefix(line, idxSizePrefix):
		idx.Width, idx.Height, err = parsePair(line[len(idxSizePrefix):], "x")
		if err != nil {
			return fmt.Errorf("size: %w", err)
		}
	case strings.HasPrefix(line, idxOriginPrefix):
		idx.Origin.X, idx.Origin.Y, err = parsePair(line[len(idxOriginPrefix):], ",")
		if err != nil {
			return fmt.Errorf("origin: %w", err)
		}
	case strings.HasPrefix(line, idxAlphaRatioPrefix):
		value := strings.TrimSuffix(line[len(idxAlphaRatioPrefix):], "%")
		percent, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("alpha: %w", err)
		}
		if percent <= 0 || percent > 100 {
			return fmt.Errorf("alpha ratio out of range: %d%%", percent)
		}
		idx.AlphaRatio = float64(percent) / 100
	case strings.HasPrefix(line, idxSmoothPrefix):
		idx.Smooth, err = parseOnOff(line[len(idxSmoothPrefix):])
		if err != nil {
			return fmt.Errorf("smooth: %w", err)
		}
	case strings.HasPrefix(line, idxFadePrefix):
		in, out, err := parsePair(line[len(idxFadePrefix):], ",")
		if err != nil {
			return fmt.Errorf("fade: %w", err)
		}
		idx.FadeIn = time.Duration(in) * time.Millisecond
		idx.FadeOut = time.Duration(out) * time.Millisecond
	case strings.HasPrefix(line, idxAlignPrefix):
		idx.Align = line[len(idxAlignPrefix):]
	case strings.HasPrefix(line, idxTimeOffsetPrefix):
		ms, err := strconv.Atoi(strings.TrimSpace(line[len(idxTimeOffsetPrefix):]))
		if err != nil {
			return fmt.Errorf("time offset: %w", err)
		}
		idx.TimeOffset = time.Duration(ms) * time.Millisecond
	case strings.HasPrefix(line, idxForcedSubsPrefix):
		idx.ForcedSubs, err = parseOnOff(line[len(idxForcedSubsPrefix):])
		if err != nil {
			return fmt.Errorf("forced subs: %w", err)
		}
	case strings.HasPrefix(line, idxLangIdxPrefix):
		idx.LangIdx, err = strconv.Atoi(strings.TrimSpace(line[len(idxLangIdxPrefix):]))
		if err != nil {
			return fmt.Errorf("langidx: %w", err)
		}
	case strings.HasPrefix(line, idxPalettePrefix):
		idx.Palette, err = parsePalette(line[len(idxPalettePrefix):])
		if err != nil {
			return fmt.Errorf("palette: %w", err)
		}
	}
	return nil
}

func parsePair(value, sep string) (int, int, error) {
	parts := strings.Split(value, sep)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expecting two values: %q", value)
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseOnOff(value string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected value %q", value)
	}
}

func parsePalette(value string) (color.Palette, error) {
	// both separators are seen in the wild
	values := strings.Split(strings.ReplaceAll(value, ", ", ","), ",")
	if len(values) != idxPaletteLen {
		return nil, fmt.Errorf("want %d colors, got %d", idxPaletteLen, len(values))
	}
	palette := make(color.Palette, len(values))
	for i, s := range values {
		s = strings.TrimSpace(s)
		if len(s) != 6 {
			return nil, fmt.Errorf("color #%d: %q is not RRGGBB", i, s)
		}
		rgb, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("color #%d: %w", i, err)
		}
		palette[i] = color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xff}
	}
	return palette, nil
}
