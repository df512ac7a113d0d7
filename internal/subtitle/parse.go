package subtitle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNotSubtitle is returned when a block of a document is not a cue.
var ErrNotSubtitle = errors.New("not a subtitle document")

var (
	// hours are optional in WebVTT only; SubRip uses a comma
	srtTiming = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2}),(\d{3})\s*-->\s*(\d+):(\d{2}):(\d{2}),(\d{3})`)
	vttTiming = regexp.MustCompile(`^(?:(\d+):)?(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(?:(\d+):)?(\d{2}):(\d{2})\.(\d{3})`)
	anyTiming = regexp.MustCompile(`^\s*(?:\d+:)?\d{2}:\d{2}[,.]\d{3}\s*-->`)
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".srt":
		return FormatSRT, nil
	case ".vtt":
		return FormatVTT, nil
	default:
		return "", fmt.Errorf("unsupported subtitle format: %s", ext)
	}
}

// Open parses the SubRip or WebVTT file at path.
func Open(path string) (*Subtitle, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(path, format)
}

// ParseFile parses path as format regardless of its extension.
func ParseFile(path string, format Format) (*Subtitle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sub, err := Parse(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sub, nil
}

type block struct {
	line  int
	lines []string
}

// Parse reads a whole document. Every block separated by blank lines must
// be a cue, except the WebVTT header and its NOTE, STYLE and REGION blocks.
func Parse(r io.Reader, format Format) (*Subtitle, error) {
	blocks, err := splitBlocks(r)
	if err != nil {
		return nil, err
	}

	timing := srtTiming
	if format == FormatVTT {
		timing = vttTiming
		if len(blocks) == 0 || !isVTTHeader(blocks[0].lines[0]) {
			return nil, fmt.Errorf("missing WEBVTT header: %w", ErrNotSubtitle)
		}
		blocks = blocks[1:]
	}

	sub := &Subtitle{Format: format}
	for _, b := range blocks {
		if format == FormatVTT && isVTTMetadata(b.lines[0]) {
			continue
		}
		entry, err := parseCue(b, timing, format)
		if err != nil {
			return nil, err
		}
		if entry.Index == 0 {
			entry.Index = len(sub.Entries) + 1
		}
		sub.Entries = append(sub.Entries, entry)
	}
	return sub, nil
}

func parseCue(b block, timing *regexp.Regexp, format Format) (Entry, error) {
	var entry Entry
	at := 0
	if !strings.Contains(b.lines[0], "-->") && len(b.lines) > 1 {
		// SubRip counter or WebVTT cue identifier
		if format == FormatSRT {
			n, err := strconv.Atoi(strings.TrimSpace(b.lines[0]))
			if err != nil {
				return entry, fmt.Errorf("line %d: bad cue number: %w", b.line, ErrNotSubtitle)
			}
			entry.Index = n
		}
		at = 1
	}

	m := timing.FindStringSubmatch(strings.TrimSpace(b.lines[at]))
	if m == nil {
		return entry, fmt.Errorf("line %d: expected cue timing: %w", b.line+at, ErrNotSubtitle)
	}
	entry.StartTime = timestamp(m[1], m[2], m[3], m[4])
	entry.EndTime = timestamp(m[5], m[6], m[7], m[8])
	if entry.EndTime < entry.StartTime {
		return entry, fmt.Errorf("line %d: cue ends before it starts: %w", b.line+at, ErrNotSubtitle)
	}
	entry.Text = strings.Join(b.lines[at+1:], "\n")
	return entry, nil
}

func splitBlocks(r io.Reader) ([]block, error) {
	var blocks []block
	cur := -1

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimRight(scanner.Text(), "\r")
		if n == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			cur = -1
			continue
		}
		if cur < 0 {
			blocks = append(blocks, block{line: n})
			cur = len(blocks) - 1
		}
		blocks[cur].lines = append(blocks[cur].lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func isVTTHeader(line string) bool {
	return line == "WEBVTT" || strings.HasPrefix(line, "WEBVTT ") || strings.HasPrefix(line, "WEBVTT\t")
}

func isVTTMetadata(line string) bool {
	for _, kw := range []string{"NOTE", "STYLE", "REGION"} {
		if line == kw || strings.HasPrefix(line, kw+" ") || strings.HasPrefix(line, kw+"\t") {
			return true
		}
	}
	return false
}

// timestamp assumes the digits were matched by one of the timing patterns.
func timestamp(h, m, s, ms string) time.Duration {
	num := func(v string) time.Duration {
		n, _ := strconv.Atoi(v)
		return time.Duration(n)
	}
	return num(h)*time.Hour + num(m)*time.Minute + num(s)*time.Second + num(ms)*time.Millisecond
}

// CountTimings counts the lines of text that start with a cue timing in
// either format.
func CountTimings(text []byte) int {
	n := 0
	for _, line := range strings.Split(string(text), "\n") {
		if anyTiming.MatchString(line) {
			n++
		}
	}
	return n
}
