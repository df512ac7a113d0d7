// Package fileproc expands command-line path arguments into the files a
// command should process.
package fileproc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoFiles is returned when the arguments matched nothing.
var ErrNoFiles = errors.New("no matching files")

var (
	matroskaExts = []string{".mkv", ".mks", ".mka", ".webm"}

	// containers ffmpeg can remux into Matroska
	videoExts = []string{
		".mp4", ".avi", ".mov", ".wmv", ".flv", ".m4v",
		".mpeg", ".mpg", ".3gp", ".ts", ".m2ts",
	}

	textSubtitleExts = []string{".srt", ".vtt"}
	supExts          = []string{".sup"}
)

// checks if the file is a Matroska container based on extension
func IsMatroska(path string) bool {
	return hasExt(path, matroskaExts)
}

// checks if the file is a non-Matroska video based on extension
func IsVideoFile(path string) bool {
	return hasExt(path, videoExts)
}

// checks if the file is a SubRip or WebVTT document
func IsTextSubtitle(path string) bool {
	return hasExt(path, textSubtitleExts)
}

// checks if the file is a raw PGS stream
func IsSup(path string) bool {
	return hasExt(path, supExts)
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Options controls how Collect expands directories.
type Options struct {
	// descend into subdirectories
	Recursive bool
	// reports whether a file should be processed
	Match func(path string) bool
}

// Collect expands each argument. Files are taken as given but must match;
// directories contribute their matching files, sorted, one level deep
// unless Recursive is set. Hidden entries inside directories are ignored.
func Collect(args []string, opts Options) ([]string, error) {
	match := opts.Match
	if match == nil {
		match = func(string) bool { return true }
	}

	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		clean := filepath.Clean(path)
		if !seen[clean] {
			seen[clean] = true
			files = append(files, clean)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("file not found: %s", arg)
			}
			return nil, err
		}

		if !info.IsDir() {
			if !match(arg) {
				return nil, fmt.Errorf("unsupported file type: %s", arg)
			}
			add(arg)
			continue
		}

		found, err := scanDir(arg, opts.Recursive, match)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			add(f)
		}
	}

	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	return files, nil
}

func scanDir(root string, recursive bool, match func(string) bool) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && match(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}
