package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// BaseName strips the directory and the container extension from path.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputStem returns <base>.<track>[.<lang>] without an extension. Track
// numbers are unique per container, so stems never collide.
func OutputStem(base string, track uint64, lang string) string {
	stem := fmt.Sprintf("%s.%d", base, track)
	if lang = sanitizeLang(lang); lang != "" {
		stem += "." + lang
	}
	return stem
}

// OutputName returns <base>.<track>[.<lang>].<ext>.
func OutputName(base string, track uint64, lang, ext string) string {
	return OutputStem(base, track, lang) + "." + ext
}

// keeps language tags from escaping the output directory
func sanitizeLang(lang string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, strings.TrimSpace(lang))
}
