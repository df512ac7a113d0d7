// Package textenc converts text subtitle files to UTF-8 with a byte order
// mark.
package textenc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// ErrUnknownEncoding is returned by Lookup for names it cannot resolve.
var ErrUnknownEncoding = errors.New("unknown text encoding")

// Source is the encoding a file was found in.
type Source int

const (
	UTF8BOM Source = iota
	UTF8
	UTF16LE
	UTF16BE
	Legacy
)

func (s Source) String() string {
	switch s {
	case UTF8BOM:
		return "UTF-8 with BOM"
	case UTF8:
		return "UTF-8"
	case UTF16LE:
		return "UTF-16LE"
	case UTF16BE:
		return "UTF-16BE"
	case Legacy:
		return "legacy"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// Detect classifies data by its byte order mark, then by UTF-8 validity.
func Detect(data []byte) Source {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return UTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return UTF16BE
	case utf8.Valid(data):
		return UTF8
	}
	return Legacy
}

// Lookup resolves an encoding name such as "windows-1252", "latin1" or
// "shift_jis".
func Lookup(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return charmap.Windows1252, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// ToUTF8 returns data as UTF-8 starting with a BOM. Files without a BOM
// that are not valid UTF-8 are decoded from legacy.
func ToUTF8(data []byte, legacy encoding.Encoding) ([]byte, Source, error) {
	src := Detect(data)

	var dec *encoding.Decoder
	switch src {
	case UTF8BOM:
		if !utf8.Valid(data[len(bomUTF8):]) {
			return nil, src, fmt.Errorf("file has a UTF-8 BOM but invalid UTF-8 content")
		}
		return data, src, nil
	case UTF8:
		return append(append([]byte{}, bomUTF8...), data...), src, nil
	case UTF16LE:
		dec = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	case UTF16BE:
		dec = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
	default:
		if legacy == nil {
			legacy = charmap.Windows1252
		}
		dec = legacy.NewDecoder()
	}

	out, _, err := transform.Bytes(transform.Chain(dec, unicode.UTF8BOM.NewEncoder()), data)
	if err != nil {
		return nil, src, fmt.Errorf("decoding %s: %w", src, err)
	}
	if !bytes.HasPrefix(out, bomUTF8) {
		out = append(append([]byte{}, bomUTF8...), out...)
	}
	return out, src, nil
}

// Verify checks a converted file before it is moved into place. text is
// the converted content of the input.
type Verify func(path string, text []byte) error

// ConvertFile rewrites in as UTF-8 with BOM into out, which may equal in.
// The result is written to out+".tmp", passed to verify when it is not nil,
// and only then renamed to out. changed is false when in already had a
// UTF-8 BOM and out is in; verify still sees in.
func ConvertFile(in, out string, legacy encoding.Encoding, verify Verify) (src Source, changed bool, err error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return 0, false, err
	}
	converted, src, err := ToUTF8(data, legacy)
	if err != nil {
		return src, false, fmt.Errorf("%s: %w", in, err)
	}
	if src == UTF8BOM && in == out {
		if verify != nil {
			if err := verify(in, converted); err != nil {
				return src, false, err
			}
		}
		return src, false, nil
	}

	info, err := os.Stat(in)
	if err != nil {
		return src, false, err
	}
	tmp := out + ".tmp"
	if err := os.WriteFile(tmp, converted, info.Mode().Perm()); err != nil {
		return src, false, err
	}
	if verify != nil {
		if err := verify(tmp, converted); err != nil {
			os.Remove(tmp)
			return src, false, err
		}
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return src, false, err
	}
	return src, true, nil
}
