package mkv

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"sort"
)

type TrackType uint8

const (
	TypeVideo    TrackType = 0x01
	TypeAudio    TrackType = 0x02
	TypeComplex  TrackType = 0x03
	TypeLogo     TrackType = 0x10
	TypeSubtitle TrackType = 0x11
	TypeButtons  TrackType = 0x12
	TypeControl  TrackType = 0x20
)

func (t TrackType) String() string {
	switch t {
	case TypeVideo:
		return "video"
	case TypeAudio:
		return "audio"
	case TypeComplex:
		return "complex"
	case TypeLogo:
		return "logo"
	case TypeSubtitle:
		return "subtitle"
	case TypeButtons:
		return "buttons"
	case TypeControl:
		return "control"
	default:
		return fmt.Sprintf("type(0x%02x)", uint8(t))
	}
}

type CompressionAlgo uint64

const (
	CompressZlib        CompressionAlgo = 0
	CompressBzlib       CompressionAlgo = 1
	CompressLZO         CompressionAlgo = 2
	CompressHeaderStrip CompressionAlgo = 3
)

const (
	scopeFrames  = 1
	scopePrivate = 2
)

var ErrUnsupportedEncoding = errors.New("unsupported content encoding")

// ContentEncoding is one entry of a track's ContentEncodings list.
type ContentEncoding struct {
	Order    uint64
	Scope    uint64
	Type     uint64
	Algo     CompressionAlgo
	Settings []byte
}

// Track describes one TrackEntry. Tracks are read once from the container
// header and never change afterwards.
type Track struct {
	Number       uint64
	Type         TrackType
	CodecID      string
	Name         string
	Language     string
	LanguageIETF string
	// nanoseconds, as stored in the container
	DefaultDuration uint64
	CodecPrivate    []byte
	Default         bool
	Forced          bool
	Encodings       []ContentEncoding
}

// Lang returns the track language, preferring the legacy element and
// falling back to the BCP 47 one.
func (t Track) Lang() string {
	if t.Language != "" {
		return t.Language
	}
	return t.LanguageIETF
}

// Decode undoes the track's content encodings on a frame payload.
func (t Track) Decode(payload []byte) ([]byte, error) {
	return t.decode(payload, scopeFrames)
}

// Private returns CodecPrivate with content encodings removed.
func (t Track) Private() ([]byte, error) {
	if len(t.CodecPrivate) == 0 {
		return nil, nil
	}
	return t.decode(t.CodecPrivate, scopePrivate)
}

func (t Track) decode(data []byte, scope uint64) ([]byte, error) {
	if len(t.Encodings) == 0 {
		return data, nil
	}
	encs := make([]ContentEncoding, len(t.Encodings))
	copy(encs, t.Encodings)
	// decoding starts from the highest order
	sort.SliceStable(encs, func(i, j int) bool { return encs[i].Order > encs[j].Order })

	out := data
	for _, enc := range encs {
		if enc.Scope&scope == 0 {
			continue
		}
		if enc.Type != 0 {
			return nil, fmt.Errorf("track %d: encryption: %w", t.Number, ErrUnsupportedEncoding)
		}
		switch enc.Algo {
		case CompressHeaderStrip:
			buf := make([]byte, 0, len(enc.Settings)+len(out))
			buf = append(buf, enc.Settings...)
			out = append(buf, out...)
		case CompressZlib:
			zr, err := zlib.NewReader(bytes.NewReader(out))
			if err != nil {
				return nil, fmt.Errorf("track %d: zlib: %w", t.Number, err)
			}
			inflated, err := io.ReadAll(io.LimitReader(zr, maxElementSize+1))
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("track %d: zlib: %w", t.Number, err)
			}
			if len(inflated) > maxElementSize {
				return nil, fmt.Errorf("track %d: zlib: inflated payload too large", t.Number)
			}
			out = inflated
		default:
			return nil, fmt.Errorf("track %d: compression algorithm %d: %w", t.Number, enc.Algo, ErrUnsupportedEncoding)
		}
	}
	return out, nil
}
