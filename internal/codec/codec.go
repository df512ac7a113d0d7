package codec

import (
	"errors"
	"fmt"
)

// Kind is a subtitle codec recognized inside a container
type Kind int

const (
	// DVD image subtitles
	VobSub Kind = iota + 1
	// Blu-ray image subtitles
	PGS
	// plain UTF-8 text, written as SubRip
	SubRip
	WebVTT
	ASS
)

const (
	IDVobSub = "S_VOBSUB"
	IDPGS    = "S_HDMV/PGS"
	IDSubRip = "S_TEXT/UTF8"
	IDWebVTT = "D_WEBVTT/SUBTITLES"
	IDASS    = "S_TEXT/ASS"
)

var ErrNotRecognized = errors.New("codec not recognized")

// NotRecognizedError carries the identifier that failed to resolve
type NotRecognizedError struct {
	ID string
}

func (e *NotRecognizedError) Error() string {
	return fmt.Sprintf("codec id %q is not recognized", e.ID)
}

func (e *NotRecognizedError) Is(target error) bool {
	return target == ErrNotRecognized
}

var table = map[string]Kind{
	IDVobSub: VobSub,
	IDPGS:    PGS,
	IDSubRip: SubRip,
	IDWebVTT: WebVTT,
	IDASS:    ASS,
}

// Resolve maps a container codec identifier to its Kind. Matching is exact.
func Resolve(id string) (Kind, error) {
	kind, ok := table[id]
	if !ok {
		return 0, &NotRecognizedError{ID: id}
	}
	return kind, nil
}

// identifier as stored in the container
func (k Kind) ID() string {
	switch k {
	case VobSub:
		return IDVobSub
	case PGS:
		return IDPGS
	case SubRip:
		return IDSubRip
	case WebVTT:
		return IDWebVTT
	case ASS:
		return IDASS
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case VobSub:
		return "VobSub"
	case PGS:
		return "PGS"
	case SubRip:
		return "SubRip"
	case WebVTT:
		return "WebVTT"
	case ASS:
		return "ASS"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// conventional file extension, without the dot
func (k Kind) Extension() string {
	switch k {
	case VobSub:
		return "sub"
	case PGS:
		return "sup"
	case SubRip:
		return "srt"
	case WebVTT:
		return "vtt"
	case ASS:
		return "ass"
	default:
		return ""
	}
}

// IsImage reports whether the payload is a bitmap rather than text.
func (k Kind) IsImage() bool {
	return k == VobSub || k == PGS
}
