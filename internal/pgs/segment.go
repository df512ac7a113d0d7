// Package pgs decodes Blu-ray presentation graphics (HDMV PGS) subtitles,
// both as Matroska S_HDMV/PGS frames and as standalone .sup streams.
package pgs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
)

const (
	segmentPalette     = 0x14
	segmentObject      = 0x15
	segmentComposition = 0x16
	segmentWindow      = 0x17
	segmentEnd         = 0x80
)

const (
	stateNormal      = 0x00
	stateAcquisition = 0x40
	stateEpochStart  = 0x80
)

const (
	objectFirst = 0x80
	objectLast  = 0x40
)

var ErrInvalidSegment = errors.New("invalid PGS segment")

type segment struct {
	kind byte
	data []byte
}

// splitSegments splits a display set as stored in Matroska: a sequence of
// type(1) size(2) data, without the .sup "PG" headers.
func splitSegments(payload []byte) ([]segment, error) {
	var segs []segment
	for len(payload) > 0 {
		if len(payload) < 3 {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidSegment, len(payload))
		}
		kind := payload[0]
		size := int(binary.BigEndian.Uint16(payload[1:3]))
		if 3+size > len(payload) {
			return nil, fmt.Errorf("%w: segment 0x%02x of %d bytes overruns frame", ErrInvalidSegment, kind, size)
		}
		segs = append(segs, segment{kind: kind, data: payload[3 : 3+size]})
		payload = payload[3+size:]
	}
	return segs, nil
}

// CompositionObject places one object on screen.
type CompositionObject struct {
	ObjectID uint16
	WindowID uint8
	Position image.Point
	Cropped  bool
	Crop     image.Rectangle
}

// Composition is a presentation composition segment.
type Composition struct {
	Width, Height int
	Number        uint16
	State         uint8
	PaletteUpdate bool
	PaletteID     uint8
	Objects       []CompositionObject
}

func parseComposition(data []byte) (Composition, error) {
	if len(data) < 11 {
		return Composition{}, fmt.Errorf("%w: composition of %d bytes", ErrInvalidSegment, len(data))
	}
	c := Composition{
		Width:         int(binary.BigEndian.Uint16(data[0:2])),
		Height:        int(binary.BigEndian.Uint16(data[2:4])),
		Number:        binary.BigEndian.Uint16(data[5:7]),
		State:         data[7],
		PaletteUpdate: data[8]&0x80 != 0,
		PaletteID:     data[9],
	}
	count := int(data[10])
	rest := data[11:]
	for i := 0; i < count; i++ {
		if len(rest) < 8 {
			return Composition{}, fmt.Errorf("%w: truncated composition object", ErrInvalidSegment)
		}
		obj := CompositionObject{
			ObjectID: binary.BigEndian.Uint16(rest[0:2]),
			WindowID: rest[2],
			Cropped:  rest[3]&0x80 != 0,
			Position: image.Pt(int(binary.BigEndian.Uint16(rest[4:6])), int(binary.BigEndian.Uint16(rest[6:8]))),
		}
		rest = rest[8:]
		if obj.Cropped {
			if len(rest) < 8 {
				return Composition{}, fmt.Errorf("%w: truncated crop rectangle", ErrInvalidSegment)
			}
			x := int(binary.BigEndian.Uint16(rest[0:2]))
			y := int(binary.BigEndian.Uint16(rest[2:4]))
			w := int(binary.BigEndian.Uint16(rest[4:6]))
			h := int(binary.BigEndian.Uint16(rest[6:8]))
			obj.Crop = image.Rect(x, y, x+w, y+h)
			rest = rest[8:]
		}
		c.Objects = append(c.Objects, obj)
	}
	return c, nil
}

func parseWindows(data []byte) (map[uint8]image.Rectangle, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty window segment", ErrInvalidSegment)
	}
	count := int(data[0])
	rest := data[1:]
	if len(rest) < count*9 {
		return nil, fmt.Errorf("%w: truncated window segment", ErrInvalidSegment)
	}
	windows := make(map[uint8]image.Rectangle, count)
	for i := 0; i < count; i++ {
		w := rest[i*9 : (i+1)*9]
		x := int(binary.BigEndian.Uint16(w[1:3]))
		y := int(binary.BigEndian.Uint16(w[3:5]))
		windows[w[0]] = image.Rect(x, y,
			x+int(binary.BigEndian.Uint16(w[5:7])),
			y+int(binary.BigEndian.Uint16(w[7:9])))
	}
	return windows, nil
}
