package pgs

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

type object struct {
	version  uint8
	width    int
	height   int
	expected int
	data     []byte
	complete bool
	pixels   []uint8
}

// DisplaySet is the result of decoding one display set.
type DisplaySet struct {
	Composition Composition
	// top-left corner of Image on the video frame
	Position image.Point
	// nil when the set clears the screen
	Image *image.NRGBA
}

// Decoder keeps palettes, windows and objects between display sets of the
// same epoch. Use one decoder per track.
type Decoder struct {
	palettes map[uint8]*[256]color.NRGBA
	objects  map[uint16]*object
	windows  map[uint8]image.Rectangle
}

func NewDecoder() *Decoder {
	d := &Decoder{}
	d.reset()
	return d
}

func (d *Decoder) reset() {
	d.palettes = make(map[uint8]*[256]color.NRGBA)
	d.objects = make(map[uint16]*object)
	d.windows = make(map[uint8]image.Rectangle)
}

// DecodeImage implements the subtitle image decoder contract; clear sets
// yield a nil image.
func (d *Decoder) DecodeImage(payload []byte) (image.Image, error) {
	ds, err := d.Decode(payload)
	if err != nil {
		return nil, err
	}
	if ds.Image == nil {
		return nil, nil
	}
	return ds.Image, nil
}

// Decode decodes a display set in Matroska framing.
func (d *Decoder) Decode(payload []byte) (*DisplaySet, error) {
	segs, err := splitSegments(payload)
	if err != nil {
		return nil, err
	}
	return d.decodeSegments(segs)
}

func (d *Decoder) decodeSegments(segs []segment) (*DisplaySet, error) {
	var comp *Composition
	for _, seg := range segs {
		switch seg.kind {
		case segmentComposition:
			c, err := parseComposition(seg.data)
			if err != nil {
				return nil, err
			}
			if c.State == stateEpochStart {
				d.reset()
			}
			comp = &c
		case segmentWindow:
			windows, err := parseWindows(seg.data)
			if err != nil {
				return nil, err
			}
			for id, r := range windows {
				d.windows[id] = r
			}
		case segmentPalette:
			if err := d.parsePalette(seg.data); err != nil {
				return nil, err
			}
		case segmentObject:
			if err := d.parseObject(seg.data); err != nil {
				return nil, err
			}
		case segmentEnd:
		default:
			return nil, fmt.Errorf("%w: unknown segment type 0x%02x", ErrInvalidSegment, seg.kind)
		}
	}
	if comp == nil {
		return nil, fmt.Errorf("%w: display set without composition", ErrInvalidSegment)
	}
	return d.render(*comp)
}

func (d *Decoder) parsePalette(data []byte) error {
	if len(data) < 2 || (len(data)-2)%5 != 0 {
		return fmt.Errorf("%w: palette of %d bytes", ErrInvalidSegment, len(data))
	}
	id := data[0]
	pal := d.palettes[id]
	if pal == nil {
		pal = new([256]color.NRGBA)
		d.palettes[id] = pal
	}
	for entry := data[2:]; len(entry) >= 5; entry = entry[5:] {
		// entries are stored as Y, Cr, Cb, alpha
		r, g, b := color.YCbCrToRGB(entry[1], entry[3], entry[2])
		pal[entry[0]] = color.NRGBA{R: r, G: g, B: b, A: entry[4]}
	}
	return nil
}

func (d *Decoder) parseObject(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: object of %d bytes", ErrInvalidSegment, len(data))
	}
	id := binary.BigEndian.Uint16(data[0:2])
	version := data[2]
	flags := data[3]
	rest := data[4:]

	obj := d.objects[id]
	if flags&objectFirst != 0 {
		if len(rest) < 7 {
			return fmt.Errorf("%w: truncated object header", ErrInvalidSegment)
		}
		// the length counts the width and height fields
		length := int(rest[0])<<16 | int(rest[1])<<8 | int(rest[2])
		obj = &object{
			version:  version,
			width:    int(binary.BigEndian.Uint16(rest[3:5])),
			height:   int(binary.BigEndian.Uint16(rest[5:7])),
			expected: length - 4,
		}
		rest = rest[7:]
		d.objects[id] = obj
	} else if obj == nil || obj.complete {
		return fmt.Errorf("%w: continuation of unknown object %d", ErrInvalidSegment, id)
	}
	obj.data = append(obj.data, rest...)
	obj.pixels = nil
	if flags&objectLast != 0 {
		obj.complete = true
	}
	return nil
}

func (d *Decoder) render(comp Composition) (*DisplaySet, error) {
	ds := &DisplaySet{Composition: comp}
	if len(comp.Objects) == 0 {
		return ds, nil
	}
	pal := d.palettes[comp.PaletteID]
	if pal == nil {
		return nil, fmt.Errorf("%w: composition uses undefined palette %d", ErrInvalidSegment, comp.PaletteID)
	}

	type placement struct {
		obj *object
		src image.Rectangle
		dst image.Rectangle
	}
	var (
		placements []placement
		bounds     image.Rectangle
	)
	for _, co := range comp.Objects {
		obj := d.objects[co.ObjectID]
		if obj == nil || !obj.complete {
			return nil, fmt.Errorf("%w: composition uses missing object %d", ErrInvalidSegment, co.ObjectID)
		}
		if obj.pixels == nil {
			pixels, err := decodeRLE(obj.data, obj.width, obj.height)
			if err != nil {
				return nil, fmt.Errorf("%w: object %d: %v", ErrInvalidSegment, co.ObjectID, err)
			}
			obj.pixels = pixels
		}
		src := image.Rect(0, 0, obj.width, obj.height)
		if co.Cropped {
			src = src.Intersect(co.Crop)
		}
		if src.Empty() {
			continue
		}
		dst := image.Rectangle{Min: co.Position, Max: co.Position.Add(src.Size())}
		placements = append(placements, placement{obj: obj, src: src, dst: dst})
		bounds = bounds.Union(dst)
	}
	if bounds.Empty() {
		return ds, nil
	}

	img := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	visible := false
	for _, p := range placements {
		off := p.dst.Min.Sub(bounds.Min)
		for y := p.src.Min.Y; y < p.src.Max.Y; y++ {
			for x := p.src.Min.X; x < p.src.Max.X; x++ {
				c := pal[p.obj.pixels[y*p.obj.width+x]]
				if c.A == 0 {
					continue
				}
				visible = true
				img.SetNRGBA(off.X+x-p.src.Min.X, off.Y+y-p.src.Min.Y, c)
			}
		}
	}
	if visible {
		ds.Image = img
		ds.Position = bounds.Min
	}
	return ds, nil
}
