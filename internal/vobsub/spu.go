package vobsub

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"
)

const (
	cmdForceDisplay = 0x00
	cmdStartDate    = 0x01
	cmdStopDate     = 0x02
	cmdPalette      = 0x03
	cmdAlpha        = 0x04
	cmdCoordinates  = 0x05
	cmdRLEOffsets   = 0x06
	cmdColorChange  = 0x07
	cmdEnd          = 0xff

	// control sequence dates tick at 1024/90000 s
	dateTick = 1024 * time.Second / 90000

	maxControlSequences = 64
)

var ErrInvalidPacket = errors.New("invalid subpicture packet")

// SPU is one decoded subpicture.
type SPU struct {
	Forced     bool
	StartDelay time.Duration
	StopDelay  time.Duration
	// top-left corner of the bitmap on the video frame
	Position image.Point
	// nil when the subpicture draws nothing visible
	Image *image.NRGBA
}

type controlState struct {
	forced      bool
	start, stop time.Duration
	hasStart    bool
	hasStop     bool
	colormap    [4]uint8
	alpha       [4]uint8
	hasPalette  bool
	hasAlpha    bool
	x1, x2      int
	y1, y2      int
	hasCoords   bool
	offset1     int
	offset2     int
	hasOffsets  bool
}

// DecodeImage implements the subtitle image decoder contract.
func (idx *Index) DecodeImage(payload []byte) (image.Image, error) {
	spu, err := idx.Decode(payload)
	if err != nil {
		return nil, err
	}
	if spu.Image == nil {
		return nil, nil
	}
	return spu.Image, nil
}

// Decode parses one subpicture packet and renders its bitmap, cropped to
// the display window.
func (idx *Index) Decode(packet []byte) (*SPU, error) {
	if len(packet) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPacket, len(packet))
	}
	size := int(binary.BigEndian.Uint16(packet[0:2]))
	if size == 0 || size > len(packet) {
		return nil, fmt.Errorf("%w: declared size %d, have %d bytes", ErrInvalidPacket, size, len(packet))
	}
	packet = packet[:size]
	ctrlOffset := int(binary.BigEndian.Uint16(packet[2:4]))

	st, err := parseControl(packet, ctrlOffset)
	if err != nil {
		return nil, err
	}
	spu := &SPU{Forced: st.forced}
	if st.hasStart {
		spu.StartDelay = st.start
	}
	if st.hasStop {
		spu.StopDelay = st.stop
	}
	if !st.hasCoords || !st.hasOffsets {
		return spu, nil
	}
	if !st.hasPalette {
		return nil, fmt.Errorf("%w: missing palette command", ErrInvalidPacket)
	}

	width := st.x2 - st.x1 + 1
	height := st.y2 - st.y1 + 1
	if width <= 0 || height <= 0 {
		return spu, nil
	}
	if st.offset1 >= len(packet) || st.offset2 >= len(packet) {
		return nil, fmt.Errorf("%w: RLE offsets out of range", ErrInvalidPacket)
	}

	// without an alpha command every color is opaque
	alpha := st.alpha
	if !st.hasAlpha {
		alpha = [4]uint8{0x0f, 0x0f, 0x0f, 0x0f}
	}
	var palette [4]color.NRGBA
	for i := range 4 {
		c := color.NRGBAModel.Convert(idx.Palette[st.colormap[i]]).(color.NRGBA)
		c.A = uint8(float64(alpha[i]*17) * idx.AlphaRatio)
		palette[i] = c
	}

	// even rows come from the first field, odd rows from the second
	indices := make([]uint8, width*height)
	fields := [2]*nibbleReader{
		{data: packet, pos: st.offset1 * 2},
		{data: packet, pos: st.offset2 * 2},
	}
	for y := 0; y < height; y++ {
		row := indices[y*width : (y+1)*width]
		if err := decodeLine(fields[y%2], row); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidPacket, y, err)
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	visible := false
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := palette[indices[y*width+x]]
			if c.A != 0 {
				visible = true
			}
			img.SetNRGBA(x, y, c)
		}
	}
	spu.Position = image.Pt(st.x1+idx.Origin.X, st.y1+idx.Origin.Y)
	if visible {
		spu.Image = img
	}
	return spu, nil
}

func parseControl(packet []byte, offset int) (controlState, error) {
	var st controlState
	for seq := 0; seq < maxControlSequences; seq++ {
		if offset+4 > len(packet) {
			return st, fmt.Errorf("%w: control sequence at %d out of range", ErrInvalidPacket, offset)
		}
		date := time.Duration(binary.BigEndian.Uint16(packet[offset:])) * dateTick
		next := int(binary.BigEndian.Uint16(packet[offset+2:]))
		pos := offset + 4

	commands:
		for {
			if pos >= len(packet) {
				return st, fmt.Errorf("%w: unterminated control sequence", ErrInvalidPacket)
			}
			cmd := packet[pos]
			pos++
			need := 0
			switch cmd {
			case cmdPalette, cmdAlpha:
				need = 2
			case cmdCoordinates:
				need = 6
			case cmdRLEOffsets:
				need = 4
			case cmdColorChange:
				need = 2
			}
			if pos+need > len(packet) {
				return st, fmt.Errorf("%w: truncated command 0x%02x", ErrInvalidPacket, cmd)
			}
			args := packet[pos : pos+need]
			pos += need

			switch cmd {
			case cmdForceDisplay:
				st.forced = true
			case cmdStartDate:
				st.start, st.hasStart = date, true
			case cmdStopDate:
				st.stop, st.hasStop = date, true
			case cmdPalette:
				st.colormap = [4]uint8{args[1] & 0x0f, args[1] >> 4, args[0] & 0x0f, args[0] >> 4}
				st.hasPalette = true
			case cmdAlpha:
				st.alpha = [4]uint8{args[1] & 0x0f, args[1] >> 4, args[0] & 0x0f, args[0] >> 4}
				st.hasAlpha = true
			case cmdCoordinates:
				st.x1 = int(args[0])<<4 | int(args[1])>>4
				st.x2 = int(args[1]&0x0f)<<8 | int(args[2])
				st.y1 = int(args[3])<<4 | int(args[4])>>4
				st.y2 = int(args[4]&0x0f)<<8 | int(args[5])
				st.hasCoords = true
			case cmdRLEOffsets:
				st.offset1 = int(binary.BigEndian.Uint16(args[0:2]))
				st.offset2 = int(binary.BigEndian.Uint16(args[2:4]))
				st.hasOffsets = true
			case cmdColorChange:
				// the length includes its own two bytes
				skip := int(binary.BigEndian.Uint16(args)) - 2
				if skip < 0 || pos+skip > len(packet) {
					return st, fmt.Errorf("%w: bad color change length", ErrInvalidPacket)
				}
				pos += skip
			case cmdEnd:
				break commands
			default:
				return st, fmt.Errorf("%w: unknown command 0x%02x", ErrInvalidPacket, cmd)
			}
		}

		// the last sequence points at itself
		if next <= offset {
			return st, nil
		}
		offset = next
	}
	return st, fmt.Errorf("%w: too many control sequences", ErrInvalidPacket)
}

type nibbleReader struct {
	data []byte
	pos  int // in nibbles
}

func (r *nibbleReader) next() (uint8, error) {
	i := r.pos / 2
	if i >= len(r.data) {
		return 0, errors.New("RLE data exhausted")
	}
	b := r.data[i]
	if r.pos%2 == 0 {
		b >>= 4
	}
	r.pos++
	return b & 0x0f, nil
}

func (r *nibbleReader) align() {
	r.pos += r.pos % 2
}

// decodeLine fills one row of 2-bit color indices. Runs are coded on 1 to
// 4 nibbles; a run length of zero fills the rest of the line.
func decodeLine(r *nibbleReader, row []uint8) error {
	x := 0
	for x < len(row) {
		var v uint16
		for t := uint16(1); v < t && t <= 0x40; t <<= 2 {
			n, err := r.next()
			if err != nil {
				return err
			}
			v = v<<4 | uint16(n)
		}
		c := uint8(v & 0x03)
		run := int(v >> 2)
		if run == 0 || run > len(row)-x {
			run = len(row) - x
		}
		for i := 0; i < run; i++ {
			row[x+i] = c
		}
		x += run
	}
	r.align()
	return nil
}
