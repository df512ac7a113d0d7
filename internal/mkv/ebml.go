package mkv

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
)

const unknownSize = math.MaxUint64

// upper bound for a single element read into memory
const maxElementSize = 64 << 20

var ErrInvalidVint = errors.New("invalid EBML variable-length integer")

type ebmlReader struct {
	r   *bufio.Reader
	rs  io.ReadSeeker
	pos int64
}

func newEBMLReader(rs io.ReadSeeker) *ebmlReader {
	return &ebmlReader{
		rs: rs,
		r:  bufio.NewReaderSize(rs, 1<<20),
	}
}

type elementHeader struct {
	id   uint64
	size uint64
	// position of the first data byte
	dataStart int64
}

func (h elementHeader) unknown() bool {
	return h.size == unknownSize
}

func (h elementHeader) end() int64 {
	return h.dataStart + int64(h.size)
}

func (er *ebmlReader) readByte() (byte, error) {
	b, err := er.r.ReadByte()
	if err != nil {
		return 0, err
	}
	er.pos++
	return b, nil
}

func vintLength(first byte) int {
	if first == 0 {
		return 0
	}
	return bits.LeadingZeros8(first) + 1
}

func (er *ebmlReader) readVint(keepMarker bool, maxLen int) (uint64, int, error) {
	first, err := er.readByte()
	if err != nil {
		return 0, 0, err
	}
	length := vintLength(first)
	if length == 0 || length > maxLen {
		return 0, 0, fmt.Errorf("%w at offset %d", ErrInvalidVint, er.pos-1)
	}
	value := uint64(first)
	if !keepMarker {
		value = uint64(first & (0xFF >> length))
	}
	for i := 1; i < length; i++ {
		b, err := er.readByte()
		if err != nil {
			return 0, 0, noEOF(err)
		}
		value = value<<8 | uint64(b)
	}
	return value, length, nil
}

func (er *ebmlReader) readHeader() (elementHeader, error) {
	id, _, err := er.readVint(true, 4)
	if err != nil {
		return elementHeader{}, err
	}
	size, length, err := er.readVint(false, 8)
	if err != nil {
		return elementHeader{}, noEOF(err)
	}
	if size == (uint64(1)<<(7*length))-1 {
		size = unknownSize
	}
	return elementHeader{id: id, size: size, dataStart: er.pos}, nil
}

func (er *ebmlReader) readData(h elementHeader) ([]byte, error) {
	if h.unknown() {
		return nil, fmt.Errorf("element 0x%X has unknown size", h.id)
	}
	if h.size > maxElementSize {
		return nil, fmt.Errorf("element 0x%X too large: %d bytes", h.id, h.size)
	}
	buf := make([]byte, h.size)
	if _, err := io.ReadFull(er.r, buf); err != nil {
		return nil, noEOF(err)
	}
	er.pos += int64(h.size)
	return buf, nil
}

func (er *ebmlReader) skip(n int64) error {
	if n <= 0 {
		return nil
	}
	if n >= 64<<10 {
		if _, err := er.rs.Seek(er.pos+n, io.SeekStart); err != nil {
			return err
		}
		er.pos += n
		er.r.Reset(er.rs)
		return nil
	}
	discarded, err := er.r.Discard(int(n))
	er.pos += int64(discarded)
	return noEOF(err)
}

func (er *ebmlReader) skipElement(h elementHeader) error {
	if h.unknown() {
		return fmt.Errorf("cannot skip element 0x%X of unknown size", h.id)
	}
	return er.skip(h.end() - er.pos)
}

func readUint(data []byte) (uint64, error) {
	if len(data) > 8 {
		return 0, fmt.Errorf("unsigned integer of %d bytes", len(data))
	}
	var value uint64
	for _, b := range data {
		value = value<<8 | uint64(b)
	}
	return value, nil
}

func readFloat(data []byte) (float64, error) {
	switch len(data) {
	case 0:
		return 0, nil
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
	default:
		return 0, fmt.Errorf("float of %d bytes", len(data))
	}
}

// strings are NUL padded
func readString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// running out of bytes mid-element is corruption, not a clean end
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
