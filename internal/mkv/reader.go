// Package mkv reads the parts of a Matroska container needed to pull
// subtitle frames out of it: segment info, track entries and blocks.
package mkv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const defaultTimestampScale = 1_000_000

var (
	ErrNotMatroska = errors.New("not a Matroska file")
	ErrCorrupt     = errors.New("corrupt Matroska structure")
)

type Lacing uint8

const (
	LacingNone Lacing = iota
	LacingXiph
	LacingFixed
	LacingEBML
)

// Info holds the segment-level metadata.
type Info struct {
	DocType        string
	TimestampScale uint64
	// in timestamp units
	Duration   float64
	Title      string
	MuxingApp  string
	WritingApp string
}

// Frame is one block read from a cluster.
type Frame struct {
	Track uint64
	// absolute, in timestamp units
	Timestamp   int64
	Duration    uint64
	HasDuration bool
	Payload     []byte
	Keyframe    bool
	Lacing      Lacing
}

// Reader walks a Matroska file. Info and Tracks are available once the
// reader is constructed; Next yields blocks in file order until io.EOF.
type Reader struct {
	er     *ebmlReader
	closer io.Closer

	info   Info
	tracks []Track

	segmentEnd int64 // -1 when the segment size is unknown

	inCluster        bool
	clusterEnd       int64 // -1 when the cluster size is unknown
	clusterTimestamp int64

	pending *elementHeader
}

// Open opens a Matroska file on disk. The returned reader owns the file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader parses the EBML header, segment info and tracks from rs.
func NewReader(rs io.ReadSeeker) (*Reader, error) {
	r := &Reader{
		er:   newEBMLReader(rs),
		info: Info{TimestampScale: defaultTimestampScale},
	}
	if err := r.readEBMLHeader(); err != nil {
		return nil, err
	}
	if err := r.readSegmentHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) Info() Info {
	return r.info
}

func (r *Reader) Tracks() []Track {
	return r.tracks
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

func (r *Reader) readEBMLHeader() error {
	h, err := r.er.readHeader()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrNotMatroska
		}
		return fmt.Errorf("%w: %v", ErrNotMatroska, err)
	}
	if h.id != idEBML {
		return ErrNotMatroska
	}
	data, err := r.er.readData(h)
	if err != nil {
		return fmt.Errorf("reading EBML header: %w", err)
	}
	err = walkChildren(data, func(id uint64, payload []byte) error {
		if id == idDocType {
			r.info.DocType = readString(payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading EBML header: %w", err)
	}
	switch r.info.DocType {
	case "matroska", "webm":
		return nil
	default:
		return fmt.Errorf("%w: doctype %q", ErrNotMatroska, r.info.DocType)
	}
}

func (r *Reader) readSegmentHeader() error {
	for {
		h, err := r.er.readHeader()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: no segment", ErrCorrupt)
			}
			return err
		}
		if h.id != idSegment {
			if err := r.er.skipElement(h); err != nil {
				return err
			}
			continue
		}
		r.segmentEnd = -1
		if !h.unknown() {
			r.segmentEnd = h.end()
		}
		break
	}

	// level-1 elements up to the first cluster
	for {
		if r.segmentEnd >= 0 && r.er.pos >= r.segmentEnd {
			return nil
		}
		h, err := r.er.readHeader()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch h.id {
		case idCluster:
			r.pending = &h
			return nil
		case idInfo:
			data, err := r.er.readData(h)
			if err != nil {
				return fmt.Errorf("reading segment info: %w", err)
			}
			if err := r.parseInfo(data); err != nil {
				return fmt.Errorf("reading segment info: %w", err)
			}
		case idTracks:
			data, err := r.er.readData(h)
			if err != nil {
				return fmt.Errorf("reading tracks: %w", err)
			}
			if err := r.parseTracks(data); err != nil {
				return fmt.Errorf("reading tracks: %w", err)
			}
		default:
			if err := r.er.skipElement(h); err != nil {
				return err
			}
		}
	}
}

func (r *Reader) parseInfo(data []byte) error {
	return walkChildren(data, func(id uint64, payload []byte) error {
		var err error
		switch id {
		case idTimestampScale:
			r.info.TimestampScale, err = readUint(payload)
		case idDuration:
			r.info.Duration, err = readFloat(payload)
		case idTitle:
			r.info.Title = readString(payload)
		case idMuxingApp:
			r.info.MuxingApp = readString(payload)
		case idWritingApp:
			r.info.WritingApp = readString(payload)
		}
		return err
	})
}

func (r *Reader) parseTracks(data []byte) error {
	seen := make(map[uint64]bool)
	return walkChildren(data, func(id uint64, payload []byte) error {
		if id != idTrackEntry {
			return nil
		}
		t, err := parseTrackEntry(payload)
		if err != nil {
			return err
		}
		if t.Number == 0 {
			return fmt.Errorf("%w: track number 0", ErrCorrupt)
		}
		if seen[t.Number] {
			return fmt.Errorf("%w: duplicate track number %d", ErrCorrupt, t.Number)
		}
		seen[t.Number] = true
		r.tracks = append(r.tracks, t)
		return nil
	})
}

func parseTrackEntry(data []byte) (Track, error) {
	// flag defaults per the Matroska schema
	t := Track{Default: true}
	err := walkChildren(data, func(id uint64, payload []byte) error {
		var err error
		var v uint64
		switch id {
		case idTrackNumber:
			t.Number, err = readUint(payload)
		case idTrackType:
			v, err = readUint(payload)
			t.Type = TrackType(v)
		case idCodecID:
			t.CodecID = readString(payload)
		case idCodecPrivate:
			t.CodecPrivate = payload
		case idName:
			t.Name = readString(payload)
		case idLanguage:
			t.Language = readString(payload)
		case idLanguageIETF:
			t.LanguageIETF = readString(payload)
		case idDefaultDuration:
			t.DefaultDuration, err = readUint(payload)
		case idFlagDefault:
			v, err = readUint(payload)
			t.Default = v != 0
		case idFlagForced:
			v, err = readUint(payload)
			t.Forced = v != 0
		case idContentEncodings:
			t.Encodings, err = parseContentEncodings(payload)
		}
		return err
	})
	return t, err
}

func parseContentEncodings(data []byte) ([]ContentEncoding, error) {
	var encs []ContentEncoding
	err := walkChildren(data, func(id uint64, payload []byte) error {
		if id != idContentEncoding {
			return nil
		}
		enc := ContentEncoding{Scope: scopeFrames}
		err := walkChildren(payload, func(id uint64, payload []byte) error {
			var err error
			switch id {
			case idContentEncodingOrder:
				enc.Order, err = readUint(payload)
			case idContentEncodingScope:
				enc.Scope, err = readUint(payload)
			case idContentEncodingType:
				enc.Type, err = readUint(payload)
			case idContentCompression:
				err = walkChildren(payload, func(id uint64, payload []byte) error {
					switch id {
					case idContentCompAlgo:
						v, err := readUint(payload)
						enc.Algo = CompressionAlgo(v)
						return err
					case idContentCompSettings:
						enc.Settings = payload
					}
					return nil
				})
			}
			return err
		})
		if err != nil {
			return err
		}
		encs = append(encs, enc)
		return nil
	})
	return encs, err
}

// Next returns the next block of the segment, or io.EOF once the segment
// is exhausted.
func (r *Reader) Next() (Frame, error) {
	for {
		if !r.inCluster {
			h, err := r.nextTopLevel()
			if err != nil {
				return Frame{}, err
			}
			if h.id != idCluster {
				if h.unknown() {
					return Frame{}, fmt.Errorf("%w: element 0x%X with unknown size", ErrCorrupt, h.id)
				}
				if err := r.er.skipElement(h); err != nil {
					return Frame{}, err
				}
				continue
			}
			r.inCluster = true
			r.clusterTimestamp = 0
			r.clusterEnd = -1
			if !h.unknown() {
				r.clusterEnd = h.end()
			}
			continue
		}

		if r.clusterEnd >= 0 && r.er.pos >= r.clusterEnd {
			r.inCluster = false
			continue
		}
		if r.segmentEnd >= 0 && r.er.pos >= r.segmentEnd {
			return Frame{}, io.EOF
		}
		h, err := r.er.readHeader()
		if err != nil {
			if errors.Is(err, io.EOF) && r.clusterEnd < 0 {
				return Frame{}, io.EOF
			}
			return Frame{}, noEOF(err)
		}
		if r.clusterEnd < 0 && isTopLevel(h.id) {
			r.inCluster = false
			r.pending = &h
			continue
		}
		if r.clusterEnd >= 0 && !h.unknown() && h.end() > r.clusterEnd {
			return Frame{}, fmt.Errorf("%w: element 0x%X overruns its cluster", ErrCorrupt, h.id)
		}

		switch h.id {
		case idTimestamp:
			data, err := r.er.readData(h)
			if err != nil {
				return Frame{}, err
			}
			ts, err := readUint(data)
			if err != nil {
				return Frame{}, err
			}
			r.clusterTimestamp = int64(ts)
		case idSimpleBlock:
			data, err := r.er.readData(h)
			if err != nil {
				return Frame{}, err
			}
			return r.parseBlock(data, true)
		case idBlockGroup:
			data, err := r.er.readData(h)
			if err != nil {
				return Frame{}, err
			}
			return r.parseBlockGroup(data)
		default:
			if h.unknown() {
				return Frame{}, fmt.Errorf("%w: element 0x%X with unknown size", ErrCorrupt, h.id)
			}
			if err := r.er.skipElement(h); err != nil {
				return Frame{}, err
			}
		}
	}
}

func (r *Reader) nextTopLevel() (elementHeader, error) {
	if r.pending != nil {
		h := *r.pending
		r.pending = nil
		return h, nil
	}
	if r.segmentEnd >= 0 && r.er.pos >= r.segmentEnd {
		return elementHeader{}, io.EOF
	}
	h, err := r.er.readHeader()
	if err != nil {
		return elementHeader{}, err
	}
	return h, nil
}

func (r *Reader) parseBlockGroup(data []byte) (Frame, error) {
	var (
		block       []byte
		duration    uint64
		hasDuration bool
		referenced  bool
	)
	err := walkChildren(data, func(id uint64, payload []byte) error {
		var err error
		switch id {
		case idBlock:
			block = payload
		case idBlockDuration:
			duration, err = readUint(payload)
			hasDuration = true
		case idReferenceBlock:
			referenced = true
		}
		return err
	})
	if err != nil {
		return Frame{}, err
	}
	if block == nil {
		return Frame{}, fmt.Errorf("%w: block group without block", ErrCorrupt)
	}
	f, err := r.parseBlock(block, false)
	if err != nil {
		return Frame{}, err
	}
	f.Keyframe = !referenced
	f.Duration = duration
	f.HasDuration = hasDuration
	return f, nil
}

func (r *Reader) parseBlock(data []byte, simple bool) (Frame, error) {
	track, n, err := sliceVint(data, false)
	if err != nil {
		return Frame{}, fmt.Errorf("block track number: %w", err)
	}
	if len(data) < n+3 {
		return Frame{}, fmt.Errorf("%w: short block header", ErrCorrupt)
	}
	rel := int16(binary.BigEndian.Uint16(data[n : n+2]))
	flags := data[n+2]
	f := Frame{
		Track:     track,
		Timestamp: r.clusterTimestamp + int64(rel),
		Lacing:    Lacing((flags >> 1) & 0x03),
		Payload:   data[n+3:],
	}
	if simple {
		f.Keyframe = flags&0x80 != 0
	}
	return f, nil
}

// walkChildren calls fn for each child element of a fully buffered
// master element.
func walkChildren(data []byte, fn func(id uint64, payload []byte) error) error {
	for len(data) > 0 {
		id, n, err := sliceVint(data, true)
		if err != nil {
			return err
		}
		data = data[n:]
		size, n, err := sliceVint(data, false)
		if err != nil {
			return err
		}
		data = data[n:]
		if size == (uint64(1)<<(7*n))-1 || size > uint64(len(data)) {
			return fmt.Errorf("%w: child 0x%X overruns its parent", ErrCorrupt, id)
		}
		if err := fn(id, data[:size]); err != nil {
			return err
		}
		data = data[size:]
	}
	return nil
}

func sliceVint(data []byte, keepMarker bool) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: truncated", ErrInvalidVint)
	}
	length := vintLength(data[0])
	if length == 0 || length > 8 || length > len(data) {
		return 0, 0, ErrInvalidVint
	}
	value := uint64(data[0])
	if !keepMarker {
		value = uint64(data[0] & (0xFF >> length))
	}
	for i := 1; i < length; i++ {
		value = value<<8 | uint64(data[i])
	}
	return value, length, nil
}
