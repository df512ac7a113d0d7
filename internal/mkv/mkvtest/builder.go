// Package mkvtest builds small in-memory Matroska files for tests.
package mkvtest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"testing"
)

const (
	TypeVideo    = 0x01
	TypeAudio    = 0x02
	TypeSubtitle = 0x11
)

// Encoding is a ContentEncoding entry. Payloads are written as given; the
// caller is responsible for compressing or stripping them.
type Encoding struct {
	Order    uint64
	Scope    uint64
	Algo     uint64
	Settings []byte
}

type Track struct {
	Number          uint64
	Type            uint64
	CodecID         string
	Name            string
	Language        string
	DefaultDuration uint64
	CodecPrivate    []byte
	Forced          bool
	Encodings       []Encoding
}

// Block becomes a BlockGroup with a BlockDuration when HasDuration is set,
// and a SimpleBlock otherwise.
type Block struct {
	Track       uint64
	Timecode    int16
	Payload     []byte
	Duration    uint64
	HasDuration bool
	Lacing      uint8
}

type cluster struct {
	timestamp uint64
	blocks    []Block
}

type Builder struct {
	docType        string
	scale          uint64
	title          string
	duration       float64
	tracks         []Track
	clusters       []cluster
	unknownSegment bool
	unknownCluster bool
	trailing       [][]byte
}

func New() *Builder {
	return &Builder{docType: "matroska", scale: 1_000_000}
}

func (b *Builder) DocType(s string) *Builder {
	b.docType = s
	return b
}

func (b *Builder) TimestampScale(scale uint64) *Builder {
	b.scale = scale
	return b
}

func (b *Builder) Title(s string) *Builder {
	b.title = s
	return b
}

func (b *Builder) Duration(d float64) *Builder {
	b.duration = d
	return b
}

func (b *Builder) AddTrack(t Track) *Builder {
	b.tracks = append(b.tracks, t)
	return b
}

func (b *Builder) Cluster(timestamp uint64, blocks ...Block) *Builder {
	b.clusters = append(b.clusters, cluster{timestamp: timestamp, blocks: blocks})
	return b
}

// UnknownSizes writes the segment and every cluster with the reserved
// unknown-size marker, the way live muxers do.
func (b *Builder) UnknownSizes() *Builder {
	b.unknownSegment = true
	b.unknownCluster = true
	return b
}

// Cues appends a Cues element after the clusters.
func (b *Builder) Cues() *Builder {
	b.trailing = append(b.trailing, master(0x1C53BB6B, master(0xBB, uintElem(0xB3, 0))))
	return b
}

func (b *Builder) Bytes() []byte {
	var out bytes.Buffer
	out.Write(master(0x1A45DFA3,
		uintElem(0x4286, 1),
		uintElem(0x42F7, 1),
		uintElem(0x42F2, 4),
		uintElem(0x42F3, 8),
		stringElem(0x4282, b.docType),
		uintElem(0x4287, 4),
		uintElem(0x4285, 2),
	))

	var seg bytes.Buffer
	info := [][]byte{uintElem(0x2AD7B1, b.scale), stringElem(0x4D80, "mkvtest"), stringElem(0x5741, "mkvtest")}
	if b.title != "" {
		info = append(info, stringElem(0x7BA9, b.title))
	}
	if b.duration > 0 {
		info = append(info, floatElem(0x4489, b.duration))
	}
	seg.Write(master(0x1549A966, info...))

	var entries [][]byte
	for _, t := range b.tracks {
		entries = append(entries, trackEntry(t))
	}
	seg.Write(master(0x1654AE6B, entries...))

	for _, c := range b.clusters {
		children := [][]byte{uintElem(0xE7, c.timestamp)}
		for _, blk := range c.blocks {
			children = append(children, block(blk))
		}
		if b.unknownCluster {
			seg.Write(unknownMaster(0x1F43B675, children...))
		} else {
			seg.Write(master(0x1F43B675, children...))
		}
	}
	for _, t := range b.trailing {
		seg.Write(t)
	}

	if b.unknownSegment {
		out.Write(unknownMaster(0x18538067, seg.Bytes()))
	} else {
		out.Write(master(0x18538067, seg.Bytes()))
	}
	return out.Bytes()
}

// WriteFile writes the container to path and fails the test on error.
func (b *Builder) WriteFile(t testing.TB, path string) {
	t.Helper()
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func trackEntry(t Track) []byte {
	children := [][]byte{
		uintElem(0xD7, t.Number),
		uintElem(0x73C5, t.Number),
		uintElem(0x83, t.Type),
		stringElem(0x86, t.CodecID),
	}
	if t.Name != "" {
		children = append(children, stringElem(0x536E, t.Name))
	}
	if t.Language != "" {
		children = append(children, stringElem(0x22B59C, t.Language))
	}
	if t.DefaultDuration > 0 {
		children = append(children, uintElem(0x23E383, t.DefaultDuration))
	}
	if t.CodecPrivate != nil {
		children = append(children, element(0x63A2, t.CodecPrivate))
	}
	if t.Forced {
		children = append(children, uintElem(0x55AA, 1))
	}
	if len(t.Encodings) > 0 {
		var encs [][]byte
		for _, e := range t.Encodings {
			scope := e.Scope
			if scope == 0 {
				scope = 1
			}
			comp := [][]byte{uintElem(0x4254, e.Algo)}
			if e.Settings != nil {
				comp = append(comp, element(0x4255, e.Settings))
			}
			encs = append(encs, master(0x6240,
				uintElem(0x5031, e.Order),
				uintElem(0x5032, scope),
				uintElem(0x5033, 0),
				master(0x5034, comp...),
			))
		}
		children = append(children, master(0x6D80, encs...))
	}
	return master(0xAE, children...)
}

func block(blk Block) []byte {
	var body bytes.Buffer
	body.Write(trackVint(blk.Track))
	var tc [2]byte
	binary.BigEndian.PutUint16(tc[:], uint16(blk.Timecode))
	body.Write(tc[:])
	flags := (blk.Lacing & 0x03) << 1
	if !blk.HasDuration {
		flags |= 0x80
	}
	body.WriteByte(flags)
	body.Write(blk.Payload)

	if !blk.HasDuration {
		return element(0xA3, body.Bytes())
	}
	return master(0xA0, element(0xA1, body.Bytes()), uintElem(0x9B, blk.Duration))
}

func trackVint(n uint64) []byte {
	if n < 0x7F {
		return []byte{0x80 | byte(n)}
	}
	return []byte{0x40 | byte(n>>8), byte(n)}
}

func idBytes(id uint64) []byte {
	var out []byte
	for id > 0 {
		out = append([]byte{byte(id)}, out...)
		id >>= 8
	}
	return out
}

// sizes are always written as 8-byte vints
func sizeBytes(n uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, n)
	out[0] = 0x01
	return out
}

func element(id uint64, data []byte) []byte {
	out := idBytes(id)
	out = append(out, sizeBytes(uint64(len(data)))...)
	return append(out, data...)
}

func master(id uint64, children ...[]byte) []byte {
	return element(id, bytes.Join(children, nil))
}

func unknownMaster(id uint64, children ...[]byte) []byte {
	out := idBytes(id)
	out = append(out, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	return append(out, bytes.Join(children, nil)...)
}

func uintElem(id, v uint64) []byte {
	var data []byte
	for v > 0 {
		data = append([]byte{byte(v)}, data...)
		v >>= 8
	}
	if len(data) == 0 {
		data = []byte{0}
	}
	return element(id, data)
}

func floatElem(id uint64, v float64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, math.Float64bits(v))
	return element(id, data)
}

func stringElem(id uint64, s string) []byte {
	return element(id, []byte(s))
}
