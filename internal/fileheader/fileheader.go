// Package fileheader implements the file-level walker of spec §4.1: it
// validates the .evtx file header and enumerates chunk file offsets.
//
// Modeled on squashfs.NewReader's use of encoding/binary against a raw
// on-disk struct (distr1-distri's internal/squashfs/reader.go).
package fileheader

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/evtx-go/evtxcore/internal/evtxerr"
)

var fileMagic = [8]byte{'E', 'l', 'f', 'F', 'i', 'l', 'e', 0}
var chunkMagic = [8]byte{'E', 'l', 'f', 'C', 'h', 'n', 'k', 0}

const (
	defaultHeaderBlockSize = 4096
	chunkSize              = 65536

	// FlagDirty is bit 0 of the file header's flag word.
	FlagDirty = 1 << 0
	// FlagNoCRC32 is bit 2 of the file header's flag word.
	FlagNoCRC32 = 1 << 2
)

// rawHeader is the 128-byte on-disk layout described in spec §3.
type rawHeader struct {
	Magic           [8]byte
	MajorVersion    uint16
	MinorVersion    uint16
	HeaderBlockSize uint32
	ChunkCount      uint16
	Reserved        [102]byte
	Flags           uint32
	Checksum        uint32
}

// Header is the parsed, exported form of the file header.
type Header struct {
	MajorVersion    uint16
	MinorVersion    uint16
	HeaderBlockSize uint32
	ChunkCount      uint16
	Flags           uint32
	Checksum        uint32
}

// Dirty reports whether the dirty flag (bit 0) is set.
func (h Header) Dirty() bool { return h.Flags&FlagDirty != 0 }

// NoCRC32 reports whether the no-crc32 flag (bit 2) is set.
func (h Header) NoCRC32() bool { return h.Flags&FlagNoCRC32 != 0 }

// ChunkMagic returns the 8 bytes a well-formed chunk begins with.
// internal/chunk does not call it; it checks the same bytes against its own
// copy of the magic.
func ChunkMagic() [8]byte { return chunkMagic }

// Walk validates buf's file header and returns it together with the file
// offset of every chunk it finds, per spec §4.1.
func Walk(buf []byte) (Header, []int64, error) {
	if len(buf) < binary.Size(rawHeader{}) {
		return Header{}, nil, &evtxerr.TruncatedFileHeader{Len: len(buf)}
	}

	var raw rawHeader
	sr := io.NewSectionReader(bytes.NewReader(buf), 0, int64(binary.Size(raw)))
	if err := binary.Read(sr, binary.LittleEndian, &raw); err != nil {
		return Header{}, nil, &evtxerr.TruncatedFileHeader{Len: len(buf)}
	}
	if raw.Magic != fileMagic {
		return Header{}, nil, &evtxerr.InvalidFileMagic{Got: raw.Magic}
	}

	h := Header{
		MajorVersion:    raw.MajorVersion,
		MinorVersion:    raw.MinorVersion,
		HeaderBlockSize: raw.HeaderBlockSize,
		ChunkCount:      raw.ChunkCount,
		Flags:           raw.Flags,
		Checksum:        raw.Checksum,
	}

	start := int64(h.HeaderBlockSize)
	if start <= 0 {
		start = defaultHeaderBlockSize
	}

	var offsets []int64
	for off := start; off+chunkSize <= int64(len(buf)); off += chunkSize {
		if bytes.Equal(buf[off:off+8], chunkMagic[:]) {
			offsets = append(offsets, off)
		}
		// A non-matching block is skipped, not fatal: scanning continues at
		// the next 64 KiB boundary (spec §4.1).
	}
	return h, offsets, nil
}
