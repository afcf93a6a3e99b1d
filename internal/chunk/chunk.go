// Package chunk implements the per-chunk walker of spec §4.2: chunk header
// parsing, the chunk-local template descriptor preload, and the
// fault-tolerant record scan.
//
// Binary layout decoding follows the same encoding/binary-over-a-raw-struct
// approach as distr1-distri's internal/squashfs/reader.go.
package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/evtx-go/evtxcore/internal/evtxerr"
)

const (
	// Size is the fixed size of a chunk (spec §3).
	Size = 65536
	// HeaderSize is the size of the chunk header preceding the record data.
	HeaderSize = 512

	commonStringTableOffset = 128
	commonStringTableCount  = 64
	templatePtrTableOffset  = 384
	templatePtrTableCount   = 32

	recordMinSize = 29

	// FlagCorrupted is bit 0 of the chunk header's flag word.
	FlagCorrupted = 1 << 0
)

var chunkMagic = [8]byte{'E', 'l', 'f', 'C', 'h', 'n', 'k', 0}
var recordMagic = [4]byte{0x2A, 0x2A, 0x00, 0x00}

// rawHeader is the first 48 bytes of the 512-byte chunk header; the
// common-string and template-pointer tables are read separately since they
// sit at fixed offsets (128 and 384) rather than immediately following.
type rawHeader struct {
	Magic                  [8]byte
	FirstEventRecordNumber uint64
	LastEventRecordNumber  uint64
	FirstEventRecordID     uint64
	LastEventRecordID      uint64
	FreeSpaceOffset        uint32
	Flags                  uint32
}

// Header is the parsed chunk header.
type Header struct {
	FirstEventRecordNumber uint64
	LastEventRecordNumber  uint64
	FirstEventRecordID     uint64
	LastEventRecordID      uint64
	FreeSpaceOffset        uint32
	Flags                  uint32

	CommonStrings [commonStringTableCount]uint32
	TemplatePtrs  [templatePtrTableCount]uint32
}

// Corrupted reports whether the chunk header's corrupted flag is set.
func (h Header) Corrupted() bool { return h.Flags&FlagCorrupted != 0 }

// ParseHeader parses the 512-byte chunk header at buf[chunkOffset:].
func ParseHeader(buf []byte, chunkOffset int64) (Header, error) {
	if chunkOffset+HeaderSize > int64(len(buf)) {
		return Header{}, fmt.Errorf("chunk at offset %d: header would exceed buffer", chunkOffset)
	}
	region := buf[chunkOffset : chunkOffset+HeaderSize]
	if !bytes.Equal(region[:8], chunkMagic[:]) {
		var got [8]byte
		copy(got[:], region[:8])
		return Header{}, &evtxerr.InvalidChunkMagic{ChunkOffset: chunkOffset, Got: got}
	}

	var raw rawHeader
	if err := binary.Read(bytes.NewReader(region[:48]), binary.LittleEndian, &raw); err != nil {
		return Header{}, fmt.Errorf("chunk at offset %d: %v", chunkOffset, err)
	}

	h := Header{
		FirstEventRecordNumber: raw.FirstEventRecordNumber,
		LastEventRecordNumber:  raw.LastEventRecordNumber,
		FirstEventRecordID:     raw.FirstEventRecordID,
		LastEventRecordID:      raw.LastEventRecordID,
		FreeSpaceOffset:        raw.FreeSpaceOffset,
		Flags:                  raw.Flags,
	}
	if err := binary.Read(bytes.NewReader(region[commonStringTableOffset:templatePtrTableOffset]), binary.LittleEndian, &h.CommonStrings); err != nil {
		return Header{}, fmt.Errorf("chunk at offset %d: common-string table: %v", chunkOffset, err)
	}
	if err := binary.Read(bytes.NewReader(region[templatePtrTableOffset:HeaderSize]), binary.LittleEndian, &h.TemplatePtrs); err != nil {
		return Header{}, fmt.Errorf("chunk at offset %d: template pointer table: %v", chunkOffset, err)
	}
	return h, nil
}

// TemplateDescriptor locates a template definition's body without owning
// its bytes: ownership stays with the shared file buffer (spec §9 "Back-
// references as weak handles").
type TemplateDescriptor struct {
	GUID           uuid.UUID
	DataSize       uint32
	DataFileOffset int64 // absolute offset of the first body byte
}

// State is the mutable, chunk-owned cache described in spec §3: template
// descriptors keyed by chunk-relative definition offset, and resolved
// element/attribute names keyed by chunk-relative name offset. Exactly one
// worker owns a State at a time; it is never shared.
type State struct {
	Templates map[uint32]TemplateDescriptor
	Names     map[uint32]string
}

func NewState() *State {
	return &State{
		Templates: make(map[uint32]TemplateDescriptor),
		Names:     make(map[uint32]string),
	}
}

// PreloadTemplates walks the chunk's 32-entry chained template pointer
// table and populates state.Templates, per spec §4.2 step 2. Warnings are
// appended for out-of-bounds chain links; a bad link only terminates its
// own chain.
func PreloadTemplates(buf []byte, chunkOffset int64, h Header, state *State) []string {
	var warnings []string
	for _, head := range h.TemplatePtrs {
		next := head
		for next != 0 {
			if _, seen := state.Templates[next]; seen {
				break // cycle / reinsertion guard
			}
			if int64(next)+24 > Size {
				warnings = append(warnings, (&evtxerr.TemplatePtrOutOfBounds{ChunkOffset: chunkOffset, Ptr: next}).Error())
				break
			}
			defAbs := chunkOffset + int64(next)
			nextInChain, guid, dataSize, err := readTemplateDefHeader(buf, defAbs)
			if err != nil {
				warnings = append(warnings, (&evtxerr.TemplatePtrOutOfBounds{ChunkOffset: chunkOffset, Ptr: next}).Error())
				break
			}
			if int64(next)+24+int64(dataSize) > Size {
				warnings = append(warnings, (&evtxerr.TemplateBodyOutOfBounds{ChunkOffset: chunkOffset, DefDataOffset: next, DataSize: dataSize}).Error())
				break
			}
			state.Templates[next] = TemplateDescriptor{
				GUID:           guid,
				DataSize:       dataSize,
				DataFileOffset: defAbs + 24,
			}
			next = nextInChain
		}
	}
	return warnings
}

// readTemplateDefHeader reads the 24-byte template definition header
// (next-offset, GUID, dataSize) at the given absolute file offset.
func readTemplateDefHeader(buf []byte, absOffset int64) (next uint32, guid uuid.UUID, dataSize uint32, err error) {
	if absOffset < 0 || absOffset+24 > int64(len(buf)) {
		return 0, uuid.UUID{}, 0, fmt.Errorf("template definition header at %d out of bounds", absOffset)
	}
	region := buf[absOffset : absOffset+24]
	next = binary.LittleEndian.Uint32(region[0:4])
	guid = WindowsGUID(region[4:20])
	dataSize = binary.LittleEndian.Uint32(region[20:24])
	return next, guid, dataSize, nil
}

// WindowsGUID converts a 16-byte Windows-mixed-endian GUID (the first three
// fields little-endian, the trailing 8 bytes big-endian) into a
// google/uuid.UUID, whose canonical wire form is all-big-endian.
func WindowsGUID(b []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])
	return u
}

// Record is one decoded event record (spec §3 Record).
type Record struct {
	ID             uint64
	TimestampTicks uint64 // raw FILETIME, 100ns ticks since 1601-01-01 UTC
	PayloadOffset  int64  // absolute offset of the BinXml payload
	PayloadLen     int64
	SizeMismatch   bool
}

// WalkRecords performs the fault-tolerant record scan of spec §4.2 step 3
// over the chunk's data region [512, h.FreeSpaceOffset).
func WalkRecords(buf []byte, chunkOffset int64, h Header) ([]Record, []string) {
	var records []Record
	var warnings []string

	limit := int64(h.FreeSpaceOffset)
	if limit <= 0 || limit > Size {
		limit = Size
	}

	cur := int64(HeaderSize)
	skipped := 0
	for cur < limit {
		if cur+4 > limit {
			break
		}
		abs := chunkOffset + cur
		if abs+4 > int64(len(buf)) {
			break
		}
		word := buf[abs : abs+4]
		if word[0] == 0 && word[1] == 0 && word[2] == 0 && word[3] == 0 {
			break // clean end
		}
		if !bytes.Equal(word, recordMagic[:]) {
			cur += 4 // misaligned-record recovery
			skipped += 4
			continue
		}

		rec, size, ok := parseRecordAt(buf, chunkOffset, cur, limit)
		if !ok {
			cur += 4
			skipped += 4
			continue
		}
		if rec.SizeMismatch {
			sizeCopy := binary.LittleEndian.Uint32(buf[abs+size-4 : abs+size])
			warnings = append(warnings, (&evtxerr.SizeMismatch{ChunkOffset: chunkOffset, RecordOffset: cur, Size: uint32(size), SizeCopy: sizeCopy}).Error())
		}
		records = append(records, rec)
		cur += size
	}
	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("chunk at offset %d: skipped %d bytes while resynchronizing on record boundaries", chunkOffset, skipped))
	}
	return records, warnings
}

func parseRecordAt(buf []byte, chunkOffset, relOffset, limit int64) (Record, int64, bool) {
	abs := chunkOffset + relOffset
	if abs+28 > int64(len(buf)) {
		return Record{}, 0, false
	}
	size := binary.LittleEndian.Uint32(buf[abs+4 : abs+8])
	if size < recordMinSize || relOffset+int64(size) > limit || abs+int64(size) > int64(len(buf)) {
		return Record{}, 0, false
	}
	id := binary.LittleEndian.Uint64(buf[abs+8 : abs+16])
	ts := binary.LittleEndian.Uint64(buf[abs+16 : abs+24])
	payloadOff := abs + 24
	payloadLen := int64(size) - 28
	sizeCopy := binary.LittleEndian.Uint32(buf[abs+int64(size)-4 : abs+int64(size)])

	rec := Record{
		ID:             id,
		TimestampTicks: ts,
		PayloadOffset:  payloadOff,
		PayloadLen:     payloadLen,
		SizeMismatch:   sizeCopy != size,
	}
	return rec, int64(size), true
}

// Validate produces the advisory warnings of spec §4.2 "Validation", beyond
// the per-record ones WalkRecords already appended.
func Validate(h Header, records []Record, buf []byte) []string {
	var warnings []string

	wantCount := h.LastEventRecordID - h.FirstEventRecordID + 1
	if h.LastEventRecordID >= h.FirstEventRecordID && uint64(len(records)) != wantCount {
		warnings = append(warnings, fmt.Sprintf("record count mismatch: header implies %d records, found %d", wantCount, len(records)))
	}

	var prevID uint64
	havePrev := false
	for _, r := range records {
		if havePrev && r.ID != prevID+1 {
			warnings = append(warnings, fmt.Sprintf("non-sequential record ids: %d follows %d", r.ID, prevID))
		}
		prevID = r.ID
		havePrev = true

		if r.PayloadLen == 0 || r.PayloadLen < 4 {
			warnings = append(warnings, fmt.Sprintf("record %d: binxml length %d is zero or improbably small", r.ID, r.PayloadLen))
		} else if int(buf[r.PayloadOffset]) != 0x0F {
			warnings = append(warnings, fmt.Sprintf("record %d: binxml first byte is %#x, not 0x0F", r.ID, buf[r.PayloadOffset]))
		}
		if r.TimestampTicks == 0 {
			warnings = append(warnings, fmt.Sprintf("record %d: zero timestamp", r.ID))
		}
	}

	if h.Corrupted() {
		warnings = append(warnings, "chunk corrupted flag is set")
	}
	return warnings
}
