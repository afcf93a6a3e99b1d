package chunk

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
)

// buildChunk returns a HeaderSize+extra byte buffer with a valid chunk
// magic and rawHeader fields filled in; callers append record/template
// bytes into the trailing region.
func buildChunk(firstID, lastID uint64, freeSpace uint32, flags uint32, extra int) []byte {
	buf := make([]byte, HeaderSize+extra)
	copy(buf[0:8], chunkMagic[:])
	binary.LittleEndian.PutUint64(buf[8:16], 1)        // FirstEventRecordNumber
	binary.LittleEndian.PutUint64(buf[16:24], lastID)  // LastEventRecordNumber
	binary.LittleEndian.PutUint64(buf[24:32], firstID) // FirstEventRecordID
	binary.LittleEndian.PutUint64(buf[32:40], lastID)  // LastEventRecordID
	binary.LittleEndian.PutUint32(buf[40:44], freeSpace)
	binary.LittleEndian.PutUint32(buf[44:48], flags)
	return buf
}

func putTemplatePtr(buf []byte, slot int, value uint32) {
	binary.LittleEndian.PutUint32(buf[templatePtrTableOffset+slot*4:templatePtrTableOffset+slot*4+4], value)
}

// windowsGUIDBytes is the inverse of WindowsGUID, for building fixtures.
func windowsGUIDBytes(u uuid.UUID) []byte {
	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = u[3], u[2], u[1], u[0]
	b[4], b[5] = u[5], u[4]
	b[6], b[7] = u[7], u[6]
	copy(b[8:16], u[8:16])
	return b
}

func putTemplateDef(buf []byte, relOffset int64, next uint32, guid uuid.UUID, dataSize uint32, body []byte) {
	region := buf[relOffset : relOffset+24+int64(len(body))]
	binary.LittleEndian.PutUint32(region[0:4], next)
	copy(region[4:20], windowsGUIDBytes(guid))
	binary.LittleEndian.PutUint32(region[20:24], dataSize)
	copy(region[24:], body)
}

func putRecord(buf []byte, relOffset int64, id, ts uint64, payload []byte, corruptSizeCopy bool) int64 {
	size := int64(28 + len(payload))
	region := buf[relOffset : relOffset+size]
	copy(region[0:4], recordMagic[:])
	binary.LittleEndian.PutUint32(region[4:8], uint32(size))
	binary.LittleEndian.PutUint64(region[8:16], id)
	binary.LittleEndian.PutUint64(region[16:24], ts)
	copy(region[24:24+len(payload)], payload)
	sizeCopy := uint32(size)
	if corruptSizeCopy {
		sizeCopy++
	}
	binary.LittleEndian.PutUint32(region[size-4:size], sizeCopy)
	return size
}

func TestParseHeaderInvalidMagic(t *testing.T) {
	buf := buildChunk(1, 1, 0, 0, 0)
	buf[0] = 'X'
	if _, err := ParseHeader(buf, 0); err == nil {
		t.Fatal("expected error for corrupted chunk magic")
	}
}

func TestParseHeaderRoundTrip(t *testing.T) {
	buf := buildChunk(100, 105, 600, FlagCorrupted, 0)
	h, err := ParseHeader(buf, 0)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.FirstEventRecordID != 100 || h.LastEventRecordID != 105 {
		t.Errorf("record id range = [%d,%d], want [100,105]", h.FirstEventRecordID, h.LastEventRecordID)
	}
	if h.FreeSpaceOffset != 600 {
		t.Errorf("FreeSpaceOffset = %d, want 600", h.FreeSpaceOffset)
	}
	if !h.Corrupted() {
		t.Error("Corrupted() = false, want true")
	}
}

func TestPreloadTemplatesChain(t *testing.T) {
	buf := buildChunk(1, 1, 0, 0, int(Size)-HeaderSize)
	g1, g2 := uuid.New(), uuid.New()

	// chain: slot 0 -> offset 512 (next=1024) -> offset 1024 (next=0)
	putTemplatePtr(buf, 0, 512)
	putTemplateDef(buf, 512, 1024, g1, 4, []byte{1, 2, 3, 4})
	putTemplateDef(buf, 1024, 0, g2, 0, nil)

	h, err := ParseHeader(buf, 0)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	state := NewState()
	warnings := PreloadTemplates(buf, 0, h, state)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(state.Templates) != 2 {
		t.Fatalf("len(state.Templates) = %d, want 2", len(state.Templates))
	}
	d1, ok := state.Templates[512]
	if !ok {
		t.Fatal("template at offset 512 not found")
	}
	if d1.GUID != g1 || d1.DataSize != 4 || d1.DataFileOffset != 512+24 {
		t.Errorf("template at 512 = %+v, want GUID=%v DataSize=4 DataFileOffset=%d", d1, g1, 512+24)
	}
	d2, ok := state.Templates[1024]
	if !ok {
		t.Fatal("template at offset 1024 not found")
	}
	if d2.GUID != g2 {
		t.Errorf("template at 1024 GUID = %v, want %v", d2.GUID, g2)
	}
}

func TestPreloadTemplatesOutOfBounds(t *testing.T) {
	buf := buildChunk(1, 1, 0, 0, 0)
	putTemplatePtr(buf, 0, uint32(Size)-4) // leaves no room for the 24-byte def header
	h, err := ParseHeader(buf, 0)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	warnings := PreloadTemplates(buf, 0, h, NewState())
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly 1", warnings)
	}
}

func TestWindowsGUIDRoundTrip(t *testing.T) {
	want := uuid.New()
	got := WindowsGUID(windowsGUIDBytes(want))
	if got != want {
		t.Errorf("WindowsGUID round trip = %v, want %v", got, want)
	}
}

func TestWalkRecordsHappyPath(t *testing.T) {
	extra := 256
	buf := buildChunk(1, 2, uint32(HeaderSize+extra), 0, extra)
	var cur int64 = HeaderSize
	payload := []byte{0x0F, 0x01, 0x01, 0x00}
	size1 := putRecord(buf, cur, 1, 131000000000000000, payload, false)
	cur += size1
	putRecord(buf, cur, 2, 131000000000000001, payload, false)

	h, err := ParseHeader(buf, 0)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	records, warnings := WalkRecords(buf, 0, h)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].ID != 1 || records[1].ID != 2 {
		t.Errorf("record ids = [%d, %d], want [1, 2]", records[0].ID, records[1].ID)
	}
	if records[0].SizeMismatch || records[1].SizeMismatch {
		t.Error("unexpected SizeMismatch on well-formed records")
	}
}

func TestWalkRecordsSizeMismatch(t *testing.T) {
	extra := 64
	buf := buildChunk(1, 1, uint32(HeaderSize+extra), 0, extra)
	payload := []byte{0x0F, 0x01, 0x01, 0x00}
	putRecord(buf, HeaderSize, 1, 1, payload, true)

	h, err := ParseHeader(buf, 0)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	records, warnings := WalkRecords(buf, 0, h)
	if len(records) != 1 || !records[0].SizeMismatch {
		t.Fatalf("records = %+v, want one record with SizeMismatch=true", records)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly 1", warnings)
	}
	size := uint32(28 + len(payload))
	want := "chunk at offset 0: record at relative offset 512 has size " +
		itoa(size) + " but trailing copy " + itoa(size+1)
	if warnings[0] != want {
		t.Errorf("warning = %q, want %q", warnings[0], want)
	}
}

func TestWalkRecordsResync(t *testing.T) {
	extra := 128
	buf := buildChunk(1, 1, uint32(HeaderSize+extra), 0, extra)
	// four bytes of garbage before the first real record forces a 4-byte
	// resync skip (spec §4.2 step 3).
	buf[HeaderSize] = 0xFF
	buf[HeaderSize+1] = 0xFF
	buf[HeaderSize+2] = 0xFF
	buf[HeaderSize+3] = 0xFF
	payload := []byte{0x0F, 0x01, 0x01, 0x00}
	putRecord(buf, HeaderSize+4, 1, 1, payload, false)

	h, err := ParseHeader(buf, 0)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	records, warnings := WalkRecords(buf, 0, h)
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	found := false
	for _, w := range warnings {
		if w == "chunk at offset 0: skipped 4 bytes while resynchronizing on record boundaries" {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a resync warning", warnings)
	}
}

func TestValidateRecordCountMismatch(t *testing.T) {
	h := Header{FirstEventRecordID: 1, LastEventRecordID: 3}
	records := []Record{{ID: 1, TimestampTicks: 1, PayloadOffset: 0, PayloadLen: 4}}
	buf := []byte{0x0F, 0, 0, 0}
	warnings := Validate(h, records, buf)
	if len(warnings) == 0 {
		t.Fatal("expected a record count mismatch warning")
	}
}

func TestValidateNonSequentialIDs(t *testing.T) {
	h := Header{FirstEventRecordID: 1, LastEventRecordID: 2}
	buf := make([]byte, 8)
	buf[0], buf[4] = 0x0F, 0x0F
	records := []Record{
		{ID: 1, TimestampTicks: 1, PayloadOffset: 0, PayloadLen: 4},
		{ID: 3, TimestampTicks: 1, PayloadOffset: 4, PayloadLen: 4},
	}
	warnings := Validate(h, records, buf)
	found := false
	for _, w := range warnings {
		if w == "non-sequential record ids: 3 follows 1" {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a non-sequential id warning", warnings)
	}
}

func TestValidateCorruptedFlag(t *testing.T) {
	h := Header{Flags: FlagCorrupted}
	warnings := Validate(h, nil, nil)
	found := false
	for _, w := range warnings {
		if w == "chunk corrupted flag is set" {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want the corrupted-flag warning", warnings)
	}
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var digits [10]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}
