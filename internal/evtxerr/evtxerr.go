// Package evtxerr defines the typed error conditions evtxcore can surface,
// grouped by the severity levels of spec §7: fatal (file level),
// chunk-recoverable, record-recoverable and template-level.
package evtxerr

import "fmt"

// InvalidFileMagic means the first 8 bytes of the buffer do not read
// "ElfFile\0". Fatal: the whole parse is aborted.
type InvalidFileMagic struct {
	Got [8]byte
}

func (e *InvalidFileMagic) Error() string {
	return fmt.Sprintf("invalid file magic: got %q", e.Got[:])
}

// TruncatedFileHeader means the buffer is shorter than the 128-byte file
// header. Fatal.
type TruncatedFileHeader struct {
	Len int
}

func (e *TruncatedFileHeader) Error() string {
	return fmt.Sprintf("truncated file header: buffer is only %d bytes", e.Len)
}

// InvalidChunkMagic means a chunk's first 8 bytes do not read "ElfChnk\0".
// Chunk-recoverable: the chunk is reported as corrupted and skipped.
type InvalidChunkMagic struct {
	ChunkOffset int64
	Got         [8]byte
}

func (e *InvalidChunkMagic) Error() string {
	return fmt.Sprintf("chunk at offset %d: invalid chunk magic: got %q", e.ChunkOffset, e.Got[:])
}

// TemplatePtrOutOfBounds means a template pointer table entry (or a
// next-in-chain offset) refers outside the chunk. Chunk-recoverable.
type TemplatePtrOutOfBounds struct {
	ChunkOffset int64
	Ptr         uint32
}

func (e *TemplatePtrOutOfBounds) Error() string {
	return fmt.Sprintf("chunk at offset %d: template pointer %#x out of bounds", e.ChunkOffset, e.Ptr)
}

// TemplateBodyOutOfBounds means a template definition's dataSize would run
// past the end of the chunk. Chunk-recoverable.
type TemplateBodyOutOfBounds struct {
	ChunkOffset   int64
	DefDataOffset uint32
	DataSize      uint32
}

func (e *TemplateBodyOutOfBounds) Error() string {
	return fmt.Sprintf("chunk at offset %d: template body at %#x (size %d) out of bounds", e.ChunkOffset, e.DefDataOffset, e.DataSize)
}

// InvalidRecordMagic means a 4-byte record magic didn't match. The walker
// advances 4 bytes and resumes scanning. Record-recoverable.
type InvalidRecordMagic struct {
	ChunkOffset  int64
	RecordOffset int64
}

func (e *InvalidRecordMagic) Error() string {
	return fmt.Sprintf("chunk at offset %d: invalid record magic at relative offset %d", e.ChunkOffset, e.RecordOffset)
}

// ImplausibleRecordSize means a record's declared size is smaller than the
// minimum possible (29) or runs past the chunk's free-space boundary.
// Record-recoverable.
type ImplausibleRecordSize struct {
	ChunkOffset  int64
	RecordOffset int64
	Size         uint32
}

func (e *ImplausibleRecordSize) Error() string {
	return fmt.Sprintf("chunk at offset %d: implausible record size %d at relative offset %d", e.ChunkOffset, e.Size, e.RecordOffset)
}

// SizeMismatch means a record's leading and trailing size fields disagree.
// The record is still consumed by its leading size. Record-recoverable.
type SizeMismatch struct {
	ChunkOffset  int64
	RecordOffset int64
	Size         uint32
	SizeCopy     uint32
}

func (e *SizeMismatch) Error() string {
	return fmt.Sprintf("chunk at offset %d: record at relative offset %d has size %d but trailing copy %d", e.ChunkOffset, e.RecordOffset, e.Size, e.SizeCopy)
}

// BinXmlParseError wraps a failure while decoding a record's BinXml payload.
// Record-recoverable: the record's rendering is skipped but neighboring
// records are unaffected.
type BinXmlParseError struct {
	RecordID uint64
	Message  string
}

func (e *BinXmlParseError) Error() string {
	return fmt.Sprintf("record %d: binxml parse error: %s", e.RecordID, e.Message)
}

// MissingTemplateDefinition means a template-instance's definition could not
// be located (neither inline nor in the chunk cache). The renderer does not
// return this type and emits no placeholder: an unresolved template
// back-reference fails the whole record's rendering with a plain error,
// which the orchestrator records as that record's render warning.
type MissingTemplateDefinition struct {
	DefDataOffset uint32
}

func (e *MissingTemplateDefinition) Error() string {
	return fmt.Sprintf("missing template definition at offset %#x", e.DefDataOffset)
}
