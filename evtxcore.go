// Package evtxcore parses Windows Event Log (.evtx) files: it walks the
// file header and chunks, decodes each record's BinXml payload, and
// renders it to XML or JSON, spreading the per-chunk work across a worker
// pool.
//
// Writing .evtx files, recomputing CRC32 checksums, sharing compiled
// templates across chunk boundaries, and serialization formats other than
// XML/JSON are out of scope; see DESIGN.md.
package evtxcore

import (
	"context"

	"github.com/evtx-go/evtxcore/internal/binxml"
	"github.com/evtx-go/evtxcore/internal/fileheader"
	"github.com/evtx-go/evtxcore/internal/orchestrate"
	"github.com/evtx-go/evtxcore/internal/template"
)

// Format selects the rendered record shape.
type Format = binxml.Format

const (
	FormatXML  = binxml.FormatXML
	FormatJSON = binxml.FormatJSON
)

// Config controls a Parse call.
type Config struct {
	// Format selects XML or JSON record rendering. Zero value is FormatXML.
	Format Format
	// Workers bounds chunk-processing concurrency; <= 0 picks a default
	// based on runtime.NumCPU.
	Workers int
	// TemplateCacheSize bounds the process-wide compiled-template LRU;
	// <= 0 uses template.DefaultSize.
	TemplateCacheSize int
}

// Record is one rendered event record, carried alongside the chunk and
// record metadata needed to make sense of it (e.g. for progress reporting
// or re-sorting by timestamp).
type Record struct {
	ChunkIndex     int
	ID             uint64
	TimestampTicks uint64
	Text           string
	Warning        string
}

// Result is the outcome of parsing one .evtx file.
type Result struct {
	Header       fileheader.Header
	ChunkResults []orchestrate.ChunkResult
	Records      []Record // flattened, in ascending chunk/record order
	Warnings     []string // file-level and aggregated chunk-level warnings
}

// Parse walks buf — the full contents of a .evtx file, however the caller
// chose to bring it into memory — and renders every recoverable record.
// It returns an error only for a failure at the file-header level or when
// ctx is canceled before every chunk has been processed; chunk- and
// record-level problems are reported as warnings so a damaged file
// still yields whatever could be recovered (spec §7 "Fault tolerance").
func Parse(ctx context.Context, buf []byte, cfg Config) (*Result, error) {
	header, chunkOffsets, err := fileheader.Walk(buf)
	if err != nil {
		return nil, err
	}

	compiled := template.NewCache(cfg.TemplateCacheSize)
	chunkResults, err := orchestrate.Run(ctx, buf, chunkOffsets, compiled, orchestrate.Options{
		Workers: cfg.Workers,
		Format:  cfg.Format,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Header: header, ChunkResults: chunkResults}
	for _, cr := range chunkResults {
		if cr.Err != nil {
			res.Warnings = append(res.Warnings, cr.Err.Error())
			continue
		}
		res.Warnings = append(res.Warnings, cr.Warnings...)
		for i, rec := range cr.Records {
			res.Records = append(res.Records, Record{
				ChunkIndex:     cr.Index,
				ID:             rec.ID,
				TimestampTicks: rec.TimestampTicks,
				Text:           cr.Rendered[i],
				Warning:        cr.RenderWarning[i],
			})
		}
	}
	return res, nil
}
