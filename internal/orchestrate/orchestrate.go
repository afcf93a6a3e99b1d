// Package orchestrate runs the per-chunk walk of spec §5 across a worker
// pool: each chunk is header-parsed, template-preloaded, record-scanned and
// BinXml-rendered entirely within one worker, and results are reassembled
// in ascending chunk order regardless of completion order.
//
// The worker-pool shape is grounded on distr1-distri's internal/batch
// scheduler (a fixed number of goroutines draining a work channel under an
// errgroup), adapted from build-graph scheduling to flat, independent
// per-chunk work with no dependency edges between chunks.
package orchestrate

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/evtx-go/evtxcore/internal/binxml"
	"github.com/evtx-go/evtxcore/internal/chunk"
	"github.com/evtx-go/evtxcore/internal/template"
)

// ChunkResult is one chunk's output: decoded records rendered to text, plus
// every warning raised while getting there. A malformed chunk still
// produces a ChunkResult — Err is set only for a failure severe enough
// that no records could be recovered from it at all.
type ChunkResult struct {
	Index         int
	Offset        int64
	Header        chunk.Header
	Records       []chunk.Record
	Rendered      []string // Rendered[i] corresponds to Records[i]
	RenderWarning []string // per-record rendering problems, aligned with Records
	Warnings      []string // chunk-level warnings (header, template preload, record scan)
	Err           error
}

// Options configures the worker pool.
type Options struct {
	// Workers bounds concurrency; values <= 0 default to
	// max(1, runtime.NumCPU()-1).
	Workers int
	Format  binxml.Format
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}

// Run walks every chunk at the given offsets concurrently and returns
// results ordered by chunk index ascending (spec §5 "Result ordering").
// buf is the whole file and is read-only for the duration of the call;
// compiled is shared across all chunks for the lifetime of the walk.
func Run(ctx context.Context, buf []byte, chunkOffsets []int64, compiled *template.Cache, opts Options) ([]ChunkResult, error) {
	results := make([]ChunkResult, len(chunkOffsets))

	eg, ctx := errgroup.WithContext(ctx)
	work := make(chan int, len(chunkOffsets))
	for i := range chunkOffsets {
		work <- i
	}
	close(work)

	for w := 0; w < opts.workers(); w++ {
		eg.Go(func() error {
			for idx := range work {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[idx] = processChunk(buf, idx, chunkOffsets[idx], compiled, opts.Format)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// processChunk owns a chunk.State exclusively for its own lifetime, per
// spec §9's no-shared-mutable-state rule: only buf and compiled are shared
// with other concurrently running workers.
func processChunk(buf []byte, index int, offset int64, compiled *template.Cache, format binxml.Format) ChunkResult {
	res := ChunkResult{Index: index, Offset: offset}

	header, err := chunk.ParseHeader(buf, offset)
	if err != nil {
		res.Err = err
		return res
	}
	res.Header = header

	state := chunk.NewState()
	res.Warnings = append(res.Warnings, chunk.PreloadTemplates(buf, offset, header, state)...)

	records, warnings := chunk.WalkRecords(buf, offset, header)
	res.Warnings = append(res.Warnings, warnings...)
	res.Warnings = append(res.Warnings, chunk.Validate(header, records, buf)...)
	res.Records = records

	dec := binxml.NewDecoder(buf, offset, state, compiled, format)
	res.Rendered = make([]string, len(records))
	res.RenderWarning = make([]string, len(records))
	for i, rec := range records {
		text, rwarn, err := dec.Render(rec.PayloadOffset, rec.PayloadLen)
		if err != nil {
			res.RenderWarning[i] = err.Error()
			continue
		}
		res.Rendered[i] = text
		if len(rwarn) > 0 {
			res.RenderWarning[i] = rwarn[0]
			if len(rwarn) > 1 {
				res.Warnings = append(res.Warnings, rwarn[1:]...)
			}
		}
	}
	return res
}
