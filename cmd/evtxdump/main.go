// Command evtxdump renders every recoverable record of a Windows Event Log
// (.evtx) file as XML or JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/edsrzf/mmap-go"
	"github.com/google/renameio"
	"github.com/mattn/go-isatty"
	"github.com/orcaman/writerseeker"
	"golang.org/x/xerrors"

	"github.com/evtx-go/evtxcore"
)

var (
	debug   = flag.Bool("debug", false, "enable debug mode: print warnings and progress to stderr")
	output  = flag.String("o", "", "path to write output to (default: stdout)")
	format  = flag.String("format", "xml", `output format: "xml" or "json"`)
	workers = flag.Int("workers", 0, "number of chunks to process concurrently (default: NumCPU-1)")
)

func funcmain() error {
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("usage: evtxdump [-flags] <input.evtx>")
	}
	inputPath := flag.Arg(0)

	var cfg evtxcore.Config
	switch *format {
	case "xml", "":
		cfg.Format = evtxcore.FormatXML
	case "json":
		cfg.Format = evtxcore.FormatJSON
	default:
		return fmt.Errorf("unknown -format %q, want xml or json", *format)
	}
	cfg.Workers = *workers

	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return xerrors.Errorf("mmap %s: %w", inputPath, err)
	}
	defer m.Unmap()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := evtxcore.Parse(ctx, []byte(m), cfg)
	if err != nil {
		return xerrors.Errorf("parsing %s: %w", inputPath, err)
	}

	if *debug && isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "%s: %d chunks, %d records, %d warnings\n",
			inputPath, len(result.ChunkResults), len(result.Records), len(result.Warnings))
	}
	if *debug {
		for _, w := range result.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
	}

	buf := &writerseeker.WriterSeeker{}
	if err := writeRecords(buf, result, cfg.Format); err != nil {
		return err
	}

	if *output == "" {
		_, err := io.Copy(os.Stdout, buf.Reader())
		return err
	}
	return renameio.WriteFile(*output, mustReadAll(buf), 0o644)
}

func writeRecords(w io.Writer, result *evtxcore.Result, format evtxcore.Format) error {
	if format == evtxcore.FormatJSON {
		fmt.Fprint(w, "[")
		for i, rec := range result.Records {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprint(w, rec.Text)
		}
		fmt.Fprint(w, "]")
		return nil
	}
	fmt.Fprintln(w, "<Events>")
	for _, rec := range result.Records {
		fmt.Fprintln(w, rec.Text)
	}
	fmt.Fprintln(w, "</Events>")
	return nil
}

func mustReadAll(buf *writerseeker.WriterSeeker) []byte {
	b, err := io.ReadAll(buf.Reader())
	if err != nil {
		panic(err) // an in-memory reader cannot fail
	}
	return b
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
