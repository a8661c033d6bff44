// Command dpc-shp-concat merges the shapefiles of a directory into one and
// prints the merged path.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/SaferPlaces2023/dpc-retriever/internal/config"
	"github.com/SaferPlaces2023/dpc-retriever/internal/geo"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "load config:", err)
		return 1
	}
	req, debug, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger := observability.NewWriterLogger(stderr, cfg.LogLevel, cfg.LogFormat, debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := geo.NewProcessor(logger, observability.NewMetrics()).ConcatShapefiles(ctx, req)
	if err != nil {
		logger.Error("concat failed", "src", req.Src, "error", err)
		return 1
	}
	if out == "" {
		logger.Warn("no shapefile matched", "src", req.Src)
		return 0
	}
	fmt.Fprintln(stdout, out)
	return 0
}

func parseFlags(args []string, stderr io.Writer) (geo.ConcatRequest, bool, error) {
	var (
		req   geo.ConcatRequest
		debug bool
	)
	fs := flag.NewFlagSet("dpc-shp-concat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&req.Src, "src", "", "directory holding the shapefiles (required)")
	fs.StringVar(&req.Prefix, "prefix", "", "only merge files whose name starts with this")
	fs.StringVar(&req.Suffix, "suffix", "", "only merge files whose name ends with this")
	fs.StringVar(&req.Contains, "contains", "", "only merge files whose name contains this")
	fs.StringVar(&req.Out, "out", "", "merged shapefile (default: <src>/<basename of src>.shp)")
	fs.BoolVar(&req.RemoveSrc, "remove_src", false, "remove the merged source files")
	fs.BoolVar(&debug, "debug", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return req, debug, err
	}
	if req.Src == "" {
		return req, debug, errors.New("--src is required")
	}
	return req, debug, nil
}
