// Command dpc-crontab writes a crontab that runs dpc-retriever for every
// selected product at its publication cadence.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/SaferPlaces2023/dpc-retriever/internal/config"
	"github.com/SaferPlaces2023/dpc-retriever/internal/crontab"
	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
)

type flags struct {
	products   string
	outputFile string
	crontab.Options
	bbox       string
	retryDelay int
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "load config:", err)
		return 1
	}
	f, err := parseFlags(args, cfg, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger := observability.NewWriterLogger(stderr, cfg.LogLevel, cfg.LogFormat, f.Debug)

	opts, err := f.options()
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		return 2
	}

	out, err := os.Create(f.outputFile)
	if err != nil {
		logger.Error("create crontab file", "path", f.outputFile, "error", err)
		return 1
	}
	n, err := crontab.Generate(out, opts)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.Error("generate crontab", "error", err)
		return 1
	}
	logger.Info("crontab written", "path", f.outputFile, "entries", n)
	return 0
}

func parseFlags(args []string, cfg *config.Config, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("dpc-crontab", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.products, "products", "", "comma-separated product codes (default: every product)")
	fs.StringVar(&f.outputFile, "output_file", "crontab.txt", "crontab file to write")
	fs.StringVar(&f.DTStrategy, "dt_strategy", crontab.StrategyNow, "NOW or LAST")
	fs.StringVar(&f.bbox, "bbox", "", "bounding box minx,miny,maxx,maxy in EPSG:4326")
	fs.StringVar(&f.TargetCRS, "t_srs", "", "target spatial reference")
	fs.StringVar(&f.OutputDir, "output_dir", "", "local output directory")
	fs.StringVar(&f.Bucket, "s3_bucket", "", "bucket URI to store results in")
	fs.BoolVar(&f.RegisterCatalog, "s3_catalog", false, "register results in the bucket catalog")
	fs.IntVar(&f.MaxRetry, "max_retry", cfg.MaxRetry, "retries after a failed retrieval attempt")
	fs.IntVar(&f.retryDelay, "retry_delay", int(cfg.RetryDelay/time.Second), "seconds between retrieval attempts")
	fs.BoolVar(&f.Debug, "debug", false, "debug logging in the generated entries")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return f, nil
}

func (f flags) options() (crontab.Options, error) {
	opts := f.Options
	for _, code := range strings.Split(f.products, ",") {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			opts.Products = append(opts.Products, code)
		}
	}
	if f.bbox != "" {
		b, err := domain.ParseBBox(f.bbox)
		if err != nil {
			return opts, err
		}
		opts.BBox = &b
	}
	opts.RetryDelay = time.Duration(f.retryDelay) * time.Second
	return opts, nil
}
