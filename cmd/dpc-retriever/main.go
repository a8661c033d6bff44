// Command dpc-retriever retrieves one DPC product, normalizes it and
// optionally stores it in a bucket. The JSON result goes to stdout, logs to
// stderr.
//
// Usage:
//
//	dpc-retriever --product SRI --dt 2025-06-30T10:55:00 \
//	  --bbox 12,45.15,12.7,45.6 --t_srs EPSG:4326 \
//	  --s3_bucket s3://bucket/dpc --s3_catalog
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SaferPlaces2023/dpc-retriever/internal/adapter/backend"
	"github.com/SaferPlaces2023/dpc-retriever/internal/app"
	"github.com/SaferPlaces2023/dpc-retriever/internal/config"
	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
	"github.com/SaferPlaces2023/dpc-retriever/internal/pipeline"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const backendTimeout = 10 * time.Second

type options struct {
	product    string
	dt         string
	bbox       string
	tSRS       string
	outFormat  string
	outputDir  string
	bucket     string
	catalog    bool
	maxRetry   int
	retryDelay int
	backend    string
	jid        string
	debug      bool
	version    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		return emit(stdout, domain.Fail(fmt.Errorf("load config: %w", err)))
	}

	opts, err := parseFlags(args, cfg, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return emit(stdout, domain.Fail(domain.Invalid("%v", err)))
	}
	if opts.version {
		fmt.Fprintln(stdout, version)
		return 0
	}

	logger := observability.NewWriterLogger(stderr, cfg.LogLevel, cfg.LogFormat, opts.debug)
	req, err := opts.request()
	if err != nil {
		return emit(stdout, domain.Fail(err))
	}

	a, err := app.New(cfg, logger, observability.NewMetrics())
	if err != nil {
		return emit(stdout, domain.Fail(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("resource close error", "error", err)
		}
	}()

	var reporter pipeline.Reporter
	if opts.backend != "" {
		reporter = backend.NewReporter(opts.backend, opts.jid, backendTimeout, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return emit(stdout, a.Pipeline.Run(ctx, req, reporter))
}

func parseFlags(args []string, cfg *config.Config, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("dpc-retriever", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.product, "product", "", "product code, e.g. SRI (required)")
	fs.StringVar(&o.dt, "dt", "", "ISO-8601 date time, or LAST for the last published one (default: now, floored to the product cadence)")
	fs.StringVar(&o.bbox, "bbox", "", "bounding box minx,miny,maxx,maxy in EPSG:4326")
	fs.StringVar(&o.tSRS, "t_srs", "", "target spatial reference, e.g. EPSG:3857")
	fs.StringVar(&o.outFormat, "out_format", "", "output format extension (tif, nc, shp, geojson)")
	fs.StringVar(&o.outputDir, "output_dir", "", "local output directory (default: current directory when no bucket is given)")
	fs.StringVar(&o.bucket, "s3_bucket", "", "bucket URI to store the result in (s3://, gs:// or file://)")
	fs.BoolVar(&o.catalog, "s3_catalog", false, "register the result in the bucket catalog")
	fs.IntVar(&o.maxRetry, "max_retry", cfg.MaxRetry, "retries after a failed retrieval attempt")
	fs.IntVar(&o.retryDelay, "retry_delay", int(cfg.RetryDelay/time.Second), "seconds between retrieval attempts")
	fs.StringVar(&o.backend, "backend", "", "URL receiving progress updates")
	fs.StringVar(&o.jid, "jid", "", "job id sent with progress updates (default: random)")
	fs.BoolVar(&o.debug, "debug", false, "debug logging")
	fs.BoolVar(&o.version, "version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return o, nil
}

// request converts the flags. Failures wrap domain.ErrInvalidArgument.
func (o options) request() (pipeline.Request, error) {
	if o.product == "" {
		return pipeline.Request{}, domain.Invalid("--product is required")
	}
	product, ok := domain.LookupProduct(strings.ToUpper(o.product))
	if !ok {
		return pipeline.Request{}, domain.Invalid("unknown product %q", o.product)
	}
	req := pipeline.Request{
		Product:         product.Code,
		TargetCRS:       o.tSRS,
		OutFormat:       o.outFormat,
		OutputDir:       o.outputDir,
		Bucket:          o.bucket,
		RegisterCatalog: o.catalog,
		MaxRetry:        o.maxRetry,
		RetryDelay:      time.Duration(o.retryDelay) * time.Second,
	}

	switch {
	case o.dt == "":
		req.DateTime = product.Now()
	case strings.EqualFold(o.dt, "LAST"):
	default:
		t, err := domain.ParseDateTime(o.dt)
		if err != nil {
			return req, err
		}
		req.DateTime = t
	}

	if o.bbox != "" {
		b, err := domain.ParseBBox(o.bbox)
		if err != nil {
			return req, err
		}
		req.BBox = &b
	}
	if o.retryDelay < 0 {
		return req, domain.Invalid("--retry_delay must not be negative")
	}
	return req, nil
}

// emit prints the result and returns the exit status.
func emit(w io.Writer, res domain.Result) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintln(os.Stderr, "write result:", err)
		return 1
	}
	if res.Status != domain.StatusOK {
		return 1
	}
	return 0
}
