// Package crontab renders crontab entries that run dpc-retriever at every
// product's publication cadence.
package crontab

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

// Command is the program every entry invokes.
const Command = "dpc-retriever"

// Date time strategies.
const (
	StrategyNow  = "NOW"
	StrategyLast = "LAST"
)

// Options selects the products and the retriever flags of every entry.
type Options struct {
	// Products filters the catalog by code; no match means every product.
	Products []string
	// DTStrategy is NOW (retrieve the current cadence step) or LAST (the
	// last published one).
	DTStrategy      string
	BBox            *domain.BBox
	TargetCRS       string
	OutputDir       string
	Bucket          string
	RegisterCatalog bool
	MaxRetry        int
	RetryDelay      time.Duration
	Debug           bool
}

// Entry is one crontab line.
type Entry struct {
	Schedule string
	Product  string
	Args     []string
}

func (e Entry) String() string {
	return e.Schedule + " " + Command + " " + strings.Join(e.Args, " ")
}

// FreqToCron converts a cadence to a five-field cron expression.
func FreqToCron(c domain.Cadence) (string, error) {
	n, unit, err := c.Parse()
	if err != nil {
		return "", err
	}
	var expr string
	switch unit {
	case domain.UnitMinute:
		expr = fmt.Sprintf("*/%d * * * *", n)
	case domain.UnitHour:
		expr = fmt.Sprintf("0 */%d * * *", n)
	case domain.UnitDay:
		expr = fmt.Sprintf("0 0 */%d * *", n)
	case domain.UnitWeek:
		expr = fmt.Sprintf("0 0 * * */%d", n)
	case domain.UnitMonth:
		expr = fmt.Sprintf("0 0 1 */%d *", n)
	default:
		return "", fmt.Errorf("unsupported cadence %q", string(c))
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return "", fmt.Errorf("cadence %q gives invalid schedule %q: %w", string(c), expr, err)
	}
	return expr, nil
}

// Entries builds one entry per selected product. Products without a cadence
// are skipped.
func Entries(opts Options) ([]Entry, error) {
	dt, err := dtFlag(opts.DTStrategy)
	if err != nil {
		return nil, err
	}
	if opts.MaxRetry < 0 || opts.RetryDelay < 0 {
		return nil, domain.Invalid("max_retry and retry_delay must not be negative")
	}

	var entries []Entry
	for _, p := range selectProducts(opts.Products) {
		if p.UpdateFrequency.IsZero() {
			continue
		}
		schedule, err := FreqToCron(p.UpdateFrequency)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", p.Code, err)
		}
		entries = append(entries, Entry{Schedule: schedule, Product: p.Code, Args: args(p, dt, opts)})
	}
	return entries, nil
}

// Generate writes the entries to w, one per line, and returns how many were written.
func Generate(w io.Writer, opts Options) (int, error) {
	entries, err := Entries(opts)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.String()); err != nil {
			return 0, fmt.Errorf("write crontab: %w", err)
		}
	}
	return len(entries), nil
}

func dtFlag(strategy string) (string, error) {
	switch strings.ToUpper(strategy) {
	case "", StrategyNow:
		return "", nil
	case StrategyLast:
		return StrategyLast, nil
	default:
		return "", domain.Invalid("dt strategy must be NOW or LAST, got %q", strategy)
	}
}

func selectProducts(codes []string) []domain.Product {
	all := domain.Products()
	var selected []domain.Product
	for _, p := range all {
		if slices.Contains(codes, p.Code) {
			selected = append(selected, p)
		}
	}
	if len(selected) == 0 {
		return all
	}
	return selected
}

func args(p domain.Product, dt string, opts Options) []string {
	a := []string{"--product", p.Code}
	if dt != "" {
		a = append(a, "--dt", dt)
	}
	if opts.BBox != nil {
		a = append(a, "--bbox", opts.BBox.String())
	}
	if opts.TargetCRS != "" {
		a = append(a, "--t_srs", opts.TargetCRS)
	}
	if opts.OutputDir != "" {
		a = append(a, "--output_dir", opts.OutputDir)
	}
	if opts.Bucket != "" {
		a = append(a, "--s3_bucket", opts.Bucket)
	}
	if opts.RegisterCatalog {
		a = append(a, "--s3_catalog")
	}
	a = append(a,
		"--max_retry", strconv.Itoa(opts.MaxRetry),
		"--retry_delay", strconv.Itoa(int(opts.RetryDelay/time.Second)),
	)
	if opts.Debug {
		a = append(a, "--debug")
	}
	return a
}
