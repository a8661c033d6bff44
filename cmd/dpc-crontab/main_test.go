package main

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaferPlaces2023/dpc-retriever/internal/config"
	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

func TestOptions(t *testing.T) {
	cfg := &config.Config{MaxRetry: 3, RetryDelay: time.Minute}
	f, err := parseFlags([]string{
		"--products", "sri, srt1,,",
		"--dt_strategy", "LAST",
		"--bbox", "12,45,13,46",
		"--s3_bucket", "s3://bucket",
		"--s3_catalog",
		"--retry_delay", "30",
	}, cfg, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "crontab.txt", f.outputFile)

	opts, err := f.options()
	require.NoError(t, err)
	assert.Equal(t, []string{"SRI", "SRT1"}, opts.Products)
	assert.Equal(t, "LAST", opts.DTStrategy)
	require.NotNil(t, opts.BBox)
	assert.Equal(t, "12,45,13,46", opts.BBox.String())
	assert.True(t, opts.RegisterCatalog)
	assert.Equal(t, 3, opts.MaxRetry)
	assert.Equal(t, 30*time.Second, opts.RetryDelay)
}

func TestOptions_InvalidBBox(t *testing.T) {
	_, err := flags{bbox: "1,2,3"}.options()
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestParseFlags_UnexpectedArgs(t *testing.T) {
	_, err := parseFlags([]string{"extra"}, &config.Config{}, io.Discard)
	assert.Error(t, err)
}
