package crontab

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
)

func TestFreqToCron(t *testing.T) {
	tests := map[domain.Cadence]string{
		"5T":    "*/5 * * * *",
		"10min": "*/10 * * * *",
		"T":     "*/1 * * * *",
		"1H":    "0 */1 * * *",
		"3h":    "0 */3 * * *",
		"2D":    "0 0 */2 * *",
		"1W":    "0 0 * * */1",
		"6M":    "0 0 1 */6 *",
	}
	for in, want := range tests {
		got, err := FreqToCron(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestFreqToCron_Unsupported(t *testing.T) {
	for _, in := range []domain.Cadence{"", "5S", "every hour", "0T"} {
		_, err := FreqToCron(in)
		assert.Error(t, err, in)
	}
}

func TestEntries_AllProductsWithCadence(t *testing.T) {
	entries, err := Entries(Options{MaxRetry: 3, RetryDelay: time.Minute})
	require.NoError(t, err)

	var want int
	for _, p := range domain.Products() {
		if !p.UpdateFrequency.IsZero() {
			want++
		}
	}
	assert.Len(t, entries, want)
	for _, e := range entries {
		assert.NotEqual(t, "RADAR_STATUS", e.Product)
		_, err := cron.ParseStandard(e.Schedule)
		assert.NoError(t, err, e.Product)
	}
}

func TestGenerate(t *testing.T) {
	bbox := domain.NewBBox(12, 45.15, 12.7, 45.6)
	var buf bytes.Buffer
	n, err := Generate(&buf, Options{
		Products:        []string{"SRI", "NOPE"},
		DTStrategy:      "last",
		BBox:            &bbox,
		TargetCRS:       "EPSG:4326",
		Bucket:          "s3://bucket/dpc",
		RegisterCatalog: true,
		MaxRetry:        3,
		RetryDelay:      60 * time.Second,
		Debug:           true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t,
		"*/5 * * * * dpc-retriever --product SRI --dt LAST --bbox 12,45.15,12.7,45.6 --t_srs EPSG:4326 "+
			"--s3_bucket s3://bucket/dpc --s3_catalog --max_retry 3 --retry_delay 60 --debug\n",
		buf.String())
}

func TestGenerate_UnknownProductsFallBackToAll(t *testing.T) {
	var buf bytes.Buffer
	n, err := Generate(&buf, Options{Products: []string{"NOPE"}})
	require.NoError(t, err)
	assert.Equal(t, n, strings.Count(buf.String(), "\n"))
	assert.Greater(t, n, 1)
	assert.NotContains(t, buf.String(), "--dt")
}

func TestEntries_Invalid(t *testing.T) {
	_, err := Entries(Options{DTStrategy: "TOMORROW"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = Entries(Options{MaxRetry: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
