package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateTime(t *testing.T) {
	want := time.Date(2025, 6, 30, 10, 55, 0, 0, time.UTC)
	for _, in := range []string{
		"2025-06-30T10:55:00Z",
		"2025-06-30T12:55:00+02:00",
		"2025-06-30T10:55:00",
		"2025-06-30T10:55",
		"2025-06-30 10:55:00",
		" 2025-06-30T10:55:00.000Z ",
	} {
		got, err := ParseDateTime(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s parsed as %s", in, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	day, err := ParseDateTime("2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), day)
}

func TestParseDateTime_Invalid(t *testing.T) {
	for _, in := range []string{"", "yesterday", "30/06/2025", "2025-13-01T00:00:00"} {
		_, err := ParseDateTime(in)
		assert.ErrorIs(t, err, ErrInvalidArgument, in)
	}
}
