package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDollars(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"Cash: $12,345", 12345},
		{"$0", 0},
		{"1000000", 1000000},
		{"Balance: $42,000 available", 42000},
	}
	for _, tc := range cases {
		got, err := ParseDollars(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseDollars("no money here")
	assert.Error(t, err)
}

func TestParseCounter(t *testing.T) {
	used, total, err := ParseCounter("6/30")
	require.NoError(t, err)
	assert.Equal(t, 6, used)
	assert.Equal(t, 30, total)

	used, total, err = ParseCounter("Slots: 12 / 26 used")
	require.NoError(t, err)
	assert.Equal(t, 12, used)
	assert.Equal(t, 26, total)

	_, _, err = ParseCounter("empty")
	assert.Error(t, err)
}
