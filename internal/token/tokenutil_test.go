package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty", "", 0},
		{"single char rounds up", "a", 1},
		{"three chars round up", "abc", 1},
		{"four chars", "abcd", 1},
		{"eight chars", "abcdefgh", 2},
		{"hundred chars", strings.Repeat("x", 100), 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Estimate(tt.text))
		})
	}
}

func TestEstimateCountsRunesNotBytes(t *testing.T) {
	// 8 runes, 24 bytes.
	text := "日本語日本語日本"
	assert.Equal(t, 2, Estimate(text))
}

func TestCount(t *testing.T) {
	assert.Equal(t, 0, Count(""))
	assert.Greater(t, Count("hello world, this is a test sentence"), 0)
}
