package transcribe

import (
	"strings"
	"testing"
)

func TestNormalizeWord(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Fox,", "fox"},
		{"HELLO!", "hello"},
		{"it's", "its"},
		{"42.", "42"},
		{"...", ""},
	}

	for _, tt := range tests {
		if got := normalizeWord(tt.input); got != tt.expected {
			t.Errorf("normalizeWord(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestOverlapLength(t *testing.T) {
	tests := []struct {
		name     string
		prev     string
		next     string
		window   int
		expected int
	}{
		{
			name:     "two word overlap",
			prev:     "the quick brown fox",
			next:     "brown fox jumps over",
			window:   10,
			expected: 2,
		},
		{
			name:     "no overlap",
			prev:     "the quick brown fox",
			next:     "lazy dog sleeps",
			window:   10,
			expected: 0,
		},
		{
			name:     "full repeat",
			prev:     "hello world",
			next:     "hello world",
			window:   10,
			expected: 2,
		},
		{
			name:     "case and punctuation insensitive",
			prev:     "see you tomorrow, Alex",
			next:     "Tomorrow alex we should meet",
			window:   10,
			expected: 2,
		},
		{
			name:     "overlap capped by window",
			prev:     "a b c d e f",
			next:     "c d e f g h",
			window:   3,
			expected: 0,
		},
		{
			name:     "window allows short match",
			prev:     "a b c d e f",
			next:     "e f g h",
			window:   3,
			expected: 2,
		},
		{
			name:     "single word overlap",
			prev:     "we discussed the budget",
			next:     "budget was not the only topic",
			window:   10,
			expected: 1,
		},
		{
			name:     "empty previous",
			prev:     "",
			next:     "hello world",
			window:   10,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := overlapLength(strings.Fields(tt.prev), strings.Fields(tt.next), tt.window)
			if got != tt.expected {
				t.Errorf("Expected overlap %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestRMS(t *testing.T) {
	if rms(nil) != 0 {
		t.Errorf("Expected 0 for empty input, got %f", rms(nil))
	}

	if rms(make([]float32, 100)) != 0 {
		t.Errorf("Expected 0 for silence, got %f", rms(make([]float32, 100)))
	}

	constant := make([]float32, 100)
	for i := range constant {
		constant[i] = 0.5
	}
	if got := rms(constant); got < 0.499 || got > 0.501 {
		t.Errorf("Expected RMS 0.5 for constant signal, got %f", got)
	}
}
