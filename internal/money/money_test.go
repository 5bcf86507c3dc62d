package money

import (
	"math"
	"testing"
)

func TestToNanosTruncates(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{1, NanosPerPearl},
		{1.5, 1_500_000_000},
		{0.0000000019, 1}, // truncation, not rounding
		{0.0000000001, 0},
		{0, 0},
		{-2.5, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
	}
	for _, tc := range tests {
		if got := ToNanos(tc.in); got != tc.want {
			t.Fatalf("ToNanos(%v)=%d want %d", tc.in, got, tc.want)
		}
	}
}

func TestFormatPearl(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{NanosPerPearl, "1"},
		{1_500_000_000, "1.5"},
		{20_000_000, "0.02"},
		{1, "0.000000001"},
		{-900_000_000, "-0.9"},
	}
	for _, tc := range tests {
		if got := FormatPearl(tc.in); got != tc.want {
			t.Fatalf("FormatPearl(%d)=%q want %q", tc.in, got, tc.want)
		}
	}
}
