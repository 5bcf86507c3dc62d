// Package money holds the fixed-point pearl arithmetic. Balances, shares and
// fees are int64 nanopearl everywhere; floats appear only at the display and
// input edges.
package money

import (
	"fmt"
	"math"
	"strings"
)

const (
	// NanosPerPearl is the atomic unit scale: 1 nanopearl = 10^-9 pearl.
	NanosPerPearl = int64(1_000_000_000)

	Asset = "PEARL"
)

// ToNanos converts a display amount to atomic units, truncating toward zero.
// NaN, infinities and non-positive inputs normalize to 0.
func ToNanos(pearl float64) int64 {
	if math.IsNaN(pearl) || math.IsInf(pearl, 0) || pearl <= 0 {
		return 0
	}
	n := math.Trunc(pearl * float64(NanosPerPearl))
	if n >= float64(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(n)
}

// ToPearl is display-only; never feed the result back into accounting.
func ToPearl(nanos int64) float64 {
	return float64(nanos) / float64(NanosPerPearl)
}

// FormatPearl renders an atomic amount as a human string with trailing
// zeros trimmed, e.g. 1_500_000_000 -> "1.5".
func FormatPearl(nanos int64) string {
	neg := nanos < 0
	if neg {
		nanos = -nanos
	}
	whole := nanos / NanosPerPearl
	frac := nanos % NanosPerPearl
	out := fmt.Sprintf("%d", whole)
	if frac > 0 {
		digits := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
		out = out + "." + digits
	}
	if neg {
		out = "-" + out
	}
	return out
}
