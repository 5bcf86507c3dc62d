package ledger

import (
	"strings"
	"testing"
)

func TestNewMemoShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		m := newMemo()
		if !strings.HasPrefix(m, "FT-") {
			t.Fatalf("memo %q missing prefix", m)
		}
		if len(m) != len("FT-")+16 {
			t.Fatalf("memo %q has wrong length", m)
		}
		if m != strings.ToUpper(m) {
			t.Fatalf("memo %q not upper-cased", m)
		}
		if seen[m] {
			t.Fatalf("memo %q repeated", m)
		}
		seen[m] = true
	}
}

func TestShouldConfirm(t *testing.T) {
	tests := []struct {
		confs, required int
		want            bool
	}{
		{0, 3, false},
		{2, 3, false},
		{3, 3, true},
		{10, 3, true},
		{1, 1, true},
	}
	for _, tc := range tests {
		if got := shouldConfirm(tc.confs, tc.required); got != tc.want {
			t.Fatalf("shouldConfirm(%d, %d)=%v want %v", tc.confs, tc.required, got, tc.want)
		}
	}
}
