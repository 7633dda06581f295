package escrow

import "testing"

func TestPriceToMist(t *testing.T) {
	cases := []struct {
		display string
		want    uint64
	}{
		{"0.000000001", 1},
		{"2.5", 2_500_000_000},
		{"1.0", 1_000_000_000},
		{"0", 0},
		{"0.0000000019", 1}, // floored, never rounded up
		{"10.123456789", 10_123_456_789},
	}
	for _, tc := range cases {
		got, err := PriceToMist(tc.display)
		if err != nil {
			t.Fatalf("PriceToMist(%q): %v", tc.display, err)
		}
		if got != tc.want {
			t.Fatalf("PriceToMist(%q) = %d, want %d", tc.display, got, tc.want)
		}
	}
}

func TestPriceToMistRejects(t *testing.T) {
	for _, display := range []string{"", "abc", "-1", "-0.5"} {
		if _, err := PriceToMist(display); err == nil {
			t.Fatalf("expected error for %q", display)
		}
	}
}
