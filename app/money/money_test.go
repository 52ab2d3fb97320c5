package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormat(t *testing.T) {
	cases := map[int64]string{
		0:       "0.00",
		5:       "0.05",
		500000:  "5000.00",
		-12345:  "-123.45",
		7000000: "70000.00",
	}
	for in, want := range cases {
		if got := Format(in); got != want {
			t.Fatalf("format %d: expected %s, got %s", in, want, got)
		}
	}
}

func TestApplyPercentRoundsHalfUp(t *testing.T) {
	if got := ApplyPercent(10000000, decimal.NewFromInt(70)); got != 7000000 {
		t.Fatalf("expected 7000000, got %d", got)
	}
	if got := ApplyPercent(333, decimal.RequireFromString("12.5")); got != 42 {
		t.Fatalf("expected 41.625 to round to 42, got %d", got)
	}
	if got := ApplyPercent(0, decimal.NewFromInt(70)); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestApplyBps(t *testing.T) {
	if got := ApplyBps(1000000, 1500); got != 150000 {
		t.Fatalf("expected 150000, got %d", got)
	}
	if got := ApplyBps(5, 5000); got != 3 {
		t.Fatalf("expected 2.5 to round to 3, got %d", got)
	}
}

func TestPercentAndDivideGuardZero(t *testing.T) {
	if !Percent(10, 0).IsZero() {
		t.Fatal("expected zero percent for zero whole")
	}
	if got := Percent(3, 4).StringFixed(2); got != "75.00" {
		t.Fatalf("expected 75.00, got %s", got)
	}
	if got := Percent(1, 3).StringFixed(2); got != "33.33" {
		t.Fatalf("expected 33.33, got %s", got)
	}
	if got := DivideMinor(100, 0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := DivideMinor(1000, 3); got != 333 {
		t.Fatalf("expected 333, got %d", got)
	}
	if got := FromMajor(decimal.RequireFromString("5000.005")); got != 500001 {
		t.Fatalf("expected 500001, got %d", got)
	}
}
