package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePesosFormatPesosRoundTrip(t *testing.T) {
	cases := []string{"0.00", "914.30", "1.00", "1000000.01", "0.05", "99.99"}
	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			c, err := ParsePesos(s)
			if err != nil {
				t.Fatalf("ParsePesos(%q): %v", s, err)
			}
			got := FormatPesos(c)
			if got != s {
				t.Errorf("round trip: ParsePesos(%q) -> FormatPesos -> %q, want %q", s, got, s)
			}
		})
	}
}

func TestParsePesosExact(t *testing.T) {
	c, err := ParsePesos("914.30")
	if err != nil {
		t.Fatal(err)
	}
	if c != 91430 {
		t.Errorf("ParsePesos(914.30) = %d, want 91430", c)
	}
}

func TestParsePesosInvalid(t *testing.T) {
	if _, err := ParsePesos("not-a-number"); err == nil {
		t.Error("expected error for invalid pesos string")
	}
}

func TestMulRateCompounding(t *testing.T) {
	rate := decimal.NewFromFloat(0.05)
	principal := Centavos(100000)
	got := MulRate(principal, rate)
	if got != 5000 {
		t.Errorf("MulRate(100000, 0.05) = %d, want 5000", got)
	}
}

func TestClamp0(t *testing.T) {
	if Clamp0(-50) != 0 {
		t.Error("Clamp0(-50) should be 0")
	}
	if Clamp0(50) != 50 {
		t.Error("Clamp0(50) should be 50")
	}
}

func TestMinMax(t *testing.T) {
	if Min(10, 20) != 10 {
		t.Error("Min(10,20) should be 10")
	}
	if Max(10, 20) != 20 {
		t.Error("Max(10,20) should be 20")
	}
}
