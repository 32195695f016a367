package ether

import (
	"errors"
	"math/big"
	"testing"
)

func wei(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

func TestParseEther(t *testing.T) {
	tests := []struct {
		in   string
		want *big.Int
		err  error
	}{
		{"1", wei("1000000000000000000"), nil},
		{"0.5", wei("500000000000000000"), nil},
		{"1.5", wei("1500000000000000000"), nil},
		{"0.000000000000000001", big.NewInt(1), nil},
		{" 0.1 ", wei("100000000000000000"), nil},
		{"0", big.NewInt(0), nil},
		{"-1", nil, ErrNegativeAmount},
		{"0.0000000000000000001", nil, ErrTooPrecise},
		{"abc", nil, ErrInvalidAmount},
		{"", nil, ErrInvalidAmount},
	}
	for _, tc := range tests {
		got, err := ParseEther(tc.in)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Errorf("ParseEther(%q) err = %v, want %v", tc.in, err, tc.err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseEther(%q) unexpected error %v", tc.in, err)
			continue
		}
		if got.Cmp(tc.want) != 0 {
			t.Errorf("ParseEther(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParse_Suffixes(t *testing.T) {
	tests := map[string]*big.Int{
		"15wei":    big.NewInt(15),
		"2eth":     wei("2000000000000000000"),
		"0.3ether": wei("300000000000000000"),
		"0.25":     wei("250000000000000000"),
	}
	for in, want := range tests {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got.Cmp(want) != 0 {
			t.Errorf("Parse(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := Parse("1.5wei"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("fractional wei should be rejected, got %v", err)
	}
}

func TestParseWei(t *testing.T) {
	if _, err := ParseWei("-3"); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
	v, err := ParseWei("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	if err != nil {
		t.Fatalf("max uint256 should parse: %v", err)
	}
	if v.BitLen() != 256 {
		t.Errorf("expected 256-bit value, got %d bits", v.BitLen())
	}
}

func TestFormat(t *testing.T) {
	tests := map[string]string{
		"1000000000000000000": "1",
		"1500000000000000000": "1.5",
		"30000000000000000":   "0.03",
		"1":                   "0.000000000000000001",
		"0":                   "0",
	}
	for in, want := range tests {
		if got := Format(wei(in)); got != want {
			t.Errorf("Format(%s) = %q, want %q", in, got, want)
		}
	}
	if Format(nil) != "0" {
		t.Error("Format(nil) should be 0")
	}
}

func TestFloat(t *testing.T) {
	if got := Float(wei("250000000000000000")); got != 0.25 {
		t.Errorf("Float = %v, want 0.25", got)
	}
}
