// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

package policy

import "testing"

func TestStringS5(t *testing.T) {
	p := Policy{Flags: 0xf000, Length: 20}
	if got, want := p.String(), "f000014"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := FromString(p.String()); got != p {
		t.Errorf("FromString(String(p)) = %+v, want %+v", got, p)
	}
}

func TestRoundTripAllValidCombinations(t *testing.T) {
	lengths := []uint16{1, 2, 20, 255, 1024}
	flagCombos := []uint16{
		UseLower, UseUpper, UseDigit, UseSymbol, Pronounceable,
		UseLower | UseUpper | UseDigit,
		UseLower | UseUpper | UseDigit | UseSymbol | Pronounceable,
	}
	for _, flags := range flagCombos {
		for _, length := range lengths {
			p := Policy{Flags: flags, Length: length}
			if got := FromString(p.String()); got != p {
				t.Errorf("round trip failed for flags=%#x length=%d: got %+v", flags, length, got)
			}
		}
	}
}

func TestFromStringInvalidCollapsesToEmpty(t *testing.T) {
	cases := []string{
		"",
		"xyz",
		"000001f", // flags == 0
		"f000fff", // length = 0xfff = 4095 > 1024
		"f00001",  // too short
		"f0000100", // too long
	}
	for _, s := range cases {
		if got := FromString(s); got != Empty {
			t.Errorf("FromString(%q) = %+v, want Empty", s, got)
		}
	}
}

func TestEmptyPolicyStringIsEmpty(t *testing.T) {
	if got := Empty.String(); got != "" {
		t.Errorf("Empty.String() = %q, want \"\"", got)
	}
}
