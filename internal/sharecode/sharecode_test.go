package sharecode

import (
	"strings"
	"testing"
)

func TestAlphabetExcludesConfusables(t *testing.T) {
	for _, c := range "0O1IL" {
		if strings.ContainsRune(Alphabet, c) {
			t.Fatalf("alphabet contains confusable character %q", c)
		}
	}
}

func TestNewCodeShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := New()
		if err != nil {
			t.Fatalf("new code: %v", err)
		}
		if len(code) != Length {
			t.Fatalf("code %q has length %d, want %d", code, len(code), Length)
		}
		for _, c := range code {
			if !strings.ContainsRune(Alphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
		seen[code] = true
	}
	// 200 draws from a 31^6 space colliding every time would mean a broken generator
	if len(seen) < 100 {
		t.Fatalf("generator produced only %d distinct codes out of 200", len(seen))
	}
}

func TestNewCodeCharacterDistribution(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping distribution sampling in short mode")
	}
	counts := make(map[byte]int, len(Alphabet))
	const draws = 100000
	for i := 0; i < draws; i++ {
		code, err := New()
		if err != nil {
			t.Fatalf("new code: %v", err)
		}
		for j := 0; j < len(code); j++ {
			counts[code[j]]++
		}
	}
	// bare modulo over 256 would inflate the first 256%31 characters by ~13%;
	// with rejection sampling every character stays within 5% of uniform
	expected := float64(draws*Length) / float64(len(Alphabet))
	for i := 0; i < len(Alphabet); i++ {
		got := float64(counts[Alphabet[i]])
		if got < expected*0.95 || got > expected*1.05 {
			t.Fatalf("character %q drawn %0.f times, expected ~%0.f", Alphabet[i], got, expected)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"ab12c3":    "AB12C3",
		"  AB12C3 ": "AB12C3",
		"Ab12C3":    "AB12C3",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
