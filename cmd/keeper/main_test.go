package main

import (
	"math/big"
	"testing"
)

func TestParseEtherList(t *testing.T) {
	got, err := parseEtherList("0.05, 0.1,0.2")
	if err != nil {
		t.Fatalf("parseEtherList: %v", err)
	}
	want := []string{
		"50000000000000000",
		"100000000000000000",
		"200000000000000000",
	}
	if len(got) != len(want) {
		t.Fatalf("len: got %d want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].String() != w {
			t.Fatalf("amount %d: got %s want %s", i, got[i], w)
		}
	}
}

func TestParseEtherList_Rejects(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"not a number", "abc"},
		{"zero amount", "0"},
		{"negative amount", "-0.1"},
		{"not ascending", "0.2,0.1"},
		{"equal amounts", "0.1,0.1"},
		{"sub-wei precision", "0.0000000000000000001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseEtherList(tc.in); err == nil {
				t.Fatalf("parseEtherList(%q) accepted", tc.in)
			}
		})
	}
}

func TestEtherToWei(t *testing.T) {
	got, err := etherToWei("1.5")
	if err != nil {
		t.Fatalf("etherToWei: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	if got.Cmp(want) != 0 {
		t.Fatalf("etherToWei(1.5): got %s want %s", got, want)
	}
}
