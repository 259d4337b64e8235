package vdf

import (
	"bytes"
	"math/big"
	"testing"
)

func TestBigNumber_BytesPadsToWidth(t *testing.T) {
	cases := []struct {
		name   string
		val    *big.Int
		bitlen uint
		want   []byte
	}{
		{"exact width", big.NewInt(0xabcd), 16, []byte{0xab, 0xcd}},
		{"left padded", big.NewInt(0x01), 16, []byte{0x00, 0x01}},
		{"bitlen rounds up", big.NewInt(0x01), 9, []byte{0x00, 0x01}},
		{"zero value", big.NewInt(0), 8, []byte{0x00}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BigNumber{Val: tc.val, BitLen: tc.bitlen}.Bytes()
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("Bytes: got %x want %x", got, tc.want)
			}
		})
	}
}

func TestBigNumber_BytesRejectsBadInput(t *testing.T) {
	if _, err := (BigNumber{BitLen: 8}).Bytes(); err == nil {
		t.Fatal("nil value accepted")
	}
	if _, err := (BigNumber{Val: big.NewInt(-1), BitLen: 8}).Bytes(); err == nil {
		t.Fatal("negative value accepted")
	}
	if _, err := (BigNumber{Val: big.NewInt(0x1ff), BitLen: 8}).Bytes(); err == nil {
		t.Fatal("overflowing value accepted")
	}
}

func TestProof_ABIForm(t *testing.T) {
	p := Proof{
		V: []BigNumber{
			{Val: big.NewInt(5), BitLen: 16},
			{Val: big.NewInt(0x1234), BitLen: 16},
		},
		Y: BigNumber{Val: big.NewInt(7), BitLen: 8},
	}

	v, y, err := p.ABIForm()
	if err != nil {
		t.Fatalf("ABIForm: %v", err)
	}
	if len(v) != 2 {
		t.Fatalf("v len: got %d want 2", len(v))
	}
	if !bytes.Equal(v[0].Val, []byte{0x00, 0x05}) {
		t.Fatalf("v[0]: got %x want 0005", v[0].Val)
	}
	if v[0].Bitlen.Uint64() != 16 {
		t.Fatalf("v[0] bitlen: got %d want 16", v[0].Bitlen.Uint64())
	}
	if !bytes.Equal(y.Val, []byte{0x07}) {
		t.Fatalf("y: got %x want 07", y.Val)
	}
}

func TestProof_ABIFormRejectsEmpty(t *testing.T) {
	if _, _, err := (Proof{Y: BigNumber{Val: big.NewInt(1), BitLen: 8}}).ABIForm(); err == nil {
		t.Fatal("empty v accepted")
	}
}
