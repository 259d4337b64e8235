package vdf

import (
	"fmt"
	"math/big"
)

// BigNumber is an arbitrary-precision value paired with its declared bit
// length, matching the contract's BigNumber struct. The bit length drives
// the byte width the verifier expects, so it is carried alongside the value
// instead of being re-derived.
type BigNumber struct {
	Val    *big.Int
	BitLen uint
}

// Bytes returns the value left-zero-padded to the fixed width implied by
// BitLen. The on-chain verifier rejects values whose byte length does not
// match ceil(bitlen/8).
func (n BigNumber) Bytes() ([]byte, error) {
	if n.Val == nil {
		return nil, fmt.Errorf("vdf: nil value")
	}
	if n.Val.Sign() < 0 {
		return nil, fmt.Errorf("vdf: negative value")
	}
	width := int((n.BitLen + 7) / 8)
	raw := n.Val.Bytes()
	if len(raw) > width {
		return nil, fmt.Errorf("vdf: value needs %d bytes, bitlen %d allows %d", len(raw), n.BitLen, width)
	}
	out := make([]byte, width)
	copy(out[width-len(raw):], raw)
	return out, nil
}

// Proof is a verifiable-delay-function proof over a randomness seed:
// the intermediate checkpoints v and the final output y.
type Proof struct {
	V []BigNumber
	Y BigNumber
}

// ABIBigNumber mirrors the tuple layout the contract ABI expects
// (bytes val, uint256 bitlen). Field names must match the ABI component
// names up to capitalization for go-ethereum's packer.
type ABIBigNumber struct {
	Val    []byte
	Bitlen *big.Int
}

// ABIForm normalizes the proof for submission: every value is padded to
// its fixed width and paired with its bit length.
func (p Proof) ABIForm() ([]ABIBigNumber, ABIBigNumber, error) {
	if len(p.V) == 0 {
		return nil, ABIBigNumber{}, fmt.Errorf("vdf: proof has no v checkpoints")
	}
	v := make([]ABIBigNumber, 0, len(p.V))
	for i, n := range p.V {
		b, err := n.Bytes()
		if err != nil {
			return nil, ABIBigNumber{}, fmt.Errorf("vdf: v[%d]: %w", i, err)
		}
		v = append(v, ABIBigNumber{Val: b, Bitlen: new(big.Int).SetUint64(uint64(n.BitLen))})
	}
	yb, err := p.Y.Bytes()
	if err != nil {
		return nil, ABIBigNumber{}, fmt.Errorf("vdf: y: %w", err)
	}
	return v, ABIBigNumber{Val: yb, Bitlen: new(big.Int).SetUint64(uint64(p.Y.BitLen))}, nil
}
