package vdf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// File names shared with the prover-side monitor (cmd/vdfmonitor). The
// keeper drops a request file, the monitor picks it up, runs the prover and
// signals completion; the proof itself lands in proof.json.
const (
	RequestFile    = "vdf-needed.json"
	ProcessingFile = "vdf-processing.json"
	CompleteFile   = "vdf-complete.json"
	ProofFile      = "proof.json"
)

const defaultPollInterval = 15 * time.Second

type request struct {
	RandaoValue string `json:"randaoValue"`
}

type completion struct {
	Status string `json:"status"`
}

type jsonBigNumber struct {
	Value     string `json:"value"`
	BitLength uint   `json:"bitLength"`
}

type jsonProof struct {
	V []jsonBigNumber `json:"v"`
	Y jsonBigNumber   `json:"y"`
}

// FileProver requests proofs from an external prover process through a
// shared work directory. Prove blocks until the prover signals completion
// or ctx is cancelled; the computation commonly takes minutes, so callers
// should pass a generous deadline.
type FileProver struct {
	Dir string

	// PollInterval controls how often the completion marker is checked.
	// Zero means a 15s default.
	PollInterval time.Duration
}

func (p *FileProver) Prove(ctx context.Context, seed *big.Int) (Proof, error) {
	if seed == nil || seed.Sign() == 0 {
		return Proof{}, fmt.Errorf("vdf: seed not set")
	}
	dir := p.Dir
	if dir == "" {
		dir = "."
	}

	// Stale markers from a crashed run would make us read an old proof.
	for _, name := range []string{CompleteFile, ProofFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Proof{}, fmt.Errorf("vdf: clear stale %s: %w", name, err)
		}
	}

	req, err := json.Marshal(request{RandaoValue: seed.String()})
	if err != nil {
		return Proof{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, RequestFile), req, 0o644); err != nil {
		return Proof{}, fmt.Errorf("vdf: write request: %w", err)
	}

	interval := p.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return Proof{}, ctx.Err()
		case <-t.C:
		}

		b, err := os.ReadFile(filepath.Join(dir, CompleteFile))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Proof{}, fmt.Errorf("vdf: read completion: %w", err)
		}
		var done completion
		if err := json.Unmarshal(b, &done); err != nil {
			return Proof{}, fmt.Errorf("vdf: parse completion: %w", err)
		}
		if done.Status != "complete" {
			return Proof{}, fmt.Errorf("vdf: prover reported status %q", done.Status)
		}
		break
	}

	proof, err := readProofFile(filepath.Join(dir, ProofFile))
	if err != nil {
		return Proof{}, err
	}

	// Best-effort cleanup so the next request starts clean.
	_ = os.Remove(filepath.Join(dir, CompleteFile))
	_ = os.Remove(filepath.Join(dir, RequestFile))

	return proof, nil
}

func readProofFile(path string) (Proof, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Proof{}, fmt.Errorf("vdf: read proof: %w", err)
	}
	var jp jsonProof
	if err := json.Unmarshal(b, &jp); err != nil {
		return Proof{}, fmt.Errorf("vdf: parse proof: %w", err)
	}
	if len(jp.V) == 0 {
		return Proof{}, fmt.Errorf("vdf: proof has no v checkpoints")
	}

	out := Proof{V: make([]BigNumber, 0, len(jp.V))}
	for i, n := range jp.V {
		bn, err := parseBigNumber(n)
		if err != nil {
			return Proof{}, fmt.Errorf("vdf: v[%d]: %w", i, err)
		}
		out.V = append(out.V, bn)
	}
	y, err := parseBigNumber(jp.Y)
	if err != nil {
		return Proof{}, fmt.Errorf("vdf: y: %w", err)
	}
	out.Y = y
	return out, nil
}

func parseBigNumber(n jsonBigNumber) (BigNumber, error) {
	v, ok := new(big.Int).SetString(n.Value, 10)
	if !ok {
		return BigNumber{}, fmt.Errorf("invalid decimal value %q", n.Value)
	}
	if n.BitLength == 0 {
		return BigNumber{}, fmt.Errorf("zero bit length")
	}
	return BigNumber{Val: v, BitLen: n.BitLength}, nil
}
