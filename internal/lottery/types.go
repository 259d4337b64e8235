package lottery

import (
	"math/big"
	"time"
)

// GameID is the contract-assigned game ordinal. Games are numbered from 1
// and only ever move forward.
type GameID = uint64

type Phase uint8

const (
	PhasePending Phase = iota
	PhaseDrawing
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseDrawing:
		return "drawing"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// CurrentGame is the lightweight summary returned by getCurrentGameInfo.
// It describes whatever game the contract currently sells tickets for,
// which can run ahead of the game the keeper is still finishing.
type CurrentGame struct {
	ID            GameID
	Difficulty    uint8
	PrizePool     *big.Int
	DrawTime      time.Time
	TimeUntilDraw time.Duration
}

// GameState is the full per-game view returned by getDetailedGameInfo.
type GameState struct {
	ID              GameID
	Phase           Phase
	PrizePool       *big.Int
	NumberOfWinners uint64
	GoldWinners     uint64
	SilverWinners   uint64
	BronzeWinners   uint64

	// WinningNumbers holds the three main numbers plus the etherball.
	// All zero until the VDF proof has been verified on-chain.
	WinningNumbers [4]uint64

	Difficulty         uint8
	DrawInitiatedBlock uint64
	RandaoBlock        uint64

	// RandaoValue is the randomness seed. Zero (or nil) until setRandom
	// succeeds; once set it never reverts to zero.
	RandaoValue *big.Int

	Payouts [4]*big.Int
}

// SeedSet reports whether the randomness seed has been committed on-chain.
func (g GameState) SeedSet() bool {
	return g.RandaoValue != nil && g.RandaoValue.Sign() != 0
}

// HasWinningNumbers reports whether the winning numbers have been written,
// which only happens after VDF proof verification.
func (g GameState) HasWinningNumbers() bool {
	for _, n := range g.WinningNumbers {
		if n != 0 {
			return true
		}
	}
	return false
}
