package keeper

import (
	"time"

	"github.com/eatthepie/bots/internal/lottery"
)

// Delays are the poll delay classes the scheduler picks from. Polling an
// RPC endpoint is cheap but not free, so the cadence stretches out when
// nothing can happen for hours and tightens near the deadline and during
// the short window where the randao value becomes available.
type Delays struct {
	Longest     time.Duration
	Long        time.Duration
	Medium      time.Duration
	ShortMedium time.Duration
	Shortest    time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		Longest:     time.Hour,
		Long:        15 * time.Minute,
		Medium:      5 * time.Minute,
		ShortMedium: 2 * time.Minute,
		Shortest:    time.Minute,
	}
}

// Next picks the delay for the coming cycle. Bucket boundaries use
// strictly-greater lower bounds: exactly 12h to the draw falls into the
// 2-12h bucket, exactly 30m into the under-30m bucket.
//
// Cycles that end in an unclassified error do not go through Next; they
// back off to Longest at the call site regardless of phase.
func (d Delays) Next(phase lottery.Phase, timeUntilDraw time.Duration, seedSet bool) time.Duration {
	switch phase {
	case lottery.PhasePending:
		switch {
		case timeUntilDraw > 12*time.Hour:
			return d.Longest
		case timeUntilDraw > 2*time.Hour:
			return d.Long
		case timeUntilDraw > 30*time.Minute:
			return d.Medium
		default:
			return d.Shortest
		}
	case lottery.PhaseDrawing:
		if !seedSet {
			return d.ShortMedium
		}
		return d.Shortest
	default:
		return d.Shortest
	}
}
