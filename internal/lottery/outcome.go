package lottery

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Outcome is the classified result of a write attempt. Classification
// happens once, at the executor boundary, so callers switch on a tagged
// value instead of re-matching revert strings at every call site.
type Outcome int

const (
	// OutcomeAccepted: the transaction was broadcast and mined successfully.
	OutcomeAccepted Outcome = iota
	// OutcomeInsufficientValue: the attached value was too low (retryable
	// with a higher amount).
	OutcomeInsufficientValue
	// OutcomeTimingNotMet: a deadline or buffer period has not been reached
	// yet. Not an error; wait and retry later.
	OutcomeTimingNotMet
	// OutcomeAlreadyDone: the action was already performed, possibly by
	// another actor or a previous crashed run. Success-equivalent.
	OutcomeAlreadyDone
	// OutcomeNotYetAvailable: a required input (randao value, proof input)
	// is not available yet. Not an error; wait and retry later.
	OutcomeNotYetAvailable
	// OutcomeUnclassified: a rejection that matched no known pattern. The
	// raw reason is preserved so new revert strings can be identified and
	// added to the classifier.
	OutcomeUnclassified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeInsufficientValue:
		return "insufficient_value"
	case OutcomeTimingNotMet:
		return "timing_not_met"
	case OutcomeAlreadyDone:
		return "already_done"
	case OutcomeNotYetAvailable:
		return "not_yet_available"
	default:
		return "unclassified"
	}
}

// Result is what an executor write returns when the ledger answered at all.
// Transport failures and confirmation timeouts are reported as errors
// instead and resolved by re-reading state on the next cycle.
type Result struct {
	Outcome Outcome
	TxHash  common.Hash
	// Raw is the untranslated rejection text for non-accepted outcomes.
	Raw string
}

var insufficientValuePatterns = []string{
	"value not enough",
	"insufficient",
	"underpriced",
}

var timingNotMetPatterns = []string{
	"time interval not passed",
	"buffer period",
	"draw time not reached",
	"too early",
}

var notYetAvailablePatterns = []string{
	"not available",
	"not ready",
	"not yet",
}

// Classify maps a raw revert reason to an Outcome. Matching is
// case-insensitive substring matching; the pattern set is inherently
// incomplete, so anything unrecognized is OutcomeUnclassified and carries
// the raw text upward.
func Classify(raw string) Outcome {
	reason := strings.ToLower(raw)
	for _, p := range insufficientValuePatterns {
		if strings.Contains(reason, p) {
			return OutcomeInsufficientValue
		}
	}
	for _, p := range timingNotMetPatterns {
		if strings.Contains(reason, p) {
			return OutcomeTimingNotMet
		}
	}
	if strings.Contains(reason, "already") {
		return OutcomeAlreadyDone
	}
	for _, p := range notYetAvailablePatterns {
		if strings.Contains(reason, p) {
			return OutcomeNotYetAvailable
		}
	}
	return OutcomeUnclassified
}
