package keeper

import (
	"github.com/eatthepie/bots/internal/lottery"
)

// Action is the next step the keeper should take for a game.
type Action int

const (
	ActionIdle Action = iota
	ActionAwaitDeadline
	ActionInitiateDraw
	ActionSetRandomness
	ActionSubmitProof
	ActionCalculatePayouts
	ActionNotifyAndAdvance
)

func (a Action) String() string {
	switch a {
	case ActionAwaitDeadline:
		return "await_deadline"
	case ActionInitiateDraw:
		return "initiate_draw"
	case ActionSetRandomness:
		return "set_randomness"
	case ActionSubmitProof:
		return "submit_vdf_proof"
	case ActionCalculatePayouts:
		return "calculate_payouts"
	case ActionNotifyAndAdvance:
		return "notify_and_advance"
	default:
		return "idle"
	}
}

// Decide maps observed game state to the next action. It is a pure
// function: no reads, no writes, no clock.
//
// The deadline countdown lives on the current-game summary, so it only
// applies when the examined game still is the current one; any older
// pending game is past its deadline by definition.
//
// For VDF deployments the order set randomness -> submit proof ->
// calculate payouts is strict: winning numbers only appear once the proof
// has been verified on-chain, and payouts cannot be computed before that.
func Decide(game lottery.GameState, current lottery.CurrentGame, vdfRequired bool) Action {
	switch game.Phase {
	case lottery.PhasePending:
		if game.ID == current.ID && current.TimeUntilDraw > 0 {
			return ActionAwaitDeadline
		}
		return ActionInitiateDraw
	case lottery.PhaseDrawing:
		if !game.SeedSet() {
			return ActionSetRandomness
		}
		if vdfRequired && !game.HasWinningNumbers() {
			return ActionSubmitProof
		}
		return ActionCalculatePayouts
	case lottery.PhaseCompleted:
		return ActionNotifyAndAdvance
	default:
		return ActionIdle
	}
}
