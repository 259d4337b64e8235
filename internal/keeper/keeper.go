package keeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/eatthepie/bots/internal/jsonl"
	"github.com/eatthepie/bots/internal/lottery"
	"github.com/eatthepie/bots/internal/vdf"
)

// StateReader is the read-only view of the lottery contract.
type StateReader interface {
	CurrentGame(ctx context.Context) (lottery.CurrentGame, error)
	GameState(ctx context.Context, id lottery.GameID) (lottery.GameState, error)
}

// TxSubmitter performs the draw-lifecycle writes. Implementations simulate
// before broadcasting and classify rejections into Result.Outcome; a
// non-nil error means no answer was obtained (re-read next cycle).
type TxSubmitter interface {
	InitiateDraw(ctx context.Context, value *big.Int) (lottery.Result, error)
	SetRandom(ctx context.Context, id lottery.GameID) (lottery.Result, error)
	SubmitVDFProof(ctx context.Context, id lottery.GameID, proof vdf.Proof) (lottery.Result, error)
	CalculatePayouts(ctx context.Context, id lottery.GameID) (lottery.Result, error)
}

// Prover computes a VDF proof from the randomness seed. This is a slow
// external computation; implementations must honor ctx.
type Prover interface {
	Prove(ctx context.Context, seed *big.Int) (vdf.Proof, error)
}

// Notifier announces a completed round to the outside world.
type Notifier interface {
	DrawCompleted(ctx context.Context, round uint64) error
}

type Config struct {
	// VDFRequired selects the proof-based deployment variant: the draw
	// needs submitVDFProof between setRandom and calculatePayouts.
	VDFRequired bool

	// DryRun observes and decides but never submits or notifies.
	DryRun bool

	// FundingCandidates are the ascending value amounts (wei) tried for
	// initiateDraw.
	FundingCandidates []*big.Int

	Delays Delays

	// SettleDelay is the pause between first observing a completed round
	// and notifying, so downstream readers catch up with chain state.
	SettleDelay time.Duration

	// SingleShotDelay is the fixed inter-cycle delay in single-shot mode.
	// Single-shot runs deliberately do not use the adaptive table: the
	// operator asked for one game and wants it finished promptly.
	SingleShotDelay time.Duration

	// ProveTimeout bounds one VDF proof computation.
	ProveTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Delays == (Delays{}) {
		c.Delays = DefaultDelays()
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 30 * time.Second
	}
	if c.SingleShotDelay <= 0 {
		c.SingleShotDelay = 15 * time.Second
	}
	if c.ProveTimeout <= 0 {
		c.ProveTimeout = 2 * time.Hour
	}
	return c
}

// Keeper drives games through Pending -> Drawing -> Completed. One
// instance, one goroutine: there is never more than one action in flight,
// and running two keepers against the same contract/account pair races on
// transaction ordering. Nothing here is durable; every decision is
// re-derived from freshly read chain state, so a restart mid-draw resumes
// where the chain says it left off.
type Keeper struct {
	reader    StateReader
	submitter TxSubmitter
	prover    Prover
	notifier  Notifier
	cfg       Config

	events    *jsonl.Writer
	startedAt time.Time

	// activeDraw pins dispatch to the game we are mid-draw on. The
	// contract's current pointer advances to the next game as soon as a
	// draw initiates, not when it completes, so without this override the
	// keeper would silently abandon the draw in progress.
	activeDraw lottery.GameID

	// notified guards the at-most-once-per-process notification per round.
	// Volatile by design: a restart may re-notify a round (at-least-once
	// across restarts).
	notified map[lottery.GameID]bool
}

func New(reader StateReader, submitter TxSubmitter, prover Prover, notifier Notifier, cfg Config, events *jsonl.Writer) (*Keeper, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader required")
	}
	if submitter == nil && !cfg.DryRun {
		return nil, fmt.Errorf("submitter required outside dry-run")
	}
	if len(cfg.FundingCandidates) == 0 && !cfg.DryRun {
		return nil, fmt.Errorf("at least one funding candidate required")
	}
	if cfg.VDFRequired && prover == nil && !cfg.DryRun {
		return nil, fmt.Errorf("prover required when vdf proofs are enabled")
	}
	return &Keeper{
		reader:    reader,
		submitter: submitter,
		prover:    prover,
		notifier:  notifier,
		cfg:       cfg.withDefaults(),
		events:    events,
		startedAt: time.Now(),
		notified:  make(map[lottery.GameID]bool),
	}, nil
}

// Run polls until ctx is cancelled. Fatal cycle outcomes are logged and
// absorbed with a full backoff; continuous mode never crashes on a
// rejection it does not recognize.
func (k *Keeper) Run(ctx context.Context) error {
	log.Printf("[info] keeper running (vdf=%v candidates=%d)", k.cfg.VDFRequired, len(k.cfg.FundingCandidates))
	for {
		delay, _, err := k.cycle(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[warn] cycle failed, backing off %s: %v", k.cfg.Delays.Longest, err)
			delay = k.cfg.Delays.Longest
		}
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

// RunGame drives exactly one game to completion, then returns nil. A
// fatal outcome is returned to the caller (non-zero exit in main).
func (k *Keeper) RunGame(ctx context.Context, id lottery.GameID) error {
	log.Printf("[info] keeper single-shot game=%d", id)
	for {
		_, done, err := k.cycle(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("game %d: %w", id, err)
		}
		if done {
			log.Printf("[info] game=%d completed", id)
			return nil
		}
		if !sleepCtx(ctx, k.cfg.SingleShotDelay) {
			return ctx.Err()
		}
	}
}

// cycle runs one observe-decide-act pass. pinned != 0 forces the target
// game (single-shot); otherwise the active-draw override, then the current
// pointer, selects it. The returned delay is advisory (continuous mode
// uses it, single-shot uses its fixed delay); done reports whether the
// target round is completed and its notification has been dispatched.
func (k *Keeper) cycle(ctx context.Context, pinned lottery.GameID) (time.Duration, bool, error) {
	current, err := k.reader.CurrentGame(ctx)
	if err != nil {
		log.Printf("[warn] read current game: %v", err)
		return k.cfg.Delays.Longest, false, nil
	}

	target := current.ID
	if k.activeDraw != 0 {
		target = k.activeDraw
	}
	if pinned != 0 {
		target = pinned
	}

	game, err := k.reader.GameState(ctx, target)
	if err != nil {
		log.Printf("[warn] read game %d: %v", target, err)
		return k.cfg.Delays.Longest, false, nil
	}

	action := Decide(game, current, k.cfg.VDFRequired)
	delay, err := k.act(ctx, action, game, current)
	if err != nil {
		k.logEvent(keeperLogEvent{
			TsMs: time.Now().UnixMilli(), Event: "fatal", Game: game.ID,
			Phase: game.Phase.String(), Action: action.String(),
			Err: err.Error(), UptimeMs: time.Since(k.startedAt).Milliseconds(),
		})
		return 0, false, err
	}

	done := game.Phase == lottery.PhaseCompleted && k.notified[game.ID]
	return delay, done, nil
}

func (k *Keeper) act(ctx context.Context, action Action, game lottery.GameState, current lottery.CurrentGame) (time.Duration, error) {
	timeUntil := time.Duration(0)
	if game.ID == current.ID {
		timeUntil = current.TimeUntilDraw
	}

	switch action {
	case ActionAwaitDeadline, ActionIdle:
		log.Printf("[info] game=%d phase=%s draw in %s", game.ID, game.Phase, timeUntil)
		return k.cfg.Delays.Next(game.Phase, timeUntil, game.SeedSet()), nil
	}

	if k.cfg.DryRun {
		log.Printf("[dry] game=%d phase=%s would %s", game.ID, game.Phase, action)
		return k.cfg.Delays.Next(game.Phase, timeUntil, game.SeedSet()), nil
	}

	switch action {

	case ActionInitiateDraw:
		res, err := initiateWithFunding(ctx, k.submitter, k.cfg.FundingCandidates)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			if errors.Is(err, ErrFundingExhausted) {
				return 0, err
			}
			log.Printf("[warn] game=%d initiateDraw: %v", game.ID, err)
			return k.cfg.Delays.Longest, nil
		}
		return k.afterWrite(action, game, res, func() {
			// The current pointer moves to the next game the moment the
			// draw initiates; remember which game we are actually drawing.
			k.activeDraw = game.ID
		})

	case ActionSetRandomness:
		res, err := k.submitter.SetRandom(ctx, game.ID)
		if err != nil {
			log.Printf("[warn] game=%d setRandom: %v", game.ID, err)
			return k.cfg.Delays.Longest, nil
		}
		return k.afterWrite(action, game, res, nil)

	case ActionSubmitProof:
		proveCtx, cancel := context.WithTimeout(ctx, k.cfg.ProveTimeout)
		proof, err := k.prover.Prove(proveCtx, game.RandaoValue)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fmt.Errorf("vdf prove game=%d: %w", game.ID, err)
		}
		res, err := k.submitter.SubmitVDFProof(ctx, game.ID, proof)
		if err != nil {
			log.Printf("[warn] game=%d submitVDFProof: %v", game.ID, err)
			return k.cfg.Delays.Longest, nil
		}
		return k.afterWrite(action, game, res, nil)

	case ActionCalculatePayouts:
		res, err := k.submitter.CalculatePayouts(ctx, game.ID)
		if err != nil {
			log.Printf("[warn] game=%d calculatePayouts: %v", game.ID, err)
			return k.cfg.Delays.Longest, nil
		}
		return k.afterWrite(action, game, res, nil)

	case ActionNotifyAndAdvance:
		k.notifyOnce(ctx, game.ID)
		if k.activeDraw == game.ID {
			k.activeDraw = 0
		}
		return k.cfg.Delays.Shortest, nil

	default:
		return k.cfg.Delays.Shortest, nil
	}
}

// afterWrite folds a classified write result into the next delay.
// Accepted and already-done advance the state machine; timing and
// availability gates wait; anything unclassified is fatal for this cycle.
func (k *Keeper) afterWrite(action Action, game lottery.GameState, res lottery.Result, onSuccess func()) (time.Duration, error) {
	ev := keeperLogEvent{
		TsMs: time.Now().UnixMilli(), Event: "action", Game: game.ID,
		Phase: game.Phase.String(), Action: action.String(),
		Outcome: res.Outcome.String(), Raw: res.Raw,
		UptimeMs: time.Since(k.startedAt).Milliseconds(),
	}

	switch res.Outcome {
	case lottery.OutcomeAccepted:
		ev.TxHash = res.TxHash.Hex()
		k.logEvent(ev)
		log.Printf("[info] game=%d phase=%s %s tx=%s", game.ID, game.Phase, action, res.TxHash.Hex())
		if onSuccess != nil {
			onSuccess()
		}
		return k.cfg.Delays.Shortest, nil

	case lottery.OutcomeAlreadyDone:
		k.logEvent(ev)
		log.Printf("[info] game=%d phase=%s %s already done (%q)", game.ID, game.Phase, action, res.Raw)
		if onSuccess != nil {
			onSuccess()
		}
		return k.cfg.Delays.Shortest, nil

	case lottery.OutcomeTimingNotMet, lottery.OutcomeNotYetAvailable:
		k.logEvent(ev)
		log.Printf("[info] game=%d phase=%s %s waiting (%q)", game.ID, game.Phase, action, res.Raw)
		return k.cfg.Delays.Next(game.Phase, 0, game.SeedSet()), nil

	default:
		// Raw text goes up untranslated: the classifier's pattern set is
		// incomplete and new revert strings show up here first.
		return 0, fmt.Errorf("%s game=%d rejected: %s", action, game.ID, res.Raw)
	}
}

// notifyOnce dispatches the completion notification for a round at most
// once per process. The round is marked notified whether or not delivery
// succeeds; failures are logged and never retried here.
func (k *Keeper) notifyOnce(ctx context.Context, id lottery.GameID) {
	if k.notified[id] {
		return
	}
	k.notified[id] = true

	if k.notifier == nil {
		return
	}
	if !sleepCtx(ctx, k.cfg.SettleDelay) {
		return
	}

	err := k.notifier.DrawCompleted(ctx, id)
	ev := keeperLogEvent{
		TsMs: time.Now().UnixMilli(), Event: "notify", Game: id,
		Ok: err == nil, UptimeMs: time.Since(k.startedAt).Milliseconds(),
	}
	if err != nil {
		ev.Err = err.Error()
		log.Printf("[warn] notify game=%d failed: %v", id, err)
	} else {
		log.Printf("[info] notified game=%d completed", id)
	}
	k.logEvent(ev)
}

// sleepCtx sleeps for d or until ctx is cancelled; it reports whether the
// full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
