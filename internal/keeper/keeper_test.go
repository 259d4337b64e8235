package keeper

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eatthepie/bots/internal/lottery"
	"github.com/eatthepie/bots/internal/vdf"
)

type fakeReader struct {
	current    lottery.CurrentGame
	currentErr error
	states     map[lottery.GameID]lottery.GameState
	asked      []lottery.GameID
}

func (f *fakeReader) CurrentGame(ctx context.Context) (lottery.CurrentGame, error) {
	return f.current, f.currentErr
}

func (f *fakeReader) GameState(ctx context.Context, id lottery.GameID) (lottery.GameState, error) {
	f.asked = append(f.asked, id)
	st, ok := f.states[id]
	if !ok {
		return lottery.GameState{}, fmt.Errorf("no state for game %d", id)
	}
	return st, nil
}

type fakeSubmitter struct {
	initiate  lottery.Result
	initiateN int

	setRandom  lottery.Result
	setRandomN int

	proof  lottery.Result
	proofN int

	payouts  lottery.Result
	payoutsN int
}

func (f *fakeSubmitter) InitiateDraw(ctx context.Context, value *big.Int) (lottery.Result, error) {
	f.initiateN++
	return f.initiate, nil
}

func (f *fakeSubmitter) SetRandom(ctx context.Context, id lottery.GameID) (lottery.Result, error) {
	f.setRandomN++
	return f.setRandom, nil
}

func (f *fakeSubmitter) SubmitVDFProof(ctx context.Context, id lottery.GameID, proof vdf.Proof) (lottery.Result, error) {
	f.proofN++
	return f.proof, nil
}

func (f *fakeSubmitter) CalculatePayouts(ctx context.Context, id lottery.GameID) (lottery.Result, error) {
	f.payoutsN++
	return f.payouts, nil
}

type countNotifier struct {
	rounds []uint64
}

func (n *countNotifier) DrawCompleted(ctx context.Context, round uint64) error {
	n.rounds = append(n.rounds, round)
	return nil
}

func testConfig() Config {
	return Config{
		FundingCandidates: []*big.Int{big.NewInt(1)},
		SettleDelay:       time.Millisecond,
	}
}

func newTestKeeper(t *testing.T, reader *fakeReader, sub *fakeSubmitter, notifier Notifier, cfg Config) *Keeper {
	t.Helper()
	k, err := New(reader, sub, nil, notifier, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return k
}

func TestKeeper_ActiveDrawOverridesCurrentPointer(t *testing.T) {
	reader := &fakeReader{
		current: lottery.CurrentGame{ID: 43, TimeUntilDraw: 100 * time.Hour},
		states: map[lottery.GameID]lottery.GameState{
			42: {ID: 42, Phase: lottery.PhaseDrawing, RandaoValue: big.NewInt(5)},
			43: {ID: 43, Phase: lottery.PhasePending},
		},
	}
	sub := &fakeSubmitter{payouts: lottery.Result{Outcome: lottery.OutcomeAccepted}}
	k := newTestKeeper(t, reader, sub, nil, testConfig())
	k.activeDraw = 42

	if _, _, err := k.cycle(context.Background(), 0); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(reader.asked) != 1 || reader.asked[0] != 42 {
		t.Fatalf("asked games: got %v want [42]", reader.asked)
	}
	if sub.payoutsN != 1 {
		t.Fatalf("calculatePayouts calls: got %d want 1", sub.payoutsN)
	}
}

func TestKeeper_InitiateSetsActiveDraw(t *testing.T) {
	reader := &fakeReader{
		current: lottery.CurrentGame{ID: 42, TimeUntilDraw: 0},
		states: map[lottery.GameID]lottery.GameState{
			42: {ID: 42, Phase: lottery.PhasePending},
		},
	}
	sub := &fakeSubmitter{initiate: lottery.Result{
		Outcome: lottery.OutcomeAccepted,
		TxHash:  common.HexToHash("0x01"),
	}}
	k := newTestKeeper(t, reader, sub, nil, testConfig())

	delay, _, err := k.cycle(context.Background(), 0)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if k.activeDraw != 42 {
		t.Fatalf("activeDraw: got %d want 42", k.activeDraw)
	}
	if delay != k.cfg.Delays.Shortest {
		t.Fatalf("delay: got %s want %s", delay, k.cfg.Delays.Shortest)
	}
}

func TestKeeper_NotifyOncePerProcess(t *testing.T) {
	reader := &fakeReader{
		current: lottery.CurrentGame{ID: 7},
		states: map[lottery.GameID]lottery.GameState{
			7: {ID: 7, Phase: lottery.PhaseCompleted, WinningNumbers: [4]uint64{1, 2, 3, 4}},
		},
	}
	notifier := &countNotifier{}
	k := newTestKeeper(t, reader, &fakeSubmitter{}, notifier, testConfig())
	k.activeDraw = 7

	for i := 0; i < 3; i++ {
		_, done, err := k.cycle(context.Background(), 0)
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if i == 0 && !done {
			t.Fatal("first completed cycle should report done")
		}
	}
	if len(notifier.rounds) != 1 {
		t.Fatalf("notifications: got %d want 1", len(notifier.rounds))
	}
	if notifier.rounds[0] != 7 {
		t.Fatalf("notified round: got %d want 7", notifier.rounds[0])
	}
	if k.activeDraw != 0 {
		t.Fatalf("activeDraw after completion: got %d want 0", k.activeDraw)
	}
}

func TestKeeper_ReadErrorBacksOff(t *testing.T) {
	reader := &fakeReader{currentErr: fmt.Errorf("rpc unreachable")}
	k := newTestKeeper(t, reader, &fakeSubmitter{}, nil, testConfig())

	delay, done, err := k.cycle(context.Background(), 0)
	if err != nil {
		t.Fatalf("read errors must not be fatal: %v", err)
	}
	if done {
		t.Fatal("done on read error")
	}
	if delay != k.cfg.Delays.Longest {
		t.Fatalf("delay: got %s want %s", delay, k.cfg.Delays.Longest)
	}
}

func TestKeeper_UnclassifiedRejectionIsFatal(t *testing.T) {
	reader := &fakeReader{
		current: lottery.CurrentGame{ID: 5},
		states: map[lottery.GameID]lottery.GameState{
			5: {ID: 5, Phase: lottery.PhaseDrawing},
		},
	}
	sub := &fakeSubmitter{setRandom: lottery.Result{
		Outcome: lottery.OutcomeUnclassified,
		Raw:     "execution reverted: something novel",
	}}
	k := newTestKeeper(t, reader, sub, nil, testConfig())

	_, _, err := k.cycle(context.Background(), 0)
	if err == nil {
		t.Fatal("expected fatal error for unclassified rejection")
	}
	if !strings.Contains(err.Error(), "something novel") {
		t.Fatalf("error should carry raw reason, got: %v", err)
	}
}

func TestKeeper_TimingGateWaits(t *testing.T) {
	reader := &fakeReader{
		current: lottery.CurrentGame{ID: 5, TimeUntilDraw: 0},
		states: map[lottery.GameID]lottery.GameState{
			5: {ID: 5, Phase: lottery.PhasePending},
		},
	}
	sub := &fakeSubmitter{initiate: lottery.Result{
		Outcome: lottery.OutcomeTimingNotMet,
		Raw:     "buffer period not passed",
	}}
	k := newTestKeeper(t, reader, sub, nil, testConfig())

	_, _, err := k.cycle(context.Background(), 0)
	if err != nil {
		t.Fatalf("timing gate must not be fatal: %v", err)
	}
	if k.activeDraw != 0 {
		t.Fatalf("activeDraw must not move on a rejected initiate, got %d", k.activeDraw)
	}
}

func TestKeeper_DryRunSubmitsNothing(t *testing.T) {
	reader := &fakeReader{
		current: lottery.CurrentGame{ID: 5, TimeUntilDraw: 0},
		states: map[lottery.GameID]lottery.GameState{
			5: {ID: 5, Phase: lottery.PhasePending},
		},
	}
	k, err := New(reader, nil, nil, nil, Config{DryRun: true}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, _, err := k.cycle(context.Background(), 0); err != nil {
		t.Fatalf("dry-run cycle: %v", err)
	}
}

func TestKeeper_RunGameCompletes(t *testing.T) {
	reader := &fakeReader{
		current: lottery.CurrentGame{ID: 8},
		states: map[lottery.GameID]lottery.GameState{
			7: {ID: 7, Phase: lottery.PhaseCompleted, WinningNumbers: [4]uint64{9, 8, 7, 1}},
		},
	}
	notifier := &countNotifier{}
	k := newTestKeeper(t, reader, &fakeSubmitter{}, notifier, testConfig())

	if err := k.RunGame(context.Background(), 7); err != nil {
		t.Fatalf("RunGame: %v", err)
	}
	if len(notifier.rounds) != 1 || notifier.rounds[0] != 7 {
		t.Fatalf("notifications: got %v want [7]", notifier.rounds)
	}
}

func TestNew_RequiresFundingCandidates(t *testing.T) {
	_, err := New(&fakeReader{}, &fakeSubmitter{}, nil, nil, Config{}, nil)
	if err == nil {
		t.Fatal("expected error without funding candidates")
	}
}

func TestNew_RequiresProverForVDF(t *testing.T) {
	cfg := testConfig()
	cfg.VDFRequired = true

	if _, err := New(&fakeReader{}, &fakeSubmitter{}, nil, nil, cfg, nil); err == nil {
		t.Fatal("expected error for vdf mode without a prover")
	}

	cfg.DryRun = true
	if _, err := New(&fakeReader{}, nil, nil, nil, cfg, nil); err != nil {
		t.Fatalf("dry-run without prover rejected: %v", err)
	}
}
