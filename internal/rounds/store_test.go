package rounds

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "rounds.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Checkpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.LastProcessedBlock(ctx)
	if err != nil {
		t.Fatalf("LastProcessedBlock: %v", err)
	}
	if got != 0 {
		t.Fatalf("fresh checkpoint: got %d want 0", got)
	}

	if err := s.SetLastProcessedBlock(ctx, 1000); err != nil {
		t.Fatalf("SetLastProcessedBlock: %v", err)
	}
	if err := s.SetLastProcessedBlock(ctx, 2000); err != nil {
		t.Fatalf("SetLastProcessedBlock again: %v", err)
	}
	if got, _ = s.LastProcessedBlock(ctx); got != 2000 {
		t.Fatalf("checkpoint: got %d want 2000", got)
	}
}

func TestStore_UpsertTicketsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tickets := []Ticket{
		{EventSignature: "0xaa_0", TransactionHash: "0xaa", GameNumber: 5, Player: "0x01", Numbers: [4]uint64{1, 2, 3, 4}},
		{EventSignature: "0xaa_1", TransactionHash: "0xaa", LogIndex: 1, GameNumber: 5, Player: "0x02", Numbers: [4]uint64{1, 2, 9, 9}},
	}
	if err := s.UpsertTickets(ctx, tickets); err != nil {
		t.Fatalf("UpsertTickets: %v", err)
	}
	// Re-scanning the same range must not duplicate rows.
	if err := s.UpsertTickets(ctx, tickets); err != nil {
		t.Fatalf("UpsertTickets repeat: %v", err)
	}

	n, err := s.TicketCount(ctx, 5)
	if err != nil {
		t.Fatalf("TicketCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("ticket count: got %d want 2", n)
	}
}

func TestStore_MarkWinners(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertTickets(ctx, []Ticket{
		{EventSignature: "a_0", GameNumber: 7, Player: "0x01", Numbers: [4]uint64{3, 11, 19, 2}},
		{EventSignature: "a_1", GameNumber: 7, Player: "0x02", Numbers: [4]uint64{3, 11, 40, 1}},
		{EventSignature: "a_2", GameNumber: 7, Player: "0x03", Numbers: [4]uint64{8, 9, 10, 2}},
		{EventSignature: "b_0", GameNumber: 8, Player: "0x04", Numbers: [4]uint64{3, 11, 19, 2}},
	}); err != nil {
		t.Fatalf("UpsertTickets: %v", err)
	}

	winners, err := s.MarkWinners(ctx, 7, [4]uint64{3, 11, 19, 2})
	if err != nil {
		t.Fatalf("MarkWinners: %v", err)
	}
	// Both tickets whose first two numbers match count, the other game's
	// identical ticket does not.
	if winners != 2 {
		t.Fatalf("winners: got %d want 2", winners)
	}
}

func TestStore_GameEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := s.SetGameEvent(ctx, 3, "DrawInitiated", "0xabc", at); err != nil {
		t.Fatalf("SetGameEvent: %v", err)
	}
	if err := s.SetGameEvent(ctx, 3, "RandomSet", "0xdef", at.Add(time.Hour)); err != nil {
		t.Fatalf("SetGameEvent second column: %v", err)
	}
	if err := s.SetGameEvent(ctx, 3, "NoSuchEvent", "0x0", at); err == nil {
		t.Fatal("unknown event accepted")
	}
}

func TestStore_RoundsProgress(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	game, err := s.NextUnprocessedGame(ctx)
	if err != nil {
		t.Fatalf("NextUnprocessedGame: %v", err)
	}
	if game != 1 {
		t.Fatalf("empty store next game: got %d want 1", game)
	}

	if err := s.UpsertRound(ctx, Round{GameNumber: 1, TotalTickets: 10}); err != nil {
		t.Fatalf("UpsertRound: %v", err)
	}
	if game, _ = s.NextUnprocessedGame(ctx); game != 1 {
		t.Fatalf("numbers unset, next game: got %d want 1", game)
	}

	if err := s.UpsertRound(ctx, Round{
		GameNumber:     1,
		TotalTickets:   10,
		WinningNumbers: [4]uint64{4, 5, 6, 1},
		Completed:      true,
	}); err != nil {
		t.Fatalf("UpsertRound update: %v", err)
	}
	if err := s.UpsertRound(ctx, Round{GameNumber: 2, TotalTickets: 3}); err != nil {
		t.Fatalf("UpsertRound next: %v", err)
	}
	if game, _ = s.NextUnprocessedGame(ctx); game != 2 {
		t.Fatalf("after completion, next game: got %d want 2", game)
	}
}
