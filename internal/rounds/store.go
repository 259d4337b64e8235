package rounds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store mirrors lottery chain state into a local SQLite database: one row
// per purchased ticket, per-game lifecycle event metadata, and a rounds
// summary table. Writes are upserts keyed on chain-derived identifiers so
// re-scanning a block range is idempotent.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sync_metadata (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	last_block INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tickets (
	event_signature  TEXT PRIMARY KEY,
	transaction_hash TEXT NOT NULL,
	log_index        INTEGER NOT NULL,
	block_number     INTEGER NOT NULL,
	game_number      INTEGER NOT NULL,
	player           TEXT NOT NULL,
	number1          INTEGER NOT NULL,
	number2          INTEGER NOT NULL,
	number3          INTEGER NOT NULL,
	number4          INTEGER NOT NULL,
	is_winner        INTEGER NOT NULL DEFAULT 0,
	is_processed     INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS tickets_game_idx ON tickets (game_number);

CREATE TABLE IF NOT EXISTS game_metadata (
	game_number         INTEGER PRIMARY KEY,
	draw_initiated_tx   TEXT,
	draw_initiated_time TEXT,
	random_set_tx       TEXT,
	random_set_time     TEXT,
	vdf_proof_tx        TEXT,
	vdf_proof_time      TEXT,
	prize_payout_tx     TEXT,
	prize_payout_time   TEXT
);

CREATE TABLE IF NOT EXISTS rounds (
	game_number   INTEGER PRIMARY KEY,
	total_tickets INTEGER NOT NULL DEFAULT 0,
	number1       INTEGER NOT NULL DEFAULT 0,
	number2       INTEGER NOT NULL DEFAULT 0,
	number3       INTEGER NOT NULL DEFAULT 0,
	number4       INTEGER NOT NULL DEFAULT 0,
	completed     INTEGER NOT NULL DEFAULT 0,
	processed_at  TEXT NOT NULL
);
`

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("rounds db path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open rounds db %s: %w", path, err)
	}
	// SQLite allows one writer; the indexer is single-threaded anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply rounds schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// LastProcessedBlock returns the scan checkpoint, zero when none exists.
func (s *Store) LastProcessedBlock(ctx context.Context) (uint64, error) {
	var block uint64
	err := s.db.QueryRowContext(ctx, `SELECT last_block FROM sync_metadata WHERE id = 1`).Scan(&block)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return block, nil
}

func (s *Store) SetLastProcessedBlock(ctx context.Context, block uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_metadata (id, last_block) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET last_block = excluded.last_block`, block)
	return err
}

// Ticket is one TicketPurchased event. EventSignature is txhash_logindex,
// the unique key that makes re-ingestion idempotent.
type Ticket struct {
	EventSignature  string
	TransactionHash string
	LogIndex        uint
	BlockNumber     uint64
	GameNumber      uint64
	Player          string
	Numbers         [4]uint64
}

func (s *Store) UpsertTickets(ctx context.Context, tickets []Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, t := range tickets {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tickets (event_signature, transaction_hash, log_index, block_number,
			                      game_number, player, number1, number2, number3, number4, created_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?)
			 ON CONFLICT (event_signature) DO NOTHING`,
			t.EventSignature, t.TransactionHash, t.LogIndex, t.BlockNumber,
			t.GameNumber, t.Player, t.Numbers[0], t.Numbers[1], t.Numbers[2], t.Numbers[3], now)
		if err != nil {
			return fmt.Errorf("upsert ticket %s: %w", t.EventSignature, err)
		}
	}
	return tx.Commit()
}

func (s *Store) TicketCount(ctx context.Context, game uint64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE game_number = ?`, game).Scan(&n)
	return n, err
}

// MarkWinners flags tickets of a game whose first two numbers match the
// winning numbers, and marks every ticket of the game processed. It
// returns how many winners were flagged.
func (s *Store) MarkWinners(ctx context.Context, game uint64, winning [4]uint64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE tickets SET is_winner = 1 WHERE game_number = ? AND number1 = ? AND number2 = ?`,
		game, winning[0], winning[1])
	if err != nil {
		return 0, err
	}
	winners, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx,
		`UPDATE tickets SET is_processed = 1 WHERE game_number = ?`, game); err != nil {
		return 0, err
	}
	return winners, tx.Commit()
}

// metaColumns maps a lifecycle event name to the game_metadata columns it
// fills in.
var metaColumns = map[string][2]string{
	"DrawInitiated":       {"draw_initiated_tx", "draw_initiated_time"},
	"RandomSet":           {"random_set_tx", "random_set_time"},
	"VDFProofSubmitted":   {"vdf_proof_tx", "vdf_proof_time"},
	"GamePrizePayoutInfo": {"prize_payout_tx", "prize_payout_time"},
}

func (s *Store) SetGameEvent(ctx context.Context, game uint64, event, txHash string, at time.Time) error {
	cols, ok := metaColumns[event]
	if !ok {
		return fmt.Errorf("unknown game event %q", event)
	}
	q := fmt.Sprintf(
		`INSERT INTO game_metadata (game_number, %[1]s, %[2]s) VALUES (?, ?, ?)
		 ON CONFLICT (game_number) DO UPDATE SET %[1]s = excluded.%[1]s, %[2]s = excluded.%[2]s`,
		cols[0], cols[1])
	_, err := s.db.ExecContext(ctx, q, game, txHash, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set game %d event %s: %w", game, event, err)
	}
	return nil
}

type Round struct {
	GameNumber     uint64
	TotalTickets   int64
	WinningNumbers [4]uint64
	Completed      bool
}

func (s *Store) UpsertRound(ctx context.Context, r Round) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rounds (game_number, total_tickets, number1, number2, number3, number4, completed, processed_at)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT (game_number) DO UPDATE SET
		   total_tickets = excluded.total_tickets,
		   number1 = excluded.number1, number2 = excluded.number2,
		   number3 = excluded.number3, number4 = excluded.number4,
		   completed = excluded.completed,
		   processed_at = excluded.processed_at`,
		r.GameNumber, r.TotalTickets,
		r.WinningNumbers[0], r.WinningNumbers[1], r.WinningNumbers[2], r.WinningNumbers[3],
		boolToInt(r.Completed), time.Now().UTC().Format(time.RFC3339))
	return err
}

// NextUnprocessedGame returns the lowest round whose winning numbers are
// still unset, or 1 when no rounds exist yet.
func (s *Store) NextUnprocessedGame(ctx context.Context) (uint64, error) {
	var game uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT game_number FROM rounds
		 WHERE number1 = 0 AND number2 = 0 AND number3 = 0 AND number4 = 0
		 ORDER BY game_number ASC LIMIT 1`).Scan(&game)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return game, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
