package indexer

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/eatthepie/bots/internal/lottery"
	"github.com/eatthepie/bots/internal/rounds"
)

const defaultBatchSize = 2000

// Indexer mirrors lottery contract events into the rounds store. Scans
// are resumable: the store keeps the last processed block and every write
// is idempotent, so a crashed or repeated scan converges to the same rows.
type Indexer struct {
	eth      *ethclient.Client
	contract common.Address
	store    *rounds.Store
	reader   *lottery.Client

	// BatchSize caps the block span of one eth_getLogs call.
	BatchSize uint64

	// blockTimes caches header timestamps within one scan; lifecycle
	// events in the same block share one header fetch.
	blockTimes map[uint64]time.Time
}

func New(eth *ethclient.Client, contract common.Address, store *rounds.Store, reader *lottery.Client) *Indexer {
	return &Indexer{
		eth:        eth,
		contract:   contract,
		store:      store,
		reader:     reader,
		BatchSize:  defaultBatchSize,
		blockTimes: make(map[uint64]time.Time),
	}
}

// ScanOnce processes all blocks from the checkpoint to the current head.
// A failing batch is logged and skipped; the checkpoint still advances so
// one poisoned range cannot wedge the indexer forever.
func (ix *Indexer) ScanOnce(ctx context.Context) error {
	head, err := ix.eth.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}
	last, err := ix.store.LastProcessedBlock(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if last >= head {
		return nil
	}

	log.Printf("[sync] scanning blocks %d-%d", last+1, head)
	batch := ix.BatchSize
	if batch == 0 {
		batch = defaultBatchSize
	}

	for from := last + 1; from <= head; from += batch {
		to := from + batch - 1
		if to > head {
			to = head
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := ix.scanRange(ctx, from, to); err != nil {
			log.Printf("[warn] batch %d-%d failed: %v", from, to, err)
		}
		if err := ix.store.SetLastProcessedBlock(ctx, to); err != nil {
			return fmt.Errorf("save checkpoint %d: %w", to, err)
		}
	}
	return nil
}

func (ix *Indexer) scanRange(ctx context.Context, from, to uint64) error {
	logs, err := ix.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{ix.contract},
		Topics:    [][]common.Hash{AllTopics()},
	})
	if err != nil {
		return fmt.Errorf("get logs: %w", err)
	}

	var tickets []rounds.Ticket
	for _, vLog := range logs {
		if vLog.Removed || len(vLog.Topics) == 0 {
			continue
		}
		switch vLog.Topics[0] {
		case TopicTicketPurchased:
			ev, err := DecodeTicketPurchased(vLog)
			if err != nil {
				log.Printf("[warn] skip ticket log tx=%s: %v", vLog.TxHash.Hex(), err)
				continue
			}
			tickets = append(tickets, rounds.Ticket{
				EventSignature:  ev.EventSignature(),
				TransactionHash: ev.TxHash.Hex(),
				LogIndex:        ev.LogIndex,
				BlockNumber:     ev.BlockNumber,
				GameNumber:      ev.GameNumber,
				Player:          ev.Player.Hex(),
				Numbers:         ev.Numbers,
			})
		default:
			if err := ix.recordLifecycleEvent(ctx, vLog); err != nil {
				log.Printf("[warn] skip %s log tx=%s: %v", EventName(vLog.Topics[0]), vLog.TxHash.Hex(), err)
			}
		}
	}

	if len(tickets) > 0 {
		if err := ix.store.UpsertTickets(ctx, tickets); err != nil {
			return err
		}
		log.Printf("[sync] stored %d tickets from blocks %d-%d", len(tickets), from, to)
	}
	return nil
}

func (ix *Indexer) recordLifecycleEvent(ctx context.Context, vLog types.Log) error {
	name := EventName(vLog.Topics[0])
	game, err := GameNumberOf(vLog)
	if err != nil {
		return err
	}
	at, err := ix.blockTime(ctx, vLog.BlockNumber)
	if err != nil {
		return err
	}
	if err := ix.store.SetGameEvent(ctx, game, name, vLog.TxHash.Hex(), at); err != nil {
		return err
	}
	log.Printf("[sync] game=%d %s tx=%s", game, name, vLog.TxHash.Hex())
	return nil
}

func (ix *Indexer) blockTime(ctx context.Context, number uint64) (time.Time, error) {
	if at, ok := ix.blockTimes[number]; ok {
		return at, nil
	}
	header, err := ix.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, fmt.Errorf("header %d: %w", number, err)
	}
	at := time.Unix(int64(header.Time), 0).UTC()
	ix.blockTimes[number] = at
	return at, nil
}

// UpdateRounds refreshes the rounds table for the oldest game whose
// winning numbers are still unknown, flagging winning tickets once the
// numbers land on-chain.
func (ix *Indexer) UpdateRounds(ctx context.Context) error {
	if ix.reader == nil {
		return nil
	}
	game, err := ix.store.NextUnprocessedGame(ctx)
	if err != nil {
		return fmt.Errorf("next unprocessed game: %w", err)
	}

	state, err := ix.reader.GameState(ctx, game)
	if err != nil {
		return err
	}
	total, err := ix.store.TicketCount(ctx, game)
	if err != nil {
		return err
	}

	if state.HasWinningNumbers() {
		winners, err := ix.store.MarkWinners(ctx, game, state.WinningNumbers)
		if err != nil {
			return fmt.Errorf("mark winners game=%d: %w", game, err)
		}
		if winners > 0 {
			log.Printf("[sync] game=%d flagged %d winning tickets", game, winners)
		}
	}

	return ix.store.UpsertRound(ctx, rounds.Round{
		GameNumber:     game,
		TotalTickets:   total,
		WinningNumbers: state.WinningNumbers,
		Completed:      state.Phase == lottery.PhaseCompleted,
	})
}
