package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/eatthepie/bots/internal/chainfeed"
	"github.com/eatthepie/bots/internal/dotenv"
	"github.com/eatthepie/bots/internal/indexer"
	"github.com/eatthepie/bots/internal/lottery"
	"github.com/eatthepie/bots/internal/rounds"
)

const defaultScanInterval = time.Minute

type config struct {
	rpcURL   string
	wsURL    string
	contract common.Address

	dbPath    string
	fromBlock uint64
	interval  time.Duration
	follow    bool
}

func main() {
	log.SetFlags(0)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && ctx.Err() == nil {
		log.Fatalf("[fatal] %v", err)
	}
}

func run(ctx context.Context, cfg config) error {
	store, err := rounds.Open(cfg.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	// Seed the checkpoint on a fresh database so the first scan does not
	// start from genesis.
	if cfg.fromBlock > 0 {
		last, err := store.LastProcessedBlock(ctx)
		if err != nil {
			return err
		}
		if last == 0 {
			if err := store.SetLastProcessedBlock(ctx, cfg.fromBlock-1); err != nil {
				return err
			}
			log.Printf("[info] starting scan at block %d", cfg.fromBlock)
		}
	}

	eth, err := ethclient.DialContext(ctx, cfg.rpcURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer eth.Close()

	reader, err := lottery.NewClient(eth, cfg.contract)
	if err != nil {
		return err
	}

	ix := indexer.New(eth, cfg.contract, store, reader)

	scan := func() {
		if err := ix.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[warn] scan failed: %v", err)
		}
		if err := ix.UpdateRounds(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[warn] update rounds failed: %v", err)
		}
	}

	scan()
	if cfg.interval <= 0 && !cfg.follow {
		return nil
	}

	var heads <-chan chainfeed.Head
	var feedErrs <-chan error
	if cfg.follow {
		heads, feedErrs = chainfeed.SubscribeHeads(ctx, cfg.wsURL, chainfeed.Options{})
		log.Printf("[info] following new heads via %s", cfg.wsURL)
	}

	interval := cfg.interval
	if interval <= 0 {
		interval = defaultScanInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scan()
		case head, ok := <-heads:
			if !ok {
				heads = nil
				continue
			}
			log.Printf("[sync] head block=%d", head.Number)
			scan()
			// Heads arrive faster than scans finish on busy chains; drop
			// anything queued while we were scanning.
			for drained := false; !drained; {
				select {
				case _, ok := <-heads:
					if !ok {
						heads = nil
						drained = true
					}
				default:
					drained = true
				}
			}
		case err, ok := <-feedErrs:
			if !ok {
				feedErrs = nil
				continue
			}
			log.Printf("[warn] head feed: %v", err)
		}
	}
}

func loadConfig() (config, error) {
	var cfg config

	var rpcFlag, wsFlag, contractFlag, dbFlag, everyFlag string
	var fromBlockFlag uint64
	var followFlag bool

	flag.StringVar(&rpcFlag, "rpc-url", "", "Ethereum RPC endpoint (default from RPC_URL).")
	flag.StringVar(&wsFlag, "ws-url", "", "Websocket RPC endpoint for --follow (default from WS_RPC_URL).")
	flag.StringVar(&contractFlag, "contract", "", "Lottery contract address (default from LOTTERY_CONTRACT).")
	flag.StringVar(&dbFlag, "db", "", "SQLite database path (default from INDEXER_DB or rounds.db).")
	flag.Uint64Var(&fromBlockFlag, "from-block", 0, "First block to scan on a fresh database (default from START_BLOCK).")
	flag.StringVar(&everyFlag, "every", "", "Scan interval (e.g. 1m). Empty with no --follow = scan once.")
	flag.BoolVar(&followFlag, "follow", false, "Subscribe to new heads and scan as blocks arrive.")
	flag.Parse()

	cfg.rpcURL = strings.TrimSpace(firstNonEmpty(rpcFlag, os.Getenv("RPC_URL")))
	if cfg.rpcURL == "" {
		return cfg, fmt.Errorf("rpc url required: set RPC_URL or --rpc-url")
	}

	contractHex := strings.TrimSpace(firstNonEmpty(contractFlag, os.Getenv("LOTTERY_CONTRACT"), os.Getenv("CONTRACT_ADDRESS")))
	if !common.IsHexAddress(contractHex) {
		return cfg, fmt.Errorf("invalid lottery contract address %q", contractHex)
	}
	cfg.contract = common.HexToAddress(contractHex)

	cfg.dbPath = strings.TrimSpace(firstNonEmpty(dbFlag, os.Getenv("INDEXER_DB")))
	if cfg.dbPath == "" {
		cfg.dbPath = "rounds.db"
	}

	cfg.fromBlock = fromBlockFlag
	if cfg.fromBlock == 0 {
		if env := strings.TrimSpace(os.Getenv("START_BLOCK")); env != "" {
			v, err := strconv.ParseUint(env, 10, 64)
			if err != nil {
				return cfg, fmt.Errorf("invalid START_BLOCK %q: %w", env, err)
			}
			cfg.fromBlock = v
		}
	}

	if every := strings.TrimSpace(firstNonEmpty(everyFlag, os.Getenv("INDEXER_EVERY"))); every != "" {
		parsed, err := time.ParseDuration(every)
		if err != nil {
			return cfg, fmt.Errorf("invalid --every duration %q: %w", every, err)
		}
		cfg.interval = parsed
	}

	cfg.follow = followFlag
	if cfg.follow {
		cfg.wsURL = strings.TrimSpace(firstNonEmpty(wsFlag, os.Getenv("WS_RPC_URL")))
		if cfg.wsURL == "" {
			return cfg, fmt.Errorf("websocket url required for --follow: set WS_RPC_URL or --ws-url")
		}
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
