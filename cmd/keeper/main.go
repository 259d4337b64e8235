package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/eatthepie/bots/internal/dotenv"
	"github.com/eatthepie/bots/internal/jsonl"
	"github.com/eatthepie/bots/internal/keeper"
	"github.com/eatthepie/bots/internal/lottery"
	"github.com/eatthepie/bots/internal/notify"
	"github.com/eatthepie/bots/internal/vdf"
)

// defaultFundAmounts are the initiateDraw value candidates in ether,
// escalated in order when the contract rejects an amount as too low.
const defaultFundAmounts = "0.05,0.1,0.2"

type config struct {
	rpcURL   string
	contract common.Address

	privateKey *ecdsa.PrivateKey
	enableTx   bool

	vdfRequired bool
	vdfDir      string

	notifyURL    string
	notifySecret string

	fundCandidates []*big.Int

	every           time.Duration
	settleDelay     time.Duration
	singleShotDelay time.Duration

	outPath string

	// gameID != 0 selects single-shot mode for that game.
	gameID uint64
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
	eth, err := ethclient.DialContext(ctx, cfg.rpcURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer eth.Close()

	contract, err := lottery.NewClient(eth, cfg.contract)
	if err != nil {
		return err
	}

	var submitter keeper.TxSubmitter
	if cfg.enableTx {
		chainID, err := eth.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("fetch chain id: %w", err)
		}
		exec, err := lottery.NewExecutor(eth, contract, cfg.privateKey, chainID)
		if err != nil {
			return err
		}
		submitter = exec
		log.Printf("[info] submitting as %s chain=%s contract=%s", exec.From().Hex(), chainID, cfg.contract.Hex())
	} else {
		log.Printf("[info] dry-run: set ENABLE_TX=true (or --enable-tx) to submit transactions")
	}

	var prover keeper.Prover
	if cfg.vdfRequired {
		prover = &vdf.FileProver{Dir: cfg.vdfDir}
	}

	var notifier keeper.Notifier
	if cfg.notifyURL != "" {
		n, err := notify.NewClient(cfg.notifyURL, cfg.notifySecret)
		if err != nil {
			return err
		}
		notifier = n
	}

	events := jsonl.New(cfg.outPath)
	defer events.Close()

	delays := keeper.DefaultDelays()
	if cfg.every > 0 {
		// A fixed interval flattens the adaptive table.
		delays = keeper.Delays{
			Longest: cfg.every, Long: cfg.every, Medium: cfg.every,
			ShortMedium: cfg.every, Shortest: cfg.every,
		}
	}

	k, err := keeper.New(contract, submitter, prover, notifier, keeper.Config{
		VDFRequired:       cfg.vdfRequired,
		DryRun:            !cfg.enableTx,
		FundingCandidates: cfg.fundCandidates,
		Delays:            delays,
		SettleDelay:       cfg.settleDelay,
		SingleShotDelay:   cfg.singleShotDelay,
	}, events)
	if err != nil {
		return err
	}

	if cfg.gameID != 0 {
		return k.RunGame(ctx, cfg.gameID)
	}
	return k.Run(ctx)
}

func loadConfig() (config, error) {
	var cfg config

	var rpcFlag, contractFlag, vdfDirFlag, notifyURLFlag, fundFlag, everyFlag, outFlag string
	var settleFlag, singleShotFlag time.Duration
	var vdfFlag, enableTxFlag bool

	flag.StringVar(&rpcFlag, "rpc-url", "", "Ethereum RPC endpoint (default from RPC_URL).")
	flag.StringVar(&contractFlag, "contract", "", "Lottery contract address (default from LOTTERY_CONTRACT).")
	flag.BoolVar(&vdfFlag, "vdf", false, "Deployment requires VDF proofs (default from VDF_REQUIRED).")
	flag.StringVar(&vdfDirFlag, "vdf-dir", "", "Directory shared with the VDF prover (default from VDF_DIR or current dir).")
	flag.StringVar(&notifyURLFlag, "notify-url", "", "Draw-completed webhook endpoint (default from NOTIFY_URL; empty disables).")
	flag.StringVar(&fundFlag, "fund", "", "Comma-separated initiateDraw values in ether, ascending (default from FUND_AMOUNTS or "+defaultFundAmounts+").")
	flag.StringVar(&everyFlag, "every", "", "Fixed poll interval (e.g. 2m) overriding the adaptive schedule (default from KEEPER_EVERY).")
	flag.DurationVar(&settleFlag, "settle-delay", 0, "Pause before the completion notification (default 30s).")
	flag.DurationVar(&singleShotFlag, "single-shot-delay", 0, "Poll delay in single-shot mode (default 15s).")
	flag.StringVar(&outFlag, "out", "", "JSONL event log path (default from KEEPER_OUT; empty disables).")
	flag.BoolVar(&enableTxFlag, "enable-tx", false, "Send transactions (default false; set ENABLE_TX).")
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

	cfg.vdfRequired = vdfFlag
	if !cfg.vdfRequired {
		if env := strings.TrimSpace(os.Getenv("VDF_REQUIRED")); env != "" {
			v, err := strconv.ParseBool(env)
			if err != nil {
				return cfg, fmt.Errorf("invalid VDF_REQUIRED %q: %w", env, err)
			}
			cfg.vdfRequired = v
		}
	}
	cfg.vdfDir = strings.TrimSpace(firstNonEmpty(vdfDirFlag, os.Getenv("VDF_DIR")))
	if cfg.vdfDir == "" {
		cfg.vdfDir = "."
	}

	cfg.notifyURL = strings.TrimSpace(firstNonEmpty(notifyURLFlag, os.Getenv("NOTIFY_URL")))
	cfg.notifySecret = strings.TrimSpace(os.Getenv("NOTIFY_SECRET"))

	fund := strings.TrimSpace(firstNonEmpty(fundFlag, os.Getenv("FUND_AMOUNTS"), defaultFundAmounts))
	candidates, err := parseEtherList(fund)
	if err != nil {
		return cfg, fmt.Errorf("invalid fund amounts %q: %w", fund, err)
	}
	cfg.fundCandidates = candidates

	if every := strings.TrimSpace(firstNonEmpty(everyFlag, os.Getenv("KEEPER_EVERY"))); every != "" {
		parsed, err := time.ParseDuration(every)
		if err != nil {
			return cfg, fmt.Errorf("invalid poll interval %q: %w", every, err)
		}
		if parsed <= 0 {
			return cfg, fmt.Errorf("poll interval must be positive, got %s", parsed)
		}
		cfg.every = parsed
	}
	cfg.settleDelay = settleFlag
	cfg.singleShotDelay = singleShotFlag

	cfg.outPath = strings.TrimSpace(firstNonEmpty(outFlag, os.Getenv("KEEPER_OUT")))

	cfg.enableTx = enableTxFlag
	if !cfg.enableTx {
		if env := strings.TrimSpace(os.Getenv("ENABLE_TX")); env != "" {
			v, err := strconv.ParseBool(env)
			if err != nil {
				return cfg, fmt.Errorf("invalid ENABLE_TX %q: %w", env, err)
			}
			cfg.enableTx = v
		}
	}

	if cfg.enableTx {
		pkHex := strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
		if pkHex == "" {
			return cfg, fmt.Errorf("private key required to submit transactions (set PRIVATE_KEY)")
		}
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(pkHex, "0x"))
		if err != nil {
			return cfg, fmt.Errorf("invalid PRIVATE_KEY: %w", err)
		}
		cfg.privateKey = pk
	}

	if arg := strings.TrimSpace(flag.Arg(0)); arg != "" {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil || id == 0 {
			return cfg, fmt.Errorf("invalid game number %q", arg)
		}
		cfg.gameID = id
	}

	return cfg, nil
}

// parseEtherList converts a comma-separated list of decimal ether amounts
// into wei. Amounts must be positive and strictly ascending, so escalation
// always tries a larger value.
func parseEtherList(s string) ([]*big.Int, error) {
	parts := strings.Split(s, ",")
	out := make([]*big.Int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		wei, err := etherToWei(part)
		if err != nil {
			return nil, err
		}
		if wei.Sign() <= 0 {
			return nil, fmt.Errorf("amount %q must be positive", part)
		}
		if len(out) > 0 && wei.Cmp(out[len(out)-1]) <= 0 {
			return nil, fmt.Errorf("amounts must be strictly ascending, %q is not", part)
		}
		out = append(out, wei)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no amounts given")
	}
	return out, nil
}

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func etherToWei(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("%q has sub-wei precision", s)
	}
	return new(big.Int).Set(r.Num()), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
