package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/eatthepie/bots/internal/dotenv"
	"github.com/eatthepie/bots/internal/lottery"
)

const defaultUpdateInterval = 15 * time.Minute

type config struct {
	rpcURL     string
	contract   common.Address
	webhookURL string
	interval   time.Duration
	once       bool
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

	reader, err := lottery.NewClient(eth, cfg.contract)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 12 * time.Second}
	lastMessage := ""

	update := func() error {
		game, err := reader.CurrentGame(ctx)
		if err != nil {
			return fmt.Errorf("read current game: %w", err)
		}

		msg := formatStatus(game)
		if msg == lastMessage {
			log.Printf("[info] game=%d status unchanged", game.ID)
			return nil
		}
		if err := postWebhook(ctx, httpClient, cfg.webhookURL, msg); err != nil {
			return err
		}
		lastMessage = msg
		log.Printf("[info] game=%d posted: %s", game.ID, msg)
		return nil
	}

	if err := update(); err != nil {
		if cfg.once {
			return err
		}
		log.Printf("[warn] %v", err)
	}
	if cfg.once {
		return nil
	}

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := update(); err != nil {
				log.Printf("[warn] %v", err)
			}
		}
	}
}

// formatStatus renders the current jackpot and countdown. The countdown is
// rounded to the minute so unchanged-within-a-minute states do not repost.
func formatStatus(game lottery.CurrentGame) string {
	jackpot := weiToEther(game.PrizePool)
	if game.TimeUntilDraw <= 0 {
		return fmt.Sprintf("Round %d | Jackpot %s ETH | drawing now", game.ID, jackpot)
	}
	return fmt.Sprintf("Round %d | Jackpot %s ETH | draw in %s",
		game.ID, jackpot, formatCountdown(game.TimeUntilDraw))
}

func formatCountdown(d time.Duration) string {
	d = d.Round(time.Minute)
	day := 24 * time.Hour
	if d >= day {
		return fmt.Sprintf("%dd %dh", d/day, (d%day)/time.Hour)
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", d/time.Hour, (d%time.Hour)/time.Minute)
	}
	return fmt.Sprintf("%dm", d/time.Minute)
}

// weiToEther formats a wei amount as decimal ether with up to four places.
func weiToEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	s := r.FloatString(4)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

type webhookBody struct {
	Content string `json:"content"`
}

func postWebhook(ctx context.Context, client *http.Client, url, content string) error {
	body, err := json.Marshal(webhookBody{Content: content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post webhook: status=%d", resp.StatusCode)
	}
	return nil
}

func loadConfig() (config, error) {
	var cfg config

	var rpcFlag, contractFlag, webhookFlag, everyFlag string
	var onceFlag bool

	flag.StringVar(&rpcFlag, "rpc-url", "", "Ethereum RPC endpoint (default from RPC_URL).")
	flag.StringVar(&contractFlag, "contract", "", "Lottery contract address (default from LOTTERY_CONTRACT).")
	flag.StringVar(&webhookFlag, "webhook", "", "Discord webhook URL (default from DISCORD_WEBHOOK_URL).")
	flag.StringVar(&everyFlag, "every", "", "Update interval (default from STATUS_EVERY or 15m).")
	flag.BoolVar(&onceFlag, "once", false, "Post one update and exit.")
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

	cfg.webhookURL = strings.TrimSpace(firstNonEmpty(webhookFlag, os.Getenv("DISCORD_WEBHOOK_URL")))
	if !strings.HasPrefix(cfg.webhookURL, "http") {
		return cfg, fmt.Errorf("discord webhook url required: set DISCORD_WEBHOOK_URL or --webhook")
	}

	cfg.interval = defaultUpdateInterval
	if every := strings.TrimSpace(firstNonEmpty(everyFlag, os.Getenv("STATUS_EVERY"))); every != "" {
		parsed, err := time.ParseDuration(every)
		if err != nil {
			return cfg, fmt.Errorf("invalid update interval %q: %w", every, err)
		}
		if parsed > 0 {
			cfg.interval = parsed
		}
	}
	cfg.once = onceFlag

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
