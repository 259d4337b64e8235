package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/eatthepie/bots/internal/dotenv"
	"github.com/eatthepie/bots/internal/vdf"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultProveTimeout = 2 * time.Hour
)

type config struct {
	dir          string
	proverCmd    string
	proverArgs   []string
	pollInterval time.Duration
	proveTimeout time.Duration
}

type request struct {
	RandaoValue string `json:"randaoValue"`
}

type completion struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
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

	log.Printf("[info] watching %s for proof requests (prover=%s)", cfg.dir, cfg.proverCmd)
	if err := run(ctx, cfg); err != nil && ctx.Err() == nil {
		log.Fatalf("[fatal] %v", err)
	}
}

// run polls the work directory for request files and hands each one to the
// external prover. Markers follow the same protocol the keeper's FileProver
// speaks: request -> processing -> complete.
func run(ctx context.Context, cfg config) error {
	ticker := time.NewTicker(cfg.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		reqPath := filepath.Join(cfg.dir, vdf.RequestFile)
		b, err := os.ReadFile(reqPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			log.Printf("[warn] read request: %v", err)
			continue
		}

		var req request
		if err := json.Unmarshal(b, &req); err != nil {
			log.Printf("[warn] malformed request, discarding: %v", err)
			_ = os.Remove(reqPath)
			continue
		}

		// Claim the request so a restart mid-proof does not rerun it blindly.
		procPath := filepath.Join(cfg.dir, vdf.ProcessingFile)
		if err := os.Rename(reqPath, procPath); err != nil {
			log.Printf("[warn] claim request: %v", err)
			continue
		}

		log.Printf("[info] proving seed=%s", req.RandaoValue)
		start := time.Now()
		if err := runProver(ctx, cfg, req.RandaoValue); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[warn] prover failed after %s: %v", time.Since(start).Round(time.Second), err)
			writeCompletion(cfg.dir, completion{Status: "failed", Error: err.Error()})
		} else {
			log.Printf("[info] proof ready in %s", time.Since(start).Round(time.Second))
			writeCompletion(cfg.dir, completion{Status: "complete"})
		}
		_ = os.Remove(procPath)
	}
}

// runProver invokes the external prover as: <cmd> [args...] <seed> <proof-path>.
// The prover must write the proof JSON to the given path.
func runProver(ctx context.Context, cfg config, seed string) error {
	runCtx, cancel := context.WithTimeout(ctx, cfg.proveTimeout)
	defer cancel()

	proofPath := filepath.Join(cfg.dir, vdf.ProofFile)
	args := append(append([]string{}, cfg.proverArgs...), seed, proofPath)

	cmd := exec.CommandContext(runCtx, cfg.proverCmd, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", cfg.proverCmd, err)
	}

	if _, err := os.Stat(proofPath); err != nil {
		return fmt.Errorf("prover exited 0 but wrote no %s", vdf.ProofFile)
	}
	return nil
}

func writeCompletion(dir string, c completion) {
	b, err := json.Marshal(c)
	if err != nil {
		log.Printf("[warn] marshal completion: %v", err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, vdf.CompleteFile), b, 0o644); err != nil {
		log.Printf("[warn] write completion: %v", err)
	}
}

func loadConfig() (config, error) {
	var cfg config

	var dirFlag, proverFlag string
	var pollFlag, timeoutFlag time.Duration

	flag.StringVar(&dirFlag, "dir", "", "Work directory shared with the keeper (default from VDF_DIR or current dir).")
	flag.StringVar(&proverFlag, "prover", "", "Prover command; invoked with the seed and proof output path appended (default from VDF_PROVER).")
	flag.DurationVar(&pollFlag, "poll", defaultPollInterval, "How often to check for a request file.")
	flag.DurationVar(&timeoutFlag, "timeout", defaultProveTimeout, "Maximum duration of one proof run.")
	flag.Parse()

	cfg.dir = strings.TrimSpace(firstNonEmpty(dirFlag, os.Getenv("VDF_DIR")))
	if cfg.dir == "" {
		cfg.dir = "."
	}

	proverLine := strings.TrimSpace(firstNonEmpty(proverFlag, os.Getenv("VDF_PROVER")))
	if proverLine == "" {
		return cfg, fmt.Errorf("prover command required: set VDF_PROVER or --prover")
	}
	parts := strings.Fields(proverLine)
	cfg.proverCmd = parts[0]
	cfg.proverArgs = parts[1:]

	cfg.pollInterval = pollFlag
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	cfg.proveTimeout = timeoutFlag
	if cfg.proveTimeout <= 0 {
		cfg.proveTimeout = defaultProveTimeout
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
