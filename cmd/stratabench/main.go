// Package main implements the stratabench binary: it generates the
// synthetic dataset, writes it in every storage encoding, runs the full
// benchmark matrix, and prints a summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stratabench/stratabench/internal/app"
	"github.com/stratabench/stratabench/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile   string
		dataDir      string
		resultsDir   string
		factRows     int
		dimRows      int
		seed         int64
		trialTimeout time.Duration
		noResume     bool
		showVersion  bool
		showHelp     bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for generated artifacts")
	flag.StringVar(&resultsDir, "results-dir", "", "Directory for the metrics log")
	flag.IntVar(&factRows, "fact-rows", 0, "Fact table row count")
	flag.IntVar(&dimRows, "dim-rows", 0, "Dimension table row count")
	flag.Int64Var(&seed, "seed", 0, "Dataset generator seed")
	flag.DurationVar(&trialTimeout, "trial-timeout", 0, "Per-trial timeout (0 uses the configured default)")
	flag.BoolVar(&noResume, "no-resume", false, "Re-run matrix cells already present in the log")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Stratabench - Storage Format & Join Strategy Benchmark\n\n")
		fmt.Fprintf(os.Stderr, "Usage: stratabench [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  stratabench --data-dir /data/stratabench\n")
		fmt.Fprintf(os.Stderr, "  stratabench --fact-rows 1000000 --seed 7\n")
		fmt.Fprintf(os.Stderr, "  stratabench --config /etc/stratabench/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  STRATABENCH_DATA_DIR       Base directory for artifacts\n")
		fmt.Fprintf(os.Stderr, "  STRATABENCH_RESULTS_DIR    Directory for the metrics log\n")
		fmt.Fprintf(os.Stderr, "  STRATABENCH_FACT_ROWS      Fact table row count\n")
		fmt.Fprintf(os.Stderr, "  STRATABENCH_SEED           Dataset generator seed\n")
		fmt.Fprintf(os.Stderr, "  STRATABENCH_STORAGE_TYPE   Results sync target (none, local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("stratabench version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// A .env in the working directory supplies credentials and overrides
	// for local runs; absence is fine.
	_ = godotenv.Load()

	cfg, err := loadConfig(configFile, dataDir, resultsDir, factRows, dimRows, seed, trialTimeout, noResume)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal: %v, finishing current trial", sig)
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Benchmark run failed: %v", err)
	}
}

// loadConfig loads configuration from file, environment, and command line
// flags, in increasing priority.
func loadConfig(configFile, dataDir, resultsDir string, factRows, dimRows int, seed int64, trialTimeout time.Duration, noResume bool) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if resultsDir != "" {
		cfg.ResultsDir = resultsDir
	}
	if factRows != 0 {
		cfg.Dataset.FactRows = factRows
	}
	if dimRows != 0 {
		cfg.Dataset.DimRows = dimRows
	}
	if seed != 0 {
		cfg.Dataset.Seed = seed
	}
	if trialTimeout != 0 {
		cfg.Benchmark.TrialTimeout = trialTimeout
	}
	if noResume {
		cfg.Benchmark.Resume = false
	}

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                     STRATABENCH                           ║")
	log.Printf("║     Storage Format & Join Strategy Benchmark Harness      ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Data Dir:    %s", cfg.DataDir)
	log.Printf("  Results Dir: %s", cfg.ResultsDir)
	log.Printf("  Dataset:     %d facts / %d dims, seed %d",
		cfg.Dataset.FactRows, cfg.Dataset.DimRows, cfg.Dataset.Seed)
	log.Printf("  Timeout:     %v per trial", cfg.Benchmark.TrialTimeout)
	log.Printf("  Resume:      %v", cfg.Benchmark.Resume)
	log.Printf("  Storage:     %s", cfg.Storage.Type)
	log.Printf("")
}
