package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/relaysync/nip65sync/internal/checkpoint"
	"github.com/relaysync/nip65sync/internal/config"
	"github.com/relaysync/nip65sync/internal/identity"
	"github.com/relaysync/nip65sync/internal/ops"
	"github.com/relaysync/nip65sync/internal/relay"
	"github.com/relaysync/nip65sync/internal/syncengine"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "manual"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		handleInit()
		return
	}

	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("nip65sync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		fmt.Printf("  by:     %s\n", builtBy)
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("nip65sync - NIP-65 outbox relay sync engine")
		fmt.Println()
		fmt.Println("No configuration file specified. Use --config <path> to specify config.")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  nip65sync init              Generate example configuration")
		fmt.Println("  nip65sync --version         Show version information")
		fmt.Println("  nip65sync --config <path>   Run one sync against the configured relays")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting nip65sync %s\n", version)
	fmt.Printf("  Identity: %s\n", cfg.Identity.Npub)
	fmt.Println()

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println()
		fmt.Println("Received interrupt, cancelling sync...")
		cancel()
	}()

	logger := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(logger)

	resolved, err := identity.NewResolver().Resolve(cfg.Identity.Npub)
	if err != nil {
		return fmt.Errorf("resolve identity.npub: %w", err)
	}
	ownerPubkey := resolved.Pubkey
	seeds := append(append([]string{}, cfg.Relays.Seeds...), resolved.HintRelays...)

	fmt.Println("Opening checkpoint store...")
	store, err := checkpoint.Open(ctx, cfg.Storage.CheckpointPath)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	fmt.Println("Discovering NIP-65 relay list from seed relays...")
	pool := relay.NewPool(relay.NeverAuth, nil)
	defer pool.CloseAll()

	relayList, err := identity.DiscoverRelayList(ctx, pool, seeds, ownerPubkey)
	if err != nil {
		return fmt.Errorf("discover relay list: %w", err)
	}

	writeRelays := capRelays(relayList.WriteRelays(), cfg.Sync.MaxWriteRelays)
	readRelays := capRelays(relayList.ReadRelays(), cfg.Sync.MaxReadRelays)
	fmt.Printf("  %d write relay(s), %d read relay(s)\n", len(writeRelays), len(readRelays))

	engine := syncengine.New(pool, syncengine.Config{
		BatchSize:       cfg.Sync.BatchSize,
		BatchTimeout:    time.Duration(cfg.Sync.BatchTimeoutMs) * time.Millisecond,
		PublishTimeout:  time.Duration(cfg.Sync.PublishTimeoutMs) * time.Millisecond,
		InterEventDelay: time.Duration(cfg.Sync.InterEventDelayMs) * time.Millisecond,
		InterBatchDelay: time.Duration(cfg.Sync.InterBatchDelayMs) * time.Millisecond,
	})

	now := time.Now().Unix()

	fmt.Println("Running write-sync...")
	if err := runDirection(ctx, engine, store, ownerPubkey, checkpoint.DirectionWrite, writeRelays, syncengine.WriteFilter(ownerPubkey), now); err != nil {
		return fmt.Errorf("write-sync: %w", err)
	}

	fmt.Println("Running read-sync...")
	if err := runDirection(ctx, engine, store, ownerPubkey, checkpoint.DirectionRead, readRelays, syncengine.ReadFilter(ownerPubkey), now); err != nil {
		return fmt.Errorf("read-sync: %w", err)
	}

	fmt.Println("✓ Sync complete")
	return nil
}

// runDirection runs one sync (write or read) to completion, resuming from
// any checkpoint left by a prior failed run and clearing it on success.
// Design notes §9 recommend write-sync and read-sync run strictly serially
// against the shared pool even though the engine itself tolerates either.
func runDirection(ctx context.Context, engine *syncengine.Engine, store *checkpoint.Store, pubkey string, dir checkpoint.Direction, targets []string, filter nostr.Filter, initialUntil int64) error {
	if len(targets) == 0 {
		fmt.Printf("  no %s relays declared, skipping\n", dir)
		return nil
	}

	resumeFrom, ok, err := store.Load(ctx, pubkey, dir)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	until := initialUntil
	if ok {
		fmt.Printf("  resuming %s-sync from checkpoint cursor_until=%d\n", dir, resumeFrom)
		until = resumeFrom
	}

	result, err := engine.Sync(ctx, targets, filter, until, 0, func(p syncengine.Progress) {
		switch p.Phase {
		case syncengine.PhaseBatchComplete, syncengine.PhaseComplete, syncengine.PhaseError:
			fmt.Printf("  [%s] %s (cursor_until=%d)\n", p.Phase, p.Message, p.CursorUntil)
		}
	})
	if err != nil {
		if syncErr, ok := err.(*syncengine.SyncError); ok {
			if saveErr := store.Save(ctx, pubkey, dir, syncErr.CursorUntil, time.Now().Unix()); saveErr != nil {
				ops.Default().Error("failed to save resume checkpoint", "error", saveErr)
			}
		}
		return err
	}

	if clearErr := store.Clear(ctx, pubkey, dir); clearErr != nil {
		ops.Default().Error("failed to clear checkpoint after completion", "error", clearErr)
	}
	fmt.Printf("  %s-sync complete: %d event(s) synced\n", dir, result.TotalSynced)
	return nil
}

func capRelays(urls []string, max int) []string {
	if max <= 0 || len(urls) <= max {
		return urls
	}
	return urls[:max]
}

func handleInit() {
	exampleConfig, err := config.GetExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading example config: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(string(exampleConfig))
}
