package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tickbase/internal/checkpoint"
	"tickbase/internal/cli"
	"tickbase/internal/config"
	"tickbase/internal/importer"
	"tickbase/internal/svc"
	"tickbase/pkg/confkit"
)

var (
	configFile = flag.String("f", "etc/tickbase.yaml", "config file path")
	patterns   = flag.String("patterns", "", "comma-separated glob patterns (overrides config)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[import] Starting tick import...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[import] Failed to load config: %v", err)
	}
	log.Printf("[import] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(cfg) {
		log.Printf("  - %s", line)
	}

	sources := collectSources(cfg)
	if len(sources) == 0 {
		log.Fatalf("[import] No sources: set import.patterns, a manifest, or -patterns")
	}

	svcCtx := svc.NewServiceContext(*cfg)

	opts := importer.Options{
		BatchSize:          cfg.Import.BatchSize,
		MaxConcurrentFiles: cfg.Import.MaxConcurrentFiles,
		FlushInterval:      time.Duration(cfg.Import.FlushIntervalMs) * time.Millisecond,
		StartDay:           cfg.StartDay(),
	}
	if dir := cfg.Import.CheckpointDir; dir != "" {
		cp, err := checkpoint.NewStore(confkit.ResolvePath(cfg.BaseDir(), dir))
		if err != nil {
			log.Fatalf("[import] Failed to open checkpoint dir: %v", err)
		}
		opts.Checkpoints = cp
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	imp := importer.New(svcCtx.TickStore, opts)
	start := time.Now()
	reports, err := imp.Run(ctx, sources)
	if err != nil {
		log.Fatalf("[import] Run failed: %v", err)
	}

	failed := 0
	for _, rep := range reports {
		switch {
		case rep.Err != nil:
			failed++
			log.Printf("[import] [ERROR] %s: %v (inserted=%d before failure)", rep.File, rep.Err, rep.Inserted)
		case rep.Skipped:
			log.Printf("[import] [SKIP] %s: already imported", rep.File)
		default:
			log.Printf("[import] [OK] %s: inserted=%d duplicates=%d dropped=%d lost=%d",
				rep.File, rep.Inserted, rep.Duplicates, rep.Dropped, rep.Lost)
		}
	}
	log.Printf("[import] Done: %d files in %s, %d failed", len(reports), time.Since(start).Round(time.Millisecond), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func collectSources(cfg *config.Config) []importer.Source {
	var sources []importer.Source
	if *patterns != "" {
		for _, p := range strings.Split(*patterns, ",") {
			if p = strings.TrimSpace(p); p != "" {
				sources = append(sources, importer.Source{Pattern: p})
			}
		}
		return sources
	}
	if cfg.Manifest.Value != nil {
		for _, src := range cfg.Manifest.Value.Sources {
			sources = append(sources, importer.Source{Pattern: src.Pattern, StartDay: src.StartDay()})
		}
	}
	for _, p := range cfg.Import.Patterns {
		sources = append(sources, importer.Source{Pattern: p})
	}
	return sources
}
