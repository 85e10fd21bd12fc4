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

	"tickbase/internal/candle"
	"tickbase/internal/cli"
	"tickbase/internal/config"
	"tickbase/internal/svc"
)

var (
	configFile = flag.String("f", "etc/tickbase.yaml", "config file path")
	instrument = flag.String("instrument", "", "instrument to build candles for (overrides config)")
	intervals  = flag.String("intervals", "", "comma-separated interval specs, e.g. M1,M5,H1,D1 (overrides config)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[candles] Starting candle build...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[candles] Failed to load config: %v", err)
	}
	log.Printf("[candles] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(cfg) {
		log.Printf("  - %s", line)
	}

	target := *instrument
	if target == "" {
		target = cfg.Build.Instrument
	}
	if target == "" {
		log.Fatalf("[candles] No instrument: set build.instrument or -instrument")
	}

	specs := cfg.Build.Intervals
	if *intervals != "" {
		specs = strings.Split(*intervals, ",")
	}
	ivs := make([]candle.Interval, 0, len(specs))
	for _, spec := range specs {
		iv, err := candle.ParseInterval(strings.TrimSpace(spec))
		if err != nil {
			log.Fatalf("[candles] Bad interval: %v", err)
		}
		ivs = append(ivs, iv)
	}

	loc, err := time.LoadLocation(cfg.Build.Timezone)
	if err != nil {
		log.Fatalf("[candles] Bad timezone %q: %v", cfg.Build.Timezone, err)
	}

	svcCtx := svc.NewServiceContext(*cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := candle.NewBuilder(svcCtx.TickStore, svcCtx.CandleStore, loc, cfg.Build.ChunkDays)
	from, to := cfg.BuildRange()

	start := time.Now()
	res, err := builder.Build(ctx, target, ivs, from, to, cfg.Build.MaxConcurrentIntervals)
	if err != nil {
		log.Fatalf("[candles] Build failed: %v", err)
	}
	log.Printf("[candles] Done in %s: %d candles written, %d already present, %d lost",
		time.Since(start).Round(time.Millisecond), res.Inserted, res.Duplicates, res.Lost)
}
