package cli

import (
	"fmt"
	"strings"

	"tickbase/internal/config"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		fmt.Sprintf("Tables: %s / %s / %s", cfg.Store.FutTicksTable, cfg.Store.OptTicksTable, cfg.Store.CandlesTable),
		fmt.Sprintf("Import: batch=%d, files=%d, flush=%dms", cfg.Import.BatchSize, cfg.Import.MaxConcurrentFiles, cfg.Import.FlushIntervalMs),
		fmt.Sprintf("Build: tz=%s, intervals=%s, chunkDays=%d", cfg.Build.Timezone, strings.Join(cfg.Build.Intervals, ","), cfg.Build.ChunkDays),
		manifestLine(cfg),
	}

	return lines
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func manifestLine(cfg *config.Config) string {
	switch {
	case strings.TrimSpace(cfg.Manifest.File) != "":
		return fmt.Sprintf("Manifest: %s", cfg.Manifest.File)
	case cfg.Manifest.Value != nil:
		return "Manifest: inline"
	default:
		return "Manifest: not configured"
	}
}
