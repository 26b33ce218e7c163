package preflight

import (
	"context"

	"meetcap/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Storage directory", cfg.Paths.StorageDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckCredentials(cfg.Browser),
	}

	// The feed is needed for polling and for reporting results.
	if cfg.Scheduler.Enabled || (cfg.Processing.Enabled && cfg.Processing.ReportResults) {
		results = append(results, CheckFeed(ctx, cfg.Feed.ServerAPI))
	}

	if cfg.Processing.Enabled {
		results = append(results,
			CheckTranscription(cfg.Transcription),
			CheckLLM(ctx, "LLM", cfg.LLM),
		)
	}

	if cfg.Archive.Enabled {
		results = append(results, CheckArchive(cfg.Archive))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
