package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/reelfacts/internal/app"
	"github.com/raphaelgruber/reelfacts/internal/config"
	"github.com/raphaelgruber/reelfacts/internal/db"
	"github.com/raphaelgruber/reelfacts/internal/frames"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check external tools, credentials and the run ledger",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

type check struct {
	name string
	ok   bool
	info string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	checks := doctorChecks(ctx, cfg)

	out := cmd.OutOrStdout()
	failed := 0
	for _, c := range checks {
		mark := defaultTheme.completedStyle().Render("✓")
		if !c.ok {
			mark = defaultTheme.errorStyle().Render("✗")
			failed++
		}
		fmt.Fprintf(out, "%s %-18s %s\n", mark, c.name, c.info)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}

func doctorChecks(ctx context.Context, cfg config.Config) []check {
	var checks []check
	log := logger
	if log == nil {
		log = slog.Default()
	}

	deps := frames.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.FramesDir).DependencyStatus()
	checks = append(checks,
		check{"ffmpeg", deps.FFmpegFound, orMissing(deps.FFmpegPath, cfg.FFmpegPath)},
		check{"ffprobe", deps.FFprobeFound, orMissing(deps.FFprobePath, cfg.FFprobePath)},
		check{"gemini api key", cfg.GeminiAPIKey != "", "GEMINI_API_KEY " + setOrMissing(cfg.GeminiAPIKey)},
	)

	fallback := fmt.Sprintf("%s (%s)", cfg.FallbackProvider, cfg.FallbackModelName())
	switch cfg.FallbackProvider {
	case config.ProviderGemini, "":
		checks = append(checks, check{"image fallback", cfg.GeminiAPIKey != "", fallback})
	default:
		if _, err := app.NewImageAnalyzer(ctx, cfg, nil, nil, log); err != nil {
			checks = append(checks, check{"image fallback", false, fmt.Sprintf("%s: %v", cfg.FallbackProvider, err)})
		} else {
			checks = append(checks, check{"image fallback", true, fallback})
		}
	}

	if cfg.Ledger == config.LedgerSurreal {
		client, err := db.NewClient(ctx, db.ConfigFrom(cfg), log)
		if err != nil {
			checks = append(checks, check{"surrealdb", false, fmt.Sprintf("%s: %v", cfg.SurrealDBURL, err)})
			return checks
		}
		checks = append(checks, pingCheck(ctx, "surrealdb", cfg.SurrealDBURL, client))
		_ = client.Close(ctx)
	}

	a, err := app.NewLedgerOnly(ctx, cfg, log)
	if err != nil {
		checks = append(checks, check{"run ledger", false, fmt.Sprintf("%s: %v", cfg.Ledger, err)})
		return checks
	}
	defer a.Close(ctx)
	if _, err := a.Ledger.ListRecentRuns(ctx); err != nil {
		checks = append(checks, check{"run ledger", false, fmt.Sprintf("%s: %v", cfg.Ledger, err)})
	} else {
		checks = append(checks, check{"run ledger", true, cfg.Ledger})
	}
	return checks
}

type pinger interface {
	Ping(ctx context.Context) error
}

func pingCheck(ctx context.Context, name, target string, p pinger) check {
	if err := p.Ping(ctx); err != nil {
		return check{name, false, fmt.Sprintf("%s: %v", target, err)}
	}
	return check{name, true, target}
}

func orMissing(found, configured string) string {
	if found != "" {
		return found
	}
	return configured + " not found on PATH"
}

func setOrMissing(v string) string {
	if v == "" {
		return "not set"
	}
	return "set"
}
