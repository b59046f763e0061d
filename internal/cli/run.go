package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"jobmate/acquisition-service/internal/acquisition"
	"jobmate/acquisition-service/internal/model"
	"jobmate/acquisition-service/internal/profile"
	"jobmate/acquisition-service/internal/scraper"
)

var (
	runConfigID string
	runAll      bool
	runQuery    string
	runLocation string
	runProfile  string
	runMaxPages int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one acquisition now",
	Long: `Run acquisition once, either for stored search configs or for an ad-hoc query.

Examples:
  acquisition run --all
  acquisition run --config-id 6f1c…
  acquisition run --query "go developer" --location paris --profile cv.pdf --max-pages 3`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigID, "config-id", "", "search config to run")
	runCmd.Flags().BoolVar(&runAll, "all", false, "run every active search config")
	runCmd.Flags().StringVar(&runQuery, "query", "", "ad-hoc search term")
	runCmd.Flags().StringVar(&runLocation, "location", "", "ad-hoc location")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "profile file for an ad-hoc run (default PROFILE_PATH)")
	runCmd.Flags().IntVar(&runMaxPages, "max-pages", 0, "page budget (default MAX_PAGES)")
	runCmd.MarkFlagsMutuallyExclusive("config-id", "all", "query")
	runCmd.MarkFlagsOneRequired("config-id", "all", "query")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	switch {
	case runAll:
		configs, err := scraper.LoadActiveConfigs(ctx, a.pool)
		if err != nil {
			return err
		}
		var errs []error
		for _, c := range configs {
			s, err := a.worker.Run(ctx, c)
			printSummary(out, c.ID, s)
			if err != nil {
				errs = append(errs, fmt.Errorf("config %s: %w", c.ID, err))
			}
		}
		return errors.Join(errs...)

	case runConfigID != "":
		c, err := scraper.LoadConfig(ctx, a.pool, runConfigID)
		if err != nil {
			return err
		}
		if runMaxPages > 0 {
			c.MaxPages = runMaxPages
		}
		s, err := a.worker.Run(ctx, c)
		printSummary(out, c.ID, s)
		return err
	}

	path := runProfile
	if path == "" {
		path = cfg.ProfilePath
	}
	if path == "" {
		return errors.New("--profile or PROFILE_PATH is required for an ad-hoc run")
	}
	pid, _, err := a.registry.Resolve(ctx, profile.FileProvider{Path: path}, path)
	if err != nil {
		return err
	}
	maxPages := runMaxPages
	if maxPages < 1 {
		maxPages = cfg.MaxPages
	}

	res, err := a.controller.Run(ctx, acquisition.RunRequest{
		ProfileIdentity: pid.Fingerprint,
		Source: model.SourceConfig{
			Name:     "adzuna",
			Query:    strings.TrimSpace(runQuery),
			Location: strings.TrimSpace(runLocation),
			Country:  cfg.AdzunaCountry,
		},
		MaxPages: maxPages,
	})
	if res != nil {
		printResult(out, res)
	}
	return err
}
