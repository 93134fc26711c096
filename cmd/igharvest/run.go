package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"igharvest/pkg/config"
	"igharvest/pkg/instagram"
	"igharvest/pkg/logger"
	"igharvest/pkg/metrics"
	"igharvest/pkg/models"
	"igharvest/pkg/ratelimit"
	"igharvest/pkg/results"
	"igharvest/pkg/scraper"
	"igharvest/pkg/ui"
)

var errTasksFailed = errors.New("some tasks failed")

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [shortcode or post URL...]",
	Short: "Fetch posts for shortcodes and user ids",
	Long: `Fetch posts for every configured shortcode and user id.

Inputs come from the configuration file, IGHARVEST_SHORTCODES and
IGHARVEST_USER_IDS, the --shortcodes and --user-ids flags, and any
positional arguments, which are read as shortcodes or post URLs.

The report is written to the results file. With --resume, inputs that
already succeeded in the previous report are skipped and their outcomes
are carried into the new one.`,
	Example: `  # Fetch two posts and one user timeline back to 2024-12-01
  igharvest run DA1bCdEfGh https://www.instagram.com/p/DB2cDeFgHi/ --user-ids 25025320

  # Limit pagination and expose metrics while running
  igharvest run --user-ids 25025320,173560420 --max-pages 5 --metrics-address :9090

  # Retry whatever failed last time
  igharvest run --resume`,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringSlice("shortcodes", nil, "shortcodes or post URLs to fetch")
	f.StringSlice("user-ids", nil, "numeric user ids whose timelines to paginate")
	f.Int("batchsize", 10, "tasks per batch")
	f.Int("concurrency-limit", 10, "batches in flight at once")
	f.Int("max-retries", 3, "retries after the first failed attempt")
	f.Int("max-pages", -1, "pages per user, -1 for unlimited")
	f.String("earliest-post-date", "", "drop posts before this date (YYYY-MM-DD)")
	f.String("session-id", "", "Instagram sessionid cookie")
	f.String("csrf-token", "", "Instagram csrftoken cookie")
	f.Int("rate-limit", 60, "requests per minute")
	f.StringP("output", "o", "", "results file")
	f.Bool("resume", false, "skip inputs that succeeded in the previous results file")
	f.String("metrics-address", "", "serve Prometheus metrics on this address, e.g. :9090")
}

// flagOverrides collects the flags the user actually set, keyed the way
// config.MergeCommandLineFlags expects
func flagOverrides(cmd *cobra.Command) map[string]interface{} {
	overrides := make(map[string]interface{})
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Value.Type() {
		case "int":
			if v, err := strconv.Atoi(f.Value.String()); err == nil {
				overrides[f.Name] = v
			}
		case "bool":
			overrides[f.Name] = f.Value.String() == "true"
		case "stringSlice":
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				overrides[f.Name] = sv.GetSlice()
			}
		default:
			overrides[f.Name] = f.Value.String()
		}
	})
	if logLevel != "" {
		overrides["log-level"] = logLevel
	}
	return overrides
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, flagOverrides(cmd))
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger().WithField("version", version)
	log.Info("igharvest starting")

	shortcodes := instagram.NormalizeShortcodes(append(slices.Clone(cfg.Scrape.Shortcodes), args...))
	userIDs := cfg.Scrape.UserIDs

	store, err := results.NewStore(cfg.Output.ResultsFile, log)
	if err != nil {
		return err
	}

	var previous *scraper.Report
	if cfg.Output.Resume {
		if previous, err = store.Load(); err != nil {
			return err
		}
		if previous != nil {
			shortcodes = without(shortcodes, previous.Succeeded(models.KindShortcode))
			userIDs = without(userIDs, previous.Succeeded(models.KindUser))
			if !quiet {
				ui.PrintInfo("Resuming run", previous.RunID)
			}
		}
	}

	if len(shortcodes) == 0 && len(userIDs) == 0 && previous == nil {
		return errors.New("nothing to fetch: pass shortcodes or user ids")
	}

	if cfg.Instagram.SessionID == "" || cfg.Instagram.CSRFToken == "" {
		log.Warn("No session cookies configured, requests will be anonymous")
		if !quiet {
			ui.PrintWarning("No session cookies configured", "set IGHARVEST_SESSION_ID and IGHARVEST_CSRF_TOKEN")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if addr := cfg.Metrics.ListenAddress; addr != "" {
		srv := metrics.NewServer(addr, reg, log)
		if _, err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.WithError(err).Warn("Metrics server shutdown failed")
			}
		}()
	}

	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		return err
	}
	client := instagram.NewClient(cfg.Instagram,
		instagram.WithLimiter(limiter),
		instagram.WithLogger(log),
		instagram.WithMetrics(m),
	)

	opts, err := scraper.OptionsFromConfig(cfg, log, m)
	if err != nil {
		return err
	}
	engine, err := scraper.New(client, opts)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext(cmd.Context(), func(sig os.Signal) {
		log.WithField("signal", sig.String()).Warn("Interrupted, waiting for in-flight tasks")
		ui.PrintWarning("Finishing in-flight tasks, press Ctrl-C again to abort")
	})
	defer stop()

	if !quiet {
		ui.PrintInfo("Shortcodes", strconv.Itoa(len(shortcodes)))
		ui.PrintInfo("User ids", strconv.Itoa(len(userIDs)))
		ui.PrintInfo("Max concurrent fetches", strconv.Itoa(engine.ParallelismBound()))
	}

	report, runErr := engine.Run(ctx, shortcodes, userIDs)
	report.Merge(previous)

	if err := store.Backup(); err != nil {
		log.WithError(err).Warn("Failed to back up previous results")
	}
	if err := store.Save(report); err != nil {
		return errors.Join(runErr, err)
	}

	fmt.Fprintln(ui.Output, ui.RenderSummary(report, ui.DefaultMaxProblemRows))
	if !quiet {
		ui.PrintInfo("Results", store.Path())
	}

	if runErr != nil {
		return runErr
	}
	if report.Summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errTasksFailed, report.Summary.Failed, report.Summary.Total)
	}
	ui.PrintSuccess("Run completed")
	return nil
}

// without returns ids minus every element of done, preserving order
func without(ids, done []string) []string {
	if len(done) == 0 {
		return ids
	}
	skip := make(map[string]struct{}, len(done))
	for _, id := range done {
		skip[id] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
