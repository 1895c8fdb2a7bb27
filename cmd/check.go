package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atoombs-lib/kb-linkcheck/internal/api"
	"github.com/atoombs-lib/kb-linkcheck/internal/config"
	"github.com/atoombs-lib/kb-linkcheck/internal/fetch"
	"github.com/atoombs-lib/kb-linkcheck/internal/kb"
	"github.com/atoombs-lib/kb-linkcheck/internal/logging"
	"github.com/atoombs-lib/kb-linkcheck/internal/pipeline"
	"github.com/atoombs-lib/kb-linkcheck/internal/progress"
	"github.com/atoombs-lib/kb-linkcheck/internal/progress/sinks"
	"github.com/atoombs-lib/kb-linkcheck/internal/store"
)

const (
	resourceCacheFile = "resources.csv"
	resultCacheFile   = "results.csv"
	recentEventCap    = 1024
)

// newCheckCmd creates and configures the 'check' subcommand, which runs the
// discover, check and analyze stages end to end.
func newCheckCmd() *cobra.Command {
	var (
		preserveCache bool
		domainsOnly   bool
		threshold     float64
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Runs a full link-checking pass over the knowledge base",
		Long: `Discovers every online resource in the configured knowledge base,
caches them on disk, probes each link with a HEAD request, and reports
collections whose broken-link ratio meets or exceeds the failure
threshold.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("preserve-cache") {
				cfg.Cache.Preserve = preserveCache
			}
			if cmd.Flags().Changed("domains-only") {
				cfg.HTTP.DomainsOnly = domainsOnly
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Check.FailureThreshold = threshold
			}
			return runCheck(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&preserveCache, "preserve-cache", false, "keep existing cache files instead of starting fresh")
	cmd.Flags().BoolVar(&domainsOnly, "domains-only", false, "judge links by domain policy without fetching them")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "broken-link ratio at or above which a collection is reported")

	return cmd
}

func runCheck(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	storeOpts := store.Options{Preserve: cfg.Cache.Preserve}
	resources, err := store.Open(filepath.Join(cfg.Cache.Dir, resourceCacheFile), pipeline.ResourceHeader, storeOpts, logger)
	if err != nil {
		return fmt.Errorf("open resource cache: %w", err)
	}
	results, err := store.Open(filepath.Join(cfg.Cache.Dir, resultCacheFile), pipeline.ResultHeader, storeOpts, logger)
	if err != nil {
		return fmt.Errorf("open result cache: %w", err)
	}

	prober := newProber(cfg, logger)
	sourceFetcher := newSourceFetcher(cfg, logger)
	defer sourceFetcher.Close()
	source := kb.NewClient(sourceFetcher, cfg.Source.Endpoint, cfg.Source.Key, cfg.Source.PageSize, logger)

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register progress metrics: %w", err)
	}
	memSink := sinks.NewMemorySink(recentEventCap)
	hub := progress.NewHub(logger, sinks.NewLogSink(logger), promSink, memSink)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Close(closeCtx)
	}()

	runner := pipeline.NewRunner(source, prober, resources, results, hub, cfg.HTTP.MaxConcurrent, logger)

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewServer(runner, memSink, prometheus.DefaultGatherer, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				logger.Error("ops server failed", zap.Error(serveErr))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	judgements, err := runner.Run(ctx, cfg.Check.FailureThreshold)
	if err != nil {
		return err
	}

	for _, j := range judgements {
		if j.Exceeded {
			logger.Warn("collection exceeded failure threshold",
				zap.String("collection", j.CollectionID),
				zap.Int("broken", j.BrokenCount),
				zap.Int("total", j.TotalCount),
				zap.Float64("ratio", j.BrokenRatio),
			)
		}
	}
	return nil
}

// newProber builds the politeness client used to probe external resource
// links. It never carries the knowledge-base credential.
func newProber(cfg config.Config, logger *zap.Logger) *fetch.Client {
	return fetch.NewClient(fetch.Config{
		UserAgent:         cfg.HTTP.UserAgent,
		MaxConcurrent:     cfg.HTTP.MaxConcurrent,
		MaxRetries:        cfg.HTTP.MaxRetries,
		MaxWait:           time.Duration(cfg.HTTP.MaxWaitSeconds) * time.Second,
		DomainRPS:         cfg.HTTP.DomainRPS,
		Ignorelist:        cfg.HTTP.Ignorelist,
		EnforceIgnorelist: cfg.HTTP.EnforceIgnorelist,
		EnforceRobots:     cfg.HTTP.EnforceRobots,
		DomainsOnly:       cfg.HTTP.DomainsOnly,
	}, logger)
}

// newSourceFetcher builds the client reserved for the knowledge-base API.
// The credential header attaches here and nowhere else, and crawl-policy
// enforcement stays off: an operator ignorelist entry or a restrictive
// robots.txt on the API host must not break discovery.
func newSourceFetcher(cfg config.Config, logger *zap.Logger) *fetch.Client {
	return fetch.NewClient(fetch.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		MaxConcurrent: cfg.HTTP.MaxConcurrent,
		MaxRetries:    cfg.HTTP.MaxRetries,
		MaxWait:       time.Duration(cfg.HTTP.MaxWaitSeconds) * time.Second,
	}, logger)
}
