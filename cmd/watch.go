package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/notewatch/config"
	"github.com/otherjamesbrown/notewatch/credentials"
	"github.com/otherjamesbrown/notewatch/pkg/buildinfo"
	"github.com/otherjamesbrown/notewatch/pkg/db"
	"github.com/otherjamesbrown/notewatch/pkg/ledger"
	"github.com/otherjamesbrown/notewatch/pkg/lifecycle"
	"github.com/otherjamesbrown/notewatch/pkg/logging"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
	"github.com/otherjamesbrown/notewatch/pkg/observability"
	"github.com/otherjamesbrown/notewatch/pkg/results"
	"github.com/otherjamesbrown/notewatch/pkg/supervisor"
	"github.com/otherjamesbrown/notewatch/pkg/watch"
)

// Watch command flags.
var (
	watchDryRun         bool
	watchCandidatesFile string
	watchOnce           bool
)

// WatchCmd runs the meeting watch loop.
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the calendar and supervise meeting captures",
	Long: `Watch the calendar for upcoming meetings and supervise capture attempts.

The watch loop polls the calendar, selects at most one eligible meeting per
tick, and drives it through join, admission, recording, and termination.
Terminal outcomes are recorded in the result store and, when Redis is
configured, published to the downstream queue.

Examples:
  # Run against the configured calendar and database
  notewatch watch

  # Dry run with in-memory stores and candidates from a file
  notewatch watch --dry-run --candidates ./meetings.yaml

  # Process a single tick and exit (for cron-style runs)
  notewatch watch --once`,
	RunE: runWatch,
}

func init() {
	WatchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "Use in-memory stores and skip publishing")
	WatchCmd.Flags().StringVar(&watchCandidatesFile, "candidates", "", "YAML file of meeting candidates instead of the calendar")
	WatchCmd.Flags().BoolVar(&watchOnce, "once", false, "Run a single poll tick and exit")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "notewatch")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiKey, err := resolveAPIKey(cfg)
	if err != nil {
		return err
	}

	client, err := lifecycle.NewHTTPClient(lifecycle.Config{
		BaseURL: cfg.Lifecycle.BaseURL,
		APIKey:  apiKey,
		GrantID: cfg.Lifecycle.GrantID,
		BotName: cfg.Lifecycle.BotName,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating lifecycle client: %w", err)
	}

	source, err := buildSource(cfg, apiKey, logger)
	if err != nil {
		return err
	}

	var (
		lg        ledger.Ledger
		recorder  results.Recorder
		publisher *results.Publisher
	)
	if watchDryRun || cfg.Database == nil {
		logger.Info("using in-memory stores")
		lg = ledger.NewMemory()
		recorder = results.NewMemory()
	} else {
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close(pool)

		if _, err := db.RegisterPoolStatsCollector(pool, prometheus.DefaultRegisterer); err != nil {
			logger.Warn("registering pool metrics failed", logging.Err(err))
		}
		lg = ledger.NewPostgres(pool, logger)
		recorder = results.NewPostgres(pool, logger)
	}

	if !watchDryRun && cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		publisher = results.NewPublisher(rdb, logger)
	}

	metrics := observability.DefaultMetrics()
	if cfg.MetricsAddr != "" {
		startMetricsServer(cfg.MetricsAddr, logger)
	}

	watcher := watch.NewWatcher(watch.Options{
		Source:       source,
		Ledger:       lg,
		Recorder:     recorder,
		Client:       client,
		Publisher:    publisher,
		Supervisor:   supervisor.DefaultConfig(),
		Harvest:      supervisor.DefaultHarvestConfig(),
		TickInterval: cfg.TickInterval,
		Lookahead:    cfg.Lookahead,
		Logger:       logger,
		Metrics:      metrics,
		Tracer:       observability.NewTracer(),
	})

	if watchOnce {
		return watcher.RunOnce(ctx)
	}
	return watcher.Run(ctx)
}

// resolveAPIKey prefers the config/env key, then the encrypted store.
func resolveAPIKey(cfg *config.Config) (string, error) {
	if cfg.Lifecycle.APIKey != "" {
		return cfg.Lifecycle.APIKey, nil
	}
	store, err := credentials.NewStore()
	if err != nil {
		return "", fmt.Errorf("opening credential store: %w", err)
	}
	key, err := store.GetActiveAPIKey()
	if err != nil {
		return "", fmt.Errorf("no API key available; run 'notewatch auth login': %w", err)
	}
	return key, nil
}

func buildSource(cfg *config.Config, apiKey string, logger logging.Logger) (watch.EventSource, error) {
	if watchCandidatesFile != "" {
		candidates, err := loadCandidatesFile(watchCandidatesFile)
		if err != nil {
			return nil, err
		}
		logger.Info("using candidates file",
			logging.F("path", watchCandidatesFile),
			logging.F("candidates", len(candidates)))
		return watch.NewStaticSource(candidates...), nil
	}

	return watch.NewCalendarSource(watch.CalendarConfig{
		BaseURL:    cfg.Lifecycle.BaseURL,
		APIKey:     apiKey,
		GrantID:    cfg.Lifecycle.GrantID,
		CalendarID: cfg.Lifecycle.CalendarID,
	}, logger)
}

// candidateFile is the YAML shape of a --candidates file.
type candidateFile struct {
	Meetings []struct {
		EventID       string    `yaml:"event_id"`
		Summary       string    `yaml:"summary"`
		StartAt       time.Time `yaml:"start_at"`
		EndAt         time.Time `yaml:"end_at"`
		ConferenceURL string    `yaml:"conference_url"`
	} `yaml:"meetings"`
}

func loadCandidatesFile(path string) ([]meeting.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading candidates file: %w", err)
	}

	var file candidateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing candidates file: %w", err)
	}

	candidates := make([]meeting.Candidate, 0, len(file.Meetings))
	for _, m := range file.Meetings {
		c := meeting.Candidate{
			EventID:       m.EventID,
			Summary:       m.Summary,
			StartAt:       m.StartAt.UTC(),
			EndAt:         m.EndAt.UTC(),
			ConferenceURL: m.ConferenceURL,
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("candidates file: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func startMetricsServer(addr string, logger logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/buildinfo", buildinfo.Handler("notewatch"))

	go func() {
		logger.Info("metrics server listening", logging.F("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("metrics server stopped", logging.Err(err))
		}
	}()
}
