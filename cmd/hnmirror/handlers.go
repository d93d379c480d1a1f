package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/hnmirror/internal/config"
	"github.com/elonfeng/hnmirror/internal/mirror"
	"github.com/elonfeng/hnmirror/internal/scheduler"
	"github.com/elonfeng/hnmirror/internal/store"
	"github.com/elonfeng/hnmirror/internal/telemetry"
	"github.com/elonfeng/hnmirror/pkg/alert"
	"github.com/elonfeng/hnmirror/pkg/feed"
	"github.com/elonfeng/hnmirror/pkg/hn"
	"github.com/elonfeng/hnmirror/pkg/server"
	"github.com/elonfeng/hnmirror/pkg/trend"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func buildClient(cfg *config.Config) *hn.Client {
	return hn.New(
		hn.WithBaseURL(cfg.HN.BaseURL),
		hn.WithTimeout(cfg.HN.ParseTimeout()),
		hn.WithConcurrency(cfg.HN.Concurrency),
		hn.WithRetries(int(cfg.HN.Retries)),
	)
}

func buildSteps(cfg *config.Config, client *hn.Client, db *store.SQLiteStore) []scheduler.Step {
	return []scheduler.Step{
		mirror.NewListSync(client, db, mirror.WithWindow(cfg.Sync.Window)),
		mirror.NewBackfill(client, db, cfg.Sync.BackfillBatch),
		mirror.NewUpdatePoll(client, db),
	}
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier
	timeout := cfg.HN.ParseTimeout()

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL, timeout))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL, timeout))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret, timeout))
	}

	return alert.NewManager(notifiers)
}

// buildMetrics returns nil metrics and a nil handler when metrics are disabled.
func buildMetrics(cfg *config.Config) (*telemetry.SyncMetrics, http.Handler, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Metrics.Enabled {
		return nil, nil, noop, nil
	}

	mp, handler, err := telemetry.NewPrometheusProvider()
	if err != nil {
		return nil, nil, noop, err
	}
	metrics, err := telemetry.NewSyncMetrics(mp)
	if err != nil {
		return nil, nil, noop, fmt.Errorf("create sync metrics: %w", err)
	}
	return metrics, handler, mp.Shutdown, nil
}

func buildServer(cfg *config.Config, db *store.SQLiteStore, port int, metricsHandler http.Handler) *server.Server {
	if port != 0 {
		cfg.Server.Port = port
	}
	var opts []server.Option
	if metricsHandler != nil {
		opts = append(opts, server.WithMetricsHandler(metricsHandler))
	}
	return server.New(db, trend.NewEngine(db, trend.DefaultLookback), cfg.Server.Addr(), opts...)
}

func runSync(ctx context.Context, only string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	steps := buildSteps(cfg, buildClient(cfg), db)
	if only != "" {
		var selected []scheduler.Step
		for _, s := range steps {
			if s.Name() == only {
				selected = append(selected, s)
			}
		}
		if len(selected) == 0 {
			return fmt.Errorf("unknown sync step %q", only)
		}
		steps = selected
	}

	sched := scheduler.New(steps, cfg.Schedule.ParseInterval(), scheduler.WithAlerts(buildAlertManager(cfg)))

	var errs []error
	for _, res := range sched.RunCycle(ctx) {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Step, res.Err))
			continue
		}
		fmt.Fprintf(os.Stderr, "%s: %d items, %d rank records (%s)\n",
			res.Step, res.Stats.Items, res.Stats.RankRecords, res.Duration.Round(time.Millisecond))
	}
	return errors.Join(errs...)
}

func runServe(ctx context.Context, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	_, metricsHandler, shutdown, err := buildMetrics(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	return buildServer(cfg, db, port, metricsHandler).ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics, metricsHandler, shutdown, err := buildMetrics(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	sched := scheduler.New(
		buildSteps(cfg, buildClient(cfg), db),
		cfg.Schedule.ParseInterval(),
		scheduler.WithMetrics(metrics),
		scheduler.WithAlerts(buildAlertManager(cfg)),
	)
	srv := buildServer(cfg, db, port, metricsHandler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := sched.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	err = g.Wait()
	slog.Info("shut down")
	return err
}

type statsReport struct {
	BackfillCursor int64                 `json:"backfill_cursor"`
	MaxItemID      int64                 `json:"max_item_id,omitempty"`
	Items          map[feed.Kind]int     `json:"items"`
	Lists          map[feed.Category]int `json:"lists"`
}

func runStats(ctx context.Context, jsonOutput, remote bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	report := statsReport{Lists: make(map[feed.Category]int)}

	if report.BackfillCursor, err = mirror.Cursor(ctx, db); err != nil {
		return fmt.Errorf("read backfill cursor: %w", err)
	}
	if report.Items, err = db.CountItemsByKind(ctx); err != nil {
		return err
	}
	for _, c := range feed.AllCategories() {
		snap, err := db.LoadList(ctx, c)
		if err != nil {
			return err
		}
		if snap != nil {
			report.Lists[c] = len(snap.IDs)
		}
	}
	if remote {
		maxID, err := buildClient(cfg).MaxItemID(ctx)
		if err != nil {
			slog.Warn("could not fetch max item id", "error", err)
		}
		report.MaxItemID = maxID
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "backfill cursor\t%d\n", report.BackfillCursor)
	if report.MaxItemID > 0 {
		pct := float64(report.BackfillCursor) / float64(report.MaxItemID) * 100
		fmt.Fprintf(w, "max item id\t%d\t(%.2f%% backfilled)\n", report.MaxItemID, pct)
	}
	for _, k := range []feed.Kind{feed.KindStory, feed.KindComment, feed.KindJob} {
		fmt.Fprintf(w, "%s items\t%d\n", k, report.Items[k])
	}
	for _, c := range feed.AllCategories() {
		fmt.Fprintf(w, "%s list\t%d\n", c, report.Lists[c])
	}
	return w.Flush()
}
