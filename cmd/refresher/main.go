/*
Package main implements the cache refresher daemon.

The refresher loads the YAML configuration, builds one cache controller per
configured vendor and extends every configured job's cache entry up to the
present on the configured cron schedule. Job failures are logged and retried
on the next tick; they never stop the daemon.

Usage:

	go run ./cmd/refresher -config=marketdata.yaml -run-on-start

The daemon runs until it receives SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"marketdata/internal/app"
	"marketdata/internal/config"
	"marketdata/internal/refresh"

	"github.com/rs/zerolog/log"
)

// Command-line flags for configuring the refresher
var (
	// configPath points at the YAML configuration file
	configPath = flag.String("config", config.DefaultPath, "Path to the YAML configuration")
	// runOnStart refreshes every job once before the first scheduled tick
	runOnStart = flag.Bool("run-on-start", false, "Refresh all jobs immediately on startup")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := app.SetupLogging(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		log.Fatal().Err(err).Msg("invalid log configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build components")
	}

	// Outcomes are fanned out so failures can be reported separately from
	// the per-job logs.
	dispatcher := refresh.NewDispatcher(refresh.DispatcherConfig{})
	if err := dispatcher.StartDispatching(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start dispatcher")
	}
	failures, err := dispatcher.Subscribe()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to updates")
	}
	go reportFailures(failures)

	refresher, err := a.Refresher(dispatcher)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create refresher")
	}

	if *runOnStart {
		refresher.RunOnce(ctx)
	}

	refresher.Start()
	log.Info().
		Str("config", *configPath).
		Str("cache_dir", cfg.CacheDir).
		Str("schedule", cfg.Refresh.Cron).
		Int("jobs", len(cfg.Refresh.Jobs)).
		Msg("refresher running")

	<-ctx.Done()
	log.Info().Msg("initiating graceful shutdown")
	refresher.Stop()
}

// reportFailures logs every failed refresh until the dispatcher shuts down.
func reportFailures(sub *refresh.Subscriber) {
	for u := range sub.Updates() {
		if u.Err != nil {
			log.Warn().Err(u.Err).Str("job", u.Job.String()).Time("run_at", u.RunAt).Msg("job will be retried on the next tick")
		}
	}
}
