package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lemmy-harvester/internal/api"
	"lemmy-harvester/internal/config"
	"lemmy-harvester/internal/output"
	"lemmy-harvester/internal/store"
	"lemmy-harvester/internal/sync"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Setup logging
	setupLogging(cfg.Logging)

	log.Info().Msg("Starting lemmy-harvester")

	// Open requests audit log and create API client
	audit, err := api.OpenRequestLog(cfg.Output.RequestsPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open requests audit log")
	}
	defer audit.Close()

	limiter := api.NewLimiter(cfg.Sync.RequestInterval())
	client := api.NewClient(cfg.Server.BaseURL, limiter, audit)

	// Handle shutdown gracefully
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	// Verify connection
	site, err := client.GetSite(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Instance check failed")
	}
	log.Info().
		Str("url", cfg.Server.BaseURL).
		Str("site", site.Name).
		Msg("Connected to instance")

	// Resolve configured communities. A community that cannot be resolved
	// now may still appear later, so this is informational only.
	for _, name := range cfg.Communities {
		community, err := client.GetCommunity(ctx, name)
		if err != nil {
			log.Warn().Err(err).Str("community", name).Msg("Could not resolve community")
			continue
		}
		log.Info().
			Str("community", name).
			Str("title", community.Title).
			Msg("Resolved community")
	}

	// Open synced-post store
	st, err := store.Open(cfg.State.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state database")
	}
	defer st.Close()

	// Seed the store from post files written before the sqlite state
	// database existed, so those posts are not fetched again.
	for _, community := range cfg.Communities {
		n, err := st.Count(community)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read state database")
		}
		if n > 0 {
			continue
		}
		legacy := filepath.Join(cfg.Output.Dir, community+".jsonl")
		imported, err := st.ImportLegacy(community, legacy)
		if err != nil {
			log.Fatal().Err(err).Str("community", community).Msg("Failed to import legacy post file")
		}
		if imported > 0 {
			log.Info().
				Str("community", community).
				Int("posts", imported).
				Msg("Imported synced posts from legacy file")
		}
	}

	// Create output router
	router, err := output.NewRouter(cfg.Output.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output router")
	}
	defer router.Close()

	fetcher := sync.NewFetcher(client, cfg.Sync.MaxPage, cfg.Sync.ListLimit)
	engine := sync.NewEngine(fetcher, st, router, cfg.Communities,
		cfg.Sync.Interval(), cfg.Sync.MinimumPostAge())

	if err := engine.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Sync engine failed")
	}

	log.Info().Msg("Daemon stopped")
}

func setupLogging(cfg config.LoggingConfig) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output = os.Stdout
	if cfg.Path != "" {
		file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to open log file, using stdout")
		} else {
			output = file
		}
	}

	// Configure format
	if cfg.Format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}
}
