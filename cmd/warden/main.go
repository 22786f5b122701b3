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
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/judge"
	"github.com/wardenhq/warden/internal/learner"
	"github.com/wardenhq/warden/internal/llm"
	"github.com/wardenhq/warden/internal/proxy"
	"github.com/wardenhq/warden/internal/rulebook"
	"github.com/wardenhq/warden/internal/server"
)

const auditQueueSize = 1024

func main() {
	configPath := flag.String("config", "", "path to config file (yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not configured yet; plain stderr is all we have.
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogger(cfg.Observability)

	log.Info().Msg("starting warden")

	ctx, cancel := setupSignalHandler()
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}

	log.Info().Msg("warden stopped successfully")
}

func run(ctx context.Context, cfg *config.Config) error {
	eventStore, err := initEventStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := eventStore.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event store")
		}
	}()

	recorder := events.NewRecorder(eventStore, auditQueueSize)
	defer recorder.Close()

	rules, err := initRulebook(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := rules.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close rulebook watcher")
		}
	}()

	verdictCache := initCache(cfg.Cache)
	if verdictCache != nil {
		defer func() {
			if err := verdictCache.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close verdict cache")
			}
		}()
	}

	gateway := initGateway(ctx, cfg.LLM)

	j := judge.New(gateway, rules, verdictCache, recorder, cfg.Cache.TTL())

	if cfg.Learner.Enabled {
		l, err := initLearner(gateway, eventStore, rules, cfg)
		if err != nil {
			return err
		}
		defer l.Stop()
	} else {
		log.Info().Msg("learner disabled")
	}

	health := server.NewHealthTracker(gateway, rules)
	health.Start()
	defer health.Stop()

	forwarder, err := proxy.NewForwarder(cfg.WAF.UpstreamURL, cfg.WAF.RequestTimeout())
	if err != nil {
		return err
	}
	handler := proxy.NewHandler(j, forwarder, cfg.WAF.MaxBodyBytes)

	srv := server.New(server.Config{
		ListenAddr:      cfg.WAF.ListenAddr,
		MetricsEnabled:  cfg.Observability.MetricsEnabled,
		ShutdownTimeout: 10 * time.Second,
	}, handler, health, j, eventStore)

	return runServer(ctx, srv)
}

func setupLogger(cfg config.ObservabilityConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if cfg.LogFile != "" {
		log.Logger = log.Output(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	return ctx, cancel
}

func initEventStore(cfg config.StorageConfig) (events.Store, error) {
	log.Info().Str("path", cfg.LogDBPath).Msg("initializing event store")

	store, err := events.NewSQLiteStore(cfg.LogDBPath)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("event store initialized")
	return store, nil
}

func initRulebook(cfg config.StorageConfig) (*rulebook.Store, error) {
	log.Info().Str("path", cfg.RulebookPath).Msg("initializing rulebook store")

	store, err := rulebook.NewStore(cfg.RulebookPath)
	if err != nil {
		return nil, err
	}
	if err := store.Load(); err != nil {
		return nil, err
	}
	if err := store.Watch(); err != nil {
		return nil, err
	}

	log.Info().Int64("version", store.Snapshot().Version).Msg("rulebook store initialized")
	return store, nil
}

// initCache returns nil when the cache is disabled or unreachable; the
// Judge treats a nil cache as a permanent miss.
func initCache(cfg config.CacheConfig) cache.VerdictCache {
	if !cfg.Enabled {
		log.Info().Msg("verdict cache disabled")
		return nil
	}

	log.Info().Str("url", cfg.URL).Msg("initializing verdict cache")

	c, err := cache.NewRedis(cfg.URL, cfg.TTL())
	if err != nil {
		log.Warn().Err(err).Msg("verdict cache unavailable, continuing without it")
		return nil
	}

	log.Info().Msg("verdict cache initialized")
	return c
}

func initGateway(ctx context.Context, cfg config.LLMConfig) llm.Gateway {
	log.Info().
		Str("base_url", cfg.BaseURL).
		Str("model", cfg.Model).
		Msg("initializing llm gateway")

	gateway := llm.NewOpenAI(cfg)

	// Startup check is advisory: an unreachable backend means fail-open
	// judging until it comes back, not a refusal to start.
	if err := gateway.HealthCheck(ctx); err != nil {
		log.Warn().Err(err).Msg("llm backend not reachable at startup")
	}

	return gateway
}

func initLearner(gateway llm.Gateway, store events.Store, rules *rulebook.Store, cfg *config.Config) (*learner.Learner, error) {
	markerPath := filepath.Join(filepath.Dir(cfg.Storage.RulebookPath), "learner_last_run")

	l, err := learner.New(gateway, store, rules, learner.Options{
		MarkerPath: markerPath,
		MinFlagged: cfg.Learner.MinFlaggedRequests,
	})
	if err != nil {
		return nil, err
	}
	if err := l.Start(cfg.Learner.BatchInterval()); err != nil {
		return nil, err
	}

	log.Info().
		Dur("interval", cfg.Learner.BatchInterval()).
		Int("min_flagged", cfg.Learner.MinFlaggedRequests).
		Msg("learner initialized")
	return l, nil
}

func runServer(ctx context.Context, srv *server.Server) error {
	errChan := make(chan error, 1)

	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}
