package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/fishrules/internal/action"
	"github.com/gyaneshwarpardhi/fishrules/internal/api"
	"github.com/gyaneshwarpardhi/fishrules/internal/config"
	"github.com/gyaneshwarpardhi/fishrules/internal/engine"
	"github.com/gyaneshwarpardhi/fishrules/internal/markup"
	"github.com/gyaneshwarpardhi/fishrules/internal/rules"
	"github.com/gyaneshwarpardhi/fishrules/internal/stats"
)

// logMessenger delivers SendMessage output to the log. Hosts that relay
// chat read it from POST /v1/outcomes responses instead.
type logMessenger struct{ logger *slog.Logger }

func (m logMessenger) Send(_ context.Context, msg action.Message) error {
	m.logger.Info("message", "player_id", msg.PlayerID, "player", msg.PlayerName, "rule_id", msg.RuleID, "text", msg.Text)
	return nil
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func openStore(ctx context.Context, s config.Settings) (stats.Store, action.Ledger, error) {
	switch s.Storage.Backend {
	case "redis":
		store, err := stats.NewRedisStore(ctx, stats.RedisOptions{
			Addr:      s.Storage.Redis.Addr,
			Password:  s.Storage.Redis.Password,
			DB:        s.Storage.Redis.DB,
			KeyPrefix: s.Storage.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, stats.NewRedisLedger(store.Client(), s.Storage.Redis.KeyPrefix, s.Dedupe.TTL), nil
	default:
		return stats.NewMemoryStore(), stats.NewMemoryLedger(s.Dedupe.TTL), nil
	}
}

func main() {
	cfgPath := flag.String("config", "configs/rules.yaml", "Path to rules YAML config")
	addr := flag.String("addr", "", "HTTP listen address (overrides settings.server.addr)")
	level := flag.String("log-level", "", "Log level (overrides settings.logging.level)")
	flag.Parse()

	if err := run(*cfgPath, *addr, *level); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath, addr, level string) error {
	// ── Load config ──────────────────────────────────────────────────────────
	var compiler rules.Compiler
	loader, err := config.NewLoader(cfgPath, config.WithCheck(compiler.Check))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := loader.Config()
	settings := cfg.Settings
	if addr != "" {
		settings.Server.Addr = addr
	}
	if level != "" {
		settings.Logging.Level = level
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(settings.Logging.Level)}))
	slog.SetDefault(logger)

	set, err := compiler.For(cfg)
	if err != nil {
		return fmt.Errorf("build rules: %w", err)
	}
	slog.Info("rules loaded", "path", cfgPath, "rules", set.Len(), "version", set.Version())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage ───────────────────────────────────────────────────────────────
	store, ledger, err := openStore(ctx, settings)
	if err != nil {
		return fmt.Errorf("open %s store: %w", settings.Storage.Backend, err)
	}
	defer store.Close()
	slog.Info("counter store ready", "backend", settings.Storage.Backend)

	// ── Engine ────────────────────────────────────────────────────────────────
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	eng := engine.New(workerCtx, set, engine.Options{
		Logger:       logger,
		Store:        store,
		Ledger:       ledger,
		Renderer:     markup.ForMode(settings.Render.Mode, os.Stdout),
		Messenger:    logMessenger{logger: logger},
		Namespace:    settings.Placeholders.Namespace,
		BatchWorkers: settings.Workers.BatchWorkers,
		QueueDepth:   settings.Workers.QueueDepth,
	})

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.RuleConfig) {
		next, err := compiler.For(newCfg)
		if err != nil {
			slog.Warn("hot-reload skipped: rule build failed", "err", err)
			return
		}
		eng.SwapRules(next)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         settings.Server.Addr,
		Handler:      api.New(eng, loader, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	eng.Shutdown()
	slog.Info("goodbye")
	return err
}
