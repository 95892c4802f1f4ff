package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/DoyleJ11/battlezone/internal/ai"
	"github.com/DoyleJ11/battlezone/internal/backend/gormstore"
	"github.com/DoyleJ11/battlezone/internal/backend/realtime"
	"github.com/DoyleJ11/battlezone/internal/config"
	"github.com/DoyleJ11/battlezone/internal/httpapi"
	"github.com/DoyleJ11/battlezone/internal/hub"
	"github.com/DoyleJ11/battlezone/internal/session"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.LogDev)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}

	feed := realtime.NewFeed(16, logger.Named("realtime"))
	opts := gormstore.Options{Logger: logger.Named("store"), StartingBalance: cfg.StartingBalance}
	if cfg.RealtimeSource == config.RealtimeLocal {
		opts.Publisher = feed
	}
	store := gormstore.New(db, opts)
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	if cfg.SeedDemo {
		if err := store.SeedTournaments(ctx, time.Now()); err != nil {
			return err
		}
	}

	auth := gormstore.NewAuth(store, []byte(cfg.AuthSecret))
	h := hub.NewHub(ctx, hub.NewFactory(hub.FactoryDeps{
		Tables:   store,
		Remote:   session.ProcedureRemote{Procs: store},
		Realtime: feed,
		Policy:   cfg.Policy(),
		Logger:   logger.Named("session"),
	}), logger.Named("hub"))

	var completer ai.Completer
	if cfg.AIAPIKey != "" {
		completer = ai.NewOpenAICompleter(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
	}

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Auth:      auth,
			Tables:    store,
			Procs:     store,
			Hub:       h,
			Assistant: ai.NewAssistant(completer, logger.Named("ai")),
			Logger:    logger.Named("http"),
			Admin:     cfg.Admin(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	events, unsubscribe := auth.Events()
	defer unsubscribe()
	g.Go(func() error {
		h.FollowAuth(gctx, events)
		return nil
	})

	if cfg.RealtimeSource == config.RealtimePostgres {
		l := realtime.NewListener(cfg.DatabaseURL, feed, logger.Named("listener"))
		g.Go(func() error { return l.Run(gctx) })
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("mode", cfg.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// the hub stops with ctx and shuts every session down
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL != "" {
		return gormstore.OpenPostgres(cfg.DatabaseURL)
	}
	return gormstore.OpenSQLite(cfg.SQLitePath)
}
