package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/AleksandarBuk/go-bank-ledger/config"
	"github.com/AleksandarBuk/go-bank-ledger/events"
	"github.com/AleksandarBuk/go-bank-ledger/session"
	"github.com/AleksandarBuk/go-bank-ledger/store"
	"github.com/AleksandarBuk/go-bank-ledger/transfer"
)

const reconcileInterval = 30 * time.Second

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	st := store.NewClient(cfg.StoreURL, nil)
	journal := transfer.NewMemoryJournal()
	coord := transfer.NewCoordinator(st, journal, logger)

	var pub events.Publisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Fatal("connect nats", zap.String("url", cfg.NATSURL), zap.Error(err))
		}
		defer nc.Close()
		pub = events.NewNATSPublisher(nc)
		logger.Info("transaction events enabled", zap.String("subject", events.Subject))
	}

	mgr := session.NewManager(st, coord, pub, logger)

	// heal any transfer left with the receiver credited but the
	// sender not yet debited; the loop stops with the service
	go transfer.NewReconciler(st, journal, logger).Loop(ctx, reconcileInterval)

	api := newAPI(mgr, cfg.PageSize, logger)
	r := mux.NewRouter()
	api.routes(r)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("ledger service listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("store", cfg.StoreURL))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
	logger.Info("ledger service stopped")
}
