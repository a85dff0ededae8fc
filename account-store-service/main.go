// The account store service is the system of record the ledger core
// talks to: GET /accounts, GET /accounts/{id}, PATCH /accounts/{id},
// with per-account revisions so writers can detect lost updates.
package main

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AleksandarBuk/go-bank-ledger/config"
	"github.com/AleksandarBuk/go-bank-ledger/ledger"
	"github.com/AleksandarBuk/go-bank-ledger/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	var db backend
	if cfg.DatabaseURL != "" {
		sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		defer sqlDB.Close()
		if err := sqlDB.Ping(); err != nil {
			logger.Fatal("ping database", zap.Error(err))
		}

		pg, err := newPGStore(sqlDB)
		if err != nil {
			logger.Fatal("prepare schema", zap.Error(err))
		}
		db = pg
		logger.Info("accounts backed by postgres")
	} else {
		db = seedMemory()
		logger.Info("no DATABASE_URL set, keeping accounts in memory")
	}

	api := newStoreAPI(db, logger)
	r := mux.NewRouter()
	api.routes(r)

	logger.Info("account store listening", zap.String("addr", cfg.StoreListenAddr))
	if err := http.ListenAndServe(cfg.StoreListenAddr, r); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}

// seedMemory gives a fresh checkout something to bank against.
func seedMemory() *store.Memory {
	return store.NewMemory(
		ledger.Account{ID: "1", Holder: "John Doe", Balance: decimal.NewFromInt(500)},
		ledger.Account{ID: "2", Holder: "Jane Smith", Balance: decimal.NewFromInt(1000)},
	)
}
