package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/ledger"
	"github.com/nfrund/relay/internal/ledger/cached"
	"github.com/nfrund/relay/internal/ledger/file"
	"github.com/nfrund/relay/internal/ledger/memory"
	"github.com/nfrund/relay/internal/ledger/postgres"
	"github.com/nfrund/relay/internal/ledger/redis"
	"github.com/nfrund/relay/internal/ledger/sqlite"
	"github.com/nfrund/relay/internal/ledger/surreal"
)

// surrealTable holds chat messages in SurrealDB.
const surrealTable = "messages"

// OpenLedger opens the backend selected by cfg.LedgerDriver and wraps it in
// a history cache when cfg.LedgerCacheSize is positive.
func OpenLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ledger.Ledger, error) {
	var (
		l   ledger.Ledger
		err error
	)

	switch cfg.LedgerDriver {
	case config.DriverMemory:
		l = memory.New(nil)
	case config.DriverSQLite:
		l, err = sqlite.Open(ctx, cfg.LedgerDSN, nil)
	case config.DriverPostgres:
		l, err = postgres.Open(ctx, cfg.LedgerDSN, nil)
	case config.DriverSurreal:
		l, err = surreal.Open(ctx, surreal.Config{
			URL:       cfg.SurrealURL,
			Namespace: cfg.SurrealNS,
			Database:  cfg.SurrealDB,
			Username:  cfg.SurrealUser,
			Password:  cfg.SurrealPass,
			Table:     surrealTable,
		}, nil)
	case config.DriverRedis:
		l, err = redis.Open(ctx, cfg.RedisURL, cfg.RedisStream, nil)
	case config.DriverFile:
		l, err = file.Open(afero.NewOsFs(), cfg.LedgerDSN, nil)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.LedgerDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", cfg.LedgerDriver, err)
	}

	logger.Info("Message ledger opened", "driver", cfg.LedgerDriver, "cache_size", cfg.LedgerCacheSize)

	if cfg.LedgerCacheSize <= 0 {
		return l, nil
	}
	c, err := cached.New(l, cfg.LedgerCacheSize)
	if err != nil {
		l.Close()
		return nil, err
	}
	return c, nil
}
