package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/staybook/internal/config"
	"github.com/hitoshi/staybook/internal/database"
	"github.com/hitoshi/staybook/internal/repository"
)

// storePingTimeout は保存先への接続確認のタイムアウト。
const storePingTimeout = 5 * time.Second

// openKVStore は設定に応じた認証情報の保存先を開く。
// 返すclose関数はプロセス終了時に呼び出すこと。
func openKVStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.KeyValueStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		logger.Warn("session store is in-memory; sessions will not survive a restart")
		return repository.NewMemoryKVStore(), noop, nil

	case config.SessionStorePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Ping(ctx, db, storePingTimeout); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("session store connected",
			slog.String("store", cfg.SessionStore),
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return repository.NewPostgresKVStore(db), db.Close, nil

	case config.SessionStoreRedis:
		client, err := repository.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		logger.Info("session store connected", slog.String("store", cfg.SessionStore))
		return repository.NewRedisKVStore(client), client.Close, nil

	default:
		logger.Info("session store ready",
			slog.String("store", config.SessionStoreFile),
			slog.String("path", cfg.SessionFile),
		)
		return repository.NewFileKVStore(cfg.SessionFile), noop, nil
	}
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
