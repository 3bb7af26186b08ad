package main

import (
	"context"
	"fmt"
	"time"

	"github.com/huiputin/routemap/internal/changefeed"
	"github.com/huiputin/routemap/internal/config"
	"github.com/huiputin/routemap/internal/storage"
	"github.com/huiputin/routemap/internal/storage/memory"
	"github.com/huiputin/routemap/internal/storage/postgres"
	sqlitestorage "github.com/huiputin/routemap/internal/storage/sqlite"

	"github.com/redis/go-redis/v9"
)

// initStorage creates and initializes the configured storage backend.
func initStorage() error {
	storageCfg := config.GetStorageConfig()
	Logger.Info("Initializing storage backend", "type", storageCfg.Type)

	backend, err := createStorageBackend(storageCfg)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to init storage backend %s: %w", storageCfg.Type, err)
	}

	Store = backend
	Logger.Info("Storage backend ready", "type", storageCfg.Type)
	return nil
}

// createStorageBackend builds the backend named by storageCfg.Type without
// initializing it. The SQL backends share change notifications over redis when
// redis.enabled is set.
func createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		feed, err := sharedFeed()
		if err != nil {
			return nil, err
		}
		return postgres.New(postgres.Dependencies{
			Feed:       feed,
			LogManager: SlogManager,
		}), nil
	case "sqlite":
		feed, err := sharedFeed()
		if err != nil {
			return nil, err
		}
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.DumpPath,
		}, feed, SlogManager)
	case "memory", "":
		return memory.New(storageCfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// sharedFeed returns the redis change feed when enabled and nil otherwise, in
// which case the backend falls back to an in-process feed.
func sharedFeed() (changefeed.Feed, error) {
	redisCfg := config.GetRedisConfig()
	if !redisCfg.Enabled {
		return nil, nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", redisCfg.Addr, err)
	}

	Logger.Info("Using redis change feed", "addr", redisCfg.Addr)
	return changefeed.NewRedis(rc, Logger), nil
}
