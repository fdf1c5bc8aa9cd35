// Package engine wires a store, its buffer pools, the heap catalog and the
// statement driver together from a config.
package engine

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/buffer"
	"github.com/RichardKnop/minirel/internal/config"
	"github.com/RichardKnop/minirel/internal/heap"
	"github.com/RichardKnop/minirel/internal/minirel"
	"github.com/RichardKnop/minirel/internal/parser"
	"github.com/RichardKnop/minirel/internal/storage"
)

type Engine struct {
	Database *minirel.Database
	Buffer   *buffer.Manager
	logger   *zap.Logger
}

// Open mounts the configured store, creating it first when needed. A nil
// registerer leaves the buffer pool metrics unregistered.
func Open(cfg *config.Config, logger *zap.Logger, registerer prometheus.Registerer) (*Engine, error) {
	optimizerOptions, err := cfg.OptimizerOptions()
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if cfg.InMemory() {
		store = storage.NewMemStore(cfg.BlockSize)
	} else {
		store, err = storage.Open(cfg.StorePath, cfg.StoreSize(), cfg.BlockSize)
		if err != nil {
			return nil, err
		}
	}

	buf, err := buffer.New(logger, store, buffer.Options{
		PersistentBlocks: cfg.PersistentBlocks,
		CacheBlocks:      cfg.CacheBlocks,
		Registerer:       registerer,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	catalog := heap.New(logger, buf)
	aDatabase := minirel.NewDatabase(
		logger,
		parser.New(logger),
		catalog,
		minirel.NewHeapOperators(logger, catalog, cfg.OperatorOptions()),
		minirel.WithMaxCachedStatements(cfg.StatementCacheSize),
		minirel.WithOptimizer(optimizerOptions),
	)

	logger.Sugar().With(
		"store", cfg.StorePath,
		"persistent_blocks", cfg.PersistentBlocks,
		"cache_blocks", cfg.CacheBlocks,
	).Debug("opened engine")

	return &Engine{
		Database: aDatabase,
		Buffer:   buf,
		logger:   logger,
	}, nil
}

// Close flushes both buffer pools and unmounts the store.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.Buffer.Shutdown(ctx); err != nil {
		return fmt.Errorf("error closing engine: %w", err)
	}
	e.logger.Debug("closed engine")
	return nil
}
