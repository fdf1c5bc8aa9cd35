package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/RichardKnop/minirel/internal/config"
	"github.com/RichardKnop/minirel/internal/engine"
	"github.com/RichardKnop/minirel/internal/pkg/logging"
)

var (
	connString = flag.String("db", config.DefaultStorePath, "store path with optional parameters")
	numUsers   = flag.Int("users", 100, "number of users to insert")
	numOrders  = flag.Int("orders", 500, "number of orders to insert")
	seed       = flag.Int64("seed", 0, "random seed, 0 uses the current time")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "add-test-data: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.ParseConnectionString(*connString)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() // flushes buffer, if any

	anEngine, err := engine.Open(cfg, logger, nil)
	if err != nil {
		return err
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	aSeeder := newSeeder(anEngine.Database, gofakeit.New(uint64(*seed)), logger)
	seedErr := aSeeder.seed(ctx, *numUsers, *numOrders)

	if err := anEngine.Close(ctx); err != nil {
		return err
	}
	return seedErr
}
