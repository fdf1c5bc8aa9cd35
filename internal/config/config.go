package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"

	"github.com/RichardKnop/minirel/internal/minirel"
	"github.com/RichardKnop/minirel/internal/pkg/logging"
	"github.com/RichardKnop/minirel/internal/storage"
)

const (
	DefaultStorePath          = "db.dsk"
	DefaultPersistentBlocks   = 500
	DefaultCacheBlocks        = 500
	DefaultLogLevel           = "info"
	DefaultStatementCacheSize = minirel.DefaultMaxCachedStatements

	// EnvLogLevel overrides the configured log level when set.
	EnvLogLevel = "LOG_LEVEL"

	minBlockSize = 512
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds every knob of the engine. Values come from Default, then an
// optional INI file, then connection string parameters, then the environment.
type Config struct {
	StorePath string
	BlockSize int

	PersistentBlocks int
	CacheBlocks      int

	LogLevel  string
	LogFormat string

	// MetricsAddr is the listen address of the /metrics endpoint, empty
	// disables it.
	MetricsAddr string

	StatementCacheSize int

	RewriteJoins   bool
	JoinAlgorithm  string
	GroupAlgorithm string
	Partitions     int
}

func Default() *Config {
	return &Config{
		StorePath:          DefaultStorePath,
		BlockSize:          storage.DefaultBlockSize,
		PersistentBlocks:   DefaultPersistentBlocks,
		CacheBlocks:        DefaultCacheBlocks,
		LogLevel:           DefaultLogLevel,
		LogFormat:          logging.FormatConsole,
		StatementCacheSize: DefaultStatementCacheSize,
		JoinAlgorithm:      minirel.NestedLoopJoin.String(),
		GroupAlgorithm:     minirel.OnePassGroup.String(),
		Partitions:         minirel.DefaultPartitions,
	}
}

// Load reads an INI file on top of the defaults. Keys missing from the file
// keep their default values.
//
//	[store]
//	path = db.dsk
//	block_size = 4096
//
//	[buffer]
//	persistent_blocks = 500
//	cache_blocks = 500
//
//	[log]
//	level = info
//	format = console
//
//	[metrics]
//	addr = :9090
//
//	[parser]
//	statement_cache = 1000
//
//	[planner]
//	rewrite_joins = false
//	join = nested_loop
//	group = one_pass
//	partitions = 8
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config %s: %w", path, err)
	}

	if err := cfg.apply(f); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) apply(f *ini.File) error {
	store := f.Section("store")
	c.StorePath = store.Key("path").MustString(c.StorePath)
	if err := intKey(store, "block_size", &c.BlockSize); err != nil {
		return err
	}

	buffer := f.Section("buffer")
	if err := intKey(buffer, "persistent_blocks", &c.PersistentBlocks); err != nil {
		return err
	}
	if err := intKey(buffer, "cache_blocks", &c.CacheBlocks); err != nil {
		return err
	}

	log := f.Section("log")
	c.LogLevel = log.Key("level").MustString(c.LogLevel)
	c.LogFormat = log.Key("format").MustString(c.LogFormat)

	c.MetricsAddr = f.Section("metrics").Key("addr").MustString(c.MetricsAddr)

	if err := intKey(f.Section("parser"), "statement_cache", &c.StatementCacheSize); err != nil {
		return err
	}

	planner := f.Section("planner")
	if planner.HasKey("rewrite_joins") {
		rewrite, err := planner.Key("rewrite_joins").Bool()
		if err != nil {
			return fmt.Errorf("%w: planner.rewrite_joins must be 'true' or 'false', got %q", ErrInvalidConfig, planner.Key("rewrite_joins").String())
		}
		c.RewriteJoins = rewrite
	}
	c.JoinAlgorithm = planner.Key("join").MustString(c.JoinAlgorithm)
	c.GroupAlgorithm = planner.Key("group").MustString(c.GroupAlgorithm)

	return intKey(planner, "partitions", &c.Partitions)
}

func intKey(section *ini.Section, name string, target *int) error {
	if !section.HasKey(name) {
		return nil
	}
	value, err := section.Key(name).Int()
	if err != nil {
		return fmt.Errorf("%w: %s.%s must be an integer, got %q", ErrInvalidConfig, section.Name(), name, section.Key(name).String())
	}
	*target = value
	return nil
}

// ApplyEnv lets LOG_LEVEL win over every other source.
func (c *Config) ApplyEnv() {
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = strings.ToLower(level)
	}
}

func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("%w: store path is empty", ErrInvalidConfig)
	}
	if c.BlockSize < minBlockSize {
		return fmt.Errorf("%w: block size must be at least %d, got %d", ErrInvalidConfig, minBlockSize, c.BlockSize)
	}
	if c.PersistentBlocks < 1 || c.CacheBlocks < 1 {
		return fmt.Errorf("%w: buffer pools need at least one block each, got persistent=%d cache=%d", ErrInvalidConfig, c.PersistentBlocks, c.CacheBlocks)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch c.LogFormat {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("%w: log format must be '%s' or '%s', got %q", ErrInvalidConfig, logging.FormatJSON, logging.FormatConsole, c.LogFormat)
	}
	if c.StatementCacheSize < 0 {
		return fmt.Errorf("%w: statement cache must be non-negative, got %d", ErrInvalidConfig, c.StatementCacheSize)
	}
	if c.Partitions < 1 {
		return fmt.Errorf("%w: partitions must be positive, got %d", ErrInvalidConfig, c.Partitions)
	}
	if _, err := c.OptimizerOptions(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// StoreSize is the number of bytes preallocated when the store is created,
// enough to hold every persistent buffer block.
func (c *Config) StoreSize() int {
	return c.PersistentBlocks * c.BlockSize
}

func (c *Config) InMemory() bool {
	return c.StorePath == storage.MemoryPath
}

func (c *Config) OptimizerOptions() (minirel.OptimizerOptions, error) {
	join, err := minirel.ParseJoinImpl(c.JoinAlgorithm)
	if err != nil {
		return minirel.OptimizerOptions{}, err
	}
	group, err := minirel.ParseGroupImpl(c.GroupAlgorithm)
	if err != nil {
		return minirel.OptimizerOptions{}, err
	}
	return minirel.OptimizerOptions{
		RewriteJoins: c.RewriteJoins,
		Join:         join,
		Group:        group,
	}, nil
}

func (c *Config) OperatorOptions() minirel.OperatorOptions {
	return minirel.OperatorOptions{Partitions: c.Partitions}
}

// ZapLevel falls back to info for a level Validate would reject.
func (c *Config) ZapLevel() zap.AtomicLevel {
	l, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zap.NewAtomicLevelAt(l)
}
