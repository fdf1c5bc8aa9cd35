package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParseConnectionString parses a store path with optional query parameters
// on top of the defaults.
//
// Format: /path/to/store.dsk?param1=value1&param2=value2
//
// Supported parameters:
//   - persistent_blocks=N : Persistent buffer pool size in blocks
//   - cache_blocks=N      : Cache buffer pool size in blocks
//   - block_size=N        : Page size in bytes, only used when creating a store
//   - log_level=debug|info|warn|error
//   - log_format=json|console
//   - statement_cache=N   : Parsed statements to keep, 0 disables the cache
//   - metrics_addr=host:port
//   - rewrite_joins=true|false
//   - join=nested_loop|one_pass|multi_pass
//   - group=one_pass|multi_pass
//   - partitions=N        : Hash buckets of multi-pass algorithms
//
// Examples:
//   - "db.dsk"
//   - ":memory:?log_level=debug"
//   - "db.dsk?persistent_blocks=64&join=multi_pass"
func ParseConnectionString(connStr string) (*Config, error) {
	cfg := Default()
	if err := cfg.ApplyConnectionString(connStr); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyConnectionString overrides c with the path and parameters of connStr.
// An empty path keeps the current store path.
func (c *Config) ApplyConnectionString(connStr string) error {
	// Split on first '?' to separate path from query params
	parts := strings.SplitN(connStr, "?", 2)

	if path := strings.TrimSpace(parts[0]); path != "" {
		c.StorePath = path
	}

	if len(parts) == 1 {
		return nil
	}

	queryParams, err := url.ParseQuery(parts[1])
	if err != nil {
		return fmt.Errorf("invalid connection string query parameters: %w", err)
	}

	for name, target := range map[string]*int{
		"persistent_blocks": &c.PersistentBlocks,
		"cache_blocks":      &c.CacheBlocks,
		"block_size":        &c.BlockSize,
		"statement_cache":   &c.StatementCacheSize,
		"partitions":        &c.Partitions,
	} {
		valueStr := queryParams.Get(name)
		if valueStr == "" {
			continue
		}
		value, err := strconv.Atoi(valueStr)
		if err != nil {
			return fmt.Errorf("invalid %s parameter: must be an integer, got %q", name, valueStr)
		}
		if value < 0 {
			return fmt.Errorf("invalid %s parameter: must be non-negative, got %d", name, value)
		}
		*target = value
	}

	if logLevel := queryParams.Get("log_level"); logLevel != "" {
		logLevel = strings.ToLower(logLevel)
		switch logLevel {
		case "debug", "info", "warn", "error":
			c.LogLevel = logLevel
		default:
			return fmt.Errorf("invalid log_level parameter: must be 'debug', 'info', 'warn', or 'error', got %q", logLevel)
		}
	}

	if logFormat := queryParams.Get("log_format"); logFormat != "" {
		c.LogFormat = strings.ToLower(logFormat)
	}

	if metricsAddr := queryParams.Get("metrics_addr"); metricsAddr != "" {
		c.MetricsAddr = metricsAddr
	}

	if rewriteStr := queryParams.Get("rewrite_joins"); rewriteStr != "" {
		rewrite, err := strconv.ParseBool(rewriteStr)
		if err != nil {
			return fmt.Errorf("invalid rewrite_joins parameter: must be 'true' or 'false', got %q", rewriteStr)
		}
		c.RewriteJoins = rewrite
	}

	if join := queryParams.Get("join"); join != "" {
		c.JoinAlgorithm = strings.ToLower(join)
	}
	if group := queryParams.Get("group"); group != "" {
		c.GroupAlgorithm = strings.ToLower(group)
	}

	return nil
}
