package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/minirel"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "minirel.ini")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	config := Default()
	require.NoError(t, config.Validate())

	assert.Equal(t, "db.dsk", config.StorePath)
	assert.Equal(t, 4096, config.BlockSize)
	assert.Equal(t, 500, config.PersistentBlocks)
	assert.Equal(t, 500, config.CacheBlocks)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, "console", config.LogFormat)
	assert.Empty(t, config.MetricsAddr)
	assert.Equal(t, 1000, config.StatementCacheSize)
	assert.Equal(t, 500*4096, config.StoreSize())
	assert.False(t, config.InMemory())

	optimizerOptions, err := config.OptimizerOptions()
	require.NoError(t, err)
	assert.Equal(t, minirel.DefaultOptimizerOptions(), optimizerOptions)
	assert.Equal(t, minirel.OperatorOptions{Partitions: minirel.DefaultPartitions}, config.OperatorOptions())
}

func TestLoad(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		Name        string
		Contents    string
		Expected    *Config
		ErrContains string
	}{
		{
			"Empty file keeps defaults",
			"",
			Default(),
			"",
		},
		{
			"Every section",
			`
[store]
path = /var/lib/minirel/db.dsk
block_size = 8192

[buffer]
persistent_blocks = 100
cache_blocks = 200

[log]
level = debug
format = json

[metrics]
addr = :9090

[parser]
statement_cache = 10

[planner]
rewrite_joins = true
join = one_pass
group = multi_pass
partitions = 16
`,
			&Config{
				StorePath:          "/var/lib/minirel/db.dsk",
				BlockSize:          8192,
				PersistentBlocks:   100,
				CacheBlocks:        200,
				LogLevel:           "debug",
				LogFormat:          "json",
				MetricsAddr:        ":9090",
				StatementCacheSize: 10,
				RewriteJoins:       true,
				JoinAlgorithm:      "one_pass",
				GroupAlgorithm:     "multi_pass",
				Partitions:         16,
			},
			"",
		},
		{
			"Missing keys keep defaults",
			"[buffer]\ncache_blocks = 7\n",
			withDefaults(func(c *Config) {
				c.CacheBlocks = 7
			}),
			"",
		},
		{
			"Integer key must be an integer",
			"[buffer]\ncache_blocks = lots\n",
			nil,
			"buffer.cache_blocks must be an integer",
		},
		{
			"Boolean key must be a boolean",
			"[planner]\nrewrite_joins = perhaps\n",
			nil,
			"planner.rewrite_joins",
		},
		{
			"Unknown log format",
			"[log]\nformat = xml\n",
			nil,
			"log format",
		},
		{
			"Unknown group algorithm",
			"[planner]\ngroup = nested_loop\n",
			nil,
			"unknown group algorithm",
		},
	}

	for _, aTestCase := range testCases {
		t.Run(aTestCase.Name, func(t *testing.T) {
			config, err := Load(writeConfig(t, aTestCase.Contents))
			if aTestCase.ErrContains != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), aTestCase.ErrContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, aTestCase.Expected, config)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config")
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "WARN")

	config := Default()
	config.ApplyEnv()

	assert.Equal(t, "warn", config.LogLevel)
	assert.Equal(t, zap.WarnLevel, config.ZapLevel().Level())
}

func TestConfig_ZapLevel(t *testing.T) {
	t.Parallel()

	config := withDefaults(func(c *Config) {
		c.LogLevel = "error"
	})
	assert.Equal(t, zap.ErrorLevel, config.ZapLevel().Level())

	config.LogLevel = "loud"
	assert.Equal(t, zap.InfoLevel, config.ZapLevel().Level())
	assert.ErrorIs(t, config.Validate(), ErrInvalidConfig)
}
