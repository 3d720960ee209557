package opts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaults(t *testing.T) {
	c := NewConfig()
	assert.Equal(t, int64(DefaultRowCount), c.RowCount)
	assert.Equal(t, int64(DefaultScanRange), c.ScanRange)
	assert.Equal(t, DefaultScanCache, c.ScanCache)
	assert.Equal(t, DefaultRunTimes, c.RunTimes)
	assert.Equal(t, DefaultExecutionTimeMs, c.ExecutionTime)
	assert.Equal(t, DefaultToolTable, c.ToolTable)
	assert.Equal(t, UnsetScanCount, c.ScanCount)
	assert.Equal(t, time.Second, c.MeterInterval)
	assert.True(t, c.IsTimed())
	assert.NoError(t, c.Validate(nil))
}

func TestBatchSizeIsDerived(t *testing.T) {
	c := NewConfig()
	c.RowCount = 100
	assert.Equal(t, int64(10), c.BatchSize())
	c.RowCount = 55
	assert.Equal(t, int64(5), c.BatchSize())
	c.RowCount = 7
	assert.Equal(t, int64(1), c.BatchSize())
}

func TestScanCountIsDerived(t *testing.T) {
	c := NewConfig()
	c.RowCount, c.ScanRange = 1000, 100
	assert.Equal(t, 10, c.ScanCountValue())
	c.ScanRange = 300
	assert.Equal(t, 3, c.ScanCountValue())
	c.ScanCount = 42
	assert.Equal(t, 42, c.ScanCountValue())
}

func TestZeroDerivedScanCountWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := NewConfig()
	c.RowCount, c.ScanRange = 50, 100
	assert.NoError(t, c.Validate(zap.New(core)))
	assert.Equal(t, 0, c.ScanCountValue())
	assert.Equal(t, 1, logs.Len())
}

func TestRowLengthRange(t *testing.T) {
	c := NewConfig()
	minLen, maxLen := c.RowLengthRange()
	assert.Equal(t, DefaultRowLength[0], minLen)
	assert.Equal(t, DefaultRowLength[1], maxLen)

	c.RowLength = []int{32}
	minLen, maxLen = c.RowLengthRange()
	assert.Equal(t, 32, minLen)
	assert.Equal(t, 32, maxLen)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"exec type", func(c *Config) { c.ExecType = "forever" }},
		{"exec time", func(c *Config) { c.ExecutionTime = 0 }},
		{"run times", func(c *Config) { c.RunTimes = 0 }},
		{"row count", func(c *Config) { c.RowCount = -1 }},
		{"scan range", func(c *Config) { c.ScanRange = 0 }},
		{"scan cache", func(c *Config) { c.ScanCache = 0 }},
		{"scan count", func(c *Config) { c.ScanCount = -2 }},
		{"row length order", func(c *Config) { c.RowLength = []int{10, 5} }},
		{"row length arity", func(c *Config) { c.RowLength = []int{1, 2, 3} }},
		{"engine", func(c *Config) { c.DbEngine = "leveldb" }},
		{"diskless rocksdb", func(c *Config) { c.DbEngine, c.DisklessMode = "rocksdb", true }},
		{"missing ini", func(c *Config) { c.DbEngineIni = "/nonexistent/kvbench.ini" }},
		{"statsd addr", func(c *Config) { c.StatsdAddr = "localhost" }},
		{"report format", func(c *Config) { c.ReportFormat = "xml" }},
		{"log level", func(c *Config) { c.LogLevel = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig()
			tt.modify(c)
			err := c.Validate(nil)
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestCountModeIgnoresExecTime(t *testing.T) {
	c := NewConfig()
	c.ExecType, c.ExecutionTime = ExecCount, 0
	assert.NoError(t, c.Validate(nil))
	assert.False(t, c.IsTimed())
}

func TestLoadConfigFile(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "kvbench.yaml")
	content := "workload: random-scan\nrow-count: 2000\nscan-range: 50\nrow-length: [16, 32]\nmeter-interval: 250ms\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0644))

	c, err := Load(viper.New(), cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "random-scan", c.Workload)
	assert.Equal(t, int64(2000), c.RowCount)
	assert.Equal(t, 40, c.ScanCountValue())
	assert.Equal(t, []int{16, 32}, c.RowLength)
	assert.Equal(t, 250*time.Millisecond, c.MeterInterval)
	assert.Equal(t, DefaultToolTable, c.ToolTable)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("KVBENCH_RUN_TIMES", "3")
	c, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, c.RunTimes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), "/nonexistent/kvbench.yaml")
	assert.Error(t, err)
}

func TestBadMeterInterval(t *testing.T) {
	v := viper.New()
	v.Set("meter-interval", "soon")
	_, err := Load(v, "")
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestPrint(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := NewConfig()
	c.RedisPassword = "secret"
	c.Print(zap.New(core))
	assert.NotZero(t, logs.FilterField(zap.String("name", "row-count")).Len())
	assert.Zero(t, logs.FilterField(zap.String("name", "redis-password")).Len())
	assert.Equal(t, 1, logs.FilterMessage("Derived values").Len())
}

func TestBenchOptsNormalize(t *testing.T) {
	bo := (&BenchOpts{}).Normalize()
	assert.NotNil(t, bo.StatsCli)
	assert.NotNil(t, bo.Logger)
	assert.NotNil(t, bo.PrometheusRegistry)
	assert.Nil(t, bo.Meter)
}
