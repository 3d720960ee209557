package opts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrInvalidConfig marks every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	ExecTimed = "timed"
	ExecCount = "count"

	DefaultRowCount        = 5000
	DefaultScanRange       = 100
	DefaultScanCache       = 100
	DefaultRunTimes        = 1
	DefaultExecutionTimeMs = 5000
	DefaultToolTable       = "hhbench"
	DefaultQueryKeys       = 5000
	DefaultEngine          = "badger"
	DefaultDBFolder        = "/tmp/kvbench"
	DefaultReportFormat    = "text"
	DefaultMeterInterval   = "1s"

	// UnsetScanCount makes the scan count derive from
	// the row count and the scan range.
	UnsetScanCount = -1
)

var (
	DefaultRowLength = []int{64, 128}

	engines       = []string{"badger", "rocksdb", "redis", "mongo"}
	reportFormats = []string{"text", "json", "yaml"}
	logLevels     = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	// Benchmark configuration
	Workload      string `mapstructure:"workload" desc:"Workload to run - batch-write|honeycomb-write|sequential-write|get-row|sequential-read|scan|random-scan|honeycomb-range-scan"`
	ExecType      string `mapstructure:"exec-type" desc:"Execution type - timed|count"`
	ExecutionTime int    `mapstructure:"exec-time" desc:"Minimum duration of a timed run in milliseconds"`
	RunTimes      int    `mapstructure:"run-times" desc:"Number of independent runs"`
	RowCount      int64  `mapstructure:"row-count" desc:"Number of rows written or read by a workload"`
	ScanRange     int64  `mapstructure:"scan-range" desc:"Maximum number of rows returned by a random or index scan"`
	ScanCache     int    `mapstructure:"scan-cache" desc:"Number of rows fetched per scanner round trip"`
	ScanCount     int    `mapstructure:"scan-count" desc:"Number of scans per run, -1 derives it as row-count / scan-range"`
	RowLength     []int  `mapstructure:"row-length" desc:"Range of generated row value lengths in bytes as min,max"`
	QueryKeys     int    `mapstructure:"query-keys" desc:"Size of the pool of random scan start keys"`

	// Table configuration
	EnableWAL       bool   `mapstructure:"enable-wal" desc:"Make every write durable before acknowledging it"`
	AutoFlush       bool   `mapstructure:"auto-flush" desc:"Send every write to the store immediately instead of buffering"`
	DeleteTable     bool   `mapstructure:"delete-table" desc:"Remove every row of the tool table before the benchmark"`
	ToolTable       string `mapstructure:"tool-table" desc:"Name of the table the benchmark works on"`
	WriteBufferSize int    `mapstructure:"write-buffer-size" desc:"Buffered bytes after which writes are pushed when auto flush is off"`
	ReadCacheSize   int64  `mapstructure:"read-cache-size" desc:"Bytes of row values cached by the table. A value of 0 disables the cache"`

	// Storage Configuration
	DbEngine       string `mapstructure:"db-engine" desc:"Storage engine to benchmark - badger|rocksdb|redis|mongo"`
	DbEngineIni    string `mapstructure:"db-engine-ini" desc:"An .ini file for configuring the embedded storage engine. Refer badger.ini or rocksdb.ini for more details."`
	DbFolder       string `mapstructure:"db-folder" desc:"DB folder path for the embedded engines"`
	DisklessMode   bool   `mapstructure:"diskless" desc:"Keep badger data entirely in memory"`
	BlockCacheSize uint64 `mapstructure:"block-cache-size" desc:"Amount of cache (in bytes) to set aside for data blocks. A value of 0 disables block caching altogether."`
	RedisAddr      string `mapstructure:"redis-addr" desc:"Redis server address in host:port format"`
	RedisPassword  string `mapstructure:"redis-password" desc:"Redis AUTH password"`
	RedisDB        int    `mapstructure:"redis-db" desc:"Logical Redis database"`
	MongoURI       string `mapstructure:"mongo-uri" desc:"MongoDB connection string"`
	MongoDatabase  string `mapstructure:"mongo-database" desc:"MongoDB database holding the tool table"`

	// Logging and metrics
	LogLevel            string `mapstructure:"log-level" desc:"Log level for logging info|warn|debug|error"`
	StatsdAddr          string `mapstructure:"statsd-addr" desc:"StatsD service address in host:port format"`
	MetricsAddr         string `mapstructure:"metrics-addr" desc:"Address serving prometheus metrics in host:port format"`
	MeterIntervalString string `mapstructure:"meter-interval" desc:"Interval of the live throughput log. Eg., 1s, 500ms"`
	ReportFormat        string `mapstructure:"report-format" desc:"Report format - text|json|yaml"`
	ReportFile          string `mapstructure:"report-file" desc:"File receiving the report, stdout when empty"`

	MeterInterval time.Duration
}

// SetDefaults registers the default value of every setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("exec-type", ExecTimed)
	v.SetDefault("exec-time", DefaultExecutionTimeMs)
	v.SetDefault("run-times", DefaultRunTimes)
	v.SetDefault("row-count", DefaultRowCount)
	v.SetDefault("scan-range", DefaultScanRange)
	v.SetDefault("scan-cache", DefaultScanCache)
	v.SetDefault("scan-count", UnsetScanCount)
	v.SetDefault("row-length", DefaultRowLength)
	v.SetDefault("query-keys", DefaultQueryKeys)
	v.SetDefault("tool-table", DefaultToolTable)
	v.SetDefault("write-buffer-size", 2<<20)
	v.SetDefault("db-engine", DefaultEngine)
	v.SetDefault("db-folder", DefaultDBFolder)
	v.SetDefault("redis-addr", "127.0.0.1:6379")
	v.SetDefault("mongo-uri", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo-database", "kvbench")
	v.SetDefault("log-level", "info")
	v.SetDefault("meter-interval", DefaultMeterInterval)
	v.SetDefault("report-format", DefaultReportFormat)
}

// NewConfig returns a Config populated with the defaults.
func NewConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	c := &Config{}
	if err := c.parseConfig(v); err != nil {
		panic(err)
	}
	return c
}

// Load reads the optional config file and the KVBENCH_ environment
// into a Config. Flags bound to v take precedence over both.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)
	if err := loadConfigFile(v, cfgFile); err != nil {
		return nil, err
	}
	c := &Config{}
	if err := c.parseConfig(v); err != nil {
		return nil, err
	}
	return c, nil
}

func loadConfigFile(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("KVBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if cfgFile == "" {
		return nil
	}
	absPath, err := filepath.Abs(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to convert cfg file to abs path: %w", err)
	}
	v.SetConfigFile(absPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read config file %s: %w", absPath, err)
	}
	return nil
}

func (c *Config) parseConfig(v *viper.Viper) error {
	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	//Handling time duration variable unmarshalling
	if c.MeterIntervalString != "" {
		meterInterval, err := time.ParseDuration(c.MeterIntervalString)
		if err != nil {
			return fmt.Errorf("%w: failed to read meter interval value %q: %v", ErrInvalidConfig, c.MeterIntervalString, err)
		}
		c.MeterInterval = meterInterval
	}
	return nil
}

// BatchSize is the progress reporting interval, a tenth of the
// row count and at least 1.
func (c *Config) BatchSize() int64 {
	if bs := c.RowCount / 10; bs > 0 {
		return bs
	}
	return 1
}

// ScanCountValue returns the configured scan count, or
// row-count / scan-range when it is unset.
func (c *Config) ScanCountValue() int {
	if c.ScanCount == UnsetScanCount {
		if c.ScanRange <= 0 {
			return 0
		}
		return int(c.RowCount / c.ScanRange)
	}
	return c.ScanCount
}

// RowLengthRange returns the inclusive bounds of generated
// row value lengths.
func (c *Config) RowLengthRange() (int, int) {
	switch len(c.RowLength) {
	case 0:
		return DefaultRowLength[0], DefaultRowLength[1]
	case 1:
		return c.RowLength[0], c.RowLength[0]
	default:
		return c.RowLength[0], c.RowLength[1]
	}
}

// ExecutionDuration is the minimum duration of a timed run.
func (c *Config) ExecutionDuration() time.Duration {
	return time.Duration(c.ExecutionTime) * time.Millisecond
}

func (c *Config) IsTimed() bool {
	return strings.EqualFold(c.ExecType, ExecTimed)
}

// Validate checks the configuration before any run starts.
func (c *Config) Validate(lgr *zap.Logger) error {
	if lgr == nil {
		lgr = zap.NewNop()
	}
	execType := strings.ToLower(c.ExecType)
	if execType != ExecTimed && execType != ExecCount {
		return invalid("exec-type must be %s or %s, got %q", ExecTimed, ExecCount, c.ExecType)
	}
	if execType == ExecTimed && c.ExecutionTime <= 0 {
		return invalid("exec-time must be positive in timed mode, got %d", c.ExecutionTime)
	}
	if c.RunTimes <= 0 {
		return invalid("run-times must be positive, got %d", c.RunTimes)
	}
	if c.RowCount <= 0 {
		return invalid("row-count must be positive, got %d", c.RowCount)
	}
	if c.ScanRange <= 0 {
		return invalid("scan-range must be positive, got %d", c.ScanRange)
	}
	if c.ScanCache <= 0 {
		return invalid("scan-cache must be positive, got %d", c.ScanCache)
	}
	if c.ScanCount < UnsetScanCount {
		return invalid("scan-count must be -1 or more, got %d", c.ScanCount)
	}
	if len(c.RowLength) > 2 {
		return invalid("row-length takes at most two values, got %v", c.RowLength)
	}
	if minLen, maxLen := c.RowLengthRange(); minLen < 0 || minLen > maxLen {
		return invalid("row-length must be 0 <= min <= max, got %v", c.RowLength)
	}
	if c.QueryKeys <= 0 {
		return invalid("query-keys must be positive, got %d", c.QueryKeys)
	}
	if c.ToolTable == "" {
		return invalid("tool-table must not be empty")
	}
	if !contains(engines, c.DbEngine) {
		return invalid("db-engine must be one of %v, got %q", engines, c.DbEngine)
	}
	if c.DisklessMode && c.DbEngine != "badger" {
		return invalid("diskless is available only on Badger storage")
	}
	if c.DbEngineIni != "" {
		if _, err := os.Stat(c.DbEngineIni); err != nil && os.IsNotExist(err) {
			return invalid("given storage configuration file: %s does not exist", c.DbEngineIni)
		}
	}
	if c.DbEngine == "redis" && strings.IndexRune(c.RedisAddr, ':') < 0 {
		return invalid("given Redis address: %s is invalid, must be in host:port format", c.RedisAddr)
	}
	if c.StatsdAddr != "" && strings.IndexRune(c.StatsdAddr, ':') < 0 {
		return invalid("given StatsD address: %s is invalid, must be in host:port format", c.StatsdAddr)
	}
	if c.MetricsAddr != "" && strings.IndexRune(c.MetricsAddr, ':') < 0 {
		return invalid("given metrics address: %s is invalid, must be in host:port format", c.MetricsAddr)
	}
	if !contains(reportFormats, strings.ToLower(c.ReportFormat)) {
		return invalid("report-format must be one of %v, got %q", reportFormats, c.ReportFormat)
	}
	if !contains(logLevels, strings.ToLower(c.LogLevel)) {
		return invalid("log-level must be one of %v, got %q", logLevels, c.LogLevel)
	}

	if c.ScanCount == UnsetScanCount && c.ScanCountValue() == 0 {
		lgr.Warn("Derived scan count is zero, scan workloads will not scan",
			zap.Int64("row-count", c.RowCount), zap.Int64("scan-range", c.ScanRange))
	}
	return nil
}

// Print logs every setting along with its description.
func (c *Config) Print(lgr *zap.Logger) {
	f := reflect.TypeOf(*c)
	v := reflect.ValueOf(*c)
	for i := 0; i < v.NumField(); i++ {
		value := v.Field(i).Interface()
		tag := f.Field(i).Tag
		name := tag.Get("mapstructure")
		if name == "" || strings.Contains(name, "password") {
			continue
		}
		lgr.Info(tag.Get("desc"), zap.String("name", name), zap.Any("value", value))
	}
	lgr.Info("Derived values",
		zap.Int64("batch-size", c.BatchSize()),
		zap.Int("scan-count", c.ScanCountValue()))
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func contains(vals []string, val string) bool {
	for _, v := range vals {
		if v == val {
			return true
		}
	}
	return false
}
