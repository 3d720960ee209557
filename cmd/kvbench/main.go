package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flipkart-incubator/kvbench/internal/bench"
	"github.com/flipkart-incubator/kvbench/internal/opts"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "kvbench",
		Short: "Micro benchmark harness for key value stores",
		Long: `kvbench runs one workload against a badger, rocksdb, redis or mongo
backed table, either for a minimum duration or a fixed number of times,
and reports execution time and throughput statistics.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return runBenchmark(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "Optional config file (yaml, json, toml or ini)")
	setupFlags(cmd.Flags())
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		log.Panicf("unable to bind flags: %v", err)
	}
	return cmd
}

func setupFlags(fs *pflag.FlagSet) {
	fs.StringP("workload", "w", "", "Workload to run - batch-write|honeycomb-write|sequential-write|get-row|sequential-read|scan|random-scan|honeycomb-range-scan")
	fs.String("exec-type", opts.ExecTimed, "Execution type - timed|count")
	fs.Int("exec-time", opts.DefaultExecutionTimeMs, "Minimum duration of a timed run in milliseconds")
	fs.Int("run-times", opts.DefaultRunTimes, "Number of independent runs")
	fs.Int64("row-count", opts.DefaultRowCount, "Number of rows written or read by a workload")
	fs.Int64("scan-range", opts.DefaultScanRange, "Maximum number of rows returned by a random or index scan")
	fs.Int("scan-cache", opts.DefaultScanCache, "Number of rows fetched per scanner round trip")
	fs.Int("scan-count", opts.UnsetScanCount, "Number of scans per run, -1 derives it as row-count / scan-range")
	fs.IntSlice("row-length", opts.DefaultRowLength, "Range of generated row value lengths in bytes as min,max")
	fs.Int("query-keys", opts.DefaultQueryKeys, "Size of the pool of random scan start keys")

	fs.Bool("enable-wal", false, "Make every write durable before acknowledging it")
	fs.Bool("auto-flush", false, "Send every write to the store immediately instead of buffering")
	fs.Bool("delete-table", false, "Remove every row of the tool table before the benchmark")
	fs.String("tool-table", opts.DefaultToolTable, "Name of the table the benchmark works on")
	fs.Int("write-buffer-size", 2<<20, "Buffered bytes after which writes are pushed when auto flush is off")
	fs.Int64("read-cache-size", 0, "Bytes of row values cached by the table. A value of 0 disables the cache")

	fs.String("db-engine", opts.DefaultEngine, "Storage engine to benchmark - badger|rocksdb|redis|mongo")
	fs.String("db-engine-ini", "", "An .ini file for configuring the embedded storage engine")
	fs.String("db-folder", opts.DefaultDBFolder, "DB folder path for the embedded engines")
	fs.Bool("diskless", false, "Keep badger data entirely in memory")
	fs.Uint64("block-cache-size", 0, "Amount of cache (in bytes) to set aside for data blocks")
	fs.String("redis-addr", "127.0.0.1:6379", "Redis server address in host:port format")
	fs.String("redis-password", "", "Redis AUTH password")
	fs.Int("redis-db", 0, "Logical Redis database")
	fs.String("mongo-uri", "mongodb://127.0.0.1:27017", "MongoDB connection string")
	fs.String("mongo-database", "kvbench", "MongoDB database holding the tool table")

	fs.String("log-level", "info", "Log level for logging info|warn|debug|error")
	fs.String("statsd-addr", "", "StatsD service address in host:port format")
	fs.String("metrics-addr", "", "Address serving prometheus metrics in host:port format")
	fs.String("meter-interval", opts.DefaultMeterInterval, "Interval of the live throughput log. Eg., 1s, 500ms")
	fs.String("report-format", opts.DefaultReportFormat, "Report format - text|json|yaml")
	fs.String("report-file", "", "File receiving the report, stdout when empty")
}

func runBenchmark(ctx context.Context, cfg *opts.Config, out io.Writer) error {
	lgr := setupLogger(cfg.LogLevel)
	defer lgr.Sync()

	cfg.Print(lgr)
	if err := cfg.Validate(lgr); err != nil {
		lgr.Error("Invalid configuration", zap.Error(err))
		return err
	}

	statsCli := stats.NewClient(cfg.StatsdAddr, stats.DefaultPrefix, stats.BenchTags(cfg.DbEngine, cfg.Workload)...)
	defer statsCli.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, registry, lgr)
		defer shutdownMetrics(srv, lgr)
	}

	meter := stats.NewMeter("rows", lgr, cfg.MeterInterval)
	defer meter.Close()
	bo := &opts.BenchOpts{
		StatsCli:           statsCli,
		Logger:             lgr,
		PrometheusRegistry: registry,
		Meter:              meter,
	}

	tbl, err := setupTable(cfg, bo)
	if err != nil {
		lgr.Error("Unable to set up the tool table", zap.String("engine", cfg.DbEngine), zap.Error(err))
		return err
	}
	defer func() {
		if err := tbl.Close(); err != nil {
			lgr.Warn("Unable to close the tool table", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ds := bench.NewDataSet(cfg, time.Now().UnixNano())
	driver := bench.NewDriver(cfg, tbl, ds, bo, bench.WithGatherer(registry))
	report, err := driver.Run(ctx)
	if err != nil {
		lgr.Error("Benchmark failed", zap.Error(err))
		return err
	}
	return writeReport(report, cfg, out)
}

func writeReport(report *bench.Report, cfg *opts.Config, out io.Writer) error {
	if cfg.ReportFile == "" {
		return report.Write(out, cfg.ReportFormat)
	}
	f, err := os.Create(cfg.ReportFile)
	if err != nil {
		return fmt.Errorf("unable to create report file: %w", err)
	}
	if err := report.Write(f, cfg.ReportFormat); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func serveMetrics(addr string, gatherer prometheus.Gatherer, lgr *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("Metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	lgr.Info("Serving prometheus metrics", zap.String("addr", addr))
	return srv
}

func shutdownMetrics(srv *http.Server, lgr *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lgr.Warn("Unable to stop metrics server", zap.Error(err))
	}
}

func setupLogger(level string) *zap.Logger {
	loggerConfig := zap.Config{
		Development:   false,
		Encoding:      "console",
		DisableCaller: true,

		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	loggerConfig.Level = zap.NewAtomicLevelAt(lvl)
	if lvl == zapcore.DebugLevel {
		loggerConfig.EncoderConfig.StacktraceKey = "stacktrace"
	}

	lg, err := loggerConfig.Build()
	if err != nil {
		log.Printf("[WARN] Unable to configure logger. Error: %v\n", err)
		return zap.NewNop()
	}
	return lg
}
