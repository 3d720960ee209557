package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/flipkart-incubator/kvbench/internal/clock"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Report is the outcome of a benchmark. It is a view over the
// cumulative sample sets.
type Report struct {
	RunID       uuid.UUID
	Workload    Kind
	Engine      string
	Table       string
	ExecType    string
	Runs        int
	Interrupted bool

	// ExecutionTime holds the elapsed milliseconds of every run.
	ExecutionTime *stats.SampleSet
	// Units holds the samples recorded by the workload.
	Units *stats.SampleSet
	Store *stats.StoreMetrics
}

// UnitsPerSecond is the aggregate rate over all runs. It is only
// defined when samples were recorded and time elapsed.
func (r *Report) UnitsPerSecond() (float64, bool) {
	if r.Units.Count() == 0 || r.ExecutionTime.Sum() <= 0 {
		return 0, false
	}
	return r.Units.Sum() / clock.MillisToSeconds(r.ExecutionTime.Sum()), true
}

type reportModel struct {
	RunID          string              `json:"run_id" yaml:"run_id"`
	Workload       string              `json:"workload" yaml:"workload"`
	Engine         string              `json:"engine" yaml:"engine"`
	Table          string              `json:"table" yaml:"table"`
	ExecType       string              `json:"exec_type" yaml:"exec_type"`
	Runs           int                 `json:"runs" yaml:"runs"`
	Interrupted    bool                `json:"interrupted" yaml:"interrupted"`
	ExecutionTime  *stats.Summary      `json:"execution_time_ms" yaml:"execution_time_ms"`
	Units          *stats.Summary      `json:"units,omitempty" yaml:"units,omitempty"`
	UnitsPerSecond *float64            `json:"units_per_second,omitempty" yaml:"units_per_second,omitempty"`
	Store          *stats.StoreMetrics `json:"store,omitempty" yaml:"store,omitempty"`
}

func (r *Report) model() *reportModel {
	m := &reportModel{
		RunID:         r.RunID.String(),
		Workload:      string(r.Workload),
		Engine:        r.Engine,
		Table:         r.Table,
		ExecType:      r.ExecType,
		Runs:          r.Runs,
		Interrupted:   r.Interrupted,
		ExecutionTime: stats.Summarize(r.ExecutionTime),
	}
	if rate, ok := r.UnitsPerSecond(); ok {
		m.Units = stats.Summarize(r.Units)
		rate = math.Round(rate*100) / 100
		m.UnitsPerSecond = &rate
	}
	if r.Store != nil && !r.Store.Empty() {
		m.Store = r.Store
	}
	return m
}

// Write renders the report in the given format, text, json or yaml.
func (r *Report) Write(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r.model())
	case "yaml":
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(r.model()); err != nil {
			return err
		}
		return enc.Close()
	case "", "text":
		return r.writeText(w)
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
}

func (r *Report) writeText(w io.Writer) error {
	status := "completed"
	if r.Interrupted {
		status = "interrupted"
	}
	fmt.Fprintf(w, "\nBenchmark %s: workload=%s engine=%s table=%s mode=%s runs=%d (%s)\n",
		r.RunID, r.Workload, r.Engine, r.Table, r.ExecType, r.Runs, status)

	DisplayStatistics(w, r.ExecutionTime, "Execution Time", "milliseconds")
	if rate, ok := r.UnitsPerSecond(); ok {
		DisplayStatistics(w, r.Units, "Units", "")
		fmt.Fprintf(w, "Average units per second: %.2f\n", rate)
	}
	if r.Store != nil && !r.Store.Empty() {
		displayStoreMetrics(w, r.Store)
	}
	return nil
}

// DisplayStatistics renders the statistics of the given set as a
// table under the banner.
func DisplayStatistics(w io.Writer, ss *stats.SampleSet, banner, units string) {
	fmt.Fprintf(w, "\n%s Statistics\n", banner)
	if units != "" {
		fmt.Fprintf(w, "Units: %s\n", units)
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Statistic", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk([][]string{
		{"Total samples", strconv.Itoa(ss.Count())},
		{"Min", formatFloat(ss.Min())},
		{"Max", formatFloat(ss.Max())},
		{"Sum", formatFloat(ss.Sum())},
		{"Mean", formatFloat(ss.Mean())},
		{"Median", formatFloat(ss.Median())},
		{"Standard Deviation", formatFloat(ss.StdDev())},
		{"Variance", formatFloat(ss.Variance())},
	})
	table.Render()
}

func displayStoreMetrics(w io.Writer, sm *stats.StoreMetrics) {
	fmt.Fprintf(w, "\nStorage Operations\n")
	ops := make([]string, 0, len(sm.OpsCount))
	for op := range sm.OpsCount {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Op", "Count", "Errors", "P50 (s)", "P90 (s)", "P99 (s)"})
	for _, op := range ops {
		row := []string{op, strconv.FormatUint(sm.OpsCount[op], 10), formatFloat(sm.ErrorCount[op]), "", "", ""}
		if pc, ok := sm.Latency[op]; ok {
			row[3], row[4], row[5] = formatSeconds(pc.P50.Float64()), formatSeconds(pc.P90.Float64()), formatSeconds(pc.P99.Float64())
		}
		table.Append(row)
	}
	table.Render()
}

// logStatistics renders the set to the logger at debug level.
func logStatistics(lgr *zap.Logger, ss *stats.SampleSet, banner, units string) {
	if !lgr.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	var sb strings.Builder
	DisplayStatistics(&sb, ss, banner, units)
	lgr.Debug(sb.String())
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func formatSeconds(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}
