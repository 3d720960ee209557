package bench

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/flipkart-incubator/kvbench/internal/opts"
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() *Report {
	report := &Report{
		RunID:         uuid.MustParse("6f1b8e0c-4c1f-4b8e-9f63-2f6e4a1d7c10"),
		Workload:      BatchWrite,
		Engine:        "badger",
		Table:         "hhbench",
		ExecType:      opts.ExecCount,
		Runs:          2,
		ExecutionTime: stats.NewSampleSet(),
		Units:         stats.NewSampleSet(),
	}
	report.ExecutionTime.AddAll(400, 600)
	report.Units.AddAll(5000, 5000)
	return report
}

func TestUnitsPerSecond(t *testing.T) {
	report := sampleReport()
	rate, ok := report.UnitsPerSecond()
	assert.True(t, ok)
	assert.Equal(t, 10000.0, rate)

	report.Units.Clear()
	_, ok = report.UnitsPerSecond()
	assert.False(t, ok)

	report.Units.Add(10)
	report.ExecutionTime.Clear()
	report.ExecutionTime.Add(0)
	_, ok = report.UnitsPerSecond()
	assert.False(t, ok)
}

func TestWriteTextReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Write(&buf, "text"))
	out := buf.String()
	assert.Contains(t, out, "workload=batch-write engine=badger table=hhbench mode=count runs=2 (completed)")
	assert.Contains(t, out, "Execution Time Statistics")
	assert.Contains(t, out, "Units: milliseconds")
	assert.Contains(t, out, "Units Statistics")
	assert.Contains(t, out, "Average units per second: 10000.00")
	assert.NotContains(t, out, "Storage Operations")
}

func TestWriteTextReportWithoutSamples(t *testing.T) {
	report := sampleReport()
	report.Units.Clear()
	report.Interrupted = true
	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, ""))
	out := buf.String()
	assert.Contains(t, out, "(interrupted)")
	assert.NotContains(t, out, "Average units per second")
}

func TestWriteJSONReport(t *testing.T) {
	report := sampleReport()
	report.Store = stats.NewStoreMetrics()
	report.Store.OpsCount[stats.MultiPut] = 2

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, "JSON"))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "batch-write", decoded["workload"])
	assert.Equal(t, 2.0, decoded["runs"])
	assert.Equal(t, 10000.0, decoded["units_per_second"])
	assert.Contains(t, decoded, "execution_time_ms")
	assert.Contains(t, decoded, "store")
}

func TestWriteYAMLReport(t *testing.T) {
	report := sampleReport()
	report.Units.Clear()

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, "yaml"))
	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "6f1b8e0c-4c1f-4b8e-9f63-2f6e4a1d7c10", decoded["run_id"])
	assert.Equal(t, false, decoded["interrupted"])
	assert.NotContains(t, decoded, "units_per_second")
	assert.NotContains(t, decoded, "store")
}

func TestWriteUnknownFormat(t *testing.T) {
	err := sampleReport().Write(&bytes.Buffer{}, "xml")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "xml"))
}
