package badger

import (
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
)

type expvarMetric struct {
	name   string
	help   string
	labels []string
}

var badgerExpvars = map[string]expvarMetric{
	"badger_v2_disk_reads_total":     {"disk_reads_total", "Number of cumulative reads by Badger", nil},
	"badger_v2_disk_writes_total":    {"disk_writes_total", "Number of cumulative writes by Badger", nil},
	"badger_v2_read_bytes":           {"read_bytes", "Number of cumulative bytes read by Badger", nil},
	"badger_v2_written_bytes":        {"written_bytes", "Number of cumulative bytes written by Badger", nil},
	"badger_v2_lsm_level_gets_total": {"lsm_level_gets_total", "Total number of LSM gets", []string{"level"}},
	"badger_v2_lsm_bloom_hits_total": {"lsm_bloom_hits_total", "Total number of LSM bloom hits", []string{"level"}},
	"badger_v2_gets_total":           {"gets_total", "Total number of gets", nil},
	"badger_v2_puts_total":           {"puts_total", "Total number of puts", nil},
	"badger_v2_blocked_puts_total":   {"blocked_puts_total", "Total number of blocked puts", nil},
	"badger_v2_memtable_gets_total":  {"memtable_gets_total", "Total number of memtable gets", nil},
	"badger_v2_lsm_size_bytes":       {"lsm_size_bytes", "Size of the LSM in bytes", []string{"dir"}},
	"badger_v2_vlog_size_bytes":      {"vlog_size_bytes", "Size of the value log in bytes", []string{"dir"}},
	"badger_v2_pending_writes_total": {"pending_writes_total", "Total number of pending writes", []string{"dir"}},
}

// metricsCollector exports the Badger expvar metrics through prometheus.
func (bdb *badgerDB) metricsCollector() {
	descs := make(map[string]*prometheus.Desc, len(badgerExpvars))
	for expvarName, m := range badgerExpvars {
		descs[expvarName] = prometheus.NewDesc(
			prometheus.BuildFQName(stats.Namespace, EngineName, m.name),
			m.help, m.labels, stats.ConstLabels,
		)
	}
	stats.RegisterOrReuse(bdb.opts.promRegistry, prometheus.NewExpvarCollector(descs))
}
