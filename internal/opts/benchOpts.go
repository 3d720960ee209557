package opts

import (
	"github.com/flipkart-incubator/kvbench/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

//BenchOpts is a wrapper structure for all things related to cross-cutting concerns in kvbench. All
//new tools (e.g. logger, metric handler) should be wrapped in this struct.
type BenchOpts struct {
	StatsCli           stats.Client
	Logger             *zap.Logger
	PrometheusRegistry prometheus.Registerer
	Meter              *stats.Meter
}

// Normalize fills the unset tools with no-op implementations.
func (bo *BenchOpts) Normalize() *BenchOpts {
	if bo.StatsCli == nil {
		bo.StatsCli = stats.NewNoOpClient()
	}
	if bo.Logger == nil {
		bo.Logger = zap.NewNop()
	}
	if bo.PrometheusRegistry == nil {
		bo.PrometheusRegistry = stats.NewPrometheusNoopRegistry()
	}
	return bo
}
