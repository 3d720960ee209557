package stats

import (
	"io"
	"strings"
	"time"

	"github.com/smira/go-statsd"
)

// DefaultPrefix is the metric prefix used when none is configured.
const DefaultPrefix = "kvbench."

// Tag is a key value pair sent along with every measurement.
type Tag struct {
	Key, Value string
}

func NewTag(key, val string) Tag {
	return Tag{Key: key, Value: val}
}

// BenchTags identifies the benchmarked engine and workload on
// every measurement. Empty values are left out.
func BenchTags(engine, workload string) []Tag {
	var tags []Tag
	if engine != "" {
		tags = append(tags, NewTag("engine", engine))
	}
	if workload != "" {
		tags = append(tags, NewTag("workload", workload))
	}
	return tags
}

// Client pushes measurements to a metrics sink.
type Client interface {
	io.Closer
	Incr(string, int64)
	Gauge(string, int64)
	GaugeDelta(string, int64)
	Timing(string, time.Time)
}

type noopClient struct{}

func (*noopClient) Incr(_ string, _ int64)       {}
func (*noopClient) Gauge(_ string, _ int64)      {}
func (*noopClient) GaugeDelta(_ string, _ int64) {}
func (*noopClient) Timing(_ string, _ time.Time) {}
func (*noopClient) Close() error                 { return nil }

func NewNoOpClient() Client {
	return &noopClient{}
}

// NewClient returns a StatsD backed client when an address is
// given and a no-op client otherwise. An empty prefix falls back
// to DefaultPrefix.
func NewClient(statsdAddr, metricPrfx string, tags ...Tag) Client {
	if statsdAddr = strings.TrimSpace(statsdAddr); statsdAddr == "" {
		return NewNoOpClient()
	}
	if metricPrfx == "" {
		metricPrfx = DefaultPrefix
	}
	return NewStatsDClient(statsdAddr, metricPrfx, tags...)
}

type statsDClient struct {
	cli *statsd.Client
}

// NewStatsDClient sends measurements to the StatsD server at the
// given address, tagged in the Datadog style.
func NewStatsDClient(statsdAddr, metricPrfx string, tags ...Tag) Client {
	return &statsDClient{statsd.NewClient(statsdAddr,
		statsd.MetricPrefix(metricPrfx),
		statsd.TagStyle(statsd.TagFormatDatadog),
		statsd.DefaultTags(statsdTags(tags)...),
	)}
}

func statsdTags(tags []Tag) []statsd.Tag {
	res := make([]statsd.Tag, 0, len(tags))
	for _, tag := range tags {
		res = append(res, statsd.StringTag(tag.Key, tag.Value))
	}
	return res
}

func (sdc *statsDClient) Incr(name string, value int64) {
	sdc.cli.Incr(name, value)
}

func (sdc *statsDClient) Gauge(name string, value int64) {
	sdc.cli.Gauge(name, value)
}

func (sdc *statsDClient) GaugeDelta(name string, value int64) {
	sdc.cli.GaugeDelta(name, value)
}

func (sdc *statsDClient) Timing(name string, startTime time.Time) {
	sdc.cli.PrecisionTiming(name, time.Since(startTime))
}

func (sdc *statsDClient) Close() error {
	return sdc.cli.Close()
}
