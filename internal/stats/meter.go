package stats

import (
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
)

// Meter tracks the live throughput of storage operations and
// logs the observed rates at a fixed interval while started.
type Meter struct {
	name     string
	lgr      *zap.Logger
	interval time.Duration
	meter    metrics.Meter

	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewMeter creates a meter named after the unit it counts.
// A non positive interval defaults to one second.
func NewMeter(name string, lgr *zap.Logger, interval time.Duration) *Meter {
	if lgr == nil {
		lgr = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Meter{name: name, lgr: lgr, interval: interval, meter: metrics.NewMeter()}
}

// Mark records n events. Safe on a nil Meter.
func (m *Meter) Mark(n int64) {
	if m == nil {
		return
	}
	m.meter.Mark(n)
}

func (m *Meter) Count() int64 {
	return m.meter.Count()
}

func (m *Meter) RateMean() float64 {
	return m.meter.RateMean()
}

// Start begins periodic rate logging. Calling Start on a
// started meter is a no-op.
func (m *Meter) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ticker != nil {
		return
	}
	m.ticker = time.NewTicker(m.interval)
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.report(m.ticker, m.stop)
}

func (m *Meter) report(ticker *time.Ticker, stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := m.meter.Snapshot()
			m.lgr.Info("Live throughput",
				zap.String("unit", m.name),
				zap.Int64("count", snap.Count()),
				zap.Float64("mean_rate", snap.RateMean()),
				zap.Float64("m1_rate", snap.Rate1()),
				zap.Float64("m5_rate", snap.Rate5()),
				zap.Float64("m15_rate", snap.Rate15()))
		}
	}
}

// Stop ends periodic logging and waits for the logger to exit.
func (m *Meter) Stop() {
	m.mu.Lock()
	if m.ticker == nil {
		m.mu.Unlock()
		return
	}
	m.ticker.Stop()
	close(m.stop)
	m.ticker, m.stop = nil, nil
	m.mu.Unlock()
	m.wg.Wait()
}

// Close stops logging and detaches the meter from the
// go-metrics arbiter.
func (m *Meter) Close() error {
	m.Stop()
	m.meter.Stop()
	return nil
}
