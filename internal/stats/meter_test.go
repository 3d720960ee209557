package stats

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMeterLogsRates(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewMeter("rows", zap.New(core), 20*time.Millisecond)
	defer m.Close()

	m.Start()
	m.Start()
	m.Mark(10)
	m.Mark(5)
	<-time.After(70 * time.Millisecond)
	m.Stop()
	m.Stop()

	if cnt := m.Count(); cnt != 15 {
		t.Errorf("Expected a count of 15, got %d", cnt)
	}
	if logs.FilterMessage("Live throughput").Len() == 0 {
		t.Errorf("Expected at least one throughput log entry")
	}
}

func TestNilMeterMark(t *testing.T) {
	var m *Meter
	m.Mark(1)
}
