package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIncCounterAccumulates(t *testing.T) {
	s := New()
	s.IncCounter("calls", 1)
	s.IncCounter("calls", 2)
	require.Equal(t, 3.0, s.Counter("calls"))
}

func TestIncCounterIgnoresNegativeValues(t *testing.T) {
	s := New()
	s.IncCounter("calls", 5)
	s.IncCounter("calls", -100)
	require.Equal(t, 5.0, s.Counter("calls"))
}

func TestCounterKeyingIsTagOrderIndependent(t *testing.T) {
	s := New()
	s.IncCounter("calls", 1, "a=1", "b=2")
	s.IncCounter("calls", 1, "b=2", "a=1")
	require.Equal(t, 2.0, s.Counter("calls", "a=1", "b=2"))
}

func TestDistinctTagSetsAreDistinctSeries(t *testing.T) {
	s := New()
	s.IncCounter("calls", 1, "tool=a")
	s.IncCounter("calls", 1, "tool=b")
	require.Equal(t, 1.0, s.Counter("calls", "tool=a"))
	require.Equal(t, 1.0, s.Counter("calls", "tool=b"))
	require.Equal(t, 0.0, s.Counter("calls"))
}

func TestRecordGaugeLastWriteWins(t *testing.T) {
	s := New()
	s.RecordGauge("queue_depth", 3)
	s.RecordGauge("queue_depth", 7)
	require.Equal(t, 7.0, s.Gauge("queue_depth"))
}

func TestHistogramEmptySeriesIsZeroValue(t *testing.T) {
	s := New()
	require.Equal(t, HistogramStats{}, s.Histogram("latency"))
}

func TestHistogramDerivesStats(t *testing.T) {
	s := New()
	for i := 1; i <= 100; i++ {
		s.RecordTimer("latency", time.Duration(i)*time.Millisecond)
	}
	stats := s.Histogram("latency")
	require.Equal(t, 100, stats.Count)
	require.Equal(t, time.Millisecond, stats.Min)
	require.Equal(t, 100*time.Millisecond, stats.Max)
	require.Equal(t, 50*time.Millisecond, stats.P50)
	require.Equal(t, 95*time.Millisecond, stats.P95)
	require.Equal(t, 99*time.Millisecond, stats.P99)
}

func TestHistogramCapDropsOldestSample(t *testing.T) {
	s := New()
	for i := 0; i < histogramCap+10; i++ {
		s.RecordTimer("latency", time.Duration(i)*time.Millisecond)
	}
	stats := s.Histogram("latency")
	require.Equal(t, histogramCap, stats.Count)
	require.Equal(t, 10*time.Millisecond, stats.Min, "the first 10 samples should have been evicted")
}

func TestUptimeAdvancesWithClockAndResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := newWithClock(clock)

	now = now.Add(5 * time.Minute)
	require.Equal(t, 5*time.Minute, s.Uptime())

	s.ResetUptime()
	now = now.Add(2 * time.Minute)
	require.Equal(t, 2*time.Minute, s.Uptime())
}

func TestCounterGaugeHistogramNamesAreSorted(t *testing.T) {
	s := New()
	s.IncCounter("zeta", 1)
	s.IncCounter("alpha", 1)
	require.Equal(t, []string{"alpha", "zeta"}, s.CounterNames())

	s.RecordGauge("zeta_gauge", 1)
	s.RecordGauge("alpha_gauge", 1)
	require.Equal(t, []string{"alpha_gauge", "zeta_gauge"}, s.GaugeNames())

	s.RecordTimer("zeta_timer", time.Millisecond)
	s.RecordTimer("alpha_timer", time.Millisecond)
	require.Equal(t, []string{"alpha_timer", "zeta_timer"}, s.HistogramNames())
}
