package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountersAndGauges(t *testing.T) {
	m := NewMetricsCollector()

	m.IncrementCounter(ToolMetric(MetricToolCalls, "memphora_search"), 1)
	m.IncrementCounter(ToolMetric(MetricToolCalls, "memphora_search"), 2)
	m.SetGauge("remote.healthy", 1)

	assert.Equal(t, int64(3), m.GetCounter("tools.calls.memphora_search"))
	assert.Equal(t, 1.0, m.GetGauge("remote.healthy"))
	assert.Zero(t, m.GetCounter("missing"))
}

func TestTimers(t *testing.T) {
	m := NewMetricsCollector()
	name := RemoteMetric(MetricRemoteLatency, "search")

	for i := 1; i <= 20; i++ {
		m.RecordTimer(name, time.Duration(i)*time.Millisecond)
	}

	assert.Equal(t, 20, m.GetTimerCount(name))
	assert.Equal(t, 10500*time.Microsecond, m.GetTimerAverage(name))
	assert.Equal(t, 20*time.Millisecond, m.GetTimerP95(name))
	assert.Zero(t, m.GetTimerAverage("unknown"))
}

func TestTimerWindowIsBounded(t *testing.T) {
	m := NewMetricsCollector()
	for i := 0; i < 150; i++ {
		m.RecordTimer("t", time.Millisecond)
	}
	assert.Equal(t, 100, m.GetTimerCount("t"))
}

func TestReportIsSortedAndReset(t *testing.T) {
	m := NewMetricsCollector()
	m.IncrementCounter("b.counter", 1)
	m.IncrementCounter("a.counter", 1)
	m.RecordTimer("latency", time.Millisecond)
	m.RecordTimestamp("started")

	report := m.GetReport()
	assert.Less(t, strings.Index(report, "a.counter"), strings.Index(report, "b.counter"))
	assert.Contains(t, report, "latency: avg=1ms p95=1ms count=1")
	assert.Contains(t, report, "started:")

	m.Reset()
	assert.Zero(t, m.GetCounter("a.counter"))
	assert.Zero(t, m.GetTimeSince("started"))
}
