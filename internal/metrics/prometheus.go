package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PromCollector adapts a Sink to prometheus.Collector, so the debug HTTP
// surface can expose /metrics without the rest of the server depending on
// Prometheus directly. It re-reads the Sink on every scrape rather than
// maintaining its own parallel set of prometheus metric objects.
type PromCollector struct {
	sink      *Sink
	namespace string
}

// NewPromCollector wraps sink for Prometheus scraping, prefixing every
// exported metric with namespace (e.g. "ado_mcp").
func NewPromCollector(sink *Sink, namespace string) *PromCollector {
	return &PromCollector{sink: sink, namespace: namespace}
}

var _ prometheus.Collector = (*PromCollector)(nil)

// Describe is intentionally a no-op: this collector's metric set is
// dynamic (new counter/gauge keys can appear at any time), so it declares
// itself unchecked rather than enumerating descriptors up front.
func (c *PromCollector) Describe(chan<- *prometheus.Desc) {}

// Collect renders every counter, gauge, and histogram currently held by
// the Sink as Prometheus metrics.
func (c *PromCollector) Collect(ch chan<- prometheus.Metric) {
	for _, k := range c.sink.CounterNames() {
		name, labels := splitKey(k)
		desc := prometheus.NewDesc(c.metricName(name), "counter "+name, nil, labels)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, c.sink.rawCounter(k))
	}
	for _, k := range c.sink.GaugeNames() {
		name, labels := splitKey(k)
		desc := prometheus.NewDesc(c.metricName(name), "gauge "+name, nil, labels)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, c.sink.rawGauge(k))
	}
	for _, k := range c.sink.HistogramNames() {
		name, labels := splitKey(k)
		stats := c.sink.Histogram(name, tagsFromLabels(labels)...)
		desc := prometheus.NewDesc(c.metricName(name+"_p99_seconds"), "p99 latency "+name, nil, labels)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, stats.P99.Seconds())
	}

	uptimeDesc := prometheus.NewDesc(c.metricName("uptime_seconds"), "process uptime", nil, nil)
	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.CounterValue, c.sink.Uptime().Seconds())
}

func (c *PromCollector) metricName(suffix string) string {
	return c.namespace + "_" + sanitizeMetricName(suffix)
}

func sanitizeMetricName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// splitKey reverses the "name|tag1,tag2" shape produced by key(), returning
// name plus a label map suitable for prometheus.Labels. Tags are expected
// in "k=v" form; a tag without "=" is recorded under its own name with an
// empty value.
func splitKey(k string) (string, prometheus.Labels) {
	parts := strings.SplitN(k, "|", 2)
	name := parts[0]
	labels := prometheus.Labels{}
	if len(parts) == 1 {
		return name, labels
	}
	for _, tag := range strings.Split(parts[1], ",") {
		if tag == "" {
			continue
		}
		kv := strings.SplitN(tag, "=", 2)
		if len(kv) == 2 {
			labels[sanitizeMetricName(kv[0])] = kv[1]
		} else {
			labels[sanitizeMetricName(kv[0])] = ""
		}
	}
	return name, labels
}

func tagsFromLabels(labels prometheus.Labels) []string {
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		tags = append(tags, k+"="+v)
	}
	return tags
}
