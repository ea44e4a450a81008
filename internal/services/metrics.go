package services

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Metrics holds the relay counters. Each instance has its own registry.
type Metrics struct {
	Registry gometrics.Registry

	SettleRequests   gometrics.Counter
	SettleSigned     gometrics.Counter
	SettleUnsigned   gometrics.Counter
	SettleRejected   gometrics.Counter
	SettleFailed     gometrics.Counter
	SubmitTime       gometrics.Timer
	IndexedTxs       gometrics.Counter
	IndexRuns        gometrics.Counter
	WebSocketClients gometrics.Gauge
}

func NewMetrics() *Metrics {
	r := gometrics.NewRegistry()
	return &Metrics{
		Registry:         r,
		SettleRequests:   gometrics.NewRegisteredCounter("relay.settle.requests", r),
		SettleSigned:     gometrics.NewRegisteredCounter("relay.settle.signed", r),
		SettleUnsigned:   gometrics.NewRegisteredCounter("relay.settle.unsigned", r),
		SettleRejected:   gometrics.NewRegisteredCounter("relay.settle.rejected", r),
		SettleFailed:     gometrics.NewRegisteredCounter("relay.settle.failed", r),
		SubmitTime:       gometrics.NewRegisteredTimer("relay.settle.submit", r),
		IndexedTxs:       gometrics.NewRegisteredCounter("index.transactions", r),
		IndexRuns:        gometrics.NewRegisteredCounter("index.runs", r),
		WebSocketClients: gometrics.NewRegisteredGauge("ws.clients", r),
	}
}

func (m *Metrics) timeSubmit(start time.Time) {
	if m != nil {
		m.SubmitTime.UpdateSince(start)
	}
}

// Snapshot flattens the registry into a JSON friendly map.
func (m *Metrics) Snapshot() map[string]any {
	out := make(map[string]any)
	m.Registry.Each(func(name string, i interface{}) {
		switch v := i.(type) {
		case gometrics.Counter:
			out[name] = v.Count()
		case gometrics.Gauge:
			out[name] = v.Value()
		case gometrics.Timer:
			s := v.Snapshot()
			out[name] = map[string]any{
				"count":   s.Count(),
				"mean_ms": s.Mean() / float64(time.Millisecond),
				"p99_ms":  s.Percentile(0.99) / float64(time.Millisecond),
				"max_ms":  float64(s.Max()) / float64(time.Millisecond),
			}
		}
	})
	return out
}
