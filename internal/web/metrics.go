package web

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics exposes the status stream health on reg: connected
// clients and messages dropped for slow clients.
func RegisterMetrics(reg prometheus.Registerer, b *StatusBroadcaster) error {
	clients := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "lotcam",
		Subsystem: "status_stream",
		Name:      "clients",
		Help:      "Connected status stream clients",
	}, func() float64 { return float64(b.Clients()) })
	dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "lotcam",
		Subsystem: "status_stream",
		Name:      "dropped_messages_total",
		Help:      "Status messages skipped because a client was not reading",
	}, func() float64 { return float64(b.Dropped()) })

	for _, c := range []prometheus.Collector{clients, dropped} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register status stream metrics: %w", err)
		}
	}
	return nil
}
