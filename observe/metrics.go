package observe

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/goforj/mcstore/storecore"
)

// Metrics records operation counts and latencies into a metrics.Set:
//
//	mcstore_ops_total{op,driver,result}
//	mcstore_op_duration_seconds{op,driver}
type Metrics struct {
	set *metrics.Set
}

// NewMetrics records into set, or into a fresh set when set is nil.
func NewMetrics(set *metrics.Set) *Metrics {
	if set == nil {
		set = metrics.NewSet()
	}
	return &Metrics{set: set}
}

// OnStoreOp implements mcstore.Observer.
func (m *Metrics) OnStoreOp(_ context.Context, op, _ string, hit bool, err error, dur time.Duration, driver storecore.Driver) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`mcstore_ops_total{op=%q,driver=%q,result=%q}`, op, driver, result(op, hit, err))).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`mcstore_op_duration_seconds{op=%q,driver=%q}`, op, driver)).Update(dur.Seconds())
}

// Count returns the current value of one ops counter.
func (m *Metrics) Count(op string, driver storecore.Driver, result string) uint64 {
	return m.set.GetOrCreateCounter(fmt.Sprintf(`mcstore_ops_total{op=%q,driver=%q,result=%q}`, op, driver, result)).Get()
}

// WritePrometheus writes all recorded metrics in Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
