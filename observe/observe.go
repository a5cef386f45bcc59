// Package observe provides mcstore.Observer implementations for structured
// logging (zap, logrus), Prometheus-format metrics (VictoriaMetrics) and
// OpenTelemetry.
package observe

import (
	"context"
	"time"

	"github.com/goforj/mcstore"
	"github.com/goforj/mcstore/storecore"
)

// Chain fans each event out to every non-nil observer, in order.
func Chain(observers ...mcstore.Observer) mcstore.Observer {
	live := make([]mcstore.Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}
	return mcstore.ObserverFunc(func(ctx context.Context, op, key string, hit bool, err error, dur time.Duration, driver storecore.Driver) {
		for _, o := range live {
			o.OnStoreOp(ctx, op, key, hit, err, dur, driver)
		}
	})
}

// result classifies an event as "error", "hit", "miss" or "ok".
func result(op string, hit bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case op == "get" || op == "get_many":
		if hit {
			return "hit"
		}
		return "miss"
	default:
		return "ok"
	}
}
