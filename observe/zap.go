package observe

import (
	"context"
	"time"

	"github.com/goforj/mcstore"
	"github.com/goforj/mcstore/storecore"
	"go.uber.org/zap"
)

// Zap logs every operation to l: failures at warn level, the rest at debug.
func Zap(l *zap.Logger) mcstore.Observer {
	if l == nil {
		l = zap.NewNop()
	}
	return mcstore.ObserverFunc(func(_ context.Context, op, key string, hit bool, err error, dur time.Duration, driver storecore.Driver) {
		fields := []zap.Field{
			zap.String("op", op),
			zap.String("key", key),
			zap.String("driver", string(driver)),
			zap.String("result", result(op, hit, err)),
			zap.Duration("duration", dur),
		}
		if err != nil {
			l.Warn("store op failed", append(fields, zap.Error(err))...)
			return
		}
		l.Debug("store op", fields...)
	})
}
