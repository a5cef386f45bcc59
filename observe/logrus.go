package observe

import (
	"context"
	"time"

	"github.com/goforj/mcstore"
	"github.com/goforj/mcstore/storecore"
	"github.com/sirupsen/logrus"
)

// Logrus logs every operation to e with the same levels as Zap.
func Logrus(e *logrus.Entry) mcstore.Observer {
	return mcstore.ObserverFunc(func(_ context.Context, op, key string, hit bool, err error, dur time.Duration, driver storecore.Driver) {
		entry := e.WithFields(logrus.Fields{
			"op":       op,
			"key":      key,
			"driver":   string(driver),
			"result":   result(op, hit, err),
			"duration": dur,
		})
		if err != nil {
			entry.WithError(err).Warn("store op failed")
			return
		}
		entry.Debug("store op")
	})
}
