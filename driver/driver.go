// Package driver maps backend names to their storecore.Factory, for callers
// that pick a backend from configuration.
package driver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goforj/mcstore/driver/bigcacheclient"
	"github.com/goforj/mcstore/driver/dynamoclient"
	"github.com/goforj/mcstore/driver/fileclient"
	"github.com/goforj/mcstore/driver/freecacheclient"
	"github.com/goforj/mcstore/driver/memcachedclient"
	"github.com/goforj/mcstore/driver/memoryclient"
	"github.com/goforj/mcstore/driver/natsclient"
	"github.com/goforj/mcstore/driver/nullclient"
	"github.com/goforj/mcstore/driver/redisclient"
	"github.com/goforj/mcstore/driver/sqlclient"
	"github.com/goforj/mcstore/storecore"
)

var factories = map[string]storecore.Factory{
	"memcached": memcachedclient.New,
	"memory":    memoryclient.New,
	"file":      fileclient.New,
	"null":      nullclient.New,
	"bigcache":  bigcacheclient.New,
	"freecache": freecacheclient.New,
	"redis":     redisclient.New,
	"nats":      natsclient.New,
	"dynamodb":  dynamoclient.New,
	"sql":       sqlclient.New,
	"sqlite":    sqlclient.NewSQLite,
	"postgres":  sqlclient.NewPostgres,
	"mysql":     sqlclient.NewMySQL,
}

// Lookup returns the factory registered under name, ignoring case.
func Lookup(name string) (storecore.Factory, error) {
	f, ok := factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return f, nil
}

// Names lists the registered driver names in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
