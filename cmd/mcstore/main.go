// Command mcstore drives a cache store from the command line.
//
// The backend is chosen with --driver and configured with repeated
// --opt key=value flags. Scalar flags can also come from MCSTORE_*
// environment variables or from .env and .env.local files.
//
//	mcstore --driver memcached --opt addresses=127.0.0.1:11211 set greeting hello
//	MCSTORE_DRIVER=sqlite mcstore --opt dsn=/tmp/cache.db get-many a b c
package main

import (
	"os"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
