package mcstore

import "github.com/goforj/mcstore/storecore"

// Bind validates driver and options and constructs the backend client.
//
// A missing driver or an empty options bundle fails with *ConfigurationError
// before the driver runs. The driver is called exactly once; its error comes
// back as *DriverConstructionError.
func Bind(driver storecore.Factory, options storecore.Options) (storecore.Client, error) {
	if driver == nil {
		return nil, &ConfigurationError{Field: "driver"}
	}
	if len(options) == 0 {
		return nil, &ConfigurationError{Field: "options"}
	}
	client, err := driver(options)
	if err != nil {
		return nil, &DriverConstructionError{Err: err}
	}
	if client == nil {
		return nil, &DriverConstructionError{Err: ErrNilClient}
	}
	return client, nil
}
