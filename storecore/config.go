package storecore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Options is the opaque, driver-defined bundle a Factory receives.
type Options map[string]any

// CompressionCodec names a value compression algorithm.
type CompressionCodec string

const (
	CompressionNone   CompressionCodec = "none"
	CompressionGzip   CompressionCodec = "gzip"
	CompressionSnappy CompressionCodec = "snappy"
	CompressionZstd   CompressionCodec = "zstd"
)

// BaseConfig contains shared, backend-agnostic driver configuration.
// Drivers embed it with `mapstructure:",squash"`.
type BaseConfig struct {
	DefaultTTL    time.Duration    `mapstructure:"default_ttl"`
	Prefix        string           `mapstructure:"prefix"`
	Codec         string           `mapstructure:"codec"`
	Compression   CompressionCodec `mapstructure:"compression"`
	MaxValueBytes int              `mapstructure:"max_value_bytes"`
	EncryptionKey []byte           `mapstructure:"encryption_key"`
}

var durationType = reflect.TypeOf(time.Duration(0))

// DecodeOptions decodes opts into out, a pointer to a driver config struct.
//
// Strings such as "5m" and bare numbers (seconds) decode into durations, and
// comma separated strings decode into string slices. Keys without a matching
// field are ignored.
func DecodeOptions(opts Options, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(opts)); err != nil {
		return fmt.Errorf("decode driver options: %w", err)
	}
	return nil
}

func secondsToDurationHook(f reflect.Type, t reflect.Type, data any) (any, error) {
	if t != durationType || f == durationType {
		return data, nil
	}
	switch v := reflect.ValueOf(data); v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(v.Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(v.Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(v.Float() * float64(time.Second)), nil
	default:
		return data, nil
	}
}

const (
	// DefaultTTL applies when neither the call nor the driver options carry a ttl.
	DefaultTTL = 5 * time.Minute
	// DefaultPrefix namespaces keys for drivers sharing a backend.
	DefaultPrefix = "app"
)

// WithDefaults fills unset shared fields.
func (c BaseConfig) WithDefaults() BaseConfig {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Codec == "" {
		c.Codec = "json"
	}
	if c.Compression == "" {
		c.Compression = CompressionNone
	}
	return c
}

// TTL resolves the effective ttl for a write.
func (c BaseConfig) TTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.DefaultTTL
	}
	return ttl
}

// Key namespaces key with the configured prefix.
func (c BaseConfig) Key(key string) string {
	return c.Prefix + ":" + key
}
