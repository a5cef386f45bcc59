// Package codec turns store values into bytes for byte-oriented backends and back.
//
// A Pipeline chains three stages: a Codec (json, msgpack, cbor or raw), optional
// compression, and optional AES-GCM encryption. Compressed and encrypted payloads
// carry a short magic header so plain payloads written by other producers still
// decode.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes values to bytes.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

var ErrUnknownCodec = errors.New("codec: unknown value codec")

// Lookup returns the codec registered under name. An empty name selects json.
func Lookup(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	case "cbor":
		return newCBOR(), nil
	case "raw":
		return Raw{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSON encodes values with encoding/json. Numbers decode as float64.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte) (any, error) {
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Msgpack encodes values with vmihailenco/msgpack.
type Msgpack struct{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (Msgpack) Unmarshal(data []byte) (any, error) {
	var out any
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CBOR encodes values with fxamacker/cbor. Maps decode as map[string]any.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBOR() CBOR {
	eo := cbor.PreferredUnsortedEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(err)
	}
	return CBOR{enc: em, dec: dm}
}

func (CBOR) Name() string { return "cbor" }

func (c CBOR) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR) Unmarshal(data []byte) (any, error) {
	var out any
	if err := c.dec.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var ErrRawValueType = errors.New("codec: raw codec accepts only []byte or string values")

// Raw stores []byte and string values untouched and reads them back as []byte.
type Raw struct{}

func (Raw) Name() string { return "raw" }

func (Raw) Marshal(v any) ([]byte, error) {
	switch value := v.(type) {
	case []byte:
		return value, nil
	case string:
		return []byte(value), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrRawValueType, v)
	}
}

func (Raw) Unmarshal(data []byte) (any, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
