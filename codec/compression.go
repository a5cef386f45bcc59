package codec

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"sync"

	"github.com/goforj/mcstore/storecore"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var (
	compressMagic = []byte("CMP1")

	ErrValueTooLarge      = errors.New("codec: value exceeds max size")
	ErrUnsupportedCodec   = errors.New("codec: unsupported compression codec")
	ErrCorruptCompression = errors.New("codec: corrupt compressed payload")
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func compress(algo storecore.CompressionCodec, max int, value []byte) ([]byte, error) {
	if max > 0 && len(value) > max {
		return nil, ErrValueTooLarge
	}
	var tag byte
	var payload []byte
	switch algo {
	case "", storecore.CompressionNone:
		return value, nil
	case storecore.CompressionGzip:
		var buf bytes.Buffer
		zw, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if _, err := zw.Write(value); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		tag, payload = 'g', buf.Bytes()
	case storecore.CompressionSnappy:
		tag, payload = 's', snappy.Encode(nil, value)
	case storecore.CompressionZstd:
		enc, _, err := zstdCoders()
		if err != nil {
			return nil, err
		}
		tag, payload = 'z', enc.EncodeAll(value, nil)
	default:
		return nil, ErrUnsupportedCodec
	}
	out := make([]byte, 0, len(compressMagic)+1+len(payload))
	out = append(out, compressMagic...)
	out = append(out, tag)
	out = append(out, payload...)
	if max > 0 && len(out) > max {
		return nil, ErrValueTooLarge
	}
	return out, nil
}

func decompress(in []byte) ([]byte, error) {
	if len(in) < len(compressMagic)+1 {
		return in, nil
	}
	if !bytes.Equal(in[:len(compressMagic)], compressMagic) {
		return in, nil
	}
	tag := in[len(compressMagic)]
	payload := in[len(compressMagic)+1:]
	switch tag {
	case 'g':
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, ErrCorruptCompression
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case 's':
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case 'z':
		_, dec, err := zstdCoders()
		if err != nil {
			return nil, err
		}
		out, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	default:
		return nil, ErrUnsupportedCodec
	}
}
