package codec

import (
	"github.com/goforj/mcstore/storecore"
)

// Pipeline encodes values for storage: marshal, then compress, then encrypt.
// Decode runs the stages in reverse. A Pipeline is safe for concurrent use.
type Pipeline struct {
	codec       Codec
	compression storecore.CompressionCodec
	max         int
	sealer      *sealer
}

// NewPipeline builds a Pipeline from the shared driver configuration.
func NewPipeline(cfg storecore.BaseConfig) (*Pipeline, error) {
	c, err := Lookup(cfg.Codec)
	if err != nil {
		return nil, err
	}
	switch cfg.Compression {
	case "", storecore.CompressionNone, storecore.CompressionGzip, storecore.CompressionSnappy, storecore.CompressionZstd:
	default:
		return nil, ErrUnsupportedCodec
	}
	s, err := newSealer(cfg.EncryptionKey, acceptPlaintext)
	if err != nil {
		return nil, err
	}
	return &Pipeline{codec: c, compression: cfg.Compression, max: cfg.MaxValueBytes, sealer: s}, nil
}

// Codec reports the value codec in use.
func (p *Pipeline) Codec() Codec { return p.codec }

// Encode turns v into its stored byte form.
func (p *Pipeline) Encode(v storecore.Value) ([]byte, error) {
	body, err := p.codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	body, err = compress(p.compression, p.max, body)
	if err != nil {
		return nil, err
	}
	if p.sealer == nil {
		return body, nil
	}
	return p.sealer.seal(body)
}

// Decode turns a stored payload back into a value.
func (p *Pipeline) Decode(body []byte) (storecore.Value, error) {
	var err error
	if p.sealer != nil {
		if body, err = p.sealer.open(body); err != nil {
			return nil, err
		}
	}
	if p.compressed() {
		if body, err = decompress(body); err != nil {
			return nil, err
		}
	}
	return p.codec.Unmarshal(body)
}

// compressed reports whether stored payloads carry a compression frame.
// Without compression, bytes that happen to start with the frame magic
// belong to the value itself.
func (p *Pipeline) compressed() bool {
	return p.compression != "" && p.compression != storecore.CompressionNone
}
