package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var (
	encryptionMagic = []byte("ENC1")

	ErrEncryptionKey = errors.New("codec: encryption key must be 16, 24, or 32 bytes")
	ErrDecryptFailed = errors.New("codec: decrypt failed")
)

// sealOption tunes how a sealer frames and reads payloads.
type sealOption func(*sealer)

// acceptPlaintext lets open return payloads without the sealed frame
// unchanged, so values written before a key was configured stay readable.
func acceptPlaintext(s *sealer) { s.plaintext = true }

// withNonceSize overrides the GCM nonce length written into each frame.
func withNonceSize(n int) sealOption {
	return func(s *sealer) { s.nonceSize = n }
}

// sealer wraps payloads in an AES-GCM frame:
//
//	magic(4) | nonce length(1) | nonce | ciphertext+tag
type sealer struct {
	aead      cipher.AEAD
	nonceSize int
	plaintext bool
}

func newSealer(key []byte, opts ...sealOption) (*sealer, error) {
	if len(key) == 0 {
		return nil, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrEncryptionKey
	}
	s := &sealer{}
	for _, opt := range opts {
		opt(s)
	}
	if s.nonceSize == 0 {
		s.aead, err = cipher.NewGCM(block)
	} else {
		s.aead, err = cipher.NewGCMWithNonceSize(block, s.nonceSize)
	}
	if err != nil {
		return nil, err
	}
	s.nonceSize = s.aead.NonceSize()
	if s.nonceSize > 0xff {
		return nil, ErrEncryptionKey
	}
	return s, nil
}

func (s *sealer) headerLen() int { return len(encryptionMagic) + 1 + s.nonceSize }

func (s *sealer) seal(plain []byte) ([]byte, error) {
	hl := s.headerLen()
	out := make([]byte, hl, hl+len(plain)+s.aead.Overhead())
	copy(out, encryptionMagic)
	out[len(encryptionMagic)] = byte(s.nonceSize)
	nonce := out[len(encryptionMagic)+1 : hl]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(out, nonce, plain, nil), nil
}

func (s *sealer) open(in []byte) ([]byte, error) {
	if !bytes.HasPrefix(in, encryptionMagic) || len(in) == len(encryptionMagic) {
		if s.plaintext {
			return in, nil
		}
		return nil, ErrDecryptFailed
	}
	rest := in[len(encryptionMagic):]
	n := int(rest[0])
	rest = rest[1:]
	if n != s.nonceSize || len(rest) < n+s.aead.Overhead() {
		return nil, ErrDecryptFailed
	}
	plain, err := s.aead.Open(nil, rest[:n], rest[n:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
