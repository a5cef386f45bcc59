// Package fileclient implements storecore.Client on a directory of files, one
// file per key. Each prefix gets its own subdirectory so Flush only touches
// that namespace.
package fileclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goforj/mcstore/codec"
	"github.com/goforj/mcstore/storecore"
)

var (
	createTempFile = os.CreateTemp
	renameFile     = os.Rename
)

var recordMagic = []byte("MCF1")

const headerLen = 12

// ErrCorruptRecord is returned for files that do not carry a record header.
// The file is removed.
var ErrCorruptRecord = errors.New("file: corrupt record")

// Config configures the file driver.
type Config struct {
	storecore.BaseConfig `mapstructure:",squash"`
	Dir                  string `mapstructure:"dir"`
}

type store struct {
	dir      string
	cfg      Config
	pipeline *codec.Pipeline
}

// New is the file driver's storecore.Factory. "dir" defaults to a directory
// under os.TempDir.
func New(opts storecore.Options) (storecore.Client, error) {
	var cfg Config
	if err := storecore.DecodeOptions(opts, &cfg); err != nil {
		return nil, err
	}
	return NewClient(cfg)
}

// NewClient builds the client and creates its namespace directory.
func NewClient(cfg Config) (storecore.Client, error) {
	cfg.BaseConfig = cfg.BaseConfig.WithDefaults()
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "mcstore")
	}
	pipeline, err := codec.NewPipeline(cfg.BaseConfig)
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	dir := filepath.Join(cfg.Dir, hex.EncodeToString([]byte(cfg.Prefix)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &store{dir: dir, cfg: cfg, pipeline: pipeline}, nil
}

func (s *store) Driver() storecore.Driver { return storecore.DriverFile }

// Dir returns the namespace directory.
func (s *store) Dir() string { return s.dir }

func (s *store) Get(_ context.Context, key string) (storecore.Value, bool, error) {
	path := s.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	// Stale and corrupt records stay on disk: a Set may have renamed a fresh
	// record into place since the read. Set and Flush reclaim them.
	if len(data) < headerLen || !bytes.Equal(data[:4], recordMagic) {
		return nil, false, ErrCorruptRecord
	}
	if exp := int64(binary.BigEndian.Uint64(data[4:headerLen])); time.Now().UnixNano() > exp {
		return nil, false, nil
	}
	value, err := s.pipeline.Decode(data[headerLen:])
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set writes to a temp file and renames it over the key's file.
func (s *store) Set(_ context.Context, key string, value storecore.Value, ttl time.Duration) error {
	body, err := s.pipeline.Encode(value)
	if err != nil {
		return err
	}
	var header [headerLen]byte
	copy(header[:4], recordMagic)
	binary.BigEndian.PutUint64(header[4:], uint64(time.Now().Add(s.cfg.TTL(ttl)).UnixNano()))

	tmp, err := createTempFile(s.dir, "tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(header[:], body...)); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := renameFile(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *store) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *store) GetMulti(ctx context.Context, keys []string) (map[string]storecore.Value, error) {
	out := make(map[string]storecore.Value, len(keys))
	for _, key := range keys {
		value, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = value
		}
	}
	return out, nil
}

// Flush removes every record in the namespace directory.
func (s *store) Flush(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cache") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *store) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".cache")
}
