package natsclient

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

type stubKeyValue struct {
	mu      sync.Mutex
	bucket  string
	rev     uint64
	entries map[string]*stubEntry

	getErr    error
	putErr    error
	deleteErr error
	purgeErr  error
	listErr   error

	// readRev remembers the revision each Get returned. A Purge carrying
	// options is treated as guarded by that revision, the way
	// nats.LastRevision guards it on a real bucket.
	readRev map[string]uint64
	// afterGet runs once a Get has released the lock.
	afterGet func(key string)
}

func newStubKeyValue(bucket string) *stubKeyValue {
	return &stubKeyValue{bucket: bucket, entries: make(map[string]*stubEntry), readRev: make(map[string]uint64)}
}

func (s *stubKeyValue) Get(key string) (nats.KeyValueEntry, error) {
	entry, err := s.get(key)
	if s.afterGet != nil {
		s.afterGet(key)
	}
	return entry, err
}

func (s *stubKeyValue) get(key string) (nats.KeyValueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}
	if entry.op == nats.KeyValueDelete || entry.op == nats.KeyValuePurge {
		return nil, nats.ErrKeyDeleted
	}
	s.readRev[key] = entry.revision
	cp := *entry
	cp.value = append([]byte(nil), entry.value...)
	return &cp, nil
}

func (s *stubKeyValue) Put(key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return 0, s.putErr
	}
	s.rev++
	s.entries[key] = &stubEntry{
		bucket:   s.bucket,
		key:      key,
		value:    append([]byte(nil), value...),
		revision: s.rev,
		created:  time.Now(),
		op:       nats.KeyValuePut,
	}
	return s.rev, nil
}

func (s *stubKeyValue) Delete(key string, _ ...nats.DeleteOpt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.rev++
	s.entries[key] = &stubEntry{bucket: s.bucket, key: key, revision: s.rev, created: time.Now(), op: nats.KeyValueDelete}
	return nil
}

func (s *stubKeyValue) Purge(key string, opts ...nats.DeleteOpt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.purgeErr != nil {
		return s.purgeErr
	}
	if len(opts) > 0 {
		if entry, ok := s.entries[key]; ok && entry.revision != s.readRev[key] {
			return nats.ErrKeyExists
		}
	}
	delete(s.entries, key)
	return nil
}

func (s *stubKeyValue) ListKeys(_ ...nats.WatchOpt) (nats.KeyLister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if entry.op == nats.KeyValuePut {
			keys = append(keys, key)
		}
	}
	return newStubLister(keys), nil
}

func (s *stubKeyValue) raw(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

type stubEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
	delta    uint64
	op       nats.KeyValueOp
}

func (e *stubEntry) Bucket() string             { return e.bucket }
func (e *stubEntry) Key() string                { return e.key }
func (e *stubEntry) Value() []byte              { return e.value }
func (e *stubEntry) Revision() uint64           { return e.revision }
func (e *stubEntry) Created() time.Time         { return e.created }
func (e *stubEntry) Delta() uint64              { return e.delta }
func (e *stubEntry) Operation() nats.KeyValueOp { return e.op }

type stubLister struct {
	keysCh chan string
	errCh  chan error
}

func newStubLister(keys []string) *stubLister {
	keysCh := make(chan string, len(keys))
	errCh := make(chan error)
	for _, key := range keys {
		keysCh <- key
	}
	close(keysCh)
	close(errCh)
	return &stubLister{keysCh: keysCh, errCh: errCh}
}

func (l *stubLister) Keys() <-chan string { return l.keysCh }
func (l *stubLister) Error() <-chan error { return l.errCh }
func (l *stubLister) Stop() error         { return nil }
