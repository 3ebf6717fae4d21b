package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kamal-hamza/cardforge/internal/core/domain"
	"github.com/kamal-hamza/cardforge/internal/core/ports"
)

const (
	recordExt     = ".json"
	tempPattern   = ".tmp-*"
	lockPrefix    = "."
	lockSuffix    = ".lock"
	defaultRetry  = 25 * time.Millisecond
	recordPerm    = 0644
	recordDirPerm = 0755
)

// FileRecordStore keeps one JSON file per record under <root>/<kind>/<id>.json.
// Writes go through a temp file and a rename, so a reader sees either the old
// or the new record. Writers of the same id are serialized in-process by a
// keyed mutex and across processes by a lock file next to the record.
type FileRecordStore struct {
	root       string
	retryDelay time.Duration
	locks      *keyedMutex
}

// NewFileRecordStore creates a store rooted at dir. retry is the poll
// interval while waiting on another process's lock; zero uses a default.
func NewFileRecordStore(dir string, retry time.Duration) *FileRecordStore {
	if retry <= 0 {
		retry = defaultRetry
	}
	return &FileRecordStore{
		root:       dir,
		retryDelay: retry,
		locks:      newKeyedMutex(),
	}
}

// Ensure it implements the interface
var _ ports.RecordStore = (*FileRecordStore)(nil)

func (s *FileRecordStore) kindDir(kind ports.Kind) string {
	return filepath.Join(s.root, string(kind))
}

func (s *FileRecordStore) recordPath(kind ports.Kind, id string) string {
	return filepath.Join(s.kindDir(kind), id+recordExt)
}

func (s *FileRecordStore) lockPath(kind ports.Kind, id string) string {
	return filepath.Join(s.kindDir(kind), lockPrefix+id+lockSuffix)
}

// Load decodes a record into out
func (s *FileRecordStore) Load(ctx context.Context, kind ports.Kind, id string, out any) error {
	if err := domain.ValidateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.read(kind, id, out)
	return err
}

func (s *FileRecordStore) read(kind ports.Kind, id string, out any) (bool, error) {
	data, err := os.ReadFile(s.recordPath(kind, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, domain.Wrap(domain.ErrNotFound, "load", string(kind), id, nil)
		}
		return false, domain.Wrap(domain.ErrIO, "load", string(kind), id, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return true, domain.Wrap(domain.ErrCorruptRecord, "load", string(kind), id, errors.New("empty record"))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, domain.Wrap(domain.ErrCorruptRecord, "load", string(kind), id, err)
	}
	return true, nil
}

// Save atomically replaces a record
func (s *FileRecordStore) Save(ctx context.Context, kind ports.Kind, id string, record any) error {
	if err := domain.ValidateID(id); err != nil {
		return err
	}
	unlock, err := s.lock(ctx, kind, id)
	if err != nil {
		return err
	}
	defer unlock()

	return s.write(kind, id, record)
}

// Update runs fn between a read and a write while holding the record lock
func (s *FileRecordStore) Update(ctx context.Context, kind ports.Kind, id string, out any, fn func(exists bool) error) error {
	if err := domain.ValidateID(id); err != nil {
		return err
	}
	unlock, err := s.lock(ctx, kind, id)
	if err != nil {
		return err
	}
	defer unlock()

	exists, err := s.read(kind, id, out)
	if err != nil && !domain.IsNotFound(err) {
		return err
	}

	if err := fn(exists); err != nil {
		if errors.Is(err, ports.ErrSkipWrite) {
			return nil
		}
		return err
	}

	return s.write(kind, id, out)
}

func (s *FileRecordStore) write(kind ports.Kind, id string, record any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return domain.Wrap(domain.ErrValidation, "save", string(kind), id, err)
	}

	dir := s.kindDir(kind)
	if err := os.MkdirAll(dir, recordDirPerm); err != nil {
		return domain.Wrap(domain.ErrIO, "save", string(kind), id, err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return domain.Wrap(domain.ErrIO, "save", string(kind), id, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return domain.Wrap(domain.ErrIO, "save", string(kind), id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return domain.Wrap(domain.ErrIO, "save", string(kind), id, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.Wrap(domain.ErrIO, "save", string(kind), id, err)
	}
	if err := os.Chmod(tmpName, recordPerm); err != nil {
		return domain.Wrap(domain.ErrIO, "save", string(kind), id, err)
	}
	if err := os.Rename(tmpName, s.recordPath(kind, id)); err != nil {
		return domain.Wrap(domain.ErrIO, "save", string(kind), id, err)
	}
	committed = true
	return nil
}

// Delete removes a record; a missing record is not an error
func (s *FileRecordStore) Delete(ctx context.Context, kind ports.Kind, id string) error {
	if err := domain.ValidateID(id); err != nil {
		return err
	}
	unlock, err := s.lock(ctx, kind, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.recordPath(kind, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.Wrap(domain.ErrIO, "delete", string(kind), id, err)
	}
	return nil
}

// ListIDs returns record ids in directory order
func (s *FileRecordStore) ListIDs(ctx context.Context, kind ports.Kind) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.kindDir(kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, domain.Wrap(domain.ErrIO, "list", string(kind), "", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, recordExt))
	}
	return ids, nil
}

// lock takes the in-process mutex for the id, then the cross-process file lock
func (s *FileRecordStore) lock(ctx context.Context, kind ports.Kind, id string) (func(), error) {
	key := string(kind) + "/" + id
	if err := s.locks.Lock(ctx, key); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.kindDir(kind), recordDirPerm); err != nil {
		s.locks.Unlock(key)
		return nil, domain.Wrap(domain.ErrIO, "lock", string(kind), id, err)
	}

	fl := flock.New(s.lockPath(kind, id))
	ok, err := fl.TryLockContext(ctx, s.retryDelay)
	if err != nil || !ok {
		s.locks.Unlock(key)
		if err == nil {
			err = fmt.Errorf("lock %s not acquired", fl.Path())
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.Wrap(domain.ErrIO, "lock", string(kind), id, err)
	}

	return func() {
		_ = fl.Unlock()
		s.locks.Unlock(key)
	}, nil
}

// keyedMutex hands out one channel-based mutex per key. Entries are removed
// when the last holder or waiter lets go.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]*slot)}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) error {
	k.mu.Lock()
	sl, ok := k.slots[key]
	if !ok {
		sl = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = sl
	}
	sl.refs++
	k.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(key, sl)
		return ctx.Err()
	}
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	sl := k.slots[key]
	k.mu.Unlock()
	if sl == nil {
		return
	}
	<-sl.ch
	k.release(key, sl)
}

func (k *keyedMutex) release(key string, sl *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(k.slots, key)
	}
}
