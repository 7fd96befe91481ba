// Package store persists drafts between workflow steps and guards the
// single in-flight submit per draft.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"jobmate/posting-service/internal/draft"
)

// ErrNotFound is returned for a missing or expired draft.
var ErrNotFound = errors.New("draft not found")

// ErrConflict is returned by Save when the stored draft has moved past the
// version the caller read.
var ErrConflict = errors.New("draft version conflict")

type Store interface {
	Get(ctx context.Context, id string) (*draft.Draft, error)

	// Save writes d if the stored copy is still at d.Version, then bumps
	// d.Version. A draft with version 0 must not exist yet; a draft with a
	// higher version that has since been deleted yields ErrNotFound.
	Save(ctx context.Context, d *draft.Draft) error
	Delete(ctx context.Context, id string) error

	// AcquireSubmit takes the submit lock for draft id. It returns false if
	// another submit holds it. The lock expires after ttl.
	AcquireSubmit(ctx context.Context, id string, ttl time.Duration) (bool, error)
	ReleaseSubmit(ctx context.Context, id string) error
}

// Memory keeps drafts as JSON in process memory, so callers never share a
// *draft.Draft with the store.
type Memory struct {
	mu     sync.Mutex
	drafts map[string]memEntry
	locks  map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

type memEntry struct {
	data    []byte
	version int64
	expires time.Time
}

// NewMemory returns a Memory store. A zero ttl keeps drafts forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		drafts: make(map[string]memEntry),
		locks:  make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// entry returns the live entry for id. Callers hold m.mu.
func (m *Memory) entry(id string) (memEntry, bool) {
	e, ok := m.drafts[id]
	if ok && m.ttl > 0 && !m.now().Before(e.expires) {
		delete(m.drafts, id)
		return memEntry{}, false
	}
	return e, ok
}

func (m *Memory) Get(_ context.Context, id string) (*draft.Draft, error) {
	m.mu.Lock()
	e, ok := m.entry(id)
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	var d draft.Draft
	if err := json.Unmarshal(e.data, &d); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return &d, nil
}

func (m *Memory) Save(_ context.Context, d *draft.Draft) error {
	next := d.Version + 1
	data, err := encode(d, next)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", d.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entry(d.ID)
	if err := checkVersion(e.version, ok, d.Version); err != nil {
		return err
	}
	m.drafts[d.ID] = memEntry{data: data, version: next, expires: m.now().Add(m.ttl)}
	d.Version = next
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	delete(m.locks, id)
	return nil
}

func (m *Memory) AcquireSubmit(_ context.Context, id string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, held := m.locks[id]; held && now.Before(exp) {
		return false, nil
	}
	m.locks[id] = now.Add(ttl)
	return true, nil
}

func (m *Memory) ReleaseSubmit(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, id)
	return nil
}

// encode marshals d as it will be stored at version.
func encode(d *draft.Draft, version int64) ([]byte, error) {
	cp := *d
	cp.Version = version
	return json.Marshal(&cp)
}

// checkVersion compares the stored version of a draft, if it exists, with
// the version the writer read.
func checkVersion(stored int64, exists bool, read int64) error {
	switch {
	case !exists && read > 0:
		return ErrNotFound
	case exists && stored != read:
		return ErrConflict
	}
	return nil
}
