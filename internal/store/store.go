// Package store implements Agrama's temporal key-value store: a per-key
// version history backed by an append-only log, with snapshot-isolated
// reads and a single serialized writer.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/agrama/agrama/internal/types"
)

// Snapshot is an opaque handle that fixes the set of current versions a
// reader observes, independent of concurrent Put calls.
type Snapshot struct {
	asOf int64
}

// Store is the storage core: a mapping from key to an ordered sequence of
// versions, durable through an append-only log.
type Store struct {
	writeMu sync.Mutex // serializes all writers

	mu            sync.RWMutex
	byKey         map[string][]*types.Item
	lastTimestamp int64 // only advanced while writeMu is held

	log *appendLog
}

// Option configures a Store at construction time.
type Option func(*Store)

// Open creates or recovers a Store whose append log lives at logPath. An
// empty logPath yields a Store with no durability (used by tests).
func Open(logPath string) (*Store, error) {
	s := &Store{byKey: make(map[string][]*types.Item)}

	if logPath == "" {
		return s, nil
	}

	log, err := openAppendLog(logPath)
	if err != nil {
		return nil, err
	}
	s.log = log

	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the store's log file handle and watchers.
func (s *Store) Close() error {
	if s.log == nil {
		return nil
	}
	return s.log.Close()
}

func (s *Store) replay() error {
	records, err := s.log.Replay()
	if err != nil {
		return err
	}
	for _, rec := range records {
		item := &types.Item{
			Key:       rec.Key,
			Value:     rec.Value,
			Metadata:  rec.Metadata,
			CreatedAt: rec.CreatedAt,
			AgentID:   rec.AgentID,
			SessionID: rec.SessionID,
			Version:   rec.Version,
			Embedding: rec.Embedding,
		}
		s.byKey[rec.Key] = append(s.byKey[rec.Key], item)
		if rec.CreatedAt > s.lastTimestamp {
			s.lastTimestamp = rec.CreatedAt
		}
	}
	return nil
}

// nextTimestamp returns a value strictly greater than any previously
// issued timestamp, keeping created_at strictly monotonic across the
// whole store. Callers must hold writeMu.
func (s *Store) nextTimestamp() int64 {
	now := time.Now().UnixNano()
	if now <= s.lastTimestamp {
		now = s.lastTimestamp + 1
	}
	s.lastTimestamp = now
	return now
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Put appends a new version of key and returns its version number.
func (s *Store) Put(key string, value []byte, metadata map[string]any, agentID, sessionID string, embedding []float32) (int, error) {
	if key == "" {
		return 0, types.NewFieldError(types.KindInvalidInput, "key", "must not be empty")
	}
	if len(key) > types.MaxKeyBytes {
		return 0, types.NewFieldError(types.KindSizeExceeded, "key", "exceeds %d bytes", types.MaxKeyBytes)
	}
	if len(value) > types.MaxValueBytes {
		return 0, types.NewFieldError(types.KindSizeExceeded, "value", "exceeds %d bytes", types.MaxValueBytes)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	version := len(s.byKey[key]) + 1
	s.mu.RUnlock()

	createdAt := s.nextTimestamp()

	item := &types.Item{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Metadata:  cloneMetadata(metadata),
		CreatedAt: createdAt,
		AgentID:   agentID,
		SessionID: sessionID,
		Version:   version,
		Embedding: append([]float32(nil), embedding...),
	}

	if s.log != nil {
		rec := logRecord{
			Key: key, Value: item.Value, Metadata: item.Metadata,
			CreatedAt: createdAt, AgentID: agentID, SessionID: sessionID,
			Version: version, Embedding: item.Embedding,
		}
		if err := s.log.Append(rec); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	s.byKey[key] = append(s.byKey[key], item)
	s.mu.Unlock()

	return version, nil
}

// Get returns the current (latest) version of key.
func (s *Store) Get(key string) (*types.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.byKey[key]
	if len(hist) == 0 {
		return nil, types.NewError(types.KindNotFound, "key %q not found", key)
	}
	return hist[len(hist)-1].Clone(), nil
}

// GetSnapshot returns the version of key current as of snap.
func (s *Store) GetSnapshot(key string, snap Snapshot) (*types.Item, error) {
	return s.GetAtTimestamp(key, snap.asOf)
}

// GetAtVersion returns the exact version of key.
func (s *Store) GetAtVersion(key string, version int) (*types.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.byKey[key]
	if version < 1 || version > len(hist) {
		return nil, types.NewError(types.KindNotFound, "key %q has no version %d", key, version)
	}
	return hist[version-1].Clone(), nil
}

// GetAtTimestamp returns the latest version of key with CreatedAt <= ts.
func (s *Store) GetAtTimestamp(key string, ts int64) (*types.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.byKey[key]
	// hist is ascending by CreatedAt; binary search for the rightmost
	// entry not after ts.
	idx := sort.Search(len(hist), func(i int) bool { return hist[i].CreatedAt > ts })
	if idx == 0 {
		return nil, types.NewError(types.KindNotFound, "key %q has no version at or before %d", key, ts)
	}
	return hist[idx-1].Clone(), nil
}

// History returns up to limit versions of key in descending CreatedAt
// order, restricted to versions with CreatedAt >= since. limit <= 0
// defaults to 10.
func (s *Store) History(key string, limit int, since int64) []*types.Item {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.byKey[key]

	out := make([]*types.Item, 0, limit)
	for i := len(hist) - 1; i >= 0 && len(out) < limit; i-- {
		if hist[i].CreatedAt < since {
			break
		}
		out = append(out, hist[i].Clone())
	}
	return out
}

// Exists reports whether key has at least one version.
func (s *Store) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey[key]) > 0
}

// Snapshot returns a consistent read view token for the duration of one
// request.
func (s *Store) Snapshot() Snapshot {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return Snapshot{asOf: s.lastTimestamp}
}

// Keys returns every key currently present, for rebuild/debug paths only.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		out = append(out, k)
	}
	return out
}
