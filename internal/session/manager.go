package session

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ladderflow/engine/internal/models"
)

// Store is the persistent collaborator the Manager reads through and
// writes durably to before a turn's response is returned (spec §5, §6):
// key-value by session-id, no queries beyond primary key.
type Store interface {
	Get(ctx context.Context, sessionID string) ([]byte, error)
	Put(ctx context.Context, sessionID string, data []byte) error
	Delete(ctx context.Context, sessionID string) error
}

type cacheEntry struct {
	sessionID string
	session   *Session
	expiresAt time.Time
}

// Manager is the in-process TTL/LRU cache of session snapshots in front of
// the persistent Store (spec §5's "pure cache, authoritative data is in the
// persistent store"), adapted from the teacher's ConditionCache LRU
// structure (internal/application/engine/condition_cache.go) with an added
// per-entry expiry and a per-session lock for turn serialization.
type Manager struct {
	mu       sync.Mutex
	cache    map[string]*list.Element
	lruList  *list.List
	capacity int
	ttl      time.Duration
	store    Store

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager builds a Manager with the given LRU capacity and TTL (spec §5
// names 30 minutes as the default).
func NewManager(capacity int, ttl time.Duration, store Store) *Manager {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Manager{
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
		capacity: capacity,
		ttl:      ttl,
		store:    store,
		locks:    make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the per-session-id mutex, creating it on first use.
// Turns for the same session never interleave (spec §5); different
// sessions proceed independently.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// WithLock runs fn holding sessionID's turn lock.
func (m *Manager) WithLock(sessionID string, fn func() error) error {
	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// Load returns the session for sessionID, serving from cache when fresh
// and falling back to the persistent store (reconstructing the Session
// from its JSON snapshot) on a miss or expiry.
func (m *Manager) Load(ctx context.Context, sessionID string) (*Session, error) {
	if sess, ok := m.fromCache(sessionID); ok {
		return sess, nil
	}

	data, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var snap models.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSnapshotCorrupt, err)
	}
	sess, err := FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	m.put(sessionID, sess)
	return sess, nil
}

func (m *Manager) fromCache(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.cache[sessionID]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		m.lruList.Remove(el)
		delete(m.cache, sessionID)
		return nil, false
	}
	m.lruList.MoveToFront(el)
	return entry.session, true
}

// Save persists sess's snapshot durably before returning, then refreshes
// the cache entry (spec §5: "persist must be durable before the response
// is returned").
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess.ToSnapshot())
	if err != nil {
		return fmt.Errorf("session: marshal snapshot: %w", err)
	}
	if err := m.store.Put(ctx, sess.SessionID, data); err != nil {
		return err
	}
	m.put(sess.SessionID, sess)
	return nil
}

func (m *Manager) put(sessionID string, sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.cache[sessionID]; ok {
		m.lruList.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		entry.session = sess
		entry.expiresAt = time.Now().Add(m.ttl)
		return
	}
	el := m.lruList.PushFront(&cacheEntry{sessionID: sessionID, session: sess, expiresAt: time.Now().Add(m.ttl)})
	m.cache[sessionID] = el
	if m.lruList.Len() > m.capacity {
		m.evictOldest()
	}
}

func (m *Manager) evictOldest() {
	oldest := m.lruList.Back()
	if oldest == nil {
		return
	}
	m.lruList.Remove(oldest)
	delete(m.cache, oldest.Value.(*cacheEntry).sessionID)
}

// Delete evicts sessionID from the cache and removes it from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if el, ok := m.cache[sessionID]; ok {
		m.lruList.Remove(el)
		delete(m.cache, sessionID)
	}
	m.mu.Unlock()
	return m.store.Delete(ctx, sessionID)
}
