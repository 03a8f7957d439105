package profile

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBigIBruce/MTGA-Backend/cache"
	"github.com/IBigIBruce/MTGA-Backend/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const leasePrefix = "lock:profile:"

// Options configures a Manager.
type Options struct {
	// LockTTL bounds how long a writer lease survives a crashed holder.
	LockTTL           time.Duration
	StashTemplate     string
	EquipmentTemplate string
	DefaultSide       string
}

type entry struct {
	mu       sync.RWMutex
	profile  *Profile
	dirty    bool
	evicted  bool
	lastUsed atomic.Int64
}

// Stats is a point-in-time view of the in-memory profile set.
type Stats struct {
	Loaded int `json:"loaded"`
	Dirty  int `json:"dirty"`
}

// Manager keeps loaded profiles in memory and serialises access per
// character. Writers hold the character lock plus a cache lease so two
// processes sharing a Redis never mutate the same character at once.
type Manager struct {
	store  *Store
	cache  cache.Cache
	logger *zap.Logger
	opts   Options
	now    func() time.Time

	mu      sync.Mutex
	entries map[int64]*entry
}

// NewManager creates a Manager.
func NewManager(store *Store, c cache.Cache, logger *zap.Logger, opts Options) *Manager {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.DefaultSide == "" {
		opts.DefaultSide = "Usec"
	}
	return &Manager{
		store:   store,
		cache:   c,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
		entries: make(map[int64]*entry),
	}
}

func (m *Manager) entry(charID int64) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[charID]
	if !ok {
		e = &entry{}
		m.entries[charID] = e
	}
	return e
}

// load fills e.profile. Caller holds e.mu exclusively.
func (m *Manager) load(ctx context.Context, charID int64, e *entry) error {
	if e.profile != nil {
		return nil
	}
	p, err := m.store.Load(ctx, charID)
	if err != nil {
		return err
	}
	e.profile = p
	m.logger.Debug("profile loaded", zap.Int64("char_id", charID), zap.Int("items", p.tree.Len()))
	return nil
}

func (m *Manager) lease(ctx context.Context, charID int64) (func(), error) {
	key := leasePrefix + strconv.FormatInt(charID, 10)
	token := uuid.NewString()
	ok, err := m.cache.SetNX(ctx, key, token, m.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCharacterBusy
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := m.cache.DelIfValue(rctx, key, token); err != nil {
			m.logger.Warn("release profile lease", zap.Int64("char_id", charID), zap.Error(err))
		}
	}, nil
}

// Update runs fn with exclusive access to the profile. The profile is marked
// dirty whenever fn ran, because fn may have applied some steps before
// failing.
func (m *Manager) Update(ctx context.Context, charID int64, fn func(*Profile) error) error {
	for {
		e := m.entry(charID)
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		err := m.update(ctx, charID, e, fn)
		e.mu.Unlock()
		return err
	}
}

func (m *Manager) update(ctx context.Context, charID int64, e *entry, fn func(*Profile) error) error {
	if err := m.load(ctx, charID, e); err != nil {
		return err
	}
	release, err := m.lease(ctx, charID)
	if err != nil {
		return err
	}
	defer release()
	e.lastUsed.Store(m.now().UnixNano())
	err = fn(e.profile)
	e.dirty = true
	return err
}

// View runs fn with shared access to the profile. fn must not mutate it.
func (m *Manager) View(ctx context.Context, charID int64, fn func(*Profile) error) error {
	for {
		e := m.entry(charID)
		e.mu.RLock()
		if e.evicted {
			e.mu.RUnlock()
			continue
		}
		if e.profile == nil {
			e.mu.RUnlock()
			e.mu.Lock()
			err := m.load(ctx, charID, e)
			e.mu.Unlock()
			if err != nil {
				return err
			}
			continue
		}
		e.lastUsed.Store(m.now().UnixNano())
		err := fn(e.profile)
		e.mu.RUnlock()
		return err
	}
}

// Authorize checks that charID belongs to accountID. A foreign character is
// reported as not found.
func (m *Manager) Authorize(ctx context.Context, charID, accountID int64) error {
	return m.View(ctx, charID, func(p *Profile) error {
		if p.AccountID != accountID {
			return ErrCharacterNotFound
		}
		return nil
	})
}

// Create persists a new character for accountID.
func (m *Manager) Create(ctx context.Context, accountID int64, name, side string) (*model.Character, error) {
	if side == "" {
		side = m.opts.DefaultSide
	}
	char, err := m.store.Create(ctx, accountID, name, side, m.opts.StashTemplate, m.opts.EquipmentTemplate)
	if err != nil {
		return nil, err
	}
	m.logger.Info("character created", zap.Int64("char_id", char.ID), zap.Int64("account_id", accountID))
	return char, nil
}

// List returns the characters of accountID.
func (m *Manager) List(ctx context.Context, accountID int64) ([]model.Character, error) {
	return m.store.List(ctx, accountID)
}

func (m *Manager) snapshotEntries() map[int64]*entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]*entry, len(m.entries))
	for id, e := range m.entries {
		out[id] = e
	}
	return out
}

// FlushDirty saves every dirty profile and returns how many were written.
// Failed saves stay dirty and are retried on the next call.
func (m *Manager) FlushDirty(ctx context.Context) (int, error) {
	var (
		saved int
		errs  []error
	)
	for id, e := range m.snapshotEntries() {
		e.mu.Lock()
		if e.profile != nil && e.dirty {
			if err := m.store.Save(ctx, e.profile); err != nil {
				m.logger.Error("profile flush failed", zap.Int64("char_id", id), zap.Error(err))
				errs = append(errs, err)
			} else {
				e.dirty = false
				saved++
			}
		}
		e.mu.Unlock()
	}
	return saved, errors.Join(errs...)
}

// Flush saves one profile immediately if it is loaded and dirty.
func (m *Manager) Flush(ctx context.Context, charID int64) error {
	m.mu.Lock()
	e, ok := m.entries[charID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil || !e.dirty {
		return nil
	}
	if err := m.store.Save(ctx, e.profile); err != nil {
		return err
	}
	e.dirty = false
	return nil
}

// EvictIdle drops clean profiles unused for longer than idle. Entries that
// are busy or dirty are left alone.
func (m *Manager) EvictIdle(idle time.Duration) int {
	cutoff := m.now().Add(-idle).UnixNano()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if !e.mu.TryLock() {
			continue
		}
		if !e.dirty && e.lastUsed.Load() < cutoff {
			e.evicted = true
			delete(m.entries, id)
			n++
		}
		e.mu.Unlock()
	}
	if n > 0 {
		m.logger.Info("evicted idle profiles", zap.Int("count", n))
	}
	return n
}

// Stats reports how many profiles are loaded and how many are dirty.
func (m *Manager) Stats() Stats {
	var s Stats
	for _, e := range m.snapshotEntries() {
		e.mu.RLock()
		if e.profile != nil {
			s.Loaded++
			if e.dirty {
				s.Dirty++
			}
		}
		e.mu.RUnlock()
	}
	return s
}

// Close flushes every dirty profile.
func (m *Manager) Close(ctx context.Context) error {
	_, err := m.FlushDirty(ctx)
	return err
}
