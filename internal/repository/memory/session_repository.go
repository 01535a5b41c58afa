package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/store"
)

// SessionRepository keeps sessions in process memory. Entries expire after
// ttl without writes.
type SessionRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
	now   func() time.Time
}

var _ store.SessionStore = &SessionRepository{}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	cleanup := ttl / 6
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &SessionRepository{
		cache: cache.New(ttl, cleanup),
		now:   time.Now,
	}
}

func (r *SessionRepository) Create(ctx context.Context, ds *dataset.Dataset) (*store.Session, error) {
	if ds == nil {
		return nil, store.ErrNoDataset
	}
	now := r.now()
	s := &store.Session{
		ID:        store.NewSessionID(),
		Dataset:   ds,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Set(s.ID, s, cache.DefaultExpiration)
	return s.Clone(), nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*store.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.load(id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (r *SessionRepository) Put(ctx context.Context, id string, ds *dataset.Dataset) error {
	if ds == nil {
		return store.ErrNoDataset
	}
	return r.mutate(id, func(s *store.Session) error {
		s.Dataset = ds
		return nil
	})
}

func (r *SessionRepository) AppendHistory(ctx context.Context, id string, it store.Interaction) error {
	return r.mutate(id, func(s *store.Session) error {
		s.History = append(s.History, it)
		return nil
	})
}

func (r *SessionRepository) GetHistory(ctx context.Context, id string) ([]store.Interaction, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.History, nil
}

func (r *SessionRepository) Commit(ctx context.Context, id string, expectedVersion int64, ds *dataset.Dataset, it store.Interaction) (int64, error) {
	var version int64
	err := r.mutate(id, func(s *store.Session) error {
		if s.Version != expectedVersion {
			return store.ErrVersionConflict
		}
		if ds != nil {
			s.Dataset = ds
		}
		s.History = append(s.History, it)
		version = s.Version + 1
		return nil
	})
	return version, err
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.load(id); err != nil {
		return err
	}
	r.cache.Delete(id)
	return nil
}

func (r *SessionRepository) load(id string) (*store.Session, error) {
	if x, found := r.cache.Get(id); found {
		return x.(*store.Session), nil
	}
	return nil, store.ErrSessionNotFound
}

// mutate applies fn to a private copy and swaps it in only when fn succeeds.
func (r *SessionRepository) mutate(id string, fn func(s *store.Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.load(id)
	if err != nil {
		return err
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = r.now()
	r.cache.Set(id, next, cache.DefaultExpiration)
	return nil
}
