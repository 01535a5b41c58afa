package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/store"
)

const (
	sessionKeyPrefix = "session:"
	historySuffix    = ":history"
	defaultTTL       = 24 * time.Hour
	maxWriteRetries  = 5
)

// sessionRecord is the stored header; history lives in a separate list so
// appends never rewrite earlier entries.
type sessionRecord struct {
	ID        string           `json:"id"`
	Dataset   *dataset.Dataset `json:"dataset"`
	Version   int64            `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// SessionRepository stores sessions in Redis with optimistic locking.
type SessionRepository struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ store.SessionStore = &SessionRepository{}

func NewSessionRepository(client *goredis.Client, ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &SessionRepository{client: client, ttl: ttl}
}

func (r *SessionRepository) Create(ctx context.Context, ds *dataset.Dataset) (*store.Session, error) {
	if ds == nil {
		return nil, store.ErrNoDataset
	}
	now := time.Now().UTC()
	rec := sessionRecord{
		ID:        store.NewSessionID(),
		Dataset:   ds,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := r.client.Set(ctx, r.key(rec.ID), val, r.ttl).Err(); err != nil {
		return nil, err
	}
	return &store.Session{
		ID:        rec.ID,
		Dataset:   ds,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*store.Session, error) {
	rec, err := r.readRecord(ctx, r.client, id)
	if err != nil {
		return nil, err
	}
	history, err := r.readHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	// sliding expiry on read
	pipe := r.client.Pipeline()
	pipe.Expire(ctx, r.key(id), r.ttl)
	pipe.Expire(ctx, r.historyKey(id), r.ttl)
	_, _ = pipe.Exec(ctx)

	return &store.Session{
		ID:        rec.ID,
		Dataset:   rec.Dataset,
		History:   history,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (r *SessionRepository) Put(ctx context.Context, id string, ds *dataset.Dataset) error {
	if ds == nil {
		return store.ErrNoDataset
	}
	return r.retry(func() error {
		_, err := r.write(ctx, id, -1, ds, nil)
		return err
	})
}

func (r *SessionRepository) AppendHistory(ctx context.Context, id string, it store.Interaction) error {
	return r.retry(func() error {
		_, err := r.write(ctx, id, -1, nil, &it)
		return err
	})
}

func (r *SessionRepository) GetHistory(ctx context.Context, id string) ([]store.Interaction, error) {
	if _, err := r.readRecord(ctx, r.client, id); err != nil {
		return nil, err
	}
	return r.readHistory(ctx, id)
}

func (r *SessionRepository) Commit(ctx context.Context, id string, expectedVersion int64, ds *dataset.Dataset, it store.Interaction) (int64, error) {
	version, err := r.write(ctx, id, expectedVersion, ds, &it)
	if errors.Is(err, goredis.TxFailedErr) {
		return 0, store.ErrVersionConflict
	}
	return version, err
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id), r.historyKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

// write updates the header and optionally appends to history inside one
// MULTI/EXEC guarded by WATCH on the header. expectedVersion < 0 skips the
// version check.
func (r *SessionRepository) write(ctx context.Context, id string, expectedVersion int64, ds *dataset.Dataset, it *store.Interaction) (int64, error) {
	key := r.key(id)
	var version int64

	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		rec, err := r.readRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if expectedVersion >= 0 && rec.Version != expectedVersion {
			return store.ErrVersionConflict
		}

		if ds != nil {
			rec.Dataset = ds
		}
		rec.Version++
		rec.UpdatedAt = time.Now().UTC()
		version = rec.Version

		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		var entry []byte
		if it != nil {
			if entry, err = json.Marshal(it); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, val, r.ttl)
			if entry != nil {
				pipe.RPush(ctx, r.historyKey(id), entry)
			}
			pipe.Expire(ctx, r.historyKey(id), r.ttl)
			return nil
		})
		return err
	}, key)

	return version, err
}

func (r *SessionRepository) retry(fn func() error) error {
	var err error
	for i := 0; i < maxWriteRetries; i++ {
		if err = fn(); !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return store.ErrVersionConflict
}

func (r *SessionRepository) readRecord(ctx context.Context, c getter, id string) (*sessionRecord, error) {
	val, err := c.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec sessionRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SessionRepository) readHistory(ctx context.Context, id string) ([]store.Interaction, error) {
	raw, err := r.client.LRange(ctx, r.historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	history := make([]store.Interaction, 0, len(raw))
	for _, item := range raw {
		var it store.Interaction
		if err := json.Unmarshal([]byte(item), &it); err != nil {
			return nil, err
		}
		history = append(history, it)
	}
	return history, nil
}

func (r *SessionRepository) key(id string) string {
	return sessionKeyPrefix + id
}

func (r *SessionRepository) historyKey(id string) string {
	return sessionKeyPrefix + id + historySuffix
}
