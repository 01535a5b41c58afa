package implementation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"data-explorer-be/internal/mapper"
	"data-explorer-be/internal/model"
	"data-explorer-be/internal/repository/specification"
	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/store"
)

// ExplorerSessionRepositoryImpl persists sessions in Postgres. Every write runs
// in one transaction and is guarded by the version column.
type ExplorerSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ExplorerMapper
}

var _ store.SessionStore = &ExplorerSessionRepositoryImpl{}

func NewExplorerSessionRepository(db *gorm.DB) *ExplorerSessionRepositoryImpl {
	return &ExplorerSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewExplorerMapper(),
	}
}

func (r *ExplorerSessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ExplorerSessionRepositoryImpl) Create(ctx context.Context, ds *dataset.Dataset) (*store.Session, error) {
	if ds == nil {
		return nil, store.ErrNoDataset
	}
	raw, err := r.mapper.DatasetToJSON(ds)
	if err != nil {
		return nil, err
	}
	m := &model.ExplorerSession{
		Id:        uuid.New(),
		Dataset:   raw,
		Version:   1,
		UpdatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return &store.Session{
		ID:        m.Id.String(),
		Dataset:   ds,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func (r *ExplorerSessionRepositoryImpl) Get(ctx context.Context, id string) (*store.Session, error) {
	sid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	m, err := r.findSession(r.db.WithContext(ctx), sid)
	if err != nil {
		return nil, err
	}
	rows, err := r.findInteractions(r.db.WithContext(ctx), sid)
	if err != nil {
		return nil, err
	}
	return r.mapper.SessionToStore(m, rows)
}

func (r *ExplorerSessionRepositoryImpl) Put(ctx context.Context, id string, ds *dataset.Dataset) error {
	if ds == nil {
		return store.ErrNoDataset
	}
	_, err := r.write(ctx, id, -1, ds, nil)
	return err
}

func (r *ExplorerSessionRepositoryImpl) AppendHistory(ctx context.Context, id string, it store.Interaction) error {
	_, err := r.write(ctx, id, -1, nil, &it)
	return err
}

func (r *ExplorerSessionRepositoryImpl) GetHistory(ctx context.Context, id string) ([]store.Interaction, error) {
	sid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if _, err := r.findSession(r.db.WithContext(ctx), sid); err != nil {
		return nil, err
	}
	rows, err := r.findInteractions(r.db.WithContext(ctx), sid)
	if err != nil {
		return nil, err
	}
	return r.mapper.InteractionsToStore(rows)
}

func (r *ExplorerSessionRepositoryImpl) Commit(ctx context.Context, id string, expectedVersion int64, ds *dataset.Dataset, it store.Interaction) (int64, error) {
	return r.write(ctx, id, expectedVersion, ds, &it)
}

func (r *ExplorerSessionRepositoryImpl) Delete(ctx context.Context, id string) error {
	sid, err := parseID(id)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.applySpecifications(tx, specification.BySessionID{SessionID: sid}).
			Delete(&model.ExplorerInteraction{}).Error; err != nil {
			return err
		}
		res := r.applySpecifications(tx, specification.ByID{ID: sid}).Delete(&model.ExplorerSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrSessionNotFound
		}
		return nil
	})
}

// PurgeIdle removes sessions not written since cutoff and returns how many
// were deleted.
func (r *ExplorerSessionRepositoryImpl) PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := r.applySpecifications(tx.Model(&model.ExplorerSession{}).Select("id"), specification.UpdatedBefore{Cutoff: cutoff})
		if err := tx.Where("session_id IN (?)", stale).Delete(&model.ExplorerInteraction{}).Error; err != nil {
			return err
		}
		res := r.applySpecifications(tx, specification.UpdatedBefore{Cutoff: cutoff}).Delete(&model.ExplorerSession{})
		purged = res.RowsAffected
		return res.Error
	})
	return purged, err
}

// write bumps the version with a compare-and-set update and appends the
// interaction in the same transaction. expectedVersion < 0 skips the check.
func (r *ExplorerSessionRepositoryImpl) write(ctx context.Context, id string, expectedVersion int64, ds *dataset.Dataset, it *store.Interaction) (int64, error) {
	sid, err := parseID(id)
	if err != nil {
		return 0, err
	}

	var version int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.findSession(tx.Clauses(clause.Locking{Strength: "UPDATE"}), sid)
		if err != nil {
			return err
		}
		if expectedVersion >= 0 && current.Version != expectedVersion {
			return store.ErrVersionConflict
		}

		updates := map[string]any{
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		}
		if ds != nil {
			raw, err := r.mapper.DatasetToJSON(ds)
			if err != nil {
				return err
			}
			updates["dataset"] = raw
		}

		res := tx.Model(&model.ExplorerSession{}).
			Where("id = ? AND version = ?", sid, current.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrVersionConflict
		}
		version = current.Version + 1

		if it == nil {
			return nil
		}
		var seq int64
		if err := tx.Model(&model.ExplorerInteraction{}).
			Where("session_id = ?", sid).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&seq).Error; err != nil {
			return err
		}
		row, err := r.mapper.InteractionToModel(sid, seq+1, *it)
		if err != nil {
			return err
		}
		return tx.Create(row).Error
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (r *ExplorerSessionRepositoryImpl) findSession(db *gorm.DB, id uuid.UUID) (*model.ExplorerSession, error) {
	var m model.ExplorerSession
	if err := r.applySpecifications(db, specification.ByID{ID: id}).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrSessionNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *ExplorerSessionRepositoryImpl) findInteractions(db *gorm.DB, id uuid.UUID) ([]*model.ExplorerInteraction, error) {
	var rows []*model.ExplorerInteraction
	err := r.applySpecifications(db,
		specification.BySessionID{SessionID: id},
		specification.OrderBy{Field: "seq"},
	).Find(&rows).Error
	return rows, err
}

func parseID(id string) (uuid.UUID, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, store.ErrSessionNotFound
	}
	return sid, nil
}
