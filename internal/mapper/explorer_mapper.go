package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"data-explorer-be/internal/model"
	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/store"
)

type ExplorerMapper struct{}

func NewExplorerMapper() *ExplorerMapper {
	return &ExplorerMapper{}
}

func (m *ExplorerMapper) DatasetToJSON(ds *dataset.Dataset) (datatypes.JSON, error) {
	raw, err := json.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func (m *ExplorerMapper) DatasetFromJSON(raw datatypes.JSON) (*dataset.Dataset, error) {
	var ds dataset.Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}

func (m *ExplorerMapper) SessionToStore(s *model.ExplorerSession, rows []*model.ExplorerInteraction) (*store.Session, error) {
	ds, err := m.DatasetFromJSON(s.Dataset)
	if err != nil {
		return nil, err
	}
	history, err := m.InteractionsToStore(rows)
	if err != nil {
		return nil, err
	}
	return &store.Session{
		ID:        s.Id.String(),
		Dataset:   ds,
		History:   history,
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}, nil
}

func (m *ExplorerMapper) InteractionToModel(sessionID uuid.UUID, seq int64, it store.Interaction) (*model.ExplorerInteraction, error) {
	payload, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("encode interaction: %w", err)
	}
	return &model.ExplorerInteraction{
		SessionId: sessionID,
		Seq:       seq,
		Query:     it.Query,
		Payload:   datatypes.JSON(payload),
	}, nil
}

func (m *ExplorerMapper) InteractionsToStore(rows []*model.ExplorerInteraction) ([]store.Interaction, error) {
	history := make([]store.Interaction, 0, len(rows))
	for _, row := range rows {
		var it store.Interaction
		if err := json.Unmarshal(row.Payload, &it); err != nil {
			return nil, fmt.Errorf("decode interaction %d: %w", row.Seq, err)
		}
		history = append(history, it)
	}
	return history, nil
}
