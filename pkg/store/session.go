package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"data-explorer-be/pkg/ai/parser"
	"data-explorer-be/pkg/dataset"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrVersionConflict = errors.New("session was modified concurrently")
	ErrNoDataset       = errors.New("session requires a dataset")
)

// Interaction is one completed turn. History entries are never modified once
// appended.
type Interaction struct {
	Query          string              `json:"query"`
	Classification string              `json:"classification"`
	Explanation    string              `json:"explanation,omitempty"`
	Charts         []parser.ChartSpec  `json:"charts,omitempty"`
	Suggestions    []parser.Suggestion `json:"suggestions,omitempty"`
	Error          string              `json:"error,omitempty"`
	Insight        *parser.Insight     `json:"insight,omitempty"`
	Dataset        *dataset.Dataset    `json:"dataset,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Session holds the current dataset and the conversation that produced it.
// Version increases by one on every mutation.
type Session struct {
	ID        string           `json:"id"`
	Dataset   *dataset.Dataset `json:"dataset"`
	History   []Interaction    `json:"history"`
	Version   int64            `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Clone copies the session header and history slice. Datasets are immutable
// and shared.
func (s *Session) Clone() *Session {
	out := *s
	out.History = append([]Interaction(nil), s.History...)
	return &out
}

// Window returns at most the last n interactions.
func Window(history []Interaction, n int) []Interaction {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	return append([]Interaction(nil), history...)
}

func NewSessionID() string {
	return uuid.New().String()
}

// SessionStore owns every session. Implementations must make Commit atomic:
// either the dataset swap and the history append both happen, or neither.
type SessionStore interface {
	Create(ctx context.Context, ds *dataset.Dataset) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, id string, ds *dataset.Dataset) error
	AppendHistory(ctx context.Context, id string, it Interaction) error
	GetHistory(ctx context.Context, id string) ([]Interaction, error)
	// Commit applies a finished turn if the session is still at
	// expectedVersion. A nil ds keeps the current dataset. Returns the new
	// version or ErrVersionConflict.
	Commit(ctx context.Context, id string, expectedVersion int64, ds *dataset.Dataset, it Interaction) (int64, error)
	Delete(ctx context.Context, id string) error
}
