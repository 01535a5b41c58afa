// Package storetest holds the behaviour every SessionStore driver must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-explorer-be/pkg/ai/parser"
	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/store"
)

func fixture() *dataset.Dataset {
	return dataset.MustNew(
		[]dataset.Column{{Name: "region", Type: dataset.TypeString}, {Name: "net_revenue", Type: dataset.TypeFloat}},
		[][]any{{"north", 10.5}, {"south", 3.0}, {"north", nil}},
	)
}

func aggregated() *dataset.Dataset {
	return dataset.MustNew(
		[]dataset.Column{{Name: "region", Type: dataset.TypeString}, {Name: "net_revenue", Type: dataset.TypeFloat}},
		[][]any{{"north", 10.5}, {"south", 3.0}},
	)
}

func interaction(query string) store.Interaction {
	return store.Interaction{
		Query:          query,
		Classification: parser.LabelCodeGeneration,
		Explanation:    "grouped by region",
		Charts:         []parser.ChartSpec{{Type: "bar", XColumn: "region", YColumn: "net_revenue"}},
		Insight:        &parser.Insight{Insight: "north leads", FollowUpQuery: "why north?"},
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Run exercises a fresh store produced by newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.SessionStore) {
	ctx := context.Background()

	t.Run("create then get", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, fixture())
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, int64(1), created.Version)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, fixture().Equal(got.Dataset))
		assert.Empty(t, got.History)
	})

	t.Run("create requires dataset", func(t *testing.T) {
		_, err := newStore(t).Create(ctx, nil)
		assert.ErrorIs(t, err, store.ErrNoDataset)
	})

	t.Run("unknown session", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
		_, err = s.GetHistory(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
		assert.ErrorIs(t, s.Put(ctx, "missing", fixture()), store.ErrSessionNotFound)
		assert.ErrorIs(t, s.AppendHistory(ctx, "missing", interaction("q")), store.ErrSessionNotFound)
		_, err = s.Commit(ctx, "missing", 1, nil, interaction("q"))
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "missing"), store.ErrSessionNotFound)
	})

	t.Run("put and append bump version", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, fixture())
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, created.ID, aggregated()))
		require.NoError(t, s.AppendHistory(ctx, created.ID, interaction("first")))
		require.NoError(t, s.AppendHistory(ctx, created.ID, interaction("second")))

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), got.Version)
		assert.True(t, aggregated().Equal(got.Dataset))

		history, err := s.GetHistory(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "first", history[0].Query)
		assert.Equal(t, "second", history[1].Query)
		assert.Equal(t, interaction("x").Charts, history[0].Charts)
		require.NotNil(t, history[0].Insight)
		assert.Equal(t, "why north?", history[0].Insight.FollowUpQuery)
	})

	t.Run("commit replaces dataset and appends atomically", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, fixture())
		require.NoError(t, err)

		it := interaction("total revenue by region")
		it.Dataset = aggregated()
		version, err := s.Commit(ctx, created.ID, created.Version, aggregated(), it)
		require.NoError(t, err)
		assert.Equal(t, created.Version+1, version)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, version, got.Version)
		assert.True(t, aggregated().Equal(got.Dataset))
		require.Len(t, got.History, 1)
		assert.True(t, aggregated().Equal(got.History[0].Dataset))
	})

	t.Run("commit without dataset keeps current", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, fixture())
		require.NoError(t, err)

		_, err = s.Commit(ctx, created.ID, created.Version, nil, interaction("hello"))
		require.NoError(t, err)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, fixture().Equal(got.Dataset))
		assert.Len(t, got.History, 1)
	})

	t.Run("stale commit is rejected and changes nothing", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, fixture())
		require.NoError(t, err)

		_, err = s.Commit(ctx, created.ID, created.Version, nil, interaction("winner"))
		require.NoError(t, err)

		_, err = s.Commit(ctx, created.ID, created.Version, aggregated(), interaction("loser"))
		assert.ErrorIs(t, err, store.ErrVersionConflict)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, fixture().Equal(got.Dataset))
		require.Len(t, got.History, 1)
		assert.Equal(t, "winner", got.History[0].Query)
	})

	t.Run("concurrent commits on one version", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, fixture())
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		results := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Commit(ctx, created.ID, created.Version, aggregated(), interaction("racer"))
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		ok := 0
		for err := range results {
			if err == nil {
				ok++
				continue
			}
			assert.True(t, errors.Is(err, store.ErrVersionConflict), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, ok)

		history, err := s.GetHistory(ctx, created.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("returned sessions are copies", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, fixture())
		require.NoError(t, err)
		require.NoError(t, s.AppendHistory(ctx, created.ID, interaction("q")))

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		got.History[0].Query = "mutated"
		got.History = append(got.History, interaction("extra"))

		again, err := s.GetHistory(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Equal(t, "q", again[0].Query)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, fixture())
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, created.ID))
		_, err = s.Get(ctx, created.ID)
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}
