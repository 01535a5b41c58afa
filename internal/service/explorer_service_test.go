package service

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-explorer-be/internal/dto"
	"data-explorer-be/internal/pkg/logger"
	"data-explorer-be/internal/repository/memory"
	"data-explorer-be/pkg/ai/agent"
	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/events"
	"data-explorer-be/pkg/llm"
	"data-explorer-be/pkg/report"
	"data-explorer-be/pkg/store"
)

const salesCSV = "region,net_revenue,units\nnorth,100,3\nsouth,40,1\nnorth,20.5,2\n"

type runnerFunc func(ctx context.Context, q agent.Query, ds *dataset.Dataset) (agent.Result, error)

func (f runnerFunc) Run(ctx context.Context, q agent.Query, ds *dataset.Dataset) (agent.Result, error) {
	return f(ctx, q, ds)
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.got))
	for i, e := range p.got {
		out[i] = e.EventType()
	}
	return out
}

type countingSessionMetrics struct {
	sessions  map[string]int
	conflicts int
}

func (m *countingSessionMetrics) ObserveSession(e string) { m.sessions[e]++ }
func (m *countingSessionMetrics) ObserveCommitConflict()  { m.conflicts++ }

type summaryLLM struct{}

func (summaryLLM) Generate(context.Context, string, ...llm.Option) (string, error) {
	return "A short summary.", nil
}

func (summaryLLM) Chat(context.Context, []llm.Message, ...llm.Option) (string, error) {
	return "A short summary.", nil
}

type fixture struct {
	svc     IExplorerService
	store   *memory.SessionRepository
	pub     *recordingPublisher
	metrics *countingSessionMetrics
}

func newFixture(runner TurnRunner) *fixture {
	f := &fixture{
		store:   memory.NewSessionRepository(time.Hour),
		pub:     &recordingPublisher{},
		metrics: &countingSessionMetrics{sessions: map[string]int{}},
	}
	f.svc = NewExplorerService(f.store, runner, report.NewGenerator(summaryLLM{}, 0), f.pub, f.metrics, logger.NewNopLogger())
	return f
}

func (f *fixture) upload(t *testing.T) string {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), "sales.csv", strings.NewReader(salesCSV))
	require.NoError(t, err)
	return res.DataId
}

func TestExplorerService_Upload(t *testing.T) {
	f := newFixture(nil)

	res, err := f.svc.Upload(context.Background(), "Sales.CSV", strings.NewReader(salesCSV))

	require.NoError(t, err)
	assert.NotEmpty(t, res.DataId)
	assert.Equal(t, []string{"region", "net_revenue", "units"}, res.Columns)
	assert.Len(t, res.Rows, 3)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, 3, res.Profile.Summary.Rows)
	assert.Equal(t, []string{events.TypeSessionCreated}, f.pub.types())
	assert.Equal(t, 1, f.metrics.sessions["created"])

	sess, err := f.store.Get(context.Background(), res.DataId)
	require.NoError(t, err)
	assert.Equal(t, dataset.TypeFloat, sess.Dataset.Columns()[1].Type)
}

func TestExplorerService_UploadErrors(t *testing.T) {
	f := newFixture(nil)

	tests := []struct {
		name     string
		filename string
		body     string
		want     error
	}{
		{"unsupported extension", "sales.json", "{}", ErrUnsupportedFormat},
		{"empty csv", "sales.csv", "", ErrInvalidDataset},
		{"broken xlsx", "sales.xlsx", "not a zip", ErrInvalidDataset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Upload(context.Background(), tt.filename, strings.NewReader(tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExplorerService_Query(t *testing.T) {
	summed := dataset.MustNew(
		[]dataset.Column{{Name: "region", Type: dataset.TypeString}, {Name: "net_revenue", Type: dataset.TypeFloat}},
		[][]any{{"north", 120.5}, {"south", 40.0}},
	)

	tests := []struct {
		name        string
		result      agent.Result
		wantRows    int
		wantDataset bool
	}{
		{
			name: "successful transformation replaces the dataset",
			result: agent.Result{
				Classification: agent.ClassificationCodeGeneration,
				Explanation:    "Summed.",
				Dataset:        summed,
				Attempts:       1,
			},
			wantRows:    2,
			wantDataset: true,
		},
		{
			name: "failed transformation keeps the dataset",
			result: agent.Result{
				Classification: agent.ClassificationCodeGeneration,
				Error:          "no such column: revenue",
				Attempts:       3,
			},
			wantRows: 3,
		},
		{
			name: "suggestions keep the dataset",
			result: agent.Result{
				Classification: agent.ClassificationSuggestion,
				Suggestions:    []agent.Suggestion{{Query: "Top 5 by units"}},
			},
			wantRows: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen agent.Query
			f := newFixture(runnerFunc(func(ctx context.Context, q agent.Query, ds *dataset.Dataset) (agent.Result, error) {
				seen = q
				assert.Equal(t, 3, ds.NumRows())
				return tt.result, nil
			}))
			id := f.upload(t)

			res, err := f.svc.Query(context.Background(), &dto.QueryRequest{DataId: id, Query: "total by region"})

			require.NoError(t, err)
			assert.Equal(t, id, seen.SessionID)
			assert.Equal(t, "total by region", seen.Text)
			assert.Equal(t, tt.result.Classification.String(), res.Classification)
			assert.Equal(t, int64(2), res.Version)
			assert.Equal(t, tt.wantDataset, res.DatasetView != nil)

			sess, err := f.store.Get(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, sess.Dataset.NumRows())
			require.Len(t, sess.History, 1)
			assert.Equal(t, "total by region", sess.History[0].Query)
			assert.Equal(t, tt.result.Error, sess.History[0].Error)
			assert.Contains(t, f.pub.types(), events.TypeTurnCompleted)
		})
	}
}

func TestExplorerService_QueryPassesHistory(t *testing.T) {
	var histories [][]store.Interaction
	f := newFixture(runnerFunc(func(ctx context.Context, q agent.Query, ds *dataset.Dataset) (agent.Result, error) {
		histories = append(histories, q.History)
		return agent.Result{Classification: agent.ClassificationGreeting}, nil
	}))
	id := f.upload(t)

	for _, q := range []string{"hi", "hello again"} {
		_, err := f.svc.Query(context.Background(), &dto.QueryRequest{DataId: id, Query: q})
		require.NoError(t, err)
	}

	require.Len(t, histories, 2)
	assert.Empty(t, histories[0])
	require.Len(t, histories[1], 1)
	assert.Equal(t, "hi", histories[1][0].Query)
}

func TestExplorerService_QueryUpstreamFailure(t *testing.T) {
	f := newFixture(runnerFunc(func(ctx context.Context, q agent.Query, ds *dataset.Dataset) (agent.Result, error) {
		return agent.Result{}, agent.ErrUpstream
	}))
	id := f.upload(t)

	_, err := f.svc.Query(context.Background(), &dto.QueryRequest{DataId: id, Query: "q"})

	assert.ErrorIs(t, err, agent.ErrUpstream)
	history, err := f.store.GetHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestExplorerService_QueryUnknownSession(t *testing.T) {
	f := newFixture(runnerFunc(func(ctx context.Context, q agent.Query, ds *dataset.Dataset) (agent.Result, error) {
		t.Fatal("runner must not be called")
		return agent.Result{}, nil
	}))

	_, err := f.svc.Query(context.Background(), &dto.QueryRequest{DataId: "8c1c9f4e-2d53-4b8b-9d7e-5a4f2c1b0a9d", Query: "q"})

	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestExplorerService_SerializesSameSession(t *testing.T) {
	var running, peak int32
	f := newFixture(runnerFunc(func(ctx context.Context, q agent.Query, ds *dataset.Dataset) (agent.Result, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return agent.Result{Classification: agent.ClassificationGreeting}, nil
	}))
	id := f.upload(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Query(context.Background(), &dto.QueryRequest{DataId: id, Query: "hi"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
	history, err := f.store.GetHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, history, 5)
	assert.Equal(t, 0, f.svc.(*explorerService).locks.size())
}

func TestExplorerService_CommitConflict(t *testing.T) {
	var f *fixture
	f = newFixture(runnerFunc(func(ctx context.Context, q agent.Query, ds *dataset.Dataset) (agent.Result, error) {
		// another instance writes while the turn runs
		require.NoError(t, f.store.Put(ctx, q.SessionID, ds.Head(1)))
		return agent.Result{Classification: agent.ClassificationCodeGeneration, Dataset: ds}, nil
	}))
	id := f.upload(t)

	_, err := f.svc.Query(context.Background(), &dto.QueryRequest{DataId: id, Query: "q"})

	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, 1, f.metrics.conflicts)
	sess, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Dataset.NumRows())
	assert.Empty(t, sess.History)
}

func TestExplorerService_Export(t *testing.T) {
	f := newFixture(nil)
	id := f.upload(t)

	tests := []struct {
		format      string
		contentType string
		check       func(t *testing.T, body []byte)
	}{
		{"csv", "text/csv", func(t *testing.T, body []byte) {
			assert.Equal(t, salesCSV, string(body))
		}},
		{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", func(t *testing.T, body []byte) {
			ds, err := dataset.ReadXLSX(bytes.NewReader(body))
			require.NoError(t, err)
			assert.Equal(t, 3, ds.NumRows())
		}},
		{"md", "text/markdown; charset=utf-8", func(t *testing.T, body []byte) {
			assert.Contains(t, string(body), "# Data Analysis Report")
			assert.Contains(t, string(body), "No questions have been asked yet.")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			file, err := f.svc.Export(context.Background(), id, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.contentType, file.ContentType)
			assert.True(t, strings.HasSuffix(file.Filename, "."+tt.format))
			tt.check(t, file.Body)
		})
	}

	_, err := f.svc.Export(context.Background(), id, "pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExplorerService_ShowProfileDelete(t *testing.T) {
	f := newFixture(nil)
	id := f.upload(t)
	ctx := context.Background()

	show, err := f.svc.Show(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), show.Version)
	assert.Len(t, show.Dataframe, 3)

	profile, err := f.svc.Profile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 40.0, profile.Numeric["net_revenue"].Min)

	require.NoError(t, f.svc.Delete(ctx, id))
	_, err = f.svc.Show(ctx, id)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, id), store.ErrSessionNotFound)
	assert.Equal(t, []string{events.TypeSessionCreated, events.TypeSessionDeleted}, f.pub.types())
}

func TestTransitionObserver(t *testing.T) {
	pub := &recordingPublisher{}
	observe := NewTransitionObserver(pub, logger.NewNopLogger())

	observe(agent.Transition{SessionID: "s", FromName: "execute", ToName: "generate", Attempt: 1, Error: "boom"})

	require.Len(t, pub.got, 1)
	e := pub.got[0]
	assert.Equal(t, events.TypeTurnTransition, e.EventType())
	assert.Equal(t, "s", e.SessionID())
	assert.Equal(t, "boom", e.Payload()["error"])
}
