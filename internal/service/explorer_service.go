package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"data-explorer-be/internal/dto"
	"data-explorer-be/internal/pkg/logger"
	"data-explorer-be/pkg/ai/agent"
	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/events"
	"data-explorer-be/pkg/report"
	"data-explorer-be/pkg/store"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidDataset    = errors.New("invalid dataset")
)

const previewRows = 5

// TurnRunner runs one query against a dataset.
type TurnRunner interface {
	Run(ctx context.Context, q agent.Query, ds *dataset.Dataset) (agent.Result, error)
}

// SessionMetrics is the part of the metrics registry the service feeds.
type SessionMetrics interface {
	ObserveSession(event string)
	ObserveCommitConflict()
}

type nopSessionMetrics struct{}

func (nopSessionMetrics) ObserveSession(string) {}
func (nopSessionMetrics) ObserveCommitConflict() {}

type IExplorerService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*dto.UploadResponse, error)
	Query(ctx context.Context, req *dto.QueryRequest) (*dto.QueryResponse, error)
	History(ctx context.Context, dataId string) (*dto.HistoryResponse, error)
	Show(ctx context.Context, dataId string) (*dto.SessionResponse, error)
	Profile(ctx context.Context, dataId string) (*dataset.Profile, error)
	Export(ctx context.Context, dataId, format string) (*dto.ExportFile, error)
	Delete(ctx context.Context, dataId string) error
}

type explorerService struct {
	sessions  store.SessionStore
	runner    TurnRunner
	reports   *report.Generator
	publisher events.Publisher
	metrics   SessionMetrics
	logger    logger.ILogger
	locks     *keyedMutex
	now       func() time.Time
}

func NewExplorerService(
	sessions store.SessionStore,
	runner TurnRunner,
	reports *report.Generator,
	publisher events.Publisher,
	metrics SessionMetrics,
	log logger.ILogger,
) IExplorerService {
	if metrics == nil {
		metrics = nopSessionMetrics{}
	}
	if publisher == nil {
		publisher = events.Fanout{}
	}
	return &explorerService{
		sessions:  sessions,
		runner:    runner,
		reports:   reports,
		publisher: publisher,
		metrics:   metrics,
		logger:    log,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

func (s *explorerService) Upload(ctx context.Context, filename string, r io.Reader) (*dto.UploadResponse, error) {
	var (
		ds  *dataset.Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		ds, err = dataset.ReadCSV(r)
	case ".xlsx":
		ds, err = dataset.ReadXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q, expected .csv or .xlsx", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}

	sess, err := s.sessions.Create(ctx, ds)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSession("created")
	s.publish(ctx, events.New(events.TypeSessionCreated, sess.ID, map[string]interface{}{
		"filename": filename,
		"rows":     ds.NumRows(),
		"columns":  ds.ColumnNames(),
	}))
	s.logger.Info("Explorer", "Dataset uploaded", map[string]interface{}{
		"session_id": sess.ID,
		"filename":   filename,
		"rows":       ds.NumRows(),
	})

	return &dto.UploadResponse{
		DataId:    sess.ID,
		Filename:  filename,
		Columns:   ds.ColumnNames(),
		Rows:      ds.Head(previewRows).Records().Rows,
		TotalRows: ds.NumRows(),
		Profile:   dataset.BuildProfile(ds),
	}, nil
}

// Query runs one turn. Turns of the same session run one at a time; the
// version check in Commit catches writers on other instances.
func (s *explorerService) Query(ctx context.Context, req *dto.QueryRequest) (*dto.QueryResponse, error) {
	unlock := s.locks.Lock(req.DataId)
	defer unlock()

	sess, err := s.sessions.Get(ctx, req.DataId)
	if err != nil {
		return nil, err
	}

	res, err := s.runner.Run(ctx, agent.Query{
		SessionID: sess.ID,
		Text:      req.Query,
		History:   sess.History,
	}, sess.Dataset)
	if err != nil {
		s.logger.Error("Explorer", "Turn failed", map[string]interface{}{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
		return nil, err
	}

	version, err := s.sessions.Commit(ctx, sess.ID, sess.Version, res.Dataset, res.Interaction(req.Query, s.now()))
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			s.metrics.ObserveCommitConflict()
		}
		return nil, err
	}

	s.publish(ctx, events.New(events.TypeTurnCompleted, sess.ID, map[string]interface{}{
		"query":          req.Query,
		"classification": res.Classification.String(),
		"attempts":       res.Attempts,
		"error":          res.Error,
		"transformed":    res.Dataset != nil,
		"version":        version,
	}))

	return &dto.QueryResponse{
		DataId:         sess.ID,
		Query:          req.Query,
		Classification: res.Classification.String(),
		Explanation:    res.Explanation,
		Charts:         res.Charts,
		Suggestions:    res.Suggestions,
		Insight:        res.Insight,
		Error:          res.Error,
		Attempts:       res.Attempts,
		Version:        version,
		DatasetView:    dto.NewDatasetView(res.Dataset),
	}, nil
}

func (s *explorerService) History(ctx context.Context, dataId string) (*dto.HistoryResponse, error) {
	history, err := s.sessions.GetHistory(ctx, dataId)
	if err != nil {
		return nil, err
	}
	out := &dto.HistoryResponse{DataId: dataId, History: make([]dto.InteractionResponse, len(history))}
	for i, it := range history {
		out.History[i] = dto.InteractionResponse{
			Query:          it.Query,
			Classification: it.Classification,
			Explanation:    it.Explanation,
			Charts:         it.Charts,
			Suggestions:    it.Suggestions,
			Insight:        it.Insight,
			Error:          it.Error,
			CreatedAt:      it.CreatedAt,
			DatasetView:    dto.NewDatasetView(it.Dataset),
		}
	}
	return out, nil
}

func (s *explorerService) Show(ctx context.Context, dataId string) (*dto.SessionResponse, error) {
	sess, err := s.sessions.Get(ctx, dataId)
	if err != nil {
		return nil, err
	}
	return &dto.SessionResponse{
		DataId:      sess.ID,
		Version:     sess.Version,
		Turns:       len(sess.History),
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
		DatasetView: dto.NewDatasetView(sess.Dataset),
	}, nil
}

func (s *explorerService) Profile(ctx context.Context, dataId string) (*dataset.Profile, error) {
	sess, err := s.sessions.Get(ctx, dataId)
	if err != nil {
		return nil, err
	}
	p := dataset.BuildProfile(sess.Dataset)
	return &p, nil
}

func (s *explorerService) Export(ctx context.Context, dataId, format string) (*dto.ExportFile, error) {
	sess, err := s.sessions.Get(ctx, dataId)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "csv":
		if err := dataset.WriteCSV(&buf, sess.Dataset); err != nil {
			return nil, err
		}
		return &dto.ExportFile{Filename: "data_" + dataId + ".csv", ContentType: "text/csv", Body: buf.Bytes()}, nil
	case "xlsx":
		if err := dataset.WriteXLSX(&buf, sess.Dataset); err != nil {
			return nil, err
		}
		return &dto.ExportFile{
			Filename:    "data_" + dataId + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Body:        buf.Bytes(),
		}, nil
	case "md", "markdown":
		return &dto.ExportFile{
			Filename:    "report_" + dataId + ".md",
			ContentType: "text/markdown; charset=utf-8",
			Body:        s.reports.Markdown(ctx, sess),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q, expected csv, xlsx or md", ErrUnsupportedFormat, format)
}

func (s *explorerService) Delete(ctx context.Context, dataId string) error {
	unlock := s.locks.Lock(dataId)
	defer unlock()

	if err := s.sessions.Delete(ctx, dataId); err != nil {
		return err
	}
	s.metrics.ObserveSession("deleted")
	s.publish(ctx, events.New(events.TypeSessionDeleted, dataId, nil))
	return nil
}

func (s *explorerService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("Explorer", "Failed to publish event", map[string]interface{}{
			"type":       e.EventType(),
			"session_id": e.SessionID(),
			"error":      err.Error(),
		})
	}
}
