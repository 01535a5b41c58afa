package dto

import (
	"time"

	"data-explorer-be/pkg/ai/parser"
	"data-explorer-be/pkg/dataset"
)

// DatasetView is the wire form of a dataset: rows of named fields plus the
// column order and types.
type DatasetView struct {
	Dataframe   []map[string]any     `json:"dataframe"`
	Columns     []string             `json:"columns"`
	ColumnTypes []dataset.ColumnType `json:"column_types"`
}

func NewDatasetView(ds *dataset.Dataset) *DatasetView {
	if ds == nil {
		return nil
	}
	rec := ds.Records()
	return &DatasetView{
		Dataframe:   rec.Rows,
		Columns:     rec.Columns,
		ColumnTypes: rec.ColumnTypes,
	}
}

type UploadResponse struct {
	DataId    string           `json:"data_id"`
	Filename  string           `json:"filename"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"` // first five rows
	TotalRows int              `json:"total_rows"`
	Profile   dataset.Profile  `json:"profile"`
}

type QueryRequest struct {
	DataId string `json:"data_id" validate:"required,uuid"`
	Query  string `json:"query" validate:"required,max=2000"`
}

type QueryResponse struct {
	DataId         string              `json:"data_id"`
	Query          string              `json:"query"`
	Classification string              `json:"classification"`
	Explanation    string              `json:"explanation,omitempty"`
	Charts         []parser.ChartSpec  `json:"charts,omitempty"`
	Suggestions    []parser.Suggestion `json:"suggestions,omitempty"`
	Insight        *parser.Insight     `json:"insight,omitempty"`
	Error          string              `json:"error,omitempty"`
	Attempts       int                 `json:"attempts"`
	Version        int64               `json:"version"`
	*DatasetView
}

type HistoryRequest struct {
	DataId string `json:"data_id" validate:"required,uuid"`
}

type InteractionResponse struct {
	Query          string              `json:"query"`
	Classification string              `json:"classification"`
	Explanation    string              `json:"explanation,omitempty"`
	Charts         []parser.ChartSpec  `json:"charts,omitempty"`
	Suggestions    []parser.Suggestion `json:"suggestions,omitempty"`
	Insight        *parser.Insight     `json:"insight,omitempty"`
	Error          string              `json:"error,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	*DatasetView
}

type HistoryResponse struct {
	DataId  string                `json:"data_id"`
	History []InteractionResponse `json:"history"`
}

type SessionResponse struct {
	DataId    string    `json:"data_id"`
	Version   int64     `json:"version"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	*DatasetView
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}
