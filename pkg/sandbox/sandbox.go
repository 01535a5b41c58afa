// Package sandbox runs model-generated SQL programs against a private copy of a
// dataset and extracts the table they declare as their result.
//
// A program sees exactly one input table, df, and must leave behind a table or
// view named result_df. Each execution gets its own in-memory SQLite database
// that is discarded afterwards, so the caller's dataset is never touched.
package sandbox

import (
	"context"
	"errors"
	"time"

	"data-explorer-be/pkg/dataset"
)

const (
	InputTable  = "df"
	OutputTable = "result_df"
)

var (
	// ErrContractViolation means the program ran but left no usable result_df.
	ErrContractViolation = errors.New("program did not produce a valid result_df")
	// ErrRuntime wraps any fault raised while the program was running.
	ErrRuntime = errors.New("program failed at runtime")
	// ErrRejected means static checks refused the program before it ran.
	ErrRejected = errors.New("program rejected")
	ErrTimeout  = errors.New("program exceeded its time limit")
)

// Program is untrusted source produced by the model. It is discarded after a
// single execution.
type Program struct {
	Source string
}

// Result holds exactly one of Dataset or Err.
type Result struct {
	Dataset  *dataset.Dataset
	Err      error
	Duration time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil && r.Dataset != nil
}

// Executor runs a program against an input dataset.
type Executor interface {
	Execute(ctx context.Context, prog Program, input *dataset.Dataset) Result
}

type Config struct {
	Timeout       time.Duration
	MaxResultRows int
	MaxSourceSize int
	// MaxValueBytes caps any single string or blob a program builds.
	MaxValueBytes int
	// MaxDatabaseBytes caps the pages of the private database, input included.
	MaxDatabaseBytes int64
}

func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Second,
		MaxResultRows:    100000,
		MaxSourceSize:    64 * 1024,
		MaxValueBytes:    8 << 20,
		MaxDatabaseBytes: 512 << 20,
	}
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, prog Program, input *dataset.Dataset) Result

func (f ExecutorFunc) Execute(ctx context.Context, prog Program, input *dataset.Dataset) Result {
	return f(ctx, prog, input)
}
