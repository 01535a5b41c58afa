package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"data-explorer-be/pkg/dataset"
)

// SQLite executes programs as SQLite scripts in throwaway in-memory databases.
type SQLite struct {
	cfg Config
}

func NewSQLite(cfg Config) *SQLite {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxResultRows <= 0 {
		cfg.MaxResultRows = def.MaxResultRows
	}
	if cfg.MaxSourceSize <= 0 {
		cfg.MaxSourceSize = def.MaxSourceSize
	}
	if cfg.MaxValueBytes <= 0 {
		cfg.MaxValueBytes = def.MaxValueBytes
	}
	if cfg.MaxDatabaseBytes <= 0 {
		cfg.MaxDatabaseBytes = def.MaxDatabaseBytes
	}
	return &SQLite{cfg: cfg}
}

// Execute never panics and never modifies input.
func (s *SQLite) Execute(ctx context.Context, prog Program, input *dataset.Dataset) (res Result) {
	ctx, span := otel.Tracer("sandbox").Start(ctx, "sandbox.execute")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("%w: panic: %v", ErrRuntime, r)}
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		} else {
			span.SetAttributes(attribute.Int("sandbox.result_rows", res.Dataset.NumRows()))
		}
		span.End()
	}()

	if err := Validate(prog.Source, s.cfg.MaxSourceSize); err != nil {
		return Result{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	ds, err := s.run(ctx, prog, input)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w after %s", ErrRuntime, ErrTimeout, s.cfg.Timeout)
		}
		return Result{Err: err}
	}
	return Result{Dataset: ds}
}

func (s *SQLite) run(ctx context.Context, prog Program, input *dataset.Dataset) (*dataset.Dataset, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrRuntime, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	// every statement must see the same private in-memory database
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open connection: %v", ErrRuntime, err)
	}
	defer conn.Close()

	if err := s.restrict(ctx, conn); err != nil {
		return nil, fmt.Errorf("%w: restrict connection: %v", ErrRuntime, err)
	}

	if err := loadInput(ctx, conn, input); err != nil {
		return nil, fmt.Errorf("%w: load input: %v", ErrRuntime, err)
	}

	if _, err := conn.ExecContext(ctx, prog.Source); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	return s.readOutput(ctx, conn, input)
}

const pageSize = 4096

// restrict applies engine limits that hold no matter what the program text
// looks like: no attached databases (which also disables VACUUM INTO), a cap
// on value size and a page budget for the main and temp databases.
func (s *SQLite) restrict(ctx context.Context, conn *sql.Conn) error {
	if _, err := sqlite.Limit(conn, sqlite3.SQLITE_LIMIT_ATTACHED, 0); err != nil {
		return err
	}
	if _, err := sqlite.Limit(conn, sqlite3.SQLITE_LIMIT_LENGTH, s.cfg.MaxValueBytes); err != nil {
		return err
	}

	pages := s.cfg.MaxDatabaseBytes / pageSize
	if pages < 1 {
		pages = 1
	}
	for _, stmt := range []string{
		fmt.Sprintf("PRAGMA main.page_size = %d", pageSize),
		fmt.Sprintf("PRAGMA main.max_page_count = %d", pages),
		fmt.Sprintf("PRAGMA temp.max_page_count = %d", pages),
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func declType(t dataset.ColumnType) string {
	switch t {
	case dataset.TypeInt:
		return "INTEGER"
	case dataset.TypeFloat:
		return "REAL"
	case dataset.TypeBool:
		return "BOOLEAN"
	}
	return "TEXT"
}

func loadInput(ctx context.Context, conn *sql.Conn, input *dataset.Dataset) error {
	cols := input.Columns()
	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdent(c.Name) + " " + declType(c.Type)
		marks[i] = "?"
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", InputTable, strings.Join(defs, ", "))
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", InputTable, strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for r := 0; r < input.NumRows(); r++ {
		if _, err := stmt.ExecContext(ctx, input.Row(r)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLite) readOutput(ctx context.Context, conn *sql.Conn, input *dataset.Dataset) (*dataset.Dataset, error) {
	var kind string
	err := conn.QueryRowContext(ctx,
		"SELECT type FROM sqlite_master WHERE name = ? AND type IN ('table', 'view')", OutputTable).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no table or view named %s was created", ErrContractViolation, OutputTable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	limit := s.cfg.MaxResultRows
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", OutputTable, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	if len(colTypes) == 0 {
		return nil, fmt.Errorf("%w: %s has no columns", ErrContractViolation, OutputTable)
	}

	var raw [][]any
	for rows.Next() {
		if len(raw) == limit {
			return nil, fmt.Errorf("%w: %s has more than %d rows", ErrContractViolation, OutputTable, limit)
		}
		cells := make([]any, len(colTypes))
		ptrs := make([]any, len(colTypes))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
		}
		raw = append(raw, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	cols := make([]dataset.Column, len(colTypes))
	for c, ct := range colTypes {
		values := make([]any, len(raw))
		for r := range raw {
			values[r] = raw[r][c]
		}
		hint, hasHint := dataset.ColumnType(""), false
		if i := input.ColumnIndex(ct.Name()); i >= 0 {
			hint, hasHint = input.Columns()[i].Type, true
		}
		t := resolveType(ct.DatabaseTypeName(), values, hint, hasHint)
		cols[c] = dataset.Column{Name: ct.Name(), Type: t}
		for r := range raw {
			raw[r][c] = convert(t, raw[r][c])
		}
	}

	ds, err := dataset.New(cols, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	return ds, nil
}

// resolveType maps a SQLite column back to a dataset type. The declared type
// wins when the stored values agree with it; otherwise the values decide. A
// result column that shares its name with a boolean input column and only
// holds 0 and 1 stays boolean.
func resolveType(decl string, values []any, hint dataset.ColumnType, hasHint bool) dataset.ColumnType {
	observed := observedType(values)
	if observed == "" {
		if hasHint {
			return hint
		}
		observed = dataset.TypeString
	}

	d := strings.ToUpper(decl)
	switch {
	case strings.Contains(d, "BOOL") || hasHint && hint == dataset.TypeBool:
		if observed == dataset.TypeInt && onlyZeroOne(values) {
			return dataset.TypeBool
		}
	case strings.Contains(d, "INT"):
		if observed == dataset.TypeInt {
			return dataset.TypeInt
		}
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		if observed.Numeric() {
			return dataset.TypeFloat
		}
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return dataset.TypeString
	}
	return observed
}

// observedType returns "" when every value is NULL.
func observedType(values []any) dataset.ColumnType {
	var t dataset.ColumnType
	for _, v := range values {
		var vt dataset.ColumnType
		switch v.(type) {
		case nil:
			continue
		case int64:
			vt = dataset.TypeInt
		case float64:
			vt = dataset.TypeFloat
		case bool:
			vt = dataset.TypeBool
		default:
			return dataset.TypeString
		}
		switch {
		case t == "":
			t = vt
		case t == vt:
		case t.Numeric() && vt.Numeric():
			t = dataset.TypeFloat
		default:
			return dataset.TypeString
		}
	}
	return t
}

func onlyZeroOne(values []any) bool {
	for _, v := range values {
		if n, ok := v.(int64); ok && n != 0 && n != 1 {
			return false
		}
	}
	return true
}

func convert(t dataset.ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case dataset.TypeBool:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case dataset.TypeString:
		switch x := v.(type) {
		case []byte:
			return string(x)
		case int64:
			return strconv.FormatInt(x, 10)
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(x)
		case time.Time:
			return x.Format(time.RFC3339)
		}
	}
	return v
}
