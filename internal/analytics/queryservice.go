package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinichub/clinichub/internal/log"
)

// DBQuerier is the subset of pgxpool.Pool the query services need.
type DBQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// QueryService issues SELECTs against the underlying relational store given
// explicit chart-level filters. It applies no row-level access control; that
// is the caller's responsibility on every path that uses it.
type QueryService struct {
	DB DBQuerier
}

// NewQueryService creates a QueryService.
func NewQueryService(db DBQuerier) *QueryService {
	return &QueryService{DB: db}
}

// FetchRows selects all rows of the data source matching the explicit
// chart-level parameters (measure, practice, provider, frequency).
func (s *QueryService) FetchRows(ctx context.Context, cfg *DataSourceConfig, params CacheQueryParams) ([]Row, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: data source %d", ErrConfigurationMissing, params.DataSourceID)
	}

	if !identifierPattern.MatchString(cfg.Schema) || !identifierPattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: table %q", ErrUnauthorizedAccess, cfg.Table)
	}

	var (
		conds  []string
		args   []any
		argPos = 1
	)

	appendCond := func(column string, value any) {
		conds = append(conds, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if params.Measure != "" && cfg.Type == SourceMeasureBased {
		appendCond("measure", params.Measure)
	}

	if params.Frequency != "" && cfg.HasColumn("frequency") {
		appendCond("frequency", params.Frequency)
	}

	if params.PracticeUID != nil {
		appendCond("practice_uid", *params.PracticeUID)
	}

	if params.ProviderUID != nil {
		appendCond("provider_uid", *params.ProviderUID)
	}

	query := fmt.Sprintf(`SELECT * FROM %q.%q`, cfg.Schema, cfg.Table)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	started := time.Now()

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute data source query: %w", err)
	}
	defer rows.Close()

	result, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	log.Debug(ctx, "data source query executed",
		log.Int64("data_source_id", params.DataSourceID),
		log.Int("rows", len(result)),
		log.Duration("elapsed", time.Since(started)),
	)

	return result, nil
}

// Select runs an arbitrary parameterized query and collects the rows. Used
// by the legacy executor which builds its own WHERE clause.
func (s *QueryService) Select(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	return collectRows(rows)
}

func collectRows(rows pgx.Rows) ([]Row, error) {
	fields := rows.FieldDescriptions()

	var result []Row

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(Row, len(fields))
		for i, field := range fields {
			row[field.Name] = values[i]
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}
