package analytics

import (
	"context"
	"fmt"
	"regexp"

	"github.com/clinichub/clinichub/internal/authz"
	"github.com/clinichub/clinichub/internal/log"
)

// identifierPattern constrains every identifier that can reach SQL text.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validator whitelist-validates tables, fields, operators and filter fields
// against a data source's declared schema. Every rejection fails closed and
// emits a security audit log entry naming the rejected identifier.
type Validator struct {
	Configs ConfigStore
}

// NewValidator creates a Validator backed by the given config store.
func NewValidator(configs ConfigStore) *Validator {
	return &Validator{Configs: configs}
}

// ValidateTable resolves and checks the data source config for a table.
// When cfg is non-nil it is trusted as the already-resolved config and only
// checked for identity and active state.
func (v *Validator) ValidateTable(ctx context.Context, table, schema string, cfg *DataSourceConfig) (*DataSourceConfig, error) {
	if cfg == nil {
		var err error

		cfg, err = v.Configs.GetDataSourceConfig(ctx, table, schema)
		if err != nil {
			return nil, fmt.Errorf("load data source config: %w", err)
		}
	}

	if cfg == nil || !cfg.Active || cfg.Table != table || (schema != "" && cfg.Schema != schema) {
		log.Error(ctx, "analytics security: table not authorized",
			log.String("table", table),
			log.String("schema", schema),
		)

		return nil, fmt.Errorf("%w: table %q", ErrUnauthorizedAccess, table)
	}

	if !identifierPattern.MatchString(cfg.Table) || !identifierPattern.MatchString(cfg.Schema) {
		log.Error(ctx, "analytics security: malformed table identifier",
			log.String("table", cfg.Table),
			log.String("schema", cfg.Schema),
		)

		return nil, fmt.Errorf("%w: table %q", ErrUnauthorizedAccess, cfg.Table)
	}

	return cfg, nil
}

// ValidateField checks that field is among the data source's declared columns.
func (v *Validator) ValidateField(ctx context.Context, field, table, schema string, cfg *DataSourceConfig) error {
	var err error

	cfg, err = v.ValidateTable(ctx, table, schema, cfg)
	if err != nil {
		return err
	}

	if !identifierPattern.MatchString(field) || !cfg.HasColumn(field) {
		log.Error(ctx, "analytics security: field not authorized",
			log.String("field", field),
			log.String("table", table),
		)

		return fmt.Errorf("%w: field %q", ErrUnauthorizedAccess, field)
	}

	return nil
}

// ValidateOperator checks the operator against the fixed whitelist.
func (v *Validator) ValidateOperator(ctx context.Context, op FilterOperator) error {
	if !op.Valid() {
		log.Error(ctx, "analytics security: operator not authorized",
			log.String("operator", string(op)),
		)

		return fmt.Errorf("%w: operator %q", ErrUnauthorizedAccess, op)
	}

	return nil
}

// ValidateFilterFields checks every advanced filter of a cache-path request
// against the allowed column set: the standard columns plus the data
// source's filterable columns. This is the sole injection barrier on the
// cache path, so it runs before every cache-path query that carries
// advanced filters.
func (v *Validator) ValidateFilterFields(ctx context.Context, filters []ChartFilter, dataSourceID int64, scope authz.Scope) error {
	if len(filters) == 0 {
		return nil
	}

	cfg, err := v.Configs.GetDataSourceConfigByID(ctx, dataSourceID)
	if err != nil {
		return fmt.Errorf("load data source config: %w", err)
	}

	if cfg == nil || !cfg.Active {
		log.Error(ctx, "analytics security: data source not authorized",
			log.Int64("data_source_id", dataSourceID),
			log.String("scope", scope.String()),
		)

		return fmt.Errorf("%w: data source %d", ErrUnauthorizedAccess, dataSourceID)
	}

	allowed := cfg.AllowedFilterFields()

	for _, filter := range filters {
		if err := v.ValidateOperator(ctx, filter.Operator); err != nil {
			return err
		}

		if _, ok := allowed[filter.Field]; !ok || !identifierPattern.MatchString(filter.Field) {
			log.Error(ctx, "analytics security: filter field not authorized",
				log.String("field", filter.Field),
				log.Int64("data_source_id", dataSourceID),
				log.String("scope", scope.String()),
			)

			return fmt.Errorf("%w: filter field %q", ErrUnauthorizedAccess, filter.Field)
		}
	}

	return nil
}
