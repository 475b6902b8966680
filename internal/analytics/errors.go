package analytics

import (
	"errors"
)

var (
	// ErrUnauthorizedAccess is returned when a table, field, operator, or
	// filter field falls outside the declared whitelist. Always fail-closed.
	ErrUnauthorizedAccess = errors.New("unauthorized analytics access")

	// ErrConfigurationMissing is returned when no data source configuration
	// exists for the requested id or table. No fallback table is substituted.
	ErrConfigurationMissing = errors.New("data source configuration missing")

	// ErrInvalidFilterShape is returned when a filter value does not match
	// its operator, e.g. between without exactly two values.
	ErrInvalidFilterShape = errors.New("invalid filter shape")

	// ErrQueryFailed wraps any upstream SQL or cache-backend failure caught
	// at the orchestrator boundary.
	ErrQueryFailed = errors.New("analytics query failed")
)
