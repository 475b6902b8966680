package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinichub/clinichub/internal/authz"
	"github.com/clinichub/clinichub/internal/log"
)

// WhereClause is a built WHERE body with positional bind arguments.
type WhereClause struct {
	SQL     string
	Args    []any
	NextArg int
}

// Empty reports whether no conditions were produced.
func (w *WhereClause) Empty() bool {
	return w.SQL == ""
}

// Builder constructs parameterized WHERE clauses. BuildWhereClause embeds the
// row-level access predicates directly in SQL (legacy path);
// BuildAdvancedFilterClause renders user filters only, leaving access control
// to the in-memory policy (cache path).
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// alwaysFalse is the fail-closed predicate.
const alwaysFalse = "1 = 0"

// BuildWhereClause renders access-control predicates for the scope followed
// by the user filters, starting bind placeholders at startIndex.
//
// An organization scope with no accessible practices produces an
// always-false predicate: the same fail-closed outcome the in-memory policy
// yields, kept in SQL as well so neither path depends on the other.
func (b *Builder) BuildWhereClause(ctx context.Context, filters []ChartFilter, scope authz.Scope, startIndex int) (*WhereClause, error) {
	var (
		conds  []string
		args   []any
		argPos = startIndex
	)

	if !scope.AllowsAllRows() {
		if len(scope.AccessiblePractices) > 0 {
			conds = append(conds, fmt.Sprintf("practice_uid = ANY($%d)", argPos))
			args = append(args, scope.AccessiblePractices)
			argPos++
		} else {
			log.Warn(ctx, "analytics security: scope has no accessible practices, failing closed",
				log.String("scope", scope.String()),
			)

			conds = append(conds, alwaysFalse)
		}

		if len(scope.AccessibleProviders) > 0 {
			// NULL provider_uid rows are system-level data visible to
			// everyone with provider access.
			conds = append(conds, fmt.Sprintf("(provider_uid IS NULL OR provider_uid = ANY($%d))", argPos))
			args = append(args, scope.AccessibleProviders)
			argPos++
		}
	}

	filterClause, err := b.buildFilterConditions(ctx, filters, argPos)
	if err != nil {
		return nil, err
	}

	if filterClause.SQL != "" {
		conds = append(conds, filterClause.SQL)
	}

	args = append(args, filterClause.Args...)

	return &WhereClause{
		SQL:     strings.Join(conds, " AND "),
		Args:    args,
		NextArg: filterClause.NextArg,
	}, nil
}

// BuildAdvancedFilterClause renders the user filters only. The caller is
// responsible for applying the row policy in-memory after fetch.
func (b *Builder) BuildAdvancedFilterClause(ctx context.Context, filters []ChartFilter, startIndex int) (*WhereClause, error) {
	return b.buildFilterConditions(ctx, filters, startIndex)
}

func (b *Builder) buildFilterConditions(ctx context.Context, filters []ChartFilter, startIndex int) (*WhereClause, error) {
	var (
		conds  []string
		args   []any
		argPos = startIndex
	)

	for _, filter := range filters {
		if !filter.Operator.Valid() {
			return nil, fmt.Errorf("%w: operator %q", ErrUnauthorizedAccess, filter.Operator)
		}

		if !identifierPattern.MatchString(filter.Field) {
			return nil, fmt.Errorf("%w: field %q", ErrUnauthorizedAccess, filter.Field)
		}

		value, err := SanitizeValue(filter.Value, filter.Operator)
		if err != nil {
			return nil, err
		}

		switch filter.Operator {
		case OpIn:
			items, _ := value.([]any)
			if len(items) == 0 {
				// Fail closed rather than dropping the filter.
				conds = append(conds, alwaysFalse)
				continue
			}

			conds = append(conds, fmt.Sprintf("%s = ANY($%d)", filter.Field, argPos))
			args = append(args, items)
			argPos++
		case OpNotIn:
			items, _ := value.([]any)
			if len(items) == 0 {
				continue
			}

			conds = append(conds, fmt.Sprintf("%s != ALL($%d)", filter.Field, argPos))
			args = append(args, items)
			argPos++
		case OpBetween:
			items, _ := value.([]any)

			conds = append(conds, fmt.Sprintf("%s BETWEEN $%d AND $%d", filter.Field, argPos, argPos+1))
			args = append(args, items[0], items[1])
			argPos += 2
		case OpLike:
			pattern, err := castToLikePattern(value)
			if err != nil {
				return nil, err
			}

			conds = append(conds, fmt.Sprintf("%s ILIKE $%d", filter.Field, argPos))
			args = append(args, pattern)
			argPos++
		default:
			conds = append(conds, fmt.Sprintf("%s %s $%d", filter.Field, sqlOperator(filter.Operator), argPos))
			args = append(args, value)
			argPos++
		}
	}

	return &WhereClause{
		SQL:     strings.Join(conds, " AND "),
		Args:    args,
		NextArg: argPos,
	}, nil
}

func sqlOperator(op FilterOperator) string {
	switch op {
	case OpEq:
		return "="
	case OpNeq:
		return "!="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	default:
		return "="
	}
}

func castToLikePattern(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: like requires a string value", ErrInvalidFilterShape)
	}

	return "%" + s + "%", nil
}
