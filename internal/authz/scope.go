package authz

import (
	"context"
	"fmt"
	"slices"
)

// ScopeKind discriminates how the scope was established.
type ScopeKind int

const (
	// ScopeKindUnknown unknown scope kind.
	ScopeKindUnknown ScopeKind = iota
	// ScopeKindUser scope resolved from an authenticated user session.
	ScopeKindUser
	// ScopeKindChartRender scope resolved for a server-side chart render.
	ScopeKindChartRender
	// ScopeKindSystem system scope (background tasks, cache warming).
	ScopeKindSystem
)

// String returns string representation of ScopeKind.
func (k ScopeKind) String() string {
	switch k {
	case ScopeKindUser:
		return "user"
	case ScopeKindChartRender:
		return "chart_render"
	case ScopeKindSystem:
		return "system"
	case ScopeKindUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// PermissionScope defines how wide the caller's row visibility is.
type PermissionScope string

const (
	// PermissionOwn restricts rows to the caller's own practices/providers.
	PermissionOwn PermissionScope = "own"
	// PermissionOrganization restricts rows to the caller's organization practices.
	PermissionOrganization PermissionScope = "organization"
	// PermissionAll applies no row restriction (super admin).
	PermissionAll PermissionScope = "all"
)

// Valid reports whether the permission scope is one of the known values.
func (p PermissionScope) Valid() bool {
	switch p {
	case PermissionOwn, PermissionOrganization, PermissionAll:
		return true
	default:
		return false
	}
}

// Scope represents the caller's row-level access.
// Each request has exactly one Scope, guaranteed by WithScope's set-once semantics.
type Scope struct {
	Kind                ScopeKind
	UserID              *int64
	Permission          PermissionScope
	AccessiblePractices []int64
	AccessibleProviders []int64
}

// SystemScope returns an unrestricted scope for background operations.
func SystemScope() Scope {
	return Scope{Kind: ScopeKindSystem, Permission: PermissionAll}
}

// String returns string representation of Scope (for audit logs).
func (s Scope) String() string {
	if s.UserID != nil {
		return fmt.Sprintf("%s:%d:%s", s.Kind, *s.UserID, s.Permission)
	}

	return fmt.Sprintf("%s:%s", s.Kind, s.Permission)
}

// AllowsAllRows reports whether the scope applies no row restriction.
func (s Scope) AllowsAllRows() bool {
	return s.Permission == PermissionAll
}

// AllowsPractice reports whether the scope may see rows of the given practice.
// Fail-closed: any non-admin scope with an empty practice list sees nothing.
func (s Scope) AllowsPractice(practiceUID int64) bool {
	if s.AllowsAllRows() {
		return true
	}

	if len(s.AccessiblePractices) == 0 {
		return false
	}

	return slices.Contains(s.AccessiblePractices, practiceUID)
}

// AllowsProvider reports whether the scope may see rows of the given provider.
// A nil providerUID marks system-level data visible to everyone with provider
// access. An empty provider list applies no provider restriction.
func (s Scope) AllowsProvider(providerUID *int64) bool {
	if s.AllowsAllRows() {
		return true
	}

	if len(s.AccessibleProviders) == 0 {
		return true
	}

	if providerUID == nil {
		return true
	}

	return slices.Contains(s.AccessibleProviders, *providerUID)
}

// AllowRow is the single row-visibility decision used by both the SQL and
// the in-memory filtering paths.
func (s Scope) AllowRow(practiceUID int64, providerUID *int64) bool {
	return s.AllowsPractice(practiceUID) && s.AllowsProvider(providerUID)
}

// scopeKey is an unexported key type to prevent external forgery.
type scopeKey struct{}

// WithScope sets the Scope, returning an error if a different one already exists.
// Ensures each context can only carry one scope, preventing privilege mixing.
func WithScope(ctx context.Context, s Scope) (context.Context, error) {
	if existing, ok := GetScope(ctx); ok {
		if !scopeEqual(existing, s) {
			return ctx, fmt.Errorf("authz: scope conflict: existing=%s, new=%s", existing.String(), s.String())
		}

		return ctx, nil // Same scope, idempotent
	}

	return context.WithValue(ctx, scopeKey{}, s), nil
}

// NewSystemContext creates a context with an unrestricted system scope.
func NewSystemContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, SystemScope())
}

// GetScope reads the Scope.
func GetScope(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// MustGetScope reads the Scope, panicking if absent (used in chains where the
// middleware has already confirmed it).
func MustGetScope(ctx context.Context) Scope {
	s, ok := GetScope(ctx)
	if !ok {
		panic("authz: no scope in context")
	}

	return s
}

func scopeEqual(a, b Scope) bool {
	if a.Kind != b.Kind || a.Permission != b.Permission {
		return false
	}

	if !int64PtrEqual(a.UserID, b.UserID) {
		return false
	}

	return slices.Equal(a.AccessiblePractices, b.AccessiblePractices) &&
		slices.Equal(a.AccessibleProviders, b.AccessibleProviders)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil && b == nil {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	return *a == *b
}
