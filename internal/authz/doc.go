// Package authz carries the caller's row-level access scope and implements
// the single row-visibility policy shared by every analytics query path.
//
// Core concepts:
//
//   - Scope: the caller's identity kind plus practice/provider visibility.
//     Set once per request via WithScope; read via GetScope/MustGetScope.
//
//   - Row policy: AllowsPractice/AllowsProvider/AllowRow are the only
//     implementations of the practice/provider visibility rules. The SQL
//     clause builder and the in-memory row filter both derive their
//     behavior from this policy so the two paths cannot diverge.
//
// The policy is fail-closed: an organization-scoped caller with no
// accessible practices sees zero rows, never all rows.
package authz
