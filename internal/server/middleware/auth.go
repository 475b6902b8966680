package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clinichub/clinichub/internal/authz"
	"github.com/clinichub/clinichub/internal/log"
)

// Identity headers set by the authenticating gateway in front of this
// service. The service trusts them as-is; it is never exposed directly.
const (
	HeaderUserID    = "X-Auth-User-Id"
	HeaderScopeKind = "X-Auth-Kind"
	HeaderScope     = "X-Auth-Scope"
	HeaderPractices = "X-Auth-Practices"
	HeaderProviders = "X-Auth-Providers"
)

var errMissingIdentity = errors.New("missing caller identity")

// WithAuthScope resolves the caller's row-level access scope from the
// gateway identity headers and stores it in the request context. Requests
// without a resolvable scope are rejected; downstream code fails closed
// regardless.
func WithAuthScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, err := scopeFromHeaders(c)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, err)
			return
		}

		ctx, err := authz.WithScope(c.Request.Context(), scope)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, err)
			return
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func scopeFromHeaders(c *gin.Context) (authz.Scope, error) {
	rawUser := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if rawUser == "" {
		return authz.Scope{}, errMissingIdentity
	}

	userID, err := strconv.ParseInt(rawUser, 10, 64)
	if err != nil {
		return authz.Scope{}, fmt.Errorf("invalid %s header: %w", HeaderUserID, err)
	}

	permission := authz.PermissionScope(strings.TrimSpace(c.GetHeader(HeaderScope)))
	if !permission.Valid() {
		return authz.Scope{}, fmt.Errorf("invalid %s header: %q", HeaderScope, permission)
	}

	kind := authz.ScopeKindUser
	if k := strings.TrimSpace(c.GetHeader(HeaderScopeKind)); k != "" {
		switch k {
		case "user":
			kind = authz.ScopeKindUser
		case "chart_render":
			kind = authz.ScopeKindChartRender
		default:
			// System scope can only be minted in-process.
			return authz.Scope{}, fmt.Errorf("invalid %s header: %q", HeaderScopeKind, k)
		}
	}

	practices, err := parseIDList(c.GetHeader(HeaderPractices))
	if err != nil {
		return authz.Scope{}, fmt.Errorf("invalid %s header: %w", HeaderPractices, err)
	}

	providers, err := parseIDList(c.GetHeader(HeaderProviders))
	if err != nil {
		return authz.Scope{}, fmt.Errorf("invalid %s header: %w", HeaderProviders, err)
	}

	scope := authz.Scope{
		Kind:                kind,
		UserID:              &userID,
		Permission:          permission,
		AccessiblePractices: practices,
		AccessibleProviders: providers,
	}

	if log.DebugEnabled() {
		log.Debug(c.Request.Context(), "resolved auth scope", log.String("scope", scope.String()))
	}

	return scope, nil
}

func parseIDList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}
