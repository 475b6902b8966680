package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinichub/clinichub/internal/authz"
)

func performScoped(t *testing.T, headers map[string]string) (*httptest.ResponseRecorder, authz.Scope, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var (
		got      authz.Scope
		resolved bool
	)

	engine := gin.New()
	engine.Use(WithAuthScope())
	engine.GET("/", func(c *gin.Context) {
		got, resolved = authz.GetScope(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	return w, got, resolved
}

func TestWithAuthScope(t *testing.T) {
	t.Run("full identity", func(t *testing.T) {
		w, scope, resolved := performScoped(t, map[string]string{
			HeaderUserID:    "42",
			HeaderScope:     "organization",
			HeaderPractices: "101, 102,103",
			HeaderProviders: "7",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		require.True(t, resolved)
		assert.Equal(t, authz.ScopeKindUser, scope.Kind)
		require.NotNil(t, scope.UserID)
		assert.Equal(t, int64(42), *scope.UserID)
		assert.Equal(t, authz.PermissionOrganization, scope.Permission)
		assert.Equal(t, []int64{101, 102, 103}, scope.AccessiblePractices)
		assert.Equal(t, []int64{7}, scope.AccessibleProviders)
	})

	t.Run("admin without lists", func(t *testing.T) {
		w, scope, resolved := performScoped(t, map[string]string{
			HeaderUserID: "1",
			HeaderScope:  "all",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		require.True(t, resolved)
		assert.True(t, scope.AllowsAllRows())
		assert.Empty(t, scope.AccessiblePractices)
	})

	t.Run("chart render kind", func(t *testing.T) {
		w, scope, resolved := performScoped(t, map[string]string{
			HeaderUserID:    "9",
			HeaderScopeKind: "chart_render",
			HeaderScope:     "own",
			HeaderPractices: "55",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		require.True(t, resolved)
		assert.Equal(t, authz.ScopeKindChartRender, scope.Kind)
	})

	t.Run("missing identity rejected", func(t *testing.T) {
		w, _, resolved := performScoped(t, nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, resolved)
	})

	t.Run("system kind not mintable over http", func(t *testing.T) {
		w, _, resolved := performScoped(t, map[string]string{
			HeaderUserID:    "9",
			HeaderScopeKind: "system",
			HeaderScope:     "all",
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, resolved)
	})

	t.Run("invalid permission rejected", func(t *testing.T) {
		w, _, resolved := performScoped(t, map[string]string{
			HeaderUserID: "9",
			HeaderScope:  "everything",
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, resolved)
	})

	t.Run("malformed practice list rejected", func(t *testing.T) {
		w, _, resolved := performScoped(t, map[string]string{
			HeaderUserID:    "9",
			HeaderScope:     "own",
			HeaderPractices: "101,abc",
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, resolved)
	})
}
