package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clinichub/clinichub/internal/analytics"
	"github.com/clinichub/clinichub/internal/authz"
)

// AnalyticsHandlers exposes the analytics query engine over HTTP.
type AnalyticsHandlers struct {
	Orchestrator *analytics.Orchestrator
	Dimensions   *analytics.DimensionCache
	RowCache     *analytics.DataSourceCache
}

func NewAnalyticsHandlers(orchestrator *analytics.Orchestrator, dimensions *analytics.DimensionCache, rowCache *analytics.DataSourceCache) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		Orchestrator: orchestrator,
		Dimensions:   dimensions,
		RowCache:     rowCache,
	}
}

// Query runs a measure query: single, multi-series, or period comparison.
func (handlers *AnalyticsHandlers) Query(c *gin.Context) {
	var params analytics.QueryParams
	if err := c.ShouldBindJSON(&params); err != nil {
		JSONError(c, http.StatusBadRequest, fmt.Errorf("invalid query request: %w", err))
		return
	}

	result, err := handlers.Orchestrator.QueryMeasures(c.Request.Context(), params)
	if err != nil {
		JSONError(c, queryStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// DimensionValues serves the top-N value summary of one dimension column.
// Filter context arrives in query parameters; the filters parameter is a
// JSON-encoded array.
func (handlers *AnalyticsHandlers) DimensionValues(c *gin.Context) {
	req, err := dimensionRequestFromQuery(c)
	if err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	result, err := handlers.Dimensions.GetDimensionValues(c.Request.Context(), req)
	if err != nil {
		JSONError(c, queryStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// InvalidateCacheRequest selects which cache entries to drop. A request with
// Dimension set targets the dimension value cache; otherwise the cached row
// set identified by the remaining fields is dropped.
type InvalidateCacheRequest struct {
	DataSourceID int64  `json:"data_source_id"`
	Schema       string `json:"schema,omitempty"`
	Table        string `json:"table,omitempty"`
	Measure      string `json:"measure,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	PracticeUID  *int64 `json:"practice_uid,omitempty"`
	ProviderUID  *int64 `json:"provider_uid,omitempty"`
	Dimension    string `json:"dimension,omitempty"`
}

// InvalidateCacheResponse reports how many entries were removed. Row set
// invalidation targets one fingerprint, so it reports 0 or 1.
type InvalidateCacheResponse struct {
	Removed int64 `json:"removed"`
}

// InvalidateCache drops cached analytics data after out-of-band data loads.
// Only unrestricted scopes may call it.
func (handlers *AnalyticsHandlers) InvalidateCache(c *gin.Context) {
	scope, ok := authz.GetScope(c.Request.Context())
	if !ok || !scope.AllowsAllRows() {
		JSONError(c, http.StatusForbidden, analytics.ErrUnauthorizedAccess)
		return
	}

	var req InvalidateCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, fmt.Errorf("invalid invalidation request: %w", err))
		return
	}

	if req.DataSourceID == 0 {
		JSONError(c, http.StatusBadRequest, errors.New("data_source_id is required"))
		return
	}

	if req.Dimension != "" || (req.Table == "" && req.Measure == "") {
		removed, err := handlers.Dimensions.InvalidateCache(c.Request.Context(), req.DataSourceID, req.Dimension)
		if err != nil {
			JSONError(c, http.StatusInternalServerError, err)
			return
		}

		c.JSON(http.StatusOK, InvalidateCacheResponse{Removed: removed})

		return
	}

	existed, err := handlers.RowCache.Invalidate(c.Request.Context(), analytics.CacheQueryParams{
		DataSourceID: req.DataSourceID,
		Schema:       req.Schema,
		Table:        req.Table,
		Measure:      req.Measure,
		Frequency:    req.Frequency,
		PracticeUID:  req.PracticeUID,
		ProviderUID:  req.ProviderUID,
	})
	if err != nil {
		JSONError(c, http.StatusInternalServerError, err)
		return
	}

	var removed int64
	if existed {
		removed = 1
	}

	c.JSON(http.StatusOK, InvalidateCacheResponse{Removed: removed})
}

func dimensionRequestFromQuery(c *gin.Context) (analytics.DimensionValuesRequest, error) {
	var req analytics.DimensionValuesRequest

	dataSourceID, err := strconv.ParseInt(c.Query("data_source_id"), 10, 64)
	if err != nil {
		return req, fmt.Errorf("invalid data_source_id: %w", err)
	}

	req.DataSourceID = dataSourceID
	req.Dimension = c.Query("dimension")
	req.Measure = c.Query("measure")
	req.Frequency = c.Query("frequency")
	req.StartDate = c.Query("start_date")
	req.EndDate = c.Query("end_date")

	if raw := strings.TrimSpace(c.Query("practice_uids")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			uid, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return req, fmt.Errorf("invalid practice_uids: %w", err)
			}

			req.PracticeUIDs = append(req.PracticeUIDs, uid)
		}
	}

	if raw := c.Query("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Filters); err != nil {
			return req, fmt.Errorf("invalid filters: %w", err)
		}
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("invalid limit: %w", err)
		}

		req.Limit = limit
	}

	return req, nil
}

// queryStatus maps engine errors to HTTP statuses. Authorization failures
// stay distinguishable; everything else the engine already collapsed into
// its generic failure.
func queryStatus(err error) int {
	switch {
	case errors.Is(err, analytics.ErrUnauthorizedAccess):
		return http.StatusForbidden
	case errors.Is(err, analytics.ErrConfigurationMissing):
		return http.StatusNotFound
	case errors.Is(err, analytics.ErrInvalidFilterShape):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
