package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinichub/clinichub/internal/build"
)

// SystemHandlers serves health and build information.
type SystemHandlers struct{}

func NewSystemHandlers() *SystemHandlers {
	return &SystemHandlers{}
}

func (handlers *SystemHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": build.Version,
	})
}
