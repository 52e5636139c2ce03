package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports database reachability and model readiness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "database connection failed"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			dbStatus = "database ping failed"
		}
	}

	voice := gin.H{"enabled": h.voice != nil}
	modelsReady := true
	if h.voice != nil {
		voice["models"] = h.voice.Models().Info()
		voice["active_sessions"] = h.voice.Registry().Count()
		modelsReady = h.voice.Models().Ready()
	}

	status, code := "healthy", http.StatusOK
	if dbStatus != "ok" || !modelsReady {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":   status,
		"database": dbStatus,
		"voice":    voice,
	})
}
