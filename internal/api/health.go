package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Root reports basic service information.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.name,
		"version": h.version,
		"endpoints": gin.H{
			"transcriptions": "POST /v1/audio/transcriptions",
			"health":         "GET /health",
		},
	})
}

// Health reports pool utilization and model state.
func (h *Handler) Health(c *gin.Context) {
	pool := h.svc.Pool()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"model":          h.cfg.Model,
		"model_loaded":   pool.Loaded(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"workers": gin.H{
			"total":     pool.Size(),
			"active":    pool.Busy(),
			"available": pool.Idle(),
		},
	})
}

// Ready returns 200 once every worker engine has loaded.
func (h *Handler) Ready(c *gin.Context) {
	if !h.svc.Pool().Loaded() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Alive is the liveness probe.
func (h *Handler) Alive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}
