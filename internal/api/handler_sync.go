package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	syncer "studio-sync-backend/internal/sync"
)

// TriggerSync runs an on-demand reconciliation. It skips the interval gate
// but stays inside operating hours unless force=true.
func (h *Handler) TriggerSync(c *gin.Context) {
	force := c.Query("force") == "true" || c.Query("force") == "1"

	result, ran := h.scheduler.TriggerManual(c.Request.Context(), force)
	if !ran {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outside operating hours; pass force=true to override"})
		return
	}

	status := http.StatusOK
	if !result.Success {
		for _, e := range result.Errors {
			if e == syncer.ErrAlreadySyncing.Error() {
				status = http.StatusConflict
			}
		}
	}
	c.JSON(status, result)
}

// GetStatus reports session validity and the persisted sync timestamps.
func (h *Handler) GetStatus(c *gin.Context) {
	session, err := h.store.LoadSession(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"session_valid": h.sessions.IsValid(),
	}
	if session != nil {
		resp["logged_in"] = session.IsLoggedIn
		resp["expires_at"] = session.ExpiresAt
		resp["last_sync_at"] = session.LastSyncAt
		resp["last_keepalive_at"] = session.LastKeepAliveAt
	}
	c.JSON(http.StatusOK, resp)
}
