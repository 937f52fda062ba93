package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"studio-sync-backend/internal/remote"
	"studio-sync-backend/internal/session"
)

// RequestCode starts a manual login: credential check plus code dispatch.
// Credentials default to the configured account when omitted.
func (h *Handler) RequestCode(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username == "" {
		req.Username = h.cfg.Remote.Username
		req.Password = h.cfg.Remote.Password
	}

	err := h.sessions.RequestVerificationCode(c.Request.Context(), req.Username, req.Password)
	var credErr *remote.CredentialsError
	if errors.As(err, &credErr) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": credErr.Message})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "code_requested"})
}

// ConfirmCode completes a manual login with the emailed code.
func (h *Handler) ConfirmCode(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.sessions.ConfirmVerificationCode(c.Request.Context(), req.Code)
	switch {
	case errors.Is(err, session.ErrNoPendingLogin):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, remote.ErrCodeRejected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "authenticated", "expires_at": sess.ExpiresAt})
	}
}

// ClearSession invalidates the in-process and durable session state.
func (h *Handler) ClearSession(c *gin.Context) {
	if err := h.sessions.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
