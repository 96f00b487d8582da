package handlers

import (
	"net/http"

	"offline-sync-agent/internal/auth"

	"github.com/gin-gonic/gin"
)

// SessionRequest represents the session request payload
type SessionRequest struct {
	ClientID string `json:"clientId" binding:"required"`
}

// SessionResponse represents the session response
type SessionResponse struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId"`
}

// CreateSession handles POST /session: issues a control-surface token for a
// client instance. The agent trusts its co-resident callers; the token only
// fences off the control endpoints from the proxied traffic.
func CreateSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. clientId is required.",
		})
		return
	}

	token, err := auth.GenerateToken(req.ClientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		Token:    token,
		ClientID: req.ClientID,
	})
}
