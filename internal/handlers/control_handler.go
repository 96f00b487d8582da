package handlers

import (
	"net/http"

	"offline-sync-agent/internal/control"
	"offline-sync-agent/internal/push"

	"github.com/gin-gonic/gin"
)

// ControlHandler exposes the in-process control channel over HTTP.
type ControlHandler struct {
	Channel *control.Channel
}

// Dispatch handles POST /control. Handler failures come back as {"ok":false},
// never as an error status: the channel boundary swallows them.
func (h *ControlHandler) Dispatch(c *gin.Context) {
	var msg control.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.Channel.Dispatch(c.Request.Context(), msg))
}

// PushHandler exposes the notification router to the platform's push
// delivery harness.
type PushHandler struct {
	Router *push.Router
}

// Display handles POST /push/display: raw payload in, display spec out.
func (h *PushHandler) Display(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}
	c.JSON(http.StatusOK, h.Router.BuildDisplaySpec(raw))
}

// ClickTargetRequest carries a displayed notification's data payload.
type ClickTargetRequest struct {
	Data map[string]any `json:"data"`
}

// Click handles POST /push/click: resolves the stored navigation target,
// same-origin only.
func (h *PushHandler) Click(c *gin.Context) {
	var req ClickTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target := h.Router.ResolveClickTarget(req.Data)
	if target == "" {
		c.JSON(http.StatusOK, gin.H{"url": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": target})
}
