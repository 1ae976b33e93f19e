package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Kareem-Elnokali/system-creator/internal/connection"
)

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MFAHealth proxies the remote service health endpoint through the typed
// client so the probe is subject to the same timeout and error taxonomy.
func (h *Handler) MFAHealth(c *gin.Context) {
	resp, err := h.remote.Health(c.Request.Context())
	if err != nil {
		e := connection.FromRemote(err)
		c.JSON(e.HTTPStatus(), gin.H{
			"success": false,
			"status":  "error",
			"message": e.Message,
			"code":    string(e.Kind),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  "ok",
		"remote":  resp,
	})
}
