package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) GetUsageStats(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}

	stats, err := h.repo.GetUsageStats(tenantID, time.Now().AddDate(0, 0, -days))
	if err != nil {
		h.logger.Error("Failed to get usage stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats, "days": days})
}

func (h *Handler) GetAPICallLogs(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	logs, err := h.repo.GetAPICallLogs(tenantID, time.Now().AddDate(0, 0, -days), limit)
	if err != nil {
		h.logger.Error("Failed to get API call logs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs, "days": days})
}

func (h *Handler) GetOverview(c *gin.Context) {
	overview, err := h.repo.GetOverview()
	if err != nil {
		h.logger.Error("Failed to build overview", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if h.metrics != nil {
		h.metrics.SetConnectedTenants(overview.ConnectedCount)
	}

	c.JSON(http.StatusOK, overview)
}
