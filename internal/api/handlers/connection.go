package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/connection"
	"github.com/Kareem-Elnokali/system-creator/internal/db"
)

func (h *Handler) GetConnectionStatus(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	status, err := h.gateway.GetStatus(c.Request.Context(), h.caller(c), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "connection": status})
}

type CreateConnectionRequest struct {
	RemoteURL     string `json:"remote_url" binding:"required,url"`
	ConnectionKey string `json:"connection_key" binding:"required"`
}

func (h *Handler) CreateConnection(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var req CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := h.repo.GetTenant(tenantID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	message, err := h.gateway.CreateConnection(c.Request.Context(), tenant, req.RemoteURL, req.ConnectionKey)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "message": message})
}

func (h *Handler) Disconnect(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	if err := h.gateway.Disconnect(c.Request.Context(), h.caller(c), tenantID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "tenant has been disconnected",
		"tenant_id": tenantID.String(),
	})
}

func (h *Handler) ModifySecurity(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var update connection.SecurityUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := h.gateway.ModifySecurity(c.Request.Context(), h.caller(c), tenantID, update)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "security settings updated successfully",
		"settings": settings,
	})
}

func (h *Handler) SyncTenant(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	tenant, err := h.repo.GetTenant(tenantID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	result := h.syncer.SyncTenant(c.Request.Context(), tenant)
	status := http.StatusOK
	switch {
	case result.Skipped:
		status = http.StatusConflict
	case !result.Success:
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

func (h *Handler) SyncAll(c *gin.Context) {
	result, err := h.syncer.SyncAllActive(c.Request.Context())
	if err != nil {
		h.logger.Error("Batch sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Remote proxies. Each goes through the audited client, so every call shows
// up in the tenant's API call log.

func (h *Handler) GetRemoteUsers(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	tenant, err := h.repo.GetTenant(tenantID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	page, err := h.remote.GetUsers(c.Request.Context(), tenant, limit, offset)
	if err != nil {
		h.writeError(c, connection.FromRemote(err))
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetRemoteAuthLogs(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	tenant, err := h.repo.GetTenant(tenantID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	page, err := h.remote.GetAuthLogs(c.Request.Context(), tenant, days, limit)
	if err != nil {
		h.writeError(c, connection.FromRemote(err))
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) UpdateRemoteFeatures(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	tenant, err := h.repo.GetTenant(tenantID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var features map[string]interface{}
	if err := c.ShouldBindJSON(&features); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.remote.UpdateFeatures(c.Request.Context(), tenant, features)
	if err != nil {
		h.writeError(c, connection.FromRemote(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "response": resp})
}
