package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kareem-Elnokali/system-creator/internal/db"
)

type CreateTenantRequest struct {
	Name         string `json:"name" binding:"required,min=1,max=200"`
	Domain       string `json:"domain" binding:"required,fqdn"`
	OwnerID      string `json:"owner_id" binding:"required,uuid"`
	ContactEmail string `json:"contact_email" binding:"required,email"`
	ContactName  string `json:"contact_name" binding:"max=100"`
	Plan         string `json:"plan" binding:"omitempty,oneof=free basic premium enterprise"`
}

type CreateTenantResponse struct {
	Tenant *db.Tenant `json:"tenant"`
	// Returned exactly once; only the hash is stored.
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

func (h *Handler) CreateTenant(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exists, err := h.repo.DomainExists(req.Domain)
	if err != nil {
		h.logger.Error("Failed to check domain", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "Domain already registered"})
		return
	}

	settings, err := h.repo.GetSettings()
	if err != nil {
		h.logger.Error("Failed to load system settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ownerID := uuid.MustParse(req.OwnerID)
	count, err := h.repo.CountTenantsByOwner(ownerID)
	if err != nil {
		h.logger.Error("Failed to count tenants", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if settings.MaxTenantsPerOwner > 0 && count >= settings.MaxTenantsPerOwner {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Tenant limit exceeded for this owner"})
		return
	}

	plan := db.PlanTier(req.Plan)
	if plan == "" {
		plan = db.PlanFree
	}
	if plan == db.PlanFree && !settings.AllowFreePlan {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Free plan is not available"})
		return
	}

	// Credential pair is generated exactly once, at creation.
	apiKey := generateCredential(32)
	apiSecret := generateCredential(48)
	secretHash, err := bcrypt.GenerateFromPassword([]byte(apiSecret), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate credentials"})
		return
	}

	maxUsers, maxAuth := db.PlanLimits(plan)
	tenant := &db.Tenant{
		ID:             uuid.New(),
		Name:           req.Name,
		Domain:         req.Domain,
		OwnerID:        ownerID,
		ContactEmail:   req.ContactEmail,
		ContactName:    req.ContactName,
		Plan:           plan,
		Status:         db.TenantPending,
		APIKey:         apiKey,
		APISecretHash:  string(secretHash),
		MaxUsers:       maxUsers,
		MaxMonthlyAuth: maxAuth,
		Settings:       db.JSONB{},
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if settings.RequireDomainVerification {
		result := h.verifier.VerifyDomain(req.Domain, apiKey[:8])
		tenant.DomainVerified = result.Verified
	}

	if err := h.repo.CreateTenant(tenant); err != nil {
		h.logger.Error("Failed to create tenant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tenant"})
		return
	}

	h.logger.Info("Tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("domain", tenant.Domain),
		zap.String("plan", string(tenant.Plan)),
	)

	c.JSON(http.StatusCreated, CreateTenantResponse{
		Tenant:    tenant,
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
}

func (h *Handler) GetTenant(c *gin.Context) {
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
		h.logger.Error("Failed to get tenant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, tenant)
}

func (h *Handler) ListTenants(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	tenants, err := h.repo.ListTenants(
		c.Query("status"),
		c.Query("plan"),
		c.Query("search"),
		limit,
		(page-1)*limit,
	)
	if err != nil {
		h.logger.Error("Failed to list tenants", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenants": tenants,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
		},
	})
}

type UpdateTenantStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active suspended pending cancelled"`
}

func (h *Handler) UpdateTenantStatus(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var req UpdateTenantStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.repo.UpdateTenantStatus(tenantID, db.TenantStatus(req.Status)); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		h.logger.Error("Failed to update tenant status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.logger.Info("Tenant status updated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("status", req.Status),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "status": req.Status})
}

func (h *Handler) VerifyTenantDomain(c *gin.Context) {
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

	result := h.verifier.VerifyDomain(tenant.Domain, tenant.APIKey[:8])
	if result.Verified && !tenant.DomainVerified {
		if err := h.repo.SetTenantDomainVerified(tenantID, true); err != nil {
			h.logger.Error("Failed to persist domain verification", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	c.JSON(http.StatusOK, result)
}
