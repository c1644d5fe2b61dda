// Package handlers exposes the warden's operations over the gin API.
package handlers

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vmwarden/internal/manager"
	"vmwarden/internal/middleware"
	"vmwarden/internal/models"
	"vmwarden/internal/version"
)

// WardenHandlers binds API routes to the manager.
type WardenHandlers struct {
	manager *manager.Manager
	auth    *middleware.AuthService
}

// New builds the handler set.
func New(mgr *manager.Manager, auth *middleware.AuthService) *WardenHandlers {
	return &WardenHandlers{manager: mgr, auth: auth}
}

type loginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks the operator credential and issues a bearer token.
func (h *WardenHandlers) Login(c *gin.Context) {
	var in loginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	token, err := h.auth.Login(c.ClientIP(), in.Username, in.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": int(middleware.TokenExpiry.Seconds())})
}

// Healthz reports process liveness for probes and the pipeline.
func (h *WardenHandlers) Healthz(c *gin.Context) {
	hostname, _ := os.Hostname()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "host": hostname, "version": version.String()})
}

// AssessTarget runs one assessment. An optional window_minutes query
// parameter overrides the configured look-back.
func (h *WardenHandlers) AssessTarget(c *gin.Context) {
	target := c.Param("target")
	assessment, err := h.manager.AssessTarget(c.Request.Context(), target, windowParam(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "target": target})
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// RemediateTarget assesses and, when the target scores unhealthy, restarts
// it. The response carries both the assessment and the restart decision.
func (h *WardenHandlers) RemediateTarget(c *gin.Context) {
	target := c.Param("target")
	assessment, result, err := h.manager.RemediateTarget(c.Request.Context(), target, windowParam(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "target": target})
		return
	}
	status := http.StatusOK
	if result.Error != "" {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"assessment": assessment, "remediation": result})
}

// FleetCheck assesses every target in the resource group. remediate=true
// restarts unhealthy targets as they are found.
func (h *WardenHandlers) FleetCheck(c *gin.Context) {
	remediate := c.Query("remediate") == "true"
	summary, err := h.manager.CheckFleet(c.Request.Context(), remediate)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// TargetReport returns the most recent persisted assessment for a target.
func (h *WardenHandlers) TargetReport(c *gin.Context) {
	target := c.Param("target")
	assessment, err := h.manager.Reports().LatestAssessment(target)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report for target", "target": target})
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// FleetSummary returns the most recent persisted fleet summary.
func (h *WardenHandlers) FleetSummary(c *gin.Context) {
	summary, err := h.manager.Reports().LatestSummary(h.manager.ResourceGroup())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no fleet summary yet"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Notifications returns the recent dashboard feed, newest first.
func (h *WardenHandlers) Notifications(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	entries := h.manager.RecentNotifications(limit)
	if entries == nil {
		entries = []models.DashboardNotification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": entries})
}

func windowParam(c *gin.Context) time.Duration {
	raw := c.Query("window_minutes")
	if raw == "" {
		return 0
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}
