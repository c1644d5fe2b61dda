package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// alertPayload models the subset of the platform's common alert schema the
// warden consumes. Alert rules configured in the monitoring pipeline POST
// this shape at the warden to trigger a targeted assessment.
type alertPayload struct {
	SchemaID string `json:"schemaId"`
	Data     struct {
		Essentials struct {
			AlertRule        string   `json:"alertRule"`
			Severity         string   `json:"severity"`
			MonitorCondition string   `json:"monitorCondition"`
			AlertTargetIDs   []string `json:"alertTargetIDs" binding:"required,min=1"`
		} `json:"essentials"`
	} `json:"data"`
}

// AlertWebhook receives a fired alert rule and runs an assessment against
// the first target the alert names. Resolved alerts are acknowledged and
// dropped.
func (h *WardenHandlers) AlertWebhook(c *gin.Context) {
	var payload alertPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alert payload missing target ids"})
		return
	}
	if strings.EqualFold(payload.Data.Essentials.MonitorCondition, "Resolved") {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "alert resolved"})
		return
	}

	target := targetFromResourceID(payload.Data.Essentials.AlertTargetIDs[0])
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not extract target from alert"})
		return
	}

	assessment, err := h.manager.AssessTarget(c.Request.Context(), target, 0)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "target": target})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alert_rule": payload.Data.Essentials.AlertRule,
		"assessment": assessment,
	})
}

// targetFromResourceID pulls the resource name off the tail of a fully
// qualified resource ID; bare names pass through unchanged.
func targetFromResourceID(id string) string {
	id = strings.TrimSpace(strings.TrimSuffix(id, "/"))
	if id == "" {
		return ""
	}
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}
