package manager

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"vmwarden/internal/integrations/webhook"
	"vmwarden/internal/models"
)

const maxDashboardNotifications = 50

// Embed accent colors per event severity.
const (
	colorHealthy   = 0x16A34A
	colorDegraded  = 0xF59E0B
	colorUnhealthy = 0xDC2626
	colorInfo      = 0x2563EB
)

// WebhookNotify posts an embed to the configured webhook. It is
// best-effort: failures are logged and counted, never raised to the caller.
func (mgr *Manager) WebhookNotify(content string, embeds ...webhook.Embed) {
	if mgr == nil || !mgr.cfg.Notify.Enabled {
		return
	}
	url := strings.TrimSpace(mgr.cfg.Notify.WebhookURL)
	if url == "" {
		return
	}
	payload := webhook.Payload{Content: strings.TrimSpace(content)}
	if len(embeds) > 0 {
		payload.Embeds = embeds
	}
	status, err := webhook.Post(url, payload)
	if err != nil || status < 200 || status >= 300 {
		if mgr.metrics != nil {
			mgr.metrics.NotifyFailuresTotal.Inc()
		}
		mgr.logger.Warn("webhook notify failed",
			zap.Int("status", status),
			zap.Error(err))
	}
}

func (mgr *Manager) notifyAssessment(a *models.Assessment) {
	kind := notificationKindForCategory(a.Category)
	title := fmt.Sprintf("%s: %s", a.Target, a.Category)
	message := fmt.Sprintf("score %d", a.Score)
	if len(a.Issues) > 0 {
		message = fmt.Sprintf("score %d — %s", a.Score, strings.Join(a.Issues, "; "))
	}
	mgr.enqueueDashboardNotification(kind, "assessment", title, message, a.Target, "health")

	// Healthy results stay out of the chat channel; the feed keeps them.
	if a.Category == models.CategoryHealthy {
		return
	}
	embed := webhook.NewEmbed(
		fmt.Sprintf("Health: %s is %s", a.Target, a.Category),
		message,
		colorForCategory(a.Category),
		"vmwarden")
	mgr.WebhookNotify("", embed)
}

func (mgr *Manager) notifyRemediation(r *models.RemediationResult) {
	elapsed := r.Elapsed.Truncate(time.Millisecond).String()
	if r.Error != "" {
		message := fmt.Sprintf("restart failed after %s: %s", elapsed, r.Error)
		mgr.enqueueDashboardNotification(models.NotificationKindDanger, "remediation-failed",
			fmt.Sprintf("%s: restart failed", r.Target), message, r.Target, "remedy")
		mgr.WebhookNotify("", webhook.NewEmbed(
			fmt.Sprintf("Remediation failed: %s", r.Target), message, colorUnhealthy, "vmwarden"))
		return
	}
	message := fmt.Sprintf("restarted in %s (%s)", elapsed, r.Reason)
	mgr.enqueueDashboardNotification(models.NotificationKindWarning, "remediation",
		fmt.Sprintf("%s: restarted", r.Target), message, r.Target, "remedy")
	mgr.WebhookNotify("", webhook.NewEmbed(
		fmt.Sprintf("Remediation: %s restarted", r.Target), message, colorDegraded, "vmwarden"))
}

func (mgr *Manager) notifyFleetSummary(s *models.FleetSummary) {
	message := fmt.Sprintf("%d targets: %d healthy, %d need attention (%d degraded)",
		s.Total, s.Healthy, s.Unhealthy, s.Degraded)
	if len(s.FailedTargets) > 0 {
		message += fmt.Sprintf(", %d lookups failed", len(s.FailedTargets))
	}
	kind := models.NotificationKindSuccess
	if s.Unhealthy > 0 || len(s.FailedTargets) > 0 {
		kind = models.NotificationKindWarning
	}
	mgr.enqueueDashboardNotification(kind, "fleet-check",
		fmt.Sprintf("Fleet check: %s", s.ResourceGroup), message, "", "fleet")

	if s.Unhealthy == 0 && len(s.FailedTargets) == 0 {
		return
	}
	detail := message
	if len(s.UnhealthyTargets) > 0 {
		detail += "\nNeeds attention: " + strings.Join(s.UnhealthyTargets, ", ")
	}
	color := colorDegraded
	if s.Unhealthy > s.Healthy {
		color = colorUnhealthy
	}
	mgr.WebhookNotify("", webhook.NewEmbed(
		fmt.Sprintf("Fleet check: %s", s.ResourceGroup), detail, color, "vmwarden"))
}

func (mgr *Manager) enqueueDashboardNotification(kind, event, title, message, target, source string) {
	if mgr == nil {
		return
	}
	entry := models.DashboardNotification{
		ID:        mgr.notificationSeq.Add(1),
		Kind:      kind,
		Event:     event,
		Title:     strings.TrimSpace(title),
		Message:   strings.TrimSpace(message),
		Target:    target,
		Source:    source,
		CreatedAt: time.Now(),
	}
	mgr.notificationsMu.Lock()
	defer mgr.notificationsMu.Unlock()
	buffer := make([]models.DashboardNotification, 0, len(mgr.notifications)+1)
	buffer = append(buffer, entry)
	buffer = append(buffer, mgr.notifications...)
	if len(buffer) > maxDashboardNotifications {
		buffer = buffer[:maxDashboardNotifications]
	}
	mgr.notifications = buffer
}

// RecentNotifications returns up to limit most recent feed entries.
func (mgr *Manager) RecentNotifications(limit int) []models.DashboardNotification {
	if mgr == nil {
		return nil
	}
	mgr.notificationsMu.RLock()
	defer mgr.notificationsMu.RUnlock()
	if len(mgr.notifications) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(mgr.notifications) {
		limit = len(mgr.notifications)
	}
	out := make([]models.DashboardNotification, limit)
	copy(out, mgr.notifications[:limit])
	return out
}

func notificationKindForCategory(c models.Category) string {
	switch c {
	case models.CategoryHealthy:
		return models.NotificationKindSuccess
	case models.CategoryDegraded:
		return models.NotificationKindWarning
	case models.CategoryUnhealthy:
		return models.NotificationKindDanger
	default:
		return models.NotificationKindInfo
	}
}

func colorForCategory(c models.Category) int {
	switch c {
	case models.CategoryHealthy:
		return colorHealthy
	case models.CategoryDegraded:
		return colorDegraded
	case models.CategoryUnhealthy:
		return colorUnhealthy
	default:
		return colorInfo
	}
}
