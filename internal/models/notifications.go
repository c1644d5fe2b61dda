package models

import "time"

// DashboardNotification represents a recent assessment/remediation event
// surfaced in the operator feed.
type DashboardNotification struct {
	ID        uint64    `json:"id"`
	Kind      string    `json:"kind"`
	Event     string    `json:"event,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Target    string    `json:"target,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	NotificationKindInfo    = "info"
	NotificationKindSuccess = "success"
	NotificationKindWarning = "warning"
	NotificationKindDanger  = "danger"
)
