package notify

import "github.com/agentrun/agentrun/pkg/models"

// Priority ranks a NotificationType for display formatting. Higher is
// more urgent.
func Priority(t models.NotificationType) string {
	switch t {
	case models.NotifyCriticalError, models.NotifyBudgetExceeded:
		return "urgent"
	case models.NotifyApprovalNeeded, models.NotifyOutOfScope:
		return "high"
	case models.NotifyBudgetWarning:
		return "normal"
	default:
		return "low"
	}
}

var priorityPrefix = map[string]string{
	"urgent": "🚨 ",
	"high":   "⚠️ ",
	"normal": "",
	"low":    "",
}

// FormatTitle prefixes a notification's title with an urgency marker
// derived from its type.
func FormatTitle(n models.MasterNotification) string {
	return priorityPrefix[Priority(n.Type)] + n.Title
}

// FormatContent appends the notification type as a trailing tag so the
// master contact can tell at a glance what triggered it, unless the
// content already carries one.
func FormatContent(n models.MasterNotification) string {
	return n.Content + "\n\n[" + string(n.Type) + "]"
}
