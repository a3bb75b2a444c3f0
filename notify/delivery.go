package notify

import "time"

// maxRetries caps requeue attempts, matching NotificationManager/WebhookManager's
// hardcoded retry_count < 3 cutoff.
const maxRetries = 3

// Delivery is a single queued email or webhook job. Exactly one of Email
// or Webhook is set, selected by Kind.
type Delivery struct {
	ID         string
	Kind       string // "email" | "webhook"
	EventType  string
	QueuedAt   time.Time
	RetryCount int

	Email   *EmailJob
	Webhook *WebhookJob
}

// Result records the outcome of one delivery attempt, returned from
// History for observability. Grounded on
// NotificationManager.get_notification_history / WebhookManager.get_webhook_history.
type Result struct {
	DeliveryID string
	Kind       string
	EventType  string
	Status     string // "sent" | "retrying" | "failed"
	Error      string
	At         time.Time
}
