// Package notify dispatches workflow events to email and webhook
// channels, per kanban configuration (spec §4.10). Each channel has its
// own queue and background worker, with retry-up-to-3 and a recent
// history for observability. Grounded on
// _examples/original_source/src/workflow/{notification_manager.py,webhook_manager.py},
// with the queueing/worker shape generalized from
// _examples/evalgo-org-eve/worker/pool.go.
package notify

import (
	"sync"
	"time"

	"eve.evalgo.org/workflow/config"
	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/repository"
	"eve.evalgo.org/workflow/worker"

	"github.com/google/uuid"
)

const defaultHistorySize = 500

// sizer is implemented by both MemoryQueue and RedisQueue to report
// pending-delivery counts for QueueSize.
type sizer interface {
	Size() int
}

// Dispatcher gates, queues and dispatches workflow-event notifications.
type Dispatcher struct {
	templates *TemplateRegistry
	email     *EmailChannel
	webhook   *WebhookChannel

	queue      worker.Queue
	queueSizer sizer
	pool       *worker.Pool

	deliveryTimeout time.Duration

	mu          sync.Mutex
	history     []Result
	historySize int
}

// NewDispatcher wires a Dispatcher from SMTP config, backed by the
// default in-memory queue, and starts its background workers. Callers own
// its lifetime and should call Stop on shutdown.
func NewDispatcher(smtpCfg config.SMTPConfig) *Dispatcher {
	return newDispatcher(smtpCfg, NewMemoryQueue(256))
}

// NewDurableDispatcher wires a Dispatcher backed by a Redis-backed
// delivery queue instead of the default in-memory one, for deployments
// that need deliveries to survive a process restart.
func NewDurableDispatcher(smtpCfg config.SMTPConfig, queue *RedisQueue) *Dispatcher {
	return newDispatcher(smtpCfg, queue)
}

type deliveryQueue interface {
	worker.Queue
	sizer
}

func newDispatcher(smtpCfg config.SMTPConfig, queue deliveryQueue) *Dispatcher {
	templates := NewTemplateRegistry()
	d := &Dispatcher{
		templates:       templates,
		email:           NewEmailChannel(smtpCfg, templates),
		webhook:         NewWebhookChannel(10 * time.Second),
		queue:           queue,
		queueSizer:      queue,
		deliveryTimeout: 15 * time.Second,
		historySize:     defaultHistorySize,
	}
	d.pool = worker.NewPool(d.queue, &deliveryProcessor{dispatcher: d}, worker.Config{
		Queues: map[string]int{"email": 2, "webhook": 2},
	})
	d.pool.Start()
	return d
}

// Templates exposes the registry so callers can register kanban-specific templates.
func (d *Dispatcher) Templates() *TemplateRegistry { return d.templates }

// Stop shuts down the background workers.
func (d *Dispatcher) Stop() { d.pool.Stop() }

// QueueSize returns the number of deliveries currently queued across both channels.
func (d *Dispatcher) QueueSize() int { return d.queueSizer.Size() }

// History returns up to limit most-recent delivery results, optionally
// filtered by status ("sent" | "retrying" | "failed").
func (d *Dispatcher) History(limit int, status string) []Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Result, 0, len(d.history))
	for i := len(d.history) - 1; i >= 0; i-- {
		r := d.history[i]
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (d *Dispatcher) record(delivery *Delivery, status, errMsg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, Result{
		DeliveryID: delivery.ID,
		Kind:       delivery.Kind,
		EventType:  delivery.EventType,
		Status:     status,
		Error:      errMsg,
		At:         time.Now().UTC(),
	})
	if len(d.history) > d.historySize {
		d.history = d.history[len(d.history)-d.historySize:]
	}
}

// Notify is the single entry point: it checks the kanban's notifications
// gate and per-event-type gate, then queues an email and/or webhook
// delivery for every enabled channel. Returns false when notifications (or
// this event type) are disabled for the kanban — not an error, matching
// NotificationManager.notify/WebhookManager.notify's boolean return.
func (d *Dispatcher) Notify(eventType string, process repository.Process, kb kanban.Kanban, extra map[string]interface{}) bool {
	cfg := kb.Notifications
	if cfg == nil || !cfg.Enabled {
		return false
	}
	if enabled, ok := cfg.Events[eventType]; !ok || !enabled {
		return false
	}

	extraStr := make(map[string]string, len(extra))
	for k, v := range extra {
		if s, ok := v.(string); ok {
			extraStr[k] = s
		}
	}

	for _, channel := range cfg.Channels {
		switch channel {
		case "email":
			d.queueEmail(eventType, process, kb, extraStr)
		case "webhook":
			d.queueWebhook(eventType, process, kb, extra)
		}
	}
	return true
}

func (d *Dispatcher) queueEmail(eventType string, process repository.Process, kb kanban.Kanban, extra map[string]string) {
	cfg := kb.Notifications.EmailConfig
	recipients := stringSlice(cfg["recipients"])
	if len(recipients) == 0 {
		return
	}
	templateName := stringValue(cfg["template"], "default")

	delivery := &Delivery{
		ID:        uuid.NewString(),
		Kind:      "email",
		EventType: eventType,
		QueuedAt:  time.Now().UTC(),
		Email: &EmailJob{
			Recipients:   recipients,
			TemplateName: templateName,
			Context:      buildTemplateContext(eventType, process, kb.ID, kb.Name, extra),
		},
	}
	_ = d.queue.Enqueue(delivery)
}

func (d *Dispatcher) queueWebhook(eventType string, process repository.Process, kb kanban.Kanban, extra map[string]interface{}) {
	cfg := kb.Notifications.WebhookConfig
	url := stringValue(cfg["url"], "")
	if url == "" {
		return
	}
	headers := substituteEnvVars(stringMap(cfg["headers"]))
	payload := buildWebhookPayload(eventType, time.Now().UTC().Format(rfc3339), process, kb.ID, kb.Name, extra)

	delivery := &Delivery{
		ID:        uuid.NewString(),
		Kind:      "webhook",
		EventType: eventType,
		QueuedAt:  time.Now().UTC(),
		Webhook: &WebhookJob{
			URL:     url,
			Headers: headers,
			Payload: payload,
		},
	}
	_ = d.queue.Enqueue(delivery)
}
