package notify

import (
	"fmt"
	"strings"

	"eve.evalgo.org/workflow/repository"
)

const rfc3339 = "2006-01-02T15:04:05Z07:00"

// buildTemplateContext prepares the $variable substitution context for an
// email template: the fixed event/process/kanban fields plus one
// field_<name> entry per process field value, with spaces and dashes
// normalized to underscores so they are valid $identifier names. Grounded
// on NotificationManager._prepare_template_context.
func buildTemplateContext(eventType string, process repository.Process, kanbanID, kanbanName string, extra map[string]string) map[string]string {
	ctx := map[string]string{
		"event_type":    eventType,
		"process_id":    process.ProcessID,
		"kanban_id":     kanbanID,
		"kanban_name":   kanbanName,
		"current_state": process.CurrentState,
		"created_at":    process.CreatedAt.Format(rfc3339),
		"updated_at":    process.UpdatedAt.Format(rfc3339),
	}
	for k, v := range extra {
		ctx[k] = v
	}
	for key, value := range process.FieldValues {
		safeKey := strings.ReplaceAll(strings.ReplaceAll(key, " ", "_"), "-", "_")
		ctx["field_"+safeKey] = fmt.Sprintf("%v", value)
	}
	return ctx
}

// buildWebhookPayload prepares the fixed JSON payload shape of spec §4.10:
// event_type, timestamp, kanban, and a curated projection of the process.
// Grounded on WebhookManager._prepare_payload.
func buildWebhookPayload(eventType, nowRFC3339 string, process repository.Process, kanbanID, kanbanName string, extra map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"event_type": eventType,
		"timestamp":  nowRFC3339,
		"kanban": map[string]interface{}{
			"id":   kanbanID,
			"name": kanbanName,
		},
		"process": map[string]interface{}{
			"process_id":    process.ProcessID,
			"current_state": process.CurrentState,
			"created_at":    process.CreatedAt.Format(rfc3339),
			"updated_at":    process.UpdatedAt.Format(rfc3339),
			"field_values":  process.FieldValues,
			"tags":          process.Tags,
			"assigned_to":   process.AssignedTo,
			"sla":           process.SLA,
		},
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

// stringSlice coerces a loosely-typed config value (as decoded from the
// kanban JSON's email_config.recipients / webhook_config.*) into a string
// slice.
func stringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// stringMap coerces a loosely-typed config value into a string map, as
// webhook_config.headers is decoded from JSON as map[string]interface{}.
func stringMap(v interface{}) map[string]string {
	switch t := v.(type) {
	case map[string]string:
		return t
	case map[string]interface{}:
		out := make(map[string]string, len(t))
		for k, e := range t {
			if s, ok := e.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}

func stringValue(v interface{}, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
