package notify

import (
	"testing"
	"time"

	"eve.evalgo.org/workflow/repository"
)

func TestBuildTemplateContextIncludesFieldValuesWithSafeKeys(t *testing.T) {
	process := repository.Process{
		ProcessID:    "pedidos_abc123",
		CurrentState: "em_analise",
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC),
		FieldValues:  map[string]interface{}{"client name": "Ana", "order-total": 100},
	}

	ctx := buildTemplateContext("state_changed", process, "pedidos", "Pedidos", map[string]string{"previous_state": "novo"})

	if ctx["process_id"] != "pedidos_abc123" {
		t.Fatalf("process_id = %q", ctx["process_id"])
	}
	if ctx["kanban_name"] != "Pedidos" {
		t.Fatalf("kanban_name = %q", ctx["kanban_name"])
	}
	if ctx["field_client_name"] != "Ana" {
		t.Fatalf("field_client_name = %q", ctx["field_client_name"])
	}
	if ctx["field_order_total"] != "100" {
		t.Fatalf("field_order_total = %q", ctx["field_order_total"])
	}
	if ctx["previous_state"] != "novo" {
		t.Fatalf("previous_state = %q", ctx["previous_state"])
	}
}

func TestBuildWebhookPayloadCarriesCuratedProcessProjection(t *testing.T) {
	process := repository.Process{
		ProcessID:    "pedidos_abc123",
		CurrentState: "aprovado",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
		Tags:         []string{"urgent"},
		AssignedTo:   "alice",
	}

	payload := buildWebhookPayload("state_changed", "2026-01-02T03:04:05Z", process, "pedidos", "Pedidos", nil)

	if payload["event_type"] != "state_changed" {
		t.Fatalf("event_type = %v", payload["event_type"])
	}
	kanban := payload["kanban"].(map[string]interface{})
	if kanban["id"] != "pedidos" {
		t.Fatalf("kanban.id = %v", kanban["id"])
	}
	proc := payload["process"].(map[string]interface{})
	if proc["process_id"] != "pedidos_abc123" {
		t.Fatalf("process.process_id = %v", proc["process_id"])
	}
	if proc["assigned_to"] != "alice" {
		t.Fatalf("process.assigned_to = %v", proc["assigned_to"])
	}
}

func TestStringSliceCoercesJSONDecodedInterfaceSlice(t *testing.T) {
	got := stringSlice([]interface{}{"a@example.com", "b@example.com"})
	if len(got) != 2 || got[0] != "a@example.com" {
		t.Fatalf("stringSlice() = %v", got)
	}
}

func TestStringMapCoercesJSONDecodedInterfaceMap(t *testing.T) {
	got := stringMap(map[string]interface{}{"Authorization": "Bearer ${TOKEN}"})
	if got["Authorization"] != "Bearer ${TOKEN}" {
		t.Fatalf("stringMap() = %v", got)
	}
}
