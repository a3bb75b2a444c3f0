package notify

import "testing"

func TestSubstituteReplacesDollarAndBracedVariables(t *testing.T) {
	vars := map[string]string{"event_type": "state_changed", "kanban_name": "Pedidos"}

	got := substitute("[Workflow] $event_type - ${kanban_name}", vars)
	want := "[Workflow] state_changed - Pedidos"
	if got != want {
		t.Fatalf("substitute() = %q, want %q", got, want)
	}
}

func TestSubstituteLeavesUnknownVariablesVerbatim(t *testing.T) {
	got := substitute("hello $missing", map[string]string{})
	if got != "hello $missing" {
		t.Fatalf("substitute() = %q, want unchanged", got)
	}
}

func TestTemplateRegistryRegisterAndRender(t *testing.T) {
	r := NewTemplateRegistry()
	r.Register("custom", "Subj $process_id", "Body $process_id")

	subject, body := r.Render("custom", map[string]string{"process_id": "pedidos_abc"})
	if subject != "Subj pedidos_abc" {
		t.Fatalf("subject = %q", subject)
	}
	if body != "Body pedidos_abc" {
		t.Fatalf("body = %q", body)
	}
}

func TestTemplateRegistryFallsBackToDefault(t *testing.T) {
	r := NewTemplateRegistry()
	subject, _ := r.Render("does_not_exist", map[string]string{"event_type": "x", "kanban_name": "y"})
	if subject != "[Workflow] x - y" {
		t.Fatalf("subject = %q, want default template rendered", subject)
	}
}
