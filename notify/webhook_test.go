package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestSubstituteEnvVarsExpandsKnownVariable(t *testing.T) {
	t.Setenv("NOTIFY_TEST_TOKEN", "secret123")
	headers := map[string]string{"Authorization": "Bearer ${NOTIFY_TEST_TOKEN}"}

	got := substituteEnvVars(headers)
	if got["Authorization"] != "Bearer secret123" {
		t.Fatalf("Authorization = %q", got["Authorization"])
	}
}

func TestSubstituteEnvVarsLeavesUnsetVariableVerbatim(t *testing.T) {
	os.Unsetenv("NOTIFY_TEST_MISSING")
	headers := map[string]string{"X-Token": "${NOTIFY_TEST_MISSING}"}

	got := substituteEnvVars(headers)
	if got["X-Token"] != "${NOTIFY_TEST_MISSING}" {
		t.Fatalf("X-Token = %q", got["X-Token"])
	}
}

func TestWebhookChannelSendPostsPayloadAndHeaders(t *testing.T) {
	var receivedAuth string
	var receivedBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&receivedBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel := NewWebhookChannel(2 * time.Second)
	err := channel.send(&WebhookJob{
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer xyz"},
		Payload: map[string]interface{}{"event_type": "state_changed"},
	})
	if err != nil {
		t.Fatalf("send() error = %v", err)
	}
	if receivedAuth != "Bearer xyz" {
		t.Fatalf("Authorization header = %q", receivedAuth)
	}
	if receivedBody["event_type"] != "state_changed" {
		t.Fatalf("body event_type = %v", receivedBody["event_type"])
	}
}

func TestWebhookChannelSendReturnsErrorOnNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	channel := NewWebhookChannel(2 * time.Second)
	err := channel.send(&WebhookJob{URL: server.URL, Payload: map[string]interface{}{}})
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}
