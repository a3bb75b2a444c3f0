package notify

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookJob is the payload of a queued webhook delivery.
type WebhookJob struct {
	URL     string
	Headers map[string]string
	Payload map[string]interface{}
}

// WebhookChannel posts a JSON payload to a configured URL. Grounded on
// WebhookManager._send_webhook; uses resty like prerequisite.Checker's
// external_api check.
type WebhookChannel struct {
	client  *resty.Client
	timeout time.Duration
}

// NewWebhookChannel wires a WebhookChannel with the given request timeout.
func NewWebhookChannel(timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{client: resty.New(), timeout: timeout}
}

func (c *WebhookChannel) send(job *WebhookJob) error {
	resp, err := c.client.R().
		SetTimeout(c.timeout).
		SetHeaders(job.Headers).
		SetBody(job.Payload).
		Post(job.URL)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`)

// substituteEnvVars expands ${VAR_NAME} occurrences in header values from
// the process environment, leaving the header untouched when the variable
// is unset. Grounded on WebhookManager._substitute_env_vars.
func substituteEnvVars(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.Contains(v, "${") {
			out[k] = envVarPattern.ReplaceAllStringFunc(v, func(match string) string {
				name := match[2 : len(match)-1]
				if val, ok := os.LookupEnv(name); ok {
					return val
				}
				return match
			})
			continue
		}
		out[k] = v
	}
	return out
}
