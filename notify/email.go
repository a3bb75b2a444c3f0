package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"eve.evalgo.org/workflow/config"
)

// EmailJob is the payload of a queued email delivery.
type EmailJob struct {
	Recipients   []string
	TemplateName string
	Context      map[string]string
}

// EmailChannel renders a template and sends it over SMTP. Grounded on
// NotificationManager._send_email_notification/_send_smtp_email; net/smtp
// is used directly (justified in DESIGN.md) since the spec specifies a raw
// SMTP_HOST/SMTP_PORT dialog rather than a provider API.
type EmailChannel struct {
	smtp      config.SMTPConfig
	templates *TemplateRegistry
	sendFunc  func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel wires an EmailChannel against smtp config and a template registry.
func NewEmailChannel(smtpCfg config.SMTPConfig, templates *TemplateRegistry) *EmailChannel {
	return &EmailChannel{smtp: smtpCfg, templates: templates, sendFunc: smtp.SendMail}
}

// send renders job's template and delivers it via SMTP. Matches
// _send_smtp_email's "no credentials configured -> skip" short circuit.
func (c *EmailChannel) send(job *EmailJob) error {
	if c.smtp.Username == "" || c.smtp.Password == "" {
		return fmt.Errorf("smtp credentials not configured")
	}
	if len(job.Recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	subject, body := c.templates.Render(job.TemplateName, job.Context)
	msg := buildMIMEMessage(c.smtp.FromEmail, job.Recipients, subject, body)

	addr := fmt.Sprintf("%s:%d", c.smtp.Host, c.smtp.Port)
	auth := smtp.PlainAuth("", c.smtp.Username, c.smtp.Password, c.smtp.Host)
	return c.sendFunc(addr, auth, c.smtp.FromEmail, job.Recipients, msg)
}

// buildMIMEMessage assembles a minimal HTML email, headers plus body,
// ready for smtp.SendMail's DATA section.
func buildMIMEMessage(from string, to []string, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
