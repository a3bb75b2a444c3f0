package notify

import "regexp"

// Template is a registered pair of subject/body strings supporting
// $variable and ${variable} substitution, mirroring the safe_substitute
// semantics of Python's string.Template: a variable with no matching
// context entry is left in the rendered text verbatim rather than
// raising. Grounded on notification_manager.py's register_template/
// safe_substitute usage.
type Template struct {
	Subject string
	Body    string
}

// TemplateRegistry holds named email templates.
type TemplateRegistry struct {
	templates map[string]Template
}

// NewTemplateRegistry builds a registry pre-loaded with the default
// notification templates (default, process_created, state_changed,
// sla_warning, sla_exceeded), matching
// NotificationManager._register_default_templates.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{templates: make(map[string]Template)}
	r.registerDefaults()
	return r
}

// Register adds or replaces a named template.
func (r *TemplateRegistry) Register(name, subject, body string) {
	r.templates[name] = Template{Subject: subject, Body: body}
}

// Render substitutes context into the named template's subject and body.
// Falls back to the "default" template when name is unregistered.
func (r *TemplateRegistry) Render(name string, context map[string]string) (subject, body string) {
	tmpl, ok := r.templates[name]
	if !ok {
		tmpl = r.templates["default"]
	}
	return substitute(tmpl.Subject, context), substitute(tmpl.Body, context)
}

var templateVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substitute replaces $name and ${name} occurrences with vars[name],
// leaving anything without a match in vars untouched.
func substitute(s string, vars map[string]string) string {
	return templateVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := templateVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[2]
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

func (r *TemplateRegistry) registerDefaults() {
	r.Register("default",
		"[Workflow] $event_type - $kanban_name",
		`<html><body>
<h2>Workflow notification</h2>
<p>Event: $event_type</p>
<p>Kanban: $kanban_name</p>
<p>Process: $process_id</p>
<p>Current state: $current_state</p>
<p>Updated at: $updated_at</p>
</body></html>`)

	r.Register("process_created",
		"[Workflow] New process created - $kanban_name",
		`<html><body>
<h2>New process created</h2>
<p>A new process was created in <strong>$kanban_name</strong>.</p>
<p>Process: $process_id</p>
<p>Initial state: $current_state</p>
<p>Created at: $created_at</p>
</body></html>`)

	r.Register("state_changed",
		"[Workflow] State changed - $kanban_name",
		`<html><body>
<h2>State changed</h2>
<p>Process <strong>$process_id</strong> advanced in <strong>$kanban_name</strong>.</p>
<p>$previous_state &rarr; $current_state</p>
<p>Updated at: $updated_at</p>
</body></html>`)

	r.Register("sla_warning",
		"[Workflow] SLA warning - $kanban_name",
		`<html><body>
<h2>SLA warning</h2>
<p>Process <strong>$process_id</strong> is approaching its SLA deadline.</p>
<p>Kanban: $kanban_name</p>
<p>Current state: $current_state</p>
<p>Time remaining: $sla_remaining</p>
</body></html>`)

	r.Register("sla_exceeded",
		"[Workflow] SLA exceeded - $kanban_name",
		`<html><body>
<h2>SLA exceeded</h2>
<p>Process <strong>$process_id</strong> has exceeded its SLA deadline.</p>
<p>Kanban: $kanban_name</p>
<p>Current state: $current_state</p>
<p>Exceeded by: $sla_exceeded_by</p>
</body></html>`)
}
