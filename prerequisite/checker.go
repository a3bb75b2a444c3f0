// Package prerequisite implements the four pluggable precondition kinds
// (C4) consumed by the transition engine. Checks never block a transition
// themselves and never panic out of the checker: every failure mode —
// timeout, malformed response, script exception — resolves to a
// satisfied=false Result with a diagnostic message, matching the
// warn-not-block contract the transition engine builds on. Grounded on
// _examples/original_source/src/workflow/prerequisite_checker.py.
package prerequisite

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lua "github.com/yuin/gopher-lua"

	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/repository"
)

// Result is the outcome of checking a single prerequisite.
type Result struct {
	Type      string                 `json:"type"`
	Satisfied bool                   `json:"satisfied"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Context bundles what a prerequisite check needs to know about the process
// it is being evaluated against. LastTransitionAt is the timestamp
// time_elapsed measures from; callers compute it once from the audit log
// (or leave it zero to fall back to Process.CreatedAt) rather than the
// checker re-scanning history itself.
type Context struct {
	Process          repository.Process
	Kanban           kanban.Kanban
	LastTransitionAt time.Time
}

// Checker evaluates prerequisite descriptors against a Context.
type Checker struct {
	httpClient *resty.Client
	scriptsDir string
}

// NewChecker builds a Checker reading custom_script files from scriptsDir.
func NewChecker(scriptsDir string) *Checker {
	return &Checker{
		httpClient: resty.New(),
		scriptsDir: scriptsDir,
	}
}

// CheckAll evaluates every prerequisite in order and returns one Result per entry.
func (c *Checker) CheckAll(prereqs []kanban.Prerequisite, ctx Context) []Result {
	results := make([]Result, 0, len(prereqs))
	for _, p := range prereqs {
		results = append(results, c.check(p, ctx))
	}
	return results
}

func (c *Checker) check(p kanban.Prerequisite, ctx Context) Result {
	switch p.Type {
	case "field_check":
		return c.checkField(p, ctx.Process)
	case "external_api":
		return c.checkExternalAPI(p, ctx.Process)
	case "time_elapsed":
		return c.checkTimeElapsed(p, ctx)
	case "custom_script":
		return c.checkCustomScript(p, ctx)
	default:
		return Result{Type: p.Type, Satisfied: false, Message: fmt.Sprintf("unknown prerequisite type: %q", p.Type)}
	}
}

// AllSatisfied reports whether every result is satisfied.
func AllSatisfied(results []Result) bool {
	for _, r := range results {
		if !r.Satisfied {
			return false
		}
	}
	return true
}

// Unsatisfied returns only the unsatisfied results, preserving order.
func Unsatisfied(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Satisfied {
			out = append(out, r)
		}
	}
	return out
}

// ===== field_check =====

func (c *Checker) checkField(p kanban.Prerequisite, process repository.Process) Result {
	message := p.Message
	if message == "" {
		message = fmt.Sprintf("field %q does not meet condition %q", p.Field, p.Operator)
	}
	actual := process.FieldValues[p.Field]
	satisfied := evaluateFieldCondition(p.Operator, actual, p.Value)

	return Result{
		Type:      "field_check",
		Satisfied: satisfied,
		Message:   message,
		Details: map[string]interface{}{
			"field":          p.Field,
			"condition":      p.Operator,
			"actual_value":   actual,
			"expected_value": p.Value,
		},
	}
}

func evaluateFieldCondition(condition string, actual, expected interface{}) bool {
	switch condition {
	case "not_empty":
		return actual != nil && actual != ""
	case "equals":
		return fmt.Sprint(actual) == fmt.Sprint(expected) && actual != nil
	case "not_equals":
		return actual == nil || fmt.Sprint(actual) != fmt.Sprint(expected)
	case "contains":
		s, ok := actual.(string)
		if !ok {
			return false
		}
		return strings.Contains(s, fmt.Sprint(expected))
	case "greater_than", "less_than", "greater_or_equal", "less_or_equal":
		actualNum, aok := toFloat(actual)
		expectedNum, eok := toFloat(expected)
		if !aok || !eok {
			return false
		}
		switch condition {
		case "greater_than":
			return actualNum > expectedNum
		case "less_than":
			return actualNum < expectedNum
		case "greater_or_equal":
			return actualNum >= expectedNum
		case "less_or_equal":
			return actualNum <= expectedNum
		}
	case "regex":
		s, ok := actual.(string)
		if !ok {
			return false
		}
		pattern, ok := expected.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return false
		}
		return re.MatchString(s)
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	if v == nil {
		return 0, true // absent actual coerces to 0, matching the Python original
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ===== external_api =====

func (c *Checker) checkExternalAPI(p kanban.Prerequisite, process repository.Process) Result {
	message := p.Message
	if message == "" {
		message = "external API validation failed"
	}
	timeout := p.TimeoutSec
	if timeout <= 0 {
		timeout = 5
	}
	method := strings.ToUpper(p.Method)
	if method == "" {
		method = "GET"
	}
	url := substitutePlaceholders(p.URL, process)
	payload := substitutePlaceholdersMap(p.Payload, process)

	req := c.httpClient.R().
		SetContext(context.Background()).
		SetHeaders(p.Headers)

	var resp *resty.Response
	var err error
	switch method {
	case "GET":
		resp, err = req.SetTimeout(timeoutDuration(timeout)).Get(url)
	case "POST":
		resp, err = req.SetTimeout(timeoutDuration(timeout)).SetBody(payload).Post(url)
	default:
		return Result{Type: "external_api", Satisfied: false, Message: fmt.Sprintf("unsupported HTTP method: %s", method)}
	}

	if err != nil {
		if isTimeoutErr(err) {
			return Result{Type: "external_api", Satisfied: false, Message: fmt.Sprintf("API call timed out after %gs", timeout)}
		}
		return Result{Type: "external_api", Satisfied: false, Message: fmt.Sprintf("API call failed: %v", err)}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return Result{
			Type:      "external_api",
			Satisfied: false,
			Message:   fmt.Sprintf("API returned status %d", resp.StatusCode()),
			Details:   map[string]interface{}{"url": url, "status_code": resp.StatusCode()},
		}
	}

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return Result{Type: "external_api", Satisfied: false, Message: "malformed JSON response"}
	}
	satisfied, _ := body["satisfied"].(bool)
	apiMessage, ok := body["message"].(string)
	if !ok || apiMessage == "" {
		apiMessage = message
	}
	return Result{
		Type:      "external_api",
		Satisfied: satisfied,
		Message:   apiMessage,
		Details:   map[string]interface{}{"url": url, "status_code": resp.StatusCode(), "response": body},
	}
}

func timeoutDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline exceeded")
}

func substitutePlaceholders(text string, process repository.Process) string {
	text = strings.ReplaceAll(text, "{process_id}", process.ProcessID)
	text = strings.ReplaceAll(text, "{kanban_id}", process.KanbanID)
	text = strings.ReplaceAll(text, "{current_state}", process.CurrentState)
	for k, v := range process.FieldValues {
		text = strings.ReplaceAll(text, "{"+k+"}", fmt.Sprint(v))
	}
	return text
}

func substitutePlaceholdersMap(data map[string]interface{}, process repository.Process) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = substitutePlaceholders(s, process)
			continue
		}
		out[k] = v
	}
	return out
}

// ===== time_elapsed =====

func (c *Checker) checkTimeElapsed(p kanban.Prerequisite, ctx Context) Result {
	message := p.Message
	if message == "" {
		message = fmt.Sprintf("minimum %gh %gm not elapsed", p.Hours, p.Minutes)
	}
	minSeconds := p.Hours*3600 + p.Minutes*60

	since := ctx.LastTransitionAt
	if since.IsZero() {
		since = ctx.Process.CreatedAt
	}
	if since.IsZero() {
		return Result{Type: "time_elapsed", Satisfied: false, Message: "no reference timestamp available"}
	}

	elapsed := time.Since(since).Seconds()
	satisfied := elapsed >= minSeconds

	return Result{
		Type:      "time_elapsed",
		Satisfied: satisfied,
		Message:   message,
		Details: map[string]interface{}{
			"required_seconds": minSeconds,
			"elapsed_seconds":  elapsed,
			"since":            since.UTC().Format(time.RFC3339),
		},
	}
}

// ===== custom_script =====

// checkCustomScript loads scriptsDir/<script> and runs it inside a gopher-lua
// state opened with only the base, table, string and math libraries — no
// os/io/package library, so scripts cannot touch the filesystem, network or
// require() anything. A context deadline bounds wall-clock time; gopher-lua
// checks it between VM instructions.
func (c *Checker) checkCustomScript(p kanban.Prerequisite, ctx Context) Result {
	message := p.Message
	if message == "" {
		message = "custom script validation failed"
	}
	if p.Script == "" {
		return Result{Type: "custom_script", Satisfied: false, Message: "no script specified"}
	}

	scriptPath := filepath.Join(c.scriptsDir, p.Script)
	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return Result{Type: "custom_script", Satisfied: false, Message: fmt.Sprintf("script not found: %s", p.Script)}
	}

	satisfied, scriptMessage, err := runSandboxedScript(string(source), ctx)
	if err != nil {
		return Result{Type: "custom_script", Satisfied: false, Message: fmt.Sprintf("script execution error: %v", err)}
	}
	if scriptMessage == "" {
		scriptMessage = message
	}
	return Result{
		Type:      "custom_script",
		Satisfied: satisfied,
		Message:   scriptMessage,
		Details:   map[string]interface{}{"script": p.Script},
	}
}

func runSandboxedScript(source string, ctx Context) (bool, string, error) {
	deadline, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(deadline)

	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(pair.fn), NRet: 0, Protect: true}, lua.LString(pair.name)); err != nil {
			return false, "", fmt.Errorf("opening %s library: %w", pair.name, err)
		}
	}
	// base library carries dofile/loadfile/require hooks; strip them even
	// though package/io/os were never opened, as defense in depth.
	for _, dangerous := range []string{"dofile", "loadfile", "load", "require", "collectgarbage"} {
		L.SetGlobal(dangerous, lua.LNil)
	}

	L.SetGlobal("process", processToLua(L, ctx.Process))
	L.SetGlobal("kanban", kanbanToLua(L, ctx.Kanban))

	if err := L.DoString(source); err != nil {
		return false, "", err
	}

	validateFn := L.GetGlobal("validate")
	if validateFn.Type() != lua.LTFunction {
		return false, "", fmt.Errorf("script does not define a validate(process, kanban) function")
	}

	if err := L.CallByParam(lua.P{
		Fn:      validateFn,
		NRet:    1,
		Protect: true,
	}, L.GetGlobal("process"), L.GetGlobal("kanban")); err != nil {
		return false, "", err
	}

	ret := L.Get(-1)
	L.Pop(1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return false, "", fmt.Errorf("validate() must return a table with satisfied/message")
	}
	satisfied := lua.LVAsBool(tbl.RawGetString("satisfied"))
	message := lua.LVAsString(tbl.RawGetString("message"))
	return satisfied, message, nil
}

func processToLua(L *lua.LState, p repository.Process) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("process_id", lua.LString(p.ProcessID))
	t.RawSetString("kanban_id", lua.LString(p.KanbanID))
	t.RawSetString("current_state", lua.LString(p.CurrentState))
	t.RawSetString("source_form", lua.LString(p.SourceForm))
	t.RawSetString("assigned_to", lua.LString(p.AssignedTo))
	fv := L.NewTable()
	for k, v := range p.FieldValues {
		fv.RawSetString(k, goValueToLua(L, v))
	}
	t.RawSetString("field_values", fv)
	return t
}

func kanbanToLua(L *lua.LState, k kanban.Kanban) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(k.ID))
	t.RawSetString("name", lua.LString(k.Name))
	return t
}

func goValueToLua(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return lua.LNil
		}
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
