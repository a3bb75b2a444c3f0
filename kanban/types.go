// Package kanban implements the workflow-definition registry: loading,
// validating, indexing and classifying transitions for kanban definitions (C2).
package kanban

// StateType classifies a state's role in the kanban's lifecycle.
type StateType string

const (
	StateInitial      StateType = "initial"
	StateIntermediate StateType = "intermediate"
	StateFinal        StateType = "final"
)

// Prerequisite is the raw, JSON-shaped descriptor of a single precondition.
// Its fields cover all four check kinds (C4); unused fields are left zero.
type Prerequisite struct {
	Type string `json:"type"`

	// Message overrides the default human-readable explanation for any kind.
	Message string `json:"message,omitempty"`

	// field_check
	Field    string      `json:"field,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`

	// external_api
	URL        string                 `json:"url,omitempty"`
	Method     string                 `json:"method,omitempty"`
	TimeoutSec float64                `json:"timeout_seconds,omitempty"`
	Headers    map[string]string      `json:"headers,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`

	// time_elapsed
	Hours   float64 `json:"hours,omitempty"`
	Minutes float64 `json:"minutes,omitempty"`

	// custom_script
	Script string `json:"script,omitempty"`
}

// State is one node of a kanban's declarative state machine.
type State struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Type             StateType      `json:"type,omitempty"`
	Color            string         `json:"color,omitempty"`
	AutoTransitionTo string         `json:"auto_transition_to,omitempty"`
	TimeoutHours     *float64       `json:"timeout_hours,omitempty"`
	Prerequisites    []Prerequisite `json:"prerequisites,omitempty"`
}

// Transition is a UI-advertised, non-binding path between two states.
type Transition struct {
	From          string         `json:"from"`
	To            string         `json:"to"`
	Prerequisites []Prerequisite `json:"prerequisites,omitempty"`
}

// BlockedTransition is the only kind of transition the engine refuses to execute.
type BlockedTransition struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// WarnedTransition is an abnormal but permitted path, optionally demanding a
// justification when taken.
type WarnedTransition struct {
	From                string `json:"from"`
	To                  string `json:"to"`
	Message             string `json:"message"`
	RequireJustification bool  `json:"require_justification,omitempty"`
}

// AgentsConfig carries the optional ordered hint consumed by the pattern
// agent and the analysis layer.
type AgentsConfig struct {
	FlowSequence []string `json:"flow_sequence,omitempty"`
}

// NotificationsConfig gates which event types emit through C11, and to which
// channels, per kanban.
type NotificationsConfig struct {
	Enabled      bool                   `json:"enabled"`
	Events       map[string]bool        `json:"events,omitempty"`
	Channels     []string               `json:"channels,omitempty"`
	EmailConfig  map[string]interface{} `json:"email_config,omitempty"`
	WebhookConfig map[string]interface{} `json:"webhook_config,omitempty"`
}

// Kanban is an in-memory, immutable-after-load workflow definition.
type Kanban struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`

	States                 []State             `json:"states"`
	RecommendedTransitions []Transition        `json:"recommended_transitions,omitempty"`
	BlockedTransitions     []BlockedTransition `json:"blocked_transitions,omitempty"`
	WarnedTransitions      []WarnedTransition  `json:"warned_transitions,omitempty"`

	LinkedForms  []string          `json:"linked_forms,omitempty"`
	FieldMapping map[string]string `json:"field_mapping,omitempty"`

	SLAHours       *float64           `json:"sla_hours,omitempty"`
	ColumnSLAHours map[string]float64 `json:"column_sla_hours,omitempty"`

	Notifications *NotificationsConfig `json:"notifications,omitempty"`
	Agents        *AgentsConfig        `json:"agents,omitempty"`
}

// clone returns a deep-enough copy so that callers mutating the returned
// value cannot corrupt the registry's in-memory copy. Slices and maps are
// copied one level deep, matching what the JSON shape actually nests.
func (k Kanban) clone() Kanban {
	out := k
	out.States = append([]State(nil), k.States...)
	for i := range out.States {
		out.States[i].Prerequisites = append([]Prerequisite(nil), k.States[i].Prerequisites...)
	}
	out.RecommendedTransitions = append([]Transition(nil), k.RecommendedTransitions...)
	out.BlockedTransitions = append([]BlockedTransition(nil), k.BlockedTransitions...)
	out.WarnedTransitions = append([]WarnedTransition(nil), k.WarnedTransitions...)
	out.LinkedForms = append([]string(nil), k.LinkedForms...)

	if k.FieldMapping != nil {
		out.FieldMapping = make(map[string]string, len(k.FieldMapping))
		for key, val := range k.FieldMapping {
			out.FieldMapping[key] = val
		}
	}
	if k.ColumnSLAHours != nil {
		out.ColumnSLAHours = make(map[string]float64, len(k.ColumnSLAHours))
		for key, val := range k.ColumnSLAHours {
			out.ColumnSLAHours[key] = val
		}
	}
	return out
}

// StateByID returns the state with the given id, if declared.
func (k Kanban) StateByID(id string) (State, bool) {
	for _, s := range k.States {
		if s.ID == id {
			return s, true
		}
	}
	return State{}, false
}

// InitialState resolves the kanban's starting state: the explicit
// type=initial state, else the first element of FlowSequence, else states[0].
func (k Kanban) InitialState() (State, bool) {
	for _, s := range k.States {
		if s.Type == StateInitial {
			return s, true
		}
	}
	if k.Agents != nil && len(k.Agents.FlowSequence) > 0 {
		if s, ok := k.StateByID(k.Agents.FlowSequence[0]); ok {
			return s, true
		}
	}
	if len(k.States) > 0 {
		return k.States[0], true
	}
	return State{}, false
}
