package models

// ActionType describes what kind of first step an initial action is
type ActionType string

const (
	ActionMiniExecution    ActionType = "mini_execution"    // do a tiny slice of the real thing
	ActionEnvironment      ActionType = "environment"       // set up tools, space or schedule
	ActionPublicCommitment ActionType = "public_commitment" // declare it to someone
)

const (
	MinActionMinutes = 5
	MaxActionMinutes = 15
)

// Valid reports whether t is one of the three action types
func (t ActionType) Valid() bool {
	switch t {
	case ActionMiniExecution, ActionEnvironment, ActionPublicCommitment:
		return true
	}
	return false
}

// Label returns a human readable label for the action type
func (t ActionType) Label() string {
	switch t {
	case ActionMiniExecution:
		return "hands-on"
	case ActionEnvironment:
		return "environment setup"
	case ActionPublicCommitment:
		return "public commitment"
	}
	return "other"
}

// InitialAction is the minimal, time-boxed first step that starts a challenge today
type InitialAction struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	EstimatedMinutes int        `json:"estimatedMinutes"`
	ActionType       ActionType `json:"actionType"`
	Rationale        string     `json:"rationale"`
}

// ClampMinutes forces m into [MinActionMinutes, MaxActionMinutes]
func ClampMinutes(m int) int {
	if m < MinActionMinutes {
		return MinActionMinutes
	}
	if m > MaxActionMinutes {
		return MaxActionMinutes
	}
	return m
}

// Normalize applies the minute clamp and the action type default in place
func (a *InitialAction) Normalize() {
	a.EstimatedMinutes = ClampMinutes(a.EstimatedMinutes)
	if !a.ActionType.Valid() {
		a.ActionType = ActionMiniExecution
	}
}
