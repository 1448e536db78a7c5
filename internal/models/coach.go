package models

import "strings"

// CoachType is the moment a re-suggestion is asked for
type CoachType string

const (
	CoachFirst CoachType = "first" // starting the challenge
	CoachRetry CoachType = "retry" // the last attempt did not happen
	CoachStuck CoachType = "stuck" // progress has stalled
)

// Valid reports whether t is first, retry or stuck
func (t CoachType) Valid() bool {
	switch t {
	case CoachFirst, CoachRetry, CoachStuck:
		return true
	}
	return false
}

// ParseCoachType reads a coach type; an empty value means first
func ParseCoachType(s string) (CoachType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CoachFirst, true
	}
	t := CoachType(s)
	return t, t.Valid()
}

// CoachRequest is the body of the context-aware re-suggestion endpoint
type CoachRequest struct {
	Goal      string `json:"goal"`
	Situation string `json:"situation,omitempty"`
	Fear      string `json:"fear,omitempty"`
	Type      string `json:"type,omitempty"`
}

// CoachResponse is returned by the re-suggestion endpoint
type CoachResponse struct {
	Message  string    `json:"message"`
	Type     CoachType `json:"type"`
	Success  bool      `json:"success"`
	Fallback bool      `json:"fallback,omitempty"`
}
