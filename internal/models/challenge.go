package models

import "strings"

// Method records which path produced a stage result
type Method string

const (
	MethodRule     Method = "rule"
	MethodAI       Method = "ai"
	MethodFallback Method = "fallback"
)

// Strategy tunes the size of the initial action to how serious the user is
type Strategy string

const (
	StrategyLow    Strategy = "low_commitment"
	StrategyMedium Strategy = "medium_commitment"
	StrategyHigh   Strategy = "high_commitment"
)

const DefaultSeriousness = 3

// StrategyFor maps a 1-5 seriousness score onto a strategy
func StrategyFor(seriousness int) Strategy {
	switch {
	case seriousness <= 2:
		return StrategyLow
	case seriousness <= 4:
		return StrategyMedium
	default:
		return StrategyHigh
	}
}

// Declaration is the user's raw challenge submission
type Declaration struct {
	Text        string
	Deadline    string
	Seriousness int
	Reason      string
}

// Normalized returns a copy with trimmed text and seriousness defaulted and
// clamped into 1..5.
func (d Declaration) Normalized() Declaration {
	d.Text = strings.TrimSpace(d.Text)
	d.Deadline = strings.TrimSpace(d.Deadline)
	d.Reason = strings.TrimSpace(d.Reason)
	switch {
	case d.Seriousness == 0:
		d.Seriousness = DefaultSeriousness
	case d.Seriousness < 1:
		d.Seriousness = 1
	case d.Seriousness > 5:
		d.Seriousness = 5
	}
	return d
}

// ValidationResult is the outcome of the concreteness check
type ValidationResult struct {
	IsValid         bool   `json:"isValid"`
	Message         string `json:"message"`
	Reason          string `json:"reason,omitempty"`
	ImprovedExample string `json:"improvedExample,omitempty"`
	Method          Method `json:"method"`
}

// RefinedChallenge is the concretized restatement of a vague declaration
type RefinedChallenge struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Concretization is a SMART restatement of a declaration
type Concretization struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	Metric             string `json:"metric"`
	DeadlineSuggestion string `json:"deadlineSuggestion"`
}

// StageMethods records the path each design stage took
type StageMethods struct {
	Validation Method `json:"validation"`
	Category   Method `json:"category"`
	Difficulty Method `json:"difficulty"`
	Action     Method `json:"action"`
}

// ChallengeDesign is the structured plan produced by the full pipeline
type ChallengeDesign struct {
	ID               string           `json:"id"`
	IsConcrete       bool             `json:"isConcrete"`
	RefinedChallenge RefinedChallenge `json:"refinedChallenge"`
	Category         Category         `json:"category"`
	DifficultyLevel  DifficultyLevel  `json:"difficultyLevel"`
	InitialAction    InitialAction    `json:"initialAction"`
	DesignReason     string           `json:"designReason"`
	Strategy         Strategy         `json:"strategy"`
	Methods          StageMethods     `json:"methods"`
	Success          bool             `json:"success"`
	Error            string           `json:"error,omitempty"`
}
