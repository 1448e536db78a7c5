package models

// TextRequest is the body shared by the single-stage endpoints
type TextRequest struct {
	Text string `json:"text"`
}

// SuggestionRequest is the body of the simple suggestion endpoint
type SuggestionRequest struct {
	ChallengeText string `json:"challengeText"`
}

// InitialActionRequest is the body of the contextual suggestion endpoint
type InitialActionRequest struct {
	Text            string `json:"text"`
	Category        string `json:"category,omitempty"`
	DifficultyLevel int    `json:"difficultyLevel,omitempty"`
	Seriousness     int    `json:"seriousness,omitempty"`
}

// DesignRequest is the body of the full design pipeline endpoint
type DesignRequest struct {
	ChallengeText string `json:"challengeText"`
	Deadline      string `json:"deadline,omitempty"`
	Seriousness   int    `json:"seriousness,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Declaration converts the request into a pipeline declaration
func (r DesignRequest) Declaration() Declaration {
	return Declaration{
		Text:        r.ChallengeText,
		Deadline:    r.Deadline,
		Seriousness: r.Seriousness,
		Reason:      r.Reason,
	}.Normalized()
}

// ValidateResponse is returned by the validate endpoint
type ValidateResponse struct {
	ValidationResult
	Success  bool `json:"success"`
	Fallback bool `json:"fallback,omitempty"`
}

// ClassifyResponse is returned by the classify endpoint
type ClassifyResponse struct {
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
	Method   Method   `json:"method"`
	Success  bool     `json:"success"`
}

// DifficultyResponse is returned by the difficulty endpoint
type DifficultyResponse struct {
	DifficultyLevel DifficultyLevel `json:"difficultyLevel"`
	Difficulty      string          `json:"difficulty"`
	Reason          string          `json:"reason"`
	Method          Method          `json:"method"`
	Success         bool            `json:"success"`
}

// ConcretizeResponse is returned by the concretize endpoint
type ConcretizeResponse struct {
	Concretization
	Success bool `json:"success"`
}

// SuggestionResponse is returned by the simple suggestion endpoint
type SuggestionResponse struct {
	Suggestion string `json:"suggestion"`
	Success    bool   `json:"success"`
	Fallback   bool   `json:"fallback,omitempty"`
}

// InitialActionResponse is returned by the contextual suggestion endpoint
type InitialActionResponse struct {
	InitialActionTitle       string     `json:"initialActionTitle"`
	InitialActionDescription string     `json:"initialActionDescription"`
	EstimatedMinutes         int        `json:"estimatedMinutes"`
	ActionType               ActionType `json:"actionType"`
	WhyThisFitsCategory      string     `json:"whyThisFitsCategory"`
	Category                 Category   `json:"category,omitempty"`
	Success                  bool       `json:"success"`
	Fallback                 bool       `json:"fallback,omitempty"`
}
