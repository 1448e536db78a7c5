package models

import "time"

// Stage is a state of a declaration moving through the design pipeline
type Stage string

const (
	StageReceived           Stage = "received"
	StageValidated          Stage = "validated"
	StageClassified         Stage = "classified"
	StageDifficultyAssessed Stage = "difficulty_assessed"
	StageActionDesigned     Stage = "action_designed"
	StageComplete           Stage = "complete"
	StageFailed             Stage = "failed"
)

// StageEvent reports one transition of the design pipeline
type StageEvent struct {
	Stage     Stage     `json:"stage"`
	Method    Method    `json:"method,omitempty"`
	FailedAt  Stage     `json:"failedAt,omitempty"` // set only when Stage is failed
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
