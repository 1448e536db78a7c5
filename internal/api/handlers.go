package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/challenge-designer/internal/models"
	"github.com/terra-clan/challenge-designer/internal/pipeline"
	"github.com/terra-clan/challenge-designer/internal/prompts"
)

// Response helpers

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, apiError{
		Error:   code,
		Message: message,
		Success: false,
	})
}

// decode reads a JSON body into v, answering 400 itself on failure
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// stageError maps a pipeline error onto a response. Only missing input is
// a client error.
func stageError(w http.ResponseWriter, err error, field string) {
	if errors.Is(err, pipeline.ErrMissingInput) {
		respondError(w, http.StatusBadRequest, "validation_error", field+" is required")
		return
	}
	if errors.Is(err, pipeline.ErrInvalidInput) {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	slog.Error("stage failed", "error", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "request failed")
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "not_found", "route not found")
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := s.providers
	if providers == nil {
		providers = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"time":      time.Now().UTC().Format(time.RFC3339),
		"providers": providers,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			respondError(w, http.StatusServiceUnavailable, "not_ready", name+" not ready")
			return
		}
	}

	providers := s.providers
	if providers == nil {
		providers = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"providers": providers,
	})
}

// Stage handlers

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req models.TextRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.pipeline.Validate(r.Context(), req.Text)
	if err != nil {
		stageError(w, err, "text")
		return
	}

	respondJSON(w, http.StatusOK, models.ValidateResponse{
		ValidationResult: res,
		Success:          true,
		Fallback:         res.Method == models.MethodFallback,
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req models.TextRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.pipeline.Classify(r.Context(), req.Text)
	if err != nil {
		stageError(w, err, "text")
		return
	}

	respondJSON(w, http.StatusOK, models.ClassifyResponse{
		Category: res.Category,
		Reason:   res.Reason,
		Method:   res.Method,
		Success:  res.Success,
	})
}

func (s *Server) handleDifficulty(w http.ResponseWriter, r *http.Request) {
	var req models.TextRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.pipeline.AssessDifficulty(r.Context(), req.Text)
	if err != nil {
		stageError(w, err, "text")
		return
	}

	respondJSON(w, http.StatusOK, models.DifficultyResponse{
		DifficultyLevel: res.Level,
		Difficulty:      res.Level.Weight(),
		Reason:          res.Reason,
		Method:          res.Method,
		Success:         res.Success,
	})
}

func (s *Server) handleConcretize(w http.ResponseWriter, r *http.Request) {
	var req models.TextRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.pipeline.Concretize(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, pipeline.ErrMissingInput) {
			stageError(w, err, "text")
			return
		}
		slog.Error("failed to concretize challenge", "error", err)
		respondError(w, http.StatusInternalServerError, "concretize_failed", "failed to concretize challenge")
		return
	}

	respondJSON(w, http.StatusOK, models.ConcretizeResponse{
		Concretization: res,
		Success:        true,
	})
}

func (s *Server) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	var req models.SuggestionRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.pipeline.Suggest(r.Context(), req.ChallengeText)
	if err != nil {
		stageError(w, err, "challengeText")
		return
	}

	respondJSON(w, http.StatusOK, models.SuggestionResponse{
		Suggestion: res.Suggestion,
		Success:    true,
		Fallback:   res.Fallback,
	})
}

func (s *Server) handleCoach(w http.ResponseWriter, r *http.Request) {
	var req models.CoachRequest
	if !decode(w, r, &req) {
		return
	}

	typ, ok := models.ParseCoachType(req.Type)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "type must be first, retry or stuck")
		return
	}

	res, err := s.pipeline.Coach(r.Context(), prompts.CoachInput{
		Goal:      req.Goal,
		Situation: req.Situation,
		Fear:      req.Fear,
		Type:      typ,
	})
	if err != nil {
		stageError(w, err, "goal")
		return
	}

	respondJSON(w, http.StatusOK, models.CoachResponse{
		Message:  res.Suggestion,
		Type:     typ,
		Success:  true,
		Fallback: res.Fallback,
	})
}

func (s *Server) handleInitialAction(w http.ResponseWriter, r *http.Request) {
	var req models.InitialActionRequest
	if !decode(w, r, &req) {
		return
	}

	// Unknown categories get no addendum and the generic starter action
	category, _ := models.ParseCategory(req.Category)

	res, err := s.pipeline.SuggestAction(r.Context(), prompts.ActionInput{
		Declaration: models.Declaration{Text: req.Text, Seriousness: req.Seriousness},
		Category:    category,
		Level:       models.DifficultyLevel(req.DifficultyLevel),
	})
	if err != nil {
		stageError(w, err, "text")
		return
	}

	respondJSON(w, http.StatusOK, models.InitialActionResponse{
		InitialActionTitle:       res.Action.Title,
		InitialActionDescription: res.Action.Description,
		EstimatedMinutes:         res.Action.EstimatedMinutes,
		ActionType:               res.Action.ActionType,
		WhyThisFitsCategory:      res.Action.Rationale,
		Category:                 res.Category,
		Success:                  res.Success,
		Fallback:                 res.Fallback,
	})
}

func (s *Server) handleDesign(w http.ResponseWriter, r *http.Request) {
	var req models.DesignRequest
	if !decode(w, r, &req) {
		return
	}

	design, err := s.pipeline.Design(r.Context(), req.Declaration(), nil)
	if err != nil {
		stageError(w, err, "challengeText")
		return
	}

	respondJSON(w, http.StatusOK, design)
}
