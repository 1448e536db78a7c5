package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/terra-clan/challenge-designer/internal/fallback"
	"github.com/terra-clan/challenge-designer/internal/models"
	"github.com/terra-clan/challenge-designer/internal/parser"
	"github.com/terra-clan/challenge-designer/internal/prompts"
	"github.com/terra-clan/challenge-designer/internal/rules"
)

const (
	msgConcrete    = "Looks concrete"
	msgNotConcrete = "Please describe your challenge more concretely"
	msgMeaningless = "Please enter a meaningful challenge"
)

// ClassifyResult is the outcome of the category stage
type ClassifyResult struct {
	Category models.Category
	Reason   string
	Method   models.Method
	Success  bool
}

// DifficultyResult is the outcome of the difficulty stage
type DifficultyResult struct {
	Level   models.DifficultyLevel
	Reason  string
	Method  models.Method
	Success bool
}

// SuggestionResult is a one-line minimal step
type SuggestionResult struct {
	Suggestion string
	Fallback   bool
}

// ActionResult is the outcome of the contextual suggestion
type ActionResult struct {
	Action   models.InitialAction
	Category models.Category
	Success  bool
	Fallback bool
}

// Validate judges whether text is a concrete challenge
func (o *Orchestrator) Validate(ctx context.Context, text string) (models.ValidationResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ValidationResult{}, ErrMissingInput
	}

	ctx, span := o.startSpan(ctx, "validate")

	if utf8.RuneCountInString(text) < 2 {
		finishSpan(span, models.MethodRule, nil)
		return models.ValidationResult{
			IsValid: false,
			Message: msgMeaningless,
			Reason:  "The input is too short to describe a challenge",
			Method:  models.MethodRule,
		}, nil
	}

	var out struct {
		IsConcrete      parser.Bool `json:"isConcrete"`
		Reason          string      `json:"reason"`
		ImprovedExample string      `json:"improvedExample"`
	}
	p, err := o.prompts.Validation(text)
	if err == nil {
		err = o.ask(ctx, p, analysisSettings, &out)
	}
	if err == nil && !out.IsConcrete.Set {
		err = fmt.Errorf("%w: missing isConcrete", parser.ErrMalformedOutput)
	}
	if err != nil {
		logFallback(ctx, "validate", err)
		finishSpan(span, models.MethodFallback, err)

		valid := !rules.IsAbstract(text)
		res := models.ValidationResult{
			IsValid: valid,
			Message: msgConcrete,
			Reason:  "Judged by keyword rules because the AI check failed",
			Method:  models.MethodFallback,
		}
		if !valid {
			res.Message = msgNotConcrete
		}
		return res, nil
	}

	finishSpan(span, models.MethodAI, nil)
	res := models.ValidationResult{
		IsValid:         out.IsConcrete.Value,
		Message:         msgConcrete,
		Reason:          strings.TrimSpace(out.Reason),
		ImprovedExample: strings.TrimSpace(out.ImprovedExample),
		Method:          models.MethodAI,
	}
	if !res.IsValid {
		res.Message = msgNotConcrete
	}
	return res, nil
}

// Classify assigns one of the six categories to text
func (o *Orchestrator) Classify(ctx context.Context, text string) (ClassifyResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ClassifyResult{}, ErrMissingInput
	}
	return o.classify(ctx, text), nil
}

func (o *Orchestrator) classify(ctx context.Context, text string) ClassifyResult {
	ctx, span := o.startSpan(ctx, "classify")

	if c, ok := rules.ClassifyByKeyword(text); ok {
		finishSpan(span, models.MethodRule, nil)
		return ClassifyResult{
			Category: c,
			Reason:   fmt.Sprintf("Matched a %s keyword", c),
			Method:   models.MethodRule,
			Success:  true,
		}
	}

	var out struct {
		Category string `json:"category"`
		Reason   string `json:"reason"`
	}
	p, err := o.prompts.Classification(text)
	if err == nil {
		err = o.ask(ctx, p, analysisSettings, &out)
	}
	if err != nil {
		logFallback(ctx, "classify", err)
		finishSpan(span, models.MethodFallback, err)
		return ClassifyResult{
			Category: fallback.Category(),
			Reason:   fallback.Reason,
			Method:   models.MethodFallback,
			Success:  false,
		}
	}

	c, ok := models.ParseCategory(out.Category)
	if !ok {
		finishSpan(span, models.MethodFallback, nil)
		return ClassifyResult{
			Category: fallback.Category(),
			Reason:   fmt.Sprintf("Unknown category %q, using default", out.Category),
			Method:   models.MethodFallback,
			Success:  true,
		}
	}

	finishSpan(span, models.MethodAI, nil)
	return ClassifyResult{
		Category: c,
		Reason:   strings.TrimSpace(out.Reason),
		Method:   models.MethodAI,
		Success:  true,
	}
}

// AssessDifficulty grades text into one of the three levels
func (o *Orchestrator) AssessDifficulty(ctx context.Context, text string) (DifficultyResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return DifficultyResult{}, ErrMissingInput
	}
	return o.assessDifficulty(ctx, text), nil
}

func (o *Orchestrator) assessDifficulty(ctx context.Context, text string) DifficultyResult {
	ctx, span := o.startSpan(ctx, "difficulty")

	if level, tier, ok := rules.MatchDifficulty(text); ok {
		finishSpan(span, models.MethodRule, nil)
		return DifficultyResult{
			Level:   level,
			Reason:  fmt.Sprintf("Matched the %s rule", tier),
			Method:  models.MethodRule,
			Success: true,
		}
	}

	var out struct {
		DifficultyLevel parser.Int `json:"difficultyLevel"`
		Reason          string     `json:"reason"`
	}
	p, err := o.prompts.Difficulty(text)
	if err == nil {
		err = o.ask(ctx, p, analysisSettings, &out)
	}
	if err != nil {
		logFallback(ctx, "difficulty", err)
		finishSpan(span, models.MethodFallback, err)
		return DifficultyResult{
			Level:   fallback.Difficulty(),
			Reason:  fallback.Reason,
			Method:  models.MethodFallback,
			Success: false,
		}
	}

	level := models.DifficultyLevel(out.DifficultyLevel.Value)
	if !out.DifficultyLevel.Set || !level.Valid() {
		finishSpan(span, models.MethodFallback, nil)
		return DifficultyResult{
			Level:   fallback.Difficulty(),
			Reason:  "The AI returned no usable level, using default",
			Method:  models.MethodFallback,
			Success: true,
		}
	}

	finishSpan(span, models.MethodAI, nil)
	return DifficultyResult{
		Level:   level,
		Reason:  strings.TrimSpace(out.Reason),
		Method:  models.MethodAI,
		Success: true,
	}
}

// Concretize restates text as a SMART goal. It has no fallback: any
// completion or parse failure is returned.
func (o *Orchestrator) Concretize(ctx context.Context, text string) (models.Concretization, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Concretization{}, ErrMissingInput
	}

	ctx, span := o.startSpan(ctx, "concretize")

	var out models.Concretization
	p, err := o.prompts.Concretize(text)
	if err == nil {
		err = o.ask(ctx, p, concretizeSettings, &out)
	}
	if err == nil && strings.TrimSpace(out.Title) == "" {
		err = fmt.Errorf("%w: missing title", parser.ErrMalformedOutput)
	}
	if err != nil {
		finishSpan(span, models.MethodAI, err)
		return models.Concretization{}, fmt.Errorf("concretize failed: %w", err)
	}

	finishSpan(span, models.MethodAI, nil)
	out.Title = strings.TrimSpace(out.Title)
	out.Description = strings.TrimSpace(out.Description)
	out.Metric = strings.TrimSpace(out.Metric)
	out.DeadlineSuggestion = strings.TrimSpace(out.DeadlineSuggestion)
	return out, nil
}

// Suggest returns a one-line minimal step for text, falling back to the
// keyword table when the completion service fails.
func (o *Orchestrator) Suggest(ctx context.Context, text string) (SuggestionResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SuggestionResult{}, ErrMissingInput
	}

	ctx, span := o.startSpan(ctx, "suggestion")

	var suggestion string
	p, err := o.prompts.Suggestion(text)
	if err == nil {
		var answer string
		if answer, err = o.complete(ctx, p, suggestionSettings); err == nil {
			if suggestion = firstLine(answer); suggestion == "" {
				err = fmt.Errorf("%w: empty suggestion", parser.ErrMalformedOutput)
			}
		}
	}
	if err != nil {
		logFallback(ctx, "suggestion", err)
		finishSpan(span, models.MethodFallback, err)
		return SuggestionResult{Suggestion: rules.SuggestByKeyword(text), Fallback: true}, nil
	}

	finishSpan(span, models.MethodAI, nil)
	return SuggestionResult{Suggestion: suggestion}, nil
}

// Coach returns a one-line re-suggestion for a goal given the user's
// situation, fear and where they are in the challenge. On failure it answers
// with the per-type fallback line.
func (o *Orchestrator) Coach(ctx context.Context, in prompts.CoachInput) (SuggestionResult, error) {
	in.Goal = strings.TrimSpace(in.Goal)
	if in.Goal == "" {
		return SuggestionResult{}, ErrMissingInput
	}
	if in.Type == "" {
		in.Type = models.CoachFirst
	}
	if !in.Type.Valid() {
		return SuggestionResult{}, fmt.Errorf("%w: coach type %q", ErrInvalidInput, in.Type)
	}

	ctx, span := o.startSpan(ctx, "coach")
	span.SetAttributes(attribute.String("coach.type", string(in.Type)))

	var message string
	p, err := o.prompts.Coach(in)
	if err == nil {
		var answer string
		if answer, err = o.complete(ctx, p, suggestionSettings); err == nil {
			if message = firstLine(answer); message == "" {
				err = fmt.Errorf("%w: empty suggestion", parser.ErrMalformedOutput)
			}
		}
	}
	if err != nil {
		logFallback(ctx, "coach", err)
		finishSpan(span, models.MethodFallback, err)
		return SuggestionResult{Suggestion: fallback.CoachMessage(in.Type, in.Goal), Fallback: true}, nil
	}

	finishSpan(span, models.MethodAI, nil)
	return SuggestionResult{Suggestion: message}, nil
}

// DesignAction asks the completion service for the initial action and
// clamps the answer. A missing title is an error.
func (o *Orchestrator) DesignAction(ctx context.Context, in prompts.ActionInput) (models.InitialAction, error) {
	ctx, span := o.startSpan(ctx, "action")

	var out struct {
		Title       string     `json:"initialActionTitle"`
		Description string     `json:"initialActionDescription"`
		Minutes     parser.Int `json:"estimatedMinutes"`
		ActionType  string     `json:"actionType"`
		Rationale   string     `json:"whyThisFitsCategory"`
	}
	p, err := o.prompts.InitialAction(in)
	if err == nil {
		err = o.ask(ctx, p, actionSettings, &out)
	}
	if err == nil && strings.TrimSpace(out.Title) == "" {
		err = fmt.Errorf("%w: missing initialActionTitle", parser.ErrMalformedOutput)
	}
	if err != nil {
		finishSpan(span, models.MethodAI, err)
		return models.InitialAction{}, fmt.Errorf("initial action design failed: %w", err)
	}

	action := models.InitialAction{
		Title:            strings.TrimSpace(out.Title),
		Description:      strings.TrimSpace(out.Description),
		EstimatedMinutes: out.Minutes.Value,
		ActionType:       models.ActionType(strings.TrimSpace(out.ActionType)),
		Rationale:        strings.TrimSpace(out.Rationale),
	}
	if !out.Minutes.Set {
		action.EstimatedMinutes = models.MinActionMinutes
	}
	if action.Description == "" {
		action.Description = action.Title
	}
	action.Normalize()

	finishSpan(span, models.MethodAI, nil)
	return action, nil
}

// SuggestAction designs an initial action for a declaration with a known
// category and level. On failure it returns the category starter action.
func (o *Orchestrator) SuggestAction(ctx context.Context, in prompts.ActionInput) (ActionResult, error) {
	in.Declaration = in.Declaration.Normalized()
	if in.Declaration.Text == "" {
		return ActionResult{}, ErrMissingInput
	}
	in.Level = models.ClampLevel(in.Level)
	if in.Strategy == "" {
		in.Strategy = models.StrategyFor(in.Declaration.Seriousness)
	}

	action, err := o.DesignAction(ctx, in)
	if err != nil {
		logFallback(ctx, "action", err)
		return ActionResult{
			Action:   fallback.CategoryAction(in.Category, in.Declaration.Text),
			Category: in.Category,
			Success:  false,
			Fallback: true,
		}, nil
	}

	return ActionResult{Action: action, Category: in.Category, Success: true}, nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "\"'「」")
		if line != "" {
			return line
		}
	}
	return ""
}
