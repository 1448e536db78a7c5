package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/terra-clan/challenge-designer/internal/fallback"
	"github.com/terra-clan/challenge-designer/internal/models"
	"github.com/terra-clan/challenge-designer/internal/parser"
	"github.com/terra-clan/challenge-designer/internal/prompts"
)

// run carries the state of one Design call
type run struct {
	o        *Orchestrator
	id       string
	observer Observer
}

func (r *run) emit(stage models.Stage, method models.Method, detail string) {
	slog.Debug("design stage",
		"design_id", r.id,
		"stage", stage,
		"method", method,
	)
	if r.observer == nil {
		return
	}
	r.observer(models.StageEvent{
		Stage:     stage,
		Method:    method,
		Detail:    detail,
		Timestamp: r.o.now(),
	})
}

func (r *run) fail(at models.Stage, err error) {
	slog.Warn("design failed, returning default design",
		"design_id", r.id,
		"failed_at", at,
		"error", err,
	)
	if r.observer == nil {
		return
	}
	r.observer(models.StageEvent{
		Stage:     models.StageFailed,
		Method:    models.MethodFallback,
		FailedAt:  at,
		Detail:    err.Error(),
		Timestamp: r.o.now(),
	})
}

// Design runs the full pipeline: concreteness, category, difficulty, then
// the initial action. Stages run strictly in order. Only a failed action
// stage replaces the whole result with the default design; every other
// stage absorbs its own failure.
func (o *Orchestrator) Design(ctx context.Context, decl models.Declaration, observer Observer) (models.ChallengeDesign, error) {
	decl = decl.Normalized()
	if decl.Text == "" {
		return models.ChallengeDesign{}, ErrMissingInput
	}

	ctx, span := o.startSpan(ctx, "design")
	r := &run{o: o, id: uuid.NewString(), observer: observer}
	r.emit(models.StageReceived, "", "")

	strategy := models.StrategyFor(decl.Seriousness)
	design := models.ChallengeDesign{
		ID:       r.id,
		Strategy: strategy,
	}

	concrete, refined, method := o.concreteness(ctx, decl)
	design.IsConcrete = concrete
	design.RefinedChallenge = refined
	design.Methods.Validation = method
	r.emit(models.StageValidated, method, "")

	cls := o.classify(ctx, decl.Text)
	design.Category = cls.Category
	design.Methods.Category = cls.Method
	r.emit(models.StageClassified, cls.Method, string(cls.Category))

	diff := o.assessDifficulty(ctx, decl.Text)
	design.DifficultyLevel = diff.Level
	design.Methods.Difficulty = diff.Method
	r.emit(models.StageDifficultyAssessed, diff.Method, fmt.Sprintf("level %d", diff.Level))

	action, err := o.DesignAction(ctx, prompts.ActionInput{
		Declaration: decl,
		Category:    design.Category,
		Level:       design.DifficultyLevel,
		Strategy:    strategy,
	})
	if err != nil {
		r.fail(models.StageActionDesigned, err)
		finishSpan(span, models.MethodFallback, err)

		def := fallback.Design(decl)
		def.ID = r.id
		return def, nil
	}

	design.InitialAction = action
	design.Methods.Action = models.MethodAI
	design.DesignReason = action.Rationale
	if design.DesignReason == "" {
		design.DesignReason = fmt.Sprintf("A %s step sized for a %s challenge",
			action.ActionType.Label(), strings.ToLower(design.DifficultyLevel.Name()))
	}
	design.Success = true
	r.emit(models.StageActionDesigned, models.MethodAI, action.Title)

	r.emit(models.StageComplete, "", "")
	finishSpan(span, models.MethodAI, nil)

	slog.Info("challenge designed",
		"design_id", r.id,
		"category", design.Category,
		"difficulty", design.DifficultyLevel,
		"strategy", design.Strategy,
		"category_method", design.Methods.Category,
		"difficulty_method", design.Methods.Difficulty,
	)
	return design, nil
}

// concreteness asks the model whether decl is concrete and for a refined
// restatement. Rules cannot produce a refinement, so there is no rule path;
// on failure the declaration is taken as concrete and echoed back.
func (o *Orchestrator) concreteness(ctx context.Context, decl models.Declaration) (bool, models.RefinedChallenge, models.Method) {
	ctx, span := o.startSpan(ctx, "concreteness")

	var out struct {
		IsConcrete       parser.Bool             `json:"isConcrete"`
		RefinedChallenge models.RefinedChallenge `json:"refinedChallenge"`
	}
	p, err := o.prompts.Concreteness(decl)
	if err == nil {
		err = o.ask(ctx, p, analysisSettings, &out)
	}
	if err != nil {
		logFallback(ctx, "concreteness", err)
		finishSpan(span, models.MethodFallback, err)
		return true, models.RefinedChallenge{Title: decl.Text, Description: decl.Text}, models.MethodFallback
	}

	refined := models.RefinedChallenge{
		Title:       strings.TrimSpace(out.RefinedChallenge.Title),
		Description: strings.TrimSpace(out.RefinedChallenge.Description),
	}
	if refined.Title == "" {
		refined.Title = decl.Text
	}
	if refined.Description == "" {
		refined.Description = refined.Title
	}

	concrete := true
	if out.IsConcrete.Set {
		concrete = out.IsConcrete.Value
	}

	finishSpan(span, models.MethodAI, nil)
	return concrete, refined, models.MethodAI
}
