// Package prompts renders the stage-specific instructions sent to the
// completion service. Rendering is deterministic: identical input always
// produces an identical prompt.
package prompts

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/terra-clan/challenge-designer/internal/models"
)

// Prompt is a rendered system + user instruction pair
type Prompt struct {
	System string
	User   string
}

// ActionInput carries everything the initial action prompt depends on
type ActionInput struct {
	Declaration models.Declaration
	Category    models.Category
	Level       models.DifficultyLevel
	Strategy    models.Strategy
}

// CoachInput carries the context of a re-suggestion request
type CoachInput struct {
	Goal      string
	Situation string
	Fear      string
	Type      models.CoachType
}

// Builder renders prompts from a Loader's catalog
type Builder struct {
	loader *Loader
}

// NewBuilder creates a prompt builder
func NewBuilder(loader *Loader) *Builder {
	return &Builder{loader: loader}
}

type categoryView struct {
	ID          models.Category
	Label       string
	Description string
}

type levelView struct {
	Level       models.DifficultyLevel
	Name        string
	Description string
}

type taskData struct {
	Text        string
	Deadline    string
	Seriousness int
	Reason      string
	Situation   string
	Fear        string
	Categories  []categoryView
	Levels      []levelView
}

// Validation renders the STEP1/STEP2 concreteness rubric
func (b *Builder) Validation(text string) (Prompt, error) {
	return b.render(TaskValidation, b.data(models.Declaration{Text: text}))
}

// Classification renders the six-category classification task
func (b *Builder) Classification(text string) (Prompt, error) {
	return b.render(TaskClassification, b.data(models.Declaration{Text: text}))
}

// Difficulty renders the three-level difficulty task
func (b *Builder) Difficulty(text string) (Prompt, error) {
	return b.render(TaskDifficulty, b.data(models.Declaration{Text: text}))
}

// Concretize renders the SMART restatement task
func (b *Builder) Concretize(text string) (Prompt, error) {
	return b.render(TaskConcretize, b.data(models.Declaration{Text: text}))
}

// Concreteness renders the design pipeline's concreteness + refinement task
func (b *Builder) Concreteness(decl models.Declaration) (Prompt, error) {
	return b.render(TaskConcreteness, b.data(decl))
}

// Suggestion renders the plain-text minimal step task
func (b *Builder) Suggestion(text string) (Prompt, error) {
	return b.render(TaskSuggestion, b.data(models.Declaration{Text: text}))
}

// Coach renders the re-suggestion task for the input's type; an unknown
// type renders the first-attempt task.
func (b *Builder) Coach(in CoachInput) (Prompt, error) {
	task := TaskCoachFirst
	switch in.Type {
	case models.CoachRetry:
		task = TaskCoachRetry
	case models.CoachStuck:
		task = TaskCoachStuck
	}

	data := b.data(models.Declaration{Text: in.Goal})
	data.Situation = strings.TrimSpace(in.Situation)
	data.Fear = strings.TrimSpace(in.Fear)
	return b.render(task, data)
}

// InitialAction composes the base instruction with the category addendum,
// the difficulty addendum and the strategy note.
func (b *Builder) InitialAction(in ActionInput) (Prompt, error) {
	cat := b.loader.snapshot()

	var sys strings.Builder
	sys.WriteString(strings.TrimSpace(cat.Action.Base))
	for _, part := range []string{
		b.CategoryAddendum(in.Category),
		b.DifficultyAddendum(in.Level),
		cat.Action.Strategies[string(in.Strategy)],
	} {
		if part = strings.TrimSpace(part); part != "" {
			sys.WriteString("\n\n")
			sys.WriteString(part)
		}
	}

	decl, err := b.declaration(in.Declaration)
	if err != nil {
		return Prompt{}, err
	}

	var user strings.Builder
	user.WriteString(decl)
	if in.Category.Valid() {
		fmt.Fprintf(&user, "カテゴリ: %s（%s）\n", in.Category, in.Category.Label())
	}
	level := models.ClampLevel(in.Level)
	fmt.Fprintf(&user, "難易度: Level %d（%s）\n", level, level.Name())

	return Prompt{System: sys.String(), User: user.String()}, nil
}

// CategoryAddendum returns the addendum for an exact category match, or ""
func (b *Builder) CategoryAddendum(c models.Category) string {
	return b.loader.snapshot().Action.Categories[string(c)]
}

// DifficultyAddendum returns the addendum for level, using Growth when the
// level is absent or out of range.
func (b *Builder) DifficultyAddendum(level models.DifficultyLevel) string {
	return b.loader.snapshot().Action.Difficulties[int(models.ClampLevel(level))]
}

func (b *Builder) declaration(decl models.Declaration) (string, error) {
	// Every compiled task carries the shared declaration block
	t, ok := b.loader.task(TaskConcreteness)
	if !ok {
		return "", fmt.Errorf("unknown prompt task: %s", TaskConcreteness)
	}
	var buf bytes.Buffer
	if err := t.user.ExecuteTemplate(&buf, "declaration", b.data(decl)); err != nil {
		return "", fmt.Errorf("failed to render declaration: %w", err)
	}
	return buf.String(), nil
}

func (b *Builder) render(name string, data taskData) (Prompt, error) {
	t, ok := b.loader.task(name)
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt task: %s", name)
	}

	var sys, user bytes.Buffer
	if err := t.system.Execute(&sys, data); err != nil {
		return Prompt{}, fmt.Errorf("failed to render %s system prompt: %w", name, err)
	}
	if err := t.user.Execute(&user, data); err != nil {
		return Prompt{}, fmt.Errorf("failed to render %s user prompt: %w", name, err)
	}

	return Prompt{
		System: strings.TrimSpace(sys.String()),
		User:   strings.TrimSpace(user.String()),
	}, nil
}

func (b *Builder) data(decl models.Declaration) taskData {
	cat := b.loader.snapshot()

	categories := make([]categoryView, 0, len(models.Categories))
	for _, c := range models.Categories {
		categories = append(categories, categoryView{
			ID:          c,
			Label:       c.Label(),
			Description: strings.TrimSpace(cat.Categories[string(c)].Description),
		})
	}

	levels := make([]levelView, 0, 3)
	for _, l := range []models.DifficultyLevel{models.LevelHabit, models.LevelGrowth, models.LevelLifeChange} {
		levels = append(levels, levelView{
			Level:       l,
			Name:        l.Name(),
			Description: strings.TrimSpace(cat.Levels[int(l)].Description),
		})
	}

	seriousness := decl.Seriousness
	if seriousness == 0 {
		seriousness = models.DefaultSeriousness
	}

	return taskData{
		Text:        decl.Text,
		Deadline:    decl.Deadline,
		Seriousness: seriousness,
		Reason:      decl.Reason,
		Categories:  categories,
		Levels:      levels,
	}
}
