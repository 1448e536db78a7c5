// Package fallback is the single source of the safe defaults used when both
// the rule path and the model path fail. Every value it returns is complete.
package fallback

import (
	"regexp"
	"strings"

	"github.com/terra-clan/challenge-designer/internal/models"
)

const (
	// Reason marks a value as an error fallback
	Reason = "fallback: AI design failed"

	// Error is attached to fully substituted designs
	Error = "AI design failed"

	defaultChallengeTitle = "Challenge"
)

// Category returns the default category
func Category() models.Category {
	return models.CategoryLearning
}

// Difficulty returns the default difficulty level
func Difficulty() models.DifficultyLevel {
	return models.LevelGrowth
}

// Action returns the default initial action
func Action() models.InitialAction {
	return models.InitialAction{
		Title:            "Start preparing",
		Description:      "Spend 5 minutes preparing for your challenge",
		EstimatedMinutes: models.MinActionMinutes,
		ActionType:       models.ActionEnvironment,
		Rationale:        Reason,
	}
}

// Design returns the full default design for decl with Success false
func Design(decl models.Declaration) models.ChallengeDesign {
	decl = decl.Normalized()

	title := decl.Text
	if title == "" {
		title = defaultChallengeTitle
	}

	return models.ChallengeDesign{
		IsConcrete: true,
		RefinedChallenge: models.RefinedChallenge{
			Title:       title,
			Description: title,
		},
		Category:        Category(),
		DifficultyLevel: Difficulty(),
		InitialAction:   Action(),
		DesignReason:    Reason,
		Strategy:        models.StrategyFor(decl.Seriousness),
		Methods: models.StageMethods{
			Validation: models.MethodFallback,
			Category:   models.MethodFallback,
			Difficulty: models.MethodFallback,
			Action:     models.MethodFallback,
		},
		Success: false,
		Error:   Error,
	}
}

// Validation is the result reported when concreteness cannot be judged at
// all. It leans toward asking the user for more detail.
func Validation() models.ValidationResult {
	return models.ValidationResult{
		IsValid: false,
		Message: "Please describe your challenge more concretely",
		Reason:  "The AI check failed. Enter a sentence that states what you will do.",
		Method:  models.MethodFallback,
	}
}

type categoryTemplate struct {
	pattern    string
	actionType models.ActionType
	rationale  string
}

// categoryTemplates are the per-category starter actions. {action} is
// replaced with the action phrase extracted from the declaration.
var categoryTemplates = map[models.Category]categoryTemplate{
	models.CategoryLearning:     {"5分だけ{action}をやってみる", models.ActionMiniExecution, "Learning starts by touching the material"},
	models.CategoryHealth:       {"{action}の準備をする（シューズを出す、ウェアを用意する）", models.ActionEnvironment, "Health starts by removing the setup cost"},
	models.CategoryPublishing:   {"SNSで{action}を宣言投稿する", models.ActionPublicCommitment, "Publishing starts by going public"},
	models.CategoryCreative:     {"{action}の新しいファイルを作る", models.ActionMiniExecution, "Creative work starts with a tiny finished piece"},
	models.CategoryBusiness:     {"{action}の計画を1つ書き出す", models.ActionMiniExecution, "Business starts with one concrete contact or plan"},
	models.CategoryRelationship: {"1人だけ{action}のメッセージを送る", models.ActionMiniExecution, "Relationships start with one direct contact"},
}

// CategoryAction returns a deterministic starter action for category built
// from the declaration text. Unknown categories get Action().
func CategoryAction(category models.Category, text string) models.InitialAction {
	tmpl, ok := categoryTemplates[category]
	if !ok {
		return Action()
	}

	title := strings.ReplaceAll(tmpl.pattern, "{action}", ExtractAction(text))
	return models.InitialAction{
		Title:            title,
		Description:      title,
		EstimatedMinutes: models.MinActionMinutes,
		ActionType:       tmpl.actionType,
		Rationale:        tmpl.rationale,
	}
}

var actionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.+?)を(.+)$`),
	regexp.MustCompile(`^(.+?)する`),
	regexp.MustCompile(`^(.+?)やる`),
}

// ExtractAction pulls the object phrase out of a declaration ("英語を勉強する"
// -> "英語"), or returns a generic word.
func ExtractAction(text string) string {
	text = strings.TrimSpace(text)
	for _, p := range actionPatterns {
		if m := p.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
			return strings.TrimSpace(m[1])
		}
	}
	return "挑戦"
}

const defaultCoachMessage = "まずは一歩を踏み出す"

// CoachMessage returns the re-suggestion for typ built from the first clause
// of goal. Unknown types and empty goals get a generic first step.
func CoachMessage(typ models.CoachType, goal string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(goal), "、")
	head = strings.TrimSpace(head)
	if head == "" {
		return defaultCoachMessage
	}

	switch typ {
	case models.CoachFirst:
		return "まずは" + head + "の準備をする"
	case models.CoachRetry:
		return "2分で" + head + "を開くだけ"
	case models.CoachStuck:
		return "今日は" + head + "を5分だけ見る"
	}
	return defaultCoachMessage
}
