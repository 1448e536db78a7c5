package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/challenge-designer/internal/fallback"
	"github.com/terra-clan/challenge-designer/internal/llm"
	"github.com/terra-clan/challenge-designer/internal/models"
	"github.com/terra-clan/challenge-designer/internal/parser"
	"github.com/terra-clan/challenge-designer/internal/prompts"
)

type stage string

const (
	stageValidation   stage = "validation"
	stageConcreteness stage = "concreteness"
	stageClassify     stage = "classification"
	stageDifficulty   stage = "difficulty"
	stageConcretize   stage = "concretize"
	stageSuggestion   stage = "suggestion"
	stageAction       stage = "action"
	stageCoach        stage = "coach"
)

// markers identify which task a request carries; checked in order
var markers = []struct {
	needle string
	stage  stage
}{
	{"initialActionTitle", stageAction},
	{"refinedChallenge", stageConcreteness},
	{"improvedExample", stageValidation},
	{"deadlineSuggestion", stageConcretize},
	{`"difficultyLevel"`, stageDifficulty},
	{`"category"`, stageClassify},
	{"提案（1文だけ）", stageSuggestion},
	{"挑戦目標:", stageCoach},
}

type answer struct {
	text string
	err  error
}

// fakeCompleter answers by stage and records every request
type fakeCompleter struct {
	mu      sync.Mutex
	answers map[stage]answer
	calls   []stage
	reqs    map[stage]llm.Request
}

func newFake(answers map[stage]answer) *fakeCompleter {
	return &fakeCompleter{answers: answers, reqs: map[stage]llm.Request{}}
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	prompt := req.System() + "\n" + req.User()
	st := stage("unknown")
	for _, m := range markers {
		if strings.Contains(prompt, m.needle) {
			st = m.stage
			break
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, st)
	f.reqs[st] = req

	a, ok := f.answers[st]
	if !ok {
		return "", fmt.Errorf("%w: no answer for %s", llm.ErrUnavailable, st)
	}
	return a.text, a.err
}

func (f *fakeCompleter) Calls() []stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stage(nil), f.calls...)
}

type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, llm.Request) (string, error) {
	return "", fmt.Errorf("%w: simulated outage", llm.ErrUnavailable)
}

func newOrchestrator(t *testing.T, c Completer) *Orchestrator {
	t.Helper()
	loader, err := prompts.NewLoader()
	require.NoError(t, err)
	o := New(c, prompts.NewBuilder(loader))
	o.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return o
}

const goodAction = `{"initialActionTitle":"単語帳を開く","initialActionDescription":"机に単語帳を置いて1ページ目を開く","estimatedMinutes":10,"actionType":"environment","whyThisFitsCategory":"学習は教材に触れることから"}`

func TestDesignRuleStagesSkipModel(t *testing.T) {
	fake := newFake(map[stage]answer{
		stageConcreteness: {text: `{"isConcrete": true, "refinedChallenge": {"title": "英語を毎日30分勉強する", "description": "毎朝30分"}}`},
		stageAction:       {text: "Sure! " + goodAction},
	})
	o := newOrchestrator(t, fake)

	var events []models.StageEvent
	design, err := o.Design(context.Background(), models.Declaration{Text: "英語を毎日30分勉強する"}, func(e models.StageEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)

	assert.Equal(t, models.CategoryLearning, design.Category)
	assert.Equal(t, models.LevelHabit, design.DifficultyLevel)
	assert.Equal(t, models.MethodRule, design.Methods.Category)
	assert.Equal(t, models.MethodRule, design.Methods.Difficulty)
	assert.Equal(t, []stage{stageConcreteness, stageAction}, fake.Calls())

	assert.True(t, design.Success)
	assert.NotEmpty(t, design.ID)
	assert.Equal(t, models.StrategyMedium, design.Strategy)
	assert.Equal(t, "学習は教材に触れることから", design.DesignReason)
	assert.Equal(t, models.InitialAction{
		Title:            "単語帳を開く",
		Description:      "机に単語帳を置いて1ページ目を開く",
		EstimatedMinutes: 10,
		ActionType:       models.ActionEnvironment,
		Rationale:        "学習は教材に触れることから",
	}, design.InitialAction)

	var stages []models.Stage
	for _, e := range events {
		stages = append(stages, e.Stage)
	}
	assert.Equal(t, []models.Stage{
		models.StageReceived,
		models.StageValidated,
		models.StageClassified,
		models.StageDifficultyAssessed,
		models.StageActionDesigned,
		models.StageComplete,
	}, stages)
}

func TestDesignModelClassificationRuleDifficulty(t *testing.T) {
	fake := newFake(map[stage]answer{
		stageConcreteness: {text: `{"isConcrete": false, "refinedChallenge": {"title": "3ヶ月で事業計画を完成させる", "description": ""}}`},
		stageClassify:     {text: `{"category": "Business", "reason": "起業は収益を狙う行動"}`},
		stageAction:       {text: goodAction},
	})
	o := newOrchestrator(t, fake)

	design, err := o.Design(context.Background(), models.Declaration{Text: "起業して成功する", Seriousness: 5}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.CategoryBusiness, design.Category)
	assert.Equal(t, models.MethodAI, design.Methods.Category)
	assert.Equal(t, models.LevelLifeChange, design.DifficultyLevel)
	assert.Equal(t, models.MethodRule, design.Methods.Difficulty)
	assert.Equal(t, []stage{stageConcreteness, stageClassify, stageAction}, fake.Calls())

	assert.False(t, design.IsConcrete)
	assert.Equal(t, models.RefinedChallenge{
		Title:       "3ヶ月で事業計画を完成させる",
		Description: "3ヶ月で事業計画を完成させる",
	}, design.RefinedChallenge)
	assert.Equal(t, models.StrategyHigh, design.Strategy)
}

func TestDesignWithCompletionServiceDown(t *testing.T) {
	o := newOrchestrator(t, failingCompleter{})

	var events []models.StageEvent
	design, err := o.Design(context.Background(), models.Declaration{Text: "起業して成功する"}, func(e models.StageEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)

	assert.False(t, design.Success)
	assert.Equal(t, models.CategoryLearning, design.Category)
	assert.Equal(t, models.LevelGrowth, design.DifficultyLevel)
	assert.NotEmpty(t, design.InitialAction.Title)
	assert.GreaterOrEqual(t, design.InitialAction.EstimatedMinutes, models.MinActionMinutes)
	assert.LessOrEqual(t, design.InitialAction.EstimatedMinutes, models.MaxActionMinutes)
	assert.NotEmpty(t, design.ID)

	want := fallback.Design(models.Declaration{Text: "起業して成功する"})
	if diff := cmp.Diff(want, design, cmpopts.IgnoreFields(models.ChallengeDesign{}, "ID")); diff != "" {
		t.Errorf("fallback design mismatch (-want +got):\n%s", diff)
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, models.StageFailed, last.Stage)
	assert.Equal(t, models.StageActionDesigned, last.FailedAt)
}

func TestDesignConcretenessFailureEchoesText(t *testing.T) {
	fake := newFake(map[stage]answer{
		stageConcreteness: {text: "I cannot answer that"},
		stageAction:       {text: goodAction},
	})
	o := newOrchestrator(t, fake)

	design, err := o.Design(context.Background(), models.Declaration{Text: "英語を毎日30分勉強する"}, nil)
	require.NoError(t, err)

	assert.True(t, design.Success)
	assert.True(t, design.IsConcrete)
	assert.Equal(t, models.MethodFallback, design.Methods.Validation)
	assert.Equal(t, "英語を毎日30分勉強する", design.RefinedChallenge.Title)
	assert.Equal(t, "英語を毎日30分勉強する", design.RefinedChallenge.Description)
}

func TestDesignMissingInput(t *testing.T) {
	o := newOrchestrator(t, failingCompleter{})
	_, err := o.Design(context.Background(), models.Declaration{Text: "   "}, nil)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestDesignActionClamps(t *testing.T) {
	tests := []struct {
		name        string
		minutes     string
		actionType  string
		wantMinutes int
		wantType    models.ActionType
	}{
		{"below range", `2`, "environment", 5, models.ActionEnvironment},
		{"above range", `30`, "public_commitment", 15, models.ActionPublicCommitment},
		{"in range", `9`, "mini_execution", 9, models.ActionMiniExecution},
		{"quoted number", `"12"`, "environment", 12, models.ActionEnvironment},
		{"unknown type", `10`, "foo", 10, models.ActionMiniExecution},
		{"missing minutes", `null`, "environment", 5, models.ActionEnvironment},
		{"overflowing number", `"99999999999999999999"`, "environment", 15, models.ActionEnvironment},
		{"infinity", `"Infinity"`, "environment", 15, models.ActionEnvironment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake(map[stage]answer{
				stageAction: {text: fmt.Sprintf(`{"initialActionTitle":"靴を出す","estimatedMinutes":%s,"actionType":%q}`, tt.minutes, tt.actionType)},
			})
			o := newOrchestrator(t, fake)

			action, err := o.DesignAction(context.Background(), prompts.ActionInput{
				Declaration: models.Declaration{Text: "毎日走る"},
				Category:    models.CategoryHealth,
				Level:       models.LevelHabit,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantMinutes, action.EstimatedMinutes)
			assert.Equal(t, tt.wantType, action.ActionType)
			assert.Equal(t, "靴を出す", action.Description)
		})
	}
}

func TestDesignActionMissingTitle(t *testing.T) {
	fake := newFake(map[stage]answer{
		stageAction: {text: `{"initialActionDescription":"something","estimatedMinutes":5}`},
	})
	o := newOrchestrator(t, fake)

	_, err := o.DesignAction(context.Background(), prompts.ActionInput{Declaration: models.Declaration{Text: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrMalformedOutput)
}

func TestDesignActionUsesActionSettings(t *testing.T) {
	fake := newFake(map[stage]answer{stageAction: {text: goodAction}})
	o := newOrchestrator(t, fake)

	_, err := o.DesignAction(context.Background(), prompts.ActionInput{Declaration: models.Declaration{Text: "英語"}})
	require.NoError(t, err)

	req := fake.reqs[stageAction]
	assert.Equal(t, 0.4, req.Temperature)
	assert.Equal(t, 3, req.MaxRetries)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		answer     answer
		wantCat    models.Category
		wantMethod models.Method
		wantOK     bool
	}{
		{"keyword", "ブログを書く", answer{}, models.CategoryPublishing, models.MethodRule, true},
		{"model english id", "起業して成功する", answer{text: `{"category":"Business","reason":"r"}`}, models.CategoryBusiness, models.MethodAI, true},
		{"model japanese label", "起業して成功する", answer{text: `{"category":"人間関係系","reason":"r"}`}, models.CategoryRelationship, models.MethodAI, true},
		{"unknown category", "起業して成功する", answer{text: `{"category":"スポーツ系"}`}, models.CategoryLearning, models.MethodFallback, true},
		{"missing category", "起業して成功する", answer{text: `{"reason":"r"}`}, models.CategoryLearning, models.MethodFallback, true},
		{"malformed", "起業して成功する", answer{text: "no json here"}, models.CategoryLearning, models.MethodFallback, false},
		{"upstream down", "起業して成功する", answer{err: llm.ErrUnavailable}, models.CategoryLearning, models.MethodFallback, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, newFake(map[stage]answer{stageClassify: tt.answer}))
			res, err := o.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCat, res.Category)
			assert.Equal(t, tt.wantMethod, res.Method)
			assert.Equal(t, tt.wantOK, res.Success)
		})
	}
}

func TestAssessDifficulty(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		answer     answer
		wantLevel  models.DifficultyLevel
		wantMethod models.Method
		wantOK     bool
	}{
		{"habit rule", "毎日10分ストレッチ", answer{}, models.LevelHabit, models.MethodRule, true},
		{"numeric rule", "TOEIC 800点を取る", answer{}, models.LevelGrowth, models.MethodRule, true},
		{"life change rule", "転職する", answer{}, models.LevelLifeChange, models.MethodRule, true},
		{"model", "ピアノを弾けるようになる", answer{text: `{"difficultyLevel": 3, "reason": "r"}`}, models.LevelLifeChange, models.MethodAI, true},
		{"model string level", "ピアノを弾けるようになる", answer{text: `{"difficultyLevel": "1"}`}, models.LevelHabit, models.MethodAI, true},
		{"out of range", "ピアノを弾けるようになる", answer{text: `{"difficultyLevel": 7}`}, models.LevelGrowth, models.MethodFallback, true},
		{"upstream down", "ピアノを弾けるようになる", answer{err: errors.New("boom")}, models.LevelGrowth, models.MethodFallback, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, newFake(map[stage]answer{stageDifficulty: tt.answer}))
			res, err := o.AssessDifficulty(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, res.Level)
			assert.Equal(t, tt.wantMethod, res.Method)
			assert.Equal(t, tt.wantOK, res.Success)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		fake := newFake(nil)
		o := newOrchestrator(t, fake)
		res, err := o.Validate(context.Background(), "あ")
		require.NoError(t, err)
		assert.False(t, res.IsValid)
		assert.Equal(t, models.MethodRule, res.Method)
		assert.Empty(t, fake.Calls())
	})

	t.Run("model says concrete", func(t *testing.T) {
		o := newOrchestrator(t, newFake(map[stage]answer{
			stageValidation: {text: `{"isConcrete": true, "reason": "数値がある", "improvedExample": ""}`},
		}))
		res, err := o.Validate(context.Background(), "JSを一日30分勉強する")
		require.NoError(t, err)
		assert.True(t, res.IsValid)
		assert.Equal(t, models.MethodAI, res.Method)
		assert.Equal(t, "数値がある", res.Reason)
	})

	t.Run("model says concrete with improvement", func(t *testing.T) {
		o := newOrchestrator(t, newFake(map[stage]answer{
			stageValidation: {text: `{"isConcrete": true, "reason": "行動は明確だが量が曖昧", "improvedExample": "Goを毎日30分学ぶ"}`},
		}))
		res, err := o.Validate(context.Background(), "Goを学ぶ")
		require.NoError(t, err)
		assert.True(t, res.IsValid)
		assert.Equal(t, "Looks concrete", res.Message)
		assert.Equal(t, "Goを毎日30分学ぶ", res.ImprovedExample)
	})

	t.Run("model says abstract", func(t *testing.T) {
		o := newOrchestrator(t, newFake(map[stage]answer{
			stageValidation: {text: `{"isConcrete": false, "reason": "抽象的", "improvedExample": "毎日10分走る"}`},
		}))
		res, err := o.Validate(context.Background(), "頑張る")
		require.NoError(t, err)
		assert.False(t, res.IsValid)
		assert.Equal(t, "毎日10分走る", res.ImprovedExample)
	})

	t.Run("fallback to rules", func(t *testing.T) {
		o := newOrchestrator(t, failingCompleter{})

		res, err := o.Validate(context.Background(), "頑張る")
		require.NoError(t, err)
		assert.False(t, res.IsValid)
		assert.Equal(t, models.MethodFallback, res.Method)

		res, err = o.Validate(context.Background(), "腕立てを毎日10回する")
		require.NoError(t, err)
		assert.True(t, res.IsValid)
		assert.Equal(t, models.MethodFallback, res.Method)
	})

	t.Run("empty", func(t *testing.T) {
		o := newOrchestrator(t, failingCompleter{})
		_, err := o.Validate(context.Background(), "")
		assert.ErrorIs(t, err, ErrMissingInput)
	})
}

func TestConcretize(t *testing.T) {
	o := newOrchestrator(t, newFake(map[stage]answer{
		stageConcretize: {text: "```json\n{\"title\":\"毎朝30分英単語\",\"description\":\"単語帳で30語\",\"metric\":\"30語\",\"deadlineSuggestion\":\"1ヶ月\"}\n```"},
	}))
	got, err := o.Concretize(context.Background(), "英語を頑張る")
	require.NoError(t, err)
	assert.Equal(t, models.Concretization{
		Title:              "毎朝30分英単語",
		Description:        "単語帳で30語",
		Metric:             "30語",
		DeadlineSuggestion: "1ヶ月",
	}, got)

	o = newOrchestrator(t, failingCompleter{})
	_, err = o.Concretize(context.Background(), "英語を頑張る")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

func TestSuggest(t *testing.T) {
	fake := newFake(map[stage]answer{stageSuggestion: {text: "\n「参考書を1ページ開く」\n余計な説明"}})
	o := newOrchestrator(t, fake)

	res, err := o.Suggest(context.Background(), "資格を取る")
	require.NoError(t, err)
	assert.Equal(t, "参考書を1ページ開く", res.Suggestion)
	assert.False(t, res.Fallback)

	req := fake.reqs[stageSuggestion]
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 200, req.MaxTokens)
	assert.Equal(t, 0, req.MaxRetries)

	o = newOrchestrator(t, failingCompleter{})
	res, err = o.Suggest(context.Background(), "資格を取る")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.NotEmpty(t, res.Suggestion)
}

func TestCoach(t *testing.T) {
	fake := newFake(map[stage]answer{stageCoach: {text: "「ノートに1行だけ書く」\n理由：小さく始める"}})
	o := newOrchestrator(t, fake)

	res, err := o.Coach(context.Background(), prompts.CoachInput{Goal: "小説を書く", Fear: "続かない", Type: models.CoachStuck})
	require.NoError(t, err)
	assert.Equal(t, "ノートに1行だけ書く", res.Suggestion)
	assert.False(t, res.Fallback)

	req := fake.reqs[stageCoach]
	assert.Contains(t, req.User(), "停滞している")
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 200, req.MaxTokens)
	assert.Equal(t, 0, req.MaxRetries)
}

func TestCoachFallback(t *testing.T) {
	o := newOrchestrator(t, failingCompleter{})

	tests := []struct {
		typ  models.CoachType
		want string
	}{
		{"", "まずはブログの準備をする"},
		{models.CoachRetry, "2分でブログを開くだけ"},
		{models.CoachStuck, "今日はブログを5分だけ見る"},
	}
	for _, tt := range tests {
		res, err := o.Coach(context.Background(), prompts.CoachInput{Goal: "ブログ、毎週更新", Type: tt.typ})
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		assert.Equal(t, tt.want, res.Suggestion)
	}
}

func TestCoachRejectsBadInput(t *testing.T) {
	o := newOrchestrator(t, failingCompleter{})

	_, err := o.Coach(context.Background(), prompts.CoachInput{Goal: " "})
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = o.Coach(context.Background(), prompts.CoachInput{Goal: "走る", Type: "someday"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSuggestActionFallsBackToCategoryAction(t *testing.T) {
	o := newOrchestrator(t, failingCompleter{})

	res, err := o.SuggestAction(context.Background(), prompts.ActionInput{
		Declaration: models.Declaration{Text: "英語を勉強する"},
		Category:    models.CategoryLearning,
		Level:       9,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Fallback)
	assert.Equal(t, fallback.CategoryAction(models.CategoryLearning, "英語を勉強する"), res.Action)
}

func TestOrchestratorIsSafeForConcurrentUse(t *testing.T) {
	fake := newFake(map[stage]answer{
		stageConcreteness: {text: `{"isConcrete": true, "refinedChallenge": {"title": "t", "description": "d"}}`},
		stageAction:       {text: goodAction},
	})
	o := newOrchestrator(t, fake)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			design, err := o.Design(context.Background(), models.Declaration{Text: "英語を毎日30分勉強する"}, nil)
			assert.NoError(t, err)
			assert.True(t, design.Success)
		}()
	}
	wg.Wait()
}
