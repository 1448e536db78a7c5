// Package rules holds the deterministic keyword and pattern matchers that
// answer pipeline stages without calling the model. Every table is an ordered
// slice and the first matching entry wins.
package rules

import (
	"regexp"
	"strings"

	"github.com/terra-clan/challenge-designer/internal/models"
)

// categoryRule maps a keyword list onto a category
type categoryRule struct {
	category models.Category
	keywords []string
}

// categoryRules is checked top to bottom. 起業 is matched only by the
// difficulty tiers.
var categoryRules = []categoryRule{
	{models.CategoryLearning, []string{"英語", "勉強", "学習", "プログラミング", "資格", "スキル", "読書", "講座", "オンライン"}},
	{models.CategoryHealth, []string{"筋トレ", "ダイエット", "ランニング", "運動", "ジム", "ストレッチ", "ヨガ", "ウォーキング", "食事", "睡眠"}},
	{models.CategoryPublishing, []string{"投稿", "ブログ", "SNS", "X", "ツイート", "YouTube", "発信", "アウトプット", "公開"}},
	{models.CategoryCreative, []string{"アプリ", "開発", "小説", "イラスト", "絵", "音楽", "デザイン", "制作", "作成", "描く"}},
	{models.CategoryBusiness, []string{"営業", "仕事", "ビジネス", "コンテスト", "応募", "メール", "資料", "顧客"}},
	{models.CategoryRelationship, []string{"家族", "友人", "友達", "挨拶", "感謝", "話す", "連絡", "コミュニケーション", "人間関係"}},
}

// ClassifyByKeyword returns the first category with a keyword contained in text
func ClassifyByKeyword(text string) (models.Category, bool) {
	for _, rule := range categoryRules {
		if containsAny(text, rule.keywords) {
			return rule.category, true
		}
	}
	return "", false
}

// difficultyRule is one {predicate, result} row of the difficulty table
type difficultyRule struct {
	name  string
	level models.DifficultyLevel
	match func(string) bool
}

const digits = `[0-9０-９]`

var lifeChangeKeywords = []string{"起業", "プロになる", "独立", "海外移住", "転職", "退職", "結婚", "離婚", "出産"}

var habitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`毎日.*` + digits + `+分`),
	regexp.MustCompile(`週` + digits + `+回`),
	regexp.MustCompile(`日課`),
	regexp.MustCompile(`習慣`),
	regexp.MustCompile(`ルーティン`),
}

var numericGoalPatterns = []*regexp.Regexp{
	regexp.MustCompile(digits + `+(kg|ｋｇ|キロ)`),
	regexp.MustCompile(`TOEIC\s*` + digits + `+`),
	regexp.MustCompile(digits + `+点`),
	regexp.MustCompile(digits + `+[ヶヵかカ]月`),
	regexp.MustCompile(`週.*` + digits + `+回`),
}

// difficultyRules encodes the tier precedence: life change, then habit, then numeric goal
var difficultyRules = []difficultyRule{
	{"life_change_keyword", models.LevelLifeChange, func(s string) bool { return containsAny(s, lifeChangeKeywords) }},
	{"habit_pattern", models.LevelHabit, func(s string) bool { return matchesAny(s, habitPatterns) }},
	{"numeric_goal_pattern", models.LevelGrowth, func(s string) bool { return matchesAny(s, numericGoalPatterns) }},
}

// DifficultyByRule returns the level of the first tier that matches text
func DifficultyByRule(text string) (models.DifficultyLevel, bool) {
	level, _, ok := MatchDifficulty(text)
	return level, ok
}

// MatchDifficulty is DifficultyByRule that also names the matching tier
func MatchDifficulty(text string) (models.DifficultyLevel, string, bool) {
	for _, rule := range difficultyRules {
		if rule.match(text) {
			return rule.level, rule.name, true
		}
	}
	return 0, "", false
}

var vagueVerbs = []string{"頑張る", "がんばる", "努力する", "取り組む", "する", "やる", "try hard", "do my best", "work on"}

var concreteContent = regexp.MustCompile(digits)

// IsAbstract reports whether text leans on a vague verb without any
// quantity that would make it concrete.
func IsAbstract(text string) bool {
	if !containsAny(strings.ToLower(text), vagueVerbs) {
		return false
	}
	return !concreteContent.MatchString(text)
}

type suggestionRule struct {
	keyword    string
	suggestion string
}

var suggestionRules = []suggestionRule{
	{"プログラミング", "エディタを開いてHello Worldを書く"},
	{"勉強", "参考書を1ページ開く"},
	{"運動", "ウェアに着替えてストレッチをする"},
	{"読書", "本を1分間開く"},
	{"料理", "レシピを1つ読む"},
	{"掃除", "掃除機を1分かける"},
	{"英語", "英単語を1つ調べる"},
	{"音楽", "楽器を1分間触る"},
	{"絵", "鉛筆を1本用意する"},
}

// DefaultSuggestion is returned when no suggestion keyword matches
const DefaultSuggestion = "準備を1分間する"

// SuggestByKeyword returns a canned minimal step for the first matching keyword
func SuggestByKeyword(text string) string {
	for _, rule := range suggestionRules {
		if strings.Contains(text, rule.keyword) {
			return rule.suggestion
		}
	}
	return DefaultSuggestion
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
