package models

// DifficultyLevel grades how big a change the challenge asks for
type DifficultyLevel int

const (
	LevelHabit      DifficultyLevel = 1
	LevelGrowth     DifficultyLevel = 2
	LevelLifeChange DifficultyLevel = 3
)

// Valid reports whether the level is 1, 2 or 3
func (l DifficultyLevel) Valid() bool {
	return l >= LevelHabit && l <= LevelLifeChange
}

// Name returns the level name (Habit, Growth, Life-change)
func (l DifficultyLevel) Name() string {
	switch l {
	case LevelHabit:
		return "Habit"
	case LevelGrowth:
		return "Growth"
	case LevelLifeChange:
		return "Life-change"
	}
	return ""
}

// Weight returns the short weight label the client renders next to the level
func (l DifficultyLevel) Weight() string {
	switch l {
	case LevelHabit:
		return "light"
	case LevelGrowth:
		return "medium"
	case LevelLifeChange:
		return "heavy"
	}
	return ""
}

// ClampLevel maps anything outside 1..3 to Growth
func ClampLevel(l DifficultyLevel) DifficultyLevel {
	if !l.Valid() {
		return LevelGrowth
	}
	return l
}
