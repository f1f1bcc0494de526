package learning

import (
	"log/slog"
	"time"

	"github.com/stockquest/stockquest/internal/model"
)

// Event names fed to achievement predicates.
const (
	EventLessonCompleted = "lesson_completed"
	EventQuizPassed      = "quiz_passed"
)

// Event carries the triggering action and auxiliary data for
// achievement evaluation.
type Event struct {
	Name  string
	Score int
}

// predicate inspects the current progress and event and returns the
// achievement's progress counter. Unlock happens when the counter
// reaches the achievement's target.
type predicate func(lp *model.LearningProgress, ev Event) int

// predicates is the table keyed by achievement id. An achievement with
// no entry never unlocks, which lets content files ship decorative
// achievements ahead of their logic.
var predicates = map[string]predicate{
	"first-lesson": func(lp *model.LearningProgress, ev Event) int {
		return lp.LessonsCompleted
	},
	"bookworm": func(lp *model.LearningProgress, ev Event) int {
		return lp.LessonsCompleted
	},
	"quiz-champion": func(lp *model.LearningProgress, ev Event) int {
		return lp.QuizzesPassed
	},
	"perfectionist": func(lp *model.LearningProgress, ev Event) int {
		return lp.PerfectScores
	},
	"on-a-roll": func(lp *model.LearningProgress, ev Event) int {
		return lp.CurrentStreak
	},
	"graduate": func(lp *model.LearningProgress, ev Event) int {
		return lp.ModulesCompleted
	},
}

// evaluateAchievements re-runs every locked achievement's predicate and
// unlocks those whose progress reached the target. Unlocked achievements
// are never re-evaluated: Unlocked is monotonic, Progress is frozen at
// unlock time, and UnlockedAt is set exactly once.
func evaluateAchievements(lp *model.LearningProgress, ev Event, now time.Time) []model.Achievement {
	var unlocked []model.Achievement
	for i := range lp.Achievements {
		a := &lp.Achievements[i]
		if a.Unlocked {
			continue
		}
		pred, ok := predicates[a.ID]
		if !ok {
			continue
		}
		a.Progress = pred(lp, ev)
		if a.Progress < a.Target {
			continue
		}

		a.Progress = a.Target
		a.Unlocked = true
		ts := now
		a.UnlockedAt = &ts
		lp.Coins += a.CoinReward
		lp.XP += a.XPReward
		if a.BonusContent != "" {
			lp.BonusContentIDs = append(lp.BonusContentIDs, a.BonusContent)
		}
		unlocked = append(unlocked, *a)

		slog.Info("achievement unlocked",
			"user", lp.UserID,
			"achievement", a.ID,
			"coins", a.CoinReward,
			"xp", a.XPReward,
		)
	}
	return unlocked
}
