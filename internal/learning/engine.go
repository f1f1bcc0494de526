package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/stockquest/stockquest/internal/model"
	"github.com/stockquest/stockquest/internal/store"
)

// Progress split between lessons and the quiz: completing every lesson
// raises module progress to the lesson ceiling; passing the quiz
// supplies the rest.
const (
	lessonProgressWeight = 70
	quizProgressWeight   = 30
	quizPassXPBonus      = 200
)

// QuizResult is returned from SubmitQuiz. A failing score is an expected
// outcome, not an error.
type QuizResult struct {
	Passed      bool                `json:"passed"`
	Score       int                 `json:"score"`
	CoinsEarned int                 `json:"coins_earned"`
	XPEarned    int                 `json:"xp_earned"`
	Unlocked    []model.Achievement `json:"achievements_unlocked,omitempty"`
}

// Engine is the learning-progress state machine for all users. Course
// content comes from the injected catalog; per-user state lives behind
// the store. The clock is injected so streak logic tests across day
// boundaries.
type Engine struct {
	store   store.Store
	catalog *Catalog
	clock   func() time.Time
	mu      sync.Mutex
}

// NewEngine creates a learning engine. clock defaults to time.Now when nil.
func NewEngine(st store.Store, catalog *Catalog, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{store: st, catalog: catalog, clock: clock}
}

// Progress loads the user's progress, seeding a fresh record with the
// catalog's achievement definitions on first use.
func (e *Engine) Progress(ctx context.Context, userID string) (*model.LearningProgress, error) {
	lp, err := e.store.GetProgress(ctx, userID)
	if errors.Is(err, model.ErrProgressNotFound) {
		lp = &model.LearningProgress{
			UserID:       userID,
			Achievements: append([]model.Achievement(nil), e.catalog.Achievements...),
			QuizAttempts: make(map[string]int),
			QuizScores:   make(map[string]int),
			ByCategory:   make(map[string]int),
		}
		if err := e.store.SaveProgress(ctx, lp); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	if lp.QuizAttempts == nil {
		lp.QuizAttempts = make(map[string]int)
	}
	if lp.QuizScores == nil {
		lp.QuizScores = make(map[string]int)
	}
	if lp.ByCategory == nil {
		lp.ByCategory = make(map[string]int)
	}
	return lp, nil
}

// Modules returns the catalog merged with the user's completion state:
// per-module status, progress percent, lesson flags, and quiz state.
func (e *Engine) Modules(ctx context.Context, userID string) ([]model.LearningModule, error) {
	lp, err := e.Progress(ctx, userID)
	if err != nil {
		return nil, err
	}

	modules := make([]model.LearningModule, 0, len(e.catalog.Modules))
	for i := range e.catalog.Modules {
		modules = append(modules, e.moduleView(&e.catalog.Modules[i], lp))
	}
	return modules, nil
}

// moduleView builds a user-specific copy of a catalog module.
func (e *Engine) moduleView(tpl *model.LearningModule, lp *model.LearningProgress) model.LearningModule {
	m := *tpl
	m.Lessons = append([]model.Lesson(nil), tpl.Lessons...)
	m.Quiz.Questions = append([]model.QuizQuestion(nil), tpl.Quiz.Questions...)

	done := 0
	for i := range m.Lessons {
		m.Lessons[i].Completed = lp.HasCompletedLesson(lessonKey(m.ID, m.Lessons[i].ID))
		if m.Lessons[i].Completed {
			done++
		}
	}
	m.Quiz.Attempts = lp.QuizAttempts[m.ID]
	m.Quiz.LastScore = lp.QuizScores[m.ID]
	m.Quiz.Passed = lp.HasCompletedModule(m.ID)

	switch {
	case lp.HasCompletedModule(m.ID):
		m.Status = model.ModuleCompleted
		m.Progress = 100
	case !prerequisitesMet(tpl, lp):
		m.Status = model.ModuleLocked
		m.Progress = 0
	case done > 0 || m.Quiz.Attempts > 0:
		m.Status = model.ModuleInProgress
		m.Progress = lessonProgress(done, len(m.Lessons))
	default:
		m.Status = model.ModuleUnlocked
		m.Progress = 0
	}
	return m
}

// prerequisitesMet reports whether every prerequisite id is in the
// user's completed set. Modules with no prerequisites start unlocked.
func prerequisitesMet(m *model.LearningModule, lp *model.LearningProgress) bool {
	for _, id := range m.Prerequisites {
		if !lp.HasCompletedModule(id) {
			return false
		}
	}
	return true
}

func lessonProgress(done, total int) int {
	if total == 0 {
		return 0
	}
	return done * lessonProgressWeight / total
}

// lessonKey namespaces lesson ids by module so content files can reuse
// lesson ids across modules.
func lessonKey(moduleID, lessonID string) string {
	return moduleID + "/" + lessonID
}

// CompleteLesson marks a lesson completed. Idempotent: re-completing an
// already-finished lesson changes nothing. Updates the streak and
// re-evaluates achievements on first completion.
func (e *Engine) CompleteLesson(ctx context.Context, userID, moduleID, lessonID string) (*model.LearningModule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tpl := e.catalog.Module(moduleID)
	if tpl == nil {
		return nil, model.ErrModuleNotFound
	}

	lp, err := e.Progress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !prerequisitesMet(tpl, lp) {
		return nil, fmt.Errorf("%w: complete %v first", model.ErrModuleLocked, tpl.Prerequisites)
	}

	found := false
	for i := range tpl.Lessons {
		if tpl.Lessons[i].ID == lessonID {
			found = true
			break
		}
	}
	if !found {
		return nil, model.ErrLessonNotFound
	}

	key := lessonKey(moduleID, lessonID)
	if !lp.HasCompletedLesson(key) {
		now := e.clock()
		lp.CompletedLessonIDs = append(lp.CompletedLessonIDs, key)
		lp.LessonsCompleted++
		updateStreak(lp, now)
		evaluateAchievements(lp, Event{Name: EventLessonCompleted}, now)

		if err := e.store.SaveProgress(ctx, lp); err != nil {
			return nil, err
		}
		slog.Info("lesson completed", "user", userID, "module", moduleID, "lesson", lessonID)
	}

	view := e.moduleView(tpl, lp)
	return &view, nil
}

// SubmitQuiz grades an answer sheet against the module's quiz. The
// answers slice must match the question count exactly; a mismatch is a
// caller error rejected before grading. A failing score returns
// {passed: false} with no error.
func (e *Engine) SubmitQuiz(ctx context.Context, userID, moduleID string, answers []int) (*QuizResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tpl := e.catalog.Module(moduleID)
	if tpl == nil {
		return nil, model.ErrModuleNotFound
	}

	lp, err := e.Progress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !prerequisitesMet(tpl, lp) {
		return nil, fmt.Errorf("%w: complete %v first", model.ErrModuleLocked, tpl.Prerequisites)
	}

	questions := tpl.Quiz.Questions
	if len(questions) == 0 {
		return nil, &model.ValidationError{
			Message: fmt.Sprintf("module %s has no quiz to grade", moduleID),
		}
	}
	if len(answers) != len(questions) {
		return nil, &model.ValidationError{
			Message: fmt.Sprintf("expected %d answers, got %d", len(questions), len(answers)),
		}
	}

	correct := 0
	for i, q := range questions {
		if answers[i] == q.CorrectAnswer {
			correct++
		}
	}
	score := int(math.Round(float64(correct) / float64(len(questions)) * 100))
	passed := score >= tpl.Quiz.MinPassingScore

	now := e.clock()
	lp.QuizAttempts[moduleID]++
	lp.QuizScores[moduleID] = score

	result := &QuizResult{Passed: passed, Score: score}

	// Rewards are granted exactly once, on the first passing submission.
	if passed && !lp.HasCompletedModule(moduleID) {
		lp.CompletedModuleIDs = append(lp.CompletedModuleIDs, moduleID)
		lp.ModulesCompleted++
		lp.QuizzesPassed++
		lp.Coins += tpl.CoinReward
		lp.XP += quizPassXPBonus
		lp.ByCategory[tpl.Category]++
		if score == 100 {
			lp.PerfectScores++
		}
		updateStreak(lp, now)

		result.CoinsEarned = tpl.CoinReward
		result.XPEarned = quizPassXPBonus
		result.Unlocked = evaluateAchievements(lp, Event{Name: EventQuizPassed, Score: score}, now)

		slog.Info("quiz passed",
			"user", userID,
			"module", moduleID,
			"score", score,
			"coins", tpl.CoinReward,
		)
	}

	if err := e.store.SaveProgress(ctx, lp); err != nil {
		return nil, err
	}
	return result, nil
}

// Achievements returns the user's achievement list.
func (e *Engine) Achievements(ctx context.Context, userID string) ([]model.Achievement, error) {
	lp, err := e.Progress(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lp.Achievements, nil
}

// updateStreak advances the day-based streak. Same calendar day as the
// last activity is a no-op; yesterday extends the streak; anything
// further back (or no history) resets it to 1. The calendar day boundary
// uses the timestamps' own locations.
func updateStreak(lp *model.LearningProgress, now time.Time) {
	switch {
	case lp.LastActivityDate.IsZero():
		lp.CurrentStreak = 1
	case sameDay(lp.LastActivityDate, now):
		return
	case sameDay(lp.LastActivityDate.AddDate(0, 0, 1), now):
		lp.CurrentStreak++
	default:
		lp.CurrentStreak = 1
	}
	lp.LastActivityDate = now
	if lp.CurrentStreak > lp.LongestStreak {
		lp.LongestStreak = lp.CurrentStreak
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
