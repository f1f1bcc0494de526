package learning_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stockquest/stockquest/internal/learning"
	"github.com/stockquest/stockquest/internal/model"
	"github.com/stockquest/stockquest/internal/store"
)

// fakeClock is a settable clock for streak tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestEngine(t *testing.T, catalog *learning.Catalog) (*learning.Engine, *fakeClock) {
	t.Helper()
	if catalog == nil {
		catalog = learning.DefaultCatalog()
	}
	clock := &fakeClock{now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	return learning.NewEngine(store.NewMemoryStore(), catalog, clock.Now), clock
}

// passingAnswers returns a perfect answer sheet for the module's quiz.
func passingAnswers(m *model.LearningModule) []int {
	answers := make([]int, len(m.Quiz.Questions))
	for i, q := range m.Quiz.Questions {
		answers[i] = q.CorrectAnswer
	}
	return answers
}

func completeAllLessons(t *testing.T, e *learning.Engine, userID, moduleID string, m *model.LearningModule) {
	t.Helper()
	for _, l := range m.Lessons {
		if _, err := e.CompleteLesson(context.Background(), userID, moduleID, l.ID); err != nil {
			t.Fatalf("complete lesson %s/%s: %v", moduleID, l.ID, err)
		}
	}
}

func passModule(t *testing.T, e *learning.Engine, userID, moduleID string, catalog *learning.Catalog) {
	t.Helper()
	m := catalog.Module(moduleID)
	if m == nil {
		t.Fatalf("module %s not in catalog", moduleID)
	}
	res, err := e.SubmitQuiz(context.Background(), userID, moduleID, passingAnswers(m))
	if err != nil {
		t.Fatalf("submit quiz %s: %v", moduleID, err)
	}
	if !res.Passed {
		t.Fatalf("expected passing result for %s, got score %d", moduleID, res.Score)
	}
}

func TestProgress_SeedsFromCatalog(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	lp, err := e.Progress(context.Background(), "u1")
	if err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	if len(lp.Achievements) != 6 {
		t.Errorf("expected 6 seeded achievements, got %d", len(lp.Achievements))
	}
	if lp.Coins != 0 || lp.XP != 0 {
		t.Errorf("fresh progress should have no rewards, got coins=%d xp=%d", lp.Coins, lp.XP)
	}
	if lp.Level() != 1 {
		t.Errorf("fresh progress should be level 1, got %d", lp.Level())
	}
}

func TestModules_InitialStatuses(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	modules, err := e.Modules(context.Background(), "u1")
	if err != nil {
		t.Fatalf("modules failed: %v", err)
	}

	statuses := map[string]model.ModuleStatus{}
	for _, m := range modules {
		statuses[m.ID] = m.Status
	}
	if statuses["stock-basics"] != model.ModuleUnlocked {
		t.Errorf("stock-basics should start UNLOCKED, got %s", statuses["stock-basics"])
	}
	for _, id := range []string{"order-types", "diversification", "reading-pnl"} {
		if statuses[id] != model.ModuleLocked {
			t.Errorf("%s should start LOCKED, got %s", id, statuses[id])
		}
	}
}

func TestCompleteLesson(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	m, err := e.CompleteLesson(context.Background(), "u1", "stock-basics", "what-is-a-stock")
	if err != nil {
		t.Fatalf("complete lesson failed: %v", err)
	}
	if m.Status != model.ModuleInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", m.Status)
	}
	// 1 of 3 lessons: 1×70/3 = 23.
	if m.Progress != 23 {
		t.Errorf("expected progress 23, got %d", m.Progress)
	}
	if !m.Lessons[0].Completed {
		t.Error("lesson should be flagged completed in the module view")
	}

	lp, _ := e.Progress(context.Background(), "u1")
	if lp.LessonsCompleted != 1 {
		t.Errorf("expected 1 lesson completed, got %d", lp.LessonsCompleted)
	}
	if lp.CurrentStreak != 1 {
		t.Errorf("first activity should start a 1-day streak, got %d", lp.CurrentStreak)
	}
}

func TestCompleteLesson_Idempotent(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	for i := 0; i < 3; i++ {
		if _, err := e.CompleteLesson(context.Background(), "u1", "stock-basics", "what-is-a-stock"); err != nil {
			t.Fatalf("attempt %d failed: %v", i, err)
		}
	}

	lp, _ := e.Progress(context.Background(), "u1")
	if lp.LessonsCompleted != 1 {
		t.Errorf("re-completing must not double-count, got %d", lp.LessonsCompleted)
	}
}

func TestCompleteLesson_Errors(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := e.CompleteLesson(ctx, "u1", "no-such-module", "x"); !errors.Is(err, model.ErrModuleNotFound) {
		t.Errorf("expected ErrModuleNotFound, got %v", err)
	}
	if _, err := e.CompleteLesson(ctx, "u1", "stock-basics", "no-such-lesson"); !errors.Is(err, model.ErrLessonNotFound) {
		t.Errorf("expected ErrLessonNotFound, got %v", err)
	}
	if _, err := e.CompleteLesson(ctx, "u1", "order-types", "market-orders"); !errors.Is(err, model.ErrModuleLocked) {
		t.Errorf("expected ErrModuleLocked for unmet prerequisites, got %v", err)
	}
}

func TestCompleteLesson_UnlocksFirstAchievement(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	_, err := e.CompleteLesson(context.Background(), "u1", "stock-basics", "what-is-a-stock")
	if err != nil {
		t.Fatalf("complete lesson failed: %v", err)
	}

	achievements, _ := e.Achievements(context.Background(), "u1")
	var first *model.Achievement
	for i := range achievements {
		if achievements[i].ID == "first-lesson" {
			first = &achievements[i]
		}
	}
	if first == nil || !first.Unlocked {
		t.Fatal("first-lesson should unlock after one lesson")
	}
	if first.UnlockedAt == nil {
		t.Error("unlocked achievement must carry a timestamp")
	}

	lp, _ := e.Progress(context.Background(), "u1")
	if lp.Coins != 25 || lp.XP != 50 {
		t.Errorf("expected first-lesson rewards 25/50, got coins=%d xp=%d", lp.Coins, lp.XP)
	}
}

func TestSubmitQuiz_PerfectScore(t *testing.T) {
	catalog := learning.DefaultCatalog()
	e, _ := newTestEngine(t, catalog)

	res, err := e.SubmitQuiz(context.Background(), "u1", "stock-basics", passingAnswers(catalog.Module("stock-basics")))
	if err != nil {
		t.Fatalf("submit quiz failed: %v", err)
	}
	if !res.Passed || res.Score != 100 {
		t.Fatalf("expected pass at 100, got passed=%v score=%d", res.Passed, res.Score)
	}
	if res.CoinsEarned != 100 {
		t.Errorf("expected module coin reward 100, got %d", res.CoinsEarned)
	}
	if res.XPEarned != 200 {
		t.Errorf("expected quiz XP bonus 200, got %d", res.XPEarned)
	}

	unlocked := map[string]bool{}
	for _, a := range res.Unlocked {
		unlocked[a.ID] = true
	}
	if !unlocked["quiz-champion"] || !unlocked["perfectionist"] {
		t.Errorf("expected quiz-champion and perfectionist to unlock, got %v", res.Unlocked)
	}

	lp, _ := e.Progress(context.Background(), "u1")
	// 100 module + 50 champion + 100 perfectionist.
	if lp.Coins != 250 {
		t.Errorf("expected 250 coins, got %d", lp.Coins)
	}
	// 200 bonus + 100 champion + 150 perfectionist.
	if lp.XP != 450 {
		t.Errorf("expected 450 XP, got %d", lp.XP)
	}
	found := false
	for _, id := range lp.BonusContentIDs {
		if id == "bonus-candlestick-patterns" {
			found = true
		}
	}
	if !found {
		t.Error("perfectionist should grant its bonus content")
	}
}

func TestSubmitQuiz_FailingScore(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	res, err := e.SubmitQuiz(context.Background(), "u1", "stock-basics", []int{3, 3, 3})
	if err != nil {
		t.Fatalf("a failing quiz is not an error: %v", err)
	}
	if res.Passed {
		t.Error("all-wrong answers must not pass")
	}
	if res.Score != 0 {
		t.Errorf("expected score 0, got %d", res.Score)
	}
	if res.CoinsEarned != 0 || res.XPEarned != 0 {
		t.Errorf("failing quiz must not grant rewards, got %d/%d", res.CoinsEarned, res.XPEarned)
	}

	lp, _ := e.Progress(context.Background(), "u1")
	if lp.QuizAttempts["stock-basics"] != 1 {
		t.Errorf("attempt must be recorded, got %d", lp.QuizAttempts["stock-basics"])
	}
	if lp.QuizScores["stock-basics"] != 0 {
		t.Errorf("last score must be recorded, got %d", lp.QuizScores["stock-basics"])
	}
	if lp.HasCompletedModule("stock-basics") {
		t.Error("failing quiz must not complete the module")
	}
}

func TestSubmitQuiz_AnswerCountMismatch(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	_, err := e.SubmitQuiz(context.Background(), "u1", "stock-basics", []int{1})
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSubmitQuiz_RewardsGrantedOnce(t *testing.T) {
	catalog := learning.DefaultCatalog()
	e, _ := newTestEngine(t, catalog)
	answers := passingAnswers(catalog.Module("stock-basics"))

	first, err := e.SubmitQuiz(context.Background(), "u1", "stock-basics", answers)
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	second, err := e.SubmitQuiz(context.Background(), "u1", "stock-basics", answers)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if second.CoinsEarned != 0 || second.XPEarned != 0 || len(second.Unlocked) != 0 {
		t.Errorf("repeat pass must not grant rewards again, got %+v", second)
	}
	if !second.Passed || second.Score != first.Score {
		t.Errorf("repeat pass should still report the result, got %+v", second)
	}

	lp, _ := e.Progress(context.Background(), "u1")
	if lp.ModulesCompleted != 1 {
		t.Errorf("module completed exactly once, got %d", lp.ModulesCompleted)
	}
	if lp.QuizAttempts["stock-basics"] != 2 {
		t.Errorf("both attempts recorded, got %d", lp.QuizAttempts["stock-basics"])
	}
}

func TestSubmitQuiz_PartialScorePasses(t *testing.T) {
	// Ten questions with answer index 0; eight right out of ten is 80,
	// above the 70 cutoff.
	questions := make([]model.QuizQuestion, 10)
	for i := range questions {
		questions[i] = model.QuizQuestion{
			ID:            fmt.Sprintf("q%d", i+1),
			Question:      "pick the first option",
			Options:       []string{"right", "wrong"},
			CorrectAnswer: 0,
		}
	}
	catalog := &learning.Catalog{
		Modules: []model.LearningModule{{
			ID:         "big-quiz",
			Title:      "Big Quiz",
			CoinReward: 100,
			Quiz:       model.Quiz{MinPassingScore: 70, Questions: questions},
		}},
		Achievements: learning.DefaultCatalog().Achievements,
	}
	e, _ := newTestEngine(t, catalog)

	answers := make([]int, 10)
	answers[3] = 1
	answers[7] = 1

	res, err := e.SubmitQuiz(context.Background(), "u1", "big-quiz", answers)
	if err != nil {
		t.Fatalf("submit quiz failed: %v", err)
	}
	if !res.Passed || res.Score != 80 {
		t.Fatalf("expected pass at 80, got passed=%v score=%d", res.Passed, res.Score)
	}

	modules, _ := e.Modules(context.Background(), "u1")
	if modules[0].Status != model.ModuleCompleted || modules[0].Progress != 100 {
		t.Errorf("passed module should be COMPLETED at 100, got %s/%d", modules[0].Status, modules[0].Progress)
	}

	lp, _ := e.Progress(context.Background(), "u1")
	if lp.PerfectScores != 0 {
		t.Errorf("80 is not a perfect score, got %d", lp.PerfectScores)
	}
}

func TestPassingQuizUnlocksDependents(t *testing.T) {
	catalog := learning.DefaultCatalog()
	e, _ := newTestEngine(t, catalog)

	passModule(t, e, "u1", "stock-basics", catalog)

	modules, _ := e.Modules(context.Background(), "u1")
	statuses := map[string]model.ModuleStatus{}
	for _, m := range modules {
		statuses[m.ID] = m.Status
	}
	if statuses["order-types"] != model.ModuleUnlocked {
		t.Errorf("order-types should unlock after stock-basics, got %s", statuses["order-types"])
	}
	// diversification needs order-types, which is still incomplete.
	if statuses["diversification"] != model.ModuleLocked {
		t.Errorf("diversification should stay locked, got %s", statuses["diversification"])
	}
}

func TestGraduateAfterAllModules(t *testing.T) {
	catalog := learning.DefaultCatalog()
	e, _ := newTestEngine(t, catalog)

	for _, id := range []string{"stock-basics", "order-types", "diversification", "reading-pnl"} {
		passModule(t, e, "u1", id, catalog)
	}

	achievements, _ := e.Achievements(context.Background(), "u1")
	for _, a := range achievements {
		if a.ID == "graduate" && !a.Unlocked {
			t.Error("graduate should unlock after all four modules")
		}
	}
	lp, _ := e.Progress(context.Background(), "u1")
	found := false
	for _, id := range lp.BonusContentIDs {
		if id == "bonus-options-primer" {
			found = true
		}
	}
	if !found {
		t.Error("graduate should grant its bonus content")
	}
}

func TestStreaks(t *testing.T) {
	catalog := learning.DefaultCatalog()
	e, clock := newTestEngine(t, catalog)
	ctx := context.Background()

	day := func(d int) time.Time {
		return time.Date(2025, 6, d, 9, 0, 0, 0, time.UTC)
	}

	// Day 2: two lessons on the same day count once.
	clock.now = day(2)
	e.CompleteLesson(ctx, "u1", "stock-basics", "what-is-a-stock")
	clock.now = day(2).Add(8 * time.Hour)
	e.CompleteLesson(ctx, "u1", "stock-basics", "how-exchanges-work")
	lp, _ := e.Progress(ctx, "u1")
	if lp.CurrentStreak != 1 {
		t.Fatalf("same-day activity keeps streak at 1, got %d", lp.CurrentStreak)
	}

	// Day 3 extends the streak.
	clock.now = day(3)
	e.CompleteLesson(ctx, "u1", "stock-basics", "reading-a-quote")
	lp, _ = e.Progress(ctx, "u1")
	if lp.CurrentStreak != 2 {
		t.Fatalf("next-day activity extends streak to 2, got %d", lp.CurrentStreak)
	}

	// Day 4 makes it three and unlocks on-a-roll.
	clock.now = day(4)
	passModule(t, e, "u1", "stock-basics", catalog)
	lp, _ = e.Progress(ctx, "u1")
	if lp.CurrentStreak != 3 {
		t.Fatalf("expected a 3-day streak, got %d", lp.CurrentStreak)
	}
	achievements, _ := e.Achievements(ctx, "u1")
	for _, a := range achievements {
		if a.ID == "on-a-roll" && !a.Unlocked {
			t.Error("on-a-roll should unlock at a 3-day streak")
		}
	}

	// Skipping a day resets the streak; the longest streak is kept.
	clock.now = day(6)
	e.CompleteLesson(ctx, "u1", "order-types", "market-orders")
	lp, _ = e.Progress(ctx, "u1")
	if lp.CurrentStreak != 1 {
		t.Errorf("a gap resets the streak to 1, got %d", lp.CurrentStreak)
	}
	if lp.LongestStreak != 3 {
		t.Errorf("longest streak should remain 3, got %d", lp.LongestStreak)
	}
}

func TestLoadCatalog_EmptyPathUsesDefault(t *testing.T) {
	c, err := learning.LoadCatalog("")
	if err != nil {
		t.Fatalf("empty path should load the built-in catalog: %v", err)
	}
	if len(c.Modules) != 4 || len(c.Achievements) != 6 {
		t.Errorf("built-in catalog should have 4 modules and 6 achievements, got %d/%d", len(c.Modules), len(c.Achievements))
	}
}

func TestLoadCatalog_File(t *testing.T) {
	content := `
modules:
  - id: custom-module
    title: Custom Module
    category: basics
    coin_reward: 50
    lessons:
      - id: l1
        title: Lesson One
        content: Some content.
        type: reading
    quiz:
      min_passing_score: 60
      questions:
        - id: q1
          question: Pick A.
          options: ["A", "B"]
          correct_answer: 0
`
	path := filepath.Join(t.TempDir(), "content.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := learning.LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog failed: %v", err)
	}
	m := c.Module("custom-module")
	if m == nil {
		t.Fatal("custom-module missing from loaded catalog")
	}
	if m.CoinReward != 50 || len(m.Lessons) != 1 || m.Quiz.MinPassingScore != 60 {
		t.Errorf("catalog fields not parsed: %+v", m)
	}
	// A content file without achievements falls back to the built-ins.
	if len(c.Achievements) != 6 {
		t.Errorf("expected default achievements, got %d", len(c.Achievements))
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	if _, err := learning.LoadCatalog("/nonexistent/content.yaml"); err == nil {
		t.Fatal("expected an error for a missing content file")
	}
}

func TestLoadCatalog_RejectsUngradableContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "quiz without questions",
			content: `
modules:
  - id: empty-quiz
    title: Empty Quiz
    quiz:
      min_passing_score: 60
      questions: []
`,
		},
		{
			name: "correct answer outside options",
			content: `
modules:
  - id: bad-answer
    title: Bad Answer
    quiz:
      min_passing_score: 60
      questions:
        - id: q1
          question: Pick A.
          options: ["A", "B"]
          correct_answer: 2
`,
		},
		{
			name: "negative correct answer",
			content: `
modules:
  - id: negative-answer
    title: Negative Answer
    quiz:
      min_passing_score: 60
      questions:
        - id: q1
          question: Pick A.
          options: ["A", "B"]
          correct_answer: -1
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "content.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := learning.LoadCatalog(path); err == nil {
				t.Fatal("expected the content file to be rejected")
			}
		})
	}
}

func TestSubmitQuiz_ModuleWithoutQuiz(t *testing.T) {
	catalog := &learning.Catalog{
		Modules: []model.LearningModule{{
			ID:    "no-quiz",
			Title: "No Quiz",
		}},
		Achievements: learning.DefaultCatalog().Achievements,
	}
	e, _ := newTestEngine(t, catalog)

	// An empty answer sheet matches the zero question count; grading it
	// would divide by zero, so the submission must be rejected outright.
	_, err := e.SubmitQuiz(context.Background(), "u1", "no-quiz", []int{})
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	lp, _ := e.Progress(context.Background(), "u1")
	if lp.QuizAttempts["no-quiz"] != 0 {
		t.Errorf("rejected submission must not count as an attempt, got %d", lp.QuizAttempts["no-quiz"])
	}
	if _, ok := lp.QuizScores["no-quiz"]; ok {
		t.Error("rejected submission must not record a score")
	}
}
