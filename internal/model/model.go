// Package model defines the core domain types shared across the engine.
// All monetary values use shopspring/decimal, never float64.
// Derived display metrics (percentages, scores) may be float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// PriceType selects how the execution price is determined.
type PriceType string

const (
	PriceMarket PriceType = "MARKET"
	PriceLimit  PriceType = "LIMIT"
)

// OrderStatus is the lifecycle state of an order. The simulation fills
// every accepted order immediately, so EXECUTED is the only terminal
// status an order in history can carry.
type OrderStatus string

const (
	OrderExecuted OrderStatus = "EXECUTED"
)

// Stock is an immutable market-data snapshot for one instrument,
// owned by the market provider. One snapshot per update cycle.
type Stock struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent float64         `json:"change_percent"`
	DayHigh       decimal.Decimal `json:"day_high"`
	DayLow        decimal.Decimal `json:"day_low"`
	Volume        int64           `json:"volume"`
	Sector        string          `json:"sector"`
}

// Position is a held quantity of one instrument plus its cost basis.
// Created on first BUY; removed when quantity reaches zero.
type Position struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Quantity      int64           `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	PnLPercent    float64         `json:"pnl_percent"`
	Sector        string          `json:"sector"`
}

// Order is an immutable record of an executed order. Appended to the
// portfolio's history at placement time, never modified.
type Order struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Quantity  int64           `json:"quantity"`
	PriceType PriceType       `json:"price_type"`
	Price     decimal.Decimal `json:"price"` // execution price
	Brokerage decimal.Decimal `json:"brokerage"`
	Total     decimal.Decimal `json:"total"` // qty×price + brokerage (BUY) or − brokerage (SELL)
	Status    OrderStatus     `json:"status"`
	PlacedAt  time.Time       `json:"placed_at"`
}

// Portfolio is the authoritative in-memory ledger for one user session:
// cash, positions unique by symbol, and append-only order history.
type Portfolio struct {
	UserID    string          `json:"user_id"`
	Cash      decimal.Decimal `json:"cash"`
	Positions []Position      `json:"positions"`
	Orders    []Order         `json:"orders"` // insertion order = chronological
	UpdatedAt time.Time       `json:"updated_at"`
}

// TotalValue returns cash plus the sum of position current values.
func (p *Portfolio) TotalValue() decimal.Decimal {
	total := p.Cash
	for i := range p.Positions {
		total = total.Add(p.Positions[i].CurrentValue)
	}
	return total
}

// TotalPnL returns the sum of unrealized P&L across positions.
func (p *Portfolio) TotalPnL() decimal.Decimal {
	total := decimal.Zero
	for i := range p.Positions {
		total = total.Add(p.Positions[i].UnrealizedPnL)
	}
	return total
}

// Position returns a pointer to the position for symbol, or nil.
func (p *Portfolio) Position(symbol string) *Position {
	for i := range p.Positions {
		if p.Positions[i].Symbol == symbol {
			return &p.Positions[i]
		}
	}
	return nil
}

// ModuleStatus is the learning-module state machine.
// LOCKED → UNLOCKED → IN_PROGRESS → COMPLETED.
type ModuleStatus string

const (
	ModuleLocked     ModuleStatus = "LOCKED"
	ModuleUnlocked   ModuleStatus = "UNLOCKED"
	ModuleInProgress ModuleStatus = "IN_PROGRESS"
	ModuleCompleted  ModuleStatus = "COMPLETED"
)

// Lesson is one unit of module content. Completed is monotonic.
type Lesson struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Content   string `json:"content" yaml:"content"`
	Type      string `json:"type" yaml:"type"` // "reading", "video", "interactive"
	Completed bool   `json:"completed" yaml:"-"`
}

// QuizQuestion is a single multiple-choice question.
type QuizQuestion struct {
	ID            string   `json:"id" yaml:"id"`
	Question      string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correct_answer" yaml:"correct_answer"`
	Explanation   string   `json:"explanation" yaml:"explanation"`
	Difficulty    string   `json:"difficulty" yaml:"difficulty"`
}

// Quiz holds a module's questions and attempt state.
type Quiz struct {
	Questions       []QuizQuestion `json:"questions" yaml:"questions"`
	MinPassingScore int            `json:"min_passing_score" yaml:"min_passing_score"`
	Passed          bool           `json:"passed" yaml:"-"`
	LastScore       int            `json:"last_score" yaml:"-"`
	Attempts        int            `json:"attempts" yaml:"-"`
}

// LearningModule is one course unit with ordered lessons and a quiz.
type LearningModule struct {
	ID            string       `json:"id" yaml:"id"`
	Title         string       `json:"title" yaml:"title"`
	Description   string       `json:"description" yaml:"description"`
	Category      string       `json:"category" yaml:"category"`
	Difficulty    string       `json:"difficulty" yaml:"difficulty"` // "beginner", "intermediate", "advanced"
	Prerequisites []string     `json:"prerequisites" yaml:"prerequisites"`
	CoinReward    int          `json:"coin_reward" yaml:"coin_reward"`
	Lessons       []Lesson     `json:"lessons" yaml:"lessons"`
	Quiz          Quiz         `json:"quiz" yaml:"quiz"`
	Status        ModuleStatus `json:"status" yaml:"-"`
	Progress      int          `json:"progress" yaml:"-"` // 0–100
}

// Achievement is an unlockable reward. Unlocked is monotonic and
// UnlockedAt is immutable once set.
type Achievement struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Target       int        `json:"target"`
	Progress     int        `json:"progress"` // frozen at unlock time
	CoinReward   int        `json:"coin_reward"`
	XPReward     int        `json:"xp_reward"`
	BonusContent string     `json:"bonus_content,omitempty"`
	Unlocked     bool       `json:"unlocked"`
	UnlockedAt   *time.Time `json:"unlocked_at,omitempty"`
}

// LearningProgress aggregates one user's learning state.
type LearningProgress struct {
	UserID             string         `json:"user_id"`
	Coins              int            `json:"coins"`
	XP                 int            `json:"xp"`
	ModulesCompleted   int            `json:"modules_completed"`
	QuizzesPassed      int            `json:"quizzes_passed"`
	LessonsCompleted   int            `json:"lessons_completed"`
	PerfectScores      int            `json:"perfect_scores"`
	CurrentStreak      int            `json:"current_streak"`
	LongestStreak      int            `json:"longest_streak"`
	LastActivityDate   time.Time      `json:"last_activity_date"`
	CompletedModuleIDs []string       `json:"completed_module_ids"`
	CompletedLessonIDs []string       `json:"completed_lesson_ids"`
	QuizAttempts       map[string]int `json:"quiz_attempts"` // moduleID → attempts
	QuizScores         map[string]int `json:"quiz_scores"`   // moduleID → last score
	Achievements       []Achievement  `json:"achievements"`
	BonusContentIDs    []string       `json:"bonus_content_ids"`
	ByCategory         map[string]int `json:"by_category"` // category → modules completed
}

// Level derives the user level from XP. Never stored independently.
func (lp *LearningProgress) Level() int {
	return lp.XP/500 + 1
}

// HasCompletedModule reports whether moduleID is in the completed set.
func (lp *LearningProgress) HasCompletedModule(moduleID string) bool {
	for _, id := range lp.CompletedModuleIDs {
		if id == moduleID {
			return true
		}
	}
	return false
}

// HasCompletedLesson reports whether lessonID is in the completed set.
func (lp *LearningProgress) HasCompletedLesson(lessonID string) bool {
	for _, id := range lp.CompletedLessonIDs {
		if id == lessonID {
			return true
		}
	}
	return false
}

// LeaderboardEntry is one ranked user on the social leaderboard.
type LeaderboardEntry struct {
	Rank           int             `json:"rank"`
	UserID         string          `json:"user_id"`
	Username       string          `json:"username"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	ReturnPercent  float64         `json:"return_percent"`
	Badges         []string        `json:"badges"`
	IsCurrentUser  bool            `json:"is_current_user,omitempty"`
}

// Competition is a time-boxed trading contest.
type Competition struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	PrizeCoins   int       `json:"prize_coins"`
	Participants int       `json:"participants"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
}

// Insight is one AI-generated (or fallback-generated) portfolio insight.
type Insight struct {
	Type        string `json:"type"` // "tip", "warning", "opportunity"
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action,omitempty"`
}
