// Package leaderboard ranks mock community traders alongside the current
// user's live portfolio value. The community data is static; there is
// no multi-user backend behind it.
package leaderboard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockquest/stockquest/internal/model"
)

// Provider serves the static community roster and competitions, merging
// in the requesting user's live numbers at rank time.
type Provider struct {
	roster   []model.LeaderboardEntry
	seedCash decimal.Decimal
	clock    func() time.Time
}

// NewProvider creates a leaderboard provider. seedCash is the starting
// cash every player begins with; return percentages are measured
// against it. clock defaults to time.Now when nil.
func NewProvider(seedCash decimal.Decimal, clock func() time.Time) *Provider {
	if clock == nil {
		clock = time.Now
	}
	return &Provider{
		roster:   mockRoster(),
		seedCash: seedCash,
		clock:    clock,
	}
}

// Rank returns the leaderboard with the current user's live portfolio
// value merged in, sorted by portfolio value descending.
func (p *Provider) Rank(userID, username string, portfolioValue decimal.Decimal) []model.LeaderboardEntry {
	entries := append([]model.LeaderboardEntry(nil), p.roster...)

	returnPct := 0.0
	if p.seedCash.IsPositive() {
		returnPct, _ = portfolioValue.Sub(p.seedCash).Div(p.seedCash).Mul(decimal.NewFromInt(100)).Float64()
	}
	if username == "" {
		username = "You"
	}
	entries = append(entries, model.LeaderboardEntry{
		UserID:         userID,
		Username:       username,
		PortfolioValue: portfolioValue,
		ReturnPercent:  returnPct,
		IsCurrentUser:  true,
	})

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PortfolioValue.GreaterThan(entries[j].PortfolioValue)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Competitions returns the current contest list with dates anchored to
// the provider clock's week.
func (p *Provider) Competitions() []model.Competition {
	now := p.clock()
	weekStart := now.AddDate(0, 0, -int(now.Weekday()))
	return []model.Competition{
		{
			ID:           "weekly-returns",
			Title:        "Weekly Returns Challenge",
			Description:  "Highest portfolio return this week takes the pot.",
			PrizeCoins:   500,
			Participants: 1240,
			StartsAt:     weekStart,
			EndsAt:       weekStart.AddDate(0, 0, 7),
		},
		{
			ID:           "diversification-derby",
			Title:        "Diversification Derby",
			Description:  "Best risk-adjusted portfolio across at least five sectors.",
			PrizeCoins:   750,
			Participants: 683,
			StartsAt:     weekStart,
			EndsAt:       weekStart.AddDate(0, 0, 14),
		},
		{
			ID:           "quiz-marathon",
			Title:        "Quiz Marathon",
			Description:  "Most quizzes passed this month.",
			PrizeCoins:   300,
			Participants: 2105,
			StartsAt:     time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()),
			EndsAt:       time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0),
		},
	}
}

func mockRoster() []model.LeaderboardEntry {
	mk := func(id, name string, value float64, ret float64, badges ...string) model.LeaderboardEntry {
		return model.LeaderboardEntry{
			UserID:         id,
			Username:       name,
			PortfolioValue: decimal.NewFromFloat(value),
			ReturnPercent:  ret,
			Badges:         badges,
		}
	}
	return []model.LeaderboardEntry{
		mk("u-priya", "PriyaTrades", 127450.80, 27.45, "top-gainer", "streak-30"),
		mk("u-arjun", "ArjunBull", 118230.25, 18.23, "quiz-master"),
		mk("u-sneha", "SnehaLongTerm", 112875.00, 12.88, "diversified"),
		mk("u-rahul", "RahulScalper", 108540.60, 8.54),
		mk("u-meera", "MeeraValue", 104320.40, 4.32, "steady-hand"),
		mk("u-vikram", "VikramMomentum", 98760.15, -1.24),
		mk("u-ananya", "AnanyaLearns", 96115.90, -3.88, "bookworm"),
	}
}
