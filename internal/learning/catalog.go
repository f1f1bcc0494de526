// Package learning tracks module, lesson, and quiz completion, awards
// coins and XP, and evaluates achievement predicates for one user.
package learning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stockquest/stockquest/internal/model"
)

// Catalog is the immutable course content the engine serves: modules
// with lessons and quizzes, plus the achievement definitions. It is
// loaded once at startup and passed into the engine constructor; per-user
// completion state lives in LearningProgress, never in the catalog.
type Catalog struct {
	Modules      []model.LearningModule `yaml:"modules"`
	Achievements []model.Achievement    `yaml:"achievements"`
}

// LoadCatalog reads a YAML content file, or returns the built-in catalog
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content file: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse content file: %w", err)
	}
	if len(c.Modules) == 0 {
		return nil, fmt.Errorf("content file %s defines no modules", path)
	}
	for i := range c.Modules {
		if err := validateModule(&c.Modules[i]); err != nil {
			return nil, fmt.Errorf("content file %s: %w", path, err)
		}
	}
	if len(c.Achievements) == 0 {
		c.Achievements = DefaultCatalog().Achievements
	}
	return &c, nil
}

// validateModule rejects content that would break grading: a quiz needs
// at least one question, and every correct answer must index into its
// question's options.
func validateModule(m *model.LearningModule) error {
	if len(m.Quiz.Questions) == 0 {
		return fmt.Errorf("module %s has no quiz questions", m.ID)
	}
	for _, q := range m.Quiz.Questions {
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return fmt.Errorf("module %s question %s: correct answer %d is outside its %d options",
				m.ID, q.ID, q.CorrectAnswer, len(q.Options))
		}
	}
	return nil
}

// Module returns the catalog module with the given id, or nil.
func (c *Catalog) Module(id string) *model.LearningModule {
	for i := range c.Modules {
		if c.Modules[i].ID == id {
			return &c.Modules[i]
		}
	}
	return nil
}

// DefaultCatalog returns the built-in course content.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Modules: []model.LearningModule{
			{
				ID:          "stock-basics",
				Title:       "Stock Market Basics",
				Description: "What stocks are, how exchanges work, and how to read a quote.",
				Category:    "basics",
				Difficulty:  "beginner",
				CoinReward:  100,
				Lessons: []model.Lesson{
					{ID: "what-is-a-stock", Title: "What Is a Stock?", Type: "reading",
						Content: "A stock is a share of ownership in a company. When you buy a share you own a slice of the business and its future profits."},
					{ID: "how-exchanges-work", Title: "How Exchanges Work", Type: "reading",
						Content: "Exchanges match buyers and sellers. The last traded price becomes the quoted market price you see on a terminal."},
					{ID: "reading-a-quote", Title: "Reading a Stock Quote", Type: "interactive",
						Content: "A quote shows price, day change, volume, and the day's high and low. Volume tells you how actively a stock is trading."},
				},
				Quiz: model.Quiz{
					MinPassingScore: 70,
					Questions: []model.QuizQuestion{
						{ID: "q1", Question: "Buying a share of stock makes you:",
							Options:       []string{"A lender to the company", "A part-owner of the company", "An employee", "A customer"},
							CorrectAnswer: 1, Difficulty: "easy",
							Explanation: "Shareholders own a fraction of the company."},
						{ID: "q2", Question: "The market price of a stock is set by:",
							Options:       []string{"The government", "The company's CEO", "Supply and demand on the exchange", "The broker"},
							CorrectAnswer: 2, Difficulty: "easy",
							Explanation: "Prices move as buyers and sellers agree on trades."},
						{ID: "q3", Question: "High trading volume usually means:",
							Options:       []string{"The stock is actively traded", "The stock will go up", "The company is profitable", "Fees are lower"},
							CorrectAnswer: 0, Difficulty: "medium",
							Explanation: "Volume measures activity, not direction."},
					},
				},
			},
			{
				ID:            "order-types",
				Title:         "Orders and Execution",
				Description:   "Market versus limit orders, brokerage fees, and how fills work.",
				Category:      "basics",
				Difficulty:    "beginner",
				Prerequisites: []string{"stock-basics"},
				CoinReward:    150,
				Lessons: []model.Lesson{
					{ID: "market-orders", Title: "Market Orders", Type: "reading",
						Content: "A market order executes immediately at the best available price. You trade certainty of execution for certainty of price."},
					{ID: "limit-orders", Title: "Limit Orders", Type: "reading",
						Content: "A limit order names your price. You control the price you pay or receive, at the risk of the order not filling."},
					{ID: "brokerage-fees", Title: "Brokerage Fees", Type: "interactive",
						Content: "Brokers charge a fee per trade, usually a small percentage with a minimum floor. Fees eat into small trades the most."},
				},
				Quiz: model.Quiz{
					MinPassingScore: 70,
					Questions: []model.QuizQuestion{
						{ID: "q1", Question: "A market order guarantees:",
							Options:       []string{"A specific price", "Immediate execution at the going price", "No fees", "A profit"},
							CorrectAnswer: 1, Difficulty: "easy",
							Explanation: "Market orders fill right away at the current price."},
						{ID: "q2", Question: "A limit order may not execute when:",
							Options:       []string{"The market is open", "You have enough cash", "The market never reaches your price", "Volume is high"},
							CorrectAnswer: 2, Difficulty: "medium",
							Explanation: "Limit orders only fill at your named price or better."},
						{ID: "q3", Question: "A 0.03% fee with a 20-rupee floor on a 10,000-rupee trade charges:",
							Options:       []string{"3", "20", "30", "0"},
							CorrectAnswer: 1, Difficulty: "medium",
							Explanation: "0.03% of 10,000 is 3, below the floor, so the 20 minimum applies."},
					},
				},
			},
			{
				ID:            "diversification",
				Title:         "Diversification and Risk",
				Description:   "Sector exposure, concentration risk, and why spreading bets matters.",
				Category:      "risk-management",
				Difficulty:    "intermediate",
				Prerequisites: []string{"order-types"},
				CoinReward:    200,
				Lessons: []model.Lesson{
					{ID: "sector-exposure", Title: "Sector Exposure", Type: "reading",
						Content: "Stocks in the same sector tend to move together. Measuring the share of your portfolio in each sector reveals hidden concentration."},
					{ID: "concentration-risk", Title: "Concentration Risk", Type: "reading",
						Content: "Holding too much of one stock or sector ties your outcome to a single story. Diversification smooths the ride."},
					{ID: "position-sizing", Title: "Position Sizing", Type: "interactive",
						Content: "Deciding how much to put into each position matters more than picking winners. Small, even positions limit single-stock damage."},
				},
				Quiz: model.Quiz{
					MinPassingScore: 70,
					Questions: []model.QuizQuestion{
						{ID: "q1", Question: "A portfolio with 80% in one sector is:",
							Options:       []string{"Well diversified", "Concentrated", "Risk-free", "Balanced"},
							CorrectAnswer: 1, Difficulty: "easy",
							Explanation: "Most of its value depends on one industry."},
						{ID: "q2", Question: "Diversification primarily reduces:",
							Options:       []string{"Brokerage fees", "Single-stock risk", "Taxes", "Market hours"},
							CorrectAnswer: 1, Difficulty: "medium",
							Explanation: "Spreading holdings limits any one position's damage."},
						{ID: "q3", Question: "Stocks in the same sector tend to:",
							Options:       []string{"Move independently", "Move together", "Never fall", "Pay the same dividend"},
							CorrectAnswer: 1, Difficulty: "medium",
							Explanation: "Sector-wide news moves the whole group."},
						{ID: "q4", Question: "Position sizing is about:",
							Options:       []string{"When to buy", "How much to buy", "Which broker to use", "Reading charts"},
							CorrectAnswer: 1, Difficulty: "medium",
							Explanation: "It controls how much each idea can help or hurt you."},
					},
				},
			},
			{
				ID:            "reading-pnl",
				Title:         "Reading Your P&L",
				Description:   "Average price, unrealized gains, and what your numbers actually mean.",
				Category:      "fundamental-analysis",
				Difficulty:    "intermediate",
				Prerequisites: []string{"order-types"},
				CoinReward:    200,
				Lessons: []model.Lesson{
					{ID: "average-price", Title: "Average Acquisition Price", Type: "reading",
						Content: "Buying the same stock at different prices blends into one weighted average. Selling never changes the average, only the quantity."},
					{ID: "unrealized-pnl", Title: "Unrealized P&L", Type: "reading",
						Content: "Unrealized profit exists only on paper. It is current value minus cost basis, and it changes with every tick."},
					{ID: "win-rate", Title: "Win Rate and Its Traps", Type: "interactive",
						Content: "A high win rate with small wins and big losses still loses money. Judge gains and losses together, not the rate alone."},
				},
				Quiz: model.Quiz{
					MinPassingScore: 70,
					Questions: []model.QuizQuestion{
						{ID: "q1", Question: "You buy 10 shares at 100 and 10 at 200. Your average price is:",
							Options:       []string{"100", "150", "200", "300"},
							CorrectAnswer: 1, Difficulty: "medium",
							Explanation: "The quantity-weighted mean of both lots is 150."},
						{ID: "q2", Question: "Selling half a position changes:",
							Options:       []string{"The average price", "The quantity only", "The cost basis per share", "Nothing"},
							CorrectAnswer: 1, Difficulty: "medium",
							Explanation: "Sells reduce quantity; the per-share average stays put."},
						{ID: "q3", Question: "Unrealized P&L becomes realized when:",
							Options:       []string{"The market closes", "You sell", "The price doubles", "A dividend is paid"},
							CorrectAnswer: 1, Difficulty: "easy",
							Explanation: "Paper gains turn into cash only on sale."},
					},
				},
			},
		},
		Achievements: []model.Achievement{
			{ID: "first-lesson", Title: "First Steps",
				Description: "Complete your first lesson.",
				Target:      1, CoinReward: 25, XPReward: 50},
			{ID: "bookworm", Title: "Bookworm",
				Description: "Complete five lessons.",
				Target:      5, CoinReward: 75, XPReward: 100},
			{ID: "quiz-champion", Title: "Quiz Champion",
				Description: "Pass your first quiz.",
				Target:      1, CoinReward: 50, XPReward: 100},
			{ID: "perfectionist", Title: "Perfectionist",
				Description: "Score 100% on a quiz.",
				Target:      1, CoinReward: 100, XPReward: 150, BonusContent: "bonus-candlestick-patterns"},
			{ID: "on-a-roll", Title: "On a Roll",
				Description: "Keep a three-day learning streak.",
				Target:      3, CoinReward: 75, XPReward: 100},
			{ID: "graduate", Title: "Graduate",
				Description: "Complete four learning modules.",
				Target:      4, CoinReward: 250, XPReward: 300, BonusContent: "bonus-options-primer"},
		},
	}
}
