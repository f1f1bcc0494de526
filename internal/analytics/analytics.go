// Package analytics derives sector exposure, risk, and performance
// metrics from a portfolio snapshot. Every function here is pure and
// stateless: recomputed on demand, O(positions), never mutating input.
//
// The formulas are heuristic scoring rules, not calibrated financial
// models. In particular SharpeRatio is a simplified bounded proxy for a
// risk-adjusted return and WinRate divides by position count rather than
// trade count. They are preserved as documented behavior.
package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stockquest/stockquest/internal/model"
)

// Threshold constants for the risk heuristics.
const (
	concentrationHigh   = 50.0 // max sector % above this → risk score 80
	concentrationMedium = 30.0 // above this → 50, else 20
	overallHighCutoff   = 60.0
	overallMediumCutoff = 30.0
	exposureWarnPercent = 40.0
	minPositionsDiverse = 5
	volatilityWarnScore = 50.0
)

// OtherSector is the bucket for positions without a known sector label.
const OtherSector = "Other"

// SectorExposure is one sector's share of total position value.
type SectorExposure struct {
	Sector  string          `json:"sector"`
	Value   decimal.Decimal `json:"value"`
	Percent float64         `json:"percent"`
}

// RiskAssessment is the heuristic risk picture for one portfolio.
type RiskAssessment struct {
	DiversificationScore float64  `json:"diversification_score"`
	ConcentrationRisk    float64  `json:"concentration_risk"`
	VolatilityRisk       float64  `json:"volatility_risk"`
	OverallRisk          string   `json:"overall_risk"` // HIGH, MEDIUM, LOW
	MaxSector            string   `json:"max_sector"`
	MaxSectorExposure    float64  `json:"max_sector_exposure"`
	Recommendations      []string `json:"recommendations"`
}

// PerformanceReport summarizes trading performance.
type PerformanceReport struct {
	WinRate          float64         `json:"win_rate"`
	MaxDrawdown      float64         `json:"max_drawdown"`
	AvgGain          float64         `json:"avg_gain"`
	AvgLoss          float64         `json:"avg_loss"`
	ProfitFactor     float64         `json:"profit_factor"`
	SharpeRatio      float64         `json:"sharpe_ratio"` // bounded proxy, not a true Sharpe
	BestTrade        *model.Position `json:"best_trade,omitempty"`
	WorstTrade       *model.Position `json:"worst_trade,omitempty"`
	TotalTrades      int             `json:"total_trades"`
	TradingFrequency string          `json:"trading_frequency"`
	RiskTolerance    string          `json:"risk_tolerance"`
}

// ComputeSectorExposure sums current value per sector and expresses each
// bucket as a percentage of total position value. Positions without a
// sector label land in the Other bucket. Returns nil when total position
// value is zero (percentages would be undefined).
func ComputeSectorExposure(positions []model.Position) []SectorExposure {
	totals := make(map[string]decimal.Decimal)
	grand := decimal.Zero
	for i := range positions {
		sector := positions[i].Sector
		if sector == "" {
			sector = OtherSector
		}
		totals[sector] = totals[sector].Add(positions[i].CurrentValue)
		grand = grand.Add(positions[i].CurrentValue)
	}
	if !grand.IsPositive() {
		return nil
	}

	hundred := decimal.NewFromInt(100)
	exposures := make([]SectorExposure, 0, len(totals))
	for sector, value := range totals {
		pct, _ := value.Div(grand).Mul(hundred).Float64()
		exposures = append(exposures, SectorExposure{
			Sector:  sector,
			Value:   value,
			Percent: pct,
		})
	}
	sort.Slice(exposures, func(i, j int) bool {
		if exposures[i].Percent != exposures[j].Percent {
			return exposures[i].Percent > exposures[j].Percent
		}
		return exposures[i].Sector < exposures[j].Sector
	})
	return exposures
}

// AssessRisk scores concentration and volatility risk for the portfolio
// and buckets the overall level. Returns nil for an empty portfolio:
// there is nothing to assess and the formulas would divide by zero.
func AssessRisk(p *model.Portfolio) *RiskAssessment {
	if len(p.Positions) == 0 {
		return nil
	}

	exposures := ComputeSectorExposure(p.Positions)
	if exposures == nil {
		return nil
	}
	maxSector := exposures[0]

	// Diversification: full marks at <= 20% in any one sector, losing
	// two points for every percent above that.
	diversification := math.Max(0, 100-(maxSector.Percent-20)*2)

	concentration := 20.0
	switch {
	case maxSector.Percent > concentrationHigh:
		concentration = 80
	case maxSector.Percent > concentrationMedium:
		concentration = 50
	}

	// Volatility proxy: average absolute P&L percent, scaled.
	var absSum float64
	for i := range p.Positions {
		absSum += math.Abs(p.Positions[i].PnLPercent)
	}
	volatility := math.Min(absSum/float64(len(p.Positions))*5, 100)

	overall := "LOW"
	switch avg := (concentration + volatility) / 2; {
	case avg > overallHighCutoff:
		overall = "HIGH"
	case avg > overallMediumCutoff:
		overall = "MEDIUM"
	}

	var recs []string
	if maxSector.Percent > exposureWarnPercent {
		recs = append(recs, fmt.Sprintf("Over %.0f%% of your holdings are in %s. Consider spreading across more sectors.", exposureWarnPercent, maxSector.Sector))
	}
	if len(p.Positions) < minPositionsDiverse {
		recs = append(recs, fmt.Sprintf("You hold %d stocks. A portfolio of %d or more reduces single-stock risk.", len(p.Positions), minPositionsDiverse))
	}
	if volatility > volatilityWarnScore {
		recs = append(recs, "Your positions are swinging widely. Review stop-loss levels or trim volatile holdings.")
	}

	return &RiskAssessment{
		DiversificationScore: diversification,
		ConcentrationRisk:    concentration,
		VolatilityRisk:       volatility,
		OverallRisk:          overall,
		MaxSector:            maxSector.Sector,
		MaxSectorExposure:    maxSector.Percent,
		Recommendations:      recs,
	}
}

// AnalyzePerformance computes win rate, drawdown, and related metrics
// from open positions and the order history. Empty inputs yield a
// neutral zero-valued report rather than NaN or Inf.
func AnalyzePerformance(p *model.Portfolio, orders []model.Order) PerformanceReport {
	report := PerformanceReport{
		TotalTrades:      len(orders),
		TradingFrequency: frequencyBucket(len(orders)),
		RiskTolerance:    "conservative",
	}
	if len(p.Positions) == 0 {
		return report
	}

	var wins, losses int
	var gainSum, lossSum float64
	worstPct := 0.0
	best, worst := &p.Positions[0], &p.Positions[0]

	for i := range p.Positions {
		pos := &p.Positions[i]
		pnl := pos.UnrealizedPnL
		switch {
		case pnl.IsPositive():
			wins++
			f, _ := pnl.Float64()
			gainSum += f
		case pnl.IsNegative():
			losses++
			f, _ := pnl.Float64()
			lossSum += math.Abs(f)
		}
		if pos.PnLPercent < worstPct {
			worstPct = pos.PnLPercent
		}
		if pos.UnrealizedPnL.GreaterThan(best.UnrealizedPnL) {
			best = pos
		}
		if pos.UnrealizedPnL.LessThan(worst.UnrealizedPnL) {
			worst = pos
		}
	}

	report.WinRate = float64(wins) / float64(len(p.Positions)) * 100
	report.MaxDrawdown = math.Abs(worstPct)

	// Divisors floored at 1 so an all-winner or all-loser portfolio
	// yields 0 for the missing side instead of NaN.
	report.AvgGain = gainSum / math.Max(float64(wins), 1)
	report.AvgLoss = lossSum / math.Max(float64(losses), 1)

	if report.AvgLoss > 0 {
		report.ProfitFactor = report.AvgGain / report.AvgLoss
	} else {
		report.ProfitFactor = 2.0 // fixed fallback when there are no losers
	}

	// Simplified bounded proxy, not a true risk-adjusted return.
	totalPnL, _ := p.TotalPnL().Float64()
	if totalPnL > 0 {
		report.SharpeRatio = math.Min(totalPnL/10000, 3)
	}

	bestCopy, worstCopy := *best, *worst
	report.BestTrade = &bestCopy
	report.WorstTrade = &worstCopy
	report.RiskTolerance = toleranceBucket(report.MaxDrawdown)
	return report
}

func frequencyBucket(trades int) string {
	switch {
	case trades > 20:
		return "active"
	case trades > 5:
		return "moderate"
	default:
		return "light"
	}
}

func toleranceBucket(maxDrawdown float64) string {
	switch {
	case maxDrawdown > 20:
		return "aggressive"
	case maxDrawdown > 10:
		return "moderate"
	default:
		return "conservative"
	}
}
