package analytics_test

import (
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stockquest/stockquest/internal/analytics"
	"github.com/stockquest/stockquest/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func pos(symbol, sector string, value, pnl float64, pnlPct float64) model.Position {
	return model.Position{
		Symbol:        symbol,
		Sector:        sector,
		Quantity:      1,
		CurrentValue:  d(value),
		UnrealizedPnL: d(pnl),
		PnLPercent:    pnlPct,
	}
}

func TestComputeSectorExposure(t *testing.T) {
	positions := []model.Position{
		pos("TCS", "IT", 6000, 0, 0),
		pos("INFY", "IT", 2000, 0, 0),
		pos("ITC", "FMCG", 2000, 0, 0),
	}

	exposures := analytics.ComputeSectorExposure(positions)
	if len(exposures) != 2 {
		t.Fatalf("expected 2 sectors, got %d", len(exposures))
	}
	if exposures[0].Sector != "IT" || exposures[0].Percent != 80 {
		t.Errorf("expected IT at 80%%, got %s at %.1f%%", exposures[0].Sector, exposures[0].Percent)
	}
	if exposures[1].Sector != "FMCG" || exposures[1].Percent != 20 {
		t.Errorf("expected FMCG at 20%%, got %s at %.1f%%", exposures[1].Sector, exposures[1].Percent)
	}

	var sum float64
	for _, e := range exposures {
		sum += e.Percent
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Errorf("percentages should sum to 100, got %f", sum)
	}
}

func TestComputeSectorExposure_UnlabelledGoesToOther(t *testing.T) {
	exposures := analytics.ComputeSectorExposure([]model.Position{
		pos("XYZ", "", 1000, 0, 0),
	})
	if len(exposures) != 1 || exposures[0].Sector != analytics.OtherSector {
		t.Fatalf("expected single Other bucket, got %+v", exposures)
	}
}

func TestComputeSectorExposure_ZeroValue(t *testing.T) {
	if got := analytics.ComputeSectorExposure(nil); got != nil {
		t.Errorf("expected nil for no positions, got %+v", got)
	}
	if got := analytics.ComputeSectorExposure([]model.Position{pos("TCS", "IT", 0, 0, 0)}); got != nil {
		t.Errorf("expected nil for zero total value, got %+v", got)
	}
}

func TestAssessRisk_EmptyPortfolio(t *testing.T) {
	if got := analytics.AssessRisk(&model.Portfolio{}); got != nil {
		t.Errorf("expected nil assessment for empty portfolio, got %+v", got)
	}
}

func TestAssessRisk_SingleSectorConcentration(t *testing.T) {
	p := &model.Portfolio{Positions: []model.Position{
		pos("TCS", "IT", 10000, 0, 0),
	}}

	r := analytics.AssessRisk(p)
	if r == nil {
		t.Fatal("expected an assessment")
	}
	// 100% in one sector: diversification max(0, 100−(100−20)×2) = 0.
	if r.DiversificationScore != 0 {
		t.Errorf("expected diversification 0, got %f", r.DiversificationScore)
	}
	if r.ConcentrationRisk != 80 {
		t.Errorf("expected concentration 80, got %f", r.ConcentrationRisk)
	}
	if r.MaxSector != "IT" || r.MaxSectorExposure != 100 {
		t.Errorf("expected IT at 100%%, got %s at %f", r.MaxSector, r.MaxSectorExposure)
	}
	if len(r.Recommendations) == 0 {
		t.Error("expected at least one recommendation for a concentrated portfolio")
	}
}

func TestAssessRisk_Buckets(t *testing.T) {
	tests := []struct {
		name          string
		positions     []model.Position
		concentration float64
		overall       string
	}{
		{
			name: "balanced and quiet",
			positions: []model.Position{
				pos("A", "S1", 1000, 0, 0),
				pos("B", "S2", 1000, 0, 0),
				pos("C", "S3", 1000, 0, 0),
				pos("D", "S4", 1000, 0, 0),
				pos("E", "S5", 1000, 0, 0),
			},
			concentration: 20,
			overall:       "LOW",
		},
		{
			name: "moderately concentrated",
			positions: []model.Position{
				pos("A", "S1", 4000, 0, 0),
				pos("B", "S2", 3000, 0, 0),
				pos("C", "S3", 3000, 0, 0),
			},
			concentration: 50,
			overall:       "LOW",
		},
		{
			name: "concentrated and volatile",
			positions: []model.Position{
				pos("A", "S1", 9000, 900, 30),
				pos("B", "S2", 1000, -100, -10),
			},
			concentration: 80,
			overall:       "HIGH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := analytics.AssessRisk(&model.Portfolio{Positions: tt.positions})
			if r == nil {
				t.Fatal("expected an assessment")
			}
			if r.ConcentrationRisk != tt.concentration {
				t.Errorf("concentration %f, want %f", r.ConcentrationRisk, tt.concentration)
			}
			if r.OverallRisk != tt.overall {
				t.Errorf("overall %s, want %s", r.OverallRisk, tt.overall)
			}
		})
	}
}

func TestAssessRisk_VolatilityCapped(t *testing.T) {
	p := &model.Portfolio{Positions: []model.Position{
		pos("A", "S1", 1000, 500, 50),
	}}
	r := analytics.AssessRisk(p)
	if r.VolatilityRisk != 100 {
		t.Errorf("expected volatility capped at 100, got %f", r.VolatilityRisk)
	}
}

func TestAnalyzePerformance_EmptyIsNeutral(t *testing.T) {
	report := analytics.AnalyzePerformance(&model.Portfolio{}, nil)
	if report.WinRate != 0 || report.MaxDrawdown != 0 || report.ProfitFactor != 0 {
		t.Errorf("expected zero-valued report, got %+v", report)
	}
	if report.TradingFrequency != "light" || report.RiskTolerance != "conservative" {
		t.Errorf("expected light/conservative defaults, got %s/%s", report.TradingFrequency, report.RiskTolerance)
	}
	if report.BestTrade != nil || report.WorstTrade != nil {
		t.Error("expected no best/worst trade for empty portfolio")
	}
}

func TestAnalyzePerformance_Metrics(t *testing.T) {
	p := &model.Portfolio{
		Cash: d(50000),
		Positions: []model.Position{
			pos("WIN1", "IT", 11000, 1000, 10),
			pos("WIN2", "IT", 10500, 500, 5),
			pos("LOSS", "Auto", 8500, -1500, -15),
			pos("FLAT", "FMCG", 10000, 0, 0),
		},
	}

	report := analytics.AnalyzePerformance(p, make([]model.Order, 8))

	// 2 winners out of 4 positions.
	if report.WinRate != 50 {
		t.Errorf("win rate %f, want 50", report.WinRate)
	}
	if report.MaxDrawdown != 15 {
		t.Errorf("max drawdown %f, want 15", report.MaxDrawdown)
	}
	if report.AvgGain != 750 {
		t.Errorf("avg gain %f, want 750", report.AvgGain)
	}
	if report.AvgLoss != 1500 {
		t.Errorf("avg loss %f, want 1500", report.AvgLoss)
	}
	if report.ProfitFactor != 0.5 {
		t.Errorf("profit factor %f, want 0.5", report.ProfitFactor)
	}
	if report.BestTrade == nil || report.BestTrade.Symbol != "WIN1" {
		t.Errorf("best trade should be WIN1, got %+v", report.BestTrade)
	}
	if report.WorstTrade == nil || report.WorstTrade.Symbol != "LOSS" {
		t.Errorf("worst trade should be LOSS, got %+v", report.WorstTrade)
	}
	if report.TradingFrequency != "moderate" {
		t.Errorf("trading frequency %s, want moderate", report.TradingFrequency)
	}
	if report.RiskTolerance != "moderate" {
		t.Errorf("risk tolerance %s, want moderate", report.RiskTolerance)
	}
	// Total P&L is 0, so the bounded ratio stays 0.
	if report.SharpeRatio != 0 {
		t.Errorf("sharpe ratio %f, want 0", report.SharpeRatio)
	}
}

func TestAnalyzePerformance_NoLosersUsesFallbackFactor(t *testing.T) {
	p := &model.Portfolio{Positions: []model.Position{
		pos("WIN", "IT", 11000, 1000, 10),
	}}
	report := analytics.AnalyzePerformance(p, nil)
	if report.ProfitFactor != 2.0 {
		t.Errorf("profit factor %f, want fallback 2.0", report.ProfitFactor)
	}
	if report.AvgLoss != 0 {
		t.Errorf("avg loss %f, want 0", report.AvgLoss)
	}
}

func TestAnalyzePerformance_SharpeBounded(t *testing.T) {
	p := &model.Portfolio{Positions: []model.Position{
		pos("BIG", "IT", 200000, 50000, 33),
	}}
	report := analytics.AnalyzePerformance(p, nil)
	if report.SharpeRatio != 3 {
		t.Errorf("sharpe ratio should be capped at 3, got %f", report.SharpeRatio)
	}
}

func TestRecommendationsMentionSector(t *testing.T) {
	p := &model.Portfolio{Positions: []model.Position{
		pos("TCS", "IT", 9000, 0, 0),
		pos("ITC", "FMCG", 1000, 0, 0),
	}}
	r := analytics.AssessRisk(p)
	found := false
	for _, rec := range r.Recommendations {
		if strings.Contains(rec, "IT") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a recommendation naming the dominant sector, got %v", r.Recommendations)
	}
}
