// Package insight assembles portfolio insights: it prompts an external
// generative-text endpoint and strictly decodes the reply, falling back
// to deterministic template heuristics whenever the key is missing, the
// call fails, or the response does not parse. The caller always gets a
// populated insight list, never an error.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockquest/stockquest/internal/analytics"
	"github.com/stockquest/stockquest/internal/metrics"
	"github.com/stockquest/stockquest/internal/model"
)

// Sources reported alongside generated insights.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

const maxInsights = 5

// Generator calls the generative-text endpoint with a local fallback.
// Construct one per server; it owns its HTTP client.
type Generator struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewGenerator creates a generator. An empty apiKey puts it in
// fallback-only mode.
func NewGenerator(apiKey, endpoint string, timeout time.Duration) *Generator {
	return &Generator{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// KeyAvailable reports whether an API key is configured.
func (g *Generator) KeyAvailable() bool {
	return g.apiKey != ""
}

// Key returns the configured API key (empty when unset).
func (g *Generator) Key() string {
	return g.apiKey
}

// Generate produces insights for the portfolio and market snapshot.
// Returns the insights and their source (SourceAI or SourceFallback).
// Every failure path resolves to the fallback; this never errors.
func (g *Generator) Generate(ctx context.Context, p *model.Portfolio, stocks []model.Stock) ([]model.Insight, string) {
	if !g.KeyAvailable() {
		metrics.InsightRequests.WithLabelValues(SourceFallback).Inc()
		return Fallback(p, stocks), SourceFallback
	}

	text, err := g.callModel(ctx, buildPrompt(p, stocks))
	if err != nil {
		slog.Warn("insight generation failed, using fallback", "err", err)
		metrics.InsightRequests.WithLabelValues(SourceFallback).Inc()
		return Fallback(p, stocks), SourceFallback
	}

	insights, err := decodeInsights(text)
	if err != nil {
		slog.Warn("insight response unparseable, using fallback", "err", err)
		metrics.InsightRequests.WithLabelValues(SourceFallback).Inc()
		return Fallback(p, stocks), SourceFallback
	}

	metrics.InsightRequests.WithLabelValues(SourceAI).Inc()
	return insights, SourceAI
}

// buildPrompt renders the portfolio and market snapshot into the model
// prompt. The model is asked for a bare JSON array matching the Insight
// shape.
func buildPrompt(p *model.Portfolio, stocks []model.Stock) string {
	var b strings.Builder
	b.WriteString("You are a stock market tutor for beginners using a paper-trading app.\n")
	b.WriteString("Portfolio:\n")
	fmt.Fprintf(&b, "- cash: %s\n- total value: %s\n", p.Cash.StringFixed(2), p.TotalValue().StringFixed(2))
	for i := range p.Positions {
		pos := &p.Positions[i]
		fmt.Fprintf(&b, "- %s: %d shares, avg %s, now %s, P&L %.1f%%\n",
			pos.Symbol, pos.Quantity, pos.AvgPrice.StringFixed(2), pos.CurrentPrice.StringFixed(2), pos.PnLPercent)
	}
	b.WriteString("Market movers:\n")
	for i, s := range stocks {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "- %s (%s): %s, %.1f%% today\n", s.Symbol, s.Sector, s.Price.StringFixed(2), s.ChangePercent)
	}
	b.WriteString("Respond with ONLY a JSON array of at most ")
	fmt.Fprintf(&b, "%d objects, each {\"type\": \"tip\"|\"warning\"|\"opportunity\", \"title\": string, \"description\": string, \"action\": string}.\n", maxInsights)
	return b.String()
}

// Request/response shapes for the generative-language endpoint.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *Generator) callModel(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model endpoint returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model response has no candidates")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// StripFences removes a Markdown code fence wrapper (``` or ```json)
// from model output, which the endpoint adds unpredictably.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// decodeInsights strictly decodes the model output into typed insights:
// unknown fields, empty required fields, and unrecognized types are all
// decode errors routed to the fallback. Parse, don't validate.
func decodeInsights(text string) ([]model.Insight, error) {
	dec := json.NewDecoder(strings.NewReader(StripFences(text)))
	dec.DisallowUnknownFields()

	var insights []model.Insight
	if err := dec.Decode(&insights); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after insights array")
	}
	if len(insights) == 0 {
		return nil, fmt.Errorf("model returned no insights")
	}
	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}
	for i, in := range insights {
		switch in.Type {
		case "tip", "warning", "opportunity":
		default:
			return nil, fmt.Errorf("insight %d has unknown type %q", i, in.Type)
		}
		if in.Title == "" || in.Description == "" {
			return nil, fmt.Errorf("insight %d missing title or description", i)
		}
	}
	return insights, nil
}

// Fallback thresholds.
const (
	concentrationTrigger = 40.0 // max sector percent
	idleCashTrigger      = 50.0 // percent of total value held as cash
	fewPositionsTrigger  = 3
	bigLossTrigger       = -10.0 // position P&L percent
)

// Fallback generates deterministic template insights from the portfolio
// alone. Always returns at least one insight.
func Fallback(p *model.Portfolio, stocks []model.Stock) []model.Insight {
	var insights []model.Insight

	if len(p.Positions) == 0 {
		return []model.Insight{{
			Type:        "tip",
			Title:       "Place your first trade",
			Description: "Your portfolio is all cash. Pick a stock you recognize and buy a small quantity to see how orders, fees, and P&L work.",
			Action:      "Open the trading terminal",
		}}
	}

	if exposures := analytics.ComputeSectorExposure(p.Positions); len(exposures) > 0 {
		if top := exposures[0]; top.Percent > concentrationTrigger {
			insights = append(insights, model.Insight{
				Type:        "warning",
				Title:       fmt.Sprintf("Heavy in %s", top.Sector),
				Description: fmt.Sprintf("%.0f%% of your holdings sit in %s. A slump in that sector would hit most of your portfolio at once.", top.Percent, top.Sector),
				Action:      "Browse stocks in other sectors",
			})
		}
	}

	total := p.TotalValue()
	if total.IsPositive() {
		cashPct, _ := p.Cash.Div(total).Mul(decimal.NewFromInt(100)).Float64()
		if cashPct > idleCashTrigger {
			insights = append(insights, model.Insight{
				Type:        "opportunity",
				Title:       "Cash on the sidelines",
				Description: fmt.Sprintf("%.0f%% of your account is uninvested. Idle cash earns nothing in this simulation.", cashPct),
				Action:      "Look for a stock to research",
			})
		}
	}

	if len(p.Positions) < fewPositionsTrigger {
		insights = append(insights, model.Insight{
			Type:        "tip",
			Title:       "Spread your bets",
			Description: fmt.Sprintf("You hold %d stock(s). Adding positions across different sectors reduces single-stock risk.", len(p.Positions)),
			Action:      "Explore the sector list",
		})
	}

	for i := range p.Positions {
		if pos := &p.Positions[i]; pos.PnLPercent < bigLossTrigger {
			insights = append(insights, model.Insight{
				Type:        "warning",
				Title:       fmt.Sprintf("%s is down %.1f%%", pos.Symbol, -pos.PnLPercent),
				Description: "Decide whether your original reason for buying still holds. Cutting losers early is a habit worth practicing without real money.",
				Action:      "Review the position",
			})
			break
		}
	}

	if mover := topMover(p, stocks); mover != nil {
		insights = append(insights, model.Insight{
			Type:        "opportunity",
			Title:       fmt.Sprintf("%s is moving", mover.Symbol),
			Description: fmt.Sprintf("%s is up %.1f%% today in the %s sector and is not in your portfolio. Worth a look for your watchlist.", mover.Name, mover.ChangePercent, mover.Sector),
			Action:      "Research " + mover.Symbol,
		})
	}

	if len(insights) == 0 {
		insights = append(insights, model.Insight{
			Type:        "tip",
			Title:       "Portfolio looks balanced",
			Description: "No obvious red flags. Keep learning: the next module covers how to read your P&L numbers.",
			Action:      "Continue learning",
		})
	}
	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}
	return insights
}

// topMover returns the biggest gainer (>2% today) the user does not
// already hold, or nil.
func topMover(p *model.Portfolio, stocks []model.Stock) *model.Stock {
	var best *model.Stock
	for i := range stocks {
		s := &stocks[i]
		if s.ChangePercent <= 2.0 || p.Position(s.Symbol) != nil {
			continue
		}
		if best == nil || s.ChangePercent > best.ChangePercent {
			best = s
		}
	}
	return best
}
