package insight_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockquest/stockquest/internal/insight"
	"github.com/stockquest/stockquest/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func holding(symbol, sector string, value float64, pnlPct float64) model.Position {
	return model.Position{
		Symbol:       symbol,
		Name:         symbol + " Ltd",
		Sector:       sector,
		Quantity:     1,
		CurrentValue: d(value),
		PnLPercent:   pnlPct,
	}
}

// modelServer returns an httptest server that responds with the given
// text as the single candidate part.
func modelServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") == "" {
			t.Error("request missing API key header")
		}
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
	}))
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `[{"a":1}]`, `[{"a":1}]`},
		{"plain fence", "```\n[1]\n```", "[1]"},
		{"json fence", "```json\n[1]\n```", "[1]"},
		{"surrounding whitespace", "  ```json\n[1]\n```  ", "[1]"},
		{"unterminated fence", "```json\n[1]", "[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := insight.StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGenerate_AISuccess(t *testing.T) {
	reply := "```json\n" + `[{"type":"tip","title":"Start small","description":"Buy a small quantity first.","action":"Trade"}]` + "\n```"
	srv := modelServer(t, reply)
	defer srv.Close()

	g := insight.NewGenerator("test-key", srv.URL, 5*time.Second)
	p := &model.Portfolio{Cash: d(100000)}

	insights, source := g.Generate(context.Background(), p, nil)
	if source != insight.SourceAI {
		t.Fatalf("expected AI source, got %s", source)
	}
	if len(insights) != 1 || insights[0].Title != "Start small" {
		t.Errorf("unexpected insights: %+v", insights)
	}
}

func TestGenerate_NoKeyUsesFallback(t *testing.T) {
	g := insight.NewGenerator("", "http://unused.invalid", time.Second)
	p := &model.Portfolio{Cash: d(100000)}

	insights, source := g.Generate(context.Background(), p, nil)
	if source != insight.SourceFallback {
		t.Fatalf("expected fallback source, got %s", source)
	}
	if len(insights) == 0 {
		t.Fatal("fallback must always return at least one insight")
	}
}

func TestGenerate_EndpointErrorUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := insight.NewGenerator("test-key", srv.URL, 5*time.Second)
	p := &model.Portfolio{Cash: d(100000)}

	insights, source := g.Generate(context.Background(), p, nil)
	if source != insight.SourceFallback {
		t.Fatalf("expected fallback source on endpoint failure, got %s", source)
	}
	if len(insights) == 0 {
		t.Fatal("fallback must return insights when the endpoint fails")
	}
}

func TestGenerate_MalformedReplyUsesFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "here are some thoughts about your portfolio"},
		{"unknown field", `[{"type":"tip","title":"T","description":"D","confidence":0.9}]`},
		{"unknown type", `[{"type":"prediction","title":"T","description":"D"}]`},
		{"missing title", `[{"type":"tip","title":"","description":"D"}]`},
		{"empty array", `[]`},
		{"second array after the first", `[{"type":"tip","title":"T","description":"D"}][]`},
		{"trailing prose", `[{"type":"tip","title":"T","description":"D"}] hope that helps!`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := modelServer(t, tt.reply)
			defer srv.Close()

			g := insight.NewGenerator("test-key", srv.URL, 5*time.Second)
			_, source := g.Generate(context.Background(), &model.Portfolio{Cash: d(1000)}, nil)
			if source != insight.SourceFallback {
				t.Errorf("expected fallback for %s, got %s", tt.name, source)
			}
		})
	}
}

func TestGenerate_TruncatesToFive(t *testing.T) {
	reply := `[
		{"type":"tip","title":"1","description":"d"},
		{"type":"tip","title":"2","description":"d"},
		{"type":"tip","title":"3","description":"d"},
		{"type":"tip","title":"4","description":"d"},
		{"type":"tip","title":"5","description":"d"},
		{"type":"tip","title":"6","description":"d"}
	]`
	srv := modelServer(t, reply)
	defer srv.Close()

	g := insight.NewGenerator("test-key", srv.URL, 5*time.Second)
	insights, source := g.Generate(context.Background(), &model.Portfolio{Cash: d(1000)}, nil)
	if source != insight.SourceAI {
		t.Fatalf("expected AI source, got %s", source)
	}
	if len(insights) != 5 {
		t.Errorf("expected truncation to 5 insights, got %d", len(insights))
	}
}

func TestFallback_EmptyPortfolio(t *testing.T) {
	insights := insight.Fallback(&model.Portfolio{Cash: d(100000)}, nil)
	if len(insights) != 1 {
		t.Fatalf("expected exactly one starter insight, got %d", len(insights))
	}
	if insights[0].Type != "tip" || insights[0].Title != "Place your first trade" {
		t.Errorf("unexpected starter insight: %+v", insights[0])
	}
}

func TestFallback_ConcentrationWarning(t *testing.T) {
	p := &model.Portfolio{
		Cash: d(0),
		Positions: []model.Position{
			holding("TCS", "IT", 9000, 0),
			holding("ITC", "FMCG", 1000, 0),
			holding("RELIANCE", "Energy", 500, 0),
		},
	}
	insights := insight.Fallback(p, nil)
	found := false
	for _, in := range insights {
		if in.Type == "warning" && in.Title == "Heavy in IT" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a concentration warning, got %+v", insights)
	}
}

func TestFallback_IdleCash(t *testing.T) {
	p := &model.Portfolio{
		Cash: d(90000),
		Positions: []model.Position{
			holding("TCS", "IT", 10000, 0),
		},
	}
	insights := insight.Fallback(p, nil)
	found := false
	for _, in := range insights {
		if in.Type == "opportunity" && in.Title == "Cash on the sidelines" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an idle-cash insight, got %+v", insights)
	}
}

func TestFallback_BigLossWarning(t *testing.T) {
	p := &model.Portfolio{
		Cash: d(0),
		Positions: []model.Position{
			holding("A", "S1", 2000, -15),
			holding("B", "S2", 2000, -25),
			holding("C", "S3", 2000, 0),
		},
	}
	insights := insight.Fallback(p, nil)
	count := 0
	for _, in := range insights {
		if in.Type == "warning" && in.Title == "A is down 15.0%" {
			count++
		}
	}
	// Only the first losing position is flagged.
	if count != 1 {
		t.Errorf("expected one loss warning for the first loser, got %+v", insights)
	}
}

func TestFallback_TopMover(t *testing.T) {
	p := &model.Portfolio{
		Cash: d(0),
		Positions: []model.Position{
			holding("TCS", "IT", 5000, 0),
		},
	}
	stocks := []model.Stock{
		{Symbol: "TCS", Name: "TCS Ltd", Sector: "IT", ChangePercent: 5.0},
		{Symbol: "INFY", Name: "Infosys", Sector: "IT", ChangePercent: 3.0},
		{Symbol: "ITC", Name: "ITC Ltd", Sector: "FMCG", ChangePercent: 4.5},
		{Symbol: "MARUTI", Name: "Maruti Suzuki", Sector: "Auto", ChangePercent: 1.0},
	}

	insights := insight.Fallback(p, stocks)
	found := false
	for _, in := range insights {
		// TCS is held and MARUTI is below the cutoff; ITC is the
		// biggest remaining gainer.
		if in.Type == "opportunity" && in.Title == "ITC is moving" {
			found = true
		}
		if in.Title == "TCS is moving" {
			t.Error("held stocks must not be suggested as movers")
		}
	}
	if !found {
		t.Errorf("expected ITC mover insight, got %+v", insights)
	}
}

func TestFallback_CapsAtFive(t *testing.T) {
	p := &model.Portfolio{
		Cash: d(90000),
		Positions: []model.Position{
			holding("A", "S1", 5000, -20),
		},
	}
	stocks := []model.Stock{
		{Symbol: "B", Name: "B Ltd", Sector: "S2", ChangePercent: 6.0},
	}
	insights := insight.Fallback(p, stocks)
	if len(insights) > 5 {
		t.Errorf("fallback must cap at 5 insights, got %d", len(insights))
	}
	if len(insights) == 0 {
		t.Fatal("fallback must return at least one insight")
	}
}

func TestKeyAvailable(t *testing.T) {
	if insight.NewGenerator("", "", time.Second).KeyAvailable() {
		t.Error("empty key should report unavailable")
	}
	g := insight.NewGenerator("k", "", time.Second)
	if !g.KeyAvailable() || g.Key() != "k" {
		t.Error("configured key should be reported")
	}
}
