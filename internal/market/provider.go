package market

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockquest/stockquest/internal/model"
)

// Trading window for the simulated exchange (weekdays only).
var (
	openHour, openMinute   = 9, 15
	closeHour, closeMinute = 15, 30
)

// Provider owns the simulated instrument catalog. Prices move on a
// seeded random walk per Tick; each invocation publishes a fresh
// immutable snapshot. Pass nil for hub if broadcasting is not needed.
type Provider struct {
	mu     sync.RWMutex
	stocks []model.Stock
	open   map[string]decimal.Decimal // session open price per symbol
	day    time.Time                  // calendar day the session baselines belong to
	rng    *rand.Rand
	hub    *Hub
	clock  func() time.Time
}

// NewProvider creates a provider with the built-in instrument catalog.
// The rand seed is explicit so price paths are reproducible in tests;
// clock defaults to time.Now when nil.
func NewProvider(hub *Hub, seed int64, clock func() time.Time) *Provider {
	if clock == nil {
		clock = time.Now
	}
	stocks := seedStocks()
	open := make(map[string]decimal.Decimal, len(stocks))
	for _, s := range stocks {
		open[s.Symbol] = s.Price
	}
	return &Provider{
		stocks: stocks,
		open:   open,
		day:    clock(),
		rng:    rand.New(rand.NewSource(seed)),
		hub:    hub,
		clock:  clock,
	}
}

// Snapshot returns a copy of the current stock list.
func (p *Provider) Snapshot() []model.Stock {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.Stock(nil), p.stocks...)
}

// Get returns the current snapshot for one symbol.
func (p *Provider) Get(symbol string) (model.Stock, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.stocks {
		if s.Symbol == symbol {
			return s, nil
		}
	}
	return model.Stock{}, model.ErrStockNotFound
}

// Search returns stocks whose symbol or name contains the query,
// case-insensitive. An empty query matches nothing.
func (p *Provider) Search(query string) []model.Stock {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []model.Stock{}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	result := []model.Stock{}
	for _, s := range p.stocks {
		if strings.Contains(strings.ToLower(s.Symbol), query) ||
			strings.Contains(strings.ToLower(s.Name), query) {
			result = append(result, s)
		}
	}
	return result
}

// BySector filters the catalog to one sector label.
func (p *Provider) BySector(sector string) []model.Stock {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := []model.Stock{}
	for _, s := range p.stocks {
		if strings.EqualFold(s.Sector, sector) {
			result = append(result, s)
		}
	}
	return result
}

// Sectors returns the sorted set of sector labels in the catalog.
func (p *Provider) Sectors() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen := make(map[string]bool)
	var sectors []string
	for _, s := range p.stocks {
		if !seen[s.Sector] {
			seen[s.Sector] = true
			sectors = append(sectors, s.Sector)
		}
	}
	sort.Strings(sectors)
	return sectors
}

// IsOpen reports whether the simulated market is in its trading window:
// Monday to Friday, 09:15 to 15:30 in the clock's location.
func (p *Provider) IsOpen() bool {
	return isOpenAt(p.clock())
}

func isOpenAt(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= openHour*60+openMinute && minutes <= closeHour*60+closeMinute
}

// Tick applies one random-walk step (±0.8% max) to every instrument and
// broadcasts the refreshed quotes. Day high/low and volume accumulate
// within the session; the first tick on a new calendar day rolls the
// session over, so change and high/low measure from today's open.
func (p *Provider) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	if !sameSessionDay(p.day, now) {
		p.rollSession(now)
	}
	marketOpen := isOpenAt(now)

	hundred := decimal.NewFromInt(100)
	for i := range p.stocks {
		s := &p.stocks[i]

		driftPct := (p.rng.Float64()*2 - 1) * 0.8
		drift := decimal.NewFromFloat(driftPct).Div(hundred)
		s.Price = s.Price.Add(s.Price.Mul(drift)).Round(2)
		if !s.Price.IsPositive() {
			s.Price = decimal.NewFromFloat(0.05) // price floor
		}

		open := p.open[s.Symbol]
		s.Change = s.Price.Sub(open)
		if open.IsPositive() {
			s.ChangePercent, _ = s.Change.Div(open).Mul(hundred).Float64()
		}
		if s.Price.GreaterThan(s.DayHigh) {
			s.DayHigh = s.Price
		}
		if s.Price.LessThan(s.DayLow) {
			s.DayLow = s.Price
		}
		s.Volume += p.rng.Int63n(50000)

		if p.hub != nil {
			p.hub.Broadcast(WSMessage{
				Type:          "quote_update",
				Symbol:        s.Symbol,
				Price:         s.Price.String(),
				Change:        s.Change.String(),
				ChangePercent: s.ChangePercent,
				Volume:        s.Volume,
				MarketOpen:    marketOpen,
			})
		}
	}
}

// rollSession starts a fresh trading session: the previous close becomes
// today's open, high/low collapse onto it, and volume restarts at zero.
// Caller holds the lock.
func (p *Provider) rollSession(now time.Time) {
	for i := range p.stocks {
		s := &p.stocks[i]
		p.open[s.Symbol] = s.Price
		s.DayHigh = s.Price
		s.DayLow = s.Price
		s.Change = decimal.Zero
		s.ChangePercent = 0
		s.Volume = 0
	}
	p.day = now
}

func sameSessionDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Run ticks prices at the given interval while the market is open.
// Blocks until ctx is cancelled.
func (p *Provider) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("market ticker started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.IsOpen() {
				p.Tick()
			}
		}
	}
}

func seedStocks() []model.Stock {
	mk := func(symbol, name string, price float64, volume int64, sector string) model.Stock {
		d := decimal.NewFromFloat(price)
		return model.Stock{
			Symbol:  symbol,
			Name:    name,
			Price:   d,
			DayHigh: d,
			DayLow:  d,
			Volume:  volume,
			Sector:  sector,
		}
	}
	return []model.Stock{
		mk("RELIANCE", "Reliance Industries", 2847.50, 4521000, "Energy"),
		mk("TCS", "Tata Consultancy Services", 3912.25, 1872000, "IT"),
		mk("INFY", "Infosys", 1654.80, 3210000, "IT"),
		mk("HDFCBANK", "HDFC Bank", 1689.30, 5640000, "Banking"),
		mk("ICICIBANK", "ICICI Bank", 1124.75, 6102000, "Banking"),
		mk("SUNPHARMA", "Sun Pharmaceutical", 1478.60, 1435000, "Pharma"),
		mk("TATAMOTORS", "Tata Motors", 986.45, 7254000, "Auto"),
		mk("MARUTI", "Maruti Suzuki", 12410.00, 482000, "Auto"),
		mk("ITC", "ITC Limited", 462.90, 9840000, "FMCG"),
		mk("HINDUNILVR", "Hindustan Unilever", 2518.35, 1126000, "FMCG"),
		mk("BHARTIARTL", "Bharti Airtel", 1362.40, 2891000, "Telecom"),
		mk("ASIANPAINT", "Asian Paints", 2934.15, 765000, "Consumer Goods"),
	}
}
