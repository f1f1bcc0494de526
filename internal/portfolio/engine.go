// Package portfolio maintains the authoritative paper-trading ledger for
// one user session: cash, positions, and the append-only order history.
//
// The order transition itself is a pure function (Execute) over a
// Portfolio value so it can be tested without a store or HTTP layer.
// All monetary values use shopspring/decimal, never float64.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockquest/stockquest/internal/model"
	"github.com/stockquest/stockquest/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Fees is the flat-rate-with-floor brokerage model:
// brokerage = max(qty × price × Rate, Min). Charged on both sides.
type Fees struct {
	Rate decimal.Decimal
	Min  decimal.Decimal
}

// Brokerage computes the fee for one fill.
func (f Fees) Brokerage(quantity int64, price decimal.Decimal) decimal.Decimal {
	fee := price.Mul(decimal.NewFromInt(quantity)).Mul(f.Rate)
	if fee.LessThan(f.Min) {
		return f.Min
	}
	return fee
}

// OrderRequest is a validated-at-the-boundary order placement request.
type OrderRequest struct {
	Symbol     string          `json:"symbol"`
	Side       model.OrderSide `json:"side"`
	Quantity   int64           `json:"quantity"`
	PriceType  model.PriceType `json:"price_type"`
	LimitPrice decimal.Decimal `json:"limit_price,omitempty"`
}

// validate rejects malformed requests before any state is touched.
func (r OrderRequest) validate(stock model.Stock) error {
	if r.Side != model.SideBuy && r.Side != model.SideSell {
		return &model.ValidationError{Message: "side must be BUY or SELL"}
	}
	if r.Quantity <= 0 {
		return &model.ValidationError{Message: "quantity must be a positive integer"}
	}
	if r.PriceType != model.PriceMarket && r.PriceType != model.PriceLimit {
		return &model.ValidationError{Message: "price_type must be MARKET or LIMIT"}
	}
	if r.PriceType == model.PriceLimit && r.LimitPrice.LessThanOrEqual(decimal.Zero) {
		return &model.ValidationError{Message: "limit_price must be positive for LIMIT orders"}
	}
	if stock.Symbol != r.Symbol {
		return &model.ValidationError{Message: fmt.Sprintf("stock snapshot %s does not match order symbol %s", stock.Symbol, r.Symbol)}
	}
	if stock.Price.LessThanOrEqual(decimal.Zero) {
		return &model.ValidationError{Message: fmt.Sprintf("stock %s has no valid price", r.Symbol)}
	}
	return nil
}

// Execute applies one order against p. It mutates p only on success and
// returns the executed order record. Business-rule rejections come back
// as model.ErrInsufficientFunds / model.ErrInsufficientShares; input
// problems as *model.ValidationError. The simulation fills every accepted
// order immediately: LIMIT orders fill at the limit price, MARKET orders
// at the snapshot price.
func Execute(p *model.Portfolio, stock model.Stock, req OrderRequest, fees Fees, now time.Time) (model.Order, error) {
	if err := req.validate(stock); err != nil {
		return model.Order{}, err
	}

	price := stock.Price
	if req.PriceType == model.PriceLimit {
		price = req.LimitPrice
	}

	qty := decimal.NewFromInt(req.Quantity)
	gross := price.Mul(qty)
	brokerage := fees.Brokerage(req.Quantity, price)

	var total decimal.Decimal
	switch req.Side {
	case model.SideBuy:
		total = gross.Add(brokerage)
		if total.GreaterThan(p.Cash) {
			return model.Order{}, fmt.Errorf("%w: order costs %s but only %s available",
				model.ErrInsufficientFunds, total.StringFixed(2), p.Cash.StringFixed(2))
		}
		p.Cash = p.Cash.Sub(total)
		applyBuy(p, stock, req.Quantity, price)

	case model.SideSell:
		pos := p.Position(req.Symbol)
		if pos == nil || pos.Quantity < req.Quantity {
			held := int64(0)
			if pos != nil {
				held = pos.Quantity
			}
			return model.Order{}, fmt.Errorf("%w: tried to sell %d, holding %d",
				model.ErrInsufficientShares, req.Quantity, held)
		}
		total = gross.Sub(brokerage)
		p.Cash = p.Cash.Add(total)
		applySell(p, pos, req.Quantity, stock.Price)
	}

	order := model.Order{
		ID:        uuid.New().String(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		PriceType: req.PriceType,
		Price:     price,
		Brokerage: brokerage,
		Total:     total,
		Status:    model.OrderExecuted,
		PlacedAt:  now,
	}
	p.Orders = append(p.Orders, order)
	p.UpdatedAt = now
	return order, nil
}

// applyBuy creates or updates the position with a quantity-weighted
// average price.
func applyBuy(p *model.Portfolio, stock model.Stock, quantity int64, price decimal.Decimal) {
	pos := p.Position(stock.Symbol)
	if pos == nil {
		p.Positions = append(p.Positions, model.Position{
			Symbol:   stock.Symbol,
			Name:     stock.Name,
			Quantity: quantity,
			AvgPrice: price,
			Sector:   stock.Sector,
		})
		pos = &p.Positions[len(p.Positions)-1]
	} else {
		oldQty := decimal.NewFromInt(pos.Quantity)
		newQty := decimal.NewFromInt(quantity)
		totalQty := oldQty.Add(newQty)
		pos.AvgPrice = pos.AvgPrice.Mul(oldQty).Add(price.Mul(newQty)).Div(totalQty)
		pos.Quantity += quantity
	}
	revalue(pos, stock.Price)
}

// applySell reduces the position; average price is unchanged by a sell.
// A position that reaches zero quantity is removed from the list.
func applySell(p *model.Portfolio, pos *model.Position, quantity int64, marketPrice decimal.Decimal) {
	pos.Quantity -= quantity
	if pos.Quantity == 0 {
		for i := range p.Positions {
			if p.Positions[i].Symbol == pos.Symbol {
				p.Positions = append(p.Positions[:i], p.Positions[i+1:]...)
				break
			}
		}
		return
	}
	revalue(pos, marketPrice)
}

// revalue recomputes mark-to-market fields for one position.
func revalue(pos *model.Position, price decimal.Decimal) {
	qty := decimal.NewFromInt(pos.Quantity)
	pos.CurrentPrice = price
	pos.CurrentValue = price.Mul(qty)
	costBasis := pos.AvgPrice.Mul(qty)
	pos.UnrealizedPnL = pos.CurrentValue.Sub(costBasis)
	pos.PnLPercent = 0
	if costBasis.IsPositive() {
		pos.PnLPercent, _ = pos.UnrealizedPnL.Div(costBasis).Mul(hundred).Float64()
	}
}

// MarkToMarket recomputes current value and P&L for every position from
// the given stock snapshots. Positions whose symbol is missing from the
// snapshot keep their last known price. Idempotent.
func MarkToMarket(p *model.Portfolio, stocks []model.Stock) {
	bySymbol := make(map[string]model.Stock, len(stocks))
	for _, s := range stocks {
		bySymbol[s.Symbol] = s
	}
	for i := range p.Positions {
		pos := &p.Positions[i]
		price := pos.CurrentPrice
		if s, ok := bySymbol[pos.Symbol]; ok {
			price = s.Price
		}
		revalue(pos, price)
	}
}

// Engine orchestrates order execution against the store. A mutex
// serializes order placement per instance; each user action runs to
// completion before the next is processed.
type Engine struct {
	store       store.Store
	fees        Fees
	initialCash decimal.Decimal
	clock       func() time.Time
	mu          sync.Mutex
}

// NewEngine creates a portfolio engine. clock defaults to time.Now when nil.
func NewEngine(st store.Store, fees Fees, initialCash decimal.Decimal, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		store:       st,
		fees:        fees,
		initialCash: initialCash,
		clock:       clock,
	}
}

// Portfolio loads the user's portfolio, seeding a fresh one with the
// initial cash amount on first use, and marks it to market.
func (e *Engine) Portfolio(ctx context.Context, userID string, stocks []model.Stock) (*model.Portfolio, error) {
	p, err := e.store.GetPortfolio(ctx, userID)
	if errors.Is(err, model.ErrPortfolioNotFound) {
		p = &model.Portfolio{
			UserID:    userID,
			Cash:      e.initialCash,
			UpdatedAt: e.clock(),
		}
		if err := e.store.SavePortfolio(ctx, p); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	MarkToMarket(p, stocks)
	return p, nil
}

// PlaceOrder executes one order for the user and persists the result.
// Rejections leave the stored portfolio untouched.
func (e *Engine) PlaceOrder(ctx context.Context, userID string, stock model.Stock, req OrderRequest) (*model.Order, *model.Portfolio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.Portfolio(ctx, userID, []model.Stock{stock})
	if err != nil {
		return nil, nil, err
	}

	order, err := Execute(p, stock, req, e.fees, e.clock())
	if err != nil {
		return nil, nil, err
	}

	if err := e.store.SavePortfolio(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("save portfolio: %w", err)
	}
	if err := e.store.InsertOrder(ctx, userID, &order); err != nil {
		return nil, nil, fmt.Errorf("record order: %w", err)
	}
	return &order, p, nil
}

// GetPosition returns the user's position for symbol, or
// model.ErrPositionNotFound.
func (e *Engine) GetPosition(ctx context.Context, userID, symbol string) (*model.Position, error) {
	p, err := e.store.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	pos := p.Position(symbol)
	if pos == nil {
		return nil, model.ErrPositionNotFound
	}
	return pos, nil
}

// OrderHistory returns the most recent limit orders, newest first;
// limit <= 0 returns all.
func (e *Engine) OrderHistory(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	return e.store.GetOrdersByUser(ctx, userID, limit)
}

// Reset wipes the user's portfolio and order history back to seed cash.
func (e *Engine) Reset(ctx context.Context, userID string) (*model.Portfolio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.DeletePortfolio(ctx, userID); err != nil {
		return nil, err
	}
	p := &model.Portfolio{
		UserID:    userID,
		Cash:      e.initialCash,
		UpdatedAt: e.clock(),
	}
	if err := e.store.SavePortfolio(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
