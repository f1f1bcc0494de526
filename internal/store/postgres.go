package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockquest/stockquest/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Learning progress is stored as a JSONB document per user.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	var p model.Portfolio
	var cash string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, cash::TEXT, updated_at
		 FROM portfolios WHERE user_id = $1`, userID).
		Scan(&p.UserID, &cash, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", userID, err)
	}
	p.Cash, _ = decimal.NewFromString(cash)

	rows, err := s.pool.Query(ctx,
		`SELECT symbol, name, quantity,
		        avg_price::TEXT, current_price::TEXT, sector
		 FROM positions WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var pos model.Position
		var avgPrice, currentPrice string
		if err := rows.Scan(&pos.Symbol, &pos.Name, &pos.Quantity,
			&avgPrice, &currentPrice, &pos.Sector); err != nil {
			return nil, err
		}
		pos.AvgPrice, _ = decimal.NewFromString(avgPrice)
		pos.CurrentPrice, _ = decimal.NewFromString(currentPrice)

		qty := decimal.NewFromInt(pos.Quantity)
		pos.CurrentValue = pos.CurrentPrice.Mul(qty)
		pos.UnrealizedPnL = pos.CurrentValue.Sub(pos.AvgPrice.Mul(qty))
		costBasis := pos.AvgPrice.Mul(qty)
		if costBasis.IsPositive() {
			pos.PnLPercent, _ = pos.UnrealizedPnL.Div(costBasis).Mul(decimal.NewFromInt(100)).Float64()
		}
		p.Positions = append(p.Positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	// The orders table is the source of truth for the portfolio's order
	// history, mirroring the in-memory backend.
	orders, err := s.queryOrders(ctx, userID, 0, false)
	if err != nil {
		return nil, fmt.Errorf("load orders %s: %w", userID, err)
	}
	p.Orders = orders
	return &p, nil
}

// SavePortfolio upserts cash and rewrites positions in one transaction.
func (s *PostgresStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO portfolios (user_id, cash, updated_at)
		 VALUES ($1, $2::NUMERIC, $3)
		 ON CONFLICT (user_id) DO UPDATE SET cash = $2::NUMERIC, updated_at = $3`,
		p.UserID, p.Cash.String(), p.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE user_id = $1`, p.UserID); err != nil {
		return err
	}

	for i := range p.Positions {
		pos := &p.Positions[i]
		_, err := tx.Exec(ctx,
			`INSERT INTO positions (user_id, symbol, name, quantity, avg_price, current_price, sector)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
			p.UserID, pos.Symbol, pos.Name, pos.Quantity,
			pos.AvgPrice.String(), pos.CurrentPrice.String(), pos.Sector,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) DeletePortfolio(ctx context.Context, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, q := range []string{
		`DELETE FROM positions WHERE user_id = $1`,
		`DELETE FROM orders WHERE user_id = $1`,
		`DELETE FROM portfolios WHERE user_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, userID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) InsertOrder(ctx context.Context, userID string, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, user_id, symbol, side, quantity, price_type, price, brokerage, total, status, placed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		o.ID, userID, o.Symbol, o.Side, o.Quantity, o.PriceType,
		o.Price.String(), o.Brokerage.String(), o.Total.String(),
		o.Status, o.PlacedAt,
	)
	return err
}

func (s *PostgresStore) GetOrdersByUser(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	return s.queryOrders(ctx, userID, limit, true)
}

func (s *PostgresStore) queryOrders(ctx context.Context, userID string, limit int, newestFirst bool) ([]model.Order, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	query := `SELECT id, symbol, side, quantity, price_type,
	                 price::TEXT, brokerage::TEXT, total::TEXT, status, placed_at
	          FROM orders WHERE user_id = $1 ORDER BY placed_at ` + order
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var price, brokerage, total string
		if err := rows.Scan(&o.ID, &o.Symbol, &o.Side, &o.Quantity, &o.PriceType,
			&price, &brokerage, &total, &o.Status, &o.PlacedAt); err != nil {
			return nil, err
		}
		o.Price, _ = decimal.NewFromString(price)
		o.Brokerage, _ = decimal.NewFromString(brokerage)
		o.Total, _ = decimal.NewFromString(total)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) GetProgress(ctx context.Context, userID string) (*model.LearningProgress, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM learning_progress WHERE user_id = $1`, userID).
		Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress %s: %w", userID, err)
	}

	var lp model.LearningProgress
	if err := json.Unmarshal(data, &lp); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", userID, err)
	}
	return &lp, nil
}

func (s *PostgresStore) SaveProgress(ctx context.Context, lp *model.LearningProgress) error {
	data, err := json.Marshal(lp)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO learning_progress (user_id, data)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET data = $2`,
		lp.UserID, data,
	)
	return err
}
