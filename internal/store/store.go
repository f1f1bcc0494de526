// Package store defines the persistence interface for user state.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (default for local sessions and testing).
package store

import (
	"context"

	"github.com/stockquest/stockquest/internal/model"
)

// Store is the persistence interface. The engines treat it as a mirror of
// per-user session state: cash and positions, the append-only order
// history, and learning progress.
type Store interface {
	// --- Portfolio ---

	// GetPortfolio retrieves cash and positions for a user. Returns
	// model.ErrPortfolioNotFound when the user has no portfolio yet.
	GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error)

	// SavePortfolio upserts cash and positions. Order history is
	// persisted separately through InsertOrder.
	SavePortfolio(ctx context.Context, p *model.Portfolio) error

	// DeletePortfolio removes a user's portfolio and order history.
	DeletePortfolio(ctx context.Context, userID string) error

	// --- Immutable order history ---

	// InsertOrder appends an executed order record.
	InsertOrder(ctx context.Context, userID string, o *model.Order) error

	// GetOrdersByUser returns the most recent limit orders in
	// reverse-chronological order; limit <= 0 means all.
	GetOrdersByUser(ctx context.Context, userID string, limit int) ([]model.Order, error)

	// --- Learning progress ---

	// GetProgress retrieves a user's learning progress. Returns
	// model.ErrProgressNotFound when none has been recorded.
	GetProgress(ctx context.Context, userID string) (*model.LearningProgress, error)

	// SaveProgress upserts a user's learning progress.
	SaveProgress(ctx context.Context, lp *model.LearningProgress) error
}
