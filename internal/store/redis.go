package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockquest/stockquest/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	data, err := s.rdb.Get(ctx, portfolioKey(userID)).Bytes()
	if err == nil {
		var p model.Portfolio
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, portfolioKey(userID), data, s.ttl)
	}
	return p, nil
}

func (s *CachedStore) GetProgress(ctx context.Context, userID string) (*model.LearningProgress, error) {
	data, err := s.rdb.Get(ctx, progressKey(userID)).Bytes()
	if err == nil {
		var lp model.LearningProgress
		if json.Unmarshal(data, &lp) == nil {
			return &lp, nil
		}
	}

	lp, err := s.primary.GetProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(lp); err == nil {
		s.rdb.Set(ctx, progressKey(userID), data, s.ttl)
	}
	return lp, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	if err := s.primary.SavePortfolio(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, portfolioKey(p.UserID))
	return nil
}

func (s *CachedStore) DeletePortfolio(ctx context.Context, userID string) error {
	if err := s.primary.DeletePortfolio(ctx, userID); err != nil {
		return err
	}
	s.rdb.Del(ctx, portfolioKey(userID))
	return nil
}

func (s *CachedStore) SaveProgress(ctx context.Context, lp *model.LearningProgress) error {
	if err := s.primary.SaveProgress(ctx, lp); err != nil {
		return err
	}
	s.rdb.Del(ctx, progressKey(lp.UserID))
	return nil
}

// --- Passthrough (not cached) ---

// InsertOrder also invalidates the cached portfolio: the order history is
// served as part of the portfolio aggregate.
func (s *CachedStore) InsertOrder(ctx context.Context, userID string, o *model.Order) error {
	if err := s.primary.InsertOrder(ctx, userID, o); err != nil {
		return err
	}
	s.rdb.Del(ctx, portfolioKey(userID))
	return nil
}

func (s *CachedStore) GetOrdersByUser(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	return s.primary.GetOrdersByUser(ctx, userID, limit)
}

// --- Cache keys ---

func portfolioKey(uid string) string { return fmt.Sprintf("portfolio:%s", uid) }
func progressKey(uid string) string  { return fmt.Sprintf("progress:%s", uid) }
