package store

import (
	"context"
	"sync"

	"github.com/stockquest/stockquest/internal/model"
)

// MemoryStore implements Store with in-memory maps. The default backend
// for local-only sessions; also used in tests. No persistence.
type MemoryStore struct {
	mu         sync.RWMutex
	portfolios map[string]*model.Portfolio
	orders     map[string][]model.Order
	progress   map[string]*model.LearningProgress
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[string]*model.Portfolio),
		orders:     make(map[string][]model.Order),
		progress:   make(map[string]*model.LearningProgress),
	}
}

func (s *MemoryStore) GetPortfolio(_ context.Context, userID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[userID]
	if !ok {
		return nil, model.ErrPortfolioNotFound
	}
	cp := copyPortfolio(p)
	cp.Orders = append([]model.Order(nil), s.orders[userID]...)
	return cp, nil
}

func (s *MemoryStore) SavePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.portfolios[p.UserID] = copyPortfolio(p)
	return nil
}

func (s *MemoryStore) DeletePortfolio(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.portfolios, userID)
	delete(s.orders, userID)
	return nil
}

func (s *MemoryStore) InsertOrder(_ context.Context, userID string, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[userID] = append(s.orders[userID], *o)
	return nil
}

func (s *MemoryStore) GetOrdersByUser(_ context.Context, userID string, limit int) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.orders[userID]

	// Reverse-chronological: newest first.
	result := make([]model.Order, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		result = append(result, history[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) GetProgress(_ context.Context, userID string) (*model.LearningProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lp, ok := s.progress[userID]
	if !ok {
		return nil, model.ErrProgressNotFound
	}
	return copyProgress(lp), nil
}

func (s *MemoryStore) SaveProgress(_ context.Context, lp *model.LearningProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[lp.UserID] = copyProgress(lp)
	return nil
}

// copyPortfolio deep-copies to avoid external mutation of stored state.
// Orders are not part of the stored value; the order log written through
// InsertOrder is their single source of truth, and GetPortfolio attaches
// them on the way out.
func copyPortfolio(p *model.Portfolio) *model.Portfolio {
	cp := *p
	cp.Positions = append([]model.Position(nil), p.Positions...)
	cp.Orders = nil
	return &cp
}

func copyProgress(lp *model.LearningProgress) *model.LearningProgress {
	cp := *lp
	cp.CompletedModuleIDs = append([]string(nil), lp.CompletedModuleIDs...)
	cp.CompletedLessonIDs = append([]string(nil), lp.CompletedLessonIDs...)
	cp.BonusContentIDs = append([]string(nil), lp.BonusContentIDs...)
	cp.Achievements = append([]model.Achievement(nil), lp.Achievements...)
	cp.QuizAttempts = make(map[string]int, len(lp.QuizAttempts))
	for k, v := range lp.QuizAttempts {
		cp.QuizAttempts[k] = v
	}
	cp.QuizScores = make(map[string]int, len(lp.QuizScores))
	for k, v := range lp.QuizScores {
		cp.QuizScores[k] = v
	}
	cp.ByCategory = make(map[string]int, len(lp.ByCategory))
	for k, v := range lp.ByCategory {
		cp.ByCategory[k] = v
	}
	return &cp
}
