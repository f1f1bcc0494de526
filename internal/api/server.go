// Package api provides the HTTP surface: route wiring and handlers that
// bridge requests to the market, portfolio, learning, leaderboard, and
// insight engines.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stockquest/stockquest/internal/analytics"
	"github.com/stockquest/stockquest/internal/insight"
	"github.com/stockquest/stockquest/internal/leaderboard"
	"github.com/stockquest/stockquest/internal/learning"
	"github.com/stockquest/stockquest/internal/market"
	"github.com/stockquest/stockquest/internal/metrics"
	"github.com/stockquest/stockquest/internal/model"
	"github.com/stockquest/stockquest/internal/portfolio"
	"github.com/stockquest/stockquest/internal/session"
)

// Service holds the engines behind the HTTP handlers.
type Service struct {
	market      *market.Provider
	portfolio   *portfolio.Engine
	learning    *learning.Engine
	leaderboard *leaderboard.Provider
	insights    *insight.Generator
	sessions    *session.Manager
	hub         *market.Hub
}

// NewService wires the engines into one HTTP service.
func NewService(
	mkt *market.Provider,
	pf *portfolio.Engine,
	lrn *learning.Engine,
	lb *leaderboard.Provider,
	ins *insight.Generator,
	sess *session.Manager,
	hub *market.Hub,
) *Service {
	return &Service{
		market:      mkt,
		portfolio:   pf,
		learning:    lrn,
		leaderboard: lb,
		insights:    ins,
		sessions:    sess,
		hub:         hub,
	}
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(s *Service) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"stockquest"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", s.Routes)
	return r
}

// Routes mounts the API handlers. Split from NewRouter so tests can
// mount them on a bare router without the middleware stack.
func (s *Service) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	// Market data.
	r.Get("/stocks", s.ListStocks)
	r.Get("/stocks/search", s.SearchStocks)
	r.Get("/stocks/{symbol}", s.GetStock)
	r.Get("/sectors", s.ListSectors)
	r.Get("/market/status", s.MarketStatus)

	// Trading.
	r.Get("/portfolio", s.GetPortfolio)
	r.Post("/portfolio/reset", s.ResetPortfolio)
	r.Get("/portfolio/analytics", s.GetAnalytics)
	r.Post("/orders", s.PlaceOrder)
	r.Get("/orders", s.GetOrders)

	// Learning.
	r.Get("/learning/modules", s.ListModules)
	r.Get("/learning/progress", s.GetProgress)
	r.Get("/learning/achievements", s.GetAchievements)
	r.Post("/learning/modules/{moduleID}/lessons/{lessonID}/complete", s.CompleteLesson)
	r.Post("/learning/modules/{moduleID}/quiz", s.SubmitQuiz)

	// Social.
	r.Get("/leaderboard", s.GetLeaderboard)
	r.Get("/competitions", s.GetCompetitions)

	// AI insights.
	r.Get("/insights", s.GetInsights)
	r.Get("/gemini-key", s.GetGeminiKey)

	// Auth.
	r.Post("/auth/login", s.Login)
	r.Post("/auth/logout", s.Logout)
	r.Get("/auth/me", s.Me)
}

// --- Market data handlers ---

// ListStocks handles GET /api/v1/stocks, optionally filtered by ?sector=.
func (s *Service) ListStocks(w http.ResponseWriter, r *http.Request) {
	if sector := r.URL.Query().Get("sector"); sector != "" {
		writeJSON(w, http.StatusOK, s.market.BySector(sector))
		return
	}
	writeJSON(w, http.StatusOK, s.market.Snapshot())
}

// SearchStocks handles GET /api/v1/stocks/search?q=.
func (s *Service) SearchStocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Search(r.URL.Query().Get("q")))
}

// GetStock handles GET /api/v1/stocks/{symbol}.
func (s *Service) GetStock(w http.ResponseWriter, r *http.Request) {
	stock, err := s.market.Get(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, "stock not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

// ListSectors handles GET /api/v1/sectors.
func (s *Service) ListSectors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Sectors())
}

// MarketStatus handles GET /api/v1/market/status.
func (s *Service) MarketStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"open": s.market.IsOpen()})
}

// --- Trading handlers ---

// portfolioResponse augments the raw portfolio with derived totals.
type portfolioResponse struct {
	*model.Portfolio
	TotalValue string `json:"total_value"`
	TotalPnL   string `json:"total_pnl"`
}

// GetPortfolio handles GET /api/v1/portfolio.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)

	p, err := s.portfolio.Portfolio(r.Context(), userID, s.market.Snapshot())
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolioResponse{
		Portfolio:  p,
		TotalValue: p.TotalValue().StringFixed(2),
		TotalPnL:   p.TotalPnL().StringFixed(2),
	})
}

// orderResponse pairs the executed order with the updated portfolio.
type orderResponse struct {
	Order     *model.Order      `json:"order"`
	Portfolio portfolioResponse `json:"portfolio"`
}

// PlaceOrder handles POST /api/v1/orders.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)

	var req portfolio.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	stock, err := s.market.Get(req.Symbol)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(req.Side), "rejected").Inc()
		writeError(w, "unknown symbol: "+req.Symbol, http.StatusNotFound)
		return
	}

	order, p, err := s.portfolio.PlaceOrder(r.Context(), userID, stock, req)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(req.Side), "rejected").Inc()
		s.handleError(w, err)
		return
	}
	metrics.OrdersTotal.WithLabelValues(string(order.Side), "executed").Inc()

	slog.Info("order executed",
		"user", userID,
		"symbol", order.Symbol,
		"side", order.Side,
		"qty", order.Quantity,
		"price", order.Price.String(),
		"brokerage", order.Brokerage.String(),
	)

	writeJSON(w, http.StatusCreated, orderResponse{
		Order: order,
		Portfolio: portfolioResponse{
			Portfolio:  p,
			TotalValue: p.TotalValue().StringFixed(2),
			TotalPnL:   p.TotalPnL().StringFixed(2),
		},
	})
}

// GetOrders handles GET /api/v1/orders?limit=.
func (s *Service) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	orders, err := s.portfolio.OrderHistory(r.Context(), userID, limit)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// ResetPortfolio handles POST /api/v1/portfolio/reset.
func (s *Service) ResetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)

	p, err := s.portfolio.Reset(r.Context(), userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	slog.Info("portfolio reset", "user", userID)
	writeJSON(w, http.StatusOK, portfolioResponse{
		Portfolio:  p,
		TotalValue: p.TotalValue().StringFixed(2),
		TotalPnL:   "0.00",
	})
}

// analyticsResponse bundles the three derivations. Risk is null for an
// empty portfolio.
type analyticsResponse struct {
	SectorExposure []analytics.SectorExposure  `json:"sector_exposure"`
	Risk           *analytics.RiskAssessment   `json:"risk"`
	Performance    analytics.PerformanceReport `json:"performance"`
}

// GetAnalytics handles GET /api/v1/portfolio/analytics.
func (s *Service) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)
	ctx := r.Context()

	p, err := s.portfolio.Portfolio(ctx, userID, s.market.Snapshot())
	if err != nil {
		s.handleError(w, err)
		return
	}
	orders, err := s.portfolio.OrderHistory(ctx, userID, 0)
	if err != nil {
		s.handleError(w, err)
		return
	}

	exposure := analytics.ComputeSectorExposure(p.Positions)
	if exposure == nil {
		exposure = []analytics.SectorExposure{}
	}
	writeJSON(w, http.StatusOK, analyticsResponse{
		SectorExposure: exposure,
		Risk:           analytics.AssessRisk(p),
		Performance:    analytics.AnalyzePerformance(p, orders),
	})
}

// --- Learning handlers ---

// ListModules handles GET /api/v1/learning/modules.
func (s *Service) ListModules(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)

	modules, err := s.learning.Modules(r.Context(), userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modules)
}

// progressResponse adds the derived level to the stored progress.
type progressResponse struct {
	*model.LearningProgress
	Level int `json:"level"`
}

// GetProgress handles GET /api/v1/learning/progress.
func (s *Service) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)

	lp, err := s.learning.Progress(r.Context(), userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{LearningProgress: lp, Level: lp.Level()})
}

// GetAchievements handles GET /api/v1/learning/achievements.
func (s *Service) GetAchievements(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)

	achievements, err := s.learning.Achievements(r.Context(), userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, achievements)
}

// CompleteLesson handles
// POST /api/v1/learning/modules/{moduleID}/lessons/{lessonID}/complete.
func (s *Service) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)
	moduleID := chi.URLParam(r, "moduleID")
	lessonID := chi.URLParam(r, "lessonID")

	module, err := s.learning.CompleteLesson(r.Context(), userID, moduleID, lessonID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	metrics.LessonsCompleted.Inc()
	writeJSON(w, http.StatusOK, module)
}

// quizRequest is the JSON body for quiz submission.
type quizRequest struct {
	Answers []int `json:"answers"`
}

// SubmitQuiz handles POST /api/v1/learning/modules/{moduleID}/quiz.
// A failing score is a 200 with passed=false, not an error.
func (s *Service) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)
	moduleID := chi.URLParam(r, "moduleID")

	var req quizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.learning.SubmitQuiz(r.Context(), userID, moduleID, req.Answers)
	if err != nil {
		s.handleError(w, err)
		return
	}

	outcome := "failed"
	if result.Passed {
		outcome = "passed"
	}
	metrics.QuizSubmissions.WithLabelValues(outcome).Inc()
	for range result.Unlocked {
		metrics.AchievementsUnlocked.Inc()
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Social handlers ---

// GetLeaderboard handles GET /api/v1/leaderboard.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)

	p, err := s.portfolio.Portfolio(r.Context(), userID, s.market.Snapshot())
	if err != nil {
		s.handleError(w, err)
		return
	}
	entries := s.leaderboard.Rank(userID, s.sessions.Username(r), p.TotalValue())
	writeJSON(w, http.StatusOK, entries)
}

// GetCompetitions handles GET /api/v1/competitions.
func (s *Service) GetCompetitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.leaderboard.Competitions())
}

// --- Insight handlers ---

// insightResponse reports the insights and which path produced them.
type insightResponse struct {
	Insights []model.Insight `json:"insights"`
	Source   string          `json:"source"`
}

// GetInsights handles GET /api/v1/insights. Always 200 with a populated
// list; external failures resolve to the fallback generator.
func (s *Service) GetInsights(w http.ResponseWriter, r *http.Request) {
	userID := s.sessions.Identify(w, r)
	ctx := r.Context()

	p, err := s.portfolio.Portfolio(ctx, userID, s.market.Snapshot())
	if err != nil {
		s.handleError(w, err)
		return
	}
	insights, source := s.insights.Generate(ctx, p, s.market.Snapshot())
	writeJSON(w, http.StatusOK, insightResponse{Insights: insights, Source: source})
}

// GetGeminiKey handles GET /api/v1/gemini-key: the key when configured,
// 404 when unset.
func (s *Service) GetGeminiKey(w http.ResponseWriter, r *http.Request) {
	if !s.insights.KeyAvailable() {
		writeError(w, "no API key configured", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"geminiApiKey": s.insights.Key()})
}

// --- Auth handlers ---

// loginRequest is the JSON body for POST /api/v1/auth/login.
type loginRequest struct {
	Username string `json:"username"`
}

// Login handles POST /api/v1/auth/login.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, "username is required", http.StatusBadRequest)
		return
	}

	userID, err := s.sessions.Login(w, r, req.Username)
	if err != nil {
		writeError(w, "failed to start session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "username": req.Username})
}

// Logout handles POST /api/v1/auth/logout.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(w, r); err != nil {
		writeError(w, "failed to clear session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me.
func (s *Service) Me(w http.ResponseWriter, r *http.Request) {
	username := s.sessions.Username(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   s.sessions.Identify(w, r),
		"username":  username,
		"logged_in": username != "",
	})
}

// --- Response helpers ---

// handleError maps domain errors to HTTP status codes. Business-rule
// rejections are expected outcomes: structured JSON, never a 500.
func (s *Service) handleError(w http.ResponseWriter, err error) {
	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, vErr.Message, http.StatusBadRequest)
	case errors.Is(err, model.ErrInsufficientFunds),
		errors.Is(err, model.ErrInsufficientShares):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, model.ErrModuleLocked):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrStockNotFound),
		errors.Is(err, model.ErrPositionNotFound),
		errors.Is(err, model.ErrModuleNotFound),
		errors.Is(err, model.ErrLessonNotFound),
		errors.Is(err, model.ErrPortfolioNotFound),
		errors.Is(err, model.ErrProgressNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	default:
		slog.Error("internal error", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
