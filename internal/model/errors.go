package model

import "errors"

// Sentinel errors for expected business-rule rejections. The API layer
// maps these to HTTP status codes; they are outcomes, not crashes.
var (
	ErrInsufficientFunds  = errors.New("insufficient_funds")
	ErrInsufficientShares = errors.New("insufficient_shares")
	ErrStockNotFound      = errors.New("stock_not_found")
	ErrPositionNotFound   = errors.New("position_not_found")
	ErrModuleNotFound     = errors.New("module_not_found")
	ErrModuleLocked       = errors.New("module_locked")
	ErrLessonNotFound     = errors.New("lesson_not_found")
	ErrPortfolioNotFound  = errors.New("portfolio_not_found")
	ErrProgressNotFound   = errors.New("progress_not_found")
)

// ValidationError represents a request validation failure, rejected at
// the boundary before any state mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
