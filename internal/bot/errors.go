package bot

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"crossarb/internal/market"
	"crossarb/internal/models"
)

// Ошибки цикла решения и исполнения. Ни одна из них не выходит за пределы
// Executor: каждая переводится в итоговый статус ArbitrageExecution.
var (
	ErrInsufficientDepth = market.ErrInsufficientDepth
	ErrStaleWindow       = errors.New("arbitrage window is stale")
	ErrOrderPlacement    = errors.New("order placement failed")
	ErrFillTimeout       = errors.New("fill timeout")
	ErrValidation        = errors.New("validation failed")
)

// InsufficientDepthError нехватка ликвидности при симуляции
type InsufficientDepthError = market.InsufficientDepthError

// StaleWindowError окно закрылось или цены ушли между обнаружением и коммитом
type StaleWindowError struct {
	Reason  string
	BuyAsk  decimal.Decimal
	SellBid decimal.Decimal
}

func (e *StaleWindowError) Error() string {
	return fmt.Sprintf("stale window: %s (buy ask %s, sell bid %s)", e.Reason, e.BuyAsk, e.SellBid)
}

func (e *StaleWindowError) Is(target error) bool { return target == ErrStaleWindow }

// OrderPlacementError биржа не приняла ордер ноги
type OrderPlacementError struct {
	Venue models.Venue
	Side  models.Side
	Err   error
}

func (e *OrderPlacementError) Error() string {
	return fmt.Sprintf("%s %s leg placement failed: %v", e.Venue, e.Side, e.Err)
}

func (e *OrderPlacementError) Unwrap() error { return e.Err }

func (e *OrderPlacementError) Is(target error) bool { return target == ErrOrderPlacement }

// FillTimeoutError нога не исполнилась за отведённое время
type FillTimeoutError struct {
	Venue   models.Venue
	OrderID string
	Filled  decimal.Decimal
	Timeout time.Duration
}

func (e *FillTimeoutError) Error() string {
	return fmt.Sprintf("%s order %s not filled within %v (filled %s)", e.Venue, e.OrderID, e.Timeout, e.Filled)
}

func (e *FillTimeoutError) Is(target error) bool { return target == ErrFillTimeout }

// ValidationError проверка стакана, баланса или конфигурации не пройдена
type ValidationError struct {
	Check  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation %s: %s", e.Check, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func validationErrorf(check, format string, args ...interface{}) error {
	return &ValidationError{Check: check, Reason: fmt.Sprintf(format, args...)}
}
