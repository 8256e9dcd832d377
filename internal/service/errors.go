package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrNegativeBalance      = errors.New("balance cannot be negative")
	ErrSelfTrade            = errors.New("cannot trade with yourself")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrTradeNotFound        = errors.New("trade not found")
	ErrWrongActor           = errors.New("not allowed for this account")
	ErrNotPending           = errors.New("trade is no longer pending")

	// Operator problems, not user errors: the weight table or the draw
	// pool for a selected rarity is empty.
	ErrNoWeights = errors.New("rarity weight table has no positive weights")
	ErrEmptyPool = errors.New("no cards exist for the drawn rarity")
)

// CooldownError reports how long until the next free pull is allowed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("pull on cooldown, %s remaining", e.Remaining)
}
