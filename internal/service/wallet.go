package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WalletService owns coin balances. Every mutation is a single statement
// so the non-negativity invariant holds under concurrent callers without
// any locking above the database.
type WalletService struct {
	db *pgxpool.Pool
}

func NewWalletService(db *pgxpool.Pool) *WalletService {
	return &WalletService{db: db}
}

// Grant adds coins to an account, creating it at that balance if absent.
// Returns the new balance.
func (s *WalletService) Grant(ctx context.Context, userID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO accounts (user_id, coins) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET coins = accounts.coins + $2
		RETURNING coins`,
		userID, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("grant coins: %w", err)
	}
	return balance, nil
}

// Spend atomically deducts amount if and only if the balance covers it.
// The guard lives in the WHERE clause; a read-then-write pair here would
// let two concurrent spenders drive the balance negative.
func (s *WalletService) Spend(ctx context.Context, userID int64, amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE accounts SET coins = coins - $1 WHERE user_id = $2 AND coins >= $1",
		amount, userID)
	if err != nil {
		return false, fmt.Errorf("spend coins: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetBalance overwrites an account's balance. Administrative.
func (s *WalletService) SetBalance(ctx context.Context, userID int64, value int64) error {
	if value < 0 {
		return ErrNegativeBalance
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (user_id, coins) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET coins = $2`,
		userID, value)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

// Balance returns the current balance, 0 for accounts that never existed.
func (s *WalletService) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx,
		"SELECT coins FROM accounts WHERE user_id = $1",
		userID).Scan(&balance)
	if err != nil && err != pgx.ErrNoRows {
		return 0, err
	}
	return balance, nil
}
