package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/cardops/internal/domain"
	"github.com/punchamoorthee/cardops/internal/store"
)

// GachaService performs card draws: the cooldown-gated free pull and the
// coin-priced shop purchase. Each draw runs in one transaction anchored on
// the caller's account row, so two concurrent draws for the same account
// serialize and cannot both pass the cooldown or price gate.
type GachaService struct {
	db             *pgxpool.Pool
	store          *store.Store
	cooldown       time.Duration
	duplicateCoins int64
	packPrice      int64

	// Injection points for tests; defaults are the wall clock and the
	// shared math/rand source.
	now       func() time.Time
	randFloat func() float64
	randIntn  func(int) int
}

func NewGachaService(db *pgxpool.Pool, st *store.Store, cooldown time.Duration, duplicateCoins, packPrice int64) *GachaService {
	return &GachaService{
		db:             db,
		store:          st,
		cooldown:       cooldown,
		duplicateCoins: duplicateCoins,
		packPrice:      packPrice,
		now:            time.Now,
		randFloat:      rand.Float64,
		randIntn:       rand.Intn,
	}
}

// Pull draws one card if the caller's cooldown has elapsed. The cooldown
// timestamp is only committed together with the draw, so a failed draw
// (empty pool, missing weights) never consumes the cooldown.
func (s *GachaService) Pull(ctx context.Context, userID int64) (*domain.DrawResult, error) {
	// Read committed: a concurrent pull that loses the account-row lock
	// must observe the winner's committed timestamp and hit the cooldown.
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lazy account creation, then a row lock to linearize per-account.
	if err := store.EnsureAccount(ctx, tx, userID); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	var lastPull int64
	if err := tx.QueryRow(ctx,
		"SELECT last_pull_ts FROM accounts WHERE user_id = $1 FOR UPDATE",
		userID).Scan(&lastPull); err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}

	now := s.now()
	if since := now.Unix() - lastPull; since < int64(s.cooldown.Seconds()) {
		return nil, &CooldownError{Remaining: s.cooldown - time.Duration(since)*time.Second}
	}

	result, err := s.draw(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		"UPDATE accounts SET last_pull_ts = $1 WHERE user_id = $2",
		now.Unix(), userID); err != nil {
		return nil, fmt.Errorf("mark pulled: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return result, nil
}

// Buy draws one card for the configured pack price. Not cooldown-gated.
// The spend is a single conditional update; if the draw then fails, the
// rollback refunds it.
func (s *GachaService) Buy(ctx context.Context, userID int64) (*domain.DrawResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// An absent account has balance 0, so the guarded update failing
	// covers both "no account" and "not enough coins".
	tag, err := tx.Exec(ctx,
		"UPDATE accounts SET coins = coins - $1 WHERE user_id = $2 AND coins >= $1",
		s.packPrice, userID)
	if err != nil {
		return nil, fmt.Errorf("spend pack price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrInsufficientFunds
	}

	result, err := s.draw(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return result, nil
}

// draw picks a rarity by weight, a card uniformly within it, and merges it
// into the caller's holdings, granting the duplicate reward when the card
// was already held. Runs inside the caller's transaction; the account row
// is already locked.
func (s *GachaService) draw(ctx context.Context, tx pgx.Tx, userID int64) (*domain.DrawResult, error) {
	weights, err := s.store.ListWeights(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	rarity, err := pickRarity(weights, s.randFloat)
	if err != nil {
		return nil, err
	}

	pool, err := s.store.CardsByRarity(ctx, rarity)
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}
	card := pool[s.randIntn(len(pool))]

	var held int64
	err = tx.QueryRow(ctx,
		"SELECT qty FROM holdings WHERE user_id = $1 AND card_id = $2",
		userID, card.ID).Scan(&held)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("check holding: %w", err)
	}
	duplicate := held > 0

	if _, err := tx.Exec(ctx, `
		INSERT INTO holdings (user_id, card_id, qty) VALUES ($1, $2, 1)
		ON CONFLICT (user_id, card_id) DO UPDATE SET qty = holdings.qty + 1`,
		userID, card.ID); err != nil {
		return nil, fmt.Errorf("merge holding: %w", err)
	}

	result := &domain.DrawResult{Card: card, Duplicate: duplicate}
	if duplicate {
		result.Reward = s.duplicateCoins
		if _, err := tx.Exec(ctx,
			"UPDATE accounts SET coins = coins + $1 WHERE user_id = $2",
			s.duplicateCoins, userID); err != nil {
			return nil, fmt.Errorf("grant duplicate reward: %w", err)
		}
	}

	if err := tx.QueryRow(ctx,
		"SELECT coins FROM accounts WHERE user_id = $1",
		userID).Scan(&result.Coins); err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	return result, nil
}

// pickRarity selects a tier with probability weight/sum(weights).
// Zero-weight tiers are never selected; a table with no positive weight is
// an operator configuration problem.
func pickRarity(weights []domain.RarityWeight, randFloat func() float64) (domain.Rarity, error) {
	var total float64
	for _, w := range weights {
		if w.Weight > 0 {
			total += w.Weight
		}
	}
	if total <= 0 {
		return "", ErrNoWeights
	}

	target := randFloat() * total
	var last domain.Rarity
	for _, w := range weights {
		if w.Weight <= 0 {
			continue
		}
		last = w.Rarity
		target -= w.Weight
		if target < 0 {
			return w.Rarity, nil
		}
	}
	// Float round-off can land target exactly on the total; that belongs
	// to the final positive-weight tier.
	return last, nil
}
