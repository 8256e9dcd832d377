package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/cardops/internal/domain"
	"github.com/punchamoorthee/cardops/internal/store"
)

// TradeService runs the 1:1 barter protocol: propose, accept, cancel.
// Acceptance re-validates both sides' holdings and applies the bilateral
// transfer in one transaction, so a trade can never half-apply or settle
// twice.
type TradeService struct {
	db    *pgxpool.Pool
	store *store.Store
	now   func() int64
}

func NewTradeService(db *pgxpool.Pool, st *store.Store, now func() int64) *TradeService {
	return &TradeService{db: db, store: st, now: now}
}

// Propose records a pending trade. The holding checks here are advisory
// only; holdings can change before acceptance, and Accept re-checks them
// authoritatively.
func (s *TradeService) Propose(ctx context.Context, req domain.TradeRequest) (*domain.Trade, error) {
	if req.OfferedQty <= 0 || req.RequestedQty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if req.Proposer == req.Counterparty {
		return nil, ErrSelfTrade
	}

	held, err := s.store.HoldingQty(ctx, req.Proposer, req.OfferedCardID)
	if err != nil {
		return nil, err
	}
	if held < req.OfferedQty {
		return nil, ErrInsufficientHoldings
	}
	held, err = s.store.HoldingQty(ctx, req.Counterparty, req.RequestedCardID)
	if err != nil {
		return nil, err
	}
	if held < req.RequestedQty {
		return nil, ErrInsufficientHoldings
	}

	trade := &domain.Trade{
		Proposer:        req.Proposer,
		Counterparty:    req.Counterparty,
		OfferedCardID:   req.OfferedCardID,
		OfferedQty:      req.OfferedQty,
		RequestedCardID: req.RequestedCardID,
		RequestedQty:    req.RequestedQty,
		Status:          domain.TradePending,
		CreatedTS:       s.now(),
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO trades (proposer, counterparty, offered_card_id, offered_qty,
		                    requested_card_id, requested_qty, status, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING trade_id`,
		trade.Proposer, trade.Counterparty, trade.OfferedCardID, trade.OfferedQty,
		trade.RequestedCardID, trade.RequestedQty, trade.Status, trade.CreatedTS,
	).Scan(&trade.ID)
	if err != nil {
		return nil, fmt.Errorf("insert trade: %w", err)
	}
	return trade, nil
}

// Accept settles a pending trade. Only the counterparty may accept. Both
// legs commit together or not at all; on an insufficiency the trade stays
// pending so the parties can re-propose or cancel.
func (s *TradeService) Accept(ctx context.Context, tradeID, actor int64) (*domain.Trade, error) {
	// Read committed on purpose: a racing Accept that loses the trade-row
	// lock must observe the winner's committed status and fail with
	// ErrNotPending, not a serialization error.
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	trade, err := lockTrade(ctx, tx, tradeID)
	if err != nil {
		return nil, err
	}
	if actor != trade.Counterparty {
		return nil, ErrWrongActor
	}
	if trade.Status != domain.TradePending {
		return nil, ErrNotPending
	}

	// Lock both account rows in ID order before touching holdings, same
	// deadlock-prevention scheme as any two-party transfer. The rows are
	// created lazily first so the locks always have something to grab.
	first, second := trade.Proposer, trade.Counterparty
	if first > second {
		first, second = second, first
	}
	for _, id := range []int64{first, second} {
		if err := store.EnsureAccount(ctx, tx, id); err != nil {
			return nil, fmt.Errorf("ensure account: %w", err)
		}
		if _, err := tx.Exec(ctx,
			"SELECT 1 FROM accounts WHERE user_id = $1 FOR UPDATE", id); err != nil {
			return nil, fmt.Errorf("lock account: %w", err)
		}
	}

	// Authoritative sufficiency re-check: the advisory check at proposal
	// time is stale by now.
	if err := checkHolding(ctx, tx, trade.Proposer, trade.OfferedCardID, trade.OfferedQty); err != nil {
		return nil, err
	}
	if err := checkHolding(ctx, tx, trade.Counterparty, trade.RequestedCardID, trade.RequestedQty); err != nil {
		return nil, err
	}

	// Both decrements before both increments, so the transfer also nets
	// correctly when offered and requested card are the same.
	if err := removeCards(ctx, tx, trade.Proposer, trade.OfferedCardID, trade.OfferedQty); err != nil {
		return nil, err
	}
	if err := removeCards(ctx, tx, trade.Counterparty, trade.RequestedCardID, trade.RequestedQty); err != nil {
		return nil, err
	}
	if err := addCards(ctx, tx, trade.Counterparty, trade.OfferedCardID, trade.OfferedQty); err != nil {
		return nil, err
	}
	if err := addCards(ctx, tx, trade.Proposer, trade.RequestedCardID, trade.RequestedQty); err != nil {
		return nil, err
	}

	if err := setStatus(ctx, tx, tradeID, domain.TradeDone); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	trade.Status = domain.TradeDone
	return trade, nil
}

// Cancel aborts a pending trade. Either party may cancel; holdings are
// untouched.
func (s *TradeService) Cancel(ctx context.Context, tradeID, actor int64) (*domain.Trade, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	trade, err := lockTrade(ctx, tx, tradeID)
	if err != nil {
		return nil, err
	}
	if actor != trade.Proposer && actor != trade.Counterparty {
		return nil, ErrWrongActor
	}
	if trade.Status != domain.TradePending {
		return nil, ErrNotPending
	}

	if err := setStatus(ctx, tx, tradeID, domain.TradeCancelled); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	trade.Status = domain.TradeCancelled
	return trade, nil
}

func lockTrade(ctx context.Context, tx pgx.Tx, tradeID int64) (*domain.Trade, error) {
	var t domain.Trade
	err := tx.QueryRow(ctx, `
		SELECT trade_id, proposer, counterparty, offered_card_id, offered_qty,
		       requested_card_id, requested_qty, status, created_ts
		FROM trades WHERE trade_id = $1 FOR UPDATE`,
		tradeID).Scan(&t.ID, &t.Proposer, &t.Counterparty, &t.OfferedCardID, &t.OfferedQty,
		&t.RequestedCardID, &t.RequestedQty, &t.Status, &t.CreatedTS)
	if err == pgx.ErrNoRows {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock trade: %w", err)
	}
	return &t, nil
}

func checkHolding(ctx context.Context, tx pgx.Tx, userID int64, cardID string, qty int64) error {
	var held int64
	err := tx.QueryRow(ctx,
		"SELECT qty FROM holdings WHERE user_id = $1 AND card_id = $2",
		userID, cardID).Scan(&held)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("check holding: %w", err)
	}
	if held < qty {
		return ErrInsufficientHoldings
	}
	return nil
}

// removeCards takes qty of a card away, guarded so the quantity can never
// go negative even if the pre-check raced, and drops the row at zero.
func removeCards(ctx context.Context, tx pgx.Tx, userID int64, cardID string, qty int64) error {
	tag, err := tx.Exec(ctx,
		"UPDATE holdings SET qty = qty - $3 WHERE user_id = $1 AND card_id = $2 AND qty >= $3",
		userID, cardID, qty)
	if err != nil {
		return fmt.Errorf("remove cards: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientHoldings
	}
	_, err = tx.Exec(ctx,
		"DELETE FROM holdings WHERE user_id = $1 AND card_id = $2 AND qty <= 0",
		userID, cardID)
	if err != nil {
		return fmt.Errorf("trim empty holding: %w", err)
	}
	return nil
}

func addCards(ctx context.Context, tx pgx.Tx, userID int64, cardID string, qty int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO holdings (user_id, card_id, qty) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, card_id) DO UPDATE SET qty = holdings.qty + $3`,
		userID, cardID, qty)
	if err != nil {
		return fmt.Errorf("add cards: %w", err)
	}
	return nil
}

// setStatus flips a trade out of pending. The WHERE guard makes the
// transition a single conditional update: if a racing call settled the
// trade first, zero rows match and the caller sees ErrNotPending.
func setStatus(ctx context.Context, tx pgx.Tx, tradeID int64, status domain.TradeStatus) error {
	tag, err := tx.Exec(ctx,
		"UPDATE trades SET status = $1 WHERE trade_id = $2 AND status = $3",
		status, tradeID, domain.TradePending)
	if err != nil {
		return fmt.Errorf("update trade status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}
