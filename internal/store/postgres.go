package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/cardops/internal/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS cards (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    rarity     TEXT NOT NULL,
    image_url  TEXT NOT NULL,
    flow       INTEGER,
    punchlines INTEGER,
    style      INTEGER,
    reputation INTEGER
);

CREATE TABLE IF NOT EXISTS accounts (
    user_id      BIGINT PRIMARY KEY,
    coins        BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
    last_pull_ts BIGINT NOT NULL DEFAULT 0
);

-- Rows at qty 0 are deleted in the same transaction that decremented
-- them; the CHECK only guards against going negative.
CREATE TABLE IF NOT EXISTS holdings (
    user_id BIGINT NOT NULL,
    card_id TEXT NOT NULL REFERENCES cards(id),
    qty     BIGINT NOT NULL CHECK (qty >= 0),
    PRIMARY KEY (user_id, card_id)
);

CREATE TABLE IF NOT EXISTS rarity_weights (
    rarity TEXT PRIMARY KEY,
    weight DOUBLE PRECISION NOT NULL CHECK (weight >= 0)
);

CREATE TABLE IF NOT EXISTS trades (
    trade_id          BIGSERIAL PRIMARY KEY,
    proposer          BIGINT NOT NULL,
    counterparty      BIGINT NOT NULL,
    offered_card_id   TEXT NOT NULL REFERENCES cards(id),
    offered_qty       BIGINT NOT NULL CHECK (offered_qty > 0),
    requested_card_id TEXT NOT NULL REFERENCES cards(id),
    requested_qty     BIGINT NOT NULL CHECK (requested_qty > 0),
    status            TEXT NOT NULL DEFAULT 'pending',
    created_ts        BIGINT NOT NULL
);
`

// rarityPoints is the SQL twin of domain.Rarity.Points; leaderboards
// compute scores in the database like every other aggregate.
const rarityPoints = `CASE c.rarity
    WHEN 'Legendary'  THEN 10
    WHEN 'Ultra Rare' THEN 5
    WHEN 'Rare'       THEN 2
    ELSE                   1
END`

const rarityRank = `CASE c.rarity
    WHEN 'Legendary'  THEN 4
    WHEN 'Ultra Rare' THEN 3
    WHEN 'Rare'       THEN 2
    ELSE                   1
END`

type Store struct {
	Db *pgxpool.Pool
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureAccount lazily creates the account row with zero coins and no
// pull history. Accounts are never created any other way; callers inside
// a transaction pass their pgx.Tx so the row exists before they lock it.
func EnsureAccount(ctx context.Context, db execer, userID int64) error {
	_, err := db.Exec(ctx,
		"INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING",
		userID)
	return err
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

// InitSchema creates the tables and seeds the default draw weights. The
// seed is insert-only so weight overrides survive restarts.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	defaults := []domain.RarityWeight{
		{Rarity: domain.RarityCommon, Weight: 75},
		{Rarity: domain.RarityRare, Weight: 25},
		{Rarity: domain.RarityUltraRare, Weight: 3},
		{Rarity: domain.RarityLegendary, Weight: 0.5},
	}
	for _, w := range defaults {
		_, err := s.Db.Exec(ctx,
			"INSERT INTO rarity_weights (rarity, weight) VALUES ($1, $2) ON CONFLICT (rarity) DO NOTHING",
			w.Rarity, w.Weight)
		if err != nil {
			return fmt.Errorf("seed weight %s: %w", w.Rarity, err)
		}
	}
	return nil
}

// UpsertCards bulk-loads catalog definitions. Re-ingesting an existing ID
// overwrites every field.
func (s *Store) UpsertCards(ctx context.Context, cards []domain.Card) error {
	batch := &pgx.Batch{}
	for _, c := range cards {
		batch.Queue(`
			INSERT INTO cards (id, name, rarity, image_url, flow, punchlines, style, reputation)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
			    name       = excluded.name,
			    rarity     = excluded.rarity,
			    image_url  = excluded.image_url,
			    flow       = excluded.flow,
			    punchlines = excluded.punchlines,
			    style      = excluded.style,
			    reputation = excluded.reputation`,
			c.ID, c.Name, c.Rarity, c.ImageURL, c.Flow, c.Punchlines, c.Style, c.Reputation)
	}
	results := s.Db.SendBatch(ctx, batch)
	defer results.Close()
	for range cards {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert card: %w", err)
		}
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, id string) (*domain.Card, error) {
	var c domain.Card
	err := s.Db.QueryRow(ctx,
		"SELECT id, name, rarity, image_url, flow, punchlines, style, reputation FROM cards WHERE id = $1",
		id).Scan(&c.ID, &c.Name, &c.Rarity, &c.ImageURL, &c.Flow, &c.Punchlines, &c.Style, &c.Reputation)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CardsByRarity returns the full draw pool for one rarity tier.
func (s *Store) CardsByRarity(ctx context.Context, rarity domain.Rarity) ([]domain.Card, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT id, name, rarity, image_url, flow, punchlines, style, reputation FROM cards WHERE rarity = $1",
		rarity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(&c.ID, &c.Name, &c.Rarity, &c.ImageURL, &c.Flow, &c.Punchlines, &c.Style, &c.Reputation); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (s *Store) ListWeights(ctx context.Context) ([]domain.RarityWeight, error) {
	rows, err := s.Db.Query(ctx, "SELECT rarity, weight FROM rarity_weights ORDER BY rarity")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weights []domain.RarityWeight
	for rows.Next() {
		var w domain.RarityWeight
		if err := rows.Scan(&w.Rarity, &w.Weight); err != nil {
			return nil, err
		}
		weights = append(weights, w)
	}
	return weights, rows.Err()
}

func (s *Store) SetWeight(ctx context.Context, rarity domain.Rarity, weight float64) error {
	_, err := s.Db.Exec(ctx,
		"INSERT INTO rarity_weights (rarity, weight) VALUES ($1, $2) ON CONFLICT (rarity) DO UPDATE SET weight = excluded.weight",
		rarity, weight)
	return err
}

// GetAccount returns the account row, or a zero-valued account for users
// the system has never seen. Accounts are created lazily on first write,
// so "absent" and "zero coins, never pulled" are the same state.
func (s *Store) GetAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	acc := domain.Account{UserID: userID}
	err := s.Db.QueryRow(ctx,
		"SELECT coins, last_pull_ts FROM accounts WHERE user_id = $1",
		userID).Scan(&acc.Coins, &acc.LastPullTS)
	if err != nil && err != pgx.ErrNoRows {
		return nil, err
	}
	return &acc, nil
}

// HoldingQty returns how many of a card the user holds, 0 if none.
func (s *Store) HoldingQty(ctx context.Context, userID int64, cardID string) (int64, error) {
	var qty int64
	err := s.Db.QueryRow(ctx,
		"SELECT qty FROM holdings WHERE user_id = $1 AND card_id = $2",
		userID, cardID).Scan(&qty)
	if err != nil && err != pgx.ErrNoRows {
		return 0, err
	}
	return qty, nil
}

// Inventory lists the user's full collection, highest rarity first, then
// by name.
func (s *Store) Inventory(ctx context.Context, userID int64) ([]domain.InventoryCard, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT c.id, c.name, c.rarity, c.image_url, c.flow, c.punchlines, c.style, c.reputation, h.qty
		FROM holdings h
		JOIN cards c ON c.id = h.card_id
		WHERE h.user_id = $1
		ORDER BY `+rarityRank+` DESC, c.name ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inv []domain.InventoryCard
	for rows.Next() {
		var ic domain.InventoryCard
		if err := rows.Scan(&ic.ID, &ic.Name, &ic.Rarity, &ic.ImageURL, &ic.Flow, &ic.Punchlines, &ic.Style, &ic.Reputation, &ic.Quantity); err != nil {
			return nil, err
		}
		inv = append(inv, ic)
	}
	return inv, rows.Err()
}

// ScoreLeaderboard ranks users by rarity-weighted collection score,
// ties broken by total card count.
func (s *Store) ScoreLeaderboard(ctx context.Context, limit int) ([]domain.ScoreRow, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT h.user_id, SUM(h.qty) AS cards_total, SUM(h.qty * `+rarityPoints+`) AS score
		FROM holdings h
		JOIN cards c ON c.id = h.card_id
		GROUP BY h.user_id
		ORDER BY score DESC, cards_total DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var board []domain.ScoreRow
	for rows.Next() {
		var r domain.ScoreRow
		if err := rows.Scan(&r.UserID, &r.CardsTotal, &r.Score); err != nil {
			return nil, err
		}
		board = append(board, r)
	}
	return board, rows.Err()
}

// CountLeaderboard ranks users by total cards held, unweighted.
func (s *Store) CountLeaderboard(ctx context.Context, limit int) ([]domain.CountRow, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT user_id, SUM(qty) AS cards_total
		FROM holdings
		GROUP BY user_id
		ORDER BY cards_total DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var board []domain.CountRow
	for rows.Next() {
		var r domain.CountRow
		if err := rows.Scan(&r.UserID, &r.CardsTotal); err != nil {
			return nil, err
		}
		board = append(board, r)
	}
	return board, rows.Err()
}

func (s *Store) GetTrade(ctx context.Context, id int64) (*domain.Trade, error) {
	var t domain.Trade
	err := s.Db.QueryRow(ctx, `
		SELECT trade_id, proposer, counterparty, offered_card_id, offered_qty,
		       requested_card_id, requested_qty, status, created_ts
		FROM trades WHERE trade_id = $1`,
		id).Scan(&t.ID, &t.Proposer, &t.Counterparty, &t.OfferedCardID, &t.OfferedQty,
		&t.RequestedCardID, &t.RequestedQty, &t.Status, &t.CreatedTS)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
