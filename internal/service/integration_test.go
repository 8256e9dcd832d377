package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/cardops/internal/domain"
	"github.com/punchamoorthee/cardops/internal/store"
)

// These tests run against a real database and cover the invariants that
// only hold (or break) under actual transactions: cooldown linearization,
// conditional spends, bilateral settlement. Set TEST_DATABASE_URL to a
// throwaway database to enable them.

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database integration tests")
	}
	st, err := store.NewStore(dsn)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return st
}

func resetEconomy(t *testing.T, st *store.Store) {
	t.Helper()
	_, err := st.Db.Exec(context.Background(), "TRUNCATE trades, holdings, accounts, cards")
	if err != nil {
		t.Fatalf("reset economy tables: %v", err)
	}
}

// setWeights pins every tier explicitly so a test's draw distribution
// never depends on leftovers from a previous run.
func setWeights(t *testing.T, st *store.Store, weights map[domain.Rarity]float64) {
	t.Helper()
	for _, r := range domain.Rarities {
		if err := st.SetWeight(context.Background(), r, weights[r]); err != nil {
			t.Fatalf("set weight %s: %v", r, err)
		}
	}
}

func seedCards(t *testing.T, st *store.Store, cards ...domain.Card) {
	t.Helper()
	if err := st.UpsertCards(context.Background(), cards); err != nil {
		t.Fatalf("seed cards: %v", err)
	}
}

func giveCards(t *testing.T, st *store.Store, userID int64, cardID string, qty int64) {
	t.Helper()
	_, err := st.Db.Exec(context.Background(),
		"INSERT INTO holdings (user_id, card_id, qty) VALUES ($1, $2, $3)",
		userID, cardID, qty)
	if err != nil {
		t.Fatalf("give cards: %v", err)
	}
}

func mustQty(t *testing.T, st *store.Store, userID int64, cardID string, want int64) {
	t.Helper()
	got, err := st.HoldingQty(context.Background(), userID, cardID)
	if err != nil {
		t.Fatalf("holding qty: %v", err)
	}
	if got != want {
		t.Errorf("user %d holding of %s = %d, want %d", userID, cardID, got, want)
	}
}

func TestWallet_Lifecycle(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	ctx := context.Background()
	wallet := NewWalletService(st.Db)
	const user = int64(1001)

	if bal, err := wallet.Balance(ctx, user); err != nil || bal != 0 {
		t.Fatalf("Balance(unknown) = %d, %v; want 0, nil", bal, err)
	}

	if bal, err := wallet.Grant(ctx, user, 30); err != nil || bal != 30 {
		t.Fatalf("Grant = %d, %v; want 30, nil", bal, err)
	}
	if bal, err := wallet.Grant(ctx, user, 12); err != nil || bal != 42 {
		t.Fatalf("second Grant = %d, %v; want 42, nil", bal, err)
	}

	if ok, err := wallet.Spend(ctx, user, 40); err != nil || !ok {
		t.Fatalf("Spend(40) = %v, %v; want true, nil", ok, err)
	}
	if ok, err := wallet.Spend(ctx, user, 3); err != nil || ok {
		t.Fatalf("Spend(3) on balance 2 = %v, %v; want false, nil", ok, err)
	}
	if bal, _ := wallet.Balance(ctx, user); bal != 2 {
		t.Errorf("balance after failed spend = %d, want 2", bal)
	}

	if err := wallet.SetBalance(ctx, user, 0); err != nil {
		t.Fatalf("SetBalance(0): %v", err)
	}
	if bal, _ := wallet.Balance(ctx, user); bal != 0 {
		t.Errorf("balance after set = %d, want 0", bal)
	}
}

func TestWallet_ConcurrentSpendNeverNegative(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	ctx := context.Background()
	wallet := NewWalletService(st.Db)
	const user = int64(2002)

	if err := wallet.SetBalance(ctx, user, 100); err != nil {
		t.Fatal(err)
	}

	// 20 spenders of 7 against a balance of 100: exactly 14 can win.
	var g errgroup.Group
	wins := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			ok, err := wallet.Spend(ctx, user, 7)
			wins <- ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent spend: %v", err)
	}
	close(wins)

	succeeded := 0
	for ok := range wins {
		if ok {
			succeeded++
		}
	}
	if succeeded != 14 {
		t.Errorf("successful spends = %d, want 14", succeeded)
	}
	if bal, _ := wallet.Balance(ctx, user); bal != 2 {
		t.Errorf("final balance = %d, want 2", bal)
	}
}

func TestPull_CooldownAndDuplicateReward(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	setWeights(t, st, map[domain.Rarity]float64{domain.RarityCommon: 1})
	seedCards(t, st, domain.Card{ID: "c1", Name: "Solo", Rarity: domain.RarityCommon, ImageURL: "http://img/c1"})

	ctx := context.Background()
	const user = int64(3003)
	gacha := NewGachaService(st.Db, st, 5*time.Hour, 5, 10)
	now := time.Unix(1_700_000_000, 0)
	gacha.now = func() time.Time { return now }

	first, err := gacha.Pull(ctx, user)
	if err != nil {
		t.Fatalf("first Pull: %v", err)
	}
	if first.Card.ID != "c1" || first.Duplicate || first.Reward != 0 || first.Coins != 0 {
		t.Errorf("first Pull = %+v, want c1, not duplicate, no reward", first)
	}

	// Immediately again: the full cooldown must remain.
	_, err = gacha.Pull(ctx, user)
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("second Pull err = %v, want CooldownError", err)
	}
	if cooldown.Remaining != 5*time.Hour {
		t.Errorf("remaining = %s, want 5h", cooldown.Remaining)
	}

	now = now.Add(5 * time.Hour)
	second, err := gacha.Pull(ctx, user)
	if err != nil {
		t.Fatalf("Pull after cooldown: %v", err)
	}
	if !second.Duplicate || second.Reward != 5 || second.Coins != 5 {
		t.Errorf("duplicate Pull = %+v, want duplicate with reward 5 and balance 5", second)
	}
	mustQty(t, st, user, "c1", 2)

	acc, err := st.GetAccount(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if acc.LastPullTS != now.Unix() {
		t.Errorf("last_pull_ts = %d, want %d", acc.LastPullTS, now.Unix())
	}
}

func TestPull_ConcurrentSameAccountOneWins(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	setWeights(t, st, map[domain.Rarity]float64{domain.RarityCommon: 1})
	seedCards(t, st, domain.Card{ID: "c1", Name: "Solo", Rarity: domain.RarityCommon, ImageURL: "http://img/c1"})

	ctx := context.Background()
	const user = int64(7007)
	const pullers = 10
	gacha := NewGachaService(st.Db, st, 5*time.Hour, 5, 10)

	// All pullers race the same account row; the losers block on its lock,
	// then see the winner's committed last_pull_ts.
	results := make(chan error, pullers)
	var g errgroup.Group
	for i := 0; i < pullers; i++ {
		g.Go(func() error {
			_, err := gacha.Pull(ctx, user)
			results <- err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	close(results)

	var ok, cooled int
	for err := range results {
		var cooldown *CooldownError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &cooldown):
			cooled++
		default:
			t.Fatalf("unexpected Pull error: %v", err)
		}
	}
	if ok != 1 || cooled != pullers-1 {
		t.Errorf("concurrent pulls: %d succeeded, %d cooled down; want 1 and %d", ok, cooled, pullers-1)
	}

	// One draw, so no duplicate and no reward coins.
	mustQty(t, st, user, "c1", 1)
	acc, err := st.GetAccount(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Coins != 0 {
		t.Errorf("coins = %d after single draw, want 0", acc.Coins)
	}
}

func TestPull_EmptyPoolDoesNotConsumeCooldown(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	// Only Rares can be drawn, but the catalog has none.
	setWeights(t, st, map[domain.Rarity]float64{domain.RarityRare: 1})
	seedCards(t, st, domain.Card{ID: "c1", Name: "Solo", Rarity: domain.RarityCommon, ImageURL: "http://img/c1"})

	ctx := context.Background()
	const user = int64(4004)
	gacha := NewGachaService(st.Db, st, 5*time.Hour, 5, 10)

	if _, err := gacha.Pull(ctx, user); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("Pull err = %v, want ErrEmptyPool", err)
	}
	acc, err := st.GetAccount(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if acc.LastPullTS != 0 {
		t.Errorf("last_pull_ts = %d after failed draw, want 0", acc.LastPullTS)
	}
	mustQty(t, st, user, "c1", 0)

	// Once the operator fixes the weights the user can pull right away.
	setWeights(t, st, map[domain.Rarity]float64{domain.RarityCommon: 1})
	if _, err := gacha.Pull(ctx, user); err != nil {
		t.Fatalf("Pull after weight fix: %v", err)
	}
}

func TestPull_NoWeightsIsConfigError(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	setWeights(t, st, map[domain.Rarity]float64{})

	gacha := NewGachaService(st.Db, st, 5*time.Hour, 5, 10)
	if _, err := gacha.Pull(context.Background(), 4040); !errors.Is(err, ErrNoWeights) {
		t.Fatalf("Pull err = %v, want ErrNoWeights", err)
	}
}

func TestBuy_SpendGateAndDuplicateReward(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	setWeights(t, st, map[domain.Rarity]float64{domain.RarityCommon: 1})
	seedCards(t, st, domain.Card{ID: "c1", Name: "Solo", Rarity: domain.RarityCommon, ImageURL: "http://img/c1"})

	ctx := context.Background()
	const user = int64(5005)
	wallet := NewWalletService(st.Db)
	gacha := NewGachaService(st.Db, st, 5*time.Hour, 5, 10)

	if err := wallet.SetBalance(ctx, user, 25); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		duplicate bool
		coins     int64
	}{
		{false, 15}, // 25 - 10
		{true, 10},  // 15 - 10 + 5
		{true, 5},   // 10 - 10 + 5
	}
	for i, want := range steps {
		got, err := gacha.Buy(ctx, user)
		if err != nil {
			t.Fatalf("Buy #%d: %v", i+1, err)
		}
		if got.Duplicate != want.duplicate || got.Coins != want.coins {
			t.Errorf("Buy #%d = dup %v coins %d, want dup %v coins %d",
				i+1, got.Duplicate, got.Coins, want.duplicate, want.coins)
		}
	}

	if _, err := gacha.Buy(ctx, user); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Buy on balance 5 err = %v, want ErrInsufficientFunds", err)
	}
	if bal, _ := wallet.Balance(ctx, user); bal != 5 {
		t.Errorf("balance after rejected buy = %d, want 5", bal)
	}
	mustQty(t, st, user, "c1", 3)

	// The shop path never touches the pull cooldown.
	acc, _ := st.GetAccount(ctx, user)
	if acc.LastPullTS != 0 {
		t.Errorf("last_pull_ts after buys = %d, want 0", acc.LastPullTS)
	}
}

func TestBuy_EmptyPoolRefundsSpend(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	setWeights(t, st, map[domain.Rarity]float64{domain.RarityUltraRare: 1})
	seedCards(t, st, domain.Card{ID: "c1", Name: "Solo", Rarity: domain.RarityCommon, ImageURL: "http://img/c1"})

	ctx := context.Background()
	const user = int64(6006)
	wallet := NewWalletService(st.Db)
	gacha := NewGachaService(st.Db, st, 5*time.Hour, 5, 10)

	if err := wallet.SetBalance(ctx, user, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := gacha.Buy(ctx, user); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("Buy err = %v, want ErrEmptyPool", err)
	}
	if bal, _ := wallet.Balance(ctx, user); bal != 10 {
		t.Errorf("balance after rolled-back buy = %d, want 10 (refunded)", bal)
	}
}

func seedTradePair(t *testing.T, st *store.Store) {
	t.Helper()
	seedCards(t, st,
		domain.Card{ID: "card-a", Name: "Alpha", Rarity: domain.RarityCommon, ImageURL: "http://img/a"},
		domain.Card{ID: "card-b", Name: "Beta", Rarity: domain.RarityRare, ImageURL: "http://img/b"},
	)
}

func TestTrade_Settlement(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	seedTradePair(t, st)

	ctx := context.Background()
	const proposer, counterparty = int64(11), int64(22)
	giveCards(t, st, proposer, "card-a", 2)
	giveCards(t, st, counterparty, "card-b", 1)

	trades := NewTradeService(st.Db, st, func() int64 { return 1_700_000_000 })
	trade, err := trades.Propose(ctx, domain.TradeRequest{
		Proposer: proposer, Counterparty: counterparty,
		OfferedCardID: "card-a", OfferedQty: 1,
		RequestedCardID: "card-b", RequestedQty: 1,
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if trade.Status != domain.TradePending || trade.ID == 0 {
		t.Fatalf("Propose returned %+v, want pending trade with ID", trade)
	}

	settled, err := trades.Accept(ctx, trade.ID, counterparty)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if settled.Status != domain.TradeDone {
		t.Errorf("status = %q, want done", settled.Status)
	}

	mustQty(t, st, proposer, "card-a", 1)
	mustQty(t, st, proposer, "card-b", 1)
	mustQty(t, st, counterparty, "card-a", 1)
	mustQty(t, st, counterparty, "card-b", 0)

	// The zeroed holding row must be gone, not stored at zero.
	var count int
	if err := st.Db.QueryRow(ctx,
		"SELECT COUNT(*) FROM holdings WHERE user_id = $1 AND card_id = $2",
		counterparty, "card-b").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("zero-quantity holding row still present")
	}

	stored, err := st.GetTrade(ctx, trade.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.TradeDone {
		t.Errorf("persisted status = %q, want done", stored.Status)
	}
}

func TestTrade_SameCardBothSides(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	seedTradePair(t, st)

	ctx := context.Background()
	const proposer, counterparty = int64(33), int64(44)
	giveCards(t, st, proposer, "card-a", 2)
	giveCards(t, st, counterparty, "card-a", 1)

	trades := NewTradeService(st.Db, st, func() int64 { return 1_700_000_000 })
	trade, err := trades.Propose(ctx, domain.TradeRequest{
		Proposer: proposer, Counterparty: counterparty,
		OfferedCardID: "card-a", OfferedQty: 2,
		RequestedCardID: "card-a", RequestedQty: 1,
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := trades.Accept(ctx, trade.ID, counterparty); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	// Net effect: proposer 2-2+1, counterparty 1-1+2.
	mustQty(t, st, proposer, "card-a", 1)
	mustQty(t, st, counterparty, "card-a", 2)
}

func TestTrade_StaleHoldingsRejected(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	seedTradePair(t, st)

	ctx := context.Background()
	const proposer, counterparty = int64(55), int64(66)
	giveCards(t, st, proposer, "card-a", 2)
	giveCards(t, st, counterparty, "card-b", 1)

	trades := NewTradeService(st.Db, st, func() int64 { return 1_700_000_000 })
	trade, err := trades.Propose(ctx, domain.TradeRequest{
		Proposer: proposer, Counterparty: counterparty,
		OfferedCardID: "card-a", OfferedQty: 1,
		RequestedCardID: "card-b", RequestedQty: 1,
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	// The counterparty's card leaves by other means before acceptance.
	if _, err := st.Db.Exec(ctx,
		"DELETE FROM holdings WHERE user_id = $1 AND card_id = $2", counterparty, "card-b"); err != nil {
		t.Fatal(err)
	}

	if _, err := trades.Accept(ctx, trade.ID, counterparty); !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("Accept err = %v, want ErrInsufficientHoldings", err)
	}

	// Nothing moved, and the trade is still actionable.
	mustQty(t, st, proposer, "card-a", 2)
	mustQty(t, st, counterparty, "card-a", 0)
	stored, _ := st.GetTrade(ctx, trade.ID)
	if stored.Status != domain.TradePending {
		t.Errorf("status = %q, want pending", stored.Status)
	}
}

func TestTrade_ActorAndStateErrors(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	seedTradePair(t, st)

	ctx := context.Background()
	const proposer, counterparty, stranger = int64(77), int64(88), int64(99)
	giveCards(t, st, proposer, "card-a", 1)
	giveCards(t, st, counterparty, "card-b", 1)

	trades := NewTradeService(st.Db, st, func() int64 { return 1_700_000_000 })
	trade, err := trades.Propose(ctx, domain.TradeRequest{
		Proposer: proposer, Counterparty: counterparty,
		OfferedCardID: "card-a", OfferedQty: 1,
		RequestedCardID: "card-b", RequestedQty: 1,
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	if _, err := trades.Accept(ctx, trade.ID+12345, counterparty); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("Accept(missing) err = %v, want ErrTradeNotFound", err)
	}
	if _, err := trades.Accept(ctx, trade.ID, proposer); !errors.Is(err, ErrWrongActor) {
		t.Errorf("Accept by proposer err = %v, want ErrWrongActor", err)
	}
	if _, err := trades.Cancel(ctx, trade.ID, stranger); !errors.Is(err, ErrWrongActor) {
		t.Errorf("Cancel by stranger err = %v, want ErrWrongActor", err)
	}

	cancelled, err := trades.Cancel(ctx, trade.ID, proposer)
	if err != nil {
		t.Fatalf("Cancel by proposer: %v", err)
	}
	if cancelled.Status != domain.TradeCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Status)
	}

	if _, err := trades.Accept(ctx, trade.ID, counterparty); !errors.Is(err, ErrNotPending) {
		t.Errorf("Accept after cancel err = %v, want ErrNotPending", err)
	}
	if _, err := trades.Cancel(ctx, trade.ID, counterparty); !errors.Is(err, ErrNotPending) {
		t.Errorf("second Cancel err = %v, want ErrNotPending", err)
	}

	// Cancellation never touches holdings.
	mustQty(t, st, proposer, "card-a", 1)
	mustQty(t, st, counterparty, "card-b", 1)
}

func TestTrade_DoubleAcceptSettlesOnce(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	seedTradePair(t, st)

	ctx := context.Background()
	const proposer, counterparty = int64(111), int64(222)
	giveCards(t, st, proposer, "card-a", 2)
	giveCards(t, st, counterparty, "card-b", 1)

	trades := NewTradeService(st.Db, st, func() int64 { return 1_700_000_000 })
	trade, err := trades.Propose(ctx, domain.TradeRequest{
		Proposer: proposer, Counterparty: counterparty,
		OfferedCardID: "card-a", OfferedQty: 1,
		RequestedCardID: "card-b", RequestedQty: 1,
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	results := make(chan error, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := trades.Accept(ctx, trade.ID, counterparty)
			results <- err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	close(results)

	var ok, rejected int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrNotPending):
			rejected++
		default:
			t.Fatalf("unexpected Accept error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("double accept: %d succeeded, %d rejected; want 1 and 1", ok, rejected)
	}

	// Settled exactly once.
	mustQty(t, st, proposer, "card-a", 1)
	mustQty(t, st, proposer, "card-b", 1)
	mustQty(t, st, counterparty, "card-a", 1)
	mustQty(t, st, counterparty, "card-b", 0)
}

func TestLeaderboards_OrderingAndTieBreak(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	seedCards(t, st,
		domain.Card{ID: "common", Name: "Common Card", Rarity: domain.RarityCommon, ImageURL: "u"},
		domain.Card{ID: "rare", Name: "Rare Card", Rarity: domain.RarityRare, ImageURL: "u"},
		domain.Card{ID: "legend", Name: "Legend Card", Rarity: domain.RarityLegendary, ImageURL: "u"},
	)

	// u1: 1 Legendary            -> score 10, 1 card
	// u2: 6 Common               -> score 6,  6 cards
	// u3: 2 Rare + 1 Common      -> score 5,  3 cards
	// u4: 5 Common               -> score 5,  5 cards (tie with u3, more cards)
	giveCards(t, st, 1, "legend", 1)
	giveCards(t, st, 2, "common", 6)
	giveCards(t, st, 3, "rare", 2)
	giveCards(t, st, 3, "common", 1)
	giveCards(t, st, 4, "common", 5)

	ctx := context.Background()
	scores, err := st.ScoreLeaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("ScoreLeaderboard: %v", err)
	}
	wantScores := []domain.ScoreRow{
		{UserID: 1, CardsTotal: 1, Score: 10},
		{UserID: 2, CardsTotal: 6, Score: 6},
		{UserID: 4, CardsTotal: 5, Score: 5},
		{UserID: 3, CardsTotal: 3, Score: 5},
	}
	if len(scores) != len(wantScores) {
		t.Fatalf("score rows = %d, want %d", len(scores), len(wantScores))
	}
	for i, want := range wantScores {
		if scores[i] != want {
			t.Errorf("score row %d = %+v, want %+v", i, scores[i], want)
		}
	}

	counts, err := st.CountLeaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("CountLeaderboard: %v", err)
	}
	wantCounts := []domain.CountRow{
		{UserID: 2, CardsTotal: 6},
		{UserID: 4, CardsTotal: 5},
	}
	if len(counts) != len(wantCounts) {
		t.Fatalf("count rows = %d, want %d (limit applied)", len(counts), len(wantCounts))
	}
	for i, want := range wantCounts {
		if counts[i] != want {
			t.Errorf("count row %d = %+v, want %+v", i, counts[i], want)
		}
	}
}

func TestInventory_Ordering(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	seedCards(t, st,
		domain.Card{ID: "i1", Name: "Bravo", Rarity: domain.RarityCommon, ImageURL: "u"},
		domain.Card{ID: "i2", Name: "Alpha", Rarity: domain.RarityCommon, ImageURL: "u"},
		domain.Card{ID: "i3", Name: "Zed", Rarity: domain.RarityLegendary, ImageURL: "u"},
		domain.Card{ID: "i4", Name: "Mid", Rarity: domain.RarityRare, ImageURL: "u"},
	)
	const user = int64(777)
	for _, id := range []string{"i1", "i2", "i3", "i4"} {
		giveCards(t, st, user, id, 1)
	}

	inv, err := st.Inventory(context.Background(), user)
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	want := []string{"Zed", "Mid", "Alpha", "Bravo"}
	if len(inv) != len(want) {
		t.Fatalf("inventory size = %d, want %d", len(inv), len(want))
	}
	for i, name := range want {
		if inv[i].Name != name {
			t.Errorf("inventory[%d] = %q, want %q (rarity desc, then name asc)", i, inv[i].Name, name)
		}
	}
}

func TestCatalog_UpsertIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	resetEconomy(t, st)
	ctx := context.Background()

	flow := 80
	seedCards(t, st, domain.Card{ID: "x", Name: "Old Name", Rarity: domain.RarityCommon, ImageURL: "old", Flow: &flow})
	newFlow := 95
	seedCards(t, st, domain.Card{ID: "x", Name: "New Name", Rarity: domain.RarityRare, ImageURL: "new", Flow: &newFlow})

	card, err := st.GetCard(ctx, "x")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if card.Name != "New Name" || card.Rarity != domain.RarityRare || card.ImageURL != "new" {
		t.Errorf("re-ingest did not overwrite: %+v", card)
	}
	if card.Flow == nil || *card.Flow != 95 {
		t.Errorf("re-ingest did not overwrite stats: %+v", card.Flow)
	}
	if card.Punchlines != nil {
		t.Errorf("omitted stat should be null, got %v", *card.Punchlines)
	}
}
