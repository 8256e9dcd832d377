package domain

// Rarity is the closed set of card tiers. The display spelling matches the
// catalog file ("Ultra Rare" has a space).
type Rarity string

const (
	RarityCommon    Rarity = "Common"
	RarityRare      Rarity = "Rare"
	RarityUltraRare Rarity = "Ultra Rare"
	RarityLegendary Rarity = "Legendary"
)

// Rarities lists all tiers in ascending rank order.
var Rarities = []Rarity{RarityCommon, RarityRare, RarityUltraRare, RarityLegendary}

// Points returns the leaderboard weight of a rarity. Unknown tiers score
// like Common so a catalog typo can never zero out a collection.
func (r Rarity) Points() int {
	switch r {
	case RarityLegendary:
		return 10
	case RarityUltraRare:
		return 5
	case RarityRare:
		return 2
	default:
		return 1
	}
}

// Rank returns the inventory sort rank of a rarity, highest tier first.
func (r Rarity) Rank() int {
	switch r {
	case RarityLegendary:
		return 4
	case RarityUltraRare:
		return 3
	case RarityRare:
		return 2
	default:
		return 1
	}
}

// Valid reports whether r is one of the known tiers.
func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityUltraRare, RarityLegendary:
		return true
	}
	return false
}

// Card is one catalog definition. Stats are nullable; the catalog file may
// omit any of them.
type Card struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Rarity     Rarity `json:"rarity"`
	ImageURL   string `json:"image_url"`
	Flow       *int   `json:"flow,omitempty"`
	Punchlines *int   `json:"punchlines,omitempty"`
	Style      *int   `json:"style,omitempty"`
	Reputation *int   `json:"reputation,omitempty"`
}

// Account holds a user's coin balance and pull cooldown anchor.
// LastPullTS is epoch seconds, 0 meaning the user never pulled.
type Account struct {
	UserID     int64 `json:"user_id"`
	Coins      int64 `json:"coins"`
	LastPullTS int64 `json:"last_pull_ts"`
}

// Holding is the quantity of one card owned by one user. Quantity is
// always positive; a holding that reaches zero is deleted.
type Holding struct {
	UserID   int64  `json:"user_id"`
	CardID   string `json:"card_id"`
	Quantity int64  `json:"quantity"`
}

// InventoryCard is a holding joined with its card definition, for
// collection listings.
type InventoryCard struct {
	Card
	Quantity int64 `json:"quantity"`
}

// RarityWeight is one row of the draw-weight table.
type RarityWeight struct {
	Rarity Rarity  `json:"rarity"`
	Weight float64 `json:"weight"`
}

// TradeStatus is the trade state machine. Done and Cancelled are terminal.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeDone      TradeStatus = "done"
	TradeCancelled TradeStatus = "cancelled"
)

// Trade is the record of a 1:1 barter proposal. Immutable once settled or
// cancelled.
type Trade struct {
	ID              int64       `json:"trade_id"`
	Proposer        int64       `json:"proposer"`
	Counterparty    int64       `json:"counterparty"`
	OfferedCardID   string      `json:"offered_card_id"`
	OfferedQty      int64       `json:"offered_qty"`
	RequestedCardID string      `json:"requested_card_id"`
	RequestedQty    int64       `json:"requested_qty"`
	Status          TradeStatus `json:"status"`
	CreatedTS       int64       `json:"created_ts"`
}

// TradeRequest is the DTO for proposing a trade.
type TradeRequest struct {
	Proposer        int64  `json:"proposer"`
	Counterparty    int64  `json:"counterparty"`
	OfferedCardID   string `json:"offered_card_id"`
	OfferedQty      int64  `json:"offered_qty"`
	RequestedCardID string `json:"requested_card_id"`
	RequestedQty    int64  `json:"requested_qty"`
}

// DrawResult is the outcome of a pull or a shop purchase. Reward is the
// coins granted for a duplicate, zero otherwise; Coins is the balance
// after the draw committed.
type DrawResult struct {
	Card      Card  `json:"card"`
	Duplicate bool  `json:"duplicate"`
	Reward    int64 `json:"reward"`
	Coins     int64 `json:"coins"`
}

// ScoreRow is one score-leaderboard entry. Score is the rarity-weighted
// sum over the user's holdings.
type ScoreRow struct {
	UserID     int64 `json:"user_id"`
	CardsTotal int64 `json:"cards_total"`
	Score      int64 `json:"score"`
}

// CountRow is one quantity-leaderboard entry.
type CountRow struct {
	UserID     int64 `json:"user_id"`
	CardsTotal int64 `json:"cards_total"`
}
