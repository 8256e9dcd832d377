package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/cardops/internal/domain"
	"github.com/punchamoorthee/cardops/internal/service"
	"github.com/punchamoorthee/cardops/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardops_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cardops_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	drawsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardops_draws_total",
		Help: "Completed card draws, labeled by source and rarity",
	}, []string{"source", "rarity"})

	tradesSettledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardops_trades_settled_total",
		Help: "Trades settled successfully",
	})
)

// DrawService is the gacha surface the handlers consume.
type DrawService interface {
	Pull(ctx context.Context, userID int64) (*domain.DrawResult, error)
	Buy(ctx context.Context, userID int64) (*domain.DrawResult, error)
}

// CoinService is the administrative wallet surface.
type CoinService interface {
	Grant(ctx context.Context, userID, amount int64) (int64, error)
	SetBalance(ctx context.Context, userID, value int64) error
}

// TradeService is the barter protocol surface.
type TradeService interface {
	Propose(ctx context.Context, req domain.TradeRequest) (*domain.Trade, error)
	Accept(ctx context.Context, tradeID, actor int64) (*domain.Trade, error)
	Cancel(ctx context.Context, tradeID, actor int64) (*domain.Trade, error)
}

// Reader is the read-only store surface the handlers consume directly.
type Reader interface {
	GetAccount(ctx context.Context, userID int64) (*domain.Account, error)
	Inventory(ctx context.Context, userID int64) ([]domain.InventoryCard, error)
	ScoreLeaderboard(ctx context.Context, limit int) ([]domain.ScoreRow, error)
	CountLeaderboard(ctx context.Context, limit int) ([]domain.CountRow, error)
	GetTrade(ctx context.Context, id int64) (*domain.Trade, error)
}

// WeightAdmin is the administrative drop-rate override surface.
type WeightAdmin interface {
	SetWeight(ctx context.Context, rarity domain.Rarity, weight float64) error
}

type Handler struct {
	reader  Reader
	weights WeightAdmin
	gacha   DrawService
	coins   CoinService
	trades  TradeService
}

func NewHandler(reader Reader, weights WeightAdmin, gacha DrawService, coins CoinService, trades TradeService) *Handler {
	return &Handler{reader: reader, weights: weights, gacha: gacha, coins: coins, trades: trades}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) PullHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/{id}/pulls"))
	defer timer.ObserveDuration()

	userID, ok := pathID(w, r, "/accounts/{id}/pulls", "id")
	if !ok {
		return
	}

	result, err := h.gacha.Pull(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/accounts/{id}/pulls")
		return
	}

	drawsTotal.WithLabelValues("pull", string(result.Card.Rarity)).Inc()
	httpRequestsTotal.WithLabelValues("POST", "/accounts/{id}/pulls", "201").Inc()
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *Handler) BuyHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/{id}/purchases"))
	defer timer.ObserveDuration()

	userID, ok := pathID(w, r, "/accounts/{id}/purchases", "id")
	if !ok {
		return
	}

	result, err := h.gacha.Buy(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/accounts/{id}/purchases")
		return
	}

	drawsTotal.WithLabelValues("shop", string(result.Card.Rarity)).Inc()
	httpRequestsTotal.WithLabelValues("POST", "/accounts/{id}/purchases", "201").Inc()
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "/accounts/{id}", "id")
	if !ok {
		return
	}

	account, err := h.reader.GetAccount(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/accounts/{id}")
		return
	}
	httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}", "200").Inc()
	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) GetInventoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "/accounts/{id}/cards", "id")
	if !ok {
		return
	}

	inventory, err := h.reader.Inventory(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/accounts/{id}/cards")
		return
	}
	if inventory == nil {
		inventory = []domain.InventoryCard{}
	}
	httpRequestsTotal.WithLabelValues("GET", "/accounts/{id}/cards", "200").Inc()
	respondWithJSON(w, http.StatusOK, inventory)
}

func (h *Handler) GrantCoinsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "/accounts/{id}/coins", "id")
	if !ok {
		return
	}

	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/accounts/{id}/coins", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	balance, err := h.coins.Grant(r.Context(), userID, body.Amount)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/accounts/{id}/coins")
		return
	}
	httpRequestsTotal.WithLabelValues("POST", "/accounts/{id}/coins", "200").Inc()
	respondWithJSON(w, http.StatusOK, map[string]int64{"user_id": userID, "coins": balance})
}

func (h *Handler) SetCoinsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "/accounts/{id}/coins", "id")
	if !ok {
		return
	}

	var body struct {
		Coins int64 `json:"coins"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpRequestsTotal.WithLabelValues("PUT", "/accounts/{id}/coins", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.coins.SetBalance(r.Context(), userID, body.Coins); err != nil {
		h.respondServiceError(w, err, "PUT", "/accounts/{id}/coins")
		return
	}
	httpRequestsTotal.WithLabelValues("PUT", "/accounts/{id}/coins", "200").Inc()
	respondWithJSON(w, http.StatusOK, map[string]int64{"user_id": userID, "coins": body.Coins})
}

func (h *Handler) CreateTradeHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/trades"))
	defer timer.ObserveDuration()

	var req domain.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpRequestsTotal.WithLabelValues("POST", "/trades", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	trade, err := h.trades.Propose(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/trades")
		return
	}
	httpRequestsTotal.WithLabelValues("POST", "/trades", "201").Inc()
	respondWithJSON(w, http.StatusCreated, trade)
}

func (h *Handler) GetTradeHandler(w http.ResponseWriter, r *http.Request) {
	tradeID, ok := pathID(w, r, "/trades/{id}", "id")
	if !ok {
		return
	}

	trade, err := h.reader.GetTrade(r.Context(), tradeID)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/trades/{id}")
		return
	}
	httpRequestsTotal.WithLabelValues("GET", "/trades/{id}", "200").Inc()
	respondWithJSON(w, http.StatusOK, trade)
}

func (h *Handler) AcceptTradeHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/trades/{id}/accept"))
	defer timer.ObserveDuration()

	h.resolveTrade(w, r, "/trades/{id}/accept", h.trades.Accept)
}

func (h *Handler) CancelTradeHandler(w http.ResponseWriter, r *http.Request) {
	h.resolveTrade(w, r, "/trades/{id}/cancel", h.trades.Cancel)
}

// resolveTrade handles the shared shape of accept and cancel: trade ID in
// the path, acting account in the body.
func (h *Handler) resolveTrade(w http.ResponseWriter, r *http.Request, endpoint string,
	action func(ctx context.Context, tradeID, actor int64) (*domain.Trade, error)) {

	tradeID, ok := pathID(w, r, endpoint, "id")
	if !ok {
		return
	}

	var body struct {
		AccountID int64 `json:"account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpRequestsTotal.WithLabelValues("POST", endpoint, "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	trade, err := action(r.Context(), tradeID, body.AccountID)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	if trade.Status == domain.TradeDone {
		tradesSettledTotal.Inc()
	}
	httpRequestsTotal.WithLabelValues("POST", endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, trade)
}

func (h *Handler) ScoreLeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	board, err := h.reader.ScoreLeaderboard(r.Context(), clampLimit(r.URL.Query().Get("limit")))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/leaderboards/score")
		return
	}
	if board == nil {
		board = []domain.ScoreRow{}
	}
	httpRequestsTotal.WithLabelValues("GET", "/leaderboards/score", "200").Inc()
	respondWithJSON(w, http.StatusOK, board)
}

func (h *Handler) CountLeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	board, err := h.reader.CountLeaderboard(r.Context(), clampLimit(r.URL.Query().Get("limit")))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/leaderboards/count")
		return
	}
	if board == nil {
		board = []domain.CountRow{}
	}
	httpRequestsTotal.WithLabelValues("GET", "/leaderboards/count", "200").Inc()
	respondWithJSON(w, http.StatusOK, board)
}

func (h *Handler) SetWeightHandler(w http.ResponseWriter, r *http.Request) {
	rarity := domain.Rarity(mux.Vars(r)["rarity"])
	if !rarity.Valid() {
		httpRequestsTotal.WithLabelValues("PUT", "/weights/{rarity}", "422").Inc()
		respondWithError(w, http.StatusUnprocessableEntity, "Unknown rarity")
		return
	}

	var body struct {
		Weight float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpRequestsTotal.WithLabelValues("PUT", "/weights/{rarity}", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if body.Weight < 0 {
		httpRequestsTotal.WithLabelValues("PUT", "/weights/{rarity}", "422").Inc()
		respondWithError(w, http.StatusUnprocessableEntity, "Weight must be a non-negative number")
		return
	}

	if err := h.weights.SetWeight(r.Context(), rarity, body.Weight); err != nil {
		h.respondServiceError(w, err, "PUT", "/weights/{rarity}")
		return
	}
	httpRequestsTotal.WithLabelValues("PUT", "/weights/{rarity}", "200").Inc()
	respondWithJSON(w, http.StatusOK, domain.RarityWeight{Rarity: rarity, Weight: body.Weight})
}

// respondServiceError maps core error kinds to HTTP codes: validation and
// insufficiency are 422, cooldown 429 with the remaining wait, protocol
// mismatches 403/404/409, operator configuration problems 503.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	var cooldown *service.CooldownError
	switch {
	case errors.As(err, &cooldown):
		httpRequestsTotal.WithLabelValues(method, endpoint, "429").Inc()
		respondWithJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":               cooldown.Error(),
			"retry_after_seconds": int64(cooldown.Remaining.Seconds()),
		})
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrNegativeBalance),
		errors.Is(err, service.ErrSelfTrade),
		errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrInsufficientHoldings):
		httpRequestsTotal.WithLabelValues(method, endpoint, "422").Inc()
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrWrongActor):
		httpRequestsTotal.WithLabelValues(method, endpoint, "403").Inc()
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotPending):
		httpRequestsTotal.WithLabelValues(method, endpoint, "409").Inc()
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrTradeNotFound), errors.Is(err, store.ErrNotFound):
		httpRequestsTotal.WithLabelValues(method, endpoint, "404").Inc()
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEmptyPool), errors.Is(err, service.ErrNoWeights):
		httpRequestsTotal.WithLabelValues(method, endpoint, "503").Inc()
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		httpRequestsTotal.WithLabelValues(method, endpoint, "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// pathID parses the {name} path variable as an int64, counting and writing
// a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, endpoint, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// clampLimit parses the limit query parameter, defaulting to 10 and
// clamping to [1, 25].
func clampLimit(raw string) int {
	limit := 10
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 25 {
		limit = 25
	}
	return limit
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
