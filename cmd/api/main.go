package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/cardops/internal/api"
	"github.com/punchamoorthee/cardops/internal/config"
	"github.com/punchamoorthee/cardops/internal/service"
	"github.com/punchamoorthee/cardops/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	st, err := store.NewStore(cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer st.Close()

	if err := st.InitSchema(context.Background()); err != nil {
		log.Fatalf("Schema init failed: %v", err)
	}

	// Initialize Layers
	gacha := service.NewGachaService(st.Db, st, cfg.PullCooldown, cfg.DuplicateCoins, cfg.PackPrice)
	wallet := service.NewWalletService(st.Db)
	trades := service.NewTradeService(st.Db, st, func() int64 { return time.Now().Unix() })
	handler := api.NewHandler(st, st, gacha, wallet, trades)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts/{id}", handler.GetAccountHandler).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/pulls", handler.PullHandler).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}/purchases", handler.BuyHandler).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}/cards", handler.GetInventoryHandler).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/coins", handler.GrantCoinsHandler).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}/coins", handler.SetCoinsHandler).Methods("PUT")
	apiV1.HandleFunc("/trades", handler.CreateTradeHandler).Methods("POST")
	apiV1.HandleFunc("/trades/{id}", handler.GetTradeHandler).Methods("GET")
	apiV1.HandleFunc("/trades/{id}/accept", handler.AcceptTradeHandler).Methods("POST")
	apiV1.HandleFunc("/trades/{id}/cancel", handler.CancelTradeHandler).Methods("POST")
	apiV1.HandleFunc("/leaderboards/score", handler.ScoreLeaderboardHandler).Methods("GET")
	apiV1.HandleFunc("/leaderboards/count", handler.CountLeaderboardHandler).Methods("GET")
	apiV1.HandleFunc("/weights/{rarity}", handler.SetWeightHandler).Methods("PUT")

	log.Printf("Server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
