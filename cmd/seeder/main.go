package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/punchamoorthee/cardops/internal/config"
	"github.com/punchamoorthee/cardops/internal/domain"
	"github.com/punchamoorthee/cardops/internal/store"
)

// cardFile is the catalog file entry shape. Stats are nested and optional.
type cardFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Rarity   string `json:"rarity"`
	ImageURL string `json:"image_url"`
	Stats    struct {
		Flow       *int `json:"flow"`
		Punchlines *int `json:"punchlines"`
		Style      *int `json:"style"`
		Reputation *int `json:"reputation"`
	} `json:"stats"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	raw, err := os.ReadFile(cfg.CardsJSON)
	if err != nil {
		log.Fatalf("Unable to read catalog file %s: %v", cfg.CardsJSON, err)
	}

	var entries []cardFile
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Fatalf("Malformed catalog file: %v", err)
	}

	cards := make([]domain.Card, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" || e.Name == "" {
			log.Fatalf("Catalog entry missing id or name: %+v", e)
		}
		rarity := domain.Rarity(e.Rarity)
		if !rarity.Valid() {
			log.Printf("WARNING: card %s has unknown rarity %q; it will never be drawn unless a weight is set", e.ID, e.Rarity)
		}
		cards = append(cards, domain.Card{
			ID:         e.ID,
			Name:       e.Name,
			Rarity:     rarity,
			ImageURL:   e.ImageURL,
			Flow:       e.Stats.Flow,
			Punchlines: e.Stats.Punchlines,
			Style:      e.Stats.Style,
			Reputation: e.Stats.Reputation,
		})
	}

	ctx := context.Background()
	st, err := store.NewStore(cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer st.Close()

	log.Println("--- Seeding Catalog ---")
	if err := st.InitSchema(ctx); err != nil {
		log.Fatalf("Schema init failed: %v", err)
	}
	if err := st.UpsertCards(ctx, cards); err != nil {
		log.Fatalf("Catalog upsert failed: %v", err)
	}
	log.Printf("Successfully upserted %d cards from %s.", len(cards), cfg.CardsJSON)
}
