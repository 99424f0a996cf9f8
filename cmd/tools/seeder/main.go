package main

import (
	"context"
	"encoding/json"
	"flag"
	"time"

	"github.com/noah-isme/canasta/internal/app"
	"github.com/noah-isme/canasta/internal/config"
	"github.com/noah-isme/canasta/internal/obs"
	"github.com/noah-isme/canasta/internal/promotion"
	"github.com/noah-isme/canasta/internal/repo"
)

type seed struct {
	rec      promotion.Record
	priority int
}

func demoPromotions(storeID string) []seed {
	raw := func(s string) json.RawMessage { return json.RawMessage(s) }
	return []seed{
		{rec: promotion.Record{ID: "demo-arroz-3x2", ProductID: "7441001600017", StoreID: storeID,
			Type: promotion.KindBuyXGetY, Details: raw(`{"buy_quantity":2,"get_quantity":1}`)}, priority: 10},
		{rec: promotion.Record{ID: "demo-leche-10", ProductID: "7441014700019",
			Type: promotion.KindPercentage, Details: raw(`{"percentage":10}`)}},
		{rec: promotion.Record{ID: "demo-agua-bulk", ProductID: "7441029500012", StoreID: storeID,
			Type: promotion.KindBulkPrice, Details: raw(`{"min_quantity":4,"bulk_price":0.76}`)}, priority: 5},
		{rec: promotion.Record{ID: "demo-cafe-coupon", ProductID: "7441003200011",
			Type: promotion.KindCoupon, Details: raw(`{"coupon_code":"AHORRA10","reward":{"type":"percentage","percentage":10}}`)}},
		{rec: promotion.Record{ID: "demo-pan-bundle", ProductID: "7441008800014", StoreID: storeID,
			Type: promotion.KindBundleFree, Details: raw(`{"required_products":[{"product_id":"7441014700019","quantity":2}],"free_quantity":1}`)}},
	}
}

func main() {
	var (
		storeID = flag.String("store", "demo-store", "store id attached to store-specific promotions")
		days    = flag.Int("days", 30, "number of days the seeded promotions stay active")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "seeder").Logger()
	if !cfg.RemoteSyncEnabled() {
		logger.Fatal().Msg("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := app.OpenDatabase(ctx, cfg.DatabaseURL, "canasta-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	promotions := repo.PromotionRepo{DB: pool}
	now := time.Now().UTC()
	ends := now.AddDate(0, 0, *days)
	for _, s := range demoPromotions(*storeID) {
		window := repo.PromotionWindow{Verified: true, Priority: s.priority, StartsAt: now, EndsAt: &ends}
		if err := promotions.Upsert(ctx, s.rec, window); err != nil {
			logger.Fatal().Err(err).Str("promotion_id", s.rec.ID).Msg("seed promotion")
		}
		logger.Info().Str("promotion_id", s.rec.ID).Str("type", string(s.rec.Type)).Msg("seeded promotion")
	}
	logger.Info().Msg("seeding completed")
}
