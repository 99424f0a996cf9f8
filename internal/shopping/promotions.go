package shopping

import (
	"context"

	"github.com/noah-isme/canasta/internal/promotion"
	"github.com/noah-isme/canasta/internal/resilience"
)

// GuardedPromotions wraps a PromotionSource with a circuit breaker so a
// failing catalog stops adding latency to item adds.
type GuardedPromotions struct {
	Source  PromotionSource
	Breaker *resilience.Breaker
}

// ActiveFor delegates to Source unless the breaker is open.
func (g GuardedPromotions) ActiveFor(ctx context.Context, productID, storeID string) ([]promotion.Promotion, error) {
	return resilience.Do(ctx, g.Breaker, func(ctx context.Context) ([]promotion.Promotion, error) {
		return g.Source.ActiveFor(ctx, productID, storeID)
	})
}
