package session

import (
	"errors"
	"maps"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/canasta/internal/pricing"
	"github.com/noah-isme/canasta/internal/promotion"
)

// ErrNoActiveSession is returned when ending or cancelling without a session in progress.
var ErrNoActiveSession = errors.New("no active shopping session")

// Status is the lifecycle state of a shopping session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// LineItem is one product/quantity/price entry. Every derived field is
// recomputed by the Aggregator whenever the item or the basket changes.
type LineItem struct {
	ID                 string               `json:"id"`
	ProductID          *string              `json:"productId,omitempty"`
	Name               string               `json:"name"`
	UnitPrice          decimal.Decimal      `json:"unitPrice"`
	Quantity           int                  `json:"quantity"`
	Unit               string               `json:"unit,omitempty"`
	Notes              string               `json:"notes,omitempty"`
	TaxRateCode        pricing.RateCode     `json:"taxRateCode"`
	TaxRate            decimal.Decimal      `json:"taxRate"`
	PriceIncludesTax   bool                 `json:"priceIncludesTax"`
	BasePrice          decimal.Decimal      `json:"basePrice"`
	TaxAmount          decimal.Decimal      `json:"taxAmount"`
	Subtotal           decimal.Decimal      `json:"subtotal"`
	CouponApplied      bool                 `json:"couponApplied,omitempty"`
	LoyaltySatisfied   bool                 `json:"loyaltySatisfied,omitempty"`
	Promotion          *promotion.Promotion `json:"promotion,omitempty"`
	AppliedPromotionID *string              `json:"appliedPromotionId,omitempty"`
	OriginalPrice      *decimal.Decimal     `json:"originalPrice,omitempty"`
	DiscountAmount     decimal.Decimal      `json:"discountAmount"`
	PromotionTriggered bool                 `json:"promotionTriggered"`
}

// TaxableAmount is basePrice × quantity less any promotion discount.
func (li LineItem) TaxableAmount() decimal.Decimal {
	gross := pricing.Round(li.BasePrice.Mul(decimal.NewFromInt(int64(li.Quantity))))
	return gross.Sub(li.DiscountAmount)
}

// Session is an ordered basket plus totals derived from it.
type Session struct {
	ID                string                              `json:"id"`
	OwnerID           string                              `json:"ownerId"`
	StoreID           *string                             `json:"storeId,omitempty"`
	Status            Status                              `json:"status"`
	Items             []LineItem                          `json:"items"`
	SubtotalBeforeTax decimal.Decimal                     `json:"subtotalBeforeTax"`
	TotalTax          decimal.Decimal                     `json:"totalTax"`
	Total             decimal.Decimal                     `json:"total"`
	TaxBreakdown      map[pricing.RateCode]pricing.Bucket `json:"taxBreakdown"`
	StartedAt         time.Time                           `json:"startedAt"`
	EndedAt           *time.Time                          `json:"endedAt,omitempty"`
	UpdatedAt         time.Time                           `json:"updatedAt"`
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	out := s
	out.Items = make([]LineItem, len(s.Items))
	copy(out.Items, s.Items)
	out.TaxBreakdown = make(map[pricing.RateCode]pricing.Bucket, len(s.TaxBreakdown))
	maps.Copy(out.TaxBreakdown, s.TaxBreakdown)
	return out
}

// Item returns the line item with the given id.
func (s Session) Item(id string) (LineItem, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return LineItem{}, false
}

// AddItemInput is the payload for adding a line item.
type AddItemInput struct {
	ProductID        *string              `json:"productId,omitempty"`
	Name             string               `json:"name"`
	UnitPrice        decimal.Decimal      `json:"unitPrice"`
	Quantity         int                  `json:"quantity"`
	Unit             string               `json:"unit,omitempty"`
	Notes            string               `json:"notes,omitempty"`
	TaxRateCode      pricing.RateCode     `json:"taxRateCode,omitempty"`
	PriceIncludesTax bool                 `json:"priceIncludesTax"`
	CouponApplied    bool                 `json:"couponApplied,omitempty"`
	LoyaltySatisfied bool                 `json:"loyaltySatisfied,omitempty"`
	Promotion        *promotion.Promotion `json:"promotion,omitempty"`
}

// UpdateItemInput is a partial update; nil fields are left untouched.
type UpdateItemInput struct {
	Name             *string              `json:"name,omitempty"`
	UnitPrice        *decimal.Decimal     `json:"unitPrice,omitempty"`
	Quantity         *int                 `json:"quantity,omitempty"`
	Unit             *string              `json:"unit,omitempty"`
	Notes            *string              `json:"notes,omitempty"`
	TaxRateCode      *pricing.RateCode    `json:"taxRateCode,omitempty"`
	PriceIncludesTax *bool                `json:"priceIncludesTax,omitempty"`
	CouponApplied    *bool                `json:"couponApplied,omitempty"`
	LoyaltySatisfied *bool                `json:"loyaltySatisfied,omitempty"`
	Promotion        *promotion.Promotion `json:"promotion,omitempty"`
	ClearPromotion   bool                 `json:"clearPromotion,omitempty"`
}
