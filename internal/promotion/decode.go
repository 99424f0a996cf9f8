package promotion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/canasta/internal/pricing"
)

// Record is the tagged-union wire shape of a promotion as stored by the backend.
type Record struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId,omitempty"`
	StoreID   string          `json:"storeId,omitempty"`
	Type      Kind            `json:"type"`
	Details   json.RawMessage `json:"details"`
}

type percentageDetails struct {
	Percentage *decimal.Decimal `json:"percentage" validate:"required,gte=0,lte=100"`
}

type fixedAmountDetails struct {
	ReducedPrice *decimal.Decimal `json:"reduced_price" validate:"required,gte=0"`
}

type buyXGetYDetails struct {
	BuyQuantity *int `json:"buy_quantity" validate:"required,gte=1"`
	GetQuantity *int `json:"get_quantity" validate:"required,gte=1"`
}

type bulkPriceDetails struct {
	MinQuantity *int             `json:"min_quantity" validate:"required,gte=1"`
	BulkPrice   *decimal.Decimal `json:"bulk_price" validate:"required,gte=0"`
}

type bundleComponentDetails struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  *int   `json:"quantity,omitempty" validate:"omitempty,gte=1"`
}

type bundleFreeDetails struct {
	RequiredProducts []bundleComponentDetails `json:"required_products" validate:"required,min=1,dive"`
	FreeQuantity     *int                     `json:"free_quantity,omitempty" validate:"omitempty,gte=1"`
}

type rewardDetails struct {
	Type         Kind             `json:"type" validate:"required"`
	Percentage   *decimal.Decimal `json:"percentage,omitempty"`
	ReducedPrice *decimal.Decimal `json:"reduced_price,omitempty"`
}

type couponDetails struct {
	CouponCode string         `json:"coupon_code" validate:"required"`
	Reward     *rewardDetails `json:"reward" validate:"required"`
}

type loyaltyDetails struct {
	StampsRequired *int           `json:"stamps_required" validate:"required,gte=1"`
	Reward         *rewardDetails `json:"reward" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Decode validates a record and converts it into a Promotion. Unknown type
// tags yield UnsupportedPromotionError; missing or out-of-range details yield
// a pricing.ValidationError naming the field.
func Decode(rec Record) (Promotion, error) {
	rule, err := decodeRule(rec.Type, rec.Details)
	if err != nil {
		return Promotion{}, err
	}
	return Promotion{ID: rec.ID, Rule: rule}, nil
}

func decodeRule(kind Kind, raw json.RawMessage) (Rule, error) {
	kind = Kind(strings.ToLower(strings.TrimSpace(string(kind))))
	switch kind {
	case KindPercentage:
		var d percentageDetails
		if err := unmarshalDetails(raw, &d); err != nil {
			return nil, err
		}
		return Percentage{Percent: *d.Percentage}, nil
	case KindFixedAmount:
		var d fixedAmountDetails
		if err := unmarshalDetails(raw, &d); err != nil {
			return nil, err
		}
		return FixedAmount{ReducedPrice: *d.ReducedPrice}, nil
	case KindBuyXGetY:
		var d buyXGetYDetails
		if err := unmarshalDetails(raw, &d); err != nil {
			return nil, err
		}
		return BuyXGetY{Buy: *d.BuyQuantity, Get: *d.GetQuantity}, nil
	case KindBulkPrice:
		var d bulkPriceDetails
		if err := unmarshalDetails(raw, &d); err != nil {
			return nil, err
		}
		return BulkPrice{MinQuantity: *d.MinQuantity, UnitPrice: *d.BulkPrice}, nil
	case KindBundleFree:
		var d bundleFreeDetails
		if err := unmarshalDetails(raw, &d); err != nil {
			return nil, err
		}
		rule := BundleFree{FreeQuantity: intOr(d.FreeQuantity, 1)}
		for _, c := range d.RequiredProducts {
			rule.Components = append(rule.Components, BundleComponent{
				ProductID: strings.TrimSpace(c.ProductID),
				Quantity:  intOr(c.Quantity, 1),
			})
		}
		return rule, nil
	case KindCoupon:
		var d couponDetails
		if err := unmarshalDetails(raw, &d); err != nil {
			return nil, err
		}
		reward, err := decodeReward(d.Reward)
		if err != nil {
			return nil, err
		}
		return Coupon{Code: strings.TrimSpace(d.CouponCode), Reward: reward}, nil
	case KindLoyalty:
		var d loyaltyDetails
		if err := unmarshalDetails(raw, &d); err != nil {
			return nil, err
		}
		reward, err := decodeReward(d.Reward)
		if err != nil {
			return nil, err
		}
		return Loyalty{StampsRequired: *d.StampsRequired, Reward: reward}, nil
	default:
		return nil, &UnsupportedPromotionError{Kind: kind}
	}
}

func decodeReward(r *rewardDetails) (Rule, error) {
	if err := checkStruct(r, "reward."); err != nil {
		return nil, err
	}
	switch Kind(strings.ToLower(strings.TrimSpace(string(r.Type)))) {
	case KindPercentage:
		d := percentageDetails{Percentage: r.Percentage}
		if err := checkStruct(&d, "reward."); err != nil {
			return nil, err
		}
		return Percentage{Percent: *d.Percentage}, nil
	case KindFixedAmount:
		d := fixedAmountDetails{ReducedPrice: r.ReducedPrice}
		if err := checkStruct(&d, "reward."); err != nil {
			return nil, err
		}
		return FixedAmount{ReducedPrice: *d.ReducedPrice}, nil
	default:
		return nil, pricing.Invalid("reward.type", "must be percentage or fixed_amount")
	}
}

func unmarshalDetails(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return pricing.Invalid("details", err.Error())
	}
	return checkStruct(dst, "")
}

func checkStruct(v any, prefix string) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return pricing.Invalid(prefix+"details", err.Error())
	}
	fe := verrs[0]
	return pricing.Invalid(prefix+fieldPath(fe.Namespace()), describe(fe))
}

// fieldPath drops the Go struct name validator puts in front of the namespace.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must contain at least %s entries", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

// Encode converts a Promotion back into its wire record.
func Encode(p Promotion) (Record, error) {
	if p.Rule == nil {
		return Record{}, pricing.Invalid("type", "is required")
	}
	details, err := encodeDetails(p.Rule)
	if err != nil {
		return Record{}, err
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return Record{}, fmt.Errorf("encode promotion details: %w", err)
	}
	return Record{ID: p.ID, Type: p.Rule.Kind(), Details: raw}, nil
}

func encodeDetails(rule Rule) (any, error) {
	switch r := rule.(type) {
	case Percentage:
		return percentageDetails{Percentage: &r.Percent}, nil
	case FixedAmount:
		return fixedAmountDetails{ReducedPrice: &r.ReducedPrice}, nil
	case BuyXGetY:
		return buyXGetYDetails{BuyQuantity: &r.Buy, GetQuantity: &r.Get}, nil
	case BulkPrice:
		return bulkPriceDetails{MinQuantity: &r.MinQuantity, BulkPrice: &r.UnitPrice}, nil
	case BundleFree:
		d := bundleFreeDetails{FreeQuantity: &r.FreeQuantity}
		for _, c := range r.Components {
			qty := c.Quantity
			d.RequiredProducts = append(d.RequiredProducts, bundleComponentDetails{ProductID: c.ProductID, Quantity: &qty})
		}
		return d, nil
	case Coupon:
		reward, err := encodeReward(r.Reward)
		if err != nil {
			return nil, err
		}
		return couponDetails{CouponCode: r.Code, Reward: reward}, nil
	case Loyalty:
		reward, err := encodeReward(r.Reward)
		if err != nil {
			return nil, err
		}
		return loyaltyDetails{StampsRequired: &r.StampsRequired, Reward: reward}, nil
	case nil:
		return nil, pricing.Invalid("type", "is required")
	default:
		return nil, &UnsupportedPromotionError{Kind: rule.Kind()}
	}
}

func encodeReward(rule Rule) (*rewardDetails, error) {
	switch r := rule.(type) {
	case Percentage:
		return &rewardDetails{Type: KindPercentage, Percentage: &r.Percent}, nil
	case FixedAmount:
		return &rewardDetails{Type: KindFixedAmount, ReducedPrice: &r.ReducedPrice}, nil
	default:
		return nil, pricing.Invalid("reward.type", "must be percentage or fixed_amount")
	}
}

// MarshalJSON encodes the promotion as its wire record.
func (p Promotion) MarshalJSON() ([]byte, error) {
	rec, err := Encode(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes and validates a wire record.
func (p *Promotion) UnmarshalJSON(data []byte) error {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	decoded, err := Decode(rec)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}
