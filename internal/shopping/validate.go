package shopping

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/canasta/internal/pricing"
)

var payloadValidator = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validatePayload checks the struct tags of a request body and reports the
// first failure as a pricing.ValidationError.
func validatePayload(v any) error {
	err := payloadValidator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return pricing.Invalid("body", err.Error())
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return pricing.Invalid(field, "is required")
	case "gte":
		return pricing.Invalid(field, fmt.Sprintf("must be at least %s", fe.Param()))
	default:
		return pricing.Invalid(field, fmt.Sprintf("failed %s validation", fe.Tag()))
	}
}
