package promotion

import "fmt"

// UnsupportedPromotionError is returned for a type tag outside the known set.
type UnsupportedPromotionError struct {
	Kind Kind
}

// Error implements the error interface.
func (e *UnsupportedPromotionError) Error() string {
	return fmt.Sprintf("unsupported promotion type %q", string(e.Kind))
}
