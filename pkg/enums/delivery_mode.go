package enums

import "fmt"

// DeliveryMode declares how a product is fulfilled at purchase time.
type DeliveryMode string

const (
	// DeliveryModeStock delivers pre-loaded credential units from the pool.
	DeliveryModeStock DeliveryMode = "stock"
	// DeliveryModeOnRequest creates an order and fulfills after the fact.
	DeliveryModeOnRequest DeliveryMode = "on_request"
)

var validDeliveryModes = []DeliveryMode{
	DeliveryModeStock,
	DeliveryModeOnRequest,
}

// IsValid reports whether the value is a known DeliveryMode.
func (m DeliveryMode) IsValid() bool {
	for _, candidate := range validDeliveryModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseDeliveryMode converts raw input into a DeliveryMode.
func ParseDeliveryMode(value string) (DeliveryMode, error) {
	for _, candidate := range validDeliveryModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery mode %q", value)
}
