package enums

import "fmt"

// DecrementKind says how the minimum bid improvement is expressed.
type DecrementKind string

const (
	// DecrementKindAbsolute subtracts a fixed currency amount from the reference.
	DecrementKindAbsolute DecrementKind = "absolute"
	// DecrementKindPercentage subtracts a percentage of the reference.
	DecrementKindPercentage DecrementKind = "percentage"
)

var validDecrementKinds = []DecrementKind{
	DecrementKindAbsolute,
	DecrementKindPercentage,
}

func (k DecrementKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known DecrementKind.
func (k DecrementKind) IsValid() bool {
	for _, candidate := range validDecrementKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseDecrementKind converts raw input into a DecrementKind.
func ParseDecrementKind(value string) (DecrementKind, error) {
	for _, candidate := range validDecrementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid decrement kind %q", value)
}
