package enums

import "fmt"

// LoadVisibility controls which carriers may see and bid on a load.
type LoadVisibility string

const (
	// LoadVisibilityOpen lets any registered carrier bid.
	LoadVisibilityOpen LoadVisibility = "open_market"
	// LoadVisibilityPrivate restricts bidding to the shipper's pool.
	LoadVisibilityPrivate LoadVisibility = "private_pool"
	// LoadVisibilitySegmented restricts bidding to carriers in the load's segment.
	LoadVisibilitySegmented LoadVisibility = "segmented"
	// LoadVisibilityIndent is a fixed-price posting with no live bidding.
	LoadVisibilityIndent LoadVisibility = "indent"
)

var validLoadVisibilities = []LoadVisibility{
	LoadVisibilityOpen,
	LoadVisibilityPrivate,
	LoadVisibilitySegmented,
	LoadVisibilityIndent,
}

func (v LoadVisibility) String() string {
	return string(v)
}

// IsValid reports whether the value is a known LoadVisibility.
func (v LoadVisibility) IsValid() bool {
	for _, candidate := range validLoadVisibilities {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseLoadVisibility converts raw input into a LoadVisibility.
func ParseLoadVisibility(value string) (LoadVisibility, error) {
	for _, candidate := range validLoadVisibilities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid load visibility %q", value)
}
