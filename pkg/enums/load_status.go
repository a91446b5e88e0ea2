package enums

import "fmt"

// LoadStatus tracks the lifecycle of a bidding load.
type LoadStatus string

const (
	LoadStatusDraft              LoadStatus = "draft"
	LoadStatusNotStarted         LoadStatus = "not_started"
	LoadStatusLive               LoadStatus = "live"
	LoadStatusPending            LoadStatus = "pending"
	LoadStatusPartiallyConfirmed LoadStatus = "partially_confirmed"
	LoadStatusConfirmed          LoadStatus = "confirmed"
	LoadStatusCompleted          LoadStatus = "completed"
	LoadStatusCancelled          LoadStatus = "cancelled"
)

var validLoadStatuses = []LoadStatus{
	LoadStatusDraft,
	LoadStatusNotStarted,
	LoadStatusLive,
	LoadStatusPending,
	LoadStatusPartiallyConfirmed,
	LoadStatusConfirmed,
	LoadStatusCompleted,
	LoadStatusCancelled,
}

// String implements fmt.Stringer.
func (s LoadStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LoadStatus.
func (s LoadStatus) IsValid() bool {
	for _, candidate := range validLoadStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLoadStatus converts raw input into a LoadStatus.
func ParseLoadStatus(value string) (LoadStatus, error) {
	for _, candidate := range validLoadStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid load status %q", value)
}
