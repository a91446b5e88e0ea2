package enums

import "fmt"

// AssignmentEventKind tags entries in an assignment's append-only history.
type AssignmentEventKind string

const (
	AssignmentEventAssign               AssignmentEventKind = "assign"
	AssignmentEventUnassign             AssignmentEventKind = "unassign"
	AssignmentEventPriceMatchRequest    AssignmentEventKind = "price_match_request"
	AssignmentEventPriceMatchNegotiated AssignmentEventKind = "price_match_negotiated"
	AssignmentEventPriceMatchApproved   AssignmentEventKind = "price_match_approved"
	AssignmentEventPriceMatchRejected   AssignmentEventKind = "price_match_rejected"
	AssignmentEventSuperuserNegotiation AssignmentEventKind = "superuser_negotiation"
)

var validAssignmentEventKinds = []AssignmentEventKind{
	AssignmentEventAssign,
	AssignmentEventUnassign,
	AssignmentEventPriceMatchRequest,
	AssignmentEventPriceMatchNegotiated,
	AssignmentEventPriceMatchApproved,
	AssignmentEventPriceMatchRejected,
	AssignmentEventSuperuserNegotiation,
}

func (k AssignmentEventKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known AssignmentEventKind.
func (k AssignmentEventKind) IsValid() bool {
	for _, candidate := range validAssignmentEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseAssignmentEventKind converts raw input into an AssignmentEventKind.
func ParseAssignmentEventKind(value string) (AssignmentEventKind, error) {
	for _, candidate := range validAssignmentEventKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment event kind %q", value)
}
