package auction

import (
	"fmt"

	"github.com/haulbid/haulbid-backend/pkg/enums"
	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
)

// cancellableStatuses is the subset of states an operator may cancel from.
// Live auctions are closed by the scheduler first, never cancelled directly.
var cancellableStatuses = map[enums.LoadStatus]bool{
	enums.LoadStatusDraft:              true,
	enums.LoadStatusNotStarted:         true,
	enums.LoadStatusPending:            true,
	enums.LoadStatusPartiallyConfirmed: true,
	enums.LoadStatusConfirmed:          true,
}

// assignableStatuses is where the assignment engine may act.
var assignableStatuses = map[enums.LoadStatus]bool{
	enums.LoadStatusPending:            true,
	enums.LoadStatusPartiallyConfirmed: true,
}

// biddableStatuses is where carriers may submit rates. not_started is
// included so the first tick's worth of early submissions are not lost to
// minute-granularity scheduling.
var biddableStatuses = map[enums.LoadStatus]bool{
	enums.LoadStatusLive:       true,
	enums.LoadStatusNotStarted: true,
}

// IsCancellable reports whether an operator may cancel from status.
func IsCancellable(status enums.LoadStatus) bool {
	return cancellableStatuses[status]
}

// IsAssignable reports whether assignments may be created or changed.
func IsAssignable(status enums.LoadStatus) bool {
	return assignableStatuses[status]
}

// IsBiddable reports whether rate submissions are accepted.
func IsBiddable(status enums.LoadStatus) bool {
	return biddableStatuses[status]
}

// InvalidTransition builds the typed state-conflict error every rejected
// transition returns, naming the current and attempted status.
func InvalidTransition(current, attempted enums.LoadStatus) *apperrors.Error {
	return apperrors.New(
		apperrors.CodeStateConflict,
		fmt.Sprintf("cannot transition load from %s to %s", current, attempted),
	).WithDetails(map[string]string{
		"currentStatus":   current.String(),
		"attemptedStatus": attempted.String(),
	})
}
