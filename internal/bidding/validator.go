package bidding

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/haulbid/haulbid-backend/pkg/db/models"
	"github.com/haulbid/haulbid-backend/pkg/enums"
)

// ReferenceBasis names which price a proposed rate is validated against.
type ReferenceBasis string

const (
	// BasisGlobalLowest validates against the load's overall best rate.
	BasisGlobalLowest ReferenceBasis = "global_lowest"
	// BasisCarrierLowest validates against the carrier's own best rate.
	BasisCarrierLowest ReferenceBasis = "carrier_lowest"
)

// SelectBasis encodes the decrement-basis policy: the global lowest applies
// only while the load is live AND the lowest rate is shown to carriers;
// everything else validates against the carrier's own history.
func SelectBasis(load *models.Load) ReferenceBasis {
	if load.ShowLowestToCarriers && load.Status == enums.LoadStatusLive {
		return BasisGlobalLowest
	}
	return BasisCarrierLowest
}

// Decision is the outcome of validating one proposed rate.
type Decision struct {
	Accepted bool
	// Rate is the proposed rate truncated to whole currency units; this is
	// the value that gets recorded when accepted.
	Rate decimal.Decimal
	// Ceiling is the highest acceptable rate; meaningful only when a
	// reference exists.
	Ceiling    decimal.Decimal
	HasCeiling bool
	Basis      ReferenceBasis
	Reason     string
}

// Validate is a pure decision function: no reads, no writes. The caller
// supplies the reference price (nil when the carrier/load has no accepted
// rate yet) and is responsible for serializing the read-then-write race.
//
// Rates are truncated to whole currency units before comparison; percentage
// decrements round the required improvement up, so the carrier can never
// satisfy the decrement by exploiting fractional rounding.
func Validate(load *models.Load, basis ReferenceBasis, reference *decimal.Decimal, proposed decimal.Decimal) Decision {
	decision := Decision{
		Rate:  proposed.Truncate(0),
		Basis: basis,
	}

	if !decision.Rate.IsPositive() {
		decision.Reason = "rate must be a positive whole amount"
		return decision
	}

	// No prior rate on the chosen basis: any positive rate is accepted.
	if reference == nil {
		decision.Accepted = true
		return decision
	}

	ref := reference.Truncate(0)
	var required decimal.Decimal
	switch load.DecrementKind {
	case enums.DecrementKindPercentage:
		required = load.DecrementValue.Mul(ref).Div(decimal.NewFromInt(100)).Ceil()
	default:
		required = load.DecrementValue.Truncate(0)
	}
	// A zero decrement still demands strict improvement: with whole-unit
	// rates that means at least one unit below the reference.
	if !required.IsPositive() {
		required = decimal.NewFromInt(1)
	}

	decision.Ceiling = ref.Sub(required)
	decision.HasCeiling = true

	if decision.Rate.LessThanOrEqual(decision.Ceiling) {
		decision.Accepted = true
		return decision
	}

	decision.Reason = fmt.Sprintf(
		"rate must be at most %s (reference %s minus required decrement %s)",
		decision.Ceiling, ref, required,
	)
	return decision
}
