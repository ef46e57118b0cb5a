package reconciliation

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// DiffType classifies one compared transaction
type DiffType string

const (
	DiffTypeMatched        DiffType = "MATCHED"
	DiffTypeAmountMismatch DiffType = "AMOUNT_MISMATCH"
	// DiffTypeMissingInternal is a provider charge with no ledger row
	DiffTypeMissingInternal DiffType = "MISSING_INTERNAL"
	// DiffTypeMissingExternal is a ledger payment absent from the statement
	DiffTypeMissingExternal DiffType = "MISSING_EXTERNAL"
)

func (d DiffType) String() string {
	return string(d)
}

// IsValid checks if the diff type is valid
func (d DiffType) IsValid() bool {
	switch d {
	case DiffTypeMatched, DiffTypeAmountMismatch, DiffTypeMissingInternal, DiffTypeMissingExternal:
		return true
	}
	return false
}

// AllDiffTypes returns every diff type in report order
func AllDiffTypes() []DiffType {
	return []DiffType{DiffTypeMatched, DiffTypeAmountMismatch, DiffTypeMissingInternal, DiffTypeMissingExternal}
}

// Record is one joined pair within a batch. Only the resolution fields change
// after creation, and only once.
type Record struct {
	ID             uuid.UUID
	BatchNo        string
	PaymentNo      string
	TransactionID  string
	OrderNo        string
	InternalAmount *decimal.Decimal
	ExternalAmount *decimal.Decimal
	DiffAmount     decimal.Decimal
	DiffType       DiffType
	Resolution     string
	Solver         string
	SolvedAt       *time.Time
	CreatedAt      time.Time
}

// IsResolved reports whether an operator already resolved the record
func (r *Record) IsResolved() bool {
	return r.SolvedAt != nil
}

// Solve records a human resolution
func (r *Record) Solve(solution, solver string, at time.Time) error {
	solution = strings.TrimSpace(solution)
	solver = strings.TrimSpace(solver)
	if solution == "" {
		return shared.NewValidationError("resolution cannot be empty")
	}
	if len(solution) > 500 {
		return shared.NewValidationError("resolution cannot exceed 500 characters")
	}
	if solver == "" {
		return shared.NewValidationError("solver is required")
	}
	if r.DiffType == DiffTypeMatched {
		return shared.NewValidationError("record %s is MATCHED and needs no resolution", r.ID)
	}
	if r.IsResolved() {
		return shared.NewReconciliationConflictError("record %s already resolved by %s", r.ID, r.Solver)
	}
	r.Resolution = solution
	r.Solver = solver
	r.SolvedAt = &at
	return nil
}

// Key is the join key the record was matched on
func (r *Record) Key() string {
	if r.TransactionID != "" {
		return r.TransactionID
	}
	return r.PaymentNo
}
