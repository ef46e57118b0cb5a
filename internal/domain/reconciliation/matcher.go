package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
)

// MatchResult is the outcome of comparing the ledger with a statement
type MatchResult struct {
	Records       []*Record
	InternalCount int
	ExternalCount int
	InternalTotal decimal.Decimal
	ExternalTotal decimal.Decimal
}

// MatchedCount returns the number of MATCHED records
func (r *MatchResult) MatchedCount() int {
	n := 0
	for _, rec := range r.Records {
		if rec.DiffType == DiffTypeMatched {
			n++
		}
	}
	return n
}

// Count returns the number of records of the given type
func (r *MatchResult) Count(t DiffType) int {
	n := 0
	for _, rec := range r.Records {
		if rec.DiffType == t {
			n++
		}
	}
	return n
}

// Matcher outer-joins ledger payments with statement entries. Entries join
// on transaction id and fall back to payment number when the provider has
// no transaction id yet. Amounts within Epsilon of each other match.
type Matcher struct {
	Epsilon decimal.Decimal
}

// NewMatcher creates a matcher. A negative epsilon is treated as zero.
func NewMatcher(epsilon decimal.Decimal) *Matcher {
	if epsilon.IsNegative() {
		epsilon = decimal.Zero
	}
	return &Matcher{Epsilon: epsilon}
}

// Match joins internal and external into one record per pair. Records keep
// statement order followed by unmatched ledger payments in input order.
func (m *Matcher) Match(batchNo string, internal []*payment.Payment, external []payment.StatementEntry) *MatchResult {
	res := &MatchResult{
		Records:       make([]*Record, 0, max(len(internal), len(external))),
		InternalCount: len(internal),
		ExternalCount: len(external),
		InternalTotal: decimal.Zero,
		ExternalTotal: decimal.Zero,
	}

	byTxID := make(map[string]int, len(internal))
	byPaymentNo := make(map[string]int, len(internal))
	for i, p := range internal {
		res.InternalTotal = res.InternalTotal.Add(p.Amount)
		if p.TransactionID != "" {
			byTxID[p.TransactionID] = i
		}
		byPaymentNo[p.PaymentNo] = i
	}

	used := make([]bool, len(internal))
	lookup := func(e payment.StatementEntry) (int, bool) {
		if e.TransactionID != "" {
			if i, ok := byTxID[e.TransactionID]; ok && !used[i] {
				return i, true
			}
		}
		if e.PaymentNo != "" {
			if i, ok := byPaymentNo[e.PaymentNo]; ok && !used[i] {
				return i, true
			}
		}
		return 0, false
	}

	now := time.Now()
	for _, e := range external {
		res.ExternalTotal = res.ExternalTotal.Add(e.Amount)
		ext := e.Amount

		i, ok := lookup(e)
		if !ok {
			res.Records = append(res.Records, &Record{
				ID:             uuid.New(),
				BatchNo:        batchNo,
				PaymentNo:      e.PaymentNo,
				TransactionID:  e.TransactionID,
				ExternalAmount: &ext,
				DiffAmount:     ext.Neg(),
				DiffType:       DiffTypeMissingInternal,
				CreatedAt:      now,
			})
			continue
		}

		used[i] = true
		p := internal[i]
		in := p.Amount
		txID := e.TransactionID
		if txID == "" {
			txID = p.TransactionID
		}
		rec := &Record{
			ID:             uuid.New(),
			BatchNo:        batchNo,
			PaymentNo:      p.PaymentNo,
			TransactionID:  txID,
			OrderNo:        p.OrderNo,
			InternalAmount: &in,
			ExternalAmount: &ext,
			DiffAmount:     in.Sub(ext),
			DiffType:       m.classify(in, ext),
			CreatedAt:      now,
		}
		res.Records = append(res.Records, rec)
	}

	for i, p := range internal {
		if used[i] {
			continue
		}
		in := p.Amount
		res.Records = append(res.Records, &Record{
			ID:             uuid.New(),
			BatchNo:        batchNo,
			PaymentNo:      p.PaymentNo,
			TransactionID:  p.TransactionID,
			OrderNo:        p.OrderNo,
			InternalAmount: &in,
			DiffAmount:     in,
			DiffType:       DiffTypeMissingExternal,
			CreatedAt:      now,
		})
	}
	return res
}

func (m *Matcher) classify(internal, external decimal.Decimal) DiffType {
	if internal.Sub(external).Abs().LessThanOrEqual(m.Epsilon) {
		return DiffTypeMatched
	}
	return DiffTypeAmountMismatch
}
