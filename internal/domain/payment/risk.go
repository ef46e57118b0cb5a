package payment

import "github.com/shopspring/decimal"

// RiskLevel grades a payment attempt before it is opened
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

func (l RiskLevel) String() string {
	switch l {
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	default:
		return "LOW"
	}
}

// MaxRiskLevel returns the highest of levels
func MaxRiskLevel(levels ...RiskLevel) RiskLevel {
	highest := RiskLow
	for _, l := range levels {
		if l > highest {
			highest = l
		}
	}
	return highest
}

// RiskSubject is what risk control knows about a payment attempt
type RiskSubject struct {
	UserID      string
	OrderNo     string
	Amount      decimal.Decimal
	PaymentType PaymentType
	ClientIP    string
}

// RiskAssessment is the verdict on one attempt. Details maps each rule that
// fired to its finding.
type RiskAssessment struct {
	Level   RiskLevel
	Block   bool
	Reason  string
	Details map[string]string
}
