package payment

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	paymentNoPrefix  = "P"
	refundNoPrefix   = "R"
	rechargeNoPrefix = "RC"
	numberTimeFmt    = "20060102150405"
)

// NewPaymentNo returns "P" + yyyyMMddHHmmss + 6 random digits
func NewPaymentNo(now time.Time) string {
	return paymentNoPrefix + now.Format(numberTimeFmt) + RandomDigits(6)
}

// NewRefundNo returns "R" + yyyyMMddHHmmss + 6 random digits
func NewRefundNo(now time.Time) string {
	return refundNoPrefix + now.Format(numberTimeFmt) + RandomDigits(6)
}

// NewRechargeNo returns "RC" + yyyyMMddHHmmss + 6 random digits. It is the
// order number of a balance recharge.
func NewRechargeNo(now time.Time) string {
	return rechargeNoPrefix + now.Format(numberTimeFmt) + RandomDigits(6)
}

// IsRechargeOrderNo reports whether orderNo has the recharge number layout
func IsRechargeOrderNo(orderNo string) bool {
	if len(orderNo) != len(rechargeNoPrefix)+len(numberTimeFmt)+6 || !strings.HasPrefix(orderNo, rechargeNoPrefix) {
		return false
	}
	for _, c := range orderNo[len(rechargeNoPrefix):] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

const rechargeReversalPrefix = "RCR:"

// RechargeReversalRef is the balance reference of the debit that takes back a
// refunded recharge
func RechargeReversalRef(refundNo string) string {
	return rechargeReversalPrefix + refundNo
}

// IsRechargeReversalRef reports whether a balance reference was made by
// RechargeReversalRef
func IsRechargeReversalRef(reference string) bool {
	return strings.HasPrefix(reference, rechargeReversalPrefix)
}

// RandomDigits returns n random decimal digits
func RandomDigits(n int) string {
	buf := make([]byte, n)
	ten := big.NewInt(10)
	for i := range buf {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		buf[i] = byte('0' + d.Int64())
	}
	return string(buf)
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a yuan amount to fen, rounding half away from zero
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts fen to a yuan amount with two decimals
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
