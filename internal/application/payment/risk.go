package payment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// Counter key layout. Minute and hour windows are bucketed by wall clock.
const (
	riskBlockKey      = "block:%s"
	riskFailKey       = "fail:%s"
	riskUserMinuteKey = "attempt:m:%s:%d"
	riskUserHourKey   = "attempt:h:%s:%d"
	riskIPHourKey     = "ip:h:%s:%d"
)

// RiskConfig holds the thresholds risk control applies
type RiskConfig struct {
	HighAmount           decimal.Decimal
	MediumAmount         decimal.Decimal
	MaxAttemptsPerMinute int
	MaxAttemptsPerHour   int
	MaxIPAttemptsPerHour int
	MaxFailures          int
	FailureWindow        time.Duration
	BlockedIPs           []string
}

// DefaultRiskConfig returns the thresholds used when none are configured
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		HighAmount:           decimal.NewFromInt(5000),
		MediumAmount:         decimal.NewFromInt(1000),
		MaxAttemptsPerMinute: 3,
		MaxAttemptsPerHour:   10,
		MaxIPAttemptsPerHour: 20,
		MaxFailures:          3,
		FailureWindow:        time.Hour,
	}
}

// RiskControl grades payment attempts from per-user and per-IP counters.
// A blocked user, a burst of attempts, a blocked IP, repeated failures or
// a high amount stop the payment from being opened.
type RiskControl struct {
	counters   shared.CounterStore
	config     RiskConfig
	blockedIPs map[string]bool
	logger     *zap.Logger
	now        func() time.Time
}

// NewRiskControl creates risk control on counters. now defaults to time.Now.
func NewRiskControl(counters shared.CounterStore, config RiskConfig, logger *zap.Logger, now func() time.Time) *RiskControl {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	blocked := make(map[string]bool, len(config.BlockedIPs))
	for _, ip := range config.BlockedIPs {
		blocked[ip] = true
	}
	return &RiskControl{
		counters:   counters,
		config:     config,
		blockedIPs: blocked,
		logger:     logger,
		now:        now,
	}
}

func (r *RiskControl) windows() (minute, hour int64) {
	unix := r.now().Unix()
	return unix / 60, unix / 3600
}

// Assess grades subject. Rules that block return at once; otherwise the
// verdict is the highest level any rule reached.
func (r *RiskControl) Assess(ctx context.Context, subject payment.RiskSubject) (*payment.RiskAssessment, error) {
	details := make(map[string]string)
	block := func(reason string) *payment.RiskAssessment {
		return &payment.RiskAssessment{Level: payment.RiskHigh, Block: true, Reason: reason, Details: details}
	}

	if reason, blocked, err := r.counters.Flag(ctx, fmt.Sprintf(riskBlockKey, subject.UserID)); err != nil {
		return nil, err
	} else if blocked {
		details["block_reason"] = reason
		return block("user is blocked by risk control"), nil
	}

	if r.config.MaxFailures > 0 {
		failures, err := r.counters.Count(ctx, fmt.Sprintf(riskFailKey, subject.UserID))
		if err != nil {
			return nil, err
		}
		if failures >= int64(r.config.MaxFailures) {
			details["failure_risk"] = strconv.FormatInt(failures, 10) + " recent failed payments"
			return block("too many recent failed payments"), nil
		}
	}

	amountLevel := r.amountLevel(subject.Amount)
	switch amountLevel {
	case payment.RiskHigh:
		details["amount_risk"] = "amount above " + r.config.HighAmount.String()
	case payment.RiskMedium:
		details["amount_risk"] = "amount above " + r.config.MediumAmount.String()
	}

	freqLevel, err := r.frequencyLevel(ctx, subject.UserID)
	if err != nil {
		return nil, err
	}
	switch freqLevel {
	case payment.RiskHigh:
		details["frequency_risk"] = "too many attempts in the last minute"
		return block("payment attempts are too frequent"), nil
	case payment.RiskMedium:
		details["frequency_risk"] = "many attempts in the last hour"
	}

	ipLevel, err := r.ipLevel(ctx, subject.ClientIP)
	if err != nil {
		return nil, err
	}
	switch ipLevel {
	case payment.RiskHigh:
		details["ip_risk"] = "address is blocked"
		return block("client address is blocked"), nil
	case payment.RiskMedium:
		details["ip_risk"] = "many attempts from this address"
	}

	level := payment.MaxRiskLevel(amountLevel, freqLevel, ipLevel)
	assessment := &payment.RiskAssessment{Level: level, Details: details}
	switch level {
	case payment.RiskHigh:
		assessment.Block = true
		assessment.Reason = "payment is high risk"
	case payment.RiskMedium:
		assessment.Reason = "payment carries some risk"
	}
	return assessment, nil
}

func (r *RiskControl) amountLevel(amount decimal.Decimal) payment.RiskLevel {
	switch {
	case r.config.HighAmount.IsPositive() && amount.GreaterThan(r.config.HighAmount):
		return payment.RiskHigh
	case r.config.MediumAmount.IsPositive() && amount.GreaterThan(r.config.MediumAmount):
		return payment.RiskMedium
	default:
		return payment.RiskLow
	}
}

func (r *RiskControl) frequencyLevel(ctx context.Context, userID string) (payment.RiskLevel, error) {
	minute, hour := r.windows()
	if r.config.MaxAttemptsPerMinute > 0 {
		n, err := r.counters.Count(ctx, fmt.Sprintf(riskUserMinuteKey, userID, minute))
		if err != nil {
			return payment.RiskLow, err
		}
		if n >= int64(r.config.MaxAttemptsPerMinute) {
			return payment.RiskHigh, nil
		}
	}
	if r.config.MaxAttemptsPerHour > 0 {
		n, err := r.counters.Count(ctx, fmt.Sprintf(riskUserHourKey, userID, hour))
		if err != nil {
			return payment.RiskLow, err
		}
		if n >= int64(r.config.MaxAttemptsPerHour) {
			return payment.RiskMedium, nil
		}
	}
	return payment.RiskLow, nil
}

func (r *RiskControl) ipLevel(ctx context.Context, ip string) (payment.RiskLevel, error) {
	if ip == "" {
		return payment.RiskLow, nil
	}
	if r.blockedIPs[ip] {
		return payment.RiskHigh, nil
	}
	if r.config.MaxIPAttemptsPerHour > 0 {
		_, hour := r.windows()
		n, err := r.counters.Count(ctx, fmt.Sprintf(riskIPHourKey, ip, hour))
		if err != nil {
			return payment.RiskLow, err
		}
		if n >= int64(r.config.MaxIPAttemptsPerHour) {
			return payment.RiskMedium, nil
		}
	}
	return payment.RiskLow, nil
}

// RecordAttempt counts an admitted attempt against the user and the client
// address
func (r *RiskControl) RecordAttempt(ctx context.Context, subject payment.RiskSubject) error {
	minute, hour := r.windows()
	if _, err := r.counters.Incr(ctx, fmt.Sprintf(riskUserMinuteKey, subject.UserID, minute), time.Minute); err != nil {
		return err
	}
	if _, err := r.counters.Incr(ctx, fmt.Sprintf(riskUserHourKey, subject.UserID, hour), time.Hour); err != nil {
		return err
	}
	if subject.ClientIP != "" {
		if _, err := r.counters.Incr(ctx, fmt.Sprintf(riskIPHourKey, subject.ClientIP, hour), time.Hour); err != nil {
			return err
		}
	}
	return nil
}

// RecordOutcome tracks settled payments. A failure adds to the user's
// failure count; a success clears it.
func (r *RiskControl) RecordOutcome(ctx context.Context, userID string, paid bool) error {
	key := fmt.Sprintf(riskFailKey, userID)
	if paid {
		return r.counters.Delete(ctx, key)
	}
	window := r.config.FailureWindow
	if window <= 0 {
		window = time.Hour
	}
	_, err := r.counters.Incr(ctx, key, window)
	return err
}

// BlockUser stops userID from opening payments for d
func (r *RiskControl) BlockUser(ctx context.Context, userID, reason string, d time.Duration) error {
	if userID == "" || d <= 0 {
		return shared.NewValidationError("block needs a user and a positive duration")
	}
	if err := r.counters.SetFlag(ctx, fmt.Sprintf(riskBlockKey, userID), reason, d); err != nil {
		return err
	}
	r.logger.Warn("User blocked by risk control",
		zap.String("user_id", userID),
		zap.String("reason", reason),
		zap.Duration("duration", d))
	return nil
}

// UnblockUser lifts a block set by BlockUser
func (r *RiskControl) UnblockUser(ctx context.Context, userID string) error {
	if err := r.counters.Delete(ctx, fmt.Sprintf(riskBlockKey, userID)); err != nil {
		return err
	}
	r.logger.Info("User unblocked", zap.String("user_id", userID))
	return nil
}
