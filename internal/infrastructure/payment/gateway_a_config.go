package payment

import (
	"errors"
	"strings"
	"time"

	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/config"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/security"
)

// GatewayAConfig contains configuration for the JSON, shared-key provider
type GatewayAConfig struct {
	// BaseURL is the provider API root, without trailing slash
	BaseURL string
	// AppID is the merchant application ID
	AppID string
	// MerchantID is the merchant account number
	MerchantID string
	// Secret is the shared signing key
	Secret string
	// SignAlgorithm is MD5, SHA256 or HMAC_SHA256
	SignAlgorithm security.Algorithm
	// NotifyURL receives payment notifications
	NotifyURL string
	// RefundNotifyURL receives refund notifications
	RefundNotifyURL string
	// ExpireAfter is how long the provider keeps an unpaid trade open
	ExpireAfter time.Duration
	// TimestampTolerance bounds clock skew on callbacks; zero disables the check
	TimestampTolerance time.Duration
	ConnectTimeout     time.Duration
	RequestTimeout     time.Duration
	// AllowedIPs restricts callback sources; empty allows all
	AllowedIPs []string
}

// Errors for configuration validation
var (
	ErrGatewayAMissingBaseURL    = errors.New("gateway_a: missing base URL")
	ErrGatewayAMissingAppID      = errors.New("gateway_a: missing app ID")
	ErrGatewayAMissingMerchantID = errors.New("gateway_a: missing merchant ID")
	ErrGatewayAMissingSecret     = errors.New("gateway_a: missing signing secret")
	ErrGatewayAMissingNotifyURL  = errors.New("gateway_a: missing notify URL")
	ErrGatewayAInvalidAlgorithm  = errors.New("gateway_a: sign algorithm must be MD5, SHA256 or HMAC_SHA256")
)

// Validate validates the configuration
func (c *GatewayAConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrGatewayAMissingBaseURL
	}
	if c.AppID == "" {
		return ErrGatewayAMissingAppID
	}
	if c.MerchantID == "" {
		return ErrGatewayAMissingMerchantID
	}
	if c.Secret == "" {
		return ErrGatewayAMissingSecret
	}
	if c.NotifyURL == "" {
		return ErrGatewayAMissingNotifyURL
	}
	if c.SignAlgorithm == "" {
		c.SignAlgorithm = security.AlgorithmMD5
	}
	switch c.SignAlgorithm {
	case security.AlgorithmMD5, security.AlgorithmSHA256, security.AlgorithmHMACSHA256:
	default:
		return ErrGatewayAInvalidAlgorithm
	}
	if c.RefundNotifyURL == "" {
		c.RefundNotifyURL = c.NotifyURL
	}
	if c.ExpireAfter <= 0 {
		c.ExpireAfter = 30 * time.Minute
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return nil
}

// GatewayAConfigFrom maps the gateway_a settings section. Callback timestamp
// tolerance and the shared allow list come from the security section.
func GatewayAConfigFrom(gw config.GatewayConfig, sec config.SecurityConfig) *GatewayAConfig {
	return &GatewayAConfig{
		BaseURL:            gw.BaseURL,
		AppID:              gw.AppID,
		MerchantID:         gw.MerchantID,
		Secret:             gw.Secret,
		SignAlgorithm:      security.ParseAlgorithm(gw.SignAlgorithm),
		NotifyURL:          gw.NotifyURL,
		RefundNotifyURL:    gw.RefundNotifyURL,
		ExpireAfter:        gw.ExpireAfter,
		TimestampTolerance: sec.TimestampTolerance,
		ConnectTimeout:     gw.ConnectTimeout,
		RequestTimeout:     gw.RequestTimeout,
		AllowedIPs:         mergeAllowList(gw.AllowedIPs, sec.WebhookAllowedIPs),
	}
}

// mergeAllowList prefers the gateway-specific list and falls back to the
// service-wide one
func mergeAllowList(gateway, global []string) []string {
	if len(gateway) > 0 {
		return gateway
	}
	return global
}
