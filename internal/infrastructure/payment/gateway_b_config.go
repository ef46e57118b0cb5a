package payment

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/config"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/security"
)

// GatewayBConfig contains configuration for the form-encoded RSA provider
type GatewayBConfig struct {
	// GatewayURL is the single API endpoint every method is posted to
	GatewayURL string
	// AppID is the merchant application ID
	AppID string
	// PrivateKey signs requests
	PrivateKey *rsa.PrivateKey
	// ProviderPublicKey verifies responses and notifications
	ProviderPublicKey *rsa.PublicKey
	// NotifyURL receives payment and refund notifications
	NotifyURL string
	// ReturnURL is where the checkout page sends the buyer afterwards
	ReturnURL          string
	ExpireAfter        time.Duration
	TimestampTolerance time.Duration
	ConnectTimeout     time.Duration
	RequestTimeout     time.Duration
	AllowedIPs         []string
}

// Errors for configuration validation
var (
	ErrGatewayBMissingGatewayURL = errors.New("gateway_b: missing gateway URL")
	ErrGatewayBMissingAppID      = errors.New("gateway_b: missing app ID")
	ErrGatewayBMissingPrivateKey = errors.New("gateway_b: missing private key")
	ErrGatewayBMissingPublicKey  = errors.New("gateway_b: missing provider public key")
	ErrGatewayBMissingNotifyURL  = errors.New("gateway_b: missing notify URL")
)

// Validate validates the configuration
func (c *GatewayBConfig) Validate() error {
	if c.GatewayURL == "" {
		return ErrGatewayBMissingGatewayURL
	}
	if c.AppID == "" {
		return ErrGatewayBMissingAppID
	}
	if c.PrivateKey == nil {
		return ErrGatewayBMissingPrivateKey
	}
	if c.ProviderPublicKey == nil {
		return ErrGatewayBMissingPublicKey
	}
	if c.NotifyURL == "" {
		return ErrGatewayBMissingNotifyURL
	}
	if c.ExpireAfter <= 0 {
		c.ExpireAfter = 30 * time.Minute
	}
	return nil
}

// GatewayBConfigBuilder helps build GatewayBConfig from PEM material
type GatewayBConfigBuilder struct {
	config GatewayBConfig
	err    error
}

// NewGatewayBConfigBuilder creates a new config builder
func NewGatewayBConfigBuilder() *GatewayBConfigBuilder {
	return &GatewayBConfigBuilder{}
}

// FromSettings copies the plain settings of the gateway_b section and parses
// its PEM keys. Key values that name an existing file are read from disk.
func (b *GatewayBConfigBuilder) FromSettings(gw config.GatewayConfig, sec config.SecurityConfig) *GatewayBConfigBuilder {
	b.config.GatewayURL = gw.BaseURL
	b.config.AppID = gw.AppID
	b.config.NotifyURL = gw.NotifyURL
	b.config.ReturnURL = gw.ReturnURL
	b.config.ExpireAfter = gw.ExpireAfter
	b.config.TimestampTolerance = sec.TimestampTolerance
	b.config.ConnectTimeout = gw.ConnectTimeout
	b.config.RequestTimeout = gw.RequestTimeout
	b.config.AllowedIPs = mergeAllowList(gw.AllowedIPs, sec.WebhookAllowedIPs)
	return b.SetPrivateKey(gw.PrivateKey).SetProviderPublicKey(gw.PublicKey)
}

// SetPrivateKey sets the merchant private key from a PEM string or file path
func (b *GatewayBConfigBuilder) SetPrivateKey(pemOrPath string) *GatewayBConfigBuilder {
	if b.err != nil {
		return b
	}
	pemStr, err := readPEM(pemOrPath)
	if err != nil {
		b.err = fmt.Errorf("gateway_b: failed to read private key: %w", err)
		return b
	}
	if pemStr == "" {
		return b
	}
	key, err := security.ParseRSAPrivateKey(pemStr)
	if err != nil {
		b.err = fmt.Errorf("gateway_b: %w", err)
		return b
	}
	b.config.PrivateKey = key
	return b
}

// SetProviderPublicKey sets the provider public key from a PEM string or
// file path
func (b *GatewayBConfigBuilder) SetProviderPublicKey(pemOrPath string) *GatewayBConfigBuilder {
	if b.err != nil {
		return b
	}
	pemStr, err := readPEM(pemOrPath)
	if err != nil {
		b.err = fmt.Errorf("gateway_b: failed to read provider public key: %w", err)
		return b
	}
	if pemStr == "" {
		return b
	}
	key, err := security.ParseRSAPublicKey(pemStr)
	if err != nil {
		b.err = fmt.Errorf("gateway_b: %w", err)
		return b
	}
	b.config.ProviderPublicKey = key
	return b
}

// Build builds the config and validates it
func (b *GatewayBConfigBuilder) Build() (*GatewayBConfig, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	return &b.config, nil
}

func readPEM(pemOrPath string) (string, error) {
	if pemOrPath == "" || strings.Contains(pemOrPath, "-----BEGIN") {
		return pemOrPath, nil
	}
	data, err := os.ReadFile(pemOrPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
