// Package payment holds the gateway adapters: two signed-HTTP providers and
// the internal stored-value gateway, plus the registry the ledger resolves
// them through.
package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/telemetry"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 4 << 20
)

// ProviderError is a well-formed rejection from a provider: an HTTP 4xx or
// a business error code in the response body.
type ProviderError struct {
	Gateway    payment.PaymentType
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: provider returned HTTP %d", e.Gateway, e.StatusCode)
	}
	return fmt.Sprintf("%s: provider rejected request: %s - %s", e.Gateway, e.Code, e.Message)
}

// ProviderCode returns the provider error code carried by err, if any
func ProviderCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HTTPDoer is the subset of *http.Client the adapters need
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client whose dial is bounded by connectTimeout and
// whose whole exchange is bounded by requestTimeout
func NewHTTPClient(connectTimeout, requestTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: requestTimeout,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: requestTimeout}
}

// gatewayClient performs one provider exchange and classifies the outcome.
// Transport failures, timeouts and 5xx responses become GatewayError; 4xx
// responses become GatewayError wrapping a ProviderError. It never retries.
type gatewayClient struct {
	gateway payment.PaymentType
	doer    HTTPDoer
	timeout time.Duration
	metrics *telemetry.PaymentMetrics
	// decodeError extracts the provider code from a 4xx body, when it has one
	decodeError func(body []byte) (code, message string)
}

func (c *gatewayClient) do(ctx context.Context, operation string, req *http.Request) (body []byte, err error) {
	start := time.Now()
	defer func() {
		c.metrics.GatewayCall(ctx, c.gateway.String(), operation, time.Since(start), err)
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req = req.WithContext(ctx)

	resp, err := c.doer.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, shared.NewGatewayError(err, "%s %s timed out", c.gateway, operation)
		}
		return nil, shared.NewGatewayError(err, "%s %s failed", c.gateway, operation)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, shared.NewGatewayError(err, "%s %s: failed to read response", c.gateway, operation)
	}
	if len(body) > maxResponseBytes {
		return nil, shared.NewGatewayError(payment.ErrGatewayInvalidResponse, "%s %s: response exceeds %d bytes", c.gateway, operation, maxResponseBytes)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, shared.NewGatewayError(&ProviderError{Gateway: c.gateway, StatusCode: resp.StatusCode},
			"%s %s: provider unavailable", c.gateway, operation)
	case resp.StatusCode >= 400:
		pe := &ProviderError{Gateway: c.gateway, StatusCode: resp.StatusCode}
		if c.decodeError != nil {
			pe.Code, pe.Message = c.decodeError(body)
		}
		return nil, shared.NewGatewayError(pe, "%s %s rejected", c.gateway, operation)
	}
	return body, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// rejected wraps a business-level rejection found in a 2xx body
func rejected(gateway payment.PaymentType, operation, code, message string) error {
	return shared.NewGatewayError(&ProviderError{Gateway: gateway, StatusCode: http.StatusOK, Code: code, Message: message},
		"%s %s rejected", gateway, operation)
}

func invalidResponse(gateway payment.PaymentType, operation string, cause error) error {
	if cause == nil {
		cause = payment.ErrGatewayInvalidResponse
	} else {
		cause = fmt.Errorf("%w: %w", payment.ErrGatewayInvalidResponse, cause)
	}
	return shared.NewGatewayError(cause, "%s %s: invalid response", gateway, operation)
}
