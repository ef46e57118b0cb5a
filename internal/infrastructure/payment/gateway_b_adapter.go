package payment

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/security"
)

// GatewayBAdapter implements payment.Gateway for the form-encoded provider
// that signs with RSA-SHA256
type GatewayBAdapter struct {
	config *GatewayBConfig
	client *gatewayClient
	allow  *security.IPAllowList
	fresh  *security.TimestampVerifier
	now    func() time.Time
}

// NewGatewayBAdapter creates a new adapter
func NewGatewayBAdapter(cfg *GatewayBConfig, opts ...AdapterOption) (*GatewayBAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	allow, err := security.NewIPAllowList(cfg.AllowedIPs)
	if err != nil {
		return nil, err
	}
	o := newAdapterOptions(cfg.ConnectTimeout, cfg.RequestTimeout, opts)

	return &GatewayBAdapter{
		config: cfg,
		client: &gatewayClient{
			gateway: payment.PaymentTypeGatewayB,
			doer:    o.doer,
			timeout: cfg.RequestTimeout,
			metrics: o.metrics,
		},
		allow: allow,
		fresh: security.NewTimestampVerifier(cfg.TimestampTolerance, o.now),
		now:   o.now,
	}, nil
}

// Type returns the gateway type
func (a *GatewayBAdapter) Type() payment.PaymentType {
	return payment.PaymentTypeGatewayB
}

// CreatePaymentParams signs a checkout page request. Nothing is sent; the
// client follows RedirectURL.
func (a *GatewayBAdapter) CreatePaymentParams(ctx context.Context, p *payment.Payment, opts payment.CreateParamsOptions) (*payment.PaymentParams, error) {
	if p.PaymentType != payment.PaymentTypeGatewayB {
		return nil, shared.NewValidationError("payment %s is not a %s payment", p.PaymentNo, payment.PaymentTypeGatewayB)
	}

	expireAt := a.now().Add(a.config.ExpireAfter)
	subject := opts.Subject
	if subject == "" {
		subject = "Order " + p.OrderNo
	}
	returnURL := opts.ReturnURL
	if returnURL == "" {
		returnURL = a.config.ReturnURL
	}

	params, err := a.buildParams(gatewayBMethodPagePay, gatewayBBizContent{
		OutTradeNo:     p.PaymentNo,
		ProductCode:    gatewayBProductCode,
		TotalAmount:    p.Amount.StringFixed(2),
		Subject:        subject,
		TimeExpire:     expireAt.In(providerZone).Format(gatewayBExpireLayout),
		PassbackParams: url.QueryEscape(p.OrderNo),
	})
	if err != nil {
		return nil, err
	}
	params["notify_url"] = a.config.NotifyURL
	if returnURL != "" {
		params["return_url"] = returnURL
	}
	if err := a.sign(params); err != nil {
		return nil, err
	}

	return &payment.PaymentParams{
		PaymentNo:   p.PaymentNo,
		PaymentType: payment.PaymentTypeGatewayB,
		Params:      params,
		RedirectURL: a.config.GatewayURL + "?" + encodeForm(params),
		ExpireAt:    expireAt,
	}, nil
}

// ParseCallback verifies a form-encoded notification and decodes it
func (a *GatewayBAdapter) ParseCallback(ctx context.Context, req *payment.CallbackRequest) (*payment.CallbackResult, error) {
	if !a.allow.Allowed(req.RemoteIP) {
		return nil, shared.NewSignatureError("callback source %s is not allowed", req.RemoteIP)
	}

	values, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return nil, shared.NewValidationError("malformed gateway_b notification: %v", err)
	}

	notifyTime, err := time.ParseInLocation(gatewayBTimeLayout, values.Get("notify_time"), providerZone)
	if err != nil && a.config.TimestampTolerance > 0 {
		return nil, shared.NewSignatureError("gateway_b notification has no valid notify_time")
	}
	if err := a.fresh.Verify(notifyTime); err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	if !security.VerifyRSA(fields, values.Get(security.SignField), a.config.ProviderPublicKey) {
		return nil, shared.NewSignatureError("gateway_b notification signature mismatch")
	}
	if values.Get("app_id") != a.config.AppID {
		return nil, shared.NewValidationError("gateway_b notification is for another application")
	}

	if req.Kind == payment.CallbackKindRefund {
		return parseGatewayBRefund(values)
	}
	return parseGatewayBPayment(values)
}

func parseGatewayBPayment(values url.Values) (*payment.CallbackResult, error) {
	result := &payment.CallbackResult{
		Kind:          payment.CallbackKindPayment,
		PaymentNo:     values.Get("out_trade_no"),
		TransactionID: values.Get("trade_no"),
		Status:        mapGatewayBTradeStatus(values.Get("trade_status")),
	}
	if result.PaymentNo == "" {
		return nil, shared.NewValidationError("gateway_b notification missing out_trade_no")
	}
	if orderNo, err := url.QueryUnescape(values.Get("passback_params")); err == nil {
		result.OrderNo = orderNo
	}
	amount, err := parseAmount(values.Get("total_amount"))
	if err != nil {
		return nil, shared.NewValidationError("gateway_b notification has invalid total_amount: %v", err)
	}
	result.Amount = amount

	switch {
	case result.Status.IsSettled():
		if result.TransactionID == "" {
			return nil, shared.NewValidationError("gateway_b notification missing trade_no")
		}
		result.PaidAt = parseProviderTime(gatewayBTimeLayout, values.Get("gmt_payment"))
	case result.Status.IsFinalFailure():
		result.FailReason = "trade closed by provider"
	}
	return result, nil
}

func parseGatewayBRefund(values url.Values) (*payment.CallbackResult, error) {
	result := &payment.CallbackResult{
		Kind:            payment.CallbackKindRefund,
		PaymentNo:       values.Get("out_trade_no"),
		TransactionID:   values.Get("trade_no"),
		RefundNo:        values.Get("out_request_no"),
		GatewayRefundID: values.Get("out_request_no"),
	}
	if result.RefundNo == "" {
		return nil, shared.NewValidationError("gateway_b refund notification missing out_request_no")
	}
	amount, err := parseAmount(values.Get("refund_fee"))
	if err != nil {
		return nil, shared.NewValidationError("gateway_b refund notification has invalid refund_fee: %v", err)
	}
	result.Amount = amount

	switch values.Get("refund_status") {
	case gatewayBRefundSuccess:
		result.RefundStatus = payment.RefundStatusSuccess
	case gatewayBRefundFail:
		result.RefundStatus = payment.RefundStatusFailed
		result.FailReason = joinReason(values.Get("sub_code"), values.Get("sub_msg"))
		if result.FailReason == "" {
			result.FailReason = "refund rejected by provider"
		}
	default:
		result.RefundStatus = payment.RefundStatusPending
	}
	return result, nil
}

// QueryStatus asks the provider for the current state of a trade
func (a *GatewayBAdapter) QueryStatus(ctx context.Context, paymentNo string) (*payment.GatewayQueryResult, error) {
	var resp gatewayBQueryResponse
	if err := a.call(ctx, "query", gatewayBMethodQuery, gatewayBBizContent{OutTradeNo: paymentNo}, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		code, msg := resp.failure()
		if resp.SubCode == gatewayBSubTradeNotExist {
			return &payment.GatewayQueryResult{PaymentNo: paymentNo, Status: payment.ProviderStatusPending, Message: msg}, nil
		}
		return nil, rejected(a.Type(), "query", code, msg)
	}

	amount, err := parseAmount(resp.TotalAmount)
	if err != nil {
		return nil, invalidResponse(a.Type(), "query", err)
	}
	result := &payment.GatewayQueryResult{
		PaymentNo:     resp.OutTradeNo,
		TransactionID: resp.TradeNo,
		Status:        mapGatewayBTradeStatus(resp.TradeStatus),
		Amount:        amount,
		Message:       resp.TradeStatus,
	}
	if result.Status.IsSettled() {
		paidAt := parseProviderTime(gatewayBTimeLayout, resp.SendPayDate)
		if !paidAt.IsZero() {
			result.PaidAt = &paidAt
		}
	}
	return result, nil
}

// RequestRefund submits a refund. The provider settles most refunds
// synchronously, which it signals with fund_change=Y.
func (a *GatewayBAdapter) RequestRefund(ctx context.Context, req *payment.GatewayRefundRequest) (*payment.GatewayRefundResult, error) {
	biz := gatewayBBizContent{
		OutTradeNo:   req.PaymentNo,
		TradeNo:      req.TransactionID,
		RefundAmount: req.RefundAmount.StringFixed(2),
		RefundReason: req.Reason,
		OutRequestNo: req.RefundNo,
	}

	var resp gatewayBRefundResponse
	if err := a.call(ctx, "refund", gatewayBMethodRefund, biz, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		code, msg := resp.failure()
		if resp.transient() || resp.Code != gatewayBCodeBizFailed {
			return nil, rejected(a.Type(), "refund", code, msg)
		}
		return &payment.GatewayRefundResult{
			RefundNo: req.RefundNo,
			Status:   payment.RefundStatusFailed,
			Message:  joinReason(code, msg),
		}, nil
	}

	status := payment.RefundStatusPending
	if resp.FundChange == "Y" {
		status = payment.RefundStatusSuccess
	}
	return &payment.GatewayRefundResult{
		RefundNo:        req.RefundNo,
		GatewayRefundID: req.RefundNo,
		Status:          status,
	}, nil
}

// FetchStatement resolves the day's bill download URL and parses the CSV
// behind it
func (a *GatewayBAdapter) FetchStatement(ctx context.Context, date time.Time) ([]payment.StatementEntry, error) {
	biz := gatewayBBizContent{BillType: "trade", BillDate: date.Format(gatewayBDateLayout)}

	var resp gatewayBStatementResponse
	if err := a.call(ctx, "statement", gatewayBMethodStatement, biz, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		code, msg := resp.failure()
		if resp.SubCode == gatewayBSubBillNotExist {
			return []payment.StatementEntry{}, nil
		}
		return nil, rejected(a.Type(), "statement", code, msg)
	}
	if resp.BillDownloadURL == "" {
		return nil, invalidResponse(a.Type(), "statement", errors.New("missing bill_download_url"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resp.BillDownloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway_b: failed to create download request: %w", err)
	}
	body, err := a.client.do(ctx, "statement_download", req)
	if err != nil {
		return nil, err
	}
	entries, err := parseGatewayBStatement(bytes.NewReader(body))
	if err != nil {
		return nil, invalidResponse(a.Type(), "statement", err)
	}
	return entries, nil
}

// parseGatewayBStatement reads a bill CSV. Lines starting with '#' are
// provider commentary; the first remaining line is the header.
func parseGatewayBStatement(r io.Reader) ([]payment.StatementEntry, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []payment.StatementEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{gatewayBColTradeNo, gatewayBColOutTradeNo, gatewayBColTotalAmount} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("statement header missing column %q", required)
		}
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	entries := []payment.StatementEntry{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(field(row, gatewayBColTotalAmount))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", len(entries)+2, err)
		}
		status := payment.ProviderStatusSuccess
		if s := field(row, gatewayBColTradeStatus); s != "" {
			status = mapGatewayBTradeStatus(s)
		}
		entries = append(entries, payment.StatementEntry{
			TransactionID: field(row, gatewayBColTradeNo),
			PaymentNo:     field(row, gatewayBColOutTradeNo),
			Amount:        amount,
			Status:        status,
			TradeTime:     parseProviderTime(gatewayBTimeLayout, field(row, gatewayBColGmtPayment)),
		})
	}
	return entries, nil
}

// CallbackAck renders the plain-text acknowledgement the provider expects
func (a *GatewayBAdapter) CallbackAck(success bool, message string) (string, []byte) {
	if success {
		return "text/plain; charset=utf-8", []byte("success")
	}
	return "text/plain; charset=utf-8", []byte("fail")
}

func (a *GatewayBAdapter) buildParams(method string, biz gatewayBBizContent) (map[string]string, error) {
	bizJSON, err := json.Marshal(biz)
	if err != nil {
		return nil, fmt.Errorf("gateway_b: failed to marshal biz_content: %w", err)
	}
	return map[string]string{
		"app_id":      a.config.AppID,
		"method":      method,
		"format":      gatewayBFormat,
		"charset":     gatewayBCharset,
		"sign_type":   gatewayBSignType,
		"timestamp":   a.now().In(providerZone).Format(gatewayBTimeLayout),
		"version":     gatewayBVersion,
		"biz_content": string(bizJSON),
	}, nil
}

func (a *GatewayBAdapter) sign(params map[string]string) error {
	sign, err := security.SignRSA(security.StringParams(params), a.config.PrivateKey)
	if err != nil {
		return fmt.Errorf("gateway_b: failed to sign request: %w", err)
	}
	params[security.SignField] = sign
	return nil
}

// call posts a signed method request and decodes the verified response node
// into out
func (a *GatewayBAdapter) call(ctx context.Context, operation, method string, biz gatewayBBizContent, out any) error {
	params, err := a.buildParams(method, biz)
	if err != nil {
		return err
	}
	if method == gatewayBMethodRefund {
		params["notify_url"] = a.config.NotifyURL
	}
	if err := a.sign(params); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.GatewayURL, strings.NewReader(encodeForm(params)))
	if err != nil {
		return fmt.Errorf("gateway_b: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	body, err := a.client.do(ctx, operation, req)
	if err != nil {
		return err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return invalidResponse(a.Type(), operation, err)
	}
	node, ok := envelope[responseNode(method)]
	if !ok {
		return invalidResponse(a.Type(), operation, fmt.Errorf("missing %s", responseNode(method)))
	}

	var result gatewayBResult
	if err := json.Unmarshal(node, &result); err != nil {
		return invalidResponse(a.Type(), operation, err)
	}
	// Failed calls may come back unsigned; only successful payloads must verify
	if result.ok() {
		var sign string
		if raw, ok := envelope[security.SignField]; ok {
			_ = json.Unmarshal(raw, &sign)
		}
		if !security.VerifyRSAMessage(string(node), sign, a.config.ProviderPublicKey) {
			return invalidResponse(a.Type(), operation, shared.ErrSignature)
		}
	}
	if err := json.Unmarshal(node, out); err != nil {
		return invalidResponse(a.Type(), operation, err)
	}
	return nil
}

// responseNode names the JSON member holding a method's result
func responseNode(method string) string {
	return strings.ReplaceAll(method, ".", "_") + "_response"
}

func encodeForm(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	return decimal.NewFromString(s)
}

func mapGatewayBTradeStatus(status string) payment.ProviderStatus {
	switch status {
	case gatewayBTradeSuccess, gatewayBTradeFinished:
		return payment.ProviderStatusSuccess
	case gatewayBTradeClosed:
		return payment.ProviderStatusClosed
	case gatewayBTradeWaitBuyerPay:
		return payment.ProviderStatusPending
	default:
		return payment.ProviderStatusPending
	}
}

// Ensure GatewayBAdapter implements the Gateway interface
var _ payment.Gateway = (*GatewayBAdapter)(nil)
