package payment

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/security"
)

// GatewayAAdapter implements payment.Gateway for the JSON provider signed
// with a shared key
type GatewayAAdapter struct {
	config *GatewayAConfig
	client *gatewayClient
	allow  *security.IPAllowList
	fresh  *security.TimestampVerifier
	now    func() time.Time
}

// NewGatewayAAdapter creates a new adapter
func NewGatewayAAdapter(cfg *GatewayAConfig, opts ...AdapterOption) (*GatewayAAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	allow, err := security.NewIPAllowList(cfg.AllowedIPs)
	if err != nil {
		return nil, err
	}
	o := newAdapterOptions(cfg.ConnectTimeout, cfg.RequestTimeout, opts)

	return &GatewayAAdapter{
		config: cfg,
		client: &gatewayClient{
			gateway:     payment.PaymentTypeGatewayA,
			doer:        o.doer,
			timeout:     cfg.RequestTimeout,
			metrics:     o.metrics,
			decodeError: decodeGatewayAError,
		},
		allow: allow,
		fresh: security.NewTimestampVerifier(cfg.TimestampTolerance, o.now),
		now:   o.now,
	}, nil
}

// Type returns the gateway type
func (a *GatewayAAdapter) Type() payment.PaymentType {
	return payment.PaymentTypeGatewayA
}

// CreatePaymentParams opens a trade at the provider and returns the signed
// parameters the client hands to the provider's checkout
func (a *GatewayAAdapter) CreatePaymentParams(ctx context.Context, p *payment.Payment, opts payment.CreateParamsOptions) (*payment.PaymentParams, error) {
	if p.PaymentType != payment.PaymentTypeGatewayA {
		return nil, shared.NewValidationError("payment %s is not a %s payment", p.PaymentNo, payment.PaymentTypeGatewayA)
	}

	now := a.now()
	expireAt := now.Add(a.config.ExpireAfter)
	subject := opts.Subject
	if subject == "" {
		subject = "Order " + p.OrderNo
	}

	params := map[string]any{
		"out_trade_no":     p.PaymentNo,
		"attach":           p.OrderNo,
		"total_fee":        payment.ToMinorUnits(p.Amount),
		"body":             subject,
		"spbill_create_ip": opts.ClientIP,
		"notify_url":       a.config.NotifyURL,
		"trade_type":       "NATIVE",
		"time_start":       now.In(providerZone).Format(gatewayATimeLayout),
		"time_expire":      expireAt.In(providerZone).Format(gatewayATimeLayout),
	}

	var resp gatewayAPrepayResponse
	if err := a.call(ctx, "prepay", gatewayAPrepayPath, params, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		code, msg := resp.failure()
		return nil, rejected(a.Type(), "prepay", code, msg)
	}
	if resp.PrepayID == "" {
		return nil, invalidResponse(a.Type(), "prepay", fmt.Errorf("missing prepay_id"))
	}

	client := map[string]any{
		"appId":     a.config.AppID,
		"timeStamp": strconv.FormatInt(now.Unix(), 10),
		"nonceStr":  newNonce(),
		"package":   "prepay_id=" + resp.PrepayID,
		"signType":  string(a.config.SignAlgorithm),
	}
	paySign, err := security.Sign(client, a.config.Secret, a.config.SignAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("gateway_a: failed to sign client params: %w", err)
	}

	out := make(map[string]string, len(client)+2)
	for k, v := range client {
		out[k] = v.(string)
	}
	out["paySign"] = paySign
	if resp.CodeURL != "" {
		out["code_url"] = resp.CodeURL
	}

	return &payment.PaymentParams{
		PaymentNo:   p.PaymentNo,
		PaymentType: payment.PaymentTypeGatewayA,
		Params:      out,
		RedirectURL: resp.CodeURL,
		ExpireAt:    expireAt,
	}, nil
}

// ParseCallback verifies a notification and decodes what the provider claims
func (a *GatewayAAdapter) ParseCallback(ctx context.Context, req *payment.CallbackRequest) (*payment.CallbackResult, error) {
	if !a.allow.Allowed(req.RemoteIP) {
		return nil, shared.NewSignatureError("callback source %s is not allowed", req.RemoteIP)
	}

	fields, err := decodeFields(req.Body)
	if err != nil {
		return nil, shared.NewValidationError("malformed gateway_a notification: %v", err)
	}
	var n gatewayANotification
	if err := json.Unmarshal(req.Body, &n); err != nil {
		return nil, shared.NewValidationError("malformed gateway_a notification: %v", err)
	}

	if err := a.fresh.VerifySeconds(n.Timestamp); err != nil {
		return nil, err
	}
	if !security.Verify(fields, a.config.Secret, a.config.SignAlgorithm) {
		return nil, shared.NewSignatureError("gateway_a notification signature mismatch")
	}
	if n.AppID != a.config.AppID || n.MchID != a.config.MerchantID {
		return nil, shared.NewValidationError("gateway_a notification is for another merchant")
	}
	if n.ReturnCode != gatewayACodeSuccess {
		return nil, shared.NewValidationError("gateway_a notification not deliverable: %s", n.ReturnMsg)
	}

	if req.Kind == payment.CallbackKindRefund {
		return a.refundCallback(&n)
	}
	return a.paymentCallback(&n)
}

func (a *GatewayAAdapter) paymentCallback(n *gatewayANotification) (*payment.CallbackResult, error) {
	if n.OutTradeNo == "" {
		return nil, shared.NewValidationError("gateway_a notification missing out_trade_no")
	}
	result := &payment.CallbackResult{
		Kind:          payment.CallbackKindPayment,
		PaymentNo:     n.OutTradeNo,
		OrderNo:       n.Attach,
		TransactionID: n.TransactionID,
		Amount:        payment.FromMinorUnits(n.TotalFee),
		Status:        payment.ProviderStatusFailed,
	}
	if n.ResultCode == gatewayACodeSuccess {
		if n.TransactionID == "" {
			return nil, shared.NewValidationError("gateway_a notification missing transaction_id")
		}
		result.Status = payment.ProviderStatusSuccess
		result.PaidAt = parseProviderTime(gatewayATimeLayout, n.TimeEnd)
	} else {
		result.FailReason = joinReason(n.ErrCode, n.ErrCodeDes)
	}
	return result, nil
}

func (a *GatewayAAdapter) refundCallback(n *gatewayANotification) (*payment.CallbackResult, error) {
	if n.OutRefundNo == "" {
		return nil, shared.NewValidationError("gateway_a refund notification missing out_refund_no")
	}
	result := &payment.CallbackResult{
		Kind:            payment.CallbackKindRefund,
		PaymentNo:       n.OutTradeNo,
		TransactionID:   n.TransactionID,
		RefundNo:        n.OutRefundNo,
		GatewayRefundID: n.RefundID,
		Amount:          payment.FromMinorUnits(n.RefundFee),
		RefundStatus:    mapGatewayARefundStatus(n.RefundStatus),
	}
	if result.RefundStatus == payment.RefundStatusFailed {
		result.FailReason = joinReason(n.RefundStatus, n.ErrCodeDes)
	}
	return result, nil
}

// QueryStatus asks the provider for the current state of a trade
func (a *GatewayAAdapter) QueryStatus(ctx context.Context, paymentNo string) (*payment.GatewayQueryResult, error) {
	var resp gatewayAQueryResponse
	if err := a.call(ctx, "query", gatewayAQueryPath, map[string]any{"out_trade_no": paymentNo}, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		code, msg := resp.failure()
		if code == gatewayAOrderNotExist {
			return &payment.GatewayQueryResult{PaymentNo: paymentNo, Status: payment.ProviderStatusPending, Message: msg}, nil
		}
		return nil, rejected(a.Type(), "query", code, msg)
	}

	result := &payment.GatewayQueryResult{
		PaymentNo:     resp.OutTradeNo,
		TransactionID: resp.TransactionID,
		Status:        mapGatewayATradeState(resp.TradeState),
		Amount:        payment.FromMinorUnits(resp.TotalFee),
		Message:       resp.TradeStateDesc,
	}
	if result.Status.IsSettled() {
		paidAt := parseProviderTime(gatewayATimeLayout, resp.TimeEnd)
		if !paidAt.IsZero() {
			result.PaidAt = &paidAt
		}
	}
	return result, nil
}

// RequestRefund submits a refund. A business rejection comes back as a
// FAILED result; only transport and provider faults are errors.
func (a *GatewayAAdapter) RequestRefund(ctx context.Context, req *payment.GatewayRefundRequest) (*payment.GatewayRefundResult, error) {
	params := map[string]any{
		"out_trade_no":   req.PaymentNo,
		"transaction_id": req.TransactionID,
		"out_refund_no":  req.RefundNo,
		"total_fee":      payment.ToMinorUnits(req.TotalAmount),
		"refund_fee":     payment.ToMinorUnits(req.RefundAmount),
		"refund_desc":    req.Reason,
		"notify_url":     a.config.RefundNotifyURL,
	}

	var resp gatewayARefundResponse
	if err := a.call(ctx, "refund", gatewayARefundPath, params, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		code, msg := resp.failure()
		if isGatewayATransient(code) {
			return nil, rejected(a.Type(), "refund", code, msg)
		}
		return &payment.GatewayRefundResult{
			RefundNo: req.RefundNo,
			Status:   payment.RefundStatusFailed,
			Message:  joinReason(code, msg),
		}, nil
	}

	status := payment.RefundStatusPending
	if resp.RefundStatus == gatewayARefundSuccess {
		status = payment.RefundStatusSuccess
	}
	return &payment.GatewayRefundResult{
		RefundNo:        req.RefundNo,
		GatewayRefundID: resp.RefundID,
		Status:          status,
	}, nil
}

// FetchStatement downloads the settled trades of one provider day
func (a *GatewayAAdapter) FetchStatement(ctx context.Context, date time.Time) ([]payment.StatementEntry, error) {
	params := map[string]any{
		"bill_date": date.Format(gatewayADateLayout),
		"bill_type": "SUCCESS",
	}

	var resp gatewayAStatementResponse
	if err := a.call(ctx, "statement", gatewayAStatementPath, params, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		code, msg := resp.failure()
		if code == gatewayANoBill {
			return []payment.StatementEntry{}, nil
		}
		return nil, rejected(a.Type(), "statement", code, msg)
	}

	entries := make([]payment.StatementEntry, 0, len(resp.Records))
	for _, r := range resp.Records {
		if r.TransactionID == "" && r.OutTradeNo == "" {
			return nil, invalidResponse(a.Type(), "statement", fmt.Errorf("record without trade identifiers"))
		}
		entries = append(entries, payment.StatementEntry{
			TransactionID: r.TransactionID,
			PaymentNo:     r.OutTradeNo,
			Amount:        payment.FromMinorUnits(r.TotalFee),
			Status:        mapGatewayATradeState(r.TradeState),
			TradeTime:     parseProviderTime(gatewayATimeLayout, r.TimeEnd),
		})
	}
	return entries, nil
}

// CallbackAck renders the JSON acknowledgement the provider expects
func (a *GatewayAAdapter) CallbackAck(success bool, message string) (string, []byte) {
	resp := map[string]string{"return_code": gatewayACodeSuccess, "return_msg": "OK"}
	if !success {
		resp["return_code"] = gatewayACodeFail
		resp["return_msg"] = message
	}
	data, _ := json.Marshal(resp)
	return "application/json", data
}

// call signs params, posts them and decodes a signed response into out.
// A return_code failure is an error; a result_code failure is left to the
// caller.
func (a *GatewayAAdapter) call(ctx context.Context, operation, path string, params map[string]any, out any) error {
	body, err := a.signRequest(params)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway_a: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	respBody, err := a.client.do(ctx, operation, req)
	if err != nil {
		return err
	}

	var env gatewayAEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return invalidResponse(a.Type(), operation, err)
	}
	if env.ReturnCode != gatewayACodeSuccess {
		return rejected(a.Type(), operation, env.ReturnCode, env.ReturnMsg)
	}

	fields, err := decodeFields(respBody)
	if err != nil {
		return invalidResponse(a.Type(), operation, err)
	}
	if !security.Verify(fields, a.config.Secret, a.config.SignAlgorithm) {
		return invalidResponse(a.Type(), operation, shared.ErrSignature)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return invalidResponse(a.Type(), operation, err)
	}
	return nil
}

func (a *GatewayAAdapter) signRequest(params map[string]any) ([]byte, error) {
	params["appid"] = a.config.AppID
	params["mch_id"] = a.config.MerchantID
	params["nonce_str"] = newNonce()
	params["sign_type"] = string(a.config.SignAlgorithm)
	params["timestamp"] = a.now().Unix()

	sign, err := security.Sign(params, a.config.Secret, a.config.SignAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("gateway_a: failed to sign request: %w", err)
	}
	params[security.SignField] = sign

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("gateway_a: failed to marshal request: %w", err)
	}
	return body, nil
}

// decodeFields decodes a JSON object, nested records included, keeping numbers
// verbatim so the signature is computed over the same values the provider
// signed
func decodeFields(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func decodeGatewayAError(body []byte) (string, string) {
	var resp gatewayAErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", ""
	}
	return resp.Code, resp.Message
}

func isGatewayATransient(code string) bool {
	return code == "SYSTEMERROR" || code == "FREQUENCY_LIMITED" || code == "BIZERR_NEED_RETRY"
}

func mapGatewayATradeState(state string) payment.ProviderStatus {
	switch state {
	case gatewayAStateSuccess:
		return payment.ProviderStatusSuccess
	case gatewayAStateRefund:
		return payment.ProviderStatusRefunded
	case gatewayAStateClosed, gatewayAStateRevoked:
		return payment.ProviderStatusClosed
	case gatewayAStatePayError:
		return payment.ProviderStatusFailed
	case gatewayAStateNotPay, gatewayAStateUserPaying:
		return payment.ProviderStatusPending
	default:
		return payment.ProviderStatusPending
	}
}

func mapGatewayARefundStatus(status string) payment.RefundStatus {
	switch status {
	case gatewayARefundSuccess:
		return payment.RefundStatusSuccess
	case gatewayARefundChange, gatewayARefundClosed:
		return payment.RefundStatusFailed
	default:
		return payment.RefundStatusPending
	}
}

func newNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Ensure GatewayAAdapter implements the Gateway interface
var _ payment.Gateway = (*GatewayAAdapter)(nil)
