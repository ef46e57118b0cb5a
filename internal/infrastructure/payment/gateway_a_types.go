package payment

// Gateway A speaks JSON. Every request and response body is a flat object
// signed with the shared key over its own fields; amounts are integer fen.

const (
	gatewayAPrepayPath    = "/pay/unifiedorder"
	gatewayAQueryPath     = "/pay/orderquery"
	gatewayARefundPath    = "/secapi/pay/refund"
	gatewayAStatementPath = "/pay/downloadbill"

	gatewayATimeLayout = "20060102150405"
	gatewayADateLayout = "20060102"

	gatewayACodeSuccess = "SUCCESS"
	gatewayACodeFail    = "FAIL"

	// gatewayANoBill is returned by the statement API for days without trades
	gatewayANoBill = "NO_BILL_EXIST"
	// gatewayAOrderNotExist is returned by the query API for unknown trades
	gatewayAOrderNotExist = "ORDERNOTEXIST"
)

// Trade states
const (
	gatewayAStateSuccess    = "SUCCESS"
	gatewayAStateRefund     = "REFUND"
	gatewayAStateNotPay     = "NOTPAY"
	gatewayAStateUserPaying = "USERPAYING"
	gatewayAStateClosed     = "CLOSED"
	gatewayAStateRevoked    = "REVOKED"
	gatewayAStatePayError   = "PAYERROR"
)

// Refund states
const (
	gatewayARefundSuccess    = "SUCCESS"
	gatewayARefundProcessing = "PROCESSING"
	gatewayARefundChange     = "CHANGE"
	gatewayARefundClosed     = "REFUNDCLOSE"
)

// gatewayAEnvelope holds the fields every response carries
type gatewayAEnvelope struct {
	ReturnCode string `json:"return_code"`
	ReturnMsg  string `json:"return_msg"`
	ResultCode string `json:"result_code"`
	ErrCode    string `json:"err_code"`
	ErrCodeDes string `json:"err_code_des"`
}

// ok reports whether both the transport and the business result succeeded
func (e *gatewayAEnvelope) ok() bool {
	return e.ReturnCode == gatewayACodeSuccess && e.ResultCode == gatewayACodeSuccess
}

// failure returns the most specific code and message in the envelope
func (e *gatewayAEnvelope) failure() (string, string) {
	if e.ReturnCode != gatewayACodeSuccess {
		return e.ReturnCode, e.ReturnMsg
	}
	return e.ErrCode, e.ErrCodeDes
}

type gatewayAPrepayResponse struct {
	gatewayAEnvelope
	PrepayID string `json:"prepay_id"`
	CodeURL  string `json:"code_url"`
}

type gatewayAQueryResponse struct {
	gatewayAEnvelope
	OutTradeNo     string `json:"out_trade_no"`
	TransactionID  string `json:"transaction_id"`
	TradeState     string `json:"trade_state"`
	TradeStateDesc string `json:"trade_state_desc"`
	TotalFee       int64  `json:"total_fee"`
	TimeEnd        string `json:"time_end"`
}

type gatewayARefundResponse struct {
	gatewayAEnvelope
	OutRefundNo  string `json:"out_refund_no"`
	RefundID     string `json:"refund_id"`
	RefundFee    int64  `json:"refund_fee"`
	RefundStatus string `json:"refund_status"`
}

type gatewayAStatementResponse struct {
	gatewayAEnvelope
	Records []gatewayAStatementRecord `json:"records"`
}

type gatewayAStatementRecord struct {
	TransactionID string `json:"transaction_id"`
	OutTradeNo    string `json:"out_trade_no"`
	TotalFee      int64  `json:"total_fee"`
	TradeState    string `json:"trade_state"`
	TimeEnd       string `json:"time_end"`
}

// gatewayANotification is a payment or refund notification. The provider
// sends it as a flat JSON object signed like any response.
type gatewayANotification struct {
	gatewayAEnvelope
	AppID         string `json:"appid"`
	MchID         string `json:"mch_id"`
	Timestamp     int64  `json:"timestamp"`
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	Attach        string `json:"attach"`
	TotalFee      int64  `json:"total_fee"`
	TimeEnd       string `json:"time_end"`

	// Refund notifications only
	OutRefundNo  string `json:"out_refund_no"`
	RefundID     string `json:"refund_id"`
	RefundFee    int64  `json:"refund_fee"`
	RefundStatus string `json:"refund_status"`
	SuccessTime  string `json:"success_time"`
}

type gatewayAErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
