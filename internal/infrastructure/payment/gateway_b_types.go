package payment

// Gateway B takes form-encoded requests against a single endpoint, selecting
// the operation with the method parameter. Responses are JSON objects whose
// payload node is signed with the provider's RSA key.

const (
	gatewayBTimeLayout   = "2006-01-02 15:04:05"
	gatewayBExpireLayout = "2006-01-02 15:04"
	gatewayBDateLayout   = "2006-01-02"
	gatewayBFormat       = "JSON"
	gatewayBCharset      = "utf-8"
	gatewayBSignType     = "RSA2"
	gatewayBVersion      = "1.0"
)

// API methods
const (
	gatewayBMethodPagePay   = "alipay.trade.page.pay"
	gatewayBMethodQuery     = "alipay.trade.query"
	gatewayBMethodRefund    = "alipay.trade.refund"
	gatewayBMethodStatement = "alipay.data.dataservice.bill.downloadurl.query"
)

const gatewayBProductCode = "FAST_INSTANT_TRADE_PAY"

// Response codes
const (
	gatewayBCodeSuccess     = "10000"
	gatewayBCodeUnavailable = "20000"
	gatewayBCodeBizFailed   = "40004"

	gatewayBSubTradeNotExist = "ACQ.TRADE_NOT_EXIST"
	gatewayBSubSystemError   = "ACQ.SYSTEM_ERROR"
	gatewayBSubBillNotExist  = "isp.bill_not_exist"
)

// Trade status
const (
	gatewayBTradeWaitBuyerPay = "WAIT_BUYER_PAY"
	gatewayBTradeClosed       = "TRADE_CLOSED"
	gatewayBTradeSuccess      = "TRADE_SUCCESS"
	gatewayBTradeFinished     = "TRADE_FINISHED"
)

// Refund status
const (
	gatewayBRefundSuccess = "REFUND_SUCCESS"
	gatewayBRefundFail    = "REFUND_FAIL"
)

// gatewayBResult holds the fields every response node carries
type gatewayBResult struct {
	Code    string `json:"code"`
	Msg     string `json:"msg"`
	SubCode string `json:"sub_code"`
	SubMsg  string `json:"sub_msg"`
}

func (r *gatewayBResult) ok() bool {
	return r.Code == gatewayBCodeSuccess
}

// failure returns the most specific code and message in the result
func (r *gatewayBResult) failure() (string, string) {
	if r.SubCode != "" {
		return r.SubCode, r.SubMsg
	}
	return r.Code, r.Msg
}

// transient reports whether the provider asked the caller to try again later
func (r *gatewayBResult) transient() bool {
	return r.Code == gatewayBCodeUnavailable || r.SubCode == gatewayBSubSystemError
}

type gatewayBBizContent struct {
	OutTradeNo     string `json:"out_trade_no,omitempty"`
	TradeNo        string `json:"trade_no,omitempty"`
	ProductCode    string `json:"product_code,omitempty"`
	TotalAmount    string `json:"total_amount,omitempty"`
	Subject        string `json:"subject,omitempty"`
	TimeExpire     string `json:"time_expire,omitempty"`
	PassbackParams string `json:"passback_params,omitempty"`
	RefundAmount   string `json:"refund_amount,omitempty"`
	RefundReason   string `json:"refund_reason,omitempty"`
	OutRequestNo   string `json:"out_request_no,omitempty"`
	BillType       string `json:"bill_type,omitempty"`
	BillDate       string `json:"bill_date,omitempty"`
}

type gatewayBQueryResponse struct {
	gatewayBResult
	TradeNo     string `json:"trade_no"`
	OutTradeNo  string `json:"out_trade_no"`
	TradeStatus string `json:"trade_status"`
	TotalAmount string `json:"total_amount"`
	SendPayDate string `json:"send_pay_date"`
}

type gatewayBRefundResponse struct {
	gatewayBResult
	TradeNo    string `json:"trade_no"`
	OutTradeNo string `json:"out_trade_no"`
	RefundFee  string `json:"refund_fee"`
	FundChange string `json:"fund_change"`
}

type gatewayBStatementResponse struct {
	gatewayBResult
	BillDownloadURL string `json:"bill_download_url"`
}

// Statement CSV columns, matched by header name
const (
	gatewayBColTradeNo     = "trade_no"
	gatewayBColOutTradeNo  = "out_trade_no"
	gatewayBColTotalAmount = "total_amount"
	gatewayBColTradeStatus = "trade_status"
	gatewayBColGmtPayment  = "gmt_payment"
)
