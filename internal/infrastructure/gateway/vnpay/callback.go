package vnpay

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	FieldTxnRef        = "vnp_TxnRef"
	FieldResponseCode  = "vnp_ResponseCode"
	FieldTransactionNo = "vnp_TransactionNo"
	FieldAmount        = "vnp_Amount"

	ResponseSuccess = "00"
)

var responseReasons = map[string]string{
	"03": "invalid data format",
	"07": "transaction flagged as suspected fraud",
	"09": "card or account is not registered for internet banking",
	"10": "card or account authentication failed too many times",
	"11": "payment window expired",
	"12": "card or account is locked",
	"13": "wrong one-time password",
	"24": "customer cancelled the transaction",
	"51": "insufficient account balance",
	"65": "daily transaction limit exceeded",
	"71": "merchant website is not approved by the gateway",
	"75": "bank is under maintenance",
	"79": "too many wrong payment password attempts",
	"99": "unknown gateway error",
}

// Callback is a parsed, verified gateway notification.
type Callback struct {
	Params        map[string]string
	TxnRef        string
	ResponseCode  string
	TransactionNo string
	// Amount is in major units; zero when the field is absent or malformed.
	Amount   decimal.Decimal
	Verified bool
}

// Succeeded reports a trusted success: valid signature and the success response code.
func (c Callback) Succeeded() bool {
	return c.Verified && c.ResponseCode == ResponseSuccess
}

// FailureReason explains why a callback did not succeed.
func (c Callback) FailureReason() string {
	if c.ResponseCode == "" {
		if !c.Verified {
			return "signature validation failed"
		}
		return "missing response code"
	}
	if c.ResponseCode == ResponseSuccess && !c.Verified {
		return "signature validation failed"
	}
	return ReasonFor(c.ResponseCode)
}

// ReasonFor maps a gateway response code to a human-readable reason.
func ReasonFor(code string) string {
	if code == ResponseSuccess {
		return "success"
	}
	if reason, ok := responseReasons[code]; ok {
		return reason
	}
	return "gateway response code: " + code
}

// ParseCallback copies params and verifies their signature.
func (c *Client) ParseCallback(params map[string]string) Callback {
	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}
	cb := Callback{
		Params:        cp,
		TxnRef:        strings.TrimSpace(cp[FieldTxnRef]),
		ResponseCode:  strings.TrimSpace(cp[FieldResponseCode]),
		TransactionNo: strings.TrimSpace(cp[FieldTransactionNo]),
		Verified:      c.signer.Verify(cp),
	}
	if raw := cp[FieldAmount]; raw != "" {
		if minor, err := decimal.NewFromString(raw); err == nil {
			cb.Amount = minor.Div(decimal.NewFromInt(100))
		}
	}
	return cb
}
