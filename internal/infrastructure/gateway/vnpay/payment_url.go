package vnpay

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultPaymentURL = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"

	protocolVersion = "2.1.0"
	commandPay      = "pay"
	currencyVND     = "VND"
	orderTypeOther  = "other"
	localeVN        = "vn"
	dateLayout      = "20060102150405"

	maxTxnRefLen    = 100
	maxOrderInfoLen = 255
)

var (
	ErrNotConfigured = errors.New("vnpay: gateway is not configured")
	ErrInvalidAmount = errors.New("vnpay: amount must be positive")

	txnRefDisallowed = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	merchantPattern  = regexp.MustCompile(`^[A-Za-z0-9]+$`)

	// Gateway timestamps are expressed in Indochina Time.
	gatewayZone = time.FixedZone("ICT", 7*60*60)
)

// Config holds the merchant credentials and endpoints.
type Config struct {
	MerchantCode string
	SecretKey    string
	PaymentURL   string
	ReturnURL    string
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	merchant := strings.TrimSpace(c.MerchantCode)
	switch {
	case merchant == "":
		errs = append(errs, errors.New("merchant code is required"))
	case !merchantPattern.MatchString(merchant):
		errs = append(errs, fmt.Errorf("merchant code %q must be alphanumeric", merchant))
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.PaymentURL != "" && !isHTTPURL(c.PaymentURL) {
		errs = append(errs, fmt.Errorf("payment url %q must be http(s)", c.PaymentURL))
	}
	if !isHTTPURL(c.ReturnURL) {
		errs = append(errs, fmt.Errorf("return url %q must be http(s)", c.ReturnURL))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrNotConfigured, errors.Join(errs...))
	}
	return nil
}

// PaymentRequest describes one outbound redirect.
type PaymentRequest struct {
	OrderNumber string
	Amount      decimal.Decimal
	ClientIP    string
	// ReturnURL overrides the configured return URL when set.
	ReturnURL string
	CreatedAt time.Time
}

// PaymentURL is a signed redirect ready for the browser.
type PaymentURL struct {
	URL       string
	TxnRef    string
	Params    map[string]string
	Signature string
}

// Client builds signed payment URLs and verifies callbacks for one merchant.
type Client struct {
	cfg    Config
	signer *Signer
}

func NewClient(cfg Config) *Client {
	cfg.MerchantCode = strings.TrimSpace(cfg.MerchantCode)
	if strings.TrimSpace(cfg.PaymentURL) == "" {
		cfg.PaymentURL = DefaultPaymentURL
	}
	return &Client{cfg: cfg, signer: NewSigner(cfg.SecretKey)}
}

// Signer exposes the client's signer.
func (c *Client) Signer() *Signer { return c.signer }

// BuildPaymentURL assembles, signs and serializes the redirect parameters.
func (c *Client) BuildPaymentURL(req PaymentRequest) (PaymentURL, error) {
	if err := c.cfg.Validate(); err != nil {
		return PaymentURL{}, err
	}
	amount := req.Amount.Mul(decimal.NewFromInt(100)).IntPart()
	if amount <= 0 {
		return PaymentURL{}, ErrInvalidAmount
	}
	returnURL := strings.TrimSpace(req.ReturnURL)
	if returnURL == "" {
		returnURL = strings.TrimSpace(c.cfg.ReturnURL)
	}
	if !isHTTPURL(returnURL) {
		return PaymentURL{}, fmt.Errorf("%w: return url %q must be http(s)", ErrNotConfigured, returnURL)
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	txnRef := SanitizeTxnRef(req.OrderNumber, created)
	params := map[string]string{
		"vnp_Version":    protocolVersion,
		"vnp_Command":    commandPay,
		"vnp_TmnCode":    c.cfg.MerchantCode,
		"vnp_Amount":     fmt.Sprintf("%d", amount),
		"vnp_CurrCode":   currencyVND,
		"vnp_TxnRef":     txnRef,
		"vnp_OrderInfo":  OrderInfo(txnRef),
		"vnp_OrderType":  orderTypeOther,
		"vnp_Locale":     localeVN,
		"vnp_IpAddr":     NormalizeIP(req.ClientIP),
		"vnp_ReturnUrl":  returnURL,
		"vnp_CreateDate": created.In(gatewayZone).Format(dateLayout),
	}

	canonical := Canonicalize(params)
	signature := c.signer.SignCanonical(canonical)
	return PaymentURL{
		URL:       c.cfg.PaymentURL + "?" + canonical + "&" + FieldSecureHash + "=" + signature,
		TxnRef:    txnRef,
		Params:    params,
		Signature: signature,
	}, nil
}

// SanitizeTxnRef keeps [A-Za-z0-9_-], caps the result at 100 characters and
// falls back to ORD<millis> when nothing usable remains.
func SanitizeTxnRef(orderNumber string, now time.Time) string {
	ref := txnRefDisallowed.ReplaceAllString(orderNumber, "")
	if len(ref) > maxTxnRefLen {
		ref = ref[:maxTxnRefLen]
	}
	if ref == "" {
		ref = fmt.Sprintf("ORD%d", now.UnixMilli())
	}
	return ref
}

// OrderInfo is the ASCII-only order description, capped at 255 bytes.
func OrderInfo(txnRef string) string {
	info := "Payment for order " + txnRef
	var sb strings.Builder
	for _, r := range info {
		if r < 0x80 {
			sb.WriteRune(r)
		}
	}
	info = sb.String()
	if len(info) > maxOrderInfoLen {
		info = info[:maxOrderInfoLen]
	}
	return info
}

// NormalizeIP maps IPv6 loopback forms and empty input to 127.0.0.1.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	switch ip {
	case "", "::1", "0:0:0:0:0:0:0:1", "[::1]":
		return "127.0.0.1"
	}
	return ip
}

func isHTTPURL(u string) bool {
	u = strings.TrimSpace(u)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
