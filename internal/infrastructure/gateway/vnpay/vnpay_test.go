package vnpay

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

const testSecret = "SECRETKEY123"

func goldenParams() map[string]string {
	return map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    "DEMOSHOP",
		"vnp_Amount":     "150000000",
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     "ORD-1699999999999-abcd1234",
		"vnp_OrderInfo":  "Payment for order ORD-1699999999999-abcd1234",
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_IpAddr":     "127.0.0.1",
		"vnp_ReturnUrl":  "https://shop.example.com/payment/return?src=vnpay",
		"vnp_CreateDate": "20231115014639",
	}
}

const goldenCanonical = "vnp_Amount=150000000&vnp_Command=pay&vnp_CreateDate=20231115014639&vnp_CurrCode=VND" +
	"&vnp_IpAddr=127.0.0.1&vnp_Locale=vn&vnp_OrderInfo=Payment+for+order+ORD-1699999999999-abcd1234" +
	"&vnp_OrderType=other&vnp_ReturnUrl=https%3A%2F%2Fshop.example.com%2Fpayment%2Freturn%3Fsrc%3Dvnpay" +
	"&vnp_TmnCode=DEMOSHOP&vnp_TxnRef=ORD-1699999999999-abcd1234&vnp_Version=2.1.0"

const goldenSignature = "e3e1f279eaab7465c239dfc7828c7c734001aeaa52960c17d9ad9116015465f5" +
	"2281d24fcccfa84585e9fcb599026a3304893d35f029faf9a90c15716741bedf"

func TestCanonicalizeSortsEncodesAndDropsSignature(t *testing.T) {
	params := goldenParams()
	params[FieldSecureHash] = "abc"
	params[FieldSecureHashType] = "HmacSHA512"
	assert.Equal(t, goldenCanonical, Canonicalize(params))
}

func TestCanonicalizeKeepsEmptyValues(t *testing.T) {
	assert.Equal(t, "a=&b=1", Canonicalize(map[string]string{"b": "1", "a": ""}))
}

func TestFormEncodeMatchesGatewayRules(t *testing.T) {
	assert.Equal(t, "a+b*c%7Ed%2F%C3%A9", formEncode("a b*c~d/é"))
}

func TestSignMatchesReferenceDigest(t *testing.T) {
	s := NewSigner("  " + testSecret + "\n")
	assert.Equal(t, goldenSignature, s.Sign(goldenParams()))
}

func TestSignerKeyIsLatin1(t *testing.T) {
	s := NewSigner("clé")
	assert.Equal(t,
		"34091fee4bedf73d10393648f26ffbeebeb0e7ed541167a4b61551cae7d3004a568262fe6ee366a95a3df1cdcf712799326945c38b7e34d26827f887fe8643c5",
		s.SignCanonical("a=x"))
}

func TestSignatureRoundTripAndTamperDetection(t *testing.T) {
	s := NewSigner(testSecret)
	params := goldenParams()
	sig := s.Sign(params)
	assert.Equal(t, sig, s.Sign(goldenParams()), "re-signing identical fields must reproduce the digest")

	for key, value := range goldenParams() {
		mutated := goldenParams()
		runes := []rune(value)
		if runes[0] == 'X' {
			runes[0] = 'Y'
		} else {
			runes[0] = 'X'
		}
		mutated[key] = string(runes)
		assert.NotEqual(t, sig, s.Sign(mutated), "mutating %s must change the digest", key)
	}
}

func TestVerify(t *testing.T) {
	s := NewSigner(testSecret)
	params := goldenParams()
	params[FieldSecureHash] = strings.ToUpper(goldenSignature)
	params[FieldSecureHashType] = "HmacSHA512"
	assert.True(t, s.Verify(params), "verification is case-insensitive and ignores the hash type")

	params["vnp_Amount"] = "150000001"
	assert.False(t, s.Verify(params))

	delete(params, FieldSecureHash)
	assert.False(t, s.Verify(params))
}

func TestSanitizeTxnRef(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	assert.Equal(t, "ORD-1699999999999-abcd1234", SanitizeTxnRef("ORD-1699999999999-abcd1234", now))
	assert.Equal(t, "ORD_12ab", SanitizeTxnRef("ORD_1 2#ab!", now))
	assert.Equal(t, "ORD1700000000000", SanitizeTxnRef("đơ #", now))
	assert.Len(t, SanitizeTxnRef(strings.Repeat("a", 150), now), 100)
}

func TestOrderInfoIsASCIIAndCapped(t *testing.T) {
	assert.Equal(t, "Payment for order ORD-1", OrderInfo("ORD-1"))
	assert.Len(t, OrderInfo(strings.Repeat("a", 300)), 255)
}

func TestNormalizeIP(t *testing.T) {
	assert.Equal(t, "127.0.0.1", NormalizeIP("::1"))
	assert.Equal(t, "127.0.0.1", NormalizeIP("0:0:0:0:0:0:0:1"))
	assert.Equal(t, "127.0.0.1", NormalizeIP(""))
	assert.Equal(t, "203.0.113.9", NormalizeIP("203.0.113.9"))
}

func testClient() *Client {
	return NewClient(Config{
		MerchantCode: "DEMOSHOP",
		SecretKey:    testSecret,
		ReturnURL:    "https://shop.example.com/payment/return",
	})
}

func TestBuildPaymentURL(t *testing.T) {
	c := testClient()
	res, err := c.BuildPaymentURL(PaymentRequest{
		OrderNumber: "ORD-1699999999999-abcd1234",
		Amount:      decimal.NewFromInt(1_500_000),
		ClientIP:    "::1",
		CreatedAt:   time.UnixMilli(1699999999999),
	})
	require.NoError(t, err)

	assert.Equal(t, "150000000", res.Params["vnp_Amount"])
	assert.Equal(t, "ORD-1699999999999-abcd1234", res.TxnRef)
	assert.Equal(t, "127.0.0.1", res.Params["vnp_IpAddr"])
	assert.Equal(t, "20231115051319", res.Params["vnp_CreateDate"])
	assert.True(t, strings.HasPrefix(res.URL, DefaultPaymentURL+"?"))

	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	query := map[string]string{}
	for k, v := range u.Query() {
		query[k] = v[0]
	}
	assert.Equal(t, res.Signature, query[FieldSecureHash])
	assert.True(t, c.Signer().Verify(query), "the URL's own parameters must verify")
}

func TestBuildPaymentURLRejectsBadInput(t *testing.T) {
	c := testClient()
	_, err := c.BuildPaymentURL(PaymentRequest{OrderNumber: "ORD-1", Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	bad := NewClient(Config{MerchantCode: "DEMO-SHOP", SecretKey: "", ReturnURL: "ftp://x"})
	_, err = bad.BuildPaymentURL(PaymentRequest{OrderNumber: "ORD-1", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "alphanumeric")
	assert.Contains(t, err.Error(), "secret key")
}

func TestParseCallback(t *testing.T) {
	c := testClient()
	params := map[string]string{
		FieldTxnRef:        "ORD-1",
		FieldResponseCode:  "00",
		FieldTransactionNo: "14000001",
		FieldAmount:        "150000000",
	}
	params[FieldSecureHash] = c.Signer().Sign(params)

	cb := c.ParseCallback(params)
	assert.True(t, cb.Verified)
	assert.True(t, cb.Succeeded())
	assert.True(t, cb.Amount.Equal(decimal.NewFromInt(1_500_000)))

	params[FieldResponseCode] = "24"
	cb = c.ParseCallback(params)
	assert.False(t, cb.Verified)
	assert.False(t, cb.Succeeded())
	assert.Equal(t, "customer cancelled the transaction", cb.FailureReason())
}

func TestFailureReasons(t *testing.T) {
	assert.Equal(t, "insufficient account balance", ReasonFor("51"))
	assert.Equal(t, "gateway response code: 42", ReasonFor("42"))
	assert.Equal(t, "signature validation failed", Callback{}.FailureReason())
	assert.Equal(t, "signature validation failed", Callback{ResponseCode: "00"}.FailureReason())
}

func TestGatewayAdapter(t *testing.T) {
	g := NewGateway(testClient())
	r, err := g.CreateRedirect(context.Background(), payment.RedirectRequest{
		OrderNumber: "ORD-42",
		Amount:      decimal.NewFromInt(250_000),
		CreatedAt:   time.UnixMilli(1699999999999),
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-42", r.TxnRef)

	u, err := url.Parse(r.URL)
	require.NoError(t, err)
	params := map[string]string{}
	for k, v := range u.Query() {
		params[k] = v[0]
	}
	params[FieldResponseCode] = "00"
	params[FieldSecureHash] = testClient().Signer().Sign(params)

	cb := g.VerifyCallback(params)
	assert.True(t, cb.Success)
	assert.Empty(t, cb.Reason)
	assert.True(t, cb.Amount.Equal(decimal.NewFromInt(250_000)))

	params[FieldResponseCode] = "51"
	cb = g.VerifyCallback(params)
	assert.False(t, cb.Verified, "tampered code with a stale signature")
	assert.False(t, cb.Success)
	assert.Equal(t, "insufficient account balance", cb.Reason)
}
