package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func signHex(secret, text string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(text))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyPaymentSignature(t *testing.T) {
	c := NewClient("key", "secret", "whsecret", zap.NewNop())

	good := signHex("secret", "order_abc|pay_xyz")
	assert.True(t, c.VerifyPaymentSignature("order_abc", "pay_xyz", good))

	//1文字でも違えば不一致
	assert.False(t, c.VerifyPaymentSignature("order_abc", "pay_xyz", good[:len(good)-1]+"0"))
	//別の注文の署名は通らない
	assert.False(t, c.VerifyPaymentSignature("order_abc", "pay_other", good))
	assert.False(t, c.VerifyPaymentSignature("order_abc", "pay_xyz", ""))
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := NewClient("key", "secret", "whsecret", zap.NewNop())

	body := []byte(`{"event":"payment.captured"}`)
	good := signHex("whsecret", string(body))
	assert.True(t, c.VerifyWebhookSignature(body, good))
	assert.False(t, c.VerifyWebhookSignature(body, signHex("wrong", string(body))))

	//webhookシークレット未設定なら常に拒否
	unconfigured := NewClient("key", "secret", "", zap.NewNop())
	assert.False(t, unconfigured.VerifyWebhookSignature(body, good))
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		var req struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Receipt  string `json:"receipt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(49999), req.Amount)
		assert.Equal(t, "INR", req.Currency)
		assert.Equal(t, "order_10", req.Receipt)

		json.NewEncoder(w).Encode(GatewayOrder{
			ID: "order_gw1", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created",
		})
	}))
	defer srv.Close()

	c := NewClient("key", "secret", "whsecret", zap.NewNop(), WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	out, err := c.CreateOrder(context.Background(), 49999, "INR", "order_10", map[string]string{"orderId": "10"})
	require.NoError(t, err)
	assert.Equal(t, "order_gw1", out.ID)
	assert.Equal(t, int64(49999), out.Amount)
}

func TestCreateOrder_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"description":"bad key"}}`))
	}))
	defer srv.Close()

	c := NewClient("key", "wrong", "whsecret", zap.NewNop(), WithBaseURL(srv.URL))

	_, err := c.CreateOrder(context.Background(), 100, "INR", "order_1", nil)
	assert.Error(t, err)
}
