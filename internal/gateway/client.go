package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.razorpay.com/v1"

// 決済ゲートウェイのクライアント。
// グローバルに持たず、明示的に生成してPaymentUsecaseへ渡す
type Client struct {
	keyID         string
	keySecret     string
	webhookSecret string

	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func NewClient(keyID, keySecret, webhookSecret string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		logger:        logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Configured() bool {
	return c.keyID != "" && c.keySecret != ""
}

func (c *Client) KeyID() string {
	return c.keyID
}

// ゲートウェイ側の注文
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrderはゲートウェイに注文を作る。amountは最小通貨単位
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency string, receipt string, notes map[string]string) (GatewayOrder, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return GatewayOrder{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return GatewayOrder{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("gateway request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return GatewayOrder{}, err
	}

	if res.StatusCode != http.StatusOK {
		c.logger.Error("gateway create order failed",
			zap.Int("status", res.StatusCode),
			zap.ByteString("body", data),
		)
		return GatewayOrder{}, fmt.Errorf("gateway returned %d", res.StatusCode)
	}

	var out GatewayOrder
	if err := json.Unmarshal(data, &out); err != nil {
		return GatewayOrder{}, err
	}
	return out, nil
}

// VerifyPaymentSignatureは "orderID|paymentID" のHMAC-SHA256を
// 定数時間で照合する
func (c *Client) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	expected := hmacHex(c.keySecret, gatewayOrderID+"|"+gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignatureはリクエストボディ全体をwebhook用シークレットで照合する
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	if c.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func hmacHex(secret, text string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(text))
	return hex.EncodeToString(mac.Sum(nil))
}
