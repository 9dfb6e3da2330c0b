package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"shopsphere/internal/domain/model"
	"shopsphere/internal/gateway"
	"shopsphere/internal/notifier"
	repo "shopsphere/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ゲートウェイの窓口。本物は gateway.Client
type PaymentGateway interface {
	Configured() bool
	KeyID() string
	CreateOrder(ctx context.Context, amount int64, currency string, receipt string, notes map[string]string) (gateway.GatewayOrder, error)
	VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool
	VerifyWebhookSignature(payload []byte, signature string) bool
}

type PaymentUsecase struct {
	tx       repo.TransactionManager
	users    repo.UserRepository
	gw       PaymentGateway
	notifier OrderNotifier
	logger   *zap.Logger
}

func NewPaymentUsecase(tx repo.TransactionManager, users repo.UserRepository, gw PaymentGateway, n OrderNotifier, logger *zap.Logger) *PaymentUsecase {
	return &PaymentUsecase{tx: tx, users: users, gw: gw, notifier: n, logger: logger}
}

type CreateGatewayOrderInput struct {
	OrderID int64
	Amount  float64
}

type CreateGatewayOrderOutput struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

func (u *PaymentUsecase) CreateGatewayOrder(ctx context.Context, userID int64, in CreateGatewayOrderInput) (CreateGatewayOrderOutput, error) {
	if in.OrderID <= 0 || in.Amount <= 0 {
		return CreateGatewayOrderOutput{}, NewHTTPError(http.StatusBadRequest, "Order ID and amount are required")
	}

	var order model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, in.OrderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusForbidden, "Not authorized")
		}
		if o.IsPaid {
			return NewHTTPError(http.StatusBadRequest, "Order already paid")
		}
		order = o
		return nil
	})
	if err != nil {
		return CreateGatewayOrderOutput{}, err
	}

	if !u.gw.Configured() {
		return CreateGatewayOrderOutput{}, NewHTTPError(http.StatusInternalServerError, "Payment gateway not configured")
	}

	//最小通貨単位へ（1/100）
	amountMinor := dec(in.Amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	gwOrder, err := u.gw.CreateOrder(ctx, amountMinor, "INR", orderReceipt(order.ID), map[string]string{
		"orderId": int64String(order.ID),
		"userId":  int64String(userID),
	})
	if err != nil {
		u.logger.Error("gateway order create failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return CreateGatewayOrderOutput{}, NewHTTPError(http.StatusInternalServerError, "Failed to create payment order")
	}

	return CreateGatewayOrderOutput{
		OrderID:  gwOrder.ID,
		Amount:   gwOrder.Amount,
		Currency: gwOrder.Currency,
		KeyID:    u.gw.KeyID(),
	}, nil
}

type VerifyPaymentInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	OrderID          int64
}

// VerifyPaymentは署名を検証して支払い確定イベントを流す。
// 署名不一致ならそのリクエストは終了（状態は一切変えない）
func (u *PaymentUsecase) VerifyPayment(ctx context.Context, userID int64, in VerifyPaymentInput) (OrderOutput, error) {
	if in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.Signature == "" || in.OrderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "Payment verification data missing")
	}

	var out OrderOutput
	var paidOrder model.Order
	var paidItems []model.OrderItem
	var transitioned bool

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, in.OrderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusForbidden, "Not authorized")
		}

		if !u.gw.VerifyPaymentSignature(in.GatewayOrderID, in.GatewayPaymentID, in.Signature) {
			return NewHTTPError(http.StatusBadRequest, "Invalid payment signature")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if o.IsPaid {
			//既に支払い済みなら何もしない（冪等）
			out = toOrderOutput(o, items)
			return nil
		}
		//cancelled/delivered等からの復活は許さない
		if o.Status != model.OrderStatusPending && o.Status != model.OrderStatusProcessing {
			return NewHTTPError(http.StatusBadRequest, "invalid transition: cannot pay a "+string(o.Status)+" order")
		}

		now := time.Now()
		paid := true
		method := "Online Payment"
		upd := repo.OrderTransitionUpdate{
			Status:         model.OrderStatusProcessing,
			IsPaid:         &paid,
			PaidAt:         &now,
			PaymentMethod:  &method,
			PaymentID:      &in.GatewayPaymentID,
			GatewayOrderID: &in.GatewayOrderID,
		}
		if err := r.Orders().ApplyTransition(ctx, o.ID, upd); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		o.Status = model.OrderStatusProcessing
		o.IsPaid = true
		o.PaidAt = &now
		o.PaymentMethod = method
		o.PaymentID = in.GatewayPaymentID
		o.GatewayOrderID = in.GatewayOrderID

		paidOrder = o
		paidItems = items
		transitioned = true
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	if transitioned {
		u.notifyOwner(ctx, paidOrder, paidItems, notifier.EventPaid)
	}
	return out, nil
}

// webhookのボディ（必要な分だけ）
type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhookはゲートウェイからの通知。
// 保存済みの支払いIDで注文を引く。既にpaidなら何度呼ばれても何もしない
func (u *PaymentUsecase) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if signature == "" {
		return NewHTTPError(http.StatusBadRequest, "Missing signature")
	}
	if !u.gw.VerifyWebhookSignature(body, signature) {
		return NewHTTPError(http.StatusBadRequest, "Invalid webhook signature")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	if payload.Event != "payment.captured" {
		//対象外イベントは受領だけ
		return nil
	}

	paymentID := payload.Payload.Payment.Entity.ID
	if paymentID == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	var paidOrder model.Order
	var paidItems []model.OrderItem
	var transitioned bool

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByPaymentID(ctx, paymentID)
		if errors.Is(err, repo.ErrNotFound) {
			//知らない支払いIDはログだけ残して受領
			u.logger.Info("webhook for unknown payment", zap.String("payment_id", paymentID))
			return nil
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.IsPaid {
			return nil
		}
		//終端の注文は動かさない。受領だけしてゲートウェイの再送を止める
		if o.Status != model.OrderStatusPending && o.Status != model.OrderStatusProcessing {
			u.logger.Warn("webhook for terminal order ignored",
				zap.Int64("order_id", o.ID), zap.String("status", string(o.Status)))
			return nil
		}

		now := time.Now()
		paid := true
		if err := r.Orders().ApplyTransition(ctx, o.ID, repo.OrderTransitionUpdate{
			Status: model.OrderStatusProcessing,
			IsPaid: &paid,
			PaidAt: &now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		o.Status = model.OrderStatusProcessing
		o.IsPaid = true
		o.PaidAt = &now

		paidOrder = o
		paidItems = items
		transitioned = true
		return nil
	})
	if err != nil {
		return err
	}

	if transitioned {
		u.notifyOwner(ctx, paidOrder, paidItems, notifier.EventPaid)
	}
	return nil
}

func (u *PaymentUsecase) notifyOwner(ctx context.Context, order model.Order, items []model.OrderItem, ev notifier.Event) {
	if u.notifier == nil {
		return
	}
	owner, err := u.users.FindByID(ctx, order.UserID)
	if err != nil || owner == nil {
		return
	}
	u.notifier.Notify(order, items, *owner, ev)
}

func orderReceipt(orderID int64) string {
	return "order_" + int64String(orderID)
}

func int64String(v int64) string {
	return strconv.FormatInt(v, 10)
}
