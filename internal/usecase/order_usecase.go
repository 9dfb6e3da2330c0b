package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"shopsphere/internal/domain/model"
	"shopsphere/internal/notifier"
	repo "shopsphere/internal/repository"

	"github.com/shopspring/decimal"
)

// 遷移のたびに呼ぶ。実装（Dispatcher）は絶対にブロックしない
type OrderNotifier interface {
	Notify(order model.Order, items []model.OrderItem, user model.User, event notifier.Event)
}

type OrderUsecase struct {
	tx       repo.TransactionManager
	users    repo.UserRepository
	notifier OrderNotifier
}

func NewOrderUsecase(tx repo.TransactionManager, users repo.UserRepository, n OrderNotifier) *OrderUsecase {
	return &OrderUsecase{tx: tx, users: users, notifier: n}
}

type PlaceOrderItemInput struct {
	ProductID int64 `json:"product"`
	Quantity  int64 `json:"qty"`
}

type PlaceOrderInput struct {
	Items           []PlaceOrderItemInput
	ShippingAddress model.ShippingAddress
	PaymentMethod   string
	CouponCode      string

	//税・送料は外部（フロント・設定）起点の値をそのまま受ける
	TaxPrice      float64
	ShippingPrice float64

	//クーポン無しのときだけフォールバックとして信用する
	TotalPrice float64
}

type OrderItemOutput struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"qty"`
	Image     string  `json:"image,omitempty"`
}

type OrderOutput struct {
	ID              int64                 `json:"id"`
	UserID          int64                 `json:"user_id"`
	Status          string                `json:"status"`
	ShippingAddress model.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod"`
	ItemsPrice      float64               `json:"itemsPrice"`
	TaxPrice        float64               `json:"taxPrice"`
	ShippingPrice   float64               `json:"shippingPrice"`
	DiscountAmount  float64               `json:"discountAmount"`
	TotalPrice      float64               `json:"totalPrice"`
	CouponCode      *string               `json:"couponCode"`
	IsPaid          bool                  `json:"isPaid"`
	PaidAt          *time.Time            `json:"paidAt"`
	IsDelivered     bool                  `json:"isDelivered"`
	DeliveredAt     *time.Time            `json:"deliveredAt"`
	CreatedAt       time.Time             `json:"created_at"`
	Items           []OrderItemOutput     `json:"items"`
}

func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "No order items provided")
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order item")
		}
	}
	if !in.ShippingAddress.Complete() {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "Shipping address is incomplete")
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "Payment method is required")
	}

	var out OrderOutput
	var created model.Order
	var createdItems []model.OrderItem

	//予約・クーポン適用・注文作成は1トランザクション。
	//途中で失敗したら全部巻き戻る（部分予約は残らない）
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//まず全明細の在庫を事前チェック
		products := make(map[int64]model.Product, len(in.Items))
		for _, it := range in.Items {
			p, err := r.Products().FindByID(ctx, it.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "Product not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsActive {
				return NewHTTPError(http.StatusBadRequest, "Product not available")
			}
			if p.CountInStock < it.Quantity {
				return NewHTTPError(http.StatusBadRequest, "Not enough stock for "+p.Name)
			}
			products[it.ProductID] = p
		}

		//チェックが通ってから全明細を予約。
		//減算は条件付きUPDATEなので同時注文でも負数にならない
		orderItems := make([]model.OrderItem, 0, len(in.Items))
		itemsPrice := decimal.Zero

		for _, it := range in.Items {
			p := products[it.ProductID]

			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				return NewHTTPError(http.StatusBadRequest, "Not enough stock for "+p.Name)
			}

			//価格・商品名はカタログからスナップショット（クライアントの値は使わない）
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           it.ProductID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.Price,
				ImageSnapshot:       p.Image,
				Quantity:            it.Quantity,
			})

			itemsPrice = itemsPrice.Add(dec(p.Price).Mul(decimal.NewFromInt(it.Quantity)))
		}
		itemsPrice = round2(itemsPrice)

		//クーポン。失敗しても注文は止めず「割引なし」に落とす
		discount := decimal.Zero
		var appliedCode *string
		if code := strings.ToUpper(strings.TrimSpace(in.CouponCode)); code != "" {
			coupon, err := r.Coupons().FindByCode(ctx, code)
			if err == nil {
				if d, reason := evaluateCoupon(coupon, itemsPrice, time.Now()); reason == "" {
					//使用回数は注文が確定するこのtx内で1回だけ増やす
					ok, err := r.Coupons().IncrementUsage(ctx, code)
					if err != nil {
						return NewHTTPError(http.StatusInternalServerError, "db error")
					}
					if ok {
						discount = d
						appliedCode = &coupon.Code
					}
				}
			} else if !errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		//合計は必ずサーバー側で再計算する
		tax := round2(dec(in.TaxPrice))
		shipping := round2(dec(in.ShippingPrice))
		total := round2(itemsPrice.Add(tax).Add(shipping).Sub(discount))

		//クーポン無しのときだけ、クライアントの合計をフォールバックに使う
		if appliedCode == nil && in.TotalPrice > 0 {
			total = round2(dec(in.TotalPrice))
		}

		now := time.Now()
		order := model.Order{
			UserID:          userID,
			ShippingAddress: in.ShippingAddress,
			PaymentMethod:   in.PaymentMethod,
			ItemsPrice:      round2f(itemsPrice),
			TaxPrice:        round2f(tax),
			ShippingPrice:   round2f(shipping),
			DiscountAmount:  round2f(discount),
			TotalPrice:      round2f(total),
			CouponCode:      appliedCode,
			Status:          model.OrderStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		order.ID = orderID
		created = order
		createdItems = orderItems
		out = toOrderOutput(order, orderItems)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	//txがコミットされてから通知（fire-and-forget）
	u.notifyOwner(ctx, created, createdItems, notifier.EventCreated)

	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var outs []OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

// 本人または管理者だけ見られる
func (u *OrderUsecase) GetOrderDetail(ctx context.Context, userID int64, isAdmin bool, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID && !isAdmin {
			return NewHTTPError(http.StatusForbidden, "Not authorized to view this order")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// MarkPaidはユーザー操作の支払い済みマーク。
// pending/processing → processing。既にpaidならそのまま返す（冪等）
func (u *OrderUsecase) MarkPaid(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	var paidOrder model.Order
	var paidItems []model.OrderItem
	var transitioned bool

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusForbidden, "Not authorized")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if o.IsPaid {
			//二重払いマークは何もしない
			out = toOrderOutput(o, items)
			return nil
		}
		if o.Status != model.OrderStatusPending && o.Status != model.OrderStatusProcessing {
			return NewHTTPError(http.StatusBadRequest, "invalid transition: cannot pay a "+string(o.Status)+" order")
		}

		now := time.Now()
		paid := true
		upd := repo.OrderTransitionUpdate{
			Status: model.OrderStatusProcessing,
			IsPaid: &paid,
			PaidAt: &now,
		}
		if err := r.Orders().ApplyTransition(ctx, orderID, upd); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		o.Status = model.OrderStatusProcessing
		o.IsPaid = true
		o.PaidAt = &now

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

// Cancelは本人だけ、pending/processingからだけ。
// 明細ぶんの在庫を全部戻す。クーポン使用回数は戻さない
func (u *OrderUsecase) Cancel(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	var cancelled model.Order
	var cancelledItems []model.OrderItem

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusForbidden, "Not authorized to cancel this order")
		}
		if o.Status != model.OrderStatusPending && o.Status != model.OrderStatusProcessing {
			return NewHTTPError(http.StatusBadRequest, "invalid transition: cannot cancel a "+string(o.Status)+" order")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//予約した数量をそのまま戻す
		for _, it := range items {
			if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		if err := r.Orders().ApplyTransition(ctx, orderID, repo.OrderTransitionUpdate{
			Status: model.OrderStatusCancelled,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		o.Status = model.OrderStatusCancelled
		cancelled = o
		cancelledItems = items
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	u.notifyOwner(ctx, cancelled, cancelledItems, notifier.EventCancelled)
	return out, nil
}

// 公開トラッキング。注文IDとメールが一致したときだけ、絞った情報を返す
type TrackOrderOutput struct {
	ID          int64             `json:"id"`
	Status      string            `json:"status"`
	IsPaid      bool              `json:"isPaid"`
	IsDelivered bool              `json:"isDelivered"`
	DeliveredAt *time.Time        `json:"deliveredAt"`
	TotalPrice  float64           `json:"totalPrice"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []OrderItemOutput `json:"items"`
}

func (u *OrderUsecase) Track(ctx context.Context, orderID int64, email string) (TrackOrderOutput, error) {
	if orderID <= 0 || strings.TrimSpace(email) == "" {
		return TrackOrderOutput{}, NewHTTPError(http.StatusBadRequest, "orderId and email are required")
	}

	var out TrackOrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		owner, err := u.users.FindByID(ctx, o.UserID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !strings.EqualFold(strings.TrimSpace(email), owner.Email) {
			return NewHTTPError(http.StatusForbidden, "Email does not match this order")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		full := toOrderOutput(o, items)
		out = TrackOrderOutput{
			ID:          full.ID,
			Status:      full.Status,
			IsPaid:      full.IsPaid,
			IsDelivered: full.IsDelivered,
			DeliveredAt: full.DeliveredAt,
			TotalPrice:  full.TotalPrice,
			CreatedAt:   full.CreatedAt,
			Items:       full.Items,
		}
		return nil
	})
	if err != nil {
		return TrackOrderOutput{}, err
	}
	return out, nil
}

// 通知は届かなくても処理を失敗させない
func (u *OrderUsecase) notifyOwner(ctx context.Context, order model.Order, items []model.OrderItem, ev notifier.Event) {
	if u.notifier == nil {
		return
	}
	owner, err := u.users.FindByID(ctx, order.UserID)
	if err != nil || owner == nil {
		return
	}
	u.notifier.Notify(order, items, *owner, ev)
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Image:     it.ImageSnapshot,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		ItemsPrice:      o.ItemsPrice,
		TaxPrice:        o.TaxPrice,
		ShippingPrice:   o.ShippingPrice,
		DiscountAmount:  o.DiscountAmount,
		TotalPrice:      o.TotalPrice,
		CouponCode:      o.CouponCode,
		IsPaid:          o.IsPaid,
		PaidAt:          o.PaidAt,
		IsDelivered:     o.IsDelivered,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}
