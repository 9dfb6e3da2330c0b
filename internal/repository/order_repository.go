package repository

import (
	"context"
	"time"

	"shopsphere/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

// 注文の更新内容。status以外は対応するポインタが非nilのときだけ更新
type OrderTransitionUpdate struct {
	Status      model.OrderStatus
	IsPaid      *bool
	PaidAt      *time.Time
	IsDelivered *bool
	DeliveredAt *time.Time

	PaymentMethod  *string
	PaymentID      *string
	GatewayOrderID *string
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	//ステータス遷移＋派生フラグをまとめて更新
	ApplyTransition(ctx context.Context, orderID int64, u OrderTransitionUpdate) error

	//ゲートウェイの支払いIDから検索（webhook用）
	FindByPaymentID(ctx context.Context, paymentID string) (model.Order, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)

	//集計用：期間内の注文（管理ダッシュボード）
	ListSince(ctx context.Context, since time.Time) ([]model.Order, error)
	CountAll(ctx context.Context) (int64, error)
	SumRevenue(ctx context.Context, since *time.Time) (float64, error)
}
