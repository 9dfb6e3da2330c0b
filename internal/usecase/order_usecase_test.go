package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"shopsphere/internal/domain/model"
	"shopsphere/internal/notifier"
	repo "shopsphere/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

var testAddress = model.ShippingAddress{
	Address:    "1-2-3 Chuo",
	City:       "Osaka",
	PostalCode: "530-0001",
	Country:    "JP",
}

func newOrderTestFixture() (*txManagerMock, *orderRepoMock, *orderItemRepoMock, *inventoryRepoMock, *productRepoMock, *couponRepoMock, *userRepoMock, *notifierRecorder, *OrderUsecase) {
	orders := new(orderRepoMock)
	orderItems := new(orderItemRepoMock)
	inventory := new(inventoryRepoMock)
	products := new(productRepoMock)
	coupons := new(couponRepoMock)
	users := new(userRepoMock)

	tx := &txManagerMock{Repos: &txReposMock{
		orders:     orders,
		orderItems: orderItems,
		inventory:  inventory,
		products:   products,
		coupons:    coupons,
	}}
	tx.On("WithinTx", mock.Anything).Return(nil)

	rec := &notifierRecorder{}
	uc := NewOrderUsecase(tx, users, rec)
	return tx, orders, orderItems, inventory, products, coupons, users, rec, uc
}

// 2商品＋10%クーポンのチェックアウト。
// 在庫予約は明細ごとに正確な数量で、割引と合計はサーバーで再計算される
func TestPlaceOrder_TwoItemsWithPercentageCoupon(t *testing.T) {
	_, orders, orderItems, inventory, products, coupons, users, rec, uc := newOrderTestFixture()
	ctx := context.Background()

	p1 := model.Product{ID: 1, Name: "Keyboard", Price: 40, CountInStock: 5, IsActive: true}
	p2 := model.Product{ID: 2, Name: "Mouse", Price: 30, CountInStock: 2, IsActive: true}
	products.On("FindByID", mock.Anything, int64(1)).Return(p1, nil)
	products.On("FindByID", mock.Anything, int64(2)).Return(p2, nil)

	inventory.On("DecreaseStockIfEnough", mock.Anything, int64(1), int64(3)).Return(true, nil)
	inventory.On("DecreaseStockIfEnough", mock.Anything, int64(2), int64(1)).Return(true, nil)

	coupon := model.Coupon{ID: 9, Code: "SAVE10", Type: model.CouponTypePercentage, Value: 10, MinOrderAmount: 100, IsActive: true}
	coupons.On("FindByCode", mock.Anything, "SAVE10").Return(coupon, nil)
	coupons.On("IncrementUsage", mock.Anything, "SAVE10").Return(true, nil)

	var savedOrder model.Order
	orders.On("Create", mock.Anything, mock.AnythingOfType("model.Order")).
		Run(func(args mock.Arguments) { savedOrder = args.Get(1).(model.Order) }).
		Return(int64(100), nil)
	orderItems.On("CreateBulk", mock.Anything, int64(100), mock.Anything).Return(nil)

	users.On("FindByID", mock.Anything, int64(7)).Return(&model.User{ID: 7, Email: "buyer@example.com"}, nil)

	out, err := uc.PlaceOrder(ctx, 7, PlaceOrderInput{
		Items: []PlaceOrderItemInput{
			{ProductID: 1, Quantity: 3},
			{ProductID: 2, Quantity: 1},
		},
		ShippingAddress: testAddress,
		PaymentMethod:   "Cash on Delivery",
		CouponCode:      "save10",
		TaxPrice:        10,
		ShippingPrice:   5,
	})
	require.NoError(t, err)

	// subtotal 3*40 + 1*30 = 150, 10%引きで15、合計 150+10+5-15 = 150
	assert.Equal(t, 150.0, savedOrder.ItemsPrice)
	assert.Equal(t, 15.0, savedOrder.DiscountAmount)
	assert.Equal(t, 150.0, savedOrder.TotalPrice)
	require.NotNil(t, savedOrder.CouponCode)
	assert.Equal(t, "SAVE10", *savedOrder.CouponCode)
	assert.Equal(t, model.OrderStatusPending, savedOrder.Status)

	assert.Equal(t, int64(100), out.ID)
	assert.Equal(t, 150.0, out.TotalPrice)

	//使用回数はちょうど1回
	coupons.AssertNumberOfCalls(t, "IncrementUsage", 1)
	inventory.AssertExpectations(t)

	assert.Equal(t, []notifier.Event{notifier.EventCreated}, rec.Events())
}

// 事前チェックで在庫不足なら予約は一切走らない
func TestPlaceOrder_InsufficientStock_NoReservation(t *testing.T) {
	_, orders, _, inventory, products, _, _, rec, uc := newOrderTestFixture()

	p := model.Product{ID: 1, Name: "Keyboard", Price: 40, CountInStock: 2, IsActive: true}
	products.On("FindByID", mock.Anything, int64(1)).Return(p, nil)

	_, err := uc.PlaceOrder(context.Background(), 7, PlaceOrderInput{
		Items:           []PlaceOrderItemInput{{ProductID: 1, Quantity: 3}},
		ShippingAddress: testAddress,
		PaymentMethod:   "Cash on Delivery",
	})
	assertErrContains(t, err, "Not enough stock")

	inventory.AssertNotCalled(t, "DecreaseStockIfEnough", mock.Anything, mock.Anything, mock.Anything)
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, rec.Events())
}

// 事前チェックは通ったが条件付きUPDATEで負けたケース（同時注文）。
// txごと失敗して注文は作られない
func TestPlaceOrder_ReservationRace_Fails(t *testing.T) {
	_, orders, _, inventory, products, _, _, _, uc := newOrderTestFixture()

	p := model.Product{ID: 1, Name: "Keyboard", Price: 40, CountInStock: 3, IsActive: true}
	products.On("FindByID", mock.Anything, int64(1)).Return(p, nil)
	inventory.On("DecreaseStockIfEnough", mock.Anything, int64(1), int64(3)).Return(false, nil)

	_, err := uc.PlaceOrder(context.Background(), 7, PlaceOrderInput{
		Items:           []PlaceOrderItemInput{{ProductID: 1, Quantity: 3}},
		ShippingAddress: testAddress,
		PaymentMethod:   "Cash on Delivery",
	})
	assertErrContains(t, err, "Not enough stock")
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// クーポンが弾かれても注文は「割引なし」で通る
func TestPlaceOrder_CouponRejected_FallsBackToNoDiscount(t *testing.T) {
	_, orders, orderItems, inventory, products, coupons, users, _, uc := newOrderTestFixture()

	p := model.Product{ID: 1, Name: "Keyboard", Price: 40, CountInStock: 5, IsActive: true}
	products.On("FindByID", mock.Anything, int64(1)).Return(p, nil)
	inventory.On("DecreaseStockIfEnough", mock.Anything, int64(1), int64(1)).Return(true, nil)

	expired := time.Now().Add(-time.Hour)
	coupons.On("FindByCode", mock.Anything, "OLD").Return(model.Coupon{
		Code: "OLD", Type: model.CouponTypeFixed, Value: 10, IsActive: true, ExpiresAt: &expired,
	}, nil)

	var savedOrder model.Order
	orders.On("Create", mock.Anything, mock.AnythingOfType("model.Order")).
		Run(func(args mock.Arguments) { savedOrder = args.Get(1).(model.Order) }).
		Return(int64(101), nil)
	orderItems.On("CreateBulk", mock.Anything, int64(101), mock.Anything).Return(nil)
	users.On("FindByID", mock.Anything, int64(7)).Return(&model.User{ID: 7, Email: "buyer@example.com"}, nil)

	_, err := uc.PlaceOrder(context.Background(), 7, PlaceOrderInput{
		Items:           []PlaceOrderItemInput{{ProductID: 1, Quantity: 1}},
		ShippingAddress: testAddress,
		PaymentMethod:   "Cash on Delivery",
		CouponCode:      "OLD",
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, savedOrder.DiscountAmount)
	assert.Nil(t, savedOrder.CouponCode)
	coupons.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything)
}

// キャンセルで明細ちょうどの数量が在庫に戻る
func TestCancel_RestoresExactQuantities(t *testing.T) {
	_, orders, orderItems, inventory, _, _, users, rec, uc := newOrderTestFixture()

	order := model.Order{ID: 10, UserID: 7, Status: model.OrderStatusProcessing}
	items := []model.OrderItem{
		{ProductID: 1, Quantity: 3},
		{ProductID: 2, Quantity: 1},
	}
	orders.On("FindByID", mock.Anything, int64(10)).Return(order, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return(items, nil)
	inventory.On("IncreaseStock", mock.Anything, int64(1), int64(3)).Return(nil)
	inventory.On("IncreaseStock", mock.Anything, int64(2), int64(1)).Return(nil)
	orders.On("ApplyTransition", mock.Anything, int64(10), mock.MatchedBy(func(u repo.OrderTransitionUpdate) bool {
		return u.Status == model.OrderStatusCancelled
	})).Return(nil)
	users.On("FindByID", mock.Anything, int64(7)).Return(&model.User{ID: 7, Email: "buyer@example.com"}, nil)

	out, err := uc.Cancel(context.Background(), 7, 10)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusCancelled), out.Status)

	inventory.AssertExpectations(t)
	assert.Equal(t, []notifier.Event{notifier.EventCancelled}, rec.Events())
}

func TestCancel_NotOwner_Forbidden(t *testing.T) {
	_, orders, _, inventory, _, _, _, _, uc := newOrderTestFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 99, Status: model.OrderStatusPending}, nil)

	_, err := uc.Cancel(context.Background(), 7, 10)
	assertErrContains(t, err, "Not authorized")
	inventory.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
}

// 出荷済み以降はユーザーからキャンセルできない
func TestCancel_ShippedOrder_InvalidTransition(t *testing.T) {
	_, orders, _, inventory, _, _, _, _, uc := newOrderTestFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 7, Status: model.OrderStatusShipped}, nil)

	_, err := uc.Cancel(context.Background(), 7, 10)
	assertErrContains(t, err, "invalid transition")
	inventory.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
}

// 支払いマークの冪等性。2回目は何も更新せず成功で返る
func TestMarkPaid_Idempotent(t *testing.T) {
	_, orders, orderItems, _, _, _, _, rec, uc := newOrderTestFixture()

	paidAt := time.Now()
	order := model.Order{ID: 10, UserID: 7, Status: model.OrderStatusProcessing, IsPaid: true, PaidAt: &paidAt}
	orders.On("FindByID", mock.Anything, int64(10)).Return(order, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	out, err := uc.MarkPaid(context.Background(), 7, 10)
	require.NoError(t, err)
	assert.True(t, out.IsPaid)

	orders.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, rec.Events())
}

func TestMarkPaid_PendingOrder_TransitionsToProcessing(t *testing.T) {
	_, orders, orderItems, _, _, _, users, rec, uc := newOrderTestFixture()

	order := model.Order{ID: 10, UserID: 7, Status: model.OrderStatusPending}
	orders.On("FindByID", mock.Anything, int64(10)).Return(order, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)
	orders.On("ApplyTransition", mock.Anything, int64(10), mock.MatchedBy(func(u repo.OrderTransitionUpdate) bool {
		return u.Status == model.OrderStatusProcessing && u.IsPaid != nil && *u.IsPaid && u.PaidAt != nil
	})).Return(nil)
	users.On("FindByID", mock.Anything, int64(7)).Return(&model.User{ID: 7, Email: "buyer@example.com"}, nil)

	out, err := uc.MarkPaid(context.Background(), 7, 10)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusProcessing), out.Status)
	assert.True(t, out.IsPaid)
	assert.Equal(t, []notifier.Event{notifier.EventPaid}, rec.Events())
}

// 配達・キャンセル済みからは支払いマークできない
func TestMarkPaid_TerminalOrder_InvalidTransition(t *testing.T) {
	_, orders, orderItems, _, _, _, _, _, uc := newOrderTestFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 7, Status: model.OrderStatusCancelled}, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	_, err := uc.MarkPaid(context.Background(), 7, 10)
	assertErrContains(t, err, "invalid transition")
}

func TestGetOrderDetail_OwnerOrAdminOnly(t *testing.T) {
	_, orders, orderItems, _, _, _, _, _, uc := newOrderTestFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 7}, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	//他人
	_, err := uc.GetOrderDetail(context.Background(), 8, false, 10)
	assertErrContains(t, err, "Not authorized")

	//本人
	out, err := uc.GetOrderDetail(context.Background(), 7, false, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.ID)

	//管理者
	out, err = uc.GetOrderDetail(context.Background(), 8, true, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.ID)
}

// 追跡はメールが一致したときだけ、絞った情報を返す
func TestTrack_EmailMismatch_Forbidden(t *testing.T) {
	_, orders, orderItems, _, _, _, users, _, uc := newOrderTestFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 7, TotalPrice: 99.5}, nil)
	users.On("FindByID", mock.Anything, int64(7)).Return(&model.User{ID: 7, Email: "owner@example.com"}, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	_, err := uc.Track(context.Background(), 10, "someone@else.com")
	assertErrContains(t, err, "Email does not match")

	//大文字小文字は区別しない
	out, err := uc.Track(context.Background(), 10, "OWNER@example.com")
	require.NoError(t, err)
	assert.Equal(t, 99.5, out.TotalPrice)
}
