package usecase

import (
	"context"
	"testing"

	"shopsphere/internal/domain/model"
	"shopsphere/internal/notifier"
	repo "shopsphere/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAdminOrderTestFixture() (*orderRepoMock, *orderItemRepoMock, *inventoryRepoMock, *userRepoMock, *auditRepoMock, *notifierRecorder, *AdminOrderUsecase) {
	orders := new(orderRepoMock)
	orderItems := new(orderItemRepoMock)
	inventory := new(inventoryRepoMock)
	users := new(userRepoMock)
	audit := new(auditRepoMock)

	tx := &txManagerMock{Repos: &txReposMock{
		orders:     orders,
		orderItems: orderItems,
		inventory:  inventory,
	}}
	tx.On("WithinTx", mock.Anything).Return(nil)

	rec := &notifierRecorder{}
	uc := NewAdminOrderUsecase(tx, users, audit, rec)
	return orders, orderItems, inventory, users, audit, rec, uc
}

func TestAdminUpdateStatus_ShippedNotifiesOwner(t *testing.T) {
	orders, orderItems, _, users, audit, rec, uc := newAdminOrderTestFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 7, Status: model.OrderStatusProcessing, IsPaid: true}, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)
	orders.On("ApplyTransition", mock.Anything, int64(10), mock.MatchedBy(func(u repo.OrderTransitionUpdate) bool {
		return u.Status == model.OrderStatusShipped && u.IsPaid == nil
	})).Return(nil)
	audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateOrderStatus && l.ResourceID == 10
	})).Return(nil)
	users.On("FindByID", mock.Anything, int64(7)).Return(&model.User{ID: 7, Email: "buyer@example.com"}, nil)

	out, err := uc.UpdateStatus(context.Background(), 1, 10, AdminUpdateOrderStatusInput{Status: "Shipped"})
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusShipped), out.Status)
	assert.Equal(t, []notifier.Event{notifier.EventShipped}, rec.Events())
	audit.AssertExpectations(t)
}

// processing入りで支払い済みの投影が立つ
func TestAdminUpdateStatus_ProcessingSetsPaidProjection(t *testing.T) {
	orders, orderItems, _, users, audit, _, uc := newAdminOrderTestFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 7, Status: model.OrderStatusPending}, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)
	orders.On("ApplyTransition", mock.Anything, int64(10), mock.MatchedBy(func(u repo.OrderTransitionUpdate) bool {
		return u.Status == model.OrderStatusProcessing && u.IsPaid != nil && *u.IsPaid
	})).Return(nil)
	audit.On("Create", mock.Anything, mock.Anything).Return(nil)
	users.On("FindByID", mock.Anything, int64(7)).Return(&model.User{ID: 7, Email: "buyer@example.com"}, nil)

	out, err := uc.UpdateStatus(context.Background(), 1, 10, AdminUpdateOrderStatusInput{Status: "processing"})
	require.NoError(t, err)
	assert.True(t, out.IsPaid)
}

func TestAdminUpdateStatus_DeliveredSetsProjection(t *testing.T) {
	orders, orderItems, _, users, audit, rec, uc := newAdminOrderTestFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 7, Status: model.OrderStatusShipped, IsPaid: true}, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)
	orders.On("ApplyTransition", mock.Anything, int64(10), mock.MatchedBy(func(u repo.OrderTransitionUpdate) bool {
		return u.Status == model.OrderStatusDelivered && u.IsDelivered != nil && *u.IsDelivered && u.DeliveredAt != nil
	})).Return(nil)
	audit.On("Create", mock.Anything, mock.Anything).Return(nil)
	users.On("FindByID", mock.Anything, int64(7)).Return(&model.User{ID: 7, Email: "buyer@example.com"}, nil)

	out, err := uc.MarkDelivered(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.True(t, out.IsDelivered)
	assert.NotNil(t, out.DeliveredAt)
	assert.Equal(t, []notifier.Event{notifier.EventDelivered}, rec.Events())
}

// 管理者キャンセルはprocessingやshippedからでも在庫を戻す
func TestAdminUpdateStatus_CancelRestoresStock(t *testing.T) {
	orders, orderItems, inventory, users, audit, rec, uc := newAdminOrderTestFixture()

	items := []model.OrderItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 4},
	}
	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 7, Status: model.OrderStatusShipped, IsPaid: true}, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return(items, nil)
	inventory.On("IncreaseStock", mock.Anything, int64(1), int64(2)).Return(nil)
	inventory.On("IncreaseStock", mock.Anything, int64(2), int64(4)).Return(nil)
	orders.On("ApplyTransition", mock.Anything, int64(10), mock.Anything).Return(nil)
	audit.On("Create", mock.Anything, mock.Anything).Return(nil)
	users.On("FindByID", mock.Anything, int64(7)).Return(&model.User{ID: 7, Email: "buyer@example.com"}, nil)

	out, err := uc.UpdateStatus(context.Background(), 1, 10, AdminUpdateOrderStatusInput{Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusCancelled), out.Status)

	inventory.AssertExpectations(t)
	assert.Equal(t, []notifier.Event{notifier.EventCancelled}, rec.Events())
}

// 終端状態からは動かせない
func TestAdminUpdateStatus_TerminalGuard(t *testing.T) {
	orders, orderItems, _, _, _, rec, uc := newAdminOrderTestFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 7, Status: model.OrderStatusDelivered, IsPaid: true, IsDelivered: true}, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	_, err := uc.UpdateStatus(context.Background(), 1, 10, AdminUpdateOrderStatusInput{Status: "shipped"})
	assertErrContains(t, err, "invalid transition")
	assert.Empty(t, rec.Events())
}

// 同じステータスへの更新は何もしないで200
func TestAdminUpdateStatus_SameStatusNoop(t *testing.T) {
	orders, orderItems, _, _, audit, rec, uc := newAdminOrderTestFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, UserID: 7, Status: model.OrderStatusShipped, IsPaid: true}, nil)
	orderItems.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	out, err := uc.UpdateStatus(context.Background(), 1, 10, AdminUpdateOrderStatusInput{Status: "shipped"})
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusShipped), out.Status)

	orders.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything)
	audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, rec.Events())
}

func TestAdminUpdateStatus_UnknownStatus(t *testing.T) {
	_, _, _, _, _, _, uc := newAdminOrderTestFixture()

	_, err := uc.UpdateStatus(context.Background(), 1, 10, AdminUpdateOrderStatusInput{Status: "teleported"})
	assertErrContains(t, err, "invalid status")
}
