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
)

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	users     repo.UserRepository
	auditRepo repo.AuditLogRepository
	notifier  OrderNotifier
}

func NewAdminOrderUsecase(tx repo.TransactionManager, users repo.UserRepository, auditRepo repo.AuditLogRepository, n OrderNotifier) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, users: users, auditRepo: auditRepo, notifier: n}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	var outs []OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, f)
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

// ステータス更新（cancelledなら在庫戻し）。
// delivered/cancelledは終端で、そこからの変更は拒否する
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus := model.OrderStatus(strings.TrimSpace(strings.ToLower(in.Status)))
	switch newStatus {
	case model.OrderStatusProcessing, model.OrderStatusShipped, model.OrderStatusDelivered, model.OrderStatusCancelled:
		// OK
	default:
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var out OrderOutput
	var updated model.Order
	var updatedItems []model.OrderItem
	var transitioned bool

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// すでに同じなら何もしない（200）
		if o.Status == newStatus {
			out = toOrderOutput(o, items)
			return nil
		}
		// 終端ガード
		if o.Status.IsTerminal() {
			return NewHTTPError(http.StatusBadRequest, "invalid transition: cannot change a "+string(o.Status)+" order")
		}

		now := time.Now()
		upd := repo.OrderTransitionUpdate{Status: newStatus}

		switch newStatus {
		case model.OrderStatusProcessing:
			//processing入りは支払い済みの投影も立てる
			if !o.IsPaid {
				paid := true
				upd.IsPaid = &paid
				upd.PaidAt = &now
			}
		case model.OrderStatusDelivered:
			delivered := true
			upd.IsDelivered = &delivered
			upd.DeliveredAt = &now
		case model.OrderStatusCancelled:
			//キャンセルは明細の予約ぶんを全部戻す
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
			}
		}

		if err := r.Orders().ApplyTransition(ctx, orderID, upd); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// 監査ログ（UPDATE_ORDER_STATUS）
		beforeJSON := `{"status":"` + string(o.Status) + `"}`
		afterJSON := `{"status":"` + string(newStatus) + `"}`
		if err := u.auditRepo.Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		o.Status = newStatus
		if upd.IsPaid != nil {
			o.IsPaid = *upd.IsPaid
			o.PaidAt = upd.PaidAt
		}
		if upd.IsDelivered != nil {
			o.IsDelivered = *upd.IsDelivered
			o.DeliveredAt = upd.DeliveredAt
		}

		updated = o
		updatedItems = items
		transitioned = true
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	if transitioned {
		u.notifyOwner(ctx, updated, updatedItems, eventForStatus(newStatus))
	}
	return out, nil
}

// PUT /orders/:id/deliver 用のショートカット
func (u *AdminOrderUsecase) MarkDelivered(ctx context.Context, actorAdminUserID int64, orderID int64) (OrderOutput, error) {
	return u.UpdateStatus(ctx, actorAdminUserID, orderID, AdminUpdateOrderStatusInput{
		Status: string(model.OrderStatusDelivered),
	})
}

func eventForStatus(s model.OrderStatus) notifier.Event {
	switch s {
	case model.OrderStatusProcessing:
		return notifier.EventPaid
	case model.OrderStatusShipped:
		return notifier.EventShipped
	case model.OrderStatusDelivered:
		return notifier.EventDelivered
	case model.OrderStatusCancelled:
		return notifier.EventCancelled
	default:
		return notifier.EventCreated
	}
}

func (u *AdminOrderUsecase) notifyOwner(ctx context.Context, order model.Order, items []model.OrderItem, ev notifier.Event) {
	if u.notifier == nil {
		return
	}
	owner, err := u.users.FindByID(ctx, order.UserID)
	if err != nil || owner == nil {
		return
	}
	u.notifier.Notify(order, items, *owner, ev)
}
