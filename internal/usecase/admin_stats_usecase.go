package usecase

import (
	"context"
	"net/http"
	"time"

	"shopsphere/internal/domain/model"
	repo "shopsphere/internal/repository"
)

type AdminStatsUsecase struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	products   repo.ProductRepository
	users      repo.UserRepository
}

func NewAdminStatsUsecase(orders repo.OrderRepository, orderItems repo.OrderItemRepository, products repo.ProductRepository, users repo.UserRepository) *AdminStatsUsecase {
	return &AdminStatsUsecase{orders: orders, orderItems: orderItems, products: products, users: users}
}

// 低在庫の閾値
const lowStockThreshold = 5

type DashboardStatsOutput struct {
	TotalOrders  int64   `json:"totalOrders"`
	TotalUsers   int64   `json:"totalUsers"`
	TotalRevenue float64 `json:"totalRevenue"`

	TodayOrders  int     `json:"todayOrders"`
	TodayRevenue float64 `json:"todayRevenue"`
	MonthRevenue float64 `json:"monthRevenue"`

	LowStockProducts []model.Product    `json:"lowStockProducts"`
	RecentOrders     []model.Order      `json:"recentOrders"`
	TopProducts      []repo.ProductSales `json:"topProducts"`
}

// ダッシュボード集計。売上は支払い済み（または出荷以降）の注文が対象
func (u *AdminStatsUsecase) Dashboard(ctx context.Context) (DashboardStatsOutput, error) {
	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var out DashboardStatsOutput
	var err error

	if out.TotalOrders, err = u.orders.CountAll(ctx); err != nil {
		return DashboardStatsOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if out.TotalUsers, err = u.users.CountAll(ctx); err != nil {
		return DashboardStatsOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if out.TotalRevenue, err = u.orders.SumRevenue(ctx, nil); err != nil {
		return DashboardStatsOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if out.TodayRevenue, err = u.orders.SumRevenue(ctx, &todayStart); err != nil {
		return DashboardStatsOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if out.MonthRevenue, err = u.orders.SumRevenue(ctx, &monthStart); err != nil {
		return DashboardStatsOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	todays, err := u.orders.ListSince(ctx, todayStart)
	if err != nil {
		return DashboardStatsOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	out.TodayOrders = len(todays)

	if out.LowStockProducts, err = u.products.ListLowStock(ctx, lowStockThreshold, 10); err != nil {
		return DashboardStatsOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	recent, _, err := u.orders.ListAdmin(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 5})
	if err != nil {
		return DashboardStatsOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	out.RecentOrders = recent

	if out.TopProducts, err = u.orderItems.TopProducts(ctx, 5); err != nil {
		return DashboardStatsOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return out, nil
}
