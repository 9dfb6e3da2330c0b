package repository

import (
	"context"

	"shopsphere/internal/domain/model"
)

// 販売数の集計結果（管理ダッシュボード用）
type ProductSales struct {
	ProductID    int64   `json:"productId"`
	Name         string  `json:"name"`
	TotalQty     int64   `json:"totalQty"`
	TotalRevenue float64 `json:"totalRevenue"`
}

type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)

	//数量の多い順にlimit件
	TopProducts(ctx context.Context, limit int) ([]ProductSales, error)
}
