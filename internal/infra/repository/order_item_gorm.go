package repository

import (
	"context"

	"shopsphere/internal/domain/model"
	repo "shopsphere/internal/repository"

	"gorm.io/gorm"
)

type OrderItemGormRepository struct {
	db *gorm.DB
}

func NewOrderItemGormRepository(db *gorm.DB) *OrderItemGormRepository {
	return &OrderItemGormRepository{db: db}
}

func (r *OrderItemGormRepository) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].OrderID = orderID
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *OrderItemGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	var items []model.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return []model.OrderItem{}, err
	}
	return items, nil
}

func (r *OrderItemGormRepository) TopProducts(ctx context.Context, limit int) ([]repo.ProductSales, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	var rows []repo.ProductSales
	err := r.db.WithContext(ctx).
		Model(&model.OrderItem{}).
		Select("product_id, MAX(product_name_snapshot) AS name, SUM(quantity) AS total_qty, SUM(unit_price_snapshot * quantity) AS total_revenue").
		Group("product_id").
		Order("total_qty desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return []repo.ProductSales{}, err
	}
	return rows, nil
}
