package repository

import (
	"context"
	"errors"

	"shopsphere/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 一意制約違反（email重複・同一ユーザーの二重レビューなど）
var ErrDuplicate = errors.New("duplicate")

// 一覧検索
type ProductListQuery struct {
	Page     int
	Limit    int
	Q        string
	Category string
	Brand    string
	MinPrice *float64
	MaxPrice *float64
	Sort     string
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id int64) error

	//在庫が少ない商品（閾値以下）をlimit件まで
	ListLowStock(ctx context.Context, threshold int64, limit int) ([]model.Product, error)

	//レビュー集計の書き戻し
	UpdateRating(ctx context.Context, productID int64, rating float64, numReviews int64) error
}
