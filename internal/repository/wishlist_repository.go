package repository

import (
	"context"

	"shopsphere/internal/domain/model"
)

type WishlistRepository interface {
	ListByUserID(ctx context.Context, userID int64) ([]model.WishlistItem, error)
	// 既に存在すればfalse
	Add(ctx context.Context, userID int64, productID int64) (bool, error)
	Remove(ctx context.Context, userID int64, productID int64) error
	Contains(ctx context.Context, userID int64, productID int64) (bool, error)
}
