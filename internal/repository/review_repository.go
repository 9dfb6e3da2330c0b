package repository

import (
	"context"

	"shopsphere/internal/domain/model"
)

type ReviewRepository interface {
	Create(ctx context.Context, review model.Review) (model.Review, error)
	ListByProductID(ctx context.Context, productID int64) ([]model.Review, error)
	//同じユーザーの既存レビュー有無
	ExistsByProductAndUser(ctx context.Context, productID int64, userID int64) (bool, error)
}
