package repository

import (
	"context"

	"shopsphere/internal/domain/model"
)

// クーポンの保存・取得・消費を約束
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (model.Coupon, error)
	FindByID(ctx context.Context, couponID int64) (model.Coupon, error)
	List(ctx context.Context) ([]model.Coupon, error)

	//現在有効なクーポンだけ（公開オファー用）
	ListActive(ctx context.Context) ([]model.Coupon, error)

	Create(ctx context.Context, c model.Coupon) (model.Coupon, error)
	Update(ctx context.Context, c model.Coupon) error
	Delete(ctx context.Context, couponID int64) error

	//使用回数を+1する。usage_limitに達していたらfalse
	//（条件付きUPDATEで usedCount <= usageLimit を崩さない）
	IncrementUsage(ctx context.Context, code string) (bool, error)
}
