package repository

import (
	"context"
	"errors"
	"time"

	"shopsphere/internal/domain/model"
	repo "shopsphere/internal/repository"

	"gorm.io/gorm"
)

type CouponGormRepository struct {
	db *gorm.DB
}

func NewCouponGormRepository(db *gorm.DB) *CouponGormRepository {
	return &CouponGormRepository{db: db}
}

func (r *CouponGormRepository) FindByCode(ctx context.Context, code string) (model.Coupon, error) {
	var c model.Coupon
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Coupon{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Coupon{}, err
	}
	return c, nil
}

func (r *CouponGormRepository) FindByID(ctx context.Context, couponID int64) (model.Coupon, error) {
	var c model.Coupon
	err := r.db.WithContext(ctx).Where("id = ?", couponID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Coupon{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Coupon{}, err
	}
	return c, nil
}

func (r *CouponGormRepository) List(ctx context.Context) ([]model.Coupon, error) {
	var items []model.Coupon
	if err := r.db.WithContext(ctx).Order("id desc").Find(&items).Error; err != nil {
		return []model.Coupon{}, err
	}
	return items, nil
}

// 有効＋期限内＋回数上限未達のものだけ
func (r *CouponGormRepository) ListActive(ctx context.Context) ([]model.Coupon, error) {
	now := time.Now()
	var items []model.Coupon
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Where("usage_limit IS NULL OR used_count < usage_limit").
		Order("id desc").
		Find(&items).Error
	if err != nil {
		return []model.Coupon{}, err
	}
	return items, nil
}

func (r *CouponGormRepository) Create(ctx context.Context, c model.Coupon) (model.Coupon, error) {
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		if isUniqueViolation(err) {
			//code重複。事前チェックと同時作成が競合した場合の保険
			return model.Coupon{}, repo.ErrDuplicate
		}
		return model.Coupon{}, err
	}
	return c, nil
}

func (r *CouponGormRepository) Update(ctx context.Context, c model.Coupon) error {
	res := r.db.WithContext(ctx).Model(&model.Coupon{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{
			"code":             c.Code,
			"type":             c.Type,
			"value":            c.Value,
			"min_order_amount": c.MinOrderAmount,
			"expires_at":       c.ExpiresAt,
			"usage_limit":      c.UsageLimit,
			"is_active":        c.IsActive,
		})
	if isUniqueViolation(res.Error) {
		return repo.ErrDuplicate
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CouponGormRepository) Delete(ctx context.Context, couponID int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", couponID).Delete(&model.Coupon{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 上限チェックとカウントアップを1本のUPDATEで行う
func (r *CouponGormRepository) IncrementUsage(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Coupon{}).
		Where("code = ? AND (usage_limit IS NULL OR used_count < usage_limit)", code).
		Update("used_count", gorm.Expr("used_count + 1"))

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}
