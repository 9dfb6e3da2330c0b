package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shopsphere/internal/domain/model"
	repo "shopsphere/internal/repository"

	"github.com/shopspring/decimal"
)

type CouponUsecase struct {
	coupons   repo.CouponRepository
	auditRepo repo.AuditLogRepository
}

func NewCouponUsecase(coupons repo.CouponRepository, auditRepo repo.AuditLogRepository) *CouponUsecase {
	return &CouponUsecase{coupons: coupons, auditRepo: auditRepo}
}

// 検証だけの呼び出し。使用回数は絶対に増やさない
type ValidateCouponInput struct {
	Code     string
	Subtotal float64
}

type ValidateCouponOutput struct {
	Valid              bool    `json:"valid"`
	Message            string  `json:"message"`
	CouponCode         string  `json:"couponCode,omitempty"`
	DiscountAmount     float64 `json:"discountAmount,omitempty"`
	TotalAfterDiscount float64 `json:"totalAfterDiscount,omitempty"`
}

// evaluateCouponは割引額を計算する。適用できないときは理由を返す。
// percentage: min(subtotal*value/100, subtotal)
// fixed:      min(value, subtotal)
// いずれも小数2桁に丸める
func evaluateCoupon(c model.Coupon, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, string) {
	if !c.IsActive {
		return decimal.Zero, "This coupon is no longer active"
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return decimal.Zero, "This coupon has expired"
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return decimal.Zero, "This coupon has reached its usage limit"
	}
	if subtotal.LessThan(dec(c.MinOrderAmount)) {
		return decimal.Zero, fmt.Sprintf("Minimum order amount is %.2f to use this coupon", c.MinOrderAmount)
	}

	var discount decimal.Decimal
	if c.Type == model.CouponTypePercentage {
		discount = subtotal.Mul(dec(c.Value)).Div(decimal.NewFromInt(100))
	} else {
		discount = dec(c.Value)
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return round2(discount), ""
}

// Validateは公開エンドポイント。状態は一切変えない
func (u *CouponUsecase) Validate(ctx context.Context, in ValidateCouponInput) (ValidateCouponOutput, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		return ValidateCouponOutput{}, NewHTTPError(http.StatusBadRequest, "Coupon code is required")
	}
	if in.Subtotal < 0 {
		return ValidateCouponOutput{}, NewHTTPError(http.StatusBadRequest, "Invalid subtotal")
	}

	coupon, err := u.coupons.FindByCode(ctx, code)
	if errors.Is(err, repo.ErrNotFound) {
		return ValidateCouponOutput{Valid: false, Message: "Invalid or expired coupon"}, nil
	}
	if err != nil {
		return ValidateCouponOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	subtotal := dec(in.Subtotal)
	discount, reason := evaluateCoupon(coupon, subtotal, time.Now())
	if reason != "" {
		return ValidateCouponOutput{Valid: false, Message: reason}, nil
	}

	return ValidateCouponOutput{
		Valid:              true,
		Message:            "Coupon applied",
		CouponCode:         coupon.Code,
		DiscountAmount:     round2f(discount),
		TotalAfterDiscount: round2f(subtotal.Sub(discount)),
	}, nil
}

// 公開オファー（チェックアウト画面に出す分だけ）
type CouponOffer struct {
	Code           string  `json:"code"`
	Type           string  `json:"type"`
	Value          float64 `json:"value"`
	MinOrderAmount float64 `json:"minOrderAmount"`
	Description    string  `json:"description"`
}

func (u *CouponUsecase) ListOffers(ctx context.Context) ([]CouponOffer, error) {
	coupons, err := u.coupons.ListActive(ctx)
	if err != nil {
		return []CouponOffer{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	offers := make([]CouponOffer, 0, len(coupons))
	for _, c := range coupons {
		desc := fmt.Sprintf("%.0f off", c.Value)
		if c.Type == model.CouponTypePercentage {
			desc = fmt.Sprintf("%.0f%% off", c.Value)
		}
		if c.MinOrderAmount > 0 {
			desc += fmt.Sprintf(" on orders over %.0f", c.MinOrderAmount)
		}
		offers = append(offers, CouponOffer{
			Code:           c.Code,
			Type:           string(c.Type),
			Value:          c.Value,
			MinOrderAmount: c.MinOrderAmount,
			Description:    desc,
		})
	}
	return offers, nil
}

// ===== 管理者CRUD =====

type UpsertCouponInput struct {
	Code           string
	Type           string
	Value          float64
	MinOrderAmount float64
	ExpiresAt      *time.Time
	UsageLimit     *int64
	IsActive       *bool
}

func validateCouponInput(in UpsertCouponInput) error {
	if strings.TrimSpace(in.Code) == "" || in.Type == "" {
		return NewHTTPError(http.StatusBadRequest, "Code, type, and value are required")
	}
	switch model.CouponType(in.Type) {
	case model.CouponTypePercentage:
		if in.Value < 0 || in.Value > 100 {
			return NewHTTPError(http.StatusBadRequest, "Percentage value must be between 0 and 100")
		}
	case model.CouponTypeFixed:
		if in.Value < 0 {
			return NewHTTPError(http.StatusBadRequest, "Fixed value must be positive")
		}
	default:
		return NewHTTPError(http.StatusBadRequest, "Type must be 'percentage' or 'fixed'")
	}
	if in.MinOrderAmount < 0 {
		return NewHTTPError(http.StatusBadRequest, "Minimum order amount must be >= 0")
	}
	if in.UsageLimit != nil && *in.UsageLimit < 0 {
		return NewHTTPError(http.StatusBadRequest, "Usage limit must be >= 0")
	}
	return nil
}

func (u *CouponUsecase) Create(ctx context.Context, actorAdminUserID int64, in UpsertCouponInput) (model.Coupon, error) {
	if err := validateCouponInput(in); err != nil {
		return model.Coupon{}, err
	}

	code := strings.ToUpper(strings.TrimSpace(in.Code))

	//同じコードの重複チェック
	if _, err := u.coupons.FindByCode(ctx, code); err == nil {
		return model.Coupon{}, NewHTTPError(http.StatusConflict, "A coupon with this code already exists")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return model.Coupon{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	created, err := u.coupons.Create(ctx, model.Coupon{
		Code:           code,
		Type:           model.CouponType(in.Type),
		Value:          in.Value,
		MinOrderAmount: in.MinOrderAmount,
		ExpiresAt:      in.ExpiresAt,
		UsageLimit:     in.UsageLimit,
		IsActive:       active,
	})
	if errors.Is(err, repo.ErrDuplicate) {
		//事前チェックをすり抜けた同時作成
		return model.Coupon{}, NewHTTPError(http.StatusConflict, "A coupon with this code already exists")
	}
	if err != nil {
		return model.Coupon{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.audit(ctx, actorAdminUserID, created.ID, "", fmt.Sprintf(`{"code":%q}`, created.Code))
	return created, nil
}

func (u *CouponUsecase) List(ctx context.Context) ([]model.Coupon, error) {
	items, err := u.coupons.List(ctx)
	if err != nil {
		return []model.Coupon{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return items, nil
}

func (u *CouponUsecase) Get(ctx context.Context, couponID int64) (model.Coupon, error) {
	c, err := u.coupons.FindByID(ctx, couponID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Coupon{}, NewHTTPError(http.StatusNotFound, "Coupon not found")
	}
	if err != nil {
		return model.Coupon{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return c, nil
}

func (u *CouponUsecase) Update(ctx context.Context, actorAdminUserID int64, couponID int64, in UpsertCouponInput) (model.Coupon, error) {
	if err := validateCouponInput(in); err != nil {
		return model.Coupon{}, err
	}

	existing, err := u.coupons.FindByID(ctx, couponID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Coupon{}, NewHTTPError(http.StatusNotFound, "Coupon not found")
	}
	if err != nil {
		return model.Coupon{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	before := fmt.Sprintf(`{"code":%q,"value":%g}`, existing.Code, existing.Value)

	existing.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	existing.Type = model.CouponType(in.Type)
	existing.Value = in.Value
	existing.MinOrderAmount = in.MinOrderAmount
	existing.ExpiresAt = in.ExpiresAt
	existing.UsageLimit = in.UsageLimit
	if in.IsActive != nil {
		existing.IsActive = *in.IsActive
	}

	if err := u.coupons.Update(ctx, existing); errors.Is(err, repo.ErrDuplicate) {
		return model.Coupon{}, NewHTTPError(http.StatusConflict, "A coupon with this code already exists")
	} else if err != nil {
		return model.Coupon{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.audit(ctx, actorAdminUserID, existing.ID, before, fmt.Sprintf(`{"code":%q,"value":%g}`, existing.Code, existing.Value))
	return existing, nil
}

func (u *CouponUsecase) Delete(ctx context.Context, actorAdminUserID int64, couponID int64) error {
	err := u.coupons.Delete(ctx, couponID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "Coupon not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	u.audit(ctx, actorAdminUserID, couponID, "", `{"deleted":true}`)
	return nil
}

// 監査ログは失敗しても本処理は止めない
func (u *CouponUsecase) audit(ctx context.Context, actorID int64, couponID int64, before, after string) {
	_ = u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  actorID,
		Action:       model.AuditActionUpsertCoupon,
		ResourceType: model.AuditResourceCoupon,
		ResourceID:   couponID,
		BeforeJSON:   before,
		AfterJSON:    after,
		CreatedAt:    time.Now(),
	})
}
