package model

import "time"

type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFixed      CouponType = "fixed"
)

type Coupon struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//コードは大文字で一意
	Code  string     `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Type  CouponType `gorm:"type:varchar(20);not null" json:"type"`
	Value float64    `gorm:"not null" json:"value"`

	MinOrderAmount float64 `gorm:"not null;default:0" json:"minOrderAmount"`

	//nullなら無期限
	ExpiresAt *time.Time `json:"expiresAt"`

	//nullなら回数無制限。UsedCount <= UsageLimit を条件付きUPDATEで保証
	UsageLimit *int64 `json:"usageLimit"`
	UsedCount  int64  `gorm:"not null;default:0" json:"usedCount"`

	IsActive  bool      `gorm:"not null;default:true" json:"isActive"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
