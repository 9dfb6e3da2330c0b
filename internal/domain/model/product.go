package model

import (
	"time"

	"gorm.io/gorm"
)

type Product struct {
	ID          int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string  `gorm:"type:varchar(255);not null" json:"name"`
	Description string  `gorm:"type:text" json:"description"`
	Price       float64 `gorm:"not null" json:"price"`
	Category    string  `gorm:"type:varchar(100);index" json:"category"`
	Brand       string  `gorm:"type:varchar(100)" json:"brand"`
	Image       string  `gorm:"type:text" json:"image"`

	//在庫数。0未満にはならない（DecreaseStockIfEnoughで保証）
	CountInStock int64 `gorm:"not null;default:0" json:"countInStock"`

	//レビュー集計（非正規化）
	Rating     float64 `gorm:"not null;default:0" json:"rating"`
	NumReviews int64   `gorm:"not null;default:0" json:"numReviews"`

	IsActive  bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
