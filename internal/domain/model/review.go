package model

import "time"

// 商品レビュー。同じユーザーは同じ商品に1件まで
type Review struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64     `gorm:"not null;index;uniqueIndex:uq_review_product_user" json:"product_id"`
	UserID    int64     `gorm:"not null;uniqueIndex:uq_review_product_user" json:"user_id"`
	UserName  string    `gorm:"type:varchar(100);not null" json:"user_name"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:varchar(1000);not null" json:"comment"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
