package model

import "time"

// 注文明細。価格・商品名は注文時点のスナップショットで、後から変わらない
type OrderItem struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64     `gorm:"not null;index" json:"order_id"`
	ProductID           int64     `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string    `gorm:"type:varchar(255);not null" json:"name"`
	UnitPriceSnapshot   float64   `gorm:"not null" json:"price"`
	ImageSnapshot       string    `gorm:"type:text" json:"image"`
	Quantity            int64     `gorm:"not null" json:"qty"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
