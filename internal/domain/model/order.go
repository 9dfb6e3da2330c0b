package model

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// 終端ステータスかどうか
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// 配送先住所。Orderに埋め込んで保存する
type ShippingAddress struct {
	Address    string `gorm:"column:ship_address;type:varchar(255)" json:"address"`
	City       string `gorm:"column:ship_city;type:varchar(100)" json:"city"`
	PostalCode string `gorm:"column:ship_postal_code;type:varchar(20)" json:"postalCode"`
	Country    string `gorm:"column:ship_country;type:varchar(100)" json:"country"`
}

func (a ShippingAddress) Complete() bool {
	return a.Address != "" && a.City != "" && a.PostalCode != "" && a.Country != ""
}

type Order struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;index" json:"user_id"`

	ShippingAddress ShippingAddress `gorm:"embedded" json:"shippingAddress"`
	PaymentMethod   string          `gorm:"type:varchar(50);not null" json:"paymentMethod"`

	//金額内訳。totalPrice = itemsPrice + taxPrice + shippingPrice - discountAmount
	ItemsPrice     float64 `gorm:"not null" json:"itemsPrice"`
	TaxPrice       float64 `gorm:"not null" json:"taxPrice"`
	ShippingPrice  float64 `gorm:"not null" json:"shippingPrice"`
	DiscountAmount float64 `gorm:"not null;default:0" json:"discountAmount"`
	TotalPrice     float64 `gorm:"not null" json:"totalPrice"`

	//適用クーポン（なければnull）
	CouponCode *string `gorm:"type:varchar(50)" json:"couponCode"`

	//statusが唯一の正。isPaid/isDeliveredは派生した投影
	Status      OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	IsPaid      bool        `gorm:"not null;default:false" json:"isPaid"`
	PaidAt      *time.Time  `json:"paidAt"`
	IsDelivered bool        `gorm:"not null;default:false" json:"isDelivered"`
	DeliveredAt *time.Time  `json:"deliveredAt"`

	//決済ゲートウェイの対応ID
	PaymentID      string `gorm:"type:varchar(100);index" json:"paymentId,omitempty"`
	GatewayOrderID string `gorm:"type:varchar(100)" json:"gatewayOrderId,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
