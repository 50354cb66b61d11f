package models

import (
	"time"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID        string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string      `gorm:"type:varchar(128);not null;index" json:"userId"`
	Items     []OrderItem `gorm:"serializer:json;type:text" json:"items"`
	Total     int64       `gorm:"not null" json:"total"`
	Status    OrderStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	CreatedAt time.Time   `json:"timestamp"`
	UpdatedAt time.Time   `json:"-"`
}

func (Order) TableName() string {
	return "orders"
}

type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}
