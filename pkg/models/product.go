package models

import (
	"fmt"
	"time"
)

type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryHomeDecor   Category = "homeDecor"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryElectronics, CategoryHomeDecor:
		return true
	}
	return false
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Product prices are whole rupees; there is no fractional unit.
type Product struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string    `gorm:"type:varchar(200);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Price       int64     `gorm:"not null" json:"price"`
	Stock       int64     `gorm:"not null" json:"stock"`
	Category    Category  `gorm:"type:varchar(20);index;not null" json:"category"`
	Published   bool      `gorm:"index" json:"published"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

func (Product) TableName() string {
	return "products"
}

func (p Product) InStock() bool {
	return p.Stock > 0
}
