package models

import (
	"time"
)

// UserProfile is what the storefront knows about a signed-in caller.
type UserProfile struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PhoneVerified bool   `json:"phoneVerified"`
}

// ProfileRecord is the persisted form of a profile, keyed by principal.
type ProfileRecord struct {
	Principal     string    `gorm:"primaryKey;type:varchar(128)" json:"principal"`
	Name          string    `gorm:"type:varchar(100);not null" json:"name"`
	Email         string    `gorm:"type:varchar(100);not null" json:"email"`
	Phone         string    `gorm:"type:varchar(32);index" json:"phone"`
	PhoneVerified bool      `json:"phone_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (ProfileRecord) TableName() string {
	return "profiles"
}

func (r ProfileRecord) Profile() UserProfile {
	return UserProfile{
		Name:          r.Name,
		Email:         r.Email,
		Phone:         r.Phone,
		PhoneVerified: r.PhoneVerified,
	}
}

// VerifiedPhone records that principal proved ownership of phone.
type VerifiedPhone struct {
	Principal  string    `gorm:"primaryKey;type:varchar(128)"`
	Phone      string    `gorm:"primaryKey;type:varchar(32)"`
	VerifiedAt time.Time `gorm:"not null"`
}

func (VerifiedPhone) TableName() string {
	return "verified_phones"
}
