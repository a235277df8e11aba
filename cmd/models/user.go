package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	FullName          string `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Email             string `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash      string `gorm:"column:password_hash;size:255;not null" json:"-"`
	AvatarURL         string `gorm:"column:avatar_url;size:500" json:"avatar_url,omitempty"`
	Bio               string `gorm:"column:bio;type:text" json:"bio,omitempty"`
	PreferredLanguage string `gorm:"column:preferred_language;size:10;not null;default:en" json:"preferred_language"`

	Memberships []GroupMembership `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"memberships,omitempty"`
}

type RefreshToken struct {
	gorm.Model
	UserID    uint      `gorm:"column:user_id;not null" json:"user_id"`
	Token     string    `gorm:"column:token;size:255;not null" json:"-"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null" json:"expires_at"`
}

type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Used      bool      `gorm:"default:false"`
}
