package models

import (
	"time"

	"gorm.io/gorm"
)

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

type Tenant struct {
	gorm.Model
	Name   string       `gorm:"not null"`
	Slug   string       `gorm:"not null;uniqueIndex:idx_tenants_live_slug,where:deleted_at IS NULL;size:64"`
	Status TenantStatus `gorm:"not null;default:active;size:16"`
}

type User struct {
	gorm.Model
	TenantID     uint   `gorm:"not null;index"`
	Email        string `gorm:"not null;uniqueIndex:idx_users_live_email,where:deleted_at IS NULL;size:255"`
	FullName     string `gorm:"not null"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         Role   `gorm:"not null;size:16"`
	SuperAdmin   bool   `gorm:"not null;default:false"`
	Active       bool   `gorm:"not null;default:true"`
	LastLoginAt  *time.Time
}
