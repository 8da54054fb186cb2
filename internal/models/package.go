package models

import (
	"time"
)

// PackageCategory groups packages by billing cadence
type PackageCategory string

const (
	PackageCategoryDaily   PackageCategory = "daily"
	PackageCategoryWeekly  PackageCategory = "weekly"
	PackageCategoryMonthly PackageCategory = "monthly"
)

// Package represents a purchasable internet access plan.
// Packages referenced by transactions are never hard-deleted;
// retiring a package flips IsActive instead.
type Package struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name           string          `gorm:"type:varchar(255)" json:"name"`
	Description    string          `gorm:"type:text" json:"description"`
	Price          float64         `gorm:"type:decimal(10,2)" json:"price"`
	DurationHours  int             `json:"duration_hours"`
	DataLimitGB    *int            `json:"data_limit_gb"`
	SpeedLimitMbps *int            `json:"speed_limit_mbps"`
	Category       PackageCategory `gorm:"type:varchar(20);index" json:"category"`
	IsActive       bool            `gorm:"default:true" json:"is_active"`
}

// Duration returns the package validity as a time.Duration.
func (p Package) Duration() time.Duration {
	return time.Duration(p.DurationHours) * time.Hour
}
