package models

import (
	"time"
)

// User is a hotspot account. Exactly one identity scheme is populated:
// either MACAddress (captive-portal device accounts) or
// Username+PasswordHash (credentialed accounts). CurrentPackageID and
// PackageExpiresAt are set and cleared together.
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username     *string `gorm:"type:varchar(255);uniqueIndex" json:"username,omitempty"`
	PasswordHash *string `gorm:"type:varchar(255)" json:"-"`
	MACAddress   *string `gorm:"type:varchar(17);uniqueIndex" json:"mac_address,omitempty"`
	PhoneNumber  string  `gorm:"type:varchar(50);not null" json:"phone_number"`
	Email        *string `gorm:"type:varchar(255)" json:"email,omitempty"`

	CurrentPackageID *uint      `json:"current_package_id"`
	PackageExpiresAt *time.Time `json:"package_expires_at"`
	LastLoginAt      *time.Time `json:"last_login_at"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`

	Transactions []Transaction `gorm:"foreignKey:UserID" json:"transactions,omitempty"`
}

// Identity returns the name this account is known by on the router:
// the username when present, otherwise the MAC address.
func (u User) Identity() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	if u.MACAddress != nil {
		return *u.MACAddress
	}
	return ""
}

// HasActiveEntitlement reports whether the account currently has
// rights to network access. Expiry is evaluated lazily at read time;
// there is no background sweep and an expired entitlement does not by
// itself disconnect a live router session.
func (u User) HasActiveEntitlement(now time.Time) bool {
	return u.CurrentPackageID != nil && u.PackageExpiresAt != nil && u.PackageExpiresAt.After(now)
}
