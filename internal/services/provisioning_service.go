package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fortunet/internal/models"
)

// RouterClient is the router control capability the provisioner needs.
// MikroTikService satisfies it; tests substitute a fake.
type RouterClient interface {
	UpsertHotspotUser(ctx context.Context, user HotspotUser) error
}

// ProvisioningService applies purchased packages to the router and the
// account store. The router call always happens first: the account row
// is only updated after the router reports success, so a failed router
// call never leaves the two stores disagreeing about an entitlement.
type ProvisioningService struct {
	db     *gorm.DB
	router RouterClient
	now    func() time.Time
}

func NewProvisioningService(db *gorm.DB, router RouterClient) *ProvisioningService {
	return &ProvisioningService{db: db, router: router, now: time.Now}
}

// PackageStatus describes an account's current entitlement.
type PackageStatus struct {
	HasActivePackage bool            `json:"has_active_package"`
	Package          *models.Package `json:"package,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
}

// Activate applies a package to an account: create-or-update the
// hotspot user on the router with the package limits, then record the
// assignment and new expiry on the account. A renewal replaces the
// remaining validity rather than extending it.
func (s *ProvisioningService) Activate(ctx context.Context, userID, packageID uint) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return err
	}

	// The package may have been retired since purchase; a referenced
	// package stays resolvable regardless of its active flag.
	var pkg models.Package
	if err := s.db.WithContext(ctx).First(&pkg, packageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: package %d", ErrNotFound, packageID)
		}
		return err
	}

	expiresAt := s.now().Add(pkg.Duration())

	if err := s.router.UpsertHotspotUser(ctx, buildHotspotUser(user, pkg)); err != nil {
		return fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	// Router accepted the limits; only now touch the account row.
	updates := map[string]interface{}{
		"current_package_id": packageID,
		"package_expires_at": expiresAt,
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return err
	}
	return nil
}

// PackageStatus reports the account's entitlement, evaluated lazily
// against the clock. Used by captive-portal redirect decisions.
func (s *ProvisioningService) PackageStatus(ctx context.Context, userID uint) (*PackageStatus, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, err
	}

	status := &PackageStatus{
		HasActivePackage: user.HasActiveEntitlement(s.now()),
		ExpiresAt:        user.PackageExpiresAt,
	}
	if user.CurrentPackageID != nil {
		var pkg models.Package
		if err := s.db.WithContext(ctx).First(&pkg, *user.CurrentPackageID).Error; err == nil {
			status.Package = &pkg
		}
	}
	return status, nil
}

// buildHotspotUser translates package limits into RouterOS user
// fields. Duration becomes limit-uptime, the data cap becomes
// limit-bytes-total, and the speed cap becomes a symmetric rate-limit.
func buildHotspotUser(user models.User, pkg models.Package) HotspotUser {
	h := HotspotUser{
		Name:        user.Identity(),
		Profile:     pkg.Name,
		Comment:     fmt.Sprintf("FortuNet account %d", user.ID),
		LimitUptime: fmt.Sprintf("%dh", pkg.DurationHours),
	}
	if pkg.DataLimitGB != nil {
		h.LimitBytesTotal = int64(*pkg.DataLimitGB) * 1024 * 1024 * 1024
	}
	if pkg.SpeedLimitMbps != nil {
		h.RateLimit = fmt.Sprintf("%dM/%dM", *pkg.SpeedLimitMbps, *pkg.SpeedLimitMbps)
	}
	if user.MACAddress != nil {
		h.MACAddress = *user.MACAddress
		// MAC accounts authenticate by hardware address; the password
		// just has to exist and be unguessable.
		h.Password = uuid.NewString()[:8]
	}
	return h
}
