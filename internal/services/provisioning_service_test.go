package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"fortunet/internal/models"
)

type fakeRouter struct {
	err   error
	calls int
	last  HotspotUser
}

func (f *fakeRouter) UpsertHotspotUser(ctx context.Context, user HotspotUser) error {
	f.calls++
	f.last = user
	if f.err != nil {
		return f.err
	}
	return nil
}

func newTestProvisioning(db *gorm.DB, router *fakeRouter, now time.Time) *ProvisioningService {
	s := NewProvisioningService(db, router)
	s.now = func() time.Time { return now }
	return s
}

func TestActivateSetsEntitlement(t *testing.T) {
	db := newTestDB(t)
	user, pkg := seedUserAndPackage(t, db)

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	router := &fakeRouter{}
	s := newTestProvisioning(db, router, now)

	if err := s.Activate(context.Background(), user.ID, pkg.ID); err != nil {
		t.Fatalf("Activate() unexpected error: %v", err)
	}

	if router.calls != 1 {
		t.Fatalf("router called %d times; want 1", router.calls)
	}
	if router.last.Name != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("hotspot user name = %q; want the MAC address identity", router.last.Name)
	}
	if router.last.Profile != pkg.Name {
		t.Errorf("hotspot user profile = %q; want %q", router.last.Profile, pkg.Name)
	}
	if router.last.LimitUptime != "24h" {
		t.Errorf("limit-uptime = %q; want 24h", router.last.LimitUptime)
	}
	if router.last.MACAddress != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("hotspot user MAC = %q", router.last.MACAddress)
	}
	if router.last.Password == "" {
		t.Error("MAC account should get a generated password")
	}

	var stored models.User
	if err := db.First(&stored, user.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.CurrentPackageID == nil || *stored.CurrentPackageID != pkg.ID {
		t.Errorf("current package id = %v; want %d", stored.CurrentPackageID, pkg.ID)
	}
	wantExpiry := now.Add(24 * time.Hour)
	if stored.PackageExpiresAt == nil || !stored.PackageExpiresAt.Equal(wantExpiry) {
		t.Errorf("expiry = %v; want %v", stored.PackageExpiresAt, wantExpiry)
	}
}

func TestActivateTranslatesDataCap(t *testing.T) {
	db := newTestDB(t)
	user, _ := seedUserAndPackage(t, db)

	capGB := 10
	pkg := models.Package{
		Name: "10 GB", Price: 150, DurationHours: 168,
		DataLimitGB: &capGB, Category: models.PackageCategoryWeekly, IsActive: true,
	}
	if err := db.Create(&pkg).Error; err != nil {
		t.Fatal(err)
	}

	router := &fakeRouter{}
	s := newTestProvisioning(db, router, time.Now())

	if err := s.Activate(context.Background(), user.ID, pkg.ID); err != nil {
		t.Fatal(err)
	}
	if want := int64(10) * 1024 * 1024 * 1024; router.last.LimitBytesTotal != want {
		t.Errorf("limit-bytes-total = %d; want %d", router.last.LimitBytesTotal, want)
	}
	if router.last.LimitUptime != "168h" {
		t.Errorf("limit-uptime = %q; want 168h", router.last.LimitUptime)
	}
}

func TestActivateRouterFailureLeavesAccountUntouched(t *testing.T) {
	db := newTestDB(t)
	user, pkg := seedUserAndPackage(t, db)

	router := &fakeRouter{err: errors.New("connection refused")}
	s := newTestProvisioning(db, router, time.Now())

	err := s.Activate(context.Background(), user.ID, pkg.ID)
	if !errors.Is(err, ErrProvisioningFailed) {
		t.Fatalf("Activate() error = %v; want ErrProvisioningFailed", err)
	}

	var stored models.User
	db.First(&stored, user.ID)
	if stored.CurrentPackageID != nil || stored.PackageExpiresAt != nil {
		t.Error("account entitlement must stay empty when the router call fails")
	}
}

func TestActivateRenewalReplacesExpiry(t *testing.T) {
	db := newTestDB(t)
	user, pkg := seedUserAndPackage(t, db)

	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	router := &fakeRouter{}
	s := newTestProvisioning(db, router, first)

	if err := s.Activate(context.Background(), user.ID, pkg.ID); err != nil {
		t.Fatal(err)
	}

	// Renew an hour later: the new expiry runs from the renewal moment,
	// not from the old expiry.
	second := first.Add(time.Hour)
	s.now = func() time.Time { return second }
	if err := s.Activate(context.Background(), user.ID, pkg.ID); err != nil {
		t.Fatal(err)
	}

	var stored models.User
	db.First(&stored, user.ID)
	want := second.Add(24 * time.Hour)
	if stored.PackageExpiresAt == nil || !stored.PackageExpiresAt.Equal(want) {
		t.Errorf("expiry after renewal = %v; want %v (replaced, not extended)", stored.PackageExpiresAt, want)
	}
}

func TestActivateNotFound(t *testing.T) {
	db := newTestDB(t)
	user, pkg := seedUserAndPackage(t, db)
	s := newTestProvisioning(db, &fakeRouter{}, time.Now())

	if err := s.Activate(context.Background(), 999, pkg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Activate() with missing user = %v; want ErrNotFound", err)
	}
	if err := s.Activate(context.Background(), user.ID, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Activate() with missing package = %v; want ErrNotFound", err)
	}
}

func TestActivateRetiredPackageStillResolves(t *testing.T) {
	db := newTestDB(t)
	user, pkg := seedUserAndPackage(t, db)

	// Package retired between purchase and callback.
	if err := db.Model(&pkg).Update("is_active", false).Error; err != nil {
		t.Fatal(err)
	}

	s := newTestProvisioning(db, &fakeRouter{}, time.Now())
	if err := s.Activate(context.Background(), user.ID, pkg.ID); err != nil {
		t.Errorf("Activate() must resolve retired packages for paid transactions, got %v", err)
	}
}

func TestPackageStatus(t *testing.T) {
	db := newTestDB(t)
	user, pkg := seedUserAndPackage(t, db)

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s := newTestProvisioning(db, &fakeRouter{}, now)

	status, err := s.PackageStatus(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status.HasActivePackage {
		t.Error("fresh account should not have an active package")
	}

	if err := s.Activate(context.Background(), user.ID, pkg.ID); err != nil {
		t.Fatal(err)
	}

	status, err = s.PackageStatus(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !status.HasActivePackage {
		t.Error("account should be entitled right after activation")
	}
	if status.Package == nil || status.Package.ID != pkg.ID {
		t.Errorf("status package = %v; want %d", status.Package, pkg.ID)
	}

	// Entitlement is evaluated against the clock, not stored state.
	s.now = func() time.Time { return now.Add(25 * time.Hour) }
	status, err = s.PackageStatus(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status.HasActivePackage {
		t.Error("expired entitlement reported as active")
	}

	if _, err := s.PackageStatus(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("PackageStatus() for missing user = %v; want ErrNotFound", err)
	}
}

func TestBuildHotspotUserCredentialedAccount(t *testing.T) {
	username := "alice"
	speed := 2
	user := models.User{Username: &username, PhoneNumber: "254712345678"}
	pkg := models.Package{Name: "2 Mbps", DurationHours: 720, SpeedLimitMbps: &speed}

	h := buildHotspotUser(user, pkg)
	if h.Name != "alice" {
		t.Errorf("name = %q; want alice", h.Name)
	}
	if h.MACAddress != "" || h.Password != "" {
		t.Error("credentialed accounts keep their own password; no MAC binding")
	}
	if h.LimitBytesTotal != 0 {
		t.Errorf("limit-bytes-total = %d; want 0 for uncapped package", h.LimitBytesTotal)
	}
	if h.RateLimit != "2M/2M" {
		t.Errorf("rate-limit = %q; want 2M/2M", h.RateLimit)
	}
}
