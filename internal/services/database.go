package services

import (
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fortunet/internal/models"
)

// InitDB initializes the database connection with connection pooling
func InitDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("Database connection established")
	return db, nil
}

// AutoMigrate runs database migrations for all models and seeds the
// default package catalog on a fresh database.
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.Package{},
		&models.Transaction{},
		&models.PaymentCallback{},
	)
	if err != nil {
		return err
	}

	if err := seedDefaultPackages(db); err != nil {
		return err
	}

	log.Println("Database migrations completed")
	return nil
}

// seedDefaultPackages inserts the stock catalog when no packages exist
// yet. Operators reshape it through the package CRUD endpoints.
func seedDefaultPackages(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Package{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	gb := func(v int) *int { return &v }
	mbps := func(v int) *int { return &v }

	packages := []models.Package{
		// Daily: time-limited, unlimited data
		{Name: "1 Hr Unlimited", Description: "1 hour unlimited internet", Price: 20, DurationHours: 1, Category: models.PackageCategoryDaily, IsActive: true},
		{Name: "6 Hrs Unlimited", Description: "6 hours unlimited internet", Price: 30, DurationHours: 6, Category: models.PackageCategoryDaily, IsActive: true},
		{Name: "12 Hrs Unlimited", Description: "12 hours unlimited internet", Price: 50, DurationHours: 12, Category: models.PackageCategoryDaily, IsActive: true},
		{Name: "24 Hrs Unlimited", Description: "24 hours unlimited internet", Price: 100, DurationHours: 24, Category: models.PackageCategoryDaily, IsActive: true},
		// Weekly: data-capped
		{Name: "10 GB", Description: "10 GB data for 7 days", Price: 150, DurationHours: 168, DataLimitGB: gb(10), Category: models.PackageCategoryWeekly, IsActive: true},
		{Name: "20 GB", Description: "20 GB data for 7 days", Price: 250, DurationHours: 168, DataLimitGB: gb(20), Category: models.PackageCategoryWeekly, IsActive: true},
		{Name: "40 GB", Description: "40 GB data for 7 days", Price: 450, DurationHours: 168, DataLimitGB: gb(40), Category: models.PackageCategoryWeekly, IsActive: true},
		// Monthly: speed-capped
		{Name: "1 Mbps", Description: "1 Mbps unlimited for 30 days", Price: 300, DurationHours: 720, SpeedLimitMbps: mbps(1), Category: models.PackageCategoryMonthly, IsActive: true},
		{Name: "2 Mbps", Description: "2 Mbps unlimited for 30 days", Price: 500, DurationHours: 720, SpeedLimitMbps: mbps(2), Category: models.PackageCategoryMonthly, IsActive: true},
		{Name: "5 Mbps", Description: "5 Mbps unlimited for 30 days", Price: 900, DurationHours: 720, SpeedLimitMbps: mbps(5), Category: models.PackageCategoryMonthly, IsActive: true},
		{Name: "10 Mbps", Description: "10 Mbps unlimited for 30 days", Price: 1500, DurationHours: 720, SpeedLimitMbps: mbps(10), Category: models.PackageCategoryMonthly, IsActive: true},
		{Name: "20 Mbps", Description: "20 Mbps unlimited for 30 days", Price: 2500, DurationHours: 720, SpeedLimitMbps: mbps(20), Category: models.PackageCategoryMonthly, IsActive: true},
	}

	log.Printf("Seeding %d default packages", len(packages))
	return db.Create(&packages).Error
}
