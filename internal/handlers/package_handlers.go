package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"fortunet/internal/models"
	"fortunet/internal/services"
)

const (
	packageCacheKey = "packages:active"
	packageCacheTTL = 5 * time.Minute
)

// PackageHandler exposes the purchasable package catalog.
type PackageHandler struct {
	db    *gorm.DB
	cache *services.RedisCache
}

func NewPackageHandler(db *gorm.DB, cache *services.RedisCache) *PackageHandler {
	return &PackageHandler{db: db, cache: cache}
}

// ListPackages returns the active catalog, optionally filtered by
// category. The unfiltered list is served from cache.
func (h *PackageHandler) ListPackages(c echo.Context) error {
	category := c.QueryParam("category")

	if category != "" {
		var packages []models.Package
		err := h.db.Where("is_active = ? AND category = ?", true, category).
			Order("price asc").Find(&packages).Error
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"packages": packages})
	}

	packages, err := services.GetOrSet(h.cache, c.Request().Context(), packageCacheKey, packageCacheTTL, func() ([]models.Package, error) {
		var packages []models.Package
		err := h.db.Where("is_active = ?", true).
			Order("category, price asc").Find(&packages).Error
		return packages, err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"packages": packages})
}

// GetPackage returns one package by id.
func (h *PackageHandler) GetPackage(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	var pkg models.Package
	if err := h.db.First(&pkg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: package %d", services.ErrNotFound, id)
		}
		return err
	}
	return c.JSON(http.StatusOK, pkg)
}

type packageRequest struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Price          float64 `json:"price"`
	DurationHours  int     `json:"durationHours"`
	DataLimitGB    *int    `json:"dataLimitGb"`
	SpeedLimitMbps *int    `json:"speedLimitMbps"`
	Category       string  `json:"category"`
}

func (r packageRequest) validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", services.ErrInvalidInput)
	}
	if r.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", services.ErrInvalidInput)
	}
	if r.DurationHours <= 0 {
		return fmt.Errorf("%w: durationHours must be positive", services.ErrInvalidInput)
	}
	switch models.PackageCategory(r.Category) {
	case models.PackageCategoryDaily, models.PackageCategoryWeekly, models.PackageCategoryMonthly:
		return nil
	default:
		return fmt.Errorf("%w: category must be daily, weekly or monthly", services.ErrInvalidInput)
	}
}

// CreatePackage adds a package to the catalog.
func (h *PackageHandler) CreatePackage(c echo.Context) error {
	var req packageRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", services.ErrInvalidInput)
	}
	if err := req.validate(); err != nil {
		return err
	}

	pkg := models.Package{
		Name:           req.Name,
		Description:    req.Description,
		Price:          req.Price,
		DurationHours:  req.DurationHours,
		DataLimitGB:    req.DataLimitGB,
		SpeedLimitMbps: req.SpeedLimitMbps,
		Category:       models.PackageCategory(req.Category),
		IsActive:       true,
	}
	if err := h.db.Create(&pkg).Error; err != nil {
		return err
	}

	h.invalidateCache(c)
	return c.JSON(http.StatusCreated, pkg)
}

// UpdatePackage edits catalog fields. Transactions keep the amount
// they were created with, so price edits never touch past payments.
func (h *PackageHandler) UpdatePackage(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	var pkg models.Package
	if err := h.db.First(&pkg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: package %d", services.ErrNotFound, id)
		}
		return err
	}

	var req packageRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", services.ErrInvalidInput)
	}
	if err := req.validate(); err != nil {
		return err
	}

	pkg.Name = req.Name
	pkg.Description = req.Description
	pkg.Price = req.Price
	pkg.DurationHours = req.DurationHours
	pkg.DataLimitGB = req.DataLimitGB
	pkg.SpeedLimitMbps = req.SpeedLimitMbps
	pkg.Category = models.PackageCategory(req.Category)
	if err := h.db.Save(&pkg).Error; err != nil {
		return err
	}

	h.invalidateCache(c)
	return c.JSON(http.StatusOK, pkg)
}

// DeletePackage retires a package. Soft delete only: transactions
// reference packages by id forever.
func (h *PackageHandler) DeletePackage(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	res := h.db.Model(&models.Package{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: package %d", services.ErrNotFound, id)
	}

	h.invalidateCache(c)
	return c.JSON(http.StatusOK, map[string]string{"message": "Package deleted successfully"})
}

func (h *PackageHandler) invalidateCache(c echo.Context) {
	if err := h.cache.Delete(c.Request().Context(), packageCacheKey); err != nil {
		c.Logger().Warnf("failed to invalidate package cache: %v", err)
	}
}
