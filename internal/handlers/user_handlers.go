package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"fortunet/internal/models"
	"fortunet/internal/services"
)

// UserHandler exposes account queries for the admin surface.
type UserHandler struct {
	db           *gorm.DB
	provisioning *services.ProvisioningService
}

func NewUserHandler(db *gorm.DB, provisioning *services.ProvisioningService) *UserHandler {
	return &UserHandler{db: db, provisioning: provisioning}
}

// ListUsers returns all accounts, newest first.
func (h *UserHandler) ListUsers(c echo.Context) error {
	var users []models.User
	if err := h.db.Order("created_at desc").Find(&users).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"users": users})
}

// GetUser returns one account with its transaction history.
func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	var user models.User
	if err := h.db.Preload("Transactions").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d", services.ErrNotFound, id)
		}
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// PackageStatus reports whether the account's entitlement is live.
// Expiry is checked against the clock on every call; nothing sweeps
// expired entitlements in the background.
func (h *UserHandler) PackageStatus(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	status, err := h.provisioning.PackageStatus(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}
