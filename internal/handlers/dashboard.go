package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"fortunet/internal/models"
	"fortunet/internal/services"
)

// DashboardHandler serves operator statistics and the health check.
type DashboardHandler struct {
	db     *gorm.DB
	router *services.MikroTikService
}

func NewDashboardHandler(db *gorm.DB, router *services.MikroTikService) *DashboardHandler {
	return &DashboardHandler{db: db, router: router}
}

// Stats aggregates revenue from the transaction store and live
// session counts from the router.
func (h *DashboardHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	sessions, err := h.router.ActiveSessions(ctx)
	if err != nil {
		return err
	}

	var totalUsers int64
	if err := h.db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	totalRevenue, err := h.sumCompleted(time.Time{})
	if err != nil {
		return err
	}
	monthlyRevenue, err := h.sumCompleted(startOfMonth)
	if err != nil {
		return err
	}
	todayRevenue, err := h.sumCompleted(startOfDay)
	if err != nil {
		return err
	}

	var todayTransactions int64
	err = h.db.Model(&models.Transaction{}).
		Where("created_at >= ?", startOfDay).
		Count(&todayTransactions).Error
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"activeUsers":       len(sessions),
		"onlineSessions":    len(sessions),
		"totalUsers":        totalUsers,
		"totalRevenue":      totalRevenue,
		"monthlyRevenue":    monthlyRevenue,
		"hotspotToday":      todayRevenue,
		"todayTransactions": todayTransactions,
	})
}

func (h *DashboardHandler) sumCompleted(since time.Time) (float64, error) {
	var total float64
	query := h.db.Model(&models.Transaction{}).
		Where("status = ?", models.TransactionStatusCompleted)
	if !since.IsZero() {
		query = query.Where("completed_at >= ?", since)
	}
	err := query.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

// Health reports router connectivity.
func (h *DashboardHandler) Health(c echo.Context) error {
	if _, err := h.router.SystemInfo(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "disconnected",
			"message": "Router connection lost",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "connected",
		"message": "Router is connected",
	})
}
