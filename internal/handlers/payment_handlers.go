package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"fortunet/internal/models"
	"fortunet/internal/services"
)

// PaymentHandler exposes payment initiation, the gateway callback and
// the transaction/reconciliation queries.
type PaymentHandler struct {
	db             *gorm.DB
	paymentService *services.PaymentService
}

func NewPaymentHandler(db *gorm.DB, paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{db: db, paymentService: paymentService}
}

type initiatePaymentRequest struct {
	PhoneNumber string  `json:"phoneNumber"`
	PackageID   uint    `json:"packageId"`
	Amount      float64 `json:"amount"`
	PackageName string  `json:"packageName"`
	Username    string  `json:"username"`
	MACAddress  string  `json:"macAddress"`
}

// InitiatePayment starts an STK push for a package purchase. The
// account is resolved by username or MAC address; an unknown MAC is
// registered on the fly, which is the first touch a captive-portal
// device ever makes.
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	var req initiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", services.ErrInvalidInput)
	}

	if req.PhoneNumber == "" || req.PackageID == 0 || req.Amount == 0 || req.PackageName == "" {
		return fmt.Errorf("%w: phoneNumber, packageId, amount and packageName are required", services.ErrInvalidInput)
	}

	user, err := h.resolveAccount(c, req)
	if err != nil {
		return err
	}

	tx, result, err := h.paymentService.Initiate(c.Request().Context(), user, req.PackageID, req.PhoneNumber)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":           true,
		"transactionId":     tx.ID,
		"checkoutRequestID": result.CheckoutRequestID,
		"customerMessage":   result.CustomerMessage,
		"message":           "STK push sent successfully",
	})
}

// resolveAccount finds the paying account by username or MAC address.
func (h *PaymentHandler) resolveAccount(c echo.Context, req initiatePaymentRequest) (*models.User, error) {
	var user models.User

	if req.Username != "" {
		err := h.db.Where("username = ? AND is_active = ?", req.Username, true).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", services.ErrNotFound, req.Username)
		}
		return &user, err
	}

	if req.MACAddress == "" {
		return nil, fmt.Errorf("%w: username or macAddress is required", services.ErrInvalidInput)
	}

	mac := strings.ToUpper(req.MACAddress)
	err := h.db.Where("mac_address = ? AND is_active = ?", mac, true).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	phone, err := services.NormalizePhoneNumber(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	user = models.User{MACAddress: &mac, PhoneNumber: phone, IsActive: true}
	if err := h.db.Create(&user).Error; err != nil {
		return nil, err
	}
	c.Logger().Infof("registered new device account for %s", mac)
	return &user, nil
}

type mpesaCallbackRequest struct {
	ResultCode        int    `json:"ResultCode"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// MpesaCallback receives the gateway's asynchronous payment result.
// The gateway retries on any non-success response, so this endpoint
// ALWAYS acknowledges with 200; reconciliation problems are logged and
// handled out-of-band, never surfaced to the gateway.
func (h *PaymentHandler) MpesaCallback(c echo.Context) error {
	ack := func() error {
		return c.JSON(http.StatusOK, map[string]string{"status": "success"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.Logger().Errorf("failed to read mpesa callback body: %v", err)
		return ack()
	}

	var req mpesaCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil || req.CheckoutRequestID == "" {
		c.Logger().Errorf("unparseable mpesa callback: %v", err)
		return ack()
	}

	err = h.paymentService.HandleCallback(c.Request().Context(), req.ResultCode, req.CheckoutRequestID, json.RawMessage(body))
	if err != nil {
		c.Logger().Errorf("failed to process mpesa callback %s: %v", req.CheckoutRequestID, err)
	}
	return ack()
}

// ListTransactions returns transactions, newest first.
func (h *PaymentHandler) ListTransactions(c echo.Context) error {
	query := h.db.Preload("Package").Order("created_at desc")
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var txs []models.Transaction
	if err := query.Find(&txs).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"transactions": txs})
}

// GetTransaction returns one transaction by id.
func (h *PaymentHandler) GetTransaction(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	var tx models.Transaction
	if err := h.db.Preload("User").Preload("Package").First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: transaction %d", services.ErrNotFound, id)
		}
		return err
	}
	return c.JSON(http.StatusOK, tx)
}

// UnprovisionedTransactions lists completed payments whose entitlement
// was never applied: the operator reconciliation queue.
func (h *PaymentHandler) UnprovisionedTransactions(c echo.Context) error {
	txs, err := h.paymentService.UnprovisionedTransactions(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"transactions": txs})
}

// RetryProvisioning re-runs activation for a completed transaction.
func (h *PaymentHandler) RetryProvisioning(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.paymentService.RetryProvisioning(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Package provisioned successfully"})
}
