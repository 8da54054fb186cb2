package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"fortunet/internal/models"
)

// PaymentGateway is the push-payment capability. MpesaService
// satisfies it; tests substitute a fake.
type PaymentGateway interface {
	InitiateSTKPush(ctx context.Context, phone string, amount int64, packageName, accountRef string) (*STKPushResult, error)
}

// Provisioner applies a paid package to the router and account store.
type Provisioner interface {
	Activate(ctx context.Context, userID, packageID uint) error
}

// PaymentService owns the payment-to-access-activation workflow:
// initiation of STK push payments and reconciliation of the gateway's
// asynchronous callbacks.
type PaymentService struct {
	db          *gorm.DB
	gateway     PaymentGateway
	provisioner Provisioner
	now         func() time.Time
}

func NewPaymentService(db *gorm.DB, gateway PaymentGateway, provisioner Provisioner) *PaymentService {
	return &PaymentService{db: db, gateway: gateway, provisioner: provisioner, now: time.Now}
}

// Initiate creates a pending transaction and asks the gateway to
// prompt the payer's handset. The transaction amount is copied from
// the package at this instant so later price edits cannot change what
// an in-flight payment is worth.
//
// If the gateway call fails the transaction stays pending; the worker
// sweep fails it once it goes stale.
func (s *PaymentService) Initiate(ctx context.Context, user *models.User, packageID uint, phone string) (*models.Transaction, *STKPushResult, error) {
	var pkg models.Package
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", packageID, true).First(&pkg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: package %d", ErrNotFound, packageID)
		}
		return nil, nil, err
	}

	normalized, err := NormalizePhoneNumber(phone)
	if err != nil {
		return nil, nil, err
	}

	tx := models.Transaction{
		UserID:        user.ID,
		PackageID:     pkg.ID,
		Amount:        pkg.Price,
		PaymentMethod: models.PaymentMethodMpesa,
		Status:        models.TransactionStatusPending,
		PhoneNumber:   normalized,
	}
	if err := s.db.WithContext(ctx).Create(&tx).Error; err != nil {
		return nil, nil, err
	}

	// Unique per attempt: identity plus second-resolution timestamp.
	accountRef := fmt.Sprintf("FortuNet-%s-%s", user.Identity(), s.now().Format(mpesaTimestampLayout))

	result, err := s.gateway.InitiateSTKPush(ctx, normalized, int64(math.Round(pkg.Price)), pkg.Name, accountRef)
	if err != nil {
		return &tx, nil, err
	}

	tx.CheckoutRequestID = &result.CheckoutRequestID
	tx.MerchantRequestID = &result.MerchantRequestID
	if err := s.db.WithContext(ctx).Save(&tx).Error; err != nil {
		return &tx, result, err
	}
	return &tx, result, nil
}

// HandleCallback reconciles a gateway callback against its pending
// transaction. Every callback is recorded in the audit table, matched
// or not. Status transitions are monotonic: a callback for a
// transaction that already completed or failed is a no-op and never
// re-runs provisioning.
func (s *PaymentService) HandleCallback(ctx context.Context, resultCode int, checkoutRequestID string, payload json.RawMessage) error {
	var tx models.Transaction
	err := s.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).First(&tx).Error
	matched := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	audit := models.PaymentCallback{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        resultCode,
		Matched:           matched,
		Metadata:          payload,
	}
	if err := s.db.WithContext(ctx).Create(&audit).Error; err != nil {
		return err
	}

	if !matched {
		log.Printf("Unmatched payment callback for checkout request %s (result code %d)", checkoutRequestID, resultCode)
		return nil
	}

	if tx.Terminal() {
		log.Printf("Duplicate callback for transaction %d (status %s), ignoring", tx.ID, tx.Status)
		return nil
	}

	if resultCode != 0 {
		if err := s.db.WithContext(ctx).Model(&tx).Update("status", models.TransactionStatusFailed).Error; err != nil {
			return err
		}
		return nil
	}

	completedAt := s.now()
	updates := map[string]interface{}{
		"status":       models.TransactionStatusCompleted,
		"completed_at": completedAt,
	}
	if err := s.db.WithContext(ctx).Model(&tx).Updates(updates).Error; err != nil {
		return err
	}

	// The payment is settled regardless of what happens next. A failed
	// activation leaves Provisioned=false, which the reconciliation
	// query exposes to operators.
	if err := s.provisioner.Activate(ctx, tx.UserID, tx.PackageID); err != nil {
		log.Printf("Provisioning failed for completed transaction %d: %v", tx.ID, err)
		return nil
	}

	return s.db.WithContext(ctx).Model(&tx).Update("provisioned", true).Error
}

// UnprovisionedTransactions lists completed payments whose entitlement
// was never applied, oldest first. This is the operator reconciliation
// queue.
func (s *PaymentService) UnprovisionedTransactions(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Preload("User").Preload("Package").
		Where("status = ? AND provisioned = ?", models.TransactionStatusCompleted, false).
		Order("completed_at asc").
		Find(&txs).Error
	return txs, err
}

// RetryProvisioning re-runs activation for a completed-but-
// unprovisioned transaction.
func (s *PaymentService) RetryProvisioning(ctx context.Context, transactionID uint) error {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).First(&tx, transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: transaction %d", ErrNotFound, transactionID)
		}
		return err
	}

	if tx.Status != models.TransactionStatusCompleted || tx.Provisioned {
		return fmt.Errorf("%w: transaction %d is not awaiting provisioning", ErrInvalidInput, transactionID)
	}

	if err := s.provisioner.Activate(ctx, tx.UserID, tx.PackageID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&tx).Update("provisioned", true).Error
}

// ExpireStalePending fails pending transactions older than ttl. The
// STK prompt expires on the handset within minutes, so a pending row
// this old will never complete. Called by the worker on a ticker.
func (s *PaymentService) ExpireStalePending(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := s.now().Add(-ttl)
	res := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("status = ? AND created_at < ?", models.TransactionStatusPending, cutoff).
		Update("status", models.TransactionStatusFailed)
	return res.RowsAffected, res.Error
}
