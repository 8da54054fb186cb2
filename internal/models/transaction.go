package models

import (
	"time"
)

// TransactionStatus is monotonic: pending -> completed or failed,
// never back.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

type PaymentMethod string

const (
	PaymentMethodMpesa PaymentMethod = "mpesa"
)

// Transaction records a single payment attempt. Amount is copied from
// the package at initiation time so later price changes never affect
// an in-flight payment. CheckoutRequestID is the gateway correlation
// id; it stays nil if the STK push never got a response.
//
// Provisioned tracks whether the paid entitlement was applied to the
// router. A completed transaction with Provisioned=false is the
// reconciliation case an operator has to resolve.
type Transaction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    uint `gorm:"index;not null" json:"user_id"`
	PackageID uint `gorm:"index;not null" json:"package_id"`

	Amount            float64           `gorm:"type:decimal(10,2)" json:"amount"`
	PaymentMethod     PaymentMethod     `gorm:"type:varchar(20)" json:"payment_method"`
	CheckoutRequestID *string           `gorm:"type:varchar(100);index" json:"checkout_request_id"`
	MerchantRequestID *string           `gorm:"type:varchar(100)" json:"merchant_request_id"`
	Status            TransactionStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Provisioned       bool              `gorm:"default:false" json:"provisioned"`
	PhoneNumber       string            `gorm:"type:varchar(50)" json:"phone_number"`
	CompletedAt       *time.Time        `json:"completed_at"`

	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Package Package `gorm:"foreignKey:PackageID" json:"package,omitempty"`
}

// Terminal reports whether the transaction has reached a final status.
func (t Transaction) Terminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}
