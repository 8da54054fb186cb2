package models

import (
	"encoding/json"
	"time"
)

// PaymentCallback is an audit record of every callback the gateway
// delivered, matched or not. Unmatched rows (Matched=false) are the
// manual-reconciliation queue for callbacks that referenced no known
// transaction.
type PaymentCallback struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	CheckoutRequestID string          `gorm:"type:varchar(100);index" json:"checkout_request_id"`
	ResultCode        int             `json:"result_code"`
	Matched           bool            `gorm:"default:false" json:"matched"`
	Metadata          json.RawMessage `gorm:"type:jsonb" json:"metadata"`
}
