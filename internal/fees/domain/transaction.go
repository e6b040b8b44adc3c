package fees

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMode is how money moved.
type PaymentMode string

const (
	ModeCash         PaymentMode = "CASH"
	ModeOnline       PaymentMode = "ONLINE"
	ModeUPI          PaymentMode = "UPI"
	ModeBankTransfer PaymentMode = "BANK_TRANSFER"
	ModeCheque       PaymentMode = "CHEQUE"
)

// Valid reports whether the mode is known.
func (m PaymentMode) Valid() bool {
	switch m {
	case ModeCash, ModeOnline, ModeUPI, ModeBankTransfer, ModeCheque:
		return true
	}
	return false
}

// Payment is an append-only receipt against a record.
type Payment struct {
	ID             string
	CoachingID     string
	MemberID       string
	RecordID       string
	Amount         decimal.Decimal
	Mode           PaymentMode
	TransactionRef string
	ReceiptNo      string
	PaidAt         time.Time
	RecordedBy     string
	CreatedAt      time.Time
}

// Refund is an append-only reversal of part of a payment.
type Refund struct {
	ID         string
	CoachingID string
	MemberID   string
	PaymentID  string
	RecordID   string
	Amount     decimal.Decimal
	Mode       PaymentMode
	Reason     string
	RefundedAt time.Time
	RecordedBy string
	CreatedAt  time.Time
}

// Waiver is an append-only write-off of a record's remaining balance.
type Waiver struct {
	ID           string
	CoachingID   string
	MemberID     string
	RecordID     string
	WaivedAmount decimal.Decimal
	Reason       string
	Actor        string
	WaivedAt     time.Time
	CreatedAt    time.Time
}

// SupersededReason is the waiver reason used when a reassignment settles old balances.
const SupersededReason = "superseded by reassignment"

// SystemActor identifies mutations made by the platform itself.
const SystemActor = "SYSTEM"

// History is every financial event of one member.
type History struct {
	Records  []FeeRecord
	Payments []Payment
	Refunds  []Refund
	Waivers  []Waiver
}
