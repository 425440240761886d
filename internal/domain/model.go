// Package domain contains the wallet ledger's pure business types.
// It has no infrastructure imports beyond uuid.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// CurrencyClass partitions an owner's wallets. The set is closed: wallets are
// provisioned per (owner, class) pair and the class is never user-chosen text.
type CurrencyClass string

const (
	ClassMain      CurrencyClass = "main"
	ClassTrading   CurrencyClass = "trading"
	ClassAffiliate CurrencyClass = "affiliate"
)

// Valid reports whether c is a member of the closed currency-class set.
func (c CurrencyClass) Valid() bool {
	switch c {
	case ClassMain, ClassTrading, ClassAffiliate:
		return true
	}
	return false
}

// Category is the business reason for a ledger mutation.
type Category string

const (
	CategoryDeposit         Category = "deposit"
	CategoryWithdrawal      Category = "withdrawal"
	CategoryAdminAdjustment Category = "admin_adjustment"
	CategoryROICredit       Category = "roi_credit"
	CategorySignupBonus     Category = "signup_bonus"
	CategoryTrade           Category = "trade"
	CategoryGiftcardBuy     Category = "giftcard_buy"
	CategoryGiftcardSell    Category = "giftcard_sell"
)

// Valid reports whether c is a member of the closed category set.
// Free-text categories never enter the ledger.
func (c Category) Valid() bool {
	switch c {
	case CategoryDeposit, CategoryWithdrawal, CategoryAdminAdjustment,
		CategoryROICredit, CategorySignupBonus, CategoryTrade,
		CategoryGiftcardBuy, CategoryGiftcardSell:
		return true
	}
	return false
}

// Debit reports whether the category normally moves funds out of the wallet.
// Used to normalize the sign of intent amounts.
func (c Category) Debit() bool {
	switch c {
	case CategoryWithdrawal, CategoryGiftcardBuy, CategoryTrade:
		return true
	}
	return false
}

// TxStatus is the workflow state of a TransactionRecord, independent of the
// ledger effect. A pending record represents an intended future mutation.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusApproved  TxStatus = "approved"
	StatusCompleted TxStatus = "completed"
	StatusRejected  TxStatus = "rejected"
)

// Valid reports whether s is a member of the closed status set.
func (s TxStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Applied reports whether a record in status s counts toward the balance.
func (s TxStatus) Applied() bool {
	return s == StatusCompleted || s == StatusApproved
}

// Terminal reports whether s permits no further transitions.
func (s TxStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Severity grades a notification.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a member of the closed severity set.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Account is a balance-holding wallet scoped to one owner and one currency
// class. Balances are stored in minor units (cents) and are never negative.
// Version is the optimistic-concurrency counter: every committed mutation
// increments it, and a commit succeeds only against the version it read.
type Account struct {
	ID            uuid.UUID     `json:"id"`
	OwnerID       string        `json:"owner_id"`
	CurrencyClass CurrencyClass `json:"currency_class"`
	BalanceCents  int64         `json:"balance_cents"`
	Version       int64         `json:"-"`
	Active        bool          `json:"active"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TransactionRecord is an immutable audit entry for one ledger mutation.
// Only Status (plus ResultingBalance and StatusReason at apply time) may
// change after creation, and only along pending -> completed|rejected.
type TransactionRecord struct {
	ID               uuid.UUID `json:"id"`
	AccountID        uuid.UUID `json:"account_id"`
	OwnerID          string    `json:"owner_id"`
	DeltaCents       int64     `json:"delta_cents"`
	ResultingBalance int64     `json:"resulting_balance_cents"`
	Category         Category  `json:"category"`
	Status           TxStatus  `json:"status"`
	Note             string    `json:"note,omitempty"`
	StatusReason     string    `json:"status_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Notification is a user-facing alert created alongside a mutation.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  Severity  `json:"severity"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}
