package domain

import "github.com/google/uuid"

type CreateWalletRequest struct {
	OwnerID       string        `json:"owner_id"`
	CurrencyClass CurrencyClass `json:"currency_class"`
}

type WalletResponse struct {
	Account Account `json:"account"`
}

type MutationRequest struct {
	AccountID  uuid.UUID `json:"account_id"`
	DeltaCents int64     `json:"delta_cents"`
	Category   Category  `json:"category"`
	Note       string    `json:"note,omitempty"`
}

type MutationResponse struct {
	NewBalanceCents int64     `json:"new_balance_cents"`
	TransactionID   uuid.UUID `json:"transaction_id"`
}

type IntentRequest struct {
	AccountID   uuid.UUID `json:"account_id"`
	AmountCents int64     `json:"amount_cents"`
	Category    Category  `json:"category"`
	Note        string    `json:"note,omitempty"`
}

type IntentResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
}

type ConfirmIntentResponse struct {
	NewBalanceCents int64 `json:"new_balance_cents"`
}

type RejectIntentRequest struct {
	Reason string `json:"reason"`
}

type TransactionListResponse struct {
	Transactions []TransactionRecord `json:"transactions"`
}

type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
}

// AuditReport is the drift cross-check for one wallet: the stored balance,
// the recomputed clamped sum of applied deltas, and the latest applied
// record's resulting-balance snapshot must all agree.
type AuditReport struct {
	AccountID            uuid.UUID `json:"account_id"`
	BalanceCents         int64     `json:"balance_cents"`
	AppliedSumCents      int64     `json:"applied_sum_cents"`
	LastResultingBalance *int64    `json:"last_resulting_balance_cents,omitempty"`
	AppliedRecords       int       `json:"applied_records"`
	EventChainOK         bool      `json:"event_chain_ok"`
	Consistent           bool      `json:"consistent"`
}
