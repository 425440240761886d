package ledger

import (
	"context"

	"wallet-core/internal/domain"
	"wallet-core/internal/store"
)

// Event payloads are canonical, deterministic shapes: no floats, no maps,
// stable field order via struct marshaling.

type mutationAppliedPayload struct {
	TxID           string `json:"tx_id"`
	AccountID      string `json:"account_id"`
	OwnerID        string `json:"owner_id"`
	DeltaCents     int64  `json:"delta_cents"`
	ResultingCents int64  `json:"resulting_balance_cents"`
	Category       string `json:"category"`
}

type intentRecordedPayload struct {
	TxID       string `json:"tx_id"`
	AccountID  string `json:"account_id"`
	OwnerID    string `json:"owner_id"`
	DeltaCents int64  `json:"delta_cents"`
	Category   string `json:"category"`
}

type intentConfirmedPayload struct {
	TxID           string `json:"tx_id"`
	AccountID      string `json:"account_id"`
	DeltaCents     int64  `json:"delta_cents"`
	ResultingCents int64  `json:"resulting_balance_cents"`
	Category       string `json:"category"`
}

type intentRejectedPayload struct {
	TxID      string `json:"tx_id"`
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

func mutationAppliedEvent(ctx context.Context, rec domain.TransactionRecord) store.Event {
	return store.Event{
		Type:          "MUTATION_APPLIED",
		AggregateType: "LEDGER_TX",
		AggregateID:   rec.ID.String(),
		CorrelationID: CorrelationID(ctx),
		Payload: mutationAppliedPayload{
			TxID:           rec.ID.String(),
			AccountID:      rec.AccountID.String(),
			OwnerID:        rec.OwnerID,
			DeltaCents:     rec.DeltaCents,
			ResultingCents: rec.ResultingBalance,
			Category:       string(rec.Category),
		},
	}
}

func intentRecordedEvent(ctx context.Context, rec domain.TransactionRecord) store.Event {
	return store.Event{
		Type:          "INTENT_RECORDED",
		AggregateType: "LEDGER_TX",
		AggregateID:   rec.ID.String(),
		CorrelationID: CorrelationID(ctx),
		Payload: intentRecordedPayload{
			TxID:       rec.ID.String(),
			AccountID:  rec.AccountID.String(),
			OwnerID:    rec.OwnerID,
			DeltaCents: rec.DeltaCents,
			Category:   string(rec.Category),
		},
	}
}

func intentConfirmedEvent(ctx context.Context, rec domain.TransactionRecord, resulting int64) store.Event {
	return store.Event{
		Type:          "INTENT_CONFIRMED",
		AggregateType: "LEDGER_TX",
		AggregateID:   rec.ID.String(),
		CorrelationID: CorrelationID(ctx),
		Payload: intentConfirmedPayload{
			TxID:           rec.ID.String(),
			AccountID:      rec.AccountID.String(),
			DeltaCents:     rec.DeltaCents,
			ResultingCents: resulting,
			Category:       string(rec.Category),
		},
	}
}

func intentRejectedEvent(ctx context.Context, rec domain.TransactionRecord, reason string) store.Event {
	return store.Event{
		Type:          "INTENT_REJECTED",
		AggregateType: "LEDGER_TX",
		AggregateID:   rec.ID.String(),
		CorrelationID: CorrelationID(ctx),
		Payload: intentRejectedPayload{
			TxID:      rec.ID.String(),
			AccountID: rec.AccountID.String(),
			Reason:    reason,
		},
	}
}
