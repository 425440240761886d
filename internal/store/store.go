// Package store defines the persistence contract for the wallet ledger.
// Backends (postgres, sqlite) implement Store; the ledger service is the
// only writer and always mutates through a Commit, which a backend must
// apply as a single transaction guarded by the account version check.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"wallet-core/internal/domain"
)

// Commit is one atomic ledger mutation: the conditional balance update plus
// its audit record, optional notification, and event-log append. Exactly one
// of Record / IntentID is set: Record inserts a fresh applied record, IntentID
// flips an existing pending record to completed and stamps its resulting
// balance. A backend returns domain.ErrConflict when the account version no
// longer matches ExpectedVersion, or when the intent is no longer pending.
type Commit struct {
	AccountID       uuid.UUID
	ExpectedVersion int64
	NewBalanceCents int64
	Record          *domain.TransactionRecord
	IntentID        uuid.UUID
	Notification    *domain.Notification
	Event           Event
}

// Event is an append-only audit log entry. Payloads are stored twice: as raw
// JSON and as the RFC 8785 canonical form the hash chain is computed over.
type Event struct {
	Type          string
	AggregateType string
	AggregateID   string
	CorrelationID string
	Payload       any
}

// EventRow is a persisted event, used by chain verification.
type EventRow struct {
	Seq       int64
	PrevHash  string
	Hash      string
	Canonical string
}

type Store interface {
	FindOrCreateAccount(ctx context.Context, ownerID string, class domain.CurrencyClass) (domain.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)
	ArchiveAccount(ctx context.Context, id uuid.UUID) error

	GetTransaction(ctx context.Context, id uuid.UUID) (domain.TransactionRecord, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error)
	// AppliedTransactions returns the applied (completed/approved) records
	// for one account in creation order, for audit replay.
	AppliedTransactions(ctx context.Context, accountID uuid.UUID) ([]domain.TransactionRecord, error)

	// InsertIntent appends a pending record without touching any balance.
	InsertIntent(ctx context.Context, rec domain.TransactionRecord, ev Event) error
	// SetIntentStatus performs a conditional status transition and returns
	// domain.ErrConflict when the record is not in the expected state.
	SetIntentStatus(ctx context.Context, id uuid.UUID, from, to domain.TxStatus, reason string, ev Event) error

	// CommitMutation applies a Commit atomically.
	CommitMutation(ctx context.Context, c Commit) error

	ListNotifications(ctx context.Context, ownerID string, limit int) ([]domain.Notification, error)
	ResolveNotification(ctx context.Context, id uuid.UUID) error

	// VerifyEventChain recomputes the event hash chain and reports whether
	// it is intact.
	VerifyEventChain(ctx context.Context) (bool, error)

	Close()
}

// CanonicalPayload returns both representations an event row needs:
// plain JSON bytes and the RFC 8785 (JCS) canonical string the chain
// hash covers.
func CanonicalPayload(v any) (payloadJSON json.RawMessage, payloadCanonical string, err error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, "", err
	}
	return json.RawMessage(raw), string(canon), nil
}

// ChainHash links an event to its predecessor: sha256 over the previous
// event's hash concatenated with this event's canonical payload.
func ChainHash(prevHex, canonical string) string {
	sum := sha256.Sum256([]byte(prevHex + canonical))
	return hex.EncodeToString(sum[:])
}

// VerifyChain walks rows in sequence order and recomputes every link.
func VerifyChain(rows []EventRow) bool {
	prev := ""
	for _, r := range rows {
		if r.PrevHash != prev {
			return false
		}
		if ChainHash(prev, r.Canonical) != r.Hash {
			return false
		}
		prev = r.Hash
	}
	return true
}
