// Package ledger implements the balance-mutation workflow: every change to
// a wallet balance commits together with its transaction record and its
// owner notification, or not at all.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"wallet-core/internal/domain"
	"wallet-core/internal/metrics"
	"wallet-core/internal/notify"
	"wallet-core/internal/store"
)

// maxCommitAttempts bounds optimistic-concurrency retries before the
// conflict is surfaced to the caller.
const maxCommitAttempts = 5

type Service struct {
	st     store.Store
	sink   notify.Sink
	mc     *metrics.Collector
	logger *slog.Logger
}

// New wires the service. sink and mc may be nil; logger defaults to
// slog.Default().
func New(st store.Store, sink notify.Sink, mc *metrics.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{st: st, sink: sink, mc: mc, logger: logger}
}

func clampBalance(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func (s *Service) validateMutation(accountID uuid.UUID, delta int64, category domain.Category) error {
	if accountID == uuid.Nil {
		return fmt.Errorf("%w: nil account id", domain.ErrValidation)
	}
	if delta == 0 {
		return fmt.Errorf("%w: delta must be non-zero", domain.ErrValidation)
	}
	if !category.Valid() {
		return fmt.Errorf("%w: unknown category %q", domain.ErrValidation, category)
	}
	return nil
}

// ApplyMutation applies a signed delta to one active wallet. Balances clamp
// at zero: a debit larger than the balance empties the wallet instead of
// overdrawing it. On version collision the read-compute-commit cycle is
// retried.
func (s *Service) ApplyMutation(ctx context.Context, accountID uuid.UUID, deltaCents int64, category domain.Category, note string) (domain.MutationResponse, error) {
	start := time.Now()

	if err := s.validateMutation(accountID, deltaCents, category); err != nil {
		s.countFailure(err)
		return domain.MutationResponse{}, err
	}

	var lastErr error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		acct, err := s.st.GetAccount(ctx, accountID)
		if err != nil {
			s.countFailure(err)
			return domain.MutationResponse{}, err
		}
		if !acct.Active {
			err := fmt.Errorf("%w: %s", domain.ErrAccountInactive, acct.ID)
			s.countFailure(err)
			return domain.MutationResponse{}, err
		}

		newBalance := clampBalance(acct.BalanceCents + deltaCents)
		rec := domain.TransactionRecord{
			ID:               uuid.New(),
			AccountID:        acct.ID,
			OwnerID:          acct.OwnerID,
			DeltaCents:       deltaCents,
			ResultingBalance: newBalance,
			Category:         category,
			Status:           domain.StatusCompleted,
			Note:             note,
		}
		notif := mutationNotification(acct, rec)

		commit := store.Commit{
			AccountID:       acct.ID,
			ExpectedVersion: acct.Version,
			NewBalanceCents: newBalance,
			Record:          &rec,
			Notification:    &notif,
			Event:           mutationAppliedEvent(ctx, rec),
		}
		if err := s.st.CommitMutation(ctx, commit); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				if s.mc != nil {
					s.mc.ConflictRetry()
				}
				lastErr = err
				continue
			}
			s.countFailure(err)
			return domain.MutationResponse{}, err
		}

		s.logger.Info("mutation applied",
			slog.String("account_id", acct.ID.String()),
			slog.String("transaction_id", rec.ID.String()),
			slog.String("category", string(category)),
			slog.Int64("delta_cents", deltaCents),
			slog.Int64("new_balance_cents", newBalance))
		if s.mc != nil {
			s.mc.MutationApplied(string(category), time.Since(start))
		}
		s.dispatch(notif)

		return domain.MutationResponse{NewBalanceCents: newBalance, TransactionID: rec.ID}, nil
	}

	s.countFailure(lastErr)
	return domain.MutationResponse{}, fmt.Errorf("%w: gave up after %d attempts", domain.ErrConflict, maxCommitAttempts)
}

// RecordIntent announces a mutation without applying it. Debit-style
// categories are stored with a negative delta regardless of the sign the
// caller passed; amount is a magnitude.
func (s *Service) RecordIntent(ctx context.Context, accountID uuid.UUID, amountCents int64, category domain.Category, note string) (uuid.UUID, error) {
	if err := s.validateMutation(accountID, amountCents, category); err != nil {
		s.countFailure(err)
		return uuid.Nil, err
	}

	acct, err := s.st.GetAccount(ctx, accountID)
	if err != nil {
		s.countFailure(err)
		return uuid.Nil, err
	}
	if !acct.Active {
		err := fmt.Errorf("%w: %s", domain.ErrAccountInactive, acct.ID)
		s.countFailure(err)
		return uuid.Nil, err
	}

	delta := amountCents
	if delta < 0 {
		delta = -delta
	}
	if category.Debit() {
		delta = -delta
	}

	rec := domain.TransactionRecord{
		ID:         uuid.New(),
		AccountID:  acct.ID,
		OwnerID:    acct.OwnerID,
		DeltaCents: delta,
		Category:   category,
		Status:     domain.StatusPending,
		Note:       note,
	}
	if err := s.st.InsertIntent(ctx, rec, intentRecordedEvent(ctx, rec)); err != nil {
		s.countFailure(err)
		return uuid.Nil, err
	}

	s.logger.Info("intent recorded",
		slog.String("account_id", acct.ID.String()),
		slog.String("transaction_id", rec.ID.String()),
		slog.String("category", string(category)),
		slog.Int64("delta_cents", delta))
	if s.mc != nil {
		s.mc.Intent("recorded")
	}
	return rec.ID, nil
}

// ConfirmIntent applies a pending intent. Idempotent: confirming a record
// that is already applied returns its recorded resulting balance without a
// second credit; confirming a rejected record fails with ErrState.
func (s *Service) ConfirmIntent(ctx context.Context, txID uuid.UUID) (domain.ConfirmIntentResponse, error) {
	if txID == uuid.Nil {
		return domain.ConfirmIntentResponse{}, fmt.Errorf("%w: nil transaction id", domain.ErrValidation)
	}

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		rec, err := s.st.GetTransaction(ctx, txID)
		if err != nil {
			s.countFailure(err)
			return domain.ConfirmIntentResponse{}, err
		}

		switch {
		case rec.Status.Applied():
			if s.mc != nil {
				s.mc.Intent("replayed")
			}
			return domain.ConfirmIntentResponse{NewBalanceCents: rec.ResultingBalance}, nil
		case rec.Status == domain.StatusRejected:
			err := fmt.Errorf("%w: intent %s already rejected", domain.ErrState, rec.ID)
			s.countFailure(err)
			return domain.ConfirmIntentResponse{}, err
		}

		acct, err := s.st.GetAccount(ctx, rec.AccountID)
		if err != nil {
			s.countFailure(err)
			return domain.ConfirmIntentResponse{}, err
		}
		if !acct.Active {
			err := fmt.Errorf("%w: %s", domain.ErrAccountInactive, acct.ID)
			s.countFailure(err)
			return domain.ConfirmIntentResponse{}, err
		}

		newBalance := clampBalance(acct.BalanceCents + rec.DeltaCents)
		notif := mutationNotification(acct, domain.TransactionRecord{
			ID:               rec.ID,
			AccountID:        rec.AccountID,
			OwnerID:          rec.OwnerID,
			DeltaCents:       rec.DeltaCents,
			ResultingBalance: newBalance,
			Category:         rec.Category,
			Status:           domain.StatusCompleted,
		})

		commit := store.Commit{
			AccountID:       acct.ID,
			ExpectedVersion: acct.Version,
			NewBalanceCents: newBalance,
			IntentID:        rec.ID,
			Notification:    &notif,
			Event:           intentConfirmedEvent(ctx, rec, newBalance),
		}
		if err := s.st.CommitMutation(ctx, commit); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Either the account version moved or another confirm won.
				// Re-reading resolves both: a completed record replays.
				if s.mc != nil {
					s.mc.ConflictRetry()
				}
				continue
			}
			s.countFailure(err)
			return domain.ConfirmIntentResponse{}, err
		}

		s.logger.Info("intent confirmed",
			slog.String("account_id", acct.ID.String()),
			slog.String("transaction_id", rec.ID.String()),
			slog.Int64("new_balance_cents", newBalance))
		if s.mc != nil {
			s.mc.Intent("confirmed")
		}
		s.dispatch(notif)

		return domain.ConfirmIntentResponse{NewBalanceCents: newBalance}, nil
	}

	err := fmt.Errorf("%w: gave up after %d attempts", domain.ErrConflict, maxCommitAttempts)
	s.countFailure(err)
	return domain.ConfirmIntentResponse{}, err
}

// RejectIntent terminates a pending intent without any balance effect.
// Rejecting an already-rejected intent is a no-op; rejecting an applied
// record fails with ErrState.
func (s *Service) RejectIntent(ctx context.Context, txID uuid.UUID, reason string) error {
	if txID == uuid.Nil {
		return fmt.Errorf("%w: nil transaction id", domain.ErrValidation)
	}

	rec, err := s.st.GetTransaction(ctx, txID)
	if err != nil {
		s.countFailure(err)
		return err
	}

	switch {
	case rec.Status == domain.StatusRejected:
		return nil
	case rec.Status.Applied():
		err := fmt.Errorf("%w: intent %s already applied", domain.ErrState, rec.ID)
		s.countFailure(err)
		return err
	}

	err = s.st.SetIntentStatus(ctx, rec.ID, domain.StatusPending, domain.StatusRejected, reason,
		intentRejectedEvent(ctx, rec, reason))
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost the race. A concurrent reject is still a no-op.
			cur, rerr := s.st.GetTransaction(ctx, txID)
			if rerr == nil && cur.Status == domain.StatusRejected {
				return nil
			}
			err = fmt.Errorf("%w: intent %s already applied", domain.ErrState, rec.ID)
		}
		s.countFailure(err)
		return err
	}

	s.logger.Info("intent rejected",
		slog.String("transaction_id", rec.ID.String()),
		slog.String("reason", reason))
	if s.mc != nil {
		s.mc.Intent("rejected")
	}
	return nil
}

// FindOrCreateWallet lazily provisions the (owner, class) wallet.
func (s *Service) FindOrCreateWallet(ctx context.Context, ownerID string, class domain.CurrencyClass) (domain.Account, error) {
	return s.st.FindOrCreateAccount(ctx, ownerID, class)
}

func (s *Service) GetWallet(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	return s.st.GetAccount(ctx, id)
}

// ArchiveWallet deactivates a wallet. Archived wallets reject mutations but
// keep their history; wallets are never deleted.
func (s *Service) ArchiveWallet(ctx context.Context, id uuid.UUID) error {
	return s.st.ArchiveAccount(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	return s.st.ListTransactions(ctx, accountID, limit)
}

func (s *Service) ListNotifications(ctx context.Context, ownerID string, limit int) ([]domain.Notification, error) {
	return s.st.ListNotifications(ctx, ownerID, limit)
}

func (s *Service) ResolveNotification(ctx context.Context, id uuid.UUID) error {
	return s.st.ResolveNotification(ctx, id)
}

// Audit replays the applied records of one wallet and cross-checks the
// stored balance against the clamped running sum and the latest
// resulting-balance snapshot, and verifies the event hash chain.
func (s *Service) Audit(ctx context.Context, accountID uuid.UUID) (domain.AuditReport, error) {
	acct, err := s.st.GetAccount(ctx, accountID)
	if err != nil {
		return domain.AuditReport{}, err
	}
	recs, err := s.st.AppliedTransactions(ctx, accountID)
	if err != nil {
		return domain.AuditReport{}, err
	}
	chainOK, err := s.st.VerifyEventChain(ctx)
	if err != nil {
		return domain.AuditReport{}, err
	}

	var running int64
	for _, r := range recs {
		running = clampBalance(running + r.DeltaCents)
	}

	report := domain.AuditReport{
		AccountID:       acct.ID,
		BalanceCents:    acct.BalanceCents,
		AppliedSumCents: running,
		AppliedRecords:  len(recs),
		EventChainOK:    chainOK,
	}
	consistent := running == acct.BalanceCents && chainOK
	if len(recs) > 0 {
		last := recs[len(recs)-1].ResultingBalance
		report.LastResultingBalance = &last
		consistent = consistent && last == acct.BalanceCents
	}
	report.Consistent = consistent

	if !consistent {
		s.logger.Error("wallet audit inconsistency",
			slog.String("account_id", acct.ID.String()),
			slog.Int64("balance_cents", acct.BalanceCents),
			slog.Int64("applied_sum_cents", running),
			slog.Bool("event_chain_ok", chainOK))
	}
	return report, nil
}

func (s *Service) dispatch(n domain.Notification) {
	if s.sink == nil {
		return
	}
	// Detached from the request: delivery failure must not surface here.
	if err := s.sink.Notify(context.Background(), n); err != nil {
		s.logger.Warn("notification dispatch failed",
			slog.String("owner_id", n.OwnerID),
			slog.String("error", err.Error()))
	}
}

func (s *Service) countFailure(err error) {
	if s.mc == nil || err == nil {
		return
	}
	s.mc.MutationFailed(ReasonCode(err))
}

// ReasonCode collapses an error into its taxonomy bucket. The HTTP layer
// reports it alongside the message; metrics label failures with it.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrState):
		return "state"
	default:
		return "internal"
	}
}
