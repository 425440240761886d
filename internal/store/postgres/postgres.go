// Package postgres is the production Store backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wallet-core/internal/domain"
	"wallet-core/internal/store"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{db: db} }

func (s *Store) Close() { s.db.Close() }

func (s *Store) begin(ctx context.Context) (pgx.Tx, error) {
	return s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
}

// insertEvent appends one event_log row inside tx. The hash chain is
// serialized with an advisory lock so concurrent commits cannot fork it.
func insertEvent(ctx context.Context, tx pgx.Tx, ev store.Event) error {
	if strings.TrimSpace(ev.Type) == "" ||
		strings.TrimSpace(ev.AggregateType) == "" ||
		strings.TrimSpace(ev.AggregateID) == "" {
		return fmt.Errorf("%w: incomplete event", domain.ErrValidation)
	}
	corr := strings.TrimSpace(ev.CorrelationID)
	if corr == "" {
		corr = uuid.NewString()
	}

	payloadJSON, payloadCanonical, err := store.CanonicalPayload(ev.Payload)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('wallet_event_log'))`); err != nil {
		return err
	}

	var prev string
	err = tx.QueryRow(ctx, `SELECT hash FROM event_log ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO event_log(
			event_id, event_type, aggregate_type, aggregate_id, correlation_id,
			payload_json, payload_canonical, prev_hash, hash
		) VALUES($1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9)`,
		uuid.New(), ev.Type, ev.AggregateType, ev.AggregateID, corr,
		payloadJSON, payloadCanonical, prev, store.ChainHash(prev, payloadCanonical),
	)
	return err
}

const accountCols = `account_id, owner_id, currency_class, balance_cents, version, active, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.CurrencyClass, &a.BalanceCents,
		&a.Version, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("%w: account", domain.ErrNotFound)
	}
	return a, err
}

func (s *Store) FindOrCreateAccount(ctx context.Context, ownerID string, class domain.CurrencyClass) (domain.Account, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || !class.Valid() {
		return domain.Account{}, fmt.Errorf("%w: owner id and currency class required", domain.ErrValidation)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback(ctx)

	accID := uuid.New()
	tag, err := tx.Exec(ctx,
		`INSERT INTO accounts(account_id, owner_id, currency_class)
		 VALUES($1,$2,$3)
		 ON CONFLICT (owner_id, currency_class) DO NOTHING`,
		accID, ownerID, class,
	)
	if err != nil {
		return domain.Account{}, err
	}

	if tag.RowsAffected() == 1 {
		ev := store.Event{
			Type:          "WALLET_PROVISIONED",
			AggregateType: "ACCOUNT",
			AggregateID:   accID.String(),
			Payload: map[string]string{
				"account_id":     accID.String(),
				"owner_id":       ownerID,
				"currency_class": string(class),
			},
		}
		if err := insertEvent(ctx, tx, ev); err != nil {
			return domain.Account{}, err
		}
	}

	a, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE owner_id=$1 AND currency_class=$2`,
		ownerID, class,
	))
	if err != nil {
		return domain.Account{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	if id == uuid.Nil {
		return domain.Account{}, fmt.Errorf("%w: nil account id", domain.ErrValidation)
	}
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE account_id=$1`, id,
	))
}

func (s *Store) ArchiveAccount(ctx context.Context, id uuid.UUID) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET active=false, version=version+1, updated_at=now() WHERE account_id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account", domain.ErrNotFound)
	}

	ev := store.Event{
		Type:          "WALLET_ARCHIVED",
		AggregateType: "ACCOUNT",
		AggregateID:   id.String(),
		Payload:       map[string]string{"account_id": id.String()},
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const txCols = `tx_id, account_id, owner_id, delta_cents, resulting_balance_cents, category, status, note, status_reason, created_at, updated_at`

func scanTransaction(row pgx.Row) (domain.TransactionRecord, error) {
	var r domain.TransactionRecord
	err := row.Scan(&r.ID, &r.AccountID, &r.OwnerID, &r.DeltaCents, &r.ResultingBalance,
		&r.Category, &r.Status, &r.Note, &r.StatusReason, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TransactionRecord{}, fmt.Errorf("%w: transaction", domain.ErrNotFound)
	}
	return r, err
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (domain.TransactionRecord, error) {
	if id == uuid.Nil {
		return domain.TransactionRecord{}, fmt.Errorf("%w: nil transaction id", domain.ErrValidation)
	}
	return scanTransaction(s.db.QueryRow(ctx,
		`SELECT `+txCols+` FROM transactions WHERE tx_id=$1`, id,
	))
}

func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+txCols+` FROM transactions WHERE account_id=$1 ORDER BY created_at DESC, tx_id LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *Store) AppliedTransactions(ctx context.Context, accountID uuid.UUID) ([]domain.TransactionRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+txCols+` FROM transactions
		  WHERE account_id=$1 AND status IN ('completed','approved')
		  ORDER BY updated_at, tx_id`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]domain.TransactionRecord, error) {
	var out []domain.TransactionRecord
	for rows.Next() {
		r, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertIntent(ctx context.Context, rec domain.TransactionRecord, ev store.Event) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions(tx_id, account_id, owner_id, delta_cents, resulting_balance_cents, category, status, note, status_reason)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.AccountID, rec.OwnerID, rec.DeltaCents, rec.ResultingBalance,
		rec.Category, rec.Status, rec.Note, rec.StatusReason,
	)
	if err != nil {
		return err
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) SetIntentStatus(ctx context.Context, id uuid.UUID, from, to domain.TxStatus, reason string, ev store.Event) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE transactions SET status=$1, status_reason=$2, updated_at=now() WHERE tx_id=$3 AND status=$4`,
		to, reason, id, from,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE tx_id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: transaction", domain.ErrNotFound)
		}
		return fmt.Errorf("%w: transaction not %s", domain.ErrConflict, from)
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CommitMutation(ctx context.Context, c store.Commit) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance_cents=$1, version=version+1, updated_at=now()
		  WHERE account_id=$2 AND version=$3`,
		c.NewBalanceCents, c.AccountID, c.ExpectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE account_id=$1)`, c.AccountID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: account", domain.ErrNotFound)
		}
		return fmt.Errorf("%w: account version moved", domain.ErrConflict)
	}

	switch {
	case c.Record != nil:
		_, err = tx.Exec(ctx,
			`INSERT INTO transactions(tx_id, account_id, owner_id, delta_cents, resulting_balance_cents, category, status, note, status_reason)
			 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			c.Record.ID, c.Record.AccountID, c.Record.OwnerID, c.Record.DeltaCents,
			c.Record.ResultingBalance, c.Record.Category, c.Record.Status,
			c.Record.Note, c.Record.StatusReason,
		)
		if err != nil {
			return err
		}
	case c.IntentID != uuid.Nil:
		tag, err := tx.Exec(ctx,
			`UPDATE transactions SET status=$1, resulting_balance_cents=$2, updated_at=now()
			  WHERE tx_id=$3 AND status=$4`,
			domain.StatusCompleted, c.NewBalanceCents, c.IntentID, domain.StatusPending,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: intent not pending", domain.ErrConflict)
		}
	default:
		return fmt.Errorf("%w: commit carries no record", domain.ErrValidation)
	}

	if c.Notification != nil {
		n := c.Notification
		_, err = tx.Exec(ctx,
			`INSERT INTO notifications(notification_id, owner_id, title, body, severity)
			 VALUES($1,$2,$3,$4,$5)`,
			n.ID, n.OwnerID, n.Title, n.Body, n.Severity,
		)
		if err != nil {
			return err
		}
	}

	if err := insertEvent(ctx, tx, c.Event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ListNotifications(ctx context.Context, ownerID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT notification_id, owner_id, title, body, severity, resolved, created_at
		   FROM notifications WHERE owner_id=$1 ORDER BY created_at DESC, notification_id LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Body, &n.Severity, &n.Resolved, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) ResolveNotification(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET resolved=true WHERE notification_id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: notification", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) VerifyEventChain(ctx context.Context) (bool, error) {
	rows, err := s.db.Query(ctx,
		`SELECT seq, prev_hash, hash, payload_canonical FROM event_log ORDER BY seq`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var chain []store.EventRow
	for rows.Next() {
		var r store.EventRow
		if err := rows.Scan(&r.Seq, &r.PrevHash, &r.Hash, &r.Canonical); err != nil {
			return false, err
		}
		chain = append(chain, r)
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return store.VerifyChain(chain), nil
}
