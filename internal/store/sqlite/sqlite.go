// Package sqlite is the embedded Store backend, used for single-node
// deployments and by the test suite. Semantics match the postgres backend:
// every Commit is one transaction guarded by the account version check.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"wallet-core/internal/domain"
	"wallet-core/internal/store"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. The pool is capped at one connection: sqlite allows a single
// writer anyway, and a serialized pool keeps busy errors out of the
// commit path.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.db.Close() }

func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id     TEXT PRIMARY KEY,
			owner_id       TEXT NOT NULL,
			currency_class TEXT NOT NULL,
			balance_cents  INTEGER NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
			version        INTEGER NOT NULL DEFAULT 0,
			active         INTEGER NOT NULL DEFAULT 1,
			created_at     TIMESTAMP NOT NULL,
			updated_at     TIMESTAMP NOT NULL,
			UNIQUE (owner_id, currency_class)
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			tx_id                   TEXT PRIMARY KEY,
			account_id              TEXT NOT NULL REFERENCES accounts(account_id),
			owner_id                TEXT NOT NULL,
			delta_cents             INTEGER NOT NULL,
			resulting_balance_cents INTEGER NOT NULL DEFAULT 0,
			category                TEXT NOT NULL,
			status                  TEXT NOT NULL,
			note                    TEXT NOT NULL DEFAULT '',
			status_reason           TEXT NOT NULL DEFAULT '',
			created_at              TIMESTAMP NOT NULL,
			updated_at              TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account_created
			ON transactions(account_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			notification_id TEXT PRIMARY KEY,
			owner_id        TEXT NOT NULL,
			title           TEXT NOT NULL,
			body            TEXT NOT NULL,
			severity        TEXT NOT NULL,
			resolved        INTEGER NOT NULL DEFAULT 0,
			created_at      TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_owner_created
			ON notifications(owner_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS event_log (
			seq               INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id          TEXT NOT NULL,
			event_type        TEXT NOT NULL,
			aggregate_type    TEXT NOT NULL,
			aggregate_id      TEXT NOT NULL,
			correlation_id    TEXT NOT NULL,
			payload_json      TEXT NOT NULL,
			payload_canonical TEXT NOT NULL,
			prev_hash         TEXT NOT NULL,
			hash              TEXT NOT NULL,
			created_at        TIMESTAMP NOT NULL
		)`,
	}
}

func (s *Store) migrate() error {
	for _, stmt := range migrations() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite migration failed: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev store.Event) error {
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

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT hash FROM event_log ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO event_log(
			event_id, event_type, aggregate_type, aggregate_id, correlation_id,
			payload_json, payload_canonical, prev_hash, hash, created_at
		) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		uuid.NewString(), ev.Type, ev.AggregateType, ev.AggregateID, corr,
		string(payloadJSON), payloadCanonical, prev, store.ChainHash(prev, payloadCanonical),
		time.Now().UTC(),
	)
	return err
}

const accountCols = `account_id, owner_id, currency_class, balance_cents, version, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.CurrencyClass, &a.BalanceCents,
		&a.Version, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("%w: account", domain.ErrNotFound)
	}
	return a, err
}

func (s *Store) FindOrCreateAccount(ctx context.Context, ownerID string, class domain.CurrencyClass) (domain.Account, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || !class.Valid() {
		return domain.Account{}, fmt.Errorf("%w: owner id and currency class required", domain.ErrValidation)
	}

	var out domain.Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		accID := uuid.New()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO accounts(account_id, owner_id, currency_class, balance_cents, version, active, created_at, updated_at)
			 VALUES(?,?,?,0,0,1,?,?)
			 ON CONFLICT(owner_id, currency_class) DO NOTHING`,
			accID.String(), ownerID, string(class), now, now,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
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
				return err
			}
		}

		out, err = scanAccount(tx.QueryRowContext(ctx,
			`SELECT `+accountCols+` FROM accounts WHERE owner_id=? AND currency_class=?`,
			ownerID, string(class),
		))
		return err
	})
	return out, err
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	if id == uuid.Nil {
		return domain.Account{}, fmt.Errorf("%w: nil account id", domain.ErrValidation)
	}
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE account_id=?`, id.String(),
	))
}

func (s *Store) ArchiveAccount(ctx context.Context, id uuid.UUID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET active=0, version=version+1, updated_at=? WHERE account_id=?`,
			time.Now().UTC(), id.String(),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: account", domain.ErrNotFound)
		}
		ev := store.Event{
			Type:          "WALLET_ARCHIVED",
			AggregateType: "ACCOUNT",
			AggregateID:   id.String(),
			Payload:       map[string]string{"account_id": id.String()},
		}
		return insertEvent(ctx, tx, ev)
	})
}

const txCols = `tx_id, account_id, owner_id, delta_cents, resulting_balance_cents, category, status, note, status_reason, created_at, updated_at`

func scanTransaction(row rowScanner) (domain.TransactionRecord, error) {
	var r domain.TransactionRecord
	err := row.Scan(&r.ID, &r.AccountID, &r.OwnerID, &r.DeltaCents, &r.ResultingBalance,
		&r.Category, &r.Status, &r.Note, &r.StatusReason, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TransactionRecord{}, fmt.Errorf("%w: transaction", domain.ErrNotFound)
	}
	return r, err
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (domain.TransactionRecord, error) {
	if id == uuid.Nil {
		return domain.TransactionRecord{}, fmt.Errorf("%w: nil transaction id", domain.ErrValidation)
	}
	return scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+txCols+` FROM transactions WHERE tx_id=?`, id.String(),
	))
}

func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txCols+` FROM transactions WHERE account_id=? ORDER BY created_at DESC, tx_id LIMIT ?`,
		accountID.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *Store) AppliedTransactions(ctx context.Context, accountID uuid.UUID) ([]domain.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txCols+` FROM transactions
		  WHERE account_id=? AND status IN ('completed','approved')
		  ORDER BY updated_at, tx_id`,
		accountID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]domain.TransactionRecord, error) {
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
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transactions(tx_id, account_id, owner_id, delta_cents, resulting_balance_cents, category, status, note, status_reason, created_at, updated_at)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
			rec.ID.String(), rec.AccountID.String(), rec.OwnerID, rec.DeltaCents, rec.ResultingBalance,
			string(rec.Category), string(rec.Status), rec.Note, rec.StatusReason, now, now,
		)
		if err != nil {
			return err
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (s *Store) SetIntentStatus(ctx context.Context, id uuid.UUID, from, to domain.TxStatus, reason string, ev store.Event) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE transactions SET status=?, status_reason=?, updated_at=? WHERE tx_id=? AND status=?`,
			string(to), reason, time.Now().UTC(), id.String(), string(from),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM transactions WHERE tx_id=?)`, id.String(),
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: transaction", domain.ErrNotFound)
			}
			return fmt.Errorf("%w: transaction not %s", domain.ErrConflict, from)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (s *Store) CommitMutation(ctx context.Context, c store.Commit) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance_cents=?, version=version+1, updated_at=?
			  WHERE account_id=? AND version=?`,
			c.NewBalanceCents, now, c.AccountID.String(), c.ExpectedVersion,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM accounts WHERE account_id=?)`, c.AccountID.String(),
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: account", domain.ErrNotFound)
			}
			return fmt.Errorf("%w: account version moved", domain.ErrConflict)
		}

		switch {
		case c.Record != nil:
			_, err := tx.ExecContext(ctx,
				`INSERT INTO transactions(tx_id, account_id, owner_id, delta_cents, resulting_balance_cents, category, status, note, status_reason, created_at, updated_at)
				 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
				c.Record.ID.String(), c.Record.AccountID.String(), c.Record.OwnerID,
				c.Record.DeltaCents, c.Record.ResultingBalance, string(c.Record.Category),
				string(c.Record.Status), c.Record.Note, c.Record.StatusReason, now, now,
			)
			if err != nil {
				return err
			}
		case c.IntentID != uuid.Nil:
			res, err := tx.ExecContext(ctx,
				`UPDATE transactions SET status=?, resulting_balance_cents=?, updated_at=?
				  WHERE tx_id=? AND status=?`,
				string(domain.StatusCompleted), c.NewBalanceCents, now,
				c.IntentID.String(), string(domain.StatusPending),
			)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: intent not pending", domain.ErrConflict)
			}
		default:
			return fmt.Errorf("%w: commit carries no record", domain.ErrValidation)
		}

		if c.Notification != nil {
			n := c.Notification
			_, err := tx.ExecContext(ctx,
				`INSERT INTO notifications(notification_id, owner_id, title, body, severity, resolved, created_at)
				 VALUES(?,?,?,?,?,0,?)`,
				n.ID.String(), n.OwnerID, n.Title, n.Body, string(n.Severity), now,
			)
			if err != nil {
				return err
			}
		}

		return insertEvent(ctx, tx, c.Event)
	})
}

func (s *Store) ListNotifications(ctx context.Context, ownerID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT notification_id, owner_id, title, body, severity, resolved, created_at
		   FROM notifications WHERE owner_id=? ORDER BY created_at DESC, notification_id LIMIT ?`,
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET resolved=1 WHERE notification_id=?`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: notification", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) VerifyEventChain(ctx context.Context) (bool, error) {
	rows, err := s.db.QueryContext(ctx,
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

// Tamper overwrites one event's canonical payload, bypassing the chain. Only
// used by tests to prove verification detects corruption.
func (s *Store) Tamper(ctx context.Context, seq int64, canonical string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE event_log SET payload_canonical=? WHERE seq=?`, canonical, seq)
	return err
}
