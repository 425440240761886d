package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"wallet-core/internal/domain"
	"wallet-core/internal/store"
)

// Integration tests. They need a reachable Postgres and are skipped when
// WALLET_DB_DSN is unset.

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("WALLET_DB_DSN"))
	if dsn == "" {
		t.Skip("missing WALLET_DB_DSN env var")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 1

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(pool)
}

func testCommit(acct domain.Account, delta int64) store.Commit {
	rec := domain.TransactionRecord{
		ID:               uuid.New(),
		AccountID:        acct.ID,
		OwnerID:          acct.OwnerID,
		DeltaCents:       delta,
		ResultingBalance: acct.BalanceCents + delta,
		Category:         domain.CategoryDeposit,
		Status:           domain.StatusCompleted,
	}
	return store.Commit{
		AccountID:       acct.ID,
		ExpectedVersion: acct.Version,
		NewBalanceCents: acct.BalanceCents + delta,
		Record:          &rec,
		Event: store.Event{
			Type:          "MUTATION_APPLIED",
			AggregateType: "LEDGER_TX",
			AggregateID:   rec.ID.String(),
			Payload:       map[string]string{"tx_id": rec.ID.String()},
		},
	}
}

func TestCommitAndVersionGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Unique owner per run: the DB may be reused across runs.
	acct, err := s.FindOrCreateAccount(ctx, "it-"+uuid.NewString(), domain.ClassMain)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.CommitMutation(ctx, testCommit(acct, 5000)); err != nil {
		t.Fatal(err)
	}
	if err := s.CommitMutation(ctx, testCommit(acct, 100)); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale version: got %v, want ErrConflict", err)
	}

	fresh, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.BalanceCents != 5000 {
		t.Fatalf("balance = %d, want 5000", fresh.BalanceCents)
	}

	ok, err := s.VerifyEventChain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("event chain should verify")
	}
}

func TestConcurrentCommitsSerialize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct, err := s.FindOrCreateAccount(ctx, "it-conc-"+uuid.NewString(), domain.ClassMain)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Optimistic retry loop, as the service runs it.
				for {
					cur, err := s.GetAccount(ctx, acct.ID)
					if err != nil {
						errCh <- err
						return
					}
					err = s.CommitMutation(ctx, testCommit(cur, 10))
					if err == nil {
						break
					}
					if !errors.Is(err, domain.ErrConflict) {
						errCh <- err
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}

	final, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := int64(workers * perWorker * 10)
	if final.BalanceCents != want {
		t.Fatalf("balance = %d, want %d", final.BalanceCents, want)
	}
	if final.Version != int64(workers*perWorker) {
		t.Fatalf("version = %d, want %d", final.Version, workers*perWorker)
	}

	recs, err := s.AppliedTransactions(ctx, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != workers*perWorker {
		t.Fatalf("applied records = %d, want %d", len(recs), workers*perWorker)
	}
}

func TestIntentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct, err := s.FindOrCreateAccount(ctx, "it-int-"+uuid.NewString(), domain.ClassTrading)
	if err != nil {
		t.Fatal(err)
	}

	rec := domain.TransactionRecord{
		ID:         uuid.New(),
		AccountID:  acct.ID,
		OwnerID:    acct.OwnerID,
		DeltaCents: 900,
		Category:   domain.CategorySignupBonus,
		Status:     domain.StatusPending,
	}
	ev := store.Event{
		Type:          "INTENT_RECORDED",
		AggregateType: "LEDGER_TX",
		AggregateID:   rec.ID.String(),
		Payload:       map[string]string{"tx_id": rec.ID.String()},
	}
	if err := s.InsertIntent(ctx, rec, ev); err != nil {
		t.Fatal(err)
	}

	flip := store.Commit{
		AccountID:       acct.ID,
		ExpectedVersion: acct.Version,
		NewBalanceCents: acct.BalanceCents + rec.DeltaCents,
		IntentID:        rec.ID,
		Event:           ev,
	}
	if err := s.CommitMutation(ctx, flip); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTransaction(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCompleted || got.ResultingBalance != acct.BalanceCents+rec.DeltaCents {
		t.Fatalf("flipped record unexpected: %+v", got)
	}

	cur, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	flip.ExpectedVersion = cur.Version
	if err := s.CommitMutation(ctx, flip); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("double flip: got %v, want ErrConflict", err)
	}
}
