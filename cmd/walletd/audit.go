package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"wallet-core/internal/config"
	"wallet-core/internal/ledger"
	"wallet-core/internal/metrics"
	"wallet-core/internal/notify"
)

var auditCmd = &cobra.Command{
	Use:   "audit ACCOUNT_ID",
	Short: "Reconcile an account against its applied transactions and event chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	accountID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid account id %q: %w", args[0], err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := ledger.New(st, notify.LogSink{Logger: logger}, metrics.NewCollector(), logger)

	report, err := svc.Audit(ctx, accountID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.Consistent {
		os.Exit(1)
	}
	return nil
}
