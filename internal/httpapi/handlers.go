package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"wallet-core/internal/domain"
	"wallet-core/internal/ledger"
)

type Handlers struct {
	svc *ledger.Service
}

func NewHandlers(svc *ledger.Service) *Handlers { return &Handlers{svc: svc} }

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrReason(w http.ResponseWriter, code int, msg, reason string) {
	writeJSON(w, code, map[string]any{"error": msg, "reason": reason})
}

func writeErr(w http.ResponseWriter, err error) {
	code := httpStatusForErr(err)
	writeErrReason(w, code, publicErrMessage(code, err), ledger.ReasonCode(err))
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	// Ledger taxonomy
	case errors.Is(err, domain.ErrAccountInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrState):
		return http.StatusConflict

	// Context / timeouts
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

func publicErrMessage(code int, err error) string {
	// Don't leak internals on 5xx.
	if code >= 500 {
		return "internal error"
	}
	return err.Error()
}

func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", domain.ErrValidation, name)
	}
	return id, nil
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

const (
	readTimeout  = 3 * time.Second
	writeTimeout = 5 * time.Second
)

func (h *Handlers) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrReason(w, http.StatusBadRequest, "invalid json", "validation")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	acct, err := h.svc.FindOrCreateWallet(ctx, req.OwnerID, req.CurrencyClass)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.WalletResponse{Account: acct})
}

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	acct, err := h.svc.GetWallet(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.WalletResponse{Account: acct})
}

func (h *Handlers) ArchiveWallet(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	if err := h.svc.ArchiveWallet(ctx, id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListWalletTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	recs, err := h.svc.ListTransactions(ctx, id, limitParam(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.TransactionListResponse{Transactions: recs})
}

func (h *Handlers) AuditWallet(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	report, err := h.svc.Audit(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) ApplyMutation(w http.ResponseWriter, r *http.Request) {
	var req domain.MutationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrReason(w, http.StatusBadRequest, "invalid json", "validation")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	resp, err := h.svc.ApplyMutation(ctx, req.AccountID, req.DeltaCents, req.Category, req.Note)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) RecordIntent(w http.ResponseWriter, r *http.Request) {
	var req domain.IntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrReason(w, http.StatusBadRequest, "invalid json", "validation")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	txID, err := h.svc.RecordIntent(ctx, req.AccountID, req.AmountCents, req.Category, req.Note)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.IntentResponse{TransactionID: txID})
}

func (h *Handlers) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	resp, err := h.svc.ConfirmIntent(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) RejectIntent(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}

	var req domain.RejectIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrReason(w, http.StatusBadRequest, "invalid json", "validation")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	if err := h.svc.RejectIntent(ctx, id, req.Reason); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	notes, err := h.svc.ListNotifications(ctx, ownerID, limitParam(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NotificationListResponse{Notifications: notes})
}

func (h *Handlers) ResolveNotification(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	if err := h.svc.ResolveNotification(ctx, id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
