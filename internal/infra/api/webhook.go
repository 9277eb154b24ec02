package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/adapters/payment"
	"telegram-vpn-subscription/internal/infra/logging"
	"telegram-vpn-subscription/internal/infra/metrics"
	"telegram-vpn-subscription/internal/usecase"
)

const (
	eventPaymentSucceeded = "payment.succeeded"
	maxWebhookBody        = 1 << 20
)

type webhookBody struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Paid   bool   `json:"paid"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

type webhookReply struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}

// handleWebhook accepts processor completion callbacks. Business failures still answer 200 so
// the processor stops redelivering; only infrastructure faults answer 500.
// A body is trusted only when it carries a signature that verifies; anything else is settled
// from the processor's own view of the payment, fetched by id.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	processor := chi.URLParam(r, "processor")
	if processor != s.processor {
		writeError(w, http.StatusNotFound, "unknown processor")
		return
	}
	log := logging.With(r.Context(), s.log)

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		metrics.IncWebhook(processor, "bad_request")
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	// The signature covers the exact bytes received, so it is checked before decoding.
	sig := r.Header.Get(s.signatureHeader)
	signed := s.verifier.Enabled() && sig != ""
	if signed {
		if err := s.verifier.Verify(raw, sig); err != nil {
			metrics.IncWebhook(processor, "invalid_signature")
			log.Warn().Str("remote", r.RemoteAddr).Msg("webhook signature rejected")
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		metrics.IncWebhook(processor, "bad_request")
		writeError(w, http.StatusBadRequest, "malformed json")
		return
	}
	if body.Event != eventPaymentSucceeded {
		metrics.IncWebhook(processor, "ignored")
		log.Debug().Str("event", body.Event).Msg("webhook event ignored")
		writeJSON(w, http.StatusOK, webhookReply{Status: "ignored"})
		return
	}
	if body.Object.ID == "" {
		metrics.IncWebhook(processor, "bad_request")
		writeError(w, http.StatusBadRequest, "missing object id")
		return
	}
	var amount int64
	if signed {
		if amount, err = payment.ParseAmount(body.Object.Amount.Value); err != nil {
			metrics.IncWebhook(processor, "bad_request")
			writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
	}

	eventID := s.recordDelivery(r.Context(), processor, body.Event, body.Object.ID)

	var res *usecase.ReconcileResult
	if signed {
		res, err = s.reconcile.Reconcile(r.Context(), usecase.Completion{
			Rail:              model.RailProcessor,
			LookupKey:         body.Object.ID,
			Amount:            amount,
			Currency:          body.Object.Amount.Currency,
			ExternalReference: body.Object.ID,
		})
	} else {
		log.Info().Str("object_id", body.Object.ID).Msg("unsigned webhook, confirming with the processor")
		res, err = s.reconcile.Confirm(r.Context(), model.RailProcessor, body.Object.ID)
	}
	if err != nil {
		metrics.IncWebhook(processor, "error")
		log.Error().Err(err).Str("object_id", body.Object.ID).Msg("reconciliation aborted")
		s.setDeliveryResult(r.Context(), eventID, "error")
		writeError(w, http.StatusInternalServerError, "temporary failure")
		return
	}

	outcome := string(res.Outcome)
	metrics.IncWebhook(processor, outcome)
	s.setDeliveryResult(r.Context(), eventID, outcome)
	ev := log.Info()
	if res.Reason != nil {
		ev = log.Warn().AnErr("reason", res.Reason)
	}
	ev.Str("object_id", body.Object.ID).Str("outcome", outcome).Msg("webhook reconciled")

	if !res.AlreadyCompleted() && res.Outcome != usecase.OutcomePending {
		s.notify(r.Context(), res)
	}
	writeJSON(w, http.StatusOK, webhookReply{Status: "ok", Outcome: outcome})
}

// recordDelivery writes the audit row; its failure never blocks reconciliation.
func (s *Server) recordDelivery(ctx context.Context, processor, event, objectID string) string {
	if s.events == nil {
		return ""
	}
	e := &model.WebhookEvent{
		ID:         uuid.NewString(),
		Processor:  processor,
		Event:      event,
		ObjectID:   objectID,
		Result:     "received",
		ReceivedAt: time.Now().UTC(),
	}
	fresh, err := s.events.Record(ctx, repository.NoTX, e)
	if err != nil {
		s.log.Warn().Err(err).Str("object_id", objectID).Msg("webhook audit write failed")
		return ""
	}
	if !fresh {
		metrics.IncWebhookRedelivery(processor)
		s.log.Info().Str("object_id", objectID).Msg("webhook redelivery")
		return ""
	}
	return e.ID
}

func (s *Server) setDeliveryResult(ctx context.Context, id, result string) {
	if id == "" {
		return
	}
	if err := s.events.SetResult(ctx, repository.NoTX, id, result); err != nil {
		s.log.Warn().Err(err).Str("event_id", id).Msg("webhook audit update failed")
	}
}

// notify hands the settlement to the worker pool; the request context is gone by the time it runs.
func (s *Server) notify(reqCtx context.Context, res *usecase.ReconcileResult) {
	if s.notifier == nil || s.pool == nil || res.Payment == nil {
		return
	}
	tid := logging.TraceIDFrom(reqCtx)
	if err := s.pool.Submit(func(ctx context.Context) error {
		ctx = logging.WithTraceID(ctx, tid)
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return s.notifier.Settled(ctx, res)
	}); err != nil {
		s.log.Warn().Err(err).Str("payment_id", res.Payment.ID).Msg("settlement notification dropped")
	}
}
