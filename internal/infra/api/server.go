package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/logging"
	"telegram-vpn-subscription/internal/infra/worker"
	"telegram-vpn-subscription/internal/usecase"
)

// Verifier checks a webhook body against its signature header value.
type Verifier interface {
	Verify(body []byte, signature string) error
	// Enabled is false when no secret is configured and Verify accepts anything.
	Enabled() bool
}

// TaskQueue accepts background work; *worker.Pool satisfies it.
type TaskQueue interface {
	Submit(task worker.Task) error
}

type Deps struct {
	Reconcile usecase.ReconcileUseCase
	Promos    usecase.PromoUseCase
	Referrals usecase.ReferralUseCase
	Notifier  usecase.NotificationUseCase
	Events    repository.WebhookEventRepository
	Verifier  Verifier
	Auth      *AuthManager
	Pool      TaskQueue

	// Processor is the {processor} path segment accepted by the webhook route.
	Processor       string
	SignatureHeader string
	RequestTimeout  time.Duration
}

// Server exposes the processor webhook, health, metrics and the admin API.
type Server struct {
	reconcile       usecase.ReconcileUseCase
	promos          usecase.PromoUseCase
	referrals       usecase.ReferralUseCase
	notifier        usecase.NotificationUseCase
	events          repository.WebhookEventRepository
	verifier        Verifier
	auth            *AuthManager
	pool            TaskQueue
	processor       string
	signatureHeader string
	timeout         time.Duration
	log             *zerolog.Logger
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	if d.SignatureHeader == "" {
		d.SignatureHeader = "X-Signature"
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	compLog := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		reconcile:       d.Reconcile,
		promos:          d.Promos,
		referrals:       d.Referrals,
		notifier:        d.Notifier,
		events:          d.Events,
		verifier:        d.Verifier,
		auth:            d.Auth,
		pool:            d.Pool,
		processor:       d.Processor,
		signatureHeader: d.SignatureHeader,
		timeout:         d.RequestTimeout,
		log:             &compLog,
	}
}

// Register attaches every route to r.
func (s *Server) Register(r chi.Router) {
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log), Timeout(s.timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if s.verifier != nil && s.processor != "" {
		r.Post("/webhook/{processor}", s.handleWebhook)
	}

	if s.auth != nil {
		r.Route("/admin", func(ar chi.Router) {
			ar.Use(s.auth.RequireAdmin)
			ar.Post("/promo-codes", s.createPromo)
			ar.Get("/promo-codes", s.listPromos)
			ar.Get("/payments/{id}", s.getPayment)
			ar.Post("/payments/{id}/check", s.checkPayment)
			ar.Post("/referrals/{userID}/credit", s.creditReferral)
		})
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

// Run serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", port).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	l := logging.With(r.Context(), s.log)
	l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
