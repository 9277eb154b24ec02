package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/usecase"
)

type PromoCode struct {
	Code            string     `json:"code"`
	DiscountPercent int        `json:"discount_percent"`
	BonusDays       int        `json:"bonus_days"`
	MaxUses         int        `json:"max_uses"`
	UsesCount       int        `json:"uses_count"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toPromoDTO(p *model.PromoCode) PromoCode {
	return PromoCode{
		Code:            p.Code,
		DiscountPercent: p.DiscountPercent,
		BonusDays:       p.BonusDays,
		MaxUses:         p.MaxUses,
		UsesCount:       p.UsesCount,
		ExpiresAt:       p.ExpiresAt,
		CreatedAt:       p.CreatedAt,
	}
}

type Payment struct {
	ID                   string     `json:"id"`
	UserID               int64      `json:"user_id"`
	Rail                 string     `json:"rail"`
	LookupKey            string     `json:"lookup_key"`
	Amount               int64      `json:"amount"`
	Currency             string     `json:"currency"`
	EntitlementMonths    int        `json:"entitlement_months"`
	EntitlementDays      int        `json:"entitlement_days"`
	PromoCode            *string    `json:"promo_code,omitempty"`
	Status               string     `json:"status"`
	ProvisionedAccountID *string    `json:"provisioned_account_id,omitempty"`
	FailureReason        *string    `json:"failure_reason,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func toPaymentDTO(p *model.Payment) Payment {
	return Payment{
		ID:                   p.ID,
		UserID:               p.UserID,
		Rail:                 string(p.Rail),
		LookupKey:            p.LookupKey,
		Amount:               p.Amount,
		Currency:             p.Currency,
		EntitlementMonths:    p.EntitlementMonths,
		EntitlementDays:      p.EntitlementDays,
		PromoCode:            p.PromoCode,
		Status:               string(p.Status),
		ProvisionedAccountID: p.ProvisionedAccountID,
		FailureReason:        p.FailureReason,
		CreatedAt:            p.CreatedAt,
		CompletedAt:          p.CompletedAt,
	}
}

type reconcileReply struct {
	Outcome string   `json:"outcome"`
	Reason  string   `json:"reason,omitempty"`
	Payment *Payment `json:"payment,omitempty"`
}

type creditReply struct {
	Credited   bool       `json:"credited"`
	ReferrerID int64      `json:"referrer_id,omitempty"`
	BonusDays  int        `json:"bonus_days,omitempty"`
	NewExpiry  *time.Time `json:"new_expiry,omitempty"`
}

func (s *Server) createPromo(w http.ResponseWriter, r *http.Request) {
	var req usecase.CreatePromoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	p, err := s.promos.Create(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "promo code already exists")
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPromoDTO(p))
}

func (s *Server) listPromos(w http.ResponseWriter, r *http.Request) {
	list, err := s.promos.List(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	items := make([]PromoCode, 0, len(list))
	for _, p := range list {
		items = append(items, toPromoDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.reconcile.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrPaymentNotFound) {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

// checkPayment polls the processor for a pending payment and settles it if it resolved.
func (s *Server) checkPayment(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconcile.CheckStatus(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "payment not found")
		return
	case errors.Is(err, domain.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "processor unavailable")
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}
	reply := reconcileReply{Outcome: string(res.Outcome)}
	if res.Reason != nil {
		reply.Reason = res.Reason.Error()
	}
	if res.Payment != nil {
		dto := toPaymentDTO(res.Payment)
		reply.Payment = &dto
	}
	if res.Outcome == usecase.OutcomeProvisioned {
		s.notify(r.Context(), res)
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) creditReferral(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	credit, err := s.referrals.CreditIfEligible(r.Context(), userID)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		writeError(w, http.StatusConflict, "credit already in progress")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if credit == nil {
		writeJSON(w, http.StatusOK, creditReply{})
		return
	}
	expiry := credit.NewExpiry
	writeJSON(w, http.StatusOK, creditReply{Credited: true, ReferrerID: credit.ReferrerID, BonusDays: credit.BonusDays, NewExpiry: &expiry})
}
