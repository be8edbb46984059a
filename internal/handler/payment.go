package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/dayobello/gymgate/internal/gateway"
	"github.com/dayobello/gymgate/internal/model"
	"github.com/dayobello/gymgate/internal/payment"
	"github.com/dayobello/gymgate/internal/store"
)

type PaymentHandler struct {
	engine  *payment.Engine
	members *store.MemberStore
	gateway *gateway.Client
	baseURL string
	logger  *slog.Logger
}

func NewPaymentHandler(engine *payment.Engine, members *store.MemberStore, gw *gateway.Client, baseURL string, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		engine:  engine,
		members: members,
		gateway: gw,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Initialize starts a hosted-gateway payment: a pending attempt is recorded
// and the member is redirected to the gateway's authorization URL.
func (h *PaymentHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID     int64  `json:"member_id"`
		PlanCode     string `json:"plan_code"`
		TrainerAddon bool   `json:"trainer_addon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	member, err := h.members.GetByID(req.MemberID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if member == nil {
		http.Error(w, "member not found", http.StatusNotFound)
		return
	}

	planCode := req.PlanCode
	if planCode == "" {
		planCode = member.PlanCode
	}
	plan, ok := model.PlanByCode(planCode)
	if !ok {
		http.Error(w, "unknown plan", http.StatusBadRequest)
		return
	}

	reference := payment.NewReference()
	amount := plan.TotalMinor(req.TrainerAddon)

	authURL, err := h.gateway.Initialize(r.Context(), member.Email, amount, reference, h.baseURL+"/payment/callback")
	if err != nil {
		h.logger.Error("initialize transaction", "member_id", member.ID, "error", err)
		respondError(w, http.StatusBadGateway, "gateway_unavailable", err)
		return
	}

	// Record the pending attempt with its amount/plan/duration snapshot so
	// the webhook can reconcile from the reference alone.
	if _, err := h.engine.CreatePending(payment.Params{
		Reference:    reference,
		MemberID:     member.ID,
		AmountMinor:  amount,
		PlanCode:     plan.Code,
		DurationDays: plan.DurationDays,
		TrainerAddon: req.TrainerAddon,
	}); err != nil {
		h.logger.Error("create pending attempt", "reference", reference, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"reference":         reference,
		"authorization_url": authURL,
		"amount_minor":      amount,
	})
}

// Verify is the client-driven confirmation path: the browser lands back from
// the gateway and asks us to verify the reference.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reference    string `json:"reference"`
		MemberID     int64  `json:"member_id"`
		PlanCode     string `json:"plan_code"`
		TrainerAddon bool   `json:"trainer_addon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Reference == "" {
		http.Error(w, "reference is required", http.StatusBadRequest)
		return
	}

	result, err := h.engine.Reconcile(r.Context(), payment.Params{
		Reference:    req.Reference,
		MemberID:     req.MemberID,
		PlanCode:     req.PlanCode,
		TrainerAddon: req.TrainerAddon,
	})
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Webhook is the gateway-driven confirmation path. It routes into the same
// reconcile entry point as Verify; the idempotence guard makes the two paths
// race-safe.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if !h.gateway.ValidSignature(body, r.Header.Get("X-Paystack-Signature")) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if event.Event != "charge.success" || event.Data.Reference == "" {
		// Not a payment confirmation; acknowledge and move on.
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := h.engine.Reconcile(r.Context(), payment.Params{Reference: event.Data.Reference}); err != nil {
		// The gateway retries on non-2xx. Let it retry transient failures;
		// terminal outcomes are acknowledged so retries stop.
		h.logger.Warn("webhook reconcile", "reference", event.Data.Reference, "error", err)
		if isTerminal(err) {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "reconcile failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func isTerminal(err error) bool {
	return errorIsAny(err, payment.ErrPaymentFailed, payment.ErrAmountMismatch, payment.ErrInvalidInput, payment.ErrMemberNotFound)
}

// Cash records an operator-attested cash payment. Admin only.
func (h *PaymentHandler) Cash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID     int64  `json:"member_id"`
		PlanCode     string `json:"plan_code"`
		TrainerAddon bool   `json:"trainer_addon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	result, err := h.engine.RecordCashPayment(r.Context(), payment.Params{
		MemberID:     req.MemberID,
		PlanCode:     req.PlanCode,
		TrainerAddon: req.TrainerAddon,
	})
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
