package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dayobello/gymgate/internal/model"
	"github.com/dayobello/gymgate/internal/store"
)

type MemberHandler struct {
	members  *store.MemberStore
	payments *store.PaymentStore
	logger   *slog.Logger
}

func NewMemberHandler(members *store.MemberStore, payments *store.PaymentStore, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: members, payments: payments, logger: logger}
}

// Register creates a new member in pending state and assigns their barcode.
func (h *MemberHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		PlanCode string `json:"plan_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" {
		http.Error(w, "email and name are required", http.StatusBadRequest)
		return
	}

	plan, ok := model.PlanByCode(req.PlanCode)
	if !ok {
		http.Error(w, "unknown plan", http.StatusBadRequest)
		return
	}

	existing, err := h.members.GetByEmail(req.Email)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "email already registered", http.StatusConflict)
		return
	}

	barcode, err := model.NewBarcode()
	if err != nil {
		h.logger.Error("generate barcode", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	member, err := h.members.Create(req.Email, req.Name, barcode, plan)
	if err != nil {
		h.logger.Error("create member", "email", req.Email, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("member registered", "member_id", member.ID, "plan", plan.Code)
	respondJSON(w, http.StatusCreated, member)
}

// Get returns one member with their payment history.
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid member id", http.StatusBadRequest)
		return
	}

	member, err := h.members.GetByID(id)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if member == nil {
		http.Error(w, "member not found", http.StatusNotFound)
		return
	}

	payments, err := h.payments.ListByMember(id)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"member":   member,
		"payments": payments,
	})
}

// List returns all members, optionally filtered by account status.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	var members []*model.Member
	var err error
	if status != "" {
		members, err = h.members.ListByStatus(model.AccountStatus(status))
	} else {
		members, err = h.members.List()
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, members)
}

// Plans returns the plan catalog.
func (h *MemberHandler) Plans(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, model.Plans())
}
