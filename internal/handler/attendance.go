package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dayobello/gymgate/internal/attendance"
	"github.com/dayobello/gymgate/internal/store"
)

const defaultHistoryLimit = 30

type AttendanceHandler struct {
	engine  *attendance.Engine
	records *store.AttendanceStore
	loc     *time.Location
	logger  *slog.Logger
}

func NewAttendanceHandler(engine *attendance.Engine, records *store.AttendanceStore, loc *time.Location, logger *slog.Logger) *AttendanceHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceHandler{engine: engine, records: records, loc: loc, logger: logger}
}

// CheckIn opens a session for the scanned barcode.
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Barcode string `json:"barcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Barcode == "" {
		http.Error(w, "barcode is required", http.StatusBadRequest)
		return
	}

	result, err := h.engine.CheckIn(req.Barcode)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// CheckOut closes the member's open session for today.
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID int64 `json:"member_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	result, err := h.engine.CheckOut(req.MemberID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// History returns a member's recent attendance records, newest first.
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid member id", http.StatusBadRequest)
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
			limit = n
		}
	}

	records, err := h.records.ListForMember(id, limit)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"member_id": id,
		"records":   records,
	})
}

// Today lists all attendance records for the current day.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	date := time.Now().In(h.loc).Format("2006-01-02")
	records, err := h.records.ListForDay(date)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":    date,
		"records": records,
	})
}
