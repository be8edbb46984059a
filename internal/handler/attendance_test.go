package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dayobello/gymgate/internal/attendance"
	"github.com/dayobello/gymgate/internal/database"
	"github.com/dayobello/gymgate/internal/model"
	"github.com/dayobello/gymgate/internal/store"
)

func setupAttendanceHandler(t *testing.T) (*AttendanceHandler, *store.MemberStore, *store.AttendanceStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ms := store.NewMemberStore(db)
	as := store.NewAttendanceStore(db)
	engine := attendance.NewEngine(ms, as, nil, time.UTC, discardLogger())
	return NewAttendanceHandler(engine, as, time.UTC, discardLogger()), ms, as
}

func TestMemberAttendanceHistory(t *testing.T) {
	h, ms, as := setupAttendanceHandler(t)

	plan, _ := model.PlanByCode("weekly")
	m, err := ms.Create("ada@example.com", "Ada", "100000000001", plan)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	checkIn := time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC)
	for day := 0; day < 3; day++ {
		when := checkIn.Add(time.Duration(day) * 24 * time.Hour)
		if _, err := as.CheckIn(m.ID, when.Format("2006-01-02"), when); err != nil {
			t.Fatalf("check in day %d: %v", day, err)
		}
		as.CloseOpen(m.ID, when.Format("2006-01-02"), when.Add(time.Hour))
	}

	req := httptest.NewRequest("GET", "/api/members/1/attendance", nil)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()
	h.History(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		MemberID int64                     `json:"member_id"`
		Records  []*model.AttendanceRecord `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.MemberID != m.ID {
		t.Errorf("member_id = %d, want %d", resp.MemberID, m.ID)
	}
	if len(resp.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(resp.Records))
	}
	if resp.Records[0].Date != "2026-03-12" {
		t.Errorf("first record = %s, want the newest day", resp.Records[0].Date)
	}
}

func TestMemberAttendanceHistoryLimit(t *testing.T) {
	h, ms, as := setupAttendanceHandler(t)

	plan, _ := model.PlanByCode("weekly")
	m, _ := ms.Create("ada@example.com", "Ada", "100000000001", plan)

	checkIn := time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC)
	for day := 0; day < 3; day++ {
		when := checkIn.Add(time.Duration(day) * 24 * time.Hour)
		as.CheckIn(m.ID, when.Format("2006-01-02"), when)
		as.CloseOpen(m.ID, when.Format("2006-01-02"), when.Add(time.Hour))
	}

	req := httptest.NewRequest("GET", "/api/members/1/attendance?limit=2", nil)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()
	h.History(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Records []*model.AttendanceRecord `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Records) != 2 {
		t.Errorf("records = %d, want 2", len(resp.Records))
	}
}

func TestMemberAttendanceHistoryBadID(t *testing.T) {
	h, _, _ := setupAttendanceHandler(t)

	req := httptest.NewRequest("GET", "/api/members/abc/attendance", nil)
	req.SetPathValue("id", "abc")
	w := httptest.NewRecorder()
	h.History(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
