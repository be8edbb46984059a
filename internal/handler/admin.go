package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dayobello/gymgate/internal/backup"
	"github.com/dayobello/gymgate/internal/reminder"
	"github.com/dayobello/gymgate/internal/scheduler"
)

// AdminHandler exposes the "run now" controls and job previews.
type AdminHandler struct {
	scheduler *scheduler.Scheduler
	reminders *reminder.Engine
	backups   *backup.Manager
	logger    *slog.Logger
}

func NewAdminHandler(sched *scheduler.Scheduler, reminders *reminder.Engine, backups *backup.Manager, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		scheduler: sched,
		reminders: reminders,
		backups:   backups,
		logger:    logger,
	}
}

// RunSweep triggers the membership lifecycle sweep immediately.
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.RunSweepNow()
	if err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, "already_running", err)
			return
		}
		h.logger.Error("manual sweep", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// RunReminders triggers the reminder sweep immediately.
func (h *AdminHandler) RunReminders(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.RunRemindersNow()
	if err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, "already_running", err)
			return
		}
		h.logger.Error("manual reminder sweep", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// PreviewReminders returns the members currently in a reminder bucket
// without sending anything.
func (h *AdminHandler) PreviewReminders(w http.ResponseWriter, r *http.Request) {
	previews, err := h.reminders.Preview()
	if err != nil {
		h.logger.Error("reminder preview", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, previews)
}

// SendReminder dispatches a reminder to one member, bypassing the bucket
// check.
func (h *AdminHandler) SendReminder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid member id", http.StatusBadRequest)
		return
	}

	if err := h.reminders.SendSingle(id); err != nil {
		if errors.Is(err, reminder.ErrNoDueDate) {
			respondError(w, http.StatusConflict, "no_due_date", err)
			return
		}
		h.logger.Error("send single reminder", "member_id", id, "error", err)
		respondError(w, http.StatusBadGateway, "send_failed", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// BackupStatus reports the backup manager state.
func (h *AdminHandler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.backups.Status())
}

// RunBackup uploads a database snapshot immediately.
func (h *AdminHandler) RunBackup(w http.ResponseWriter, r *http.Request) {
	if !h.backups.Enabled() {
		respondError(w, http.StatusConflict, "backup_disabled", errors.New("backup is not configured"))
		return
	}
	if err := h.backups.RunNow(r.Context()); err != nil {
		h.logger.Error("manual backup", "error", err)
		http.Error(w, "backup failed", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, h.backups.Status())
}
