package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dayobello/gymgate/internal/attendance"
	"github.com/dayobello/gymgate/internal/backup"
	"github.com/dayobello/gymgate/internal/email"
	"github.com/dayobello/gymgate/internal/gateway"
	"github.com/dayobello/gymgate/internal/handler"
	"github.com/dayobello/gymgate/internal/middleware"
	"github.com/dayobello/gymgate/internal/payment"
	"github.com/dayobello/gymgate/internal/reminder"
	"github.com/dayobello/gymgate/internal/scheduler"
	"github.com/dayobello/gymgate/internal/store"
	"github.com/dayobello/gymgate/internal/sweep"
	ws "github.com/dayobello/gymgate/internal/websocket"
)

type Config struct {
	BaseURL      string
	Timezone     *time.Location
	ReminderHour int
	SecureCookie bool
	Gateway      gateway.Config
	Backup       backup.Config
	EmailClient  *email.Client
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	memberH       *handler.MemberHandler
	paymentH      *handler.PaymentHandler
	attendanceH   *handler.AttendanceHandler
	adminH        *handler.AdminHandler
	authH         *handler.AuthHandler
	memberStore   *store.MemberStore
	sessionStore  *store.SessionStore
	rateLimiter   *middleware.RateLimiter
	scheduler     *scheduler.Scheduler
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	memberStore := store.NewMemberStore(db)
	paymentStore := store.NewPaymentStore(db)
	attendanceStore := store.NewAttendanceStore(db)
	reminderLogStore := store.NewReminderLogStore(db)
	sessionStore := store.NewSessionStore(db)

	gatewayClient := gateway.NewClient(cfg.Gateway)

	// Receipts are best-effort; skip them entirely when email is not set up.
	var receipts payment.ReceiptSender
	if cfg.EmailClient != nil && cfg.EmailClient.Configured() {
		receipts = cfg.EmailClient
	}

	reconciler := payment.NewEngine(memberStore, paymentStore, gatewayClient, hub, receipts, logger.With("component", "payment"))
	attendanceEngine := attendance.NewEngine(memberStore, attendanceStore, hub, cfg.Timezone, logger.With("component", "attendance"))
	sweeper := sweep.New(memberStore, logger.With("component", "sweep"))
	reminderEngine := reminder.NewEngine(memberStore, reminderLogStore, cfg.EmailClient, logger.With("component", "reminder"))
	sched := scheduler.New(sweeper, reminderEngine, cfg.ReminderHour, logger.With("component", "scheduler"))
	backupMgr := backup.NewManager(cfg.Backup, logger.With("component", "backup"))

	return &Server{
		db:            db,
		hub:           hub,
		memberH:       handler.NewMemberHandler(memberStore, paymentStore, logger.With("component", "member_handler")),
		paymentH:      handler.NewPaymentHandler(reconciler, memberStore, gatewayClient, cfg.BaseURL, logger.With("component", "payment_handler")),
		attendanceH:   handler.NewAttendanceHandler(attendanceEngine, attendanceStore, cfg.Timezone, logger.With("component", "attendance_handler")),
		adminH:        handler.NewAdminHandler(sched, reminderEngine, backupMgr, logger.With("component", "admin_handler")),
		authH:         handler.NewAuthHandler(memberStore, sessionStore, cfg.SecureCookie, logger.With("component", "auth_handler")),
		memberStore:   memberStore,
		sessionStore:  sessionStore,
		rateLimiter:   middleware.NewRateLimiter(),
		scheduler:     sched,
		backupManager: backupMgr,
		logger:        logger,
	}
}

// Scheduler returns the background job scheduler for lifecycle management.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// BackupManager returns the backup manager for lifecycle management.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// SessionStore returns the session store for periodic cleanup.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// MemberStore returns the member store, used at startup for admin bootstrap.
func (s *Server) MemberStore() *store.MemberStore {
	return s.memberStore
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	adminMw := middleware.RequireAdmin(s.sessionStore, s.memberStore)
	loginLimit := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute)

	// Public
	mux.HandleFunc("GET /health", s.healthCheck)
	mux.Handle("POST /login", loginLimit(http.HandlerFunc(s.authH.Login)))
	mux.HandleFunc("POST /logout", s.authH.Logout)
	mux.HandleFunc("GET /api/plans", s.memberH.Plans)
	mux.HandleFunc("POST /api/members", s.memberH.Register)

	// Payment flows. The webhook authenticates with its signature.
	mux.HandleFunc("POST /api/payments/initialize", s.paymentH.Initialize)
	mux.HandleFunc("POST /api/payments/verify", s.paymentH.Verify)
	mux.HandleFunc("POST /webhooks/paystack", s.paymentH.Webhook)

	// Front-desk attendance
	mux.HandleFunc("POST /api/attendance/checkin", s.attendanceH.CheckIn)
	mux.HandleFunc("POST /api/attendance/checkout", s.attendanceH.CheckOut)

	// Admin
	mux.Handle("GET /api/members", adminMw(http.HandlerFunc(s.memberH.List)))
	mux.Handle("GET /api/members/{id}", adminMw(http.HandlerFunc(s.memberH.Get)))
	mux.Handle("GET /api/members/{id}/attendance", adminMw(http.HandlerFunc(s.attendanceH.History)))
	mux.Handle("GET /api/attendance/today", adminMw(http.HandlerFunc(s.attendanceH.Today)))
	mux.Handle("POST /api/payments/cash", adminMw(http.HandlerFunc(s.paymentH.Cash)))
	mux.Handle("POST /api/admin/sweep", adminMw(http.HandlerFunc(s.adminH.RunSweep)))
	mux.Handle("GET /api/admin/reminders/preview", adminMw(http.HandlerFunc(s.adminH.PreviewReminders)))
	mux.Handle("POST /api/admin/reminders/run", adminMw(http.HandlerFunc(s.adminH.RunReminders)))
	mux.Handle("POST /api/admin/reminders/{id}/send", adminMw(http.HandlerFunc(s.adminH.SendReminder)))
	mux.Handle("GET /api/admin/backup", adminMw(http.HandlerFunc(s.adminH.BackupStatus)))
	mux.Handle("POST /api/admin/backup", adminMw(http.HandlerFunc(s.adminH.RunBackup)))
	mux.Handle("GET /ws", adminMw(ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"))))

	logMw := middleware.RequestLogger(s.logger.With("component", "http"))
	return logMw(mux)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		http.Error(w, "db unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
