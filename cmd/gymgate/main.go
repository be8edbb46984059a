package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dayobello/gymgate/internal/backup"
	"github.com/dayobello/gymgate/internal/database"
	"github.com/dayobello/gymgate/internal/email"
	"github.com/dayobello/gymgate/internal/gateway"
	"github.com/dayobello/gymgate/internal/logging"
	"github.com/dayobello/gymgate/internal/server"
	"github.com/dayobello/gymgate/internal/store"
)

func main() {
	logger := logging.Setup(os.Getenv("GYMGATE_LOG_LEVEL"))

	port := os.Getenv("GYMGATE_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("GYMGATE_DB_PATH")
	if dbPath == "" {
		dbPath = "gymgate.db"
	}

	baseURL := os.Getenv("GYMGATE_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + port
	}

	tzName := os.Getenv("GYMGATE_TIMEZONE")
	if tzName == "" {
		tzName = "Africa/Lagos"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		slog.Error("invalid timezone", "timezone", tzName, "error", err)
		os.Exit(1)
	}

	reminderHour := 8
	if v := os.Getenv("GYMGATE_REMINDER_HOUR"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h >= 0 && h <= 23 {
			reminderHour = h
		}
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(os.Getenv("GYMGATE_POSTMARK_TOKEN"), os.Getenv("GYMGATE_FROM_EMAIL"))

	cfg := server.Config{
		BaseURL:      baseURL,
		Timezone:     loc,
		ReminderHour: reminderHour,
		SecureCookie: os.Getenv("GYMGATE_SECURE_COOKIE") == "true",
		Gateway: gateway.Config{
			SecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		},
		Backup: backup.Config{
			DBPath: dbPath,
			S3: backup.S3Config{
				Endpoint:  os.Getenv("GYMGATE_S3_ENDPOINT"),
				Bucket:    os.Getenv("GYMGATE_S3_BUCKET"),
				Region:    os.Getenv("GYMGATE_S3_REGION"),
				AccessKey: os.Getenv("GYMGATE_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("GYMGATE_S3_SECRET_KEY"),
			},
		},
		EmailClient: emailClient,
	}

	srv := server.New(db, cfg, logger)

	if err := bootstrapAdmin(srv.MemberStore()); err != nil {
		slog.Error("bootstrap admin", "error", err)
		os.Exit(1)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	srv.Scheduler().Start(rootCtx)
	srv.BackupManager().Start(rootCtx)

	// Expired-session cleanup
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-rootCtx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      45 * time.Second, // verify path waits on the gateway
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("gymgate starting", "addr", ":"+port, "timezone", tzName)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	rootCancel()
	srv.Scheduler().Stop()
	srv.BackupManager().Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// bootstrapAdmin creates the initial admin account from the environment if
// it does not exist yet.
func bootstrapAdmin(members *store.MemberStore) error {
	adminEmail := os.Getenv("GYMGATE_ADMIN_EMAIL")
	adminPassword := os.Getenv("GYMGATE_ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	existing, err := members.GetByEmail(adminEmail)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := members.CreateAdmin(adminEmail, "Administrator", string(hash)); err != nil {
		return err
	}
	slog.Info("admin account created", "email", adminEmail)
	return nil
}
