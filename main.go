package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreybb/signet/api"
	"github.com/coreybb/signet/coverage"
	"github.com/coreybb/signet/datastore"
	"github.com/coreybb/signet/githubapp"
	"github.com/coreybb/signet/notify"
	rh "github.com/coreybb/signet/route-handlers"
	"github.com/coreybb/signet/storage"
	"github.com/coreybb/signet/webhooks"
	_ "github.com/lib/pq"
	"github.com/spf13/afero"
)

const (
	dbPingTimeout     = 5 * time.Second
	migrateTimeout    = 30 * time.Second
	shutdownTimeout   = 15 * time.Second
	dbMaxOpenConns    = 25
	dbMaxIdleConns    = 25
	dbConnMaxLifetime = 5 * time.Minute
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}

	db, err := setupDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), migrateTimeout)
	err = datastore.Migrate(migrateCtx, db)
	cancelMigrate()
	if err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	projectRepo := datastore.NewProjectRepository(db)
	repositoryRepo := datastore.NewRepositoryRepository(db)
	companyRepo := datastore.NewCompanyRepository(db)
	userRepo := datastore.NewUserRepository(db)
	signatureRepo := datastore.NewSignatureRepository(db)
	approvalRequestRepo := datastore.NewApprovalRequestRepository(db)
	notificationRepo := datastore.NewNotificationRepository(db)
	eventRepo := datastore.NewEventRepository(db)

	documents := storage.NewFileDocumentStore(afero.NewOsFs(), cfg.StoragePath)
	checker := coverage.NewChecker(userRepo, signatureRepo, cfg.MatcherCacheTTL)
	notifier := notify.NewService(emailSender(cfg), notificationRepo, cfg.BaseURL)

	handlers := api.Handlers{
		Projects:      rh.NewProjectHandler(projectRepo, repositoryRepo, signatureRepo, eventRepo),
		Companies:     rh.NewCompanyHandler(companyRepo, eventRepo),
		Users:         rh.NewUserHandler(userRepo),
		Signatures:    rh.NewSignatureHandler(signatureRepo, projectRepo, userRepo, companyRepo, documents, eventRepo),
		ApprovalLists: rh.NewApprovalListHandler(signatureRepo, checker, eventRepo),
		ApprovalRequests: rh.NewApprovalRequestHandler(
			approvalRequestRepo,
			signatureRepo,
			projectRepo,
			companyRepo,
			userRepo,
			checker,
			notifier,
			eventRepo,
		),
		Events: rh.NewEventHandler(eventRepo),
	}

	signer, err := appSigner(cfg)
	if err != nil {
		log.Fatalf("GitHub App setup failed: %v", err)
	}
	if signer != nil {
		client := githubapp.NewClient(signer, cfg.GitHubAPIURL, nil)
		handlers.GitHub = webhooks.NewGitHubHandler(cfg.GitHubWebhookSecret, repositoryRepo, client, checker, cfg.SignURL)
	}

	startServer(cfg.Port, api.SetupRoutes(handlers, cfg.AdminToken))
}

func setupDatabase(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbMaxOpenConns)
	db.SetMaxIdleConns(dbMaxIdleConns)
	db.SetConnMaxLifetime(dbConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close() // Close unusable connection pool
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection successful")
	return db, nil
}

func startServer(port string, router http.Handler) {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownSignal // Block until signal received
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}
