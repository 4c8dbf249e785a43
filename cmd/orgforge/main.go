package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/orgforge/internal/adapter/driven/github"
	"github.com/ericfisherdev/orgforge/internal/adapter/driven/salesforce"
	sqliteadapter "github.com/ericfisherdev/orgforge/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/orgforge/internal/adapter/driving/http"
	"github.com/ericfisherdev/orgforge/internal/adapter/driving/ws"
	"github.com/ericfisherdev/orgforge/internal/application"
	"github.com/ericfisherdev/orgforge/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"sf_login_url", cfg.SFLoginURL,
		"job_workers", cfg.JobWorkers,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire stores.
	repoStore := sqliteadapter.NewRepositoryStore(db)
	projectStore := sqliteadapter.NewProjectStore(db)
	taskStore := sqliteadapter.NewTaskStore(db)
	orgStore := sqliteadapter.NewScratchOrgStore(db)

	// 6. Wire driven adapters.
	ghClient := githubadapter.NewClient(cfg.GitHubToken)
	sfClient := salesforce.NewClient(cfg.SFLoginURL, cfg.SFClientID, cfg.SFClientSecret)
	provisioner := salesforce.NewProvisioner(sfClient, cfg.DevHub())
	metadataAPI := salesforce.NewMetadataAPI(sfClient)

	// 7. Start the websocket hub; it is the Notifier behind every finalize.
	visibility := ws.NewStoreVisibility(repoStore, projectStore, taskStore, orgStore)
	hub := ws.NewHub(visibility)
	go hub.Run(ctx)

	// 8. Wire application services around a shared finalizer and job queue.
	finalizer := application.NewFinalizer(repoStore, projectStore, taskStore, orgStore, hub)
	queue := application.NewJobQueue(cfg.JobWorkers, cfg.JobBuffer)
	queue.Start(ctx)

	orgSvc := application.NewOrgService(
		repoStore, projectStore, taskStore, orgStore,
		ghClient, provisioner, metadataAPI,
		finalizer, queue,
		cfg.BranchPrefix, cfg.DevFlow, cfg.QAFlow,
	)
	reviewSvc := application.NewReviewService(
		repoStore, projectStore, taskStore, orgStore,
		ghClient, finalizer, queue, orgSvc,
	)
	syncSvc := application.NewSyncService(
		repoStore, taskStore, ghClient, finalizer, queue, orgSvc,
	)

	// 9. HTTP handler with the websocket endpoint mounted alongside the API.
	apiHandler := httphandler.NewHandler(
		repoStore, projectStore, taskStore, orgStore,
		orgSvc, reviewSvc, syncSvc, slog.Default(),
	)
	handler := httphandler.NewServeMux(apiHandler, ws.ServeWS(hub), slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("orgforge started", "listen_addr", cfg.ListenAddr)

	// 10. Wait for shutdown signal, then drain.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// Workers exit when ctx is canceled; wait so in-flight jobs finalize.
	queue.Wait()

	slog.Info("shutdown complete")
	return nil
}
