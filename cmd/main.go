package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"albumshare/internal/auth"
	"albumshare/internal/config"
	"albumshare/internal/handler"
	"albumshare/internal/logging"
	"albumshare/internal/metrics"
	"albumshare/internal/repository"
	"albumshare/internal/service"
	"albumshare/internal/service/s3"
)

const (
	connectAttempts = 5
	connectDelay    = 5 * time.Second
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "albumshare",
		Short:         "Shared-album media ingestion and storage quota service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", ".app.env", "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and gRPC health listener",
		RunE:  runServe,
	})

	var reconcileUser string
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute used bytes from registered media",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd.Context(), reconcileUser)
		},
	}
	reconcileCmd.Flags().StringVarP(&reconcileUser, "user", "u", "", "reconcile a single user (default: all)")
	rootCmd.AddCommand(reconcileCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateDatabase(); err != nil {
				return err
			}
			if err := repository.RunMigrations(&cfg.Database); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	db, err := repository.Connect(ctx, &cfg.Database, connectAttempts, connectDelay)
	if err != nil {
		return nil, err
	}
	if err := repository.RunMigrations(&cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func runReconcile(ctx context.Context, userID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	quota := service.NewQuotaService(
		repository.NewQuotaRepository(db, cfg.Limits.DefaultQuotaBytes),
		logging.Component("quota"),
	)
	job := service.NewReconcileJob(quota, metrics.New(prometheus.NewRegistry()), logging.Component("reconcile"))

	if userID != "" {
		res, err := job.RunForUser(ctx, userID)
		if err != nil {
			return err
		}
		log.Info().Str("user_id", res.UserID).
			Int64("before_bytes", res.Before).
			Int64("after_bytes", res.After).
			Int64("drift_bytes", res.Drift()).
			Msg("user reconciled")
		return nil
	}

	results, err := job.RunAll(ctx)
	var drifted int
	for _, r := range results {
		if r.Drift() != 0 {
			drifted++
		}
	}
	log.Info().Int("reconciled", len(results)).Int("drifted", drifted).Msg("reconciliation finished")
	return err
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	s3Client, err := s3.NewClient(ctx, &cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	quotaRepo := repository.NewQuotaRepository(db, cfg.Limits.DefaultQuotaBytes)
	mediaRepo := repository.NewMediaRepository(db)
	memberRepo := repository.NewMembershipRepository(db)

	quotaService := service.NewQuotaService(quotaRepo, logging.Component("quota"))
	limits := service.Limits{
		ImageMaxBytes: cfg.Limits.ImageMaxBytes,
		VideoMaxBytes: cfg.Limits.VideoMaxBytes,
	}
	uploadService := service.NewUploadService(quotaService, memberRepo, s3Client, limits, m, logging.Component("uploads"))
	mediaService := service.NewMediaService(mediaRepo, quotaService, memberRepo, s3Client, limits, m, logging.Component("media"))
	reconcileJob := service.NewReconcileJob(quotaService, m, logging.Component("reconcile"))

	httpLog := logging.Component("http")
	router := handler.NewRouter(handler.RouterDeps{
		Uploads:  handler.NewUploadHandler(uploadService, mediaService, httpLog),
		Media:    handler.NewMediaHandler(mediaService, httpLog),
		Quota:    handler.NewQuotaHandler(quotaService, reconcileJob, httpLog),
		Verifier: auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Metrics:  metrics.Handler(registry),
		Health:   db.PingContext,
		Log:      httpLog,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("port", cfg.Server.GRPCPort).Msg("starting gRPC health server")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	if cfg.Reconcile.Interval > 0 {
		log.Info().Dur("interval", cfg.Reconcile.Interval).Msg("periodic reconciliation enabled")
		go reconcileJob.Start(jobCtx, cfg.Reconcile.Interval)
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down servers")
	case err = <-errCh:
		log.Error().Err(err).Msg("server failed, shutting down")
	}
	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	healthServer.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server forced to shutdown")
	}
	grpcServer.GracefulStop()

	log.Info().Msg("server exited properly")
	return err
}
