package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "github.com/farmatrack/farmatrack-backend/internal/auth/handler"
	"github.com/farmatrack/farmatrack-backend/internal/auth/jwt"
	authmw "github.com/farmatrack/farmatrack-backend/internal/auth/middleware"
	authrepo "github.com/farmatrack/farmatrack-backend/internal/auth/repository"
	authservice "github.com/farmatrack/farmatrack-backend/internal/auth/service"
	"github.com/farmatrack/farmatrack-backend/internal/inventory/consumers"
	invevents "github.com/farmatrack/farmatrack-backend/internal/inventory/events"
	invhandler "github.com/farmatrack/farmatrack-backend/internal/inventory/handler"
	invrepo "github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	invservice "github.com/farmatrack/farmatrack-backend/internal/inventory/service"
	procevents "github.com/farmatrack/farmatrack-backend/internal/procurement/events"
	prochandler "github.com/farmatrack/farmatrack-backend/internal/procurement/handler"
	procrepo "github.com/farmatrack/farmatrack-backend/internal/procurement/repository"
	procservice "github.com/farmatrack/farmatrack-backend/internal/procurement/service"
	salesevents "github.com/farmatrack/farmatrack-backend/internal/sales/events"
	saleshandler "github.com/farmatrack/farmatrack-backend/internal/sales/handler"
	salesrepo "github.com/farmatrack/farmatrack-backend/internal/sales/repository"
	salesservice "github.com/farmatrack/farmatrack-backend/internal/sales/service"
	"github.com/farmatrack/farmatrack-backend/migrations"
	"github.com/farmatrack/farmatrack-backend/pkg/config"
	"github.com/farmatrack/farmatrack-backend/pkg/database"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
	"github.com/farmatrack/farmatrack-backend/pkg/messaging"
	"github.com/farmatrack/farmatrack-backend/pkg/metrics"
	"github.com/farmatrack/farmatrack-backend/pkg/notify"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("farmatrack")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("farmatrack", cfg.Server.Environment, cfg.Logging.Level)
	log.Info().Msg("starting FarmaTrack API")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	stmts, err := migrations.All()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load migrations")
	}
	if err := db.Migrate(context.Background(), stmts); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Notification queues degrade to no-ops when Redis is unreachable.
	notifier := notify.New(&cfg.Redis, log)
	defer notifier.Close()

	m := metrics.New("farmatrack")

	invPublisher, err := invevents.NewPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create inventory event publisher")
	}
	procPublisher, err := procevents.NewPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create procurement event publisher")
	}
	salesPublisher, err := salesevents.NewPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sales event publisher")
	}

	// Repositories
	medicationRepo := invrepo.NewMedicationRepository(db)
	movementRepo := invrepo.NewMovementRepository(db)
	alertRepo := invrepo.NewAlertRepository(db)
	auditRepo := invrepo.NewAuditRepository(db)
	supplierRepo := procrepo.NewSupplierRepository(db)
	orderRepo := procrepo.NewOrderRepository(db)
	saleRepo := salesrepo.NewSaleRepository(db)
	userRepo := authrepo.NewUserRepository(db)
	sessionRepo := authrepo.NewSessionRepository(db)

	// Services
	auditService := invservice.NewAuditService(auditRepo, invPublisher, log)
	alertService := invservice.NewAlertService(alertRepo, medicationRepo, invPublisher, notifier, m, log)
	medicationService := invservice.NewMedicationService(db, medicationRepo, movementRepo, alertService, auditService, invPublisher, log)
	supplierService := procservice.NewSupplierService(supplierRepo, auditService, log)
	orderService := procservice.NewOrderService(db, orderRepo, supplierRepo, medicationRepo, movementRepo, alertService, auditService, procPublisher, log)
	saleService := salesservice.NewSaleService(db, saleRepo, medicationRepo, movementRepo, alertService, auditService, salesPublisher, log)

	jwtManager := jwt.NewManager(&cfg.JWT)
	authService := authservice.NewAuthService(userRepo, sessionRepo, jwtManager, log)

	warnDays := cfg.Alerts.ExpiryWarnDays

	// Handlers
	authHandler := authhandler.NewAuthHandler(authService, log)
	userHandler := authhandler.NewUserHandler(authService, log)
	medicationHandler := invhandler.NewMedicationHandler(medicationService, auditService, warnDays, log)
	alertHandler := invhandler.NewAlertHandler(alertService, log)
	auditHandler := invhandler.NewAuditHandler(auditService, log)
	dashboardHandler := invhandler.NewDashboardHandler(medicationService, alertService, warnDays, log)
	supplierHandler := prochandler.NewSupplierHandler(supplierService, log)
	orderHandler := prochandler.NewOrderHandler(orderService, log)
	saleHandler := saleshandler.NewSaleHandler(saleService, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Notification fan-out runs off the broker
	alertConsumer, err := consumers.NewAlertEventConsumer(rmq, alertRepo, notifier, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create alert event consumer")
	}
	if err := alertConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start alert event consumer")
	}

	// Background scans: stock/expiry alerts and delayed orders
	scheduler := invservice.NewScheduler(cfg.Alerts.ScanInterval, log)
	scheduler.Register("alert-scan", alertService.ScanAll)
	scheduler.Register("delayed-orders", orderService.ScanDelayed)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(m.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "farmatrack",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
			"redis":    notifier.Health(r.Context()),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(authmw.RequireAuth(jwtManager))
				r.Get("/me", authHandler.Me)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(jwtManager))

			r.Route("/medications", func(r chi.Router) {
				r.Get("/", medicationHandler.List)
				r.Post("/", medicationHandler.Create)
				r.Get("/search", medicationHandler.Search)
				r.Get("/{id}", medicationHandler.Get)
				r.Put("/{id}", medicationHandler.Update)
				r.Delete("/{id}", medicationHandler.Delete)
				r.Post("/{id}/reactivate", medicationHandler.Reactivate)
				r.Post("/{id}/movements", medicationHandler.RecordMovement)
				r.Get("/{id}/movements", medicationHandler.ListMovements)
				r.Get("/{id}/audit", medicationHandler.ListAudit)
			})

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", alertHandler.List)
				r.Post("/scan", alertHandler.Scan)
				r.Get("/notifications", alertHandler.Notifications)
				r.Get("/{id}", alertHandler.Get)
				r.Put("/{id}/state", alertHandler.SetState)
			})

			r.Route("/suppliers", func(r chi.Router) {
				r.Get("/", supplierHandler.List)
				r.Post("/", supplierHandler.Create)
				r.Get("/{id}", supplierHandler.Get)
				r.Put("/{id}", supplierHandler.Update)
				r.Delete("/{id}", supplierHandler.Delete)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orderHandler.List)
				r.Post("/", orderHandler.Create)
				r.Get("/{id}", orderHandler.Get)
				r.Put("/{id}", orderHandler.Update)
				r.Post("/{id}/send", orderHandler.Send)
				r.Post("/{id}/receive", orderHandler.Receive)
			})

			r.Route("/sales", func(r chi.Router) {
				r.Get("/", saleHandler.List)
				r.Post("/", saleHandler.Create)
				r.Get("/{id}", saleHandler.Get)
				r.Post("/{id}/confirm", saleHandler.Confirm)
				r.Post("/{id}/cancel", saleHandler.Cancel)
			})

			r.Get("/dashboard/stats", dashboardHandler.GetStats)
			r.Get("/reports/sales", saleHandler.Report)

			r.Group(func(r chi.Router) {
				r.Use(authmw.RequireRole(authrepo.RoleAdmin))
				r.Get("/audit", auditHandler.List)

				r.Route("/users", func(r chi.Router) {
					r.Get("/", userHandler.List)
					r.Post("/", userHandler.Create)
					r.Put("/{id}/status", userHandler.SetStatus)
				})
			})
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
