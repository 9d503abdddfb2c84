package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/rlagos/cobranzas-service/internal/config"
	"github.com/rlagos/cobranzas-service/internal/handler"
	"github.com/rlagos/cobranzas-service/internal/integrations/bancos"
	"github.com/rlagos/cobranzas-service/internal/middleware"
	"github.com/rlagos/cobranzas-service/internal/repository"
	"github.com/rlagos/cobranzas-service/internal/service"
	"github.com/rlagos/cobranzas-service/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	notifier := email.NewSender(cfg, logger)
	bankRef := bancos.NewClient(cfg, logger)
	svc := service.NewService(repo, notifier, bankRef, logger, cfg)
	h := handler.NewHandler(svc)

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	// View queries
	r.HandleFunc("/cobranzas/clientes", h.GetClientSummary).Methods("GET")
	r.HandleFunc("/cobranzas/analistas", h.GetAnalystRollup).Methods("GET")
	r.HandleFunc("/cobranzas/periodos", h.GetPeriodRollup).Methods("GET")
	r.HandleFunc("/cobranzas/buckets", h.GetBucketRollup).Methods("GET")
	r.HandleFunc("/cobranzas/resumen", h.GetResumen).Methods("GET")
	// Mutations are protected
	authRouter := r.PathPrefix("/cobranzas").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/prestamos/{id:[0-9]+}/analista", h.ReassignAnalyst).Methods("POST")
	authRouter.HandleFunc("/prestamos/{id:[0-9]+}/riesgo", h.SetRiskOverride).Methods("PUT")
	authRouter.HandleFunc("/prestamos/{id:[0-9]+}/riesgo", h.ClearRiskOverride).Methods("DELETE")
	authRouter.HandleFunc("/prestamos/{id:[0-9]+}/monto", h.AdjustBookedAmount).Methods("POST")
	authRouter.HandleFunc("/prestamos/{id:[0-9]+}/reconciliar", h.ReconcileBookedAmount).Methods("POST")
	authRouter.HandleFunc("/batch", h.RunBatch).Methods("POST")

	// Periodic batch trigger
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.BatchCron, func() {
		if _, err := svc.ProcessOverdueBatch(context.Background()); err != nil {
			logger.Errorf("Scheduled batch failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule batch: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
