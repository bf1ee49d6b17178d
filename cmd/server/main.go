package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"invoice-integrity-backend/internal/config"
	"invoice-integrity-backend/internal/ledger"
	"invoice-integrity-backend/internal/logger"
	"invoice-integrity-backend/internal/models"
	"invoice-integrity-backend/internal/routes"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&models.Customer{},
		&models.ServicePackage{},
		&models.Invoice{},
		&models.InvoiceSnapshot{},
		&models.AnchorRecord{},
		&models.SweepRun{},
		&models.VerificationLog{},
	); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}

	ledgerClient := ledger.NewHTTPClient(ledger.HTTPConfig{
		BaseURL:        cfg.Ledger.Endpoint,
		APIKey:         cfg.Ledger.APIKey,
		RequestTimeout: cfg.Ledger.RequestTimeout,
		PollInterval:   cfg.Ledger.PollInterval,
		PollAttempts:   cfg.Ledger.PollAttempts,
	})

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	services := routes.RegisterRoutes(r, db, cfg, ledgerClient, zlog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sweep.Enabled {
		go services.Sweep.Start(ctx)
	}

	zlog.Info("server starting",
		zap.String("port", cfg.App.Port),
		zap.String("env", cfg.App.Env))

	if err := r.Run(":" + cfg.App.Port); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}
