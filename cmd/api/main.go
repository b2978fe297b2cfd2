package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"manuscript-review-api/config"
	"manuscript-review-api/controllers"
	"manuscript-review-api/middleware"
	"manuscript-review-api/models"
	"manuscript-review-api/monitor"
	"manuscript-review-api/routes"
	"manuscript-review-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logFile, logWriter := config.InitLogging()
	if logFile != nil {
		defer logFile.Close()
	}

	settings, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if settings.JWTSecret == "" {
		log.Println("Warning: JWT_SECRET is empty; admin endpoints will reject every token")
	}

	// Initialize database
	if err := config.InitDB(settings); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(config.DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	access := services.NewAccessService(config.DB)
	submissions := services.NewSubmissionService(config.DB, services.NewGormResearcherDirectory(config.DB))
	jobs := services.NewJobQueue(config.DB)

	worker := services.NewJobWorker(jobs, settings.WorkerConcurrency, settings.WorkerPollInterval)
	worker.Register(services.JobTypeRoundResult, services.NewRoundResultHandler(submissions))
	sweeper := services.NewExpirySweeper(submissions, settings.SweepInterval)

	api := &controllers.API{
		Access:            access,
		Ownership:         services.NewOwnershipService(config.DB, access),
		Submissions:       submissions,
		Jobs:              jobs,
		JWTSecret:         settings.JWTSecret,
		AdminPasswordHash: settings.AdminPasswordHash,
	}

	// Set Gin mode
	if settings.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = logWriter
	gin.DefaultErrorWriter = logWriter

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Add security headers middleware
	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Next()
	})
	router.Use(middleware.CORSMiddleware(settings.AllowedOrigins))

	monitor.Register(router, config.DB)
	monitor.RegisterLogsRoute(router, settings.LogsToken)
	routes.SetupRoutes(router, api)

	srv := &http.Server{
		Addr:              ":" + settings.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server starting on port %s (%s, db=%s)", settings.ServerPort, settings.Environment, settings.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	g.Go(func() error {
		return worker.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Server stopped: %v", err)
	}
	log.Println("Server stopped")
}
