package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"standards-archive/internal/config"
	"standards-archive/internal/logger"
	"standards-archive/internal/queue"
	"standards-archive/internal/telemetry"
	"standards-archive/middleware"
	"standards-archive/routes"
	"standards-archive/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatal("Failed to create storage layout:", err)
	}

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("standards-api", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracing:", err)
		}
		defer shutdown()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Redis backs both the task queue and API rate limiting
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	queueClient := queue.NewClient(config.AsynqRedisOpt(cfg), cfg.TaskTimeout())
	defer queueClient.Close()

	repo := services.NewDocumentRepository(db)
	search := services.NewSearchIndexService(db, metrics)
	supervisor := services.NewSupervisor(cfg, repo, queueClient, metrics)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware("standards-api"))
	}
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	api := router.Group("/api")
	{
		api.POST("/documents", routes.HandleUpload(cfg, repo, supervisor))
		api.GET("/documents", routes.HandleListDocuments(repo))
		api.GET("/documents/:id", routes.HandleGetDocument(repo))
		api.PUT("/documents/:id", routes.HandleUpdateMetadata(repo))
		api.DELETE("/documents/:id", routes.HandleDeleteDocument(cfg, repo, supervisor))
		api.POST("/documents/:id/process", routes.HandleProcess(repo, supervisor))
		api.POST("/documents/:id/retry", routes.HandleRetry(repo))
		api.GET("/documents/:id/content", routes.HandleGetContent(cfg, repo))
		api.GET("/categories", routes.HandleListCategories(repo))
		api.GET("/search", routes.HandleSearch(search))
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
