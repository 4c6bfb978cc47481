package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"term-translation-system/handlers"
	"term-translation-system/middleware"
	"term-translation-system/models"
	"term-translation-system/services"
	"term-translation-system/utils"
	"term-translation-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Source{},
		&models.Term{},
		&models.TermField{},
		&models.Translation{},
		&models.ReputationEvent{},
		&models.ReputationRule{},
		&models.UserStats{},
		&models.DailyChallenge{},
		&models.FlowSession{},
		&models.Task{},
		&models.TaskScheduler{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Partial unique indexes AutoMigrate cannot express: one pending/running
	// task per (source, type), and one field row per (term, predicate, value).
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_active_unique
		ON tasks (source_id, task_type) WHERE status IN ('pending', 'running') AND deleted_at IS NULL`).Error; err != nil {
		log.Fatal("failed to create active-task index:", err)
	}
	// Plain unique index: the sync upsert's ON CONFLICT target must match it.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_term_fields_identity
		ON term_fields (term_id, predicate, original_value)`).Error; err != nil {
		log.Fatal("failed to create term-field index:", err)
	}

	reputationService := services.NewReputationService(db)
	if err := reputationService.SeedDefaultRules(); err != nil {
		log.Fatal("failed to seed reputation rules:", err)
	}
	gamificationService := services.NewGamificationService(db, reputationService)

	targetLanguagesEnv := os.Getenv("TARGET_LANGUAGES")
	if targetLanguagesEnv == "" {
		log.Println("⚠️  TARGET_LANGUAGES environment variable not set, using default: nl,fr,de,en")
		targetLanguagesEnv = "nl,fr,de,en"
	}
	targetLanguages := strings.Split(targetLanguagesEnv, ",")
	for i, lang := range targetLanguages {
		targetLanguages[i] = strings.TrimSpace(lang)
	}

	flowService := services.NewFlowService(db, reputationService, gamificationService, targetLanguages)

	storage, err := utils.InitObjectStorage()
	if err != nil {
		log.Fatal("failed to initialize object storage:", err)
	}

	feedBaseDir := os.Getenv("FEED_BASE_DIR")
	if feedBaseDir == "" {
		feedBaseDir = "./feeds"
	}
	if err := os.MkdirAll(feedBaseDir, os.ModePerm); err != nil {
		log.Fatal("failed to ensure feed dir:", err)
	}

	syncEngine := workers.NewSyncEngine(db)
	feedEngine := workers.NewFeedSyncEngine(db, feedBaseDir, storage)

	taskService := services.NewTaskService(db, services.TaskHandlers{
		FileUpload:      syncEngine.RunFileUpload,
		TriplestoreSync: syncEngine.RunTriplestoreSync,
		FeedSync:        feedEngine.RunFeedSync,
		Harvest:         syncEngine.RunHarvest,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pollInterval := 60 * time.Second
	if v := os.Getenv("DISPATCH_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			pollInterval = time.Duration(secs) * time.Second
		}
	}

	dispatchScheduler, err := taskService.StartDispatchScheduler(ctx, pollInterval)
	if err != nil {
		log.Fatal("failed to start task dispatcher:", err)
	}
	defer func() { _ = dispatchScheduler.Shutdown() }()

	go workers.PollStuckTasks(ctx, db, 5*time.Minute, workers.DefaultStuckTaskTimeout)

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupFlowRoutes(app, flowService, gamificationService)
	handlers.SetupReputationRoutes(app, reputationService)
	handlers.SetupTaskRoutes(app, taskService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Task dispatcher running")
	log.Println("✅ Stuck-task reaper running (every 5m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
