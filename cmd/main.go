package main

import (
	"fmt"
	"os"

	"github.com/personaforge/backend/internal/clients/openai"
	"github.com/personaforge/backend/internal/clients/pinecone"
	"github.com/personaforge/backend/internal/db"
	"github.com/personaforge/backend/internal/handlers"
	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/middleware"
	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/server"
	"github.com/personaforge/backend/internal/services"
	"github.com/personaforge/backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	gdb := postgresService.DB()
	if err := db.AutoMigrateAll(gdb); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}

	// Repos
	log.Info("Setting up repos from main...")
	userRepo := repos.NewUserRepo(gdb, log)
	userTokenRepo := repos.NewUserTokenRepo(gdb, log)
	personaRepo := repos.NewPersonaRepo(gdb, log)
	versionRepo := repos.NewPersonaVersionRepo(gdb, log)
	researchRepo := repos.NewResearchItemRepo(gdb, log)
	fileRepo := repos.NewResearchFileRepo(gdb, log)
	timelineRepo := repos.NewTimelineEventRepo(gdb, log)
	interactionRepo := repos.NewInteractionRepo(gdb, log)

	// Clients
	log.Info("Setting up clients from main...")
	openaiClient, err := openai.New(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	pineconeClient, err := pinecone.New(log, pinecone.Config{
		APIKey: utils.GetEnv("PINECONE_API_KEY", "", log),
	})
	if err != nil {
		log.Error("Could not init Pinecone client", "error", err)
		os.Exit(1)
	}
	vectorStore, err := pinecone.NewVectorStore(log, pineconeClient)
	if err != nil {
		log.Error("Could not init vector store", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up services from main...")
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	authService := services.NewAuthService(gdb, log, userRepo, userTokenRepo)
	timelineService := services.NewTimelineService(gdb, log, personaRepo, timelineRepo)
	knowledgeService := services.NewKnowledgeService(log, openaiClient, vectorStore)
	versionService := services.NewVersionService(gdb, log, personaRepo, versionRepo, timelineService)
	researchService := services.NewResearchService(gdb, log, personaRepo, researchRepo, fileRepo, bucketService, knowledgeService, timelineService)
	personaService := services.NewPersonaService(gdb, log, personaRepo, interactionRepo, bucketService, timelineService)
	archiveService := services.NewArchiveService(gdb, log, personaRepo, versionRepo, researchRepo, fileRepo, timelineRepo, interactionRepo, bucketService, timelineService)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	personaHandler := handlers.NewPersonaHandler(personaService)
	researchHandler := handlers.NewResearchHandler(researchService)
	versionHandler := handlers.NewVersionHandler(versionService)
	timelineHandler := handlers.NewTimelineHandler(timelineService)
	archiveHandler := handlers.NewArchiveHandler(archiveService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:     authHandler,
		AuthMiddleware:  authMiddleware,
		PersonaHandler:  personaHandler,
		ResearchHandler: researchHandler,
		VersionHandler:  versionHandler,
		TimelineHandler: timelineHandler,
		ArchiveHandler:  archiveHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
