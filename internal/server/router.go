package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/personaforge/backend/internal/handlers"
	"github.com/personaforge/backend/internal/middleware"
	"github.com/personaforge/backend/internal/utils"
)

type RouterConfig struct {
	AuthHandler     *handlers.AuthHandler
	AuthMiddleware  *middleware.AuthMiddleware
	PersonaHandler  *handlers.PersonaHandler
	ResearchHandler *handlers.ResearchHandler
	VersionHandler  *handlers.VersionHandler
	TimelineHandler *handlers.TimelineHandler
	ArchiveHandler  *handlers.ArchiveHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173", nil), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/register", cfg.AuthHandler.Register)
		api.POST("/login", cfg.AuthHandler.Login)
		api.POST("/refresh", cfg.AuthHandler.Refresh)
	}

	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	{
		protected.POST("/logout", cfg.AuthHandler.Logout)

		protected.POST("/personas", cfg.PersonaHandler.Create)
		protected.GET("/personas", cfg.PersonaHandler.List)
		protected.GET("/personas/:id", cfg.PersonaHandler.Get)
		protected.POST("/personas/:id/image", cfg.PersonaHandler.UploadImage)
		protected.POST("/personas/:id/interactions", cfg.PersonaHandler.RecordInteraction)
		protected.GET("/personas/:id/interactions", cfg.PersonaHandler.ListInteractions)

		protected.POST("/personas/:id/research", cfg.ResearchHandler.Upload)
		protected.POST("/personas/:id/research/notes", cfg.ResearchHandler.AddNote)
		protected.GET("/personas/:id/research", cfg.ResearchHandler.List)
		protected.GET("/personas/:id/research/:itemId", cfg.ResearchHandler.Get)
		protected.GET("/personas/:id/search", cfg.ResearchHandler.Search)

		protected.GET("/personas/:id/versions", cfg.VersionHandler.List)
		protected.POST("/personas/:id/versions", cfg.VersionHandler.Create)
		protected.POST("/personas/:id/versions/:versionId/publish", cfg.VersionHandler.Publish)
		protected.GET("/personas/:id/versions/:versionId/lineage", cfg.VersionHandler.Lineage)

		protected.GET("/personas/:id/timeline", cfg.TimelineHandler.Query)

		protected.GET("/personas/:id/export", cfg.ArchiveHandler.Export)
		protected.POST("/personas/import", cfg.ArchiveHandler.Import)
	}

	return router
}
