// Package server assembles the HTTP surface and runs it under supervision.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "gamecatalog/backend/docs" // registers the swagger document

	"gamecatalog/backend/internal/auth"
	"gamecatalog/backend/internal/handler"
)

// RouterDeps are what NewRouter wires together.
type RouterDeps struct {
	Handler    *handler.Handler
	Authorizer *auth.Authorizer
	Users      auth.UserLoader
	JWTSecret  string
	Logger     zerolog.Logger
}

// NewRouter builds the gin engine with every route.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(deps.Logger))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	h := deps.Handler
	can := func(action auth.Action, kind auth.Kind) gin.HandlerFunc {
		return auth.RequireAccess(deps.Authorizer, deps.Users, action, kind)
	}

	apiV1 := router.Group("/api/v1")
	{
		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/register", h.RegisterUser)
			authRoutes.POST("/login", h.LoginUser)
		}

		protected := apiV1.Group("")
		protected.Use(auth.AuthMiddleware(deps.JWTSecret))

		games := protected.Group("/video_games")
		{
			games.GET("", can(auth.ActionRead, auth.KindVideoGame), h.ListVideoGames)
			games.GET("/:id", can(auth.ActionRead, auth.KindVideoGame), h.GetVideoGame)
			games.GET("/:id/cover", can(auth.ActionRead, auth.KindVideoGame), h.GetVideoGameCover)
			games.POST("", can(auth.ActionCreate, auth.KindVideoGame), h.CreateVideoGame)
			games.PUT("/:id", can(auth.ActionUpdate, auth.KindVideoGame), h.UpdateVideoGame)
			games.DELETE("/:id", can(auth.ActionDelete, auth.KindVideoGame), h.DeleteVideoGame)
		}

		editors := protected.Group("/editors")
		{
			editors.GET("", can(auth.ActionRead, auth.KindEditor), h.ListEditors)
			editors.GET("/:id", can(auth.ActionRead, auth.KindEditor), h.GetEditor)
			editors.GET("/:id/video_games", can(auth.ActionRead, auth.KindEditor), h.ListEditorGames)
			editors.POST("", can(auth.ActionCreate, auth.KindEditor), h.CreateEditor)
			editors.PUT("/:id", can(auth.ActionUpdate, auth.KindEditor), h.UpdateEditor)
			editors.DELETE("/:id", can(auth.ActionDelete, auth.KindEditor), h.DeleteEditor)
		}

		categories := protected.Group("/categories")
		{
			categories.GET("", can(auth.ActionRead, auth.KindCategory), h.ListCategories)
			categories.GET("/:id", can(auth.ActionRead, auth.KindCategory), h.GetCategory)
			categories.GET("/:id/video_games", can(auth.ActionRead, auth.KindCategory), h.ListCategoryGames)
			categories.POST("", can(auth.ActionCreate, auth.KindCategory), h.CreateCategory)
			categories.PUT("/:id", can(auth.ActionUpdate, auth.KindCategory), h.UpdateCategory)
			categories.DELETE("/:id", can(auth.ActionDelete, auth.KindCategory), h.DeleteCategory)
		}

		users := protected.Group("/users")
		{
			users.GET("", can(auth.ActionRead, auth.KindUser), h.ListUsers)
			users.GET("/me", can(auth.ActionRead, auth.KindUser), h.GetMe) // Must be before /:id
			users.GET("/:id", can(auth.ActionRead, auth.KindUser), h.GetUser)
			users.POST("", can(auth.ActionCreate, auth.KindUser), h.CreateUser)
			users.PUT("/me", can(auth.ActionRead, auth.KindUser), h.UpdateMe)
			users.PUT("/:id", can(auth.ActionUpdate, auth.KindUser), h.UpdateUser)
			users.DELETE("/:id", can(auth.ActionDelete, auth.KindUser), h.DeleteUser)
		}

		digestRoutes := protected.Group("/digest")
		digestRoutes.Use(can(auth.ActionRun, auth.KindDigest))
		{
			digestRoutes.GET("/upcoming", h.PreviewDigest)
			digestRoutes.POST("/run", h.RunDigest)
			digestRoutes.GET("/events", h.StreamDigestEvents)
		}
	}

	return router
}
