package routes

import (
	"offline-sync-agent/internal/engine"
	"offline-sync-agent/internal/handlers"
	"offline-sync-agent/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Setup wires the engine instance into a gin router: control surface under
// /control, session issuing, health, and the catch-all intercept route.
func Setup(e *engine.Engine) *gin.Engine {
	ginRouter := gin.Default()

	// CORS middleware (for frontend integration)
	ginRouter.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Offline-Sync, X-Offline-Sync-Tag")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check endpoint
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"queued": e.Queue.Len(),
			"cached": e.Store.Len(),
		})
	})

	// Public: control clients obtain their token here
	ginRouter.POST("/session", handlers.CreateSession)

	controlHandler := &handlers.ControlHandler{Channel: e.Control}
	eventsHandler := &handlers.EventsHandler{Hub: e.Hub}
	pushHandler := &handlers.PushHandler{Router: e.Push}

	// Protected control surface
	ctrl := ginRouter.Group("/control")
	ctrl.Use(middleware.JWTAuthMiddleware())
	{
		ctrl.POST("", controlHandler.Dispatch)
		ctrl.GET("/events", eventsHandler.Handle)
	}

	pushGroup := ginRouter.Group("/push")
	pushGroup.Use(middleware.JWTAuthMiddleware())
	{
		pushGroup.POST("/display", pushHandler.Display)
		pushGroup.POST("/click", pushHandler.Click)
	}

	// Everything else is intercepted application traffic
	interceptor := &handlers.Interceptor{
		Rules:       e.Rules,
		Fetcher:     e.Fetcher,
		Queue:       e.Queue,
		Client:      e.Client,
		Origin:      e.Config.Origin,
		ScopePrefix: e.Config.Sync.ScopePrefix,
	}
	ginRouter.NoRoute(interceptor.Handle)

	return ginRouter
}
