package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/andriik/webchat-server/internal/auth"
	"github.com/andriik/webchat-server/internal/config"
	"github.com/andriik/webchat-server/internal/core"
	"github.com/andriik/webchat-server/internal/store"
)

// NewServer builds the HTTP server: REST API, health check, and the
// WebSocket endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(hub, st, logger)
	messageHandlers := NewMessageHandlers(hub, st, cfg.HistoryPageSize, logger)
	userHandlers := NewUserHandlers(st, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)
	api.POST("/guest", apiHandlers.GuestLogin)

	authorized := api.Group("", AuthMiddleware(authService, logger))
	authorized.GET("/rooms", roomHandlers.ListRooms)
	authorized.POST("/rooms", roomHandlers.CreateRoom)
	authorized.PUT("/rooms/:id", roomHandlers.RenameRoom)
	authorized.DELETE("/rooms/:id", roomHandlers.DeleteRoom)
	authorized.POST("/rooms/:id/join", roomHandlers.JoinRoom)
	authorized.POST("/rooms/:id/leave", roomHandlers.LeaveRoom)
	authorized.GET("/rooms/:id/messages", messageHandlers.History)
	authorized.GET("/users/search", userHandlers.SearchUsers)

	// The upgrade handler hijacks the connection, which does not survive
	// gin's wrapped ResponseWriter. /ws lives on the outer mux; everything
	// else goes through the gin router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg.MessageRateLimit, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
