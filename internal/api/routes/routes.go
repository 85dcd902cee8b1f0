// internal/api/routes/routes.go
package routes

import (
	"net/http"

	"freight-resale-api-server/internal/api/handlers"
	"freight-resale-api-server/internal/api/middleware"
	"freight-resale-api-server/internal/auth"
	"freight-resale-api-server/internal/market"
	"freight-resale-api-server/internal/models"
	"freight-resale-api-server/internal/notify"
	"freight-resale-api-server/internal/socket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the components the router wires into handlers.
type Deps struct {
	Market        *market.Service
	Accounts      *auth.Accounts
	Tokens        *auth.Tokens
	Hub           *socket.Hub
	Notifications notify.MessageStore
	Archive       handlers.DocumentArchive
	Dashboard     handlers.DashboardSource
	Gatherer      prometheus.Gatherer
	Logger        zerolog.Logger
	AllowOrigins  []string
}

func role(rs ...models.Role) gin.HandlerFunc {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = string(r)
	}
	return middleware.Authorize(names...)
}

// SetupRouter builds the HTTP API.
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(d.Logger))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	if len(d.AllowOrigins) == 0 || (len(d.AllowOrigins) == 1 && d.AllowOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = d.AllowOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authHandler := &handlers.AuthHandler{Accounts: d.Accounts}
	requestHandler := &handlers.RequestHandler{Market: d.Market, Archive: d.Archive}
	resaleHandler := &handlers.ResaleHandler{Market: d.Market}
	containerHandler := &handlers.ContainerHandler{Market: d.Market}
	historyHandler := &handlers.HistoryHandler{Market: d.Market}
	notificationHandler := &handlers.NotificationHandler{Store: d.Notifications, Dashboard: d.Dashboard}
	webSocketHandler := &handlers.WebSocketHandler{Hub: d.Hub, Tokens: d.Tokens, Logger: d.Logger}

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/ws", webSocketHandler.ServeWs)

		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
		}

		protected := apiV1.Group("/")
		protected.Use(middleware.Authenticate(d.Tokens))
		{
			protected.GET("/me", authHandler.Me)
			protected.GET("/notifications", notificationHandler.List)
			protected.PUT("/notifications/:id/read", notificationHandler.MarkRead)
			protected.GET("/history", role(models.RoleShipper, models.RoleForwarder), historyHandler.List)

			requests := protected.Group("/requests")
			{
				requests.POST("", role(models.RoleShipper), requestHandler.CreateRequest)
				requests.GET("/mine", role(models.RoleShipper), requestHandler.ListMine)
				requests.GET("/:id/offers", role(models.RoleShipper, models.RoleForwarder), requestHandler.ListBidders)
				requests.POST("/:id/offers", role(models.RoleForwarder), requestHandler.SubmitOffer)
				requests.POST("/:id/confirm", role(models.RoleShipper), requestHandler.Confirm)
				requests.GET("/:id/bill-of-lading", role(models.RoleShipper, models.RoleForwarder), requestHandler.BillOfLading)
				requests.POST("/:id/bill-of-lading/archive", role(models.RoleShipper, models.RoleForwarder), requestHandler.ArchiveBillOfLading)
			}

			forwarder := protected.Group("/")
			forwarder.Use(role(models.RoleForwarder))
			{
				forwarder.POST("/offers/:id/resale", resaleHandler.CreateResale)
				forwarder.GET("/resales/mine", resaleHandler.ListMine)
				forwarder.DELETE("/resales/:id", resaleHandler.CancelResale)
				forwarder.POST("/resales/:id/confirm", resaleHandler.ConfirmResale)
				forwarder.POST("/containers", containerHandler.CreateContainer)
				forwarder.PUT("/containers/:id/status", containerHandler.UpdateStatus)
			}

			admin := protected.Group("/admin")
			admin.Use(role(models.RoleAdmin))
			{
				admin.GET("/dashboard", notificationHandler.GetDashboard)
			}
		}
	}

	return router
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		ev := logger.Debug()
		if len(c.Errors) > 0 {
			ev = logger.Error().Str("errors", c.Errors.String())
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
