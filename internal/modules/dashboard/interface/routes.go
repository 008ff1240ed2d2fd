package transport

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"bizdash/internal/modules/dashboard/application/usecase"
	"bizdash/internal/modules/dashboard/infrastructure"
	"bizdash/internal/shared/auth"
)

// Dependencies wires the dashboard routes.
type Dependencies struct {
	Sessions  *usecase.SessionRegistry
	Hub       *infrastructure.Hub
	Validator auth.TokenValidator
	Websocket WebsocketConfig
	Logger    *slog.Logger
}

// RegisterRoutes mounts the REST API under /api and the socket at /ws/dashboard.
func RegisterRoutes(e *echo.Echo, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "dashboard-http"))
	requireSession := NewAuthMiddleware(deps.Validator, deps.Sessions, logger)
	h := NewDashboardHandler(logger)

	api := e.Group("/api", requireSession)
	api.GET("/views", h.ListViews)
	api.GET("/views/:view", h.GetView)
	api.PUT("/views/:view/query", h.SetViewQuery)
	api.POST("/views/:view/refetch", h.RefetchView)

	api.GET("/selection", h.GetSelection)
	api.PUT("/selection/:scope", h.PutSelection)
	api.DELETE("/selection/:scope", h.DeleteSelection)
	api.DELETE("/selection", h.DeleteSelection)
	api.POST("/dialog", h.OpenDialog)
	api.DELETE("/dialog", h.CloseDialog)

	api.POST("/sales", h.CreateSale)
	api.PUT("/sales/:id", h.UpdateSale)
	api.DELETE("/sales/:id", h.DeleteSale)
	api.POST("/sales/:id/payments", h.RecordPayment)
	api.POST("/sales/:id/attachments", h.AttachToSale)
	api.POST("/conversations/:id/messages", h.SendMessage)

	e.GET("/ws/dashboard", NewWebsocketHandler(deps.Hub, deps.Sessions, deps.Websocket, logger), requireSession)
}
