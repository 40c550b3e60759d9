package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campus-portal/helpdesk/internal/api/http/handlers"
	"github.com/campus-portal/helpdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	AdminTickets   *handlers.AdminTicketsHandler
	Chat           *handlers.ChatHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	app.Get("/ws/chat/:room_name/", cfg.AuthMiddleware.HandleWebSocket, cfg.Chat.Upgrade, cfg.Chat.Serve())

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireUser())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)

	chatGroup := app.Group("/chat", cfg.AuthMiddleware.Handle, auth.RequireUser())
	chatGroup.Post("/support", cfg.Chat.StartSupport)
	chatGroup.Get("/:room_name/history", cfg.Chat.History)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireStaff())
	admin.Get("/tickets", cfg.AdminTickets.ListTickets)
	admin.Get("/tickets/:id", cfg.AdminTickets.GetTicket)
	admin.Patch("/tickets/:id/status", cfg.AdminTickets.UpdateStatus)
	admin.Get("/dashboard", cfg.AdminTickets.Dashboard)
}
