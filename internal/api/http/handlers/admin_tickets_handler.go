package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campus-portal/helpdesk/internal/api/dto"
	"github.com/campus-portal/helpdesk/internal/domain"
	"github.com/campus-portal/helpdesk/internal/service"
	apperrors "github.com/campus-portal/helpdesk/pkg/util/errorutil"
)

// AdminTicketsHandler serves the staff dashboard.
type AdminTicketsHandler struct {
	tickets *service.TicketService
}

// NewAdminTicketsHandler constructs handler.
func NewAdminTicketsHandler(ticketService *service.TicketService) *AdminTicketsHandler {
	return &AdminTicketsHandler{tickets: ticketService}
}

// ListTickets GET /admin/tickets?status=&q=&page=.
func (h *AdminTicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := service.TicketStaffFilter{
		SearchTerm: c.Query("q"),
		Page:       parseInt(c.Query("page"), 1),
	}
	if status := c.Query("status"); status != "" {
		s := domain.TicketStatus(status)
		filter.Status = &s
	}

	page, err := h.tickets.ListStaffTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketPageResponse{
		Data:     ticketSummaries(page.Tickets),
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    page.Total,
	})
}

// GetTicket GET /admin/tickets/:id.
func (h *AdminTicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	detail, err := h.tickets.GetTicketForStaff(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// UpdateStatus PATCH /admin/tickets/:id/status.
func (h *AdminTicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.tickets.UpdateStatus(c.UserContext(), user, id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Dashboard GET /admin/dashboard.
func (h *AdminTicketsHandler) Dashboard(c *fiber.Ctx) error {
	stats, err := h.tickets.Dashboard(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(dto.DashboardResponse{
		Total:       stats.Total,
		ByStatus:    stats.ByStatus,
		PendingChat: stats.PendingChat,
	})
}
