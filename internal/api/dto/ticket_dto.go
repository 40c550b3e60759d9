package dto

import (
	"time"

	"github.com/campus-portal/helpdesk/internal/domain"
)

// CreateTicketRequest payload. Field names follow the portal's form.
type CreateTicketRequest struct {
	Assunto   string               `json:"assunto"`
	Descricao string               `json:"descricao"`
	Setor     domain.TicketSector  `json:"setor"`
	Urgencia  domain.TicketUrgency `json:"urgencia"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TicketSummary response.
type TicketSummary struct {
	ID              int64                `json:"id"`
	Subject         string               `json:"assunto"`
	Sector          domain.TicketSector  `json:"setor"`
	Urgency         domain.TicketUrgency `json:"urgencia"`
	Status          domain.TicketStatus  `json:"status"`
	CreatedBy       string               `json:"created_by"`
	CreatorUsername string               `json:"creator_username,omitempty"`
	RoomName        *string              `json:"room_name"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description string                  `json:"descricao"`
	Transcript  []ChatMessageResponse   `json:"transcript"`
	History     []TicketHistoryResponse `json:"history,omitempty"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID          int64                   `json:"id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ChangedByID *string                 `json:"changed_by_id"`
	ChangedBy   *string                 `json:"changed_by,omitempty"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// TicketPageResponse is one page of the staff listing.
type TicketPageResponse struct {
	Data     []TicketSummary `json:"data"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Total    int             `json:"total"`
}

// DashboardResponse aggregates ticket counts.
type DashboardResponse struct {
	Total       int                         `json:"total"`
	ByStatus    map[domain.TicketStatus]int `json:"by_status"`
	PendingChat int                         `json:"pending_chat"`
}
