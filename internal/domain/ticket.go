package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusInReview TicketStatus = "in_review"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
)

// TicketStatuses lists every status in display order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInReview,
	TicketStatusResolved,
	TicketStatusClosed,
}

// ActiveTicketStatuses are the non-terminal statuses.
var ActiveTicketStatuses = []TicketStatus{TicketStatusOpen, TicketStatusInReview}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, known := range TicketStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Active reports whether s is open or in review.
func (s TicketStatus) Active() bool {
	return s == TicketStatusOpen || s == TicketStatusInReview
}

// TicketSector is the department a ticket is routed to.
type TicketSector string

const (
	SectorIT           TicketSector = "ti"
	SectorSecretariat  TicketSector = "secretaria"
	SectorCoordination TicketSector = "coordenacao"
	SectorLibrary      TicketSector = "biblioteca"
	SectorOther        TicketSector = "outros"
)

var ticketSectors = []TicketSector{SectorIT, SectorSecretariat, SectorCoordination, SectorLibrary, SectorOther}

// Valid reports whether s is a known sector.
func (s TicketSector) Valid() bool {
	for _, known := range ticketSectors {
		if s == known {
			return true
		}
	}
	return false
}

// TicketUrgency enumerates how soon a ticket needs attention.
type TicketUrgency string

const (
	UrgencyLow    TicketUrgency = "baixa"
	UrgencyMedium TicketUrgency = "media"
	UrgencyHigh   TicketUrgency = "alta"
)

// Valid reports whether u is a known urgency.
func (u TicketUrgency) Valid() bool {
	return u == UrgencyLow || u == UrgencyMedium || u == UrgencyHigh
}

// Ticket is a support request ("chamado"). RoomName links it to a chat
// room; once set it never changes.
type Ticket struct {
	ID              int64
	CreatedBy       string
	CreatorUsername string
	Subject         string
	Description     string
	Sector          TicketSector
	Urgency         TicketUrgency
	Status          TicketStatus
	RoomName        *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasRoom reports whether the ticket is linked to a chat room.
func (t *Ticket) HasRoom() bool {
	return t != nil && t.RoomName != nil && *t.RoomName != ""
}
