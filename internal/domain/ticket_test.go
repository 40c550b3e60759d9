package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketStatus(t *testing.T) {
	assert.True(t, TicketStatusOpen.Active())
	assert.True(t, TicketStatusInReview.Active())
	assert.False(t, TicketStatusResolved.Active())
	assert.False(t, TicketStatusClosed.Active())

	assert.True(t, TicketStatusClosed.Valid())
	assert.False(t, TicketStatus("aberto").Valid())
}

func TestSectorAndUrgency(t *testing.T) {
	assert.True(t, SectorIT.Valid())
	assert.False(t, TicketSector("rh").Valid())
	assert.True(t, UrgencyHigh.Valid())
	assert.False(t, TicketUrgency("critica").Valid())
}

func TestTicketHasRoom(t *testing.T) {
	var nilTicket *Ticket
	assert.False(t, nilTicket.HasRoom())

	empty := ""
	assert.False(t, (&Ticket{RoomName: &empty}).HasRoom())

	room := "chat_suporte_1"
	assert.True(t, (&Ticket{RoomName: &room}).HasRoom())
}
