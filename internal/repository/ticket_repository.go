package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-portal/helpdesk/internal/domain"
)

const activeChatIndex = "tickets_active_chat_per_creator"

var (
	// ErrActiveChatTicketExists means the creator already owns an open or
	// in-review chat ticket.
	ErrActiveChatTicketExists = errors.New("creator already has an active chat ticket")
	// ErrRoomAlreadyAssigned means the ticket already carries a room name, or
	// the room name belongs to another ticket.
	ErrRoomAlreadyAssigned = errors.New("room already assigned")
)

// TicketFilter captures staff search parameters.
type TicketFilter struct {
	CreatedBy  *string
	Statuses   []domain.TicketStatus
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence and the room registry.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	CreateChatTicket(ctx context.Context, ticket *domain.Ticket, deriveRoom func(id int64) string) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	GetByRoomName(ctx context.Context, room string) (*domain.Ticket, error)
	FindActiveChatTicket(ctx context.Context, creatorID string) (*domain.Ticket, error)
	SetRoomName(ctx context.Context, ticketID int64, room string) error
	UpdateStatus(ctx context.Context, ticketID int64, status domain.TicketStatus) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountWithFilter(ctx context.Context, filter TicketFilter) (int, error)
	CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error)
	CountPendingChat(ctx context.Context) (int, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `t.id, t.created_by, u.username, t.subject, t.description, t.sector, t.urgency,
               t.status, t.room_name, t.created_at, t.updated_at`

const ticketFrom = `FROM tickets t JOIN users u ON u.id = t.created_by`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	return insertTicket(ctx, r.pool, ticket)
}

func insertTicket(ctx context.Context, q querier, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (created_by, subject, description, sector, urgency, status, room_name)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return q.QueryRow(ctx, query,
		ticket.CreatedBy,
		ticket.Subject,
		ticket.Description,
		ticket.Sector,
		ticket.Urgency,
		ticket.Status,
		ticket.RoomName,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

// CreateChatTicket inserts the ticket and assigns the room derived from its
// id in the same transaction, so a chat ticket is never visible without
// its room.
func (r *ticketRepository) CreateChatTicket(ctx context.Context, ticket *domain.Ticket, deriveRoom func(id int64) string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin chat ticket tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ticket.RoomName = nil
	if err := insertTicket(ctx, tx, ticket); err != nil {
		return fmt.Errorf("insert chat ticket: %w", err)
	}

	room := deriveRoom(ticket.ID)
	if err := setRoomName(ctx, tx, ticket.ID, room); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapConstraintError(err)
	}
	ticket.RoomName = &room
	return nil
}

func (r *ticketRepository) SetRoomName(ctx context.Context, ticketID int64, room string) error {
	return setRoomName(ctx, r.pool, ticketID, room)
}

func setRoomName(ctx context.Context, q querier, ticketID int64, room string) error {
	const query = `
        UPDATE tickets SET room_name=$1, updated_at=NOW()
        WHERE id=$2 AND room_name IS NULL`
	cmd, err := q.Exec(ctx, query, room, ticketID)
	if err != nil {
		return mapConstraintError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrRoomAlreadyAssigned
	}
	return nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, ticketID int64, status domain.TicketStatus) error {
	const query = `UPDATE tickets SET status=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, status, ticketID)
	if err != nil {
		return mapConstraintError(err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` ` + ticketFrom + ` WHERE t.id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByRoomName(ctx context.Context, room string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` ` + ticketFrom + ` WHERE t.room_name=$1`
	ticket, err := r.fetchSingle(ctx, query, room)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ticket, err
}

func (r *ticketRepository) FindActiveChatTicket(ctx context.Context, creatorID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` ` + ticketFrom + `
        WHERE t.created_by=$1 AND t.room_name IS NOT NULL AND t.status IN ('open', 'in_review')
        ORDER BY t.created_at DESC, t.id DESC
        LIMIT 1`
	ticket, err := r.fetchSingle(ctx, query, creatorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ticket, err
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(ticketScanTargets(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	filter := TicketFilter{
		CreatedBy: &userID,
		Limit:     limit,
		Offset:    offset,
	}
	return r.ListWithFilter(ctx, filter)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := filterClauses(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY t.created_at DESC, t.id DESC LIMIT %d OFFSET %d`,
		ticketColumns, ticketFrom, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountWithFilter(ctx context.Context, filter TicketFilter) (int, error) {
	where, args := filterClauses(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) %s WHERE %s`, ticketFrom, where)
	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *ticketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int, len(domain.TicketStatuses))
	for _, status := range domain.TicketStatuses {
		counts[status] = 0
	}
	for rows.Next() {
		var status domain.TicketStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *ticketRepository) CountPendingChat(ctx context.Context) (int, error) {
	const query = `
        SELECT COUNT(*) FROM tickets
        WHERE room_name IS NOT NULL AND status IN ('open', 'in_review')`
	var n int
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func filterClauses(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("t.created_by=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(t.subject) LIKE %s OR LOWER(t.description) LIKE %s OR LOWER(u.username) LIKE %s)",
			placeholder, placeholder, placeholder))
	}
	return strings.Join(clauses, " AND "), args
}

func ticketScanTargets(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.CreatedBy,
		&ticket.CreatorUsername,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Sector,
		&ticket.Urgency,
		&ticket.Status,
		&ticket.RoomName,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	}
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketScanTargets(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	if pgErr.ConstraintName == activeChatIndex {
		return fmt.Errorf("%w: %v", ErrActiveChatTicketExists, err)
	}
	return fmt.Errorf("%w: %v", ErrRoomAlreadyAssigned, err)
}
