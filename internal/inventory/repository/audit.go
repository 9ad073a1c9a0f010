package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/farmatrack/farmatrack-backend/pkg/database"
)

// Audit actions
const (
	AuditActionCreate     = "CREAR"
	AuditActionUpdate     = "ACTUALIZAR"
	AuditActionDeactivate = "DESACTIVAR"
	AuditActionReactivate = "REACTIVAR"
	AuditActionDelete     = "ELIMINAR"
)

// AuditLog is one recorded change. Updates produce one entry per changed
// field. Entries are append-only, never updated or deleted.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	Entity    string    `db:"entity" json:"entity"`
	EntityID  string    `db:"entity_id" json:"entity_id"`
	Action    string    `db:"action" json:"action"`
	Field     *string   `db:"field" json:"field,omitempty"`
	OldValue  *string   `db:"old_value" json:"old_value,omitempty"`
	NewValue  *string   `db:"new_value" json:"new_value,omitempty"`
	Metadata  *string   `db:"metadata" json:"metadata,omitempty"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Username  *string   `db:"username" json:"username,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	Entity   string
	EntityID string
	Action   string
	UserID   string
	From     *time.Time
	To       *time.Time
}

// AuditRepository handles audit log persistence. All operations are
// append-only: no UPDATE or DELETE is permitted.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO audit_logs (
			id, entity, entity_id, action, field, old_value, new_value,
			metadata, user_id, username
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	return r.db.QueryRowxContext(ctx, query,
		entry.ID, entry.Entity, entry.EntityID, entry.Action, entry.Field,
		entry.OldValue, entry.NewValue, entry.Metadata, entry.UserID,
		entry.Username,
	).Scan(&entry.CreatedAt)
}

// CreateTx creates an audit log entry inside an existing transaction.
func (r *AuditRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO audit_logs (
			id, entity, entity_id, action, field, old_value, new_value,
			metadata, user_id, username
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	return tx.QueryRowxContext(ctx, query,
		entry.ID, entry.Entity, entry.EntityID, entry.Action, entry.Field,
		entry.OldValue, entry.NewValue, entry.Metadata, entry.UserID,
		entry.Username,
	).Scan(&entry.CreatedAt)
}

// ListByEntity lists audit entries for a specific entity with pagination
func (r *AuditRepository) ListByEntity(ctx context.Context, entity, entityID string, page, perPage int) ([]*AuditLog, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM audit_logs WHERE entity = $1 AND entity_id = $2`
	if err := r.db.GetContext(ctx, &total, countQuery, entity, entityID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `
		SELECT id, entity, entity_id, action, field, old_value, new_value,
		       metadata, user_id, username, created_at
		FROM audit_logs
		WHERE entity = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	var entries []*AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, entity, entityID, perPage, offset); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// List lists audit entries with optional filters and pagination
func (r *AuditRepository) List(ctx context.Context, page, perPage int, filter AuditFilter) ([]*AuditLog, int64, error) {
	args := []interface{}{}
	argIdx := 1
	where := ` WHERE 1=1`

	if filter.Entity != "" {
		where += fmt.Sprintf(` AND entity = $%d`, argIdx)
		args = append(args, filter.Entity)
		argIdx++
	}
	if filter.EntityID != "" {
		where += fmt.Sprintf(` AND entity_id = $%d`, argIdx)
		args = append(args, filter.EntityID)
		argIdx++
	}
	if filter.Action != "" {
		where += fmt.Sprintf(` AND action = $%d`, argIdx)
		args = append(args, filter.Action)
		argIdx++
	}
	if filter.UserID != "" {
		where += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.From != nil {
		where += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, *filter.From)
		argIdx++
	}
	if filter.To != nil {
		where += fmt.Sprintf(` AND created_at <= $%d`, argIdx)
		args = append(args, *filter.To)
		argIdx++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `
		SELECT id, entity, entity_id, action, field, old_value, new_value,
		       metadata, user_id, username, created_at
		FROM audit_logs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, perPage, offset)

	var entries []*AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
