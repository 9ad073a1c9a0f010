package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/farmatrack/farmatrack-backend/pkg/database"
)

// Movement types
const (
	MovementIn  = "ENTRADA"
	MovementOut = "SALIDA"
)

// Movement is an immutable stock movement record.
type Movement struct {
	ID           string    `db:"id" json:"id"`
	MedicationID string    `db:"medication_id" json:"medication_id"`
	Type         string    `db:"type" json:"type"`
	Quantity     int       `db:"quantity" json:"quantity"`
	Reason       string    `db:"reason" json:"reason"`
	PerformedBy  string    `db:"performed_by" json:"performed_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MovementRepository handles stock movement persistence
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

const movementInsert = `
	INSERT INTO stock_movements (id, medication_id, type, quantity, reason, performed_by)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at
`

// Create inserts a movement outside a transaction.
func (r *MovementRepository) Create(ctx context.Context, m *Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return r.db.QueryRowxContext(ctx, movementInsert,
		m.ID, m.MedicationID, m.Type, m.Quantity, m.Reason, m.PerformedBy,
	).Scan(&m.CreatedAt)
}

// CreateTx inserts a movement inside a transaction, alongside the stock
// update it documents.
func (r *MovementRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, m *Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return tx.QueryRowxContext(ctx, movementInsert,
		m.ID, m.MedicationID, m.Type, m.Quantity, m.Reason, m.PerformedBy,
	).Scan(&m.CreatedAt)
}

// ListByMedication lists the movements of one medication, newest first.
func (r *MovementRepository) ListByMedication(ctx context.Context, medicationID string, page, perPage int) ([]*Movement, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM stock_movements WHERE medication_id = $1`, medicationID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `
		SELECT id, medication_id, type, quantity, reason, performed_by, created_at
		FROM stock_movements
		WHERE medication_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var movements []*Movement
	if err := r.db.SelectContext(ctx, &movements, query, medicationID, perPage, offset); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// CountByMedication returns the number of movements recorded for a medication.
// Drives the soft-versus-hard delete decision.
func (r *MovementRepository) CountByMedication(ctx context.Context, medicationID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM stock_movements WHERE medication_id = $1`, medicationID)
	return count, err
}
