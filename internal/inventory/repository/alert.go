package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/farmatrack/farmatrack-backend/pkg/database"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
)

// Alert states
const (
	AlertStateActive         = "ACTIVA"
	AlertStatePendingRestock = "PENDIENTE_REPOSICION"
	AlertStateResolved       = "RESUELTA"
)

// Alert is a persisted alert. Resolved alerts are kept as history and are
// never deleted.
type Alert struct {
	ID           string     `db:"id" json:"id"`
	Type         string     `db:"type" json:"type"`
	Priority     string     `db:"priority" json:"priority"`
	State        string     `db:"state" json:"state"`
	Message      string     `db:"message" json:"message"`
	MedicationID *string    `db:"medication_id" json:"medication_id,omitempty"`
	OrderID      *string    `db:"order_id" json:"order_id,omitempty"`
	StockAtAlert *int       `db:"stock_at_alert" json:"stock_at_alert,omitempty"`
	MinStock     *int       `db:"min_stock" json:"min_stock,omitempty"`
	ExpiryDate   *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	LotCode      *string    `db:"lot_code" json:"lot_code,omitempty"`
	Notified     bool       `db:"notified" json:"notified"`
	ResolvedAt   *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy   *string    `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

const alertColumns = `
	id, type, priority, state, message, medication_id, order_id,
	stock_at_alert, min_stock, expiry_date, lot_code, notified,
	resolved_at, resolved_by, created_at, updated_at
`

// AlertFilter narrows alert listings.
type AlertFilter struct {
	State        string
	Type         string
	Priority     string
	MedicationID string
}

// AlertRepository handles alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create creates a new alert
func (r *AlertRepository) Create(ctx context.Context, alert *Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.State == "" {
		alert.State = AlertStateActive
	}

	query := `
		INSERT INTO alerts (
			id, type, priority, state, message, medication_id, order_id,
			stock_at_alert, min_stock, expiry_date, lot_code, notified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		alert.ID, alert.Type, alert.Priority, alert.State, alert.Message,
		alert.MedicationID, alert.OrderID, alert.StockAtAlert, alert.MinStock,
		alert.ExpiryDate, alert.LotCode, alert.Notified,
	).Scan(&alert.CreatedAt, &alert.UpdatedAt)
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	var alert Alert
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	err := r.db.GetContext(ctx, &alert, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("alert")
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// List lists alerts with pagination. Critical alerts sort first, then newest.
func (r *AlertRepository) List(ctx context.Context, page, perPage int, filter AlertFilter) ([]*Alert, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 1

	add := func(column string, value interface{}) {
		where += ` AND ` + column + ` = $` + strconv.Itoa(n)
		args = append(args, value)
		n++
	}

	if filter.State != "" {
		add("state", filter.State)
	}
	if filter.Type != "" {
		add("type", filter.Type)
	}
	if filter.Priority != "" {
		add("priority", filter.Priority)
	}
	if filter.MedicationID != "" {
		add("medication_id", filter.MedicationID)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM alerts`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT ` + alertColumns + ` FROM alerts` + where +
		` ORDER BY CASE priority WHEN 'CRITICA' THEN 0 WHEN 'ALTA' THEN 1 WHEN 'MEDIA' THEN 2 ELSE 3 END, created_at DESC` +
		` LIMIT $` + strconv.Itoa(n) + ` OFFSET $` + strconv.Itoa(n+1)
	args = append(args, perPage, offset)

	var alerts []*Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// FindUnresolvedByMedication returns the unresolved alert of a medication
// whose type falls in the given axis, or nil. At most one unresolved alert
// per axis exists per medication.
func (r *AlertRepository) FindUnresolvedByMedication(ctx context.Context, medicationID string, types []string) (*Alert, error) {
	var alert Alert
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE medication_id = $1 AND type = ANY($2) AND state <> $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &alert, query, medicationID, pq.Array(types), AlertStateResolved)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// FindUnresolvedByOrder returns the unresolved delay alert of a purchase
// order, or nil.
func (r *AlertRepository) FindUnresolvedByOrder(ctx context.Context, orderID, alertType string) (*Alert, error) {
	var alert Alert
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE order_id = $1 AND type = $2 AND state <> $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &alert, query, orderID, alertType, AlertStateResolved)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// Reclassify updates type, priority, message and stock snapshot of an
// unresolved alert in place when the condition shifts within the same axis.
func (r *AlertRepository) Reclassify(ctx context.Context, id, alertType, priority, message string, stockAtAlert *int) error {
	query := `
		UPDATE alerts
		SET type = $2, priority = $3, message = $4, stock_at_alert = $5, updated_at = NOW()
		WHERE id = $1 AND state <> $6
	`
	result, err := r.db.ExecContext(ctx, query, id, alertType, priority, message, stockAtAlert, AlertStateResolved)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

// SetState transitions an alert's state. Transition rules are enforced by
// the service layer.
func (r *AlertRepository) SetState(ctx context.Context, id, state string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET state = $2, updated_at = NOW() WHERE id = $1`, id, state)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

// Resolve marks an alert resolved, optionally recording who resolved it.
// Resolved alerts remain as history.
func (r *AlertRepository) Resolve(ctx context.Context, id string, resolvedBy *string) error {
	query := `
		UPDATE alerts
		SET state = $2, resolved_at = NOW(), resolved_by = $3, updated_at = NOW()
		WHERE id = $1 AND state <> $2
	`
	result, err := r.db.ExecContext(ctx, query, id, AlertStateResolved, resolvedBy)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

// MarkNotified flags an alert as pushed to the notification queues.
func (r *AlertRepository) MarkNotified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET notified = TRUE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// CountUnresolved returns the number of alerts not yet resolved.
func (r *AlertRepository) CountUnresolved(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM alerts WHERE state <> $1`, AlertStateResolved)
	return count, err
}
