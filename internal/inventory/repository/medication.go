package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/farmatrack/farmatrack-backend/pkg/database"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
)

// Medication statuses
const (
	StatusActive   = "ACTIVO"
	StatusInactive = "INACTIVO"
)

// Medication represents one lot of a medication. Records sharing the same
// search key describe the same product; the search key is unique among
// active, non-deleted records.
type Medication struct {
	ID               string          `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	Description      *string         `db:"description" json:"description,omitempty"`
	Manufacturer     string          `db:"manufacturer" json:"manufacturer"`
	Presentation     string          `db:"presentation" json:"presentation"`
	ActiveIngredient *string         `db:"active_ingredient" json:"active_ingredient,omitempty"`
	LotCode          string          `db:"lot_code" json:"lot_code"`
	ExpiryDate       time.Time       `db:"expiry_date" json:"expiry_date"`
	Stock            int             `db:"stock" json:"stock"`
	MinStock         int             `db:"min_stock" json:"min_stock"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	SearchKey        string          `db:"search_key" json:"-"`
	Status           string          `db:"status" json:"status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time      `db:"deleted_at" json:"-"`
}

const medicationColumns = `
	id, name, description, manufacturer, presentation, active_ingredient,
	lot_code, expiry_date, stock, min_stock, unit_price, search_key, status,
	created_at, updated_at
`

// MedicationFilter narrows List queries.
type MedicationFilter struct {
	Status       string
	Search       string
	BelowMinOnly bool
}

// MedicationRepository handles medication persistence
type MedicationRepository struct {
	db *database.DB
}

// NewMedicationRepository creates a new medication repository
func NewMedicationRepository(db *database.DB) *MedicationRepository {
	return &MedicationRepository{db: db}
}

// Create creates a new medication
func (r *MedicationRepository) Create(ctx context.Context, med *Medication) error {
	if med.ID == "" {
		med.ID = uuid.New().String()
	}
	if med.Status == "" {
		med.Status = StatusActive
	}

	query := `
		INSERT INTO medications (
			id, name, description, manufacturer, presentation, active_ingredient,
			lot_code, expiry_date, stock, min_stock, unit_price, search_key, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		med.ID, med.Name, med.Description, med.Manufacturer, med.Presentation,
		med.ActiveIngredient, med.LotCode, med.ExpiryDate, med.Stock,
		med.MinStock, med.UnitPrice, med.SearchKey, med.Status,
	).Scan(&med.CreatedAt, &med.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a medication by ID
func (r *MedicationRepository) GetByID(ctx context.Context, id string) (*Medication, error) {
	var med Medication
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE id = $1 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, &med, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("medication")
	}
	if err != nil {
		return nil, err
	}
	return &med, nil
}

// FindActiveBySearchKey returns the active medication with the given search
// key, excluding excludeID (pass "" on create). Inactive and deleted records
// do not participate in duplicate detection.
func (r *MedicationRepository) FindActiveBySearchKey(ctx context.Context, searchKey, excludeID string) (*Medication, error) {
	var med Medication
	query := `
		SELECT ` + medicationColumns + `
		FROM medications
		WHERE search_key = $1 AND status = $2 AND deleted_at IS NULL AND id <> $3
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &med, query, searchKey, StatusActive, excludeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &med, nil
}

// List lists medications with pagination. Inactive records are only
// included when the filter asks for them.
func (r *MedicationRepository) List(ctx context.Context, page, perPage int, filter MedicationFilter) ([]*Medication, int64, error) {
	where := ` WHERE deleted_at IS NULL`
	args := []interface{}{}
	n := 1

	if filter.Status != "" {
		where += ` AND status = $` + strconv.Itoa(n)
		args = append(args, filter.Status)
		n++
	}
	if filter.Search != "" {
		where += ` AND (name ILIKE $` + strconv.Itoa(n) + ` OR active_ingredient ILIKE $` + strconv.Itoa(n) + `)`
		args = append(args, "%"+filter.Search+"%")
		n++
	}
	if filter.BelowMinOnly {
		where += ` AND stock <= min_stock`
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM medications`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT ` + medicationColumns + ` FROM medications` + where +
		` ORDER BY name, expiry_date LIMIT $` + strconv.Itoa(n) + ` OFFSET $` + strconv.Itoa(n+1)
	args = append(args, perPage, offset)

	var meds []*Medication
	if err := r.db.SelectContext(ctx, &meds, query, args...); err != nil {
		return nil, 0, err
	}
	return meds, total, nil
}

// Update updates a medication
func (r *MedicationRepository) Update(ctx context.Context, med *Medication) error {
	query := `
		UPDATE medications SET
			name = $2, description = $3, manufacturer = $4, presentation = $5,
			active_ingredient = $6, lot_code = $7, expiry_date = $8, stock = $9,
			min_stock = $10, unit_price = $11, search_key = $12, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		med.ID, med.Name, med.Description, med.Manufacturer, med.Presentation,
		med.ActiveIngredient, med.LotCode, med.ExpiryDate, med.Stock,
		med.MinStock, med.UnitPrice, med.SearchKey,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medication")
	}
	return nil
}

// SetStatus transitions a medication between ACTIVO and INACTIVO.
func (r *MedicationRepository) SetStatus(ctx context.Context, id, status string) error {
	query := `UPDATE medications SET status = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medication")
	}
	return nil
}

// HardDelete removes a medication row entirely. Only valid for records
// without movement history.
func (r *MedicationRepository) HardDelete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM medications WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medication")
	}
	return nil
}

// SiblingLots returns the sellable lots of the same product: active,
// non-deleted records sharing the identifying triple, with stock on hand.
func (r *MedicationRepository) SiblingLots(ctx context.Context, name, presentation, manufacturer string) ([]*Medication, error) {
	query := `
		SELECT ` + medicationColumns + `
		FROM medications
		WHERE name = $1 AND presentation = $2 AND manufacturer = $3
		  AND status = $4 AND deleted_at IS NULL AND stock > 0
		ORDER BY expiry_date
	`

	var lots []*Medication
	if err := r.db.SelectContext(ctx, &lots, query, name, presentation, manufacturer, StatusActive); err != nil {
		return nil, err
	}
	return lots, nil
}

// SiblingLotsForUpdate is SiblingLots inside a transaction with row locks,
// for deduction plans that must not race concurrent sales.
func (r *MedicationRepository) SiblingLotsForUpdate(ctx context.Context, tx *sqlx.Tx, name, presentation, manufacturer string) ([]*Medication, error) {
	query := `
		SELECT ` + medicationColumns + `
		FROM medications
		WHERE name = $1 AND presentation = $2 AND manufacturer = $3
		  AND status = $4 AND deleted_at IS NULL AND stock > 0
		ORDER BY expiry_date
		FOR UPDATE
	`

	var lots []*Medication
	if err := tx.SelectContext(ctx, &lots, query, name, presentation, manufacturer, StatusActive); err != nil {
		return nil, err
	}
	return lots, nil
}

// GetForUpdate loads a medication inside a transaction with a row lock.
func (r *MedicationRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*Medication, error) {
	var med Medication
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`

	err := tx.GetContext(ctx, &med, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("medication")
	}
	if err != nil {
		return nil, err
	}
	return &med, nil
}

// UpdateStockTx sets a medication's stock inside a transaction.
func (r *MedicationRepository) UpdateStockTx(ctx context.Context, tx *sqlx.Tx, id string, stock int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE medications SET stock = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, stock,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medication")
	}
	return nil
}

// GetAllActive returns every active medication, for alert scans.
func (r *MedicationRepository) GetAllActive(ctx context.Context) ([]*Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE status = $1 AND deleted_at IS NULL ORDER BY name`

	var meds []*Medication
	if err := r.db.SelectContext(ctx, &meds, query, StatusActive); err != nil {
		return nil, err
	}
	return meds, nil
}

// Stats aggregates the dashboard counters.
type Stats struct {
	TotalActive    int64           `db:"total_active" json:"total_active"`
	TotalInactive  int64           `db:"total_inactive" json:"total_inactive"`
	StockOut       int64           `db:"stock_out" json:"stock_out"`
	BelowMinimum   int64           `db:"below_minimum" json:"below_minimum"`
	ExpiringSoon   int64           `db:"expiring_soon" json:"expiring_soon"`
	Expired        int64           `db:"expired" json:"expired"`
	InventoryValue decimal.Decimal `db:"inventory_value" json:"inventory_value"`
}

// GetStats computes the dashboard counters in one pass.
func (r *MedicationRepository) GetStats(ctx context.Context, expiryWarnDays int) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'ACTIVO') AS total_active,
			COUNT(*) FILTER (WHERE status = 'INACTIVO') AS total_inactive,
			COUNT(*) FILTER (WHERE status = 'ACTIVO' AND stock = 0) AS stock_out,
			COUNT(*) FILTER (WHERE status = 'ACTIVO' AND stock > 0 AND stock <= min_stock) AS below_minimum,
			COUNT(*) FILTER (WHERE status = 'ACTIVO' AND expiry_date >= CURRENT_DATE
				AND expiry_date <= CURRENT_DATE + $1 * INTERVAL '1 day') AS expiring_soon,
			COUNT(*) FILTER (WHERE status = 'ACTIVO' AND expiry_date < CURRENT_DATE) AS expired,
			COALESCE(SUM(stock * unit_price) FILTER (WHERE status = 'ACTIVO'), 0) AS inventory_value
		FROM medications
		WHERE deleted_at IS NULL
	`

	var stats Stats
	if err := r.db.GetContext(ctx, &stats, query, expiryWarnDays); err != nil {
		return nil, err
	}
	return &stats, nil
}

