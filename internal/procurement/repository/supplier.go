package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/farmatrack/farmatrack-backend/pkg/database"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
)

// Supplier statuses
const (
	SupplierActive   = "ACTIVO"
	SupplierInactive = "INACTIVO"
)

// Supplier is a purchase-order counterparty, identified by its NIT.
type Supplier struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	NIT         string    `db:"nit" json:"nit"`
	ContactName *string   `db:"contact_name" json:"contact_name,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Email       *string   `db:"email" json:"email,omitempty"`
	Address     *string   `db:"address" json:"address,omitempty"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

const supplierColumns = `
	id, name, nit, contact_name, phone, email, address, status,
	created_at, updated_at
`

// SupplierRepository handles supplier persistence
type SupplierRepository struct {
	db *database.DB
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *database.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

// Create creates a new supplier
func (r *SupplierRepository) Create(ctx context.Context, s *Supplier) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = SupplierActive
	}

	query := `
		INSERT INTO suppliers (id, name, nit, contact_name, phone, email, address, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		s.ID, s.Name, s.NIT, s.ContactName, s.Phone, s.Email, s.Address, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a supplier by ID
func (r *SupplierRepository) GetByID(ctx context.Context, id string) (*Supplier, error) {
	var s Supplier
	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE id = $1`

	err := r.db.GetContext(ctx, &s, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("supplier")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List lists suppliers with pagination
func (r *SupplierRepository) List(ctx context.Context, page, perPage int, status, search string) ([]*Supplier, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 1

	if status != "" {
		where += ` AND status = $` + strconv.Itoa(n)
		args = append(args, status)
		n++
	}
	if search != "" {
		where += ` AND (name ILIKE $` + strconv.Itoa(n) + ` OR nit ILIKE $` + strconv.Itoa(n) + `)`
		args = append(args, "%"+search+"%")
		n++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM suppliers`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT ` + supplierColumns + ` FROM suppliers` + where +
		` ORDER BY name LIMIT $` + strconv.Itoa(n) + ` OFFSET $` + strconv.Itoa(n+1)
	args = append(args, perPage, offset)

	var suppliers []*Supplier
	if err := r.db.SelectContext(ctx, &suppliers, query, args...); err != nil {
		return nil, 0, err
	}
	return suppliers, total, nil
}

// Update updates a supplier
func (r *SupplierRepository) Update(ctx context.Context, s *Supplier) error {
	query := `
		UPDATE suppliers SET
			name = $2, nit = $3, contact_name = $4, phone = $5, email = $6,
			address = $7, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.NIT, s.ContactName, s.Phone, s.Email, s.Address,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("supplier")
	}
	return nil
}

// SetStatus transitions a supplier between ACTIVO and INACTIVO.
func (r *SupplierRepository) SetStatus(ctx context.Context, id, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE suppliers SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("supplier")
	}
	return nil
}

// HardDelete removes a supplier row. Only valid for suppliers without
// purchase orders.
func (r *SupplierRepository) HardDelete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("supplier")
	}
	return nil
}

// CountOrders returns the number of purchase orders referencing a supplier.
func (r *SupplierRepository) CountOrders(ctx context.Context, supplierID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM purchase_orders WHERE supplier_id = $1`, supplierID)
	return count, err
}
