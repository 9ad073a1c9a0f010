package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/farmatrack/farmatrack-backend/pkg/database"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
)

// Sale statuses
const (
	SalePending   = "PENDIENTE"
	SaleConfirmed = "CONFIRMADA"
	SaleCancelled = "CANCELADA"
)

// Sale is a sales transaction. Numbers run VT-YYYY-NNNN, restarting each
// year. Stock is deducted on confirmation, not on creation.
type Sale struct {
	ID           string          `db:"id" json:"id"`
	SaleNumber   string          `db:"sale_number" json:"sale_number"`
	Status       string          `db:"status" json:"status"`
	CustomerName *string         `db:"customer_name" json:"customer_name,omitempty"`
	Policy       string          `db:"policy" json:"policy"`
	Total        decimal.Decimal `db:"total" json:"total"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	ConfirmedAt  *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CancelledAt  *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`

	Lines []*SaleLine `db:"-" json:"lines,omitempty"`
}

// SaleLine is one deduction of a sale. Before confirmation the lot is
// empty; confirmation rewrites the lines with the lot actually deducted
// and the unit price at sale time.
type SaleLine struct {
	ID             string          `db:"id" json:"id"`
	SaleID         string          `db:"sale_id" json:"sale_id"`
	MedicationID   string          `db:"medication_id" json:"medication_id"`
	MedicationName string          `db:"medication_name" json:"medication_name"`
	LotCode        *string         `db:"lot_code" json:"lot_code,omitempty"`
	Quantity       int             `db:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

const saleColumns = `
	id, sale_number, status, customer_name, policy, total, created_by,
	confirmed_at, cancelled_at, created_at, updated_at
`

const saleLineColumns = `
	id, sale_id, medication_id, medication_name, lot_code, quantity,
	unit_price, subtotal, created_at
`

// SaleFilter narrows sale listings.
type SaleFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
}

// SaleRepository handles sale persistence
type SaleRepository struct {
	db *database.DB
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *database.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// NextSaleNumber reserves the next VT-YYYY-NNNN number for the given year.
func (r *SaleRepository) NextSaleNumber(ctx context.Context, tx *sqlx.Tx, year int) (string, error) {
	var seq int
	query := `
		INSERT INTO sale_sequences (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = sale_sequences.last_value + 1
		RETURNING last_value
	`
	if err := tx.QueryRowxContext(ctx, query, year).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("VT-%d-%04d", year, seq), nil
}

// CreateTx inserts a sale and its lines inside a transaction.
func (r *SaleRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, sale *Sale) error {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}
	if sale.Status == "" {
		sale.Status = SalePending
	}

	query := `
		INSERT INTO sales (id, sale_number, status, customer_name, policy, total, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		sale.ID, sale.SaleNumber, sale.Status, sale.CustomerName, sale.Policy,
		sale.Total, sale.CreatedBy,
	).Scan(&sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return r.insertLinesTx(ctx, tx, sale.ID, sale.Lines)
}

// ReplaceLinesTx rewrites a sale's lines, used by confirmation to record
// the per-lot breakdown.
func (r *SaleRepository) ReplaceLinesTx(ctx context.Context, tx *sqlx.Tx, saleID string, lines []*SaleLine) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, saleID); err != nil {
		return err
	}
	return r.insertLinesTx(ctx, tx, saleID, lines)
}

func (r *SaleRepository) insertLinesTx(ctx context.Context, tx *sqlx.Tx, saleID string, lines []*SaleLine) error {
	query := `
		INSERT INTO sale_lines (
			id, sale_id, medication_id, medication_name, lot_code, quantity,
			unit_price, subtotal
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	for _, line := range lines {
		if line.ID == "" {
			line.ID = uuid.New().String()
		}
		line.SaleID = saleID

		err := tx.QueryRowxContext(ctx, query,
			line.ID, line.SaleID, line.MedicationID, line.MedicationName,
			line.LotCode, line.Quantity, line.UnitPrice, line.Subtotal,
		).Scan(&line.CreatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
	}
	return nil
}

// GetByID gets a sale with its lines
func (r *SaleRepository) GetByID(ctx context.Context, id string) (*Sale, error) {
	var sale Sale
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`

	err := r.db.GetContext(ctx, &sale, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("sale")
	}
	if err != nil {
		return nil, err
	}

	if err := r.db.SelectContext(ctx, &sale.Lines,
		`SELECT `+saleLineColumns+` FROM sale_lines WHERE sale_id = $1 ORDER BY created_at`, id); err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetForUpdate loads a sale inside a transaction with a row lock.
func (r *SaleRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*Sale, error) {
	var sale Sale
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1 FOR UPDATE`

	err := tx.GetContext(ctx, &sale, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("sale")
	}
	if err != nil {
		return nil, err
	}

	if err := tx.SelectContext(ctx, &sale.Lines,
		`SELECT `+saleLineColumns+` FROM sale_lines WHERE sale_id = $1 ORDER BY created_at`, id); err != nil {
		return nil, err
	}
	return &sale, nil
}

// List lists sales with pagination, newest first
func (r *SaleRepository) List(ctx context.Context, page, perPage int, filter SaleFilter) ([]*Sale, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 1

	if filter.Status != "" {
		where += ` AND status = $` + strconv.Itoa(n)
		args = append(args, filter.Status)
		n++
	}
	if filter.From != nil {
		where += ` AND created_at >= $` + strconv.Itoa(n)
		args = append(args, *filter.From)
		n++
	}
	if filter.To != nil {
		where += ` AND created_at <= $` + strconv.Itoa(n)
		args = append(args, *filter.To)
		n++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM sales`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT ` + saleColumns + ` FROM sales` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n) + ` OFFSET $` + strconv.Itoa(n+1)
	args = append(args, perPage, offset)

	var sales []*Sale
	if err := r.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

// MarkConfirmedTx stamps a sale CONFIRMADA inside the confirming
// transaction.
func (r *SaleRepository) MarkConfirmedTx(ctx context.Context, tx *sqlx.Tx, id string, total decimal.Decimal) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE sales SET status = $2, total = $3, confirmed_at = NOW(), updated_at = NOW() WHERE id = $1`,
		id, SaleConfirmed, total)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("sale")
	}
	return nil
}

// MarkCancelled stamps a sale CANCELADA.
func (r *SaleRepository) MarkCancelled(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sales SET status = $2, cancelled_at = NOW(), updated_at = NOW() WHERE id = $1`,
		id, SaleCancelled)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("sale")
	}
	return nil
}

// DailySales is one row of the sales report.
type DailySales struct {
	Day     time.Time       `db:"day" json:"day"`
	Count   int64           `db:"count" json:"count"`
	Units   int64           `db:"units" json:"units"`
	Revenue decimal.Decimal `db:"revenue" json:"revenue"`
}

// SalesSummary aggregates confirmed sales in a period.
type SalesSummary struct {
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Count   int64           `json:"count"`
	Units   int64           `json:"units"`
	Revenue decimal.Decimal `json:"revenue"`
	Daily   []DailySales    `json:"daily"`
}

// Summarize aggregates confirmed sales between from and to (inclusive).
func (r *SaleRepository) Summarize(ctx context.Context, from, to time.Time) (*SalesSummary, error) {
	summary := &SalesSummary{From: from, To: to, Revenue: decimal.Zero}

	totalsQuery := `
		SELECT COUNT(DISTINCT s.id) AS count,
		       COALESCE(SUM(l.quantity), 0) AS units,
		       COALESCE(SUM(l.subtotal), 0) AS revenue
		FROM sales s
		JOIN sale_lines l ON l.sale_id = s.id
		WHERE s.status = $1 AND s.confirmed_at >= $2 AND s.confirmed_at < $3
	`

	row := struct {
		Count   int64           `db:"count"`
		Units   int64           `db:"units"`
		Revenue decimal.Decimal `db:"revenue"`
	}{}
	end := to.AddDate(0, 0, 1)
	if err := r.db.GetContext(ctx, &row, totalsQuery, SaleConfirmed, from, end); err != nil {
		return nil, err
	}
	summary.Count = row.Count
	summary.Units = row.Units
	summary.Revenue = row.Revenue

	dailyQuery := `
		SELECT date_trunc('day', s.confirmed_at) AS day,
		       COUNT(DISTINCT s.id) AS count,
		       COALESCE(SUM(l.quantity), 0) AS units,
		       COALESCE(SUM(l.subtotal), 0) AS revenue
		FROM sales s
		JOIN sale_lines l ON l.sale_id = s.id
		WHERE s.status = $1 AND s.confirmed_at >= $2 AND s.confirmed_at < $3
		GROUP BY 1
		ORDER BY 1
	`

	if err := r.db.SelectContext(ctx, &summary.Daily, dailyQuery, SaleConfirmed, from, end); err != nil {
		return nil, err
	}
	return summary, nil
}
