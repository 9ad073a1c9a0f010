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

// Purchase order statuses
const (
	OrderPending  = "PENDIENTE"
	OrderSent     = "ENVIADA"
	OrderReceived = "RECIBIDA"
	OrderDelayed  = "RETRASADA"
)

// PurchaseOrder is an order to a supplier. Numbers run OC-YYYY-NNNN,
// restarting each year.
type PurchaseOrder struct {
	ID             string          `db:"id" json:"id"`
	OrderNumber    string          `db:"order_number" json:"order_number"`
	SupplierID     string          `db:"supplier_id" json:"supplier_id"`
	Status         string          `db:"status" json:"status"`
	ExpectedDate   time.Time       `db:"expected_date" json:"expected_date"`
	SentAt         *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	ReceivedAt     *time.Time      `db:"received_at" json:"received_at,omitempty"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	EstimatedTotal decimal.Decimal `db:"estimated_total" json:"estimated_total"`
	CreatedBy      string          `db:"created_by" json:"created_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`

	Lines []*OrderLine `db:"-" json:"lines,omitempty"`
}

// OrderLine snapshots the ordered medication's lot, expiry and price at
// creation time.
type OrderLine struct {
	ID               string          `db:"id" json:"id"`
	OrderID          string          `db:"order_id" json:"order_id"`
	MedicationID     string          `db:"medication_id" json:"medication_id"`
	MedicationName   string          `db:"medication_name" json:"medication_name"`
	Quantity         int             `db:"quantity" json:"quantity"`
	ReceivedQuantity *int            `db:"received_quantity" json:"received_quantity,omitempty"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	ExpectedLot      string          `db:"expected_lot" json:"expected_lot"`
	ExpectedExpiry   time.Time       `db:"expected_expiry" json:"expected_expiry"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

const orderColumns = `
	id, order_number, supplier_id, status, expected_date, sent_at, received_at,
	notes, estimated_total, created_by, created_at, updated_at
`

const orderLineColumns = `
	id, order_id, medication_id, medication_name, quantity, received_quantity,
	unit_price, expected_lot, expected_expiry, created_at
`

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status     string
	SupplierID string
}

// OrderRepository handles purchase order persistence
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// NextOrderNumber reserves the next OC-YYYY-NNNN number for the given year.
// Runs inside the creating transaction so concurrent creates cannot collide.
func (r *OrderRepository) NextOrderNumber(ctx context.Context, tx *sqlx.Tx, year int) (string, error) {
	var seq int
	query := `
		INSERT INTO order_sequences (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = order_sequences.last_value + 1
		RETURNING last_value
	`
	if err := tx.QueryRowxContext(ctx, query, year).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("OC-%d-%04d", year, seq), nil
}

// CreateTx inserts an order and its lines inside a transaction.
func (r *OrderRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, order *PurchaseOrder) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Status == "" {
		order.Status = OrderPending
	}

	query := `
		INSERT INTO purchase_orders (
			id, order_number, supplier_id, status, expected_date, notes,
			estimated_total, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		order.ID, order.OrderNumber, order.SupplierID, order.Status,
		order.ExpectedDate, order.Notes, order.EstimatedTotal, order.CreatedBy,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return r.insertLinesTx(ctx, tx, order.ID, order.Lines)
}

// ReplaceLinesTx rewrites an order's lines. Only valid while PENDIENTE.
func (r *OrderRepository) ReplaceLinesTx(ctx context.Context, tx *sqlx.Tx, orderID string, lines []*OrderLine) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM purchase_order_lines WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	return r.insertLinesTx(ctx, tx, orderID, lines)
}

func (r *OrderRepository) insertLinesTx(ctx context.Context, tx *sqlx.Tx, orderID string, lines []*OrderLine) error {
	query := `
		INSERT INTO purchase_order_lines (
			id, order_id, medication_id, medication_name, quantity, unit_price,
			expected_lot, expected_expiry
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	for _, line := range lines {
		if line.ID == "" {
			line.ID = uuid.New().String()
		}
		line.OrderID = orderID

		err := tx.QueryRowxContext(ctx, query,
			line.ID, line.OrderID, line.MedicationID, line.MedicationName,
			line.Quantity, line.UnitPrice, line.ExpectedLot, line.ExpectedExpiry,
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

// GetByID gets an order with its lines
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*PurchaseOrder, error) {
	var order PurchaseOrder
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id = $1`

	err := r.db.GetContext(ctx, &order, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("purchase order")
	}
	if err != nil {
		return nil, err
	}

	if err := r.db.SelectContext(ctx, &order.Lines,
		`SELECT `+orderLineColumns+` FROM purchase_order_lines WHERE order_id = $1 ORDER BY created_at`, id); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetForUpdate loads an order inside a transaction with a row lock.
func (r *OrderRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*PurchaseOrder, error) {
	var order PurchaseOrder
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id = $1 FOR UPDATE`

	err := tx.GetContext(ctx, &order, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("purchase order")
	}
	if err != nil {
		return nil, err
	}

	if err := tx.SelectContext(ctx, &order.Lines,
		`SELECT `+orderLineColumns+` FROM purchase_order_lines WHERE order_id = $1 ORDER BY created_at`, id); err != nil {
		return nil, err
	}
	return &order, nil
}

// List lists orders with pagination, newest first
func (r *OrderRepository) List(ctx context.Context, page, perPage int, filter OrderFilter) ([]*PurchaseOrder, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 1

	if filter.Status != "" {
		where += ` AND status = $` + strconv.Itoa(n)
		args = append(args, filter.Status)
		n++
	}
	if filter.SupplierID != "" {
		where += ` AND supplier_id = $` + strconv.Itoa(n)
		args = append(args, filter.SupplierID)
		n++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM purchase_orders`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT ` + orderColumns + ` FROM purchase_orders` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n) + ` OFFSET $` + strconv.Itoa(n+1)
	args = append(args, perPage, offset)

	var orders []*PurchaseOrder
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdatePendingTx updates a PENDIENTE order's header inside a transaction.
func (r *OrderRepository) UpdatePendingTx(ctx context.Context, tx *sqlx.Tx, order *PurchaseOrder) error {
	query := `
		UPDATE purchase_orders SET
			supplier_id = $2, expected_date = $3, notes = $4,
			estimated_total = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6
	`

	result, err := tx.ExecContext(ctx, query,
		order.ID, order.SupplierID, order.ExpectedDate, order.Notes,
		order.EstimatedTotal, OrderPending,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.InvalidState("order is not editable")
	}
	return nil
}

// MarkSent transitions an order out of PENDIENTE, stamping sent_at. The
// target status is ENVIADA, or RETRASADA when the expected date has
// already passed.
func (r *OrderRepository) MarkSent(ctx context.Context, id, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE purchase_orders SET status = $2, sent_at = NOW(), updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("purchase order")
	}
	return nil
}

// MarkDelayed flags a sent order as RETRASADA.
func (r *OrderRepository) MarkDelayed(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
		id, OrderDelayed, OrderSent)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("purchase order")
	}
	return nil
}

// MarkReceivedTx completes an order inside the receiving transaction.
func (r *OrderRepository) MarkReceivedTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE purchase_orders SET status = $2, received_at = NOW(), updated_at = NOW() WHERE id = $1`,
		id, OrderReceived)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("purchase order")
	}
	return nil
}

// SetLineReceivedTx records the received quantity of one line.
func (r *OrderRepository) SetLineReceivedTx(ctx context.Context, tx *sqlx.Tx, lineID string, received int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE purchase_order_lines SET received_quantity = $2 WHERE id = $1`, lineID, received)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("order line")
	}
	return nil
}

// ListOverdueSent returns sent orders whose expected date is before the
// given day. Feeds the delayed-order scan.
func (r *OrderRepository) ListOverdueSent(ctx context.Context, before time.Time) ([]*PurchaseOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM purchase_orders
		WHERE status = $1 AND expected_date < $2
		ORDER BY expected_date
	`

	var orders []*PurchaseOrder
	if err := r.db.SelectContext(ctx, &orders, query, OrderSent, before); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListDelayed returns orders currently flagged RETRASADA.
func (r *OrderRepository) ListDelayed(ctx context.Context) ([]*PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE status = $1 ORDER BY expected_date`

	var orders []*PurchaseOrder
	if err := r.db.SelectContext(ctx, &orders, query, OrderDelayed); err != nil {
		return nil, err
	}
	return orders, nil
}
