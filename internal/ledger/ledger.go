// Package ledger holds the pure inventory logic: lot deduction planning,
// alert classification and search-key normalization. It operates on
// in-memory snapshots only; persistence and locking belong to the callers.
package ledger

import (
	"sort"
	"time"

	"github.com/farmatrack/farmatrack-backend/pkg/errors"
)

// Policy selects the order in which lots are consumed.
type Policy string

const (
	// FIFO consumes the oldest lots first (by creation time).
	FIFO Policy = "FIFO"
	// FEFO consumes the lots closest to expiry first.
	FEFO Policy = "FEFO"
)

// Lot is a snapshot of one sellable lot of a medication.
type Lot struct {
	ID         string
	LotCode    string
	ExpiryDate time.Time
	CreatedAt  time.Time
	Stock      int
}

// Deduction is one step of a deduction plan.
type Deduction struct {
	LotID          string    `json:"lot_id"`
	LotCode        string    `json:"lot_code"`
	Quantity       int       `json:"quantity"`
	PreviousStock  int       `json:"previous_stock"`
	RemainingStock int       `json:"remaining_stock"`
	ExpiryDate     time.Time `json:"expiry_date"`
}

// PlanOptions tune plan construction.
type PlanOptions struct {
	// IncludeExpired admits expired lots into a FEFO plan. FIFO plans
	// never filter on expiry; callers validate that separately.
	IncludeExpired bool
	// Now anchors expiry comparisons. Zero means time.Now().
	Now time.Time
}

// BuildPlan produces an ordered deduction plan covering exactly quantity
// units, or an InsufficientStock error when the eligible lots cannot cover
// the request. The plan is all-or-nothing: a partial cover returns an error
// and no plan.
func BuildPlan(lots []Lot, quantity int, policy Policy, opts PlanOptions) ([]Deduction, error) {
	if quantity <= 0 {
		return nil, errors.BadRequest("quantity must be greater than zero")
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	eligible := make([]Lot, 0, len(lots))
	for _, lot := range lots {
		if lot.Stock <= 0 {
			continue
		}
		if policy == FEFO && !opts.IncludeExpired && expired(lot.ExpiryDate, now) {
			continue
		}
		eligible = append(eligible, lot)
	}

	// Ties break on creation time, then ID, so a plan is deterministic
	// regardless of the order lots were loaded in.
	switch policy {
	case FEFO:
		sort.SliceStable(eligible, func(i, j int) bool {
			if !eligible[i].ExpiryDate.Equal(eligible[j].ExpiryDate) {
				return eligible[i].ExpiryDate.Before(eligible[j].ExpiryDate)
			}
			return olderLot(eligible[i], eligible[j])
		})
	default:
		sort.SliceStable(eligible, func(i, j int) bool {
			return olderLot(eligible[i], eligible[j])
		})
	}

	available := 0
	for _, lot := range eligible {
		available += lot.Stock
	}
	if available < quantity {
		return nil, errors.InsufficientStock(quantity, available)
	}

	plan := make([]Deduction, 0, len(eligible))
	remaining := quantity
	for _, lot := range eligible {
		if remaining == 0 {
			break
		}
		take := lot.Stock
		if take > remaining {
			take = remaining
		}
		plan = append(plan, Deduction{
			LotID:          lot.ID,
			LotCode:        lot.LotCode,
			Quantity:       take,
			PreviousStock:  lot.Stock,
			RemainingStock: lot.Stock - take,
			ExpiryDate:     lot.ExpiryDate,
		})
		remaining -= take
	}

	return plan, nil
}

func olderLot(a, b Lot) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// expired reports whether the expiry date has passed. Comparison is by
// calendar day so a lot expiring today is still sellable.
func expired(expiryDate, now time.Time) bool {
	return DaysUntil(expiryDate, now) < 0
}

// DaysUntil returns the whole calendar days from now until the given date.
// Negative for past dates.
func DaysUntil(date, now time.Time) int {
	y, m, d := date.Date()
	target := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = now.Date()
	base := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(target.Sub(base).Hours() / 24)
}
