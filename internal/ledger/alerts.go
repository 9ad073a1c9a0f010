package ledger

import "time"

// Alert types
const (
	AlertStockOut       = "STOCK_AGOTADO"
	AlertStockCritical  = "STOCK_CRITICO"
	AlertStockMinimum   = "STOCK_MINIMO"
	AlertExpired        = "VENCIDO"
	AlertExpiryImminent = "VENCIMIENTO_INMEDIATO"
	AlertExpiryNear     = "VENCIMIENTO_PROXIMO"
	AlertOrderDelayed   = "ORDEN_RETRASADA"
)

// Alert priorities
const (
	PriorityLow      = "BAJA"
	PriorityMedium   = "MEDIA"
	PriorityHigh     = "ALTA"
	PriorityCritical = "CRITICA"
)

// StockAlertTypes are the mutually exclusive stock-axis alert types.
var StockAlertTypes = []string{AlertStockOut, AlertStockCritical, AlertStockMinimum}

// ExpiryAlertTypes are the mutually exclusive expiry-axis alert types.
var ExpiryAlertTypes = []string{AlertExpired, AlertExpiryImminent, AlertExpiryNear}

// Classification is the outcome of evaluating one alert axis.
type Classification struct {
	Type     string
	Priority string
}

// ClassifyStock evaluates the stock axis for a medication. The second
// return value is false when no stock alert applies. Exhaustion wins over
// the threshold conditions even though it also satisfies them.
func ClassifyStock(stock, minStock int) (Classification, bool) {
	switch {
	case stock == 0:
		return Classification{Type: AlertStockOut, Priority: PriorityCritical}, true
	case stock*2 <= minStock:
		return Classification{Type: AlertStockCritical, Priority: PriorityHigh}, true
	case stock <= minStock:
		return Classification{Type: AlertStockMinimum, Priority: PriorityMedium}, true
	default:
		return Classification{}, false
	}
}

// ClassifyExpiry evaluates the expiry axis for a medication.
// The second return value is false when the expiry is beyond the near window.
func ClassifyExpiry(expiryDate, now time.Time) (Classification, bool) {
	days := DaysUntil(expiryDate, now)
	switch {
	case days < 0:
		return Classification{Type: AlertExpired, Priority: PriorityCritical}, true
	case days <= 7:
		return Classification{Type: AlertExpiryImminent, Priority: PriorityHigh}, true
	case days <= 30:
		return Classification{Type: AlertExpiryNear, Priority: PriorityMedium}, true
	default:
		return Classification{}, false
	}
}
