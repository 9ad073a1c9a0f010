package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStock(t *testing.T) {
	tests := []struct {
		name     string
		stock    int
		minStock int
		wantType string
		wantPrio string
		wantHit  bool
	}{
		{"exhausted wins over minimum", 0, 10, AlertStockOut, PriorityCritical, true},
		{"exhausted with zero minimum", 0, 0, AlertStockOut, PriorityCritical, true},
		{"critical at half of minimum", 5, 10, AlertStockCritical, PriorityHigh, true},
		{"critical below half of minimum", 4, 10, AlertStockCritical, PriorityHigh, true},
		{"minimum above half", 6, 10, AlertStockMinimum, PriorityMedium, true},
		{"minimum at threshold", 10, 10, AlertStockMinimum, PriorityMedium, true},
		{"no alert above minimum", 11, 10, "", "", false},
		{"odd minimum rounds toward critical", 3, 7, AlertStockCritical, PriorityHigh, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hit := ClassifyStock(tt.stock, tt.minStock)
			require.Equal(t, tt.wantHit, hit)
			if hit {
				assert.Equal(t, tt.wantType, got.Type)
				assert.Equal(t, tt.wantPrio, got.Priority)
			}
		})
	}
}

func TestClassifyExpiry(t *testing.T) {
	now := day("2024-11-01")

	tests := []struct {
		name     string
		expiry   string
		wantType string
		wantPrio string
		wantHit  bool
	}{
		{"already expired", "2024-10-15", AlertExpired, PriorityCritical, true},
		{"expired yesterday", "2024-10-31", AlertExpired, PriorityCritical, true},
		{"expires today", "2024-11-01", AlertExpiryImminent, PriorityHigh, true},
		{"expires within a week", "2024-11-08", AlertExpiryImminent, PriorityHigh, true},
		{"expires within thirty days", "2024-11-20", AlertExpiryNear, PriorityMedium, true},
		{"expires at thirty days", "2024-12-01", AlertExpiryNear, PriorityMedium, true},
		{"expires beyond the window", "2025-03-01", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hit := ClassifyExpiry(day(tt.expiry), now)
			require.Equal(t, tt.wantHit, hit)
			if hit {
				assert.Equal(t, tt.wantType, got.Type)
				assert.Equal(t, tt.wantPrio, got.Priority)
			}
		})
	}
}
