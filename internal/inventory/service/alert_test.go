package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/internal/ledger"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
)

func stockAlert(t *testing.T, ctx context.Context, svcs *testServices, medID string) *repository.Alert {
	t.Helper()
	alert, err := svcs.alertRepo.FindUnresolvedByMedication(ctx, medID, ledger.StockAlertTypes)
	require.NoError(t, err)
	return alert
}

func TestAlertService_StockAxisLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()

	med, _, err := svcs.medSvc.Create(ctx, medicationInput("Amoxicilina"), 30)
	require.NoError(t, err)

	// Healthy stock: no alert
	assert.Nil(t, stockAlert(t, ctx, svcs, med.ID))

	// Draw down to the minimum threshold
	_, err = svcs.medSvc.RecordMovement(ctx, med.ID, repository.MovementOut, 90, "Ajuste")
	require.NoError(t, err)

	alert := stockAlert(t, ctx, svcs, med.ID)
	require.NotNil(t, alert)
	assert.Equal(t, ledger.AlertStockMinimum, alert.Type)
	assert.Equal(t, ledger.PriorityMedium, alert.Priority)

	// Further down: the same alert is reclassified, not duplicated
	_, err = svcs.medSvc.RecordMovement(ctx, med.ID, repository.MovementOut, 10, "Ajuste")
	require.NoError(t, err)

	reclassified := stockAlert(t, ctx, svcs, med.ID)
	require.NotNil(t, reclassified)
	assert.Equal(t, alert.ID, reclassified.ID)
	assert.Equal(t, ledger.AlertStockOut, reclassified.Type)
	assert.Equal(t, ledger.PriorityCritical, reclassified.Priority)

	// Restock clears the condition and resolves the alert
	_, err = svcs.medSvc.RecordMovement(ctx, med.ID, repository.MovementIn, 100, "Reposición")
	require.NoError(t, err)

	assert.Nil(t, stockAlert(t, ctx, svcs, med.ID))

	resolved, err := svcs.alertRepo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.AlertStateResolved, resolved.State)
}

func TestAlertService_StockCritical(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()

	input := medicationInput("Crítico")
	input.Stock = 4 // min 10, half is 5
	_, _, err := svcs.medSvc.Create(ctx, input, 30)
	require.NoError(t, err)

	meds, _, err := svcs.medRepo.List(ctx, 1, 10, repository.MedicationFilter{})
	require.NoError(t, err)
	require.Len(t, meds, 1)

	alert := stockAlert(t, ctx, svcs, meds[0].ID)
	require.NotNil(t, alert)
	assert.Equal(t, ledger.AlertStockCritical, alert.Type)
	assert.Equal(t, ledger.PriorityHigh, alert.Priority)
}

func TestAlertService_StockDriftWithinTier(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()

	med, _, err := svcs.medSvc.Create(ctx, medicationInput("Ibuprofeno"), 30)
	require.NoError(t, err)

	// Stock 10, min 10: minimum tier
	_, err = svcs.medSvc.RecordMovement(ctx, med.ID, repository.MovementOut, 90, "Ajuste")
	require.NoError(t, err)

	alert := stockAlert(t, ctx, svcs, med.ID)
	require.NotNil(t, alert)
	require.Equal(t, ledger.AlertStockMinimum, alert.Type)

	// Stock 8 stays in the same tier; the snapshot still follows the drift
	_, err = svcs.medSvc.RecordMovement(ctx, med.ID, repository.MovementOut, 2, "Ajuste")
	require.NoError(t, err)

	refreshed := stockAlert(t, ctx, svcs, med.ID)
	require.NotNil(t, refreshed)
	assert.Equal(t, alert.ID, refreshed.ID)
	assert.Equal(t, ledger.AlertStockMinimum, refreshed.Type)
	require.NotNil(t, refreshed.StockAtAlert)
	assert.Equal(t, 8, *refreshed.StockAtAlert)
	assert.Contains(t, refreshed.Message, "stock 8")
}

func TestAlertService_ScanAll(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()

	low := medicationInput("Bajo")
	low.Stock = 3
	_, _, err := svcs.medSvc.Create(ctx, low, 30)
	require.NoError(t, err)

	soon := medicationInput("Pronto")
	soon.ExpiryDate = time.Now().AddDate(0, 0, 5)
	_, _, err = svcs.medSvc.Create(ctx, soon, 30)
	require.NoError(t, err)

	require.NoError(t, svcs.alertSvc.ScanAll(ctx))

	count, err := svcs.alertSvc.CountUnresolved(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// A second scan does not duplicate alerts
	require.NoError(t, svcs.alertSvc.ScanAll(ctx))
	count, err = svcs.alertSvc.CountUnresolved(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestAlertService_SetState(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()

	input := medicationInput("Agotado")
	input.Stock = 0
	med, _, err := svcs.medSvc.Create(ctx, input, 30)
	require.NoError(t, err)

	alert := stockAlert(t, ctx, svcs, med.ID)
	require.NotNil(t, alert)

	// ACTIVA -> PENDIENTE_REPOSICION
	updated, err := svcs.alertSvc.SetState(ctx, alert.ID, repository.AlertStatePendingRestock, "user-1")
	require.NoError(t, err)
	assert.Equal(t, repository.AlertStatePendingRestock, updated.State)

	// PENDIENTE_REPOSICION -> PENDIENTE_REPOSICION is rejected
	_, err = svcs.alertSvc.SetState(ctx, alert.ID, repository.AlertStatePendingRestock, "user-1")
	assert.ErrorIs(t, err, errors.ErrInvalidState)

	// PENDIENTE_REPOSICION -> RESUELTA
	resolved, err := svcs.alertSvc.SetState(ctx, alert.ID, repository.AlertStateResolved, "user-1")
	require.NoError(t, err)
	assert.Equal(t, repository.AlertStateResolved, resolved.State)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "user-1", *resolved.ResolvedBy)

	// Already resolved
	_, err = svcs.alertSvc.SetState(ctx, alert.ID, repository.AlertStateResolved, "user-1")
	assert.ErrorIs(t, err, errors.ErrInvalidState)

	// Unknown state
	_, err = svcs.alertSvc.SetState(ctx, alert.ID, "DESCARTADA", "user-1")
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestAlertService_OrderDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()

	orderID := "11111111-1111-1111-1111-111111111111"
	expected := time.Now().AddDate(0, 0, -3)

	svcs.alertSvc.CheckOrderDelay(ctx, orderID, "OC-2026-0001", "Proveedor Uno", expected)

	alert, err := svcs.alertRepo.FindUnresolvedByOrder(ctx, orderID, ledger.AlertOrderDelayed)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, ledger.PriorityHigh, alert.Priority)

	// Re-checking does not duplicate
	svcs.alertSvc.CheckOrderDelay(ctx, orderID, "OC-2026-0001", "Proveedor Uno", expected)
	count, err := svcs.alertSvc.CountUnresolved(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	resolvedBy := "user-1"
	svcs.alertSvc.ResolveOrderDelay(ctx, orderID, &resolvedBy)

	after, err := svcs.alertRepo.FindUnresolvedByOrder(ctx, orderID, ledger.AlertOrderDelayed)
	require.NoError(t, err)
	assert.Nil(t, after)
}
