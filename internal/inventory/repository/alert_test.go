package repository_test

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

func createTestAlert(t *testing.T, ctx context.Context, repo *repository.AlertRepository, medicationID string, alertType, priority string) *repository.Alert {
	t.Helper()
	stock := 5
	alert := &repository.Alert{
		Type:         alertType,
		Priority:     priority,
		Message:      "Stock bajo",
		MedicationID: &medicationID,
		StockAtAlert: &stock,
	}
	require.NoError(t, repo.Create(ctx, alert))
	return alert
}

func TestAlertRepository_Create(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	medRepo := repository.NewMedicationRepository(suite.DB)
	repo := repository.NewAlertRepository(suite.DB)
	med := createTestMedication(t, ctx, medRepo)

	alert := createTestAlert(t, ctx, repo, med.ID, ledger.AlertStockMinimum, ledger.PriorityMedium)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, repository.AlertStateActive, alert.State)
	assert.False(t, alert.CreatedAt.IsZero())
	assert.False(t, alert.Notified)
}

func TestAlertRepository_List_PriorityOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	medRepo := repository.NewMedicationRepository(suite.DB)
	repo := repository.NewAlertRepository(suite.DB)
	med1 := createTestMedication(t, ctx, medRepo)
	med2 := createTestMedication(t, ctx, medRepo)

	createTestAlert(t, ctx, repo, med1.ID, ledger.AlertStockMinimum, ledger.PriorityMedium)
	critical := createTestAlert(t, ctx, repo, med2.ID, ledger.AlertStockOut, ledger.PriorityCritical)

	alerts, total, err := repo.List(ctx, 1, 20, repository.AlertFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, alerts, 2)
	assert.Equal(t, critical.ID, alerts[0].ID, "critical alerts sort first")

	filtered, total, err := repo.List(ctx, 1, 20, repository.AlertFilter{Priority: ledger.PriorityCritical})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, filtered, 1)
}

func TestAlertRepository_FindUnresolvedByMedication(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	medRepo := repository.NewMedicationRepository(suite.DB)
	repo := repository.NewAlertRepository(suite.DB)
	med := createTestMedication(t, ctx, medRepo)

	stockAxis := []string{ledger.AlertStockOut, ledger.AlertStockCritical, ledger.AlertStockMinimum}

	found, err := repo.FindUnresolvedByMedication(ctx, med.ID, stockAxis)
	require.NoError(t, err)
	assert.Nil(t, found)

	alert := createTestAlert(t, ctx, repo, med.ID, ledger.AlertStockMinimum, ledger.PriorityMedium)

	found, err = repo.FindUnresolvedByMedication(ctx, med.ID, stockAxis)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, alert.ID, found.ID)

	// The expiry axis does not see the stock alert
	found, err = repo.FindUnresolvedByMedication(ctx, med.ID,
		[]string{ledger.AlertExpired, ledger.AlertExpiryImminent, ledger.AlertExpiryNear})
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, repo.Resolve(ctx, alert.ID, nil))

	found, err = repo.FindUnresolvedByMedication(ctx, med.ID, stockAxis)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestAlertRepository_Reclassify(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	medRepo := repository.NewMedicationRepository(suite.DB)
	repo := repository.NewAlertRepository(suite.DB)
	med := createTestMedication(t, ctx, medRepo)

	alert := createTestAlert(t, ctx, repo, med.ID, ledger.AlertStockMinimum, ledger.PriorityMedium)

	newStock := 0
	require.NoError(t, repo.Reclassify(ctx, alert.ID,
		ledger.AlertStockOut, ledger.PriorityCritical, "Stock agotado", &newStock))

	got, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.AlertStockOut, got.Type)
	assert.Equal(t, ledger.PriorityCritical, got.Priority)
	require.NotNil(t, got.StockAtAlert)
	assert.Equal(t, 0, *got.StockAtAlert)

	// Resolved alerts cannot be reclassified
	require.NoError(t, repo.Resolve(ctx, alert.ID, nil))
	err = repo.Reclassify(ctx, alert.ID, ledger.AlertStockMinimum, ledger.PriorityMedium, "x", nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestAlertRepository_Resolve(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	medRepo := repository.NewMedicationRepository(suite.DB)
	repo := repository.NewAlertRepository(suite.DB)
	med := createTestMedication(t, ctx, medRepo)

	alert := createTestAlert(t, ctx, repo, med.ID, ledger.AlertStockOut, ledger.PriorityCritical)

	resolvedBy := "user-1"
	require.NoError(t, repo.Resolve(ctx, alert.ID, &resolvedBy))

	got, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.AlertStateResolved, got.State)
	require.NotNil(t, got.ResolvedAt)
	assert.WithinDuration(t, time.Now(), *got.ResolvedAt, 5*time.Second)
	require.NotNil(t, got.ResolvedBy)
	assert.Equal(t, "user-1", *got.ResolvedBy)

	// Resolving twice is a no-op rejection
	err = repo.Resolve(ctx, alert.ID, &resolvedBy)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestAlertRepository_SetStateAndCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	medRepo := repository.NewMedicationRepository(suite.DB)
	repo := repository.NewAlertRepository(suite.DB)
	med := createTestMedication(t, ctx, medRepo)

	alert := createTestAlert(t, ctx, repo, med.ID, ledger.AlertStockMinimum, ledger.PriorityMedium)

	require.NoError(t, repo.SetState(ctx, alert.ID, repository.AlertStatePendingRestock))

	got, err := repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.AlertStatePendingRestock, got.State)

	count, err := repo.CountUnresolved(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "PENDIENTE_REPOSICION still counts as unresolved")

	require.NoError(t, repo.MarkNotified(ctx, alert.ID))
	got, err = repo.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified)
}
