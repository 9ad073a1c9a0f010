package repository_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invrepo "github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/internal/ledger"
	"github.com/farmatrack/farmatrack-backend/internal/sales/repository"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

func createTestMedication(t *testing.T, ctx context.Context, repo *invrepo.MedicationRepository) *invrepo.Medication {
	t.Helper()
	fx := suite.Fixtures.Medication()
	med := &invrepo.Medication{
		ID:           fx.ID,
		Name:         fx.Name,
		Manufacturer: fx.Manufacturer,
		Presentation: fx.Presentation,
		LotCode:      fx.LotCode,
		ExpiryDate:   fx.ExpiryDate,
		Stock:        fx.Stock,
		MinStock:     fx.MinStock,
		UnitPrice:    decimal.RequireFromString(fx.UnitPrice),
		SearchKey:    ledger.SearchKey(fx.Name, fx.Presentation, fx.Manufacturer),
		Status:       fx.Status,
	}
	require.NoError(t, repo.Create(ctx, med))
	return med
}

// createTestSale inserts a pending sale with one line of 10 units per
// medication, reserving its number the same way the service does.
func createTestSale(t *testing.T, ctx context.Context, saleRepo *repository.SaleRepository, meds ...*invrepo.Medication) *repository.Sale {
	t.Helper()

	lines := make([]*repository.SaleLine, 0, len(meds))
	total := decimal.Zero
	for _, med := range meds {
		subtotal := med.UnitPrice.Mul(decimal.NewFromInt(10))
		lines = append(lines, &repository.SaleLine{
			MedicationID:   med.ID,
			MedicationName: med.Name,
			Quantity:       10,
			UnitPrice:      med.UnitPrice,
			Subtotal:       subtotal,
		})
		total = total.Add(subtotal)
	}

	sale := &repository.Sale{
		Policy:    string(ledger.FEFO),
		Total:     total,
		CreatedBy: "test-user",
		Lines:     lines,
	}

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		number, err := saleRepo.NextSaleNumber(ctx, tx, time.Now().Year())
		if err != nil {
			return err
		}
		sale.SaleNumber = number
		return saleRepo.CreateTx(ctx, tx, sale)
	})
	require.NoError(t, err)
	return sale
}

func TestSaleRepository_NextSaleNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewSaleRepository(suite.DB)
	year := time.Now().Year()

	var first, second string
	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		first, err = repo.NextSaleNumber(ctx, tx, year)
		return err
	})
	require.NoError(t, err)
	err = suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		second, err = repo.NextSaleNumber(ctx, tx, year)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("VT-%d-0001", year), first)
	assert.Equal(t, fmt.Sprintf("VT-%d-0002", year), second)
}

func TestSaleRepository_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	saleRepo := repository.NewSaleRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	med := createTestMedication(t, ctx, medRepo)
	sale := createTestSale(t, ctx, saleRepo, med)
	assert.Equal(t, repository.SalePending, sale.Status)

	found, err := saleRepo.GetByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.SaleNumber, found.SaleNumber)
	assert.True(t, sale.Total.Equal(found.Total))
	require.Len(t, found.Lines, 1)
	assert.Equal(t, med.ID, found.Lines[0].MedicationID)
	assert.Nil(t, found.Lines[0].LotCode)
	assert.Nil(t, found.ConfirmedAt)

	_, err = saleRepo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSaleRepository_List_Filters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	saleRepo := repository.NewSaleRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	med := createTestMedication(t, ctx, medRepo)
	pending := createTestSale(t, ctx, saleRepo, med)
	cancelled := createTestSale(t, ctx, saleRepo, med)
	require.NoError(t, saleRepo.MarkCancelled(ctx, cancelled.ID))

	sales, total, err := saleRepo.List(ctx, 1, 20, repository.SaleFilter{Status: repository.SalePending})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, sales, 1)
	assert.Equal(t, pending.ID, sales[0].ID)

	future := time.Now().Add(time.Hour)
	sales, total, err = saleRepo.List(ctx, 1, 20, repository.SaleFilter{From: &future})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, sales)
}

func TestSaleRepository_ConfirmAndReplaceLines(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	saleRepo := repository.NewSaleRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	med := createTestMedication(t, ctx, medRepo)
	sale := createTestSale(t, ctx, saleRepo, med)

	total := med.UnitPrice.Mul(decimal.NewFromInt(10))
	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		locked, err := saleRepo.GetForUpdate(ctx, tx, sale.ID)
		if err != nil {
			return err
		}

		lotCode := med.LotCode
		lines := []*repository.SaleLine{{
			MedicationID:   med.ID,
			MedicationName: med.Name,
			LotCode:        &lotCode,
			Quantity:       10,
			UnitPrice:      med.UnitPrice,
			Subtotal:       total,
		}}
		if err := saleRepo.ReplaceLinesTx(ctx, tx, locked.ID, lines); err != nil {
			return err
		}
		return saleRepo.MarkConfirmedTx(ctx, tx, locked.ID, total)
	})
	require.NoError(t, err)

	found, err := saleRepo.GetByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SaleConfirmed, found.Status)
	require.NotNil(t, found.ConfirmedAt)
	require.Len(t, found.Lines, 1)
	require.NotNil(t, found.Lines[0].LotCode)
	assert.Equal(t, med.LotCode, *found.Lines[0].LotCode)
}

func TestSaleRepository_MarkCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	saleRepo := repository.NewSaleRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	med := createTestMedication(t, ctx, medRepo)
	sale := createTestSale(t, ctx, saleRepo, med)

	require.NoError(t, saleRepo.MarkCancelled(ctx, sale.ID))

	found, err := saleRepo.GetByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SaleCancelled, found.Status)
	require.NotNil(t, found.CancelledAt)

	err = saleRepo.MarkCancelled(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSaleRepository_Summarize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	saleRepo := repository.NewSaleRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	med := createTestMedication(t, ctx, medRepo)
	confirmed := createTestSale(t, ctx, saleRepo, med)
	createTestSale(t, ctx, saleRepo, med) // stays PENDIENTE, excluded

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		return saleRepo.MarkConfirmedTx(ctx, tx, confirmed.ID, confirmed.Total)
	})
	require.NoError(t, err)

	from := time.Now().AddDate(0, 0, -1)
	to := time.Now()
	summary, err := saleRepo.Summarize(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Count)
	assert.Equal(t, int64(10), summary.Units)
	assert.True(t, confirmed.Total.Equal(summary.Revenue))
	require.Len(t, summary.Daily, 1)
	assert.Equal(t, int64(1), summary.Daily[0].Count)
}
