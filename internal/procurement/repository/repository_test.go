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
	"github.com/farmatrack/farmatrack-backend/internal/procurement/repository"
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

func createTestSupplier(t *testing.T, ctx context.Context, repo *repository.SupplierRepository, opts ...func(*testutil.SupplierFixture)) *repository.Supplier {
	t.Helper()
	fx := suite.Fixtures.Supplier(opts...)
	supplier := &repository.Supplier{
		ID:     fx.ID,
		Name:   fx.Name,
		NIT:    fx.NIT,
		Status: fx.Status,
	}
	require.NoError(t, repo.Create(ctx, supplier))
	return supplier
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

// createTestOrder inserts an order with one line per medication, reserving
// its number the same way the service does.
func createTestOrder(t *testing.T, ctx context.Context, orderRepo *repository.OrderRepository, supplierID string, expected time.Time, meds ...*invrepo.Medication) *repository.PurchaseOrder {
	t.Helper()

	lines := make([]*repository.OrderLine, 0, len(meds))
	total := decimal.Zero
	for _, med := range meds {
		lines = append(lines, &repository.OrderLine{
			MedicationID:   med.ID,
			MedicationName: med.Name,
			Quantity:       20,
			UnitPrice:      med.UnitPrice,
			ExpectedLot:    med.LotCode,
			ExpectedExpiry: med.ExpiryDate,
		})
		total = total.Add(med.UnitPrice.Mul(decimal.NewFromInt(20)))
	}

	order := &repository.PurchaseOrder{
		SupplierID:     supplierID,
		ExpectedDate:   expected,
		EstimatedTotal: total,
		CreatedBy:      "test-user",
		Lines:          lines,
	}

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		number, err := orderRepo.NextOrderNumber(ctx, tx, time.Now().Year())
		if err != nil {
			return err
		}
		order.OrderNumber = number
		return orderRepo.CreateTx(ctx, tx, order)
	})
	require.NoError(t, err)
	return order
}

// --- Supplier Repository Tests ---

func TestSupplierRepository_Create(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewSupplierRepository(suite.DB)
	supplier := createTestSupplier(t, ctx, repo)

	assert.NotEmpty(t, supplier.ID)
	assert.Equal(t, repository.SupplierActive, supplier.Status)
	assert.False(t, supplier.CreatedAt.IsZero())

	found, err := repo.GetByID(ctx, supplier.ID)
	require.NoError(t, err)
	assert.Equal(t, supplier.NIT, found.NIT)
}

func TestSupplierRepository_Create_DuplicateNIT(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewSupplierRepository(suite.DB)
	createTestSupplier(t, ctx, repo, testutil.WithNIT("900123456-7"))

	fx := suite.Fixtures.Supplier(testutil.WithNIT("900123456-7"))
	dup := &repository.Supplier{ID: fx.ID, Name: fx.Name, NIT: fx.NIT, Status: fx.Status}

	err := repo.Create(ctx, dup)
	assert.ErrorIs(t, err, errors.ErrDuplicateRecord)
}

func TestSupplierRepository_List_Filters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewSupplierRepository(suite.DB)
	active := createTestSupplier(t, ctx, repo)
	inactive := createTestSupplier(t, ctx, repo)
	require.NoError(t, repo.SetStatus(ctx, inactive.ID, repository.SupplierInactive))

	suppliers, total, err := repo.List(ctx, 1, 20, repository.SupplierActive, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, suppliers, 1)
	assert.Equal(t, active.ID, suppliers[0].ID)

	suppliers, total, err = repo.List(ctx, 1, 20, "", active.NIT)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, suppliers, 1)
	assert.Equal(t, active.ID, suppliers[0].ID)
}

func TestSupplierRepository_Update(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewSupplierRepository(suite.DB)
	supplier := createTestSupplier(t, ctx, repo)

	contact := "Ana Morales"
	supplier.Name = "Distribuidora Nueva"
	supplier.ContactName = &contact
	require.NoError(t, repo.Update(ctx, supplier))

	found, err := repo.GetByID(ctx, supplier.ID)
	require.NoError(t, err)
	assert.Equal(t, "Distribuidora Nueva", found.Name)
	require.NotNil(t, found.ContactName)
	assert.Equal(t, contact, *found.ContactName)

	supplier.ID = "00000000-0000-0000-0000-000000000000"
	err = repo.Update(ctx, supplier)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSupplierRepository_HardDeleteAndCountOrders(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	supplierRepo := repository.NewSupplierRepository(suite.DB)
	orderRepo := repository.NewOrderRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	unused := createTestSupplier(t, ctx, supplierRepo)
	used := createTestSupplier(t, ctx, supplierRepo)
	med := createTestMedication(t, ctx, medRepo)
	createTestOrder(t, ctx, orderRepo, used.ID, time.Now().AddDate(0, 0, 7), med)

	count, err := supplierRepo.CountOrders(ctx, unused.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = supplierRepo.CountOrders(ctx, used.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, supplierRepo.HardDelete(ctx, unused.ID))
	_, err = supplierRepo.GetByID(ctx, unused.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

// --- Order Repository Tests ---

func TestOrderRepository_NextOrderNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	repo := repository.NewOrderRepository(suite.DB)
	year := time.Now().Year()

	var first, second string
	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		first, err = repo.NextOrderNumber(ctx, tx, year)
		return err
	})
	require.NoError(t, err)
	err = suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		second, err = repo.NextOrderNumber(ctx, tx, year)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("OC-%d-0001", year), first)
	assert.Equal(t, fmt.Sprintf("OC-%d-0002", year), second)

	// A different year starts its own sequence.
	var other string
	err = suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		other, err = repo.NextOrderNumber(ctx, tx, year+1)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("OC-%d-0001", year+1), other)
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	supplierRepo := repository.NewSupplierRepository(suite.DB)
	orderRepo := repository.NewOrderRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	supplier := createTestSupplier(t, ctx, supplierRepo)
	medA := createTestMedication(t, ctx, medRepo)
	medB := createTestMedication(t, ctx, medRepo)

	order := createTestOrder(t, ctx, orderRepo, supplier.ID, time.Now().AddDate(0, 0, 7), medA, medB)
	assert.Equal(t, repository.OrderPending, order.Status)

	found, err := orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, found.OrderNumber)
	assert.True(t, order.EstimatedTotal.Equal(found.EstimatedTotal))
	require.Len(t, found.Lines, 2)
	assert.Equal(t, medA.ID, found.Lines[0].MedicationID)
	assert.Equal(t, medA.LotCode, found.Lines[0].ExpectedLot)
	assert.Nil(t, found.Lines[0].ReceivedQuantity)

	_, err = orderRepo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestOrderRepository_List_Filters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	supplierRepo := repository.NewSupplierRepository(suite.DB)
	orderRepo := repository.NewOrderRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	supplierA := createTestSupplier(t, ctx, supplierRepo)
	supplierB := createTestSupplier(t, ctx, supplierRepo)
	med := createTestMedication(t, ctx, medRepo)

	orderA := createTestOrder(t, ctx, orderRepo, supplierA.ID, time.Now().AddDate(0, 0, 7), med)
	orderB := createTestOrder(t, ctx, orderRepo, supplierB.ID, time.Now().AddDate(0, 0, 7), med)
	require.NoError(t, orderRepo.MarkSent(ctx, orderB.ID, repository.OrderSent))

	orders, total, err := orderRepo.List(ctx, 1, 20, repository.OrderFilter{Status: repository.OrderPending})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, orders, 1)
	assert.Equal(t, orderA.ID, orders[0].ID)

	orders, total, err = orderRepo.List(ctx, 1, 20, repository.OrderFilter{SupplierID: supplierB.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, orders, 1)
	assert.Equal(t, orderB.ID, orders[0].ID)
}

func TestOrderRepository_MarkSent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	supplierRepo := repository.NewSupplierRepository(suite.DB)
	orderRepo := repository.NewOrderRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	supplier := createTestSupplier(t, ctx, supplierRepo)
	med := createTestMedication(t, ctx, medRepo)
	order := createTestOrder(t, ctx, orderRepo, supplier.ID, time.Now().AddDate(0, 0, 7), med)

	require.NoError(t, orderRepo.MarkSent(ctx, order.ID, repository.OrderSent))

	found, err := orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderSent, found.Status)
	require.NotNil(t, found.SentAt)

	err = orderRepo.MarkSent(ctx, "00000000-0000-0000-0000-000000000000", repository.OrderSent)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestOrderRepository_MarkDelayed_OnlyFromSent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	supplierRepo := repository.NewSupplierRepository(suite.DB)
	orderRepo := repository.NewOrderRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	supplier := createTestSupplier(t, ctx, supplierRepo)
	med := createTestMedication(t, ctx, medRepo)
	order := createTestOrder(t, ctx, orderRepo, supplier.ID, time.Now().AddDate(0, 0, 7), med)

	// Still PENDIENTE, cannot be flagged.
	err := orderRepo.MarkDelayed(ctx, order.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, orderRepo.MarkSent(ctx, order.ID, repository.OrderSent))
	require.NoError(t, orderRepo.MarkDelayed(ctx, order.ID))

	found, err := orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderDelayed, found.Status)

	delayed, err := orderRepo.ListDelayed(ctx)
	require.NoError(t, err)
	require.Len(t, delayed, 1)
	assert.Equal(t, order.ID, delayed[0].ID)
}

func TestOrderRepository_ReceiveFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	supplierRepo := repository.NewSupplierRepository(suite.DB)
	orderRepo := repository.NewOrderRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	supplier := createTestSupplier(t, ctx, supplierRepo)
	med := createTestMedication(t, ctx, medRepo)
	order := createTestOrder(t, ctx, orderRepo, supplier.ID, time.Now().AddDate(0, 0, 7), med)
	require.NoError(t, orderRepo.MarkSent(ctx, order.ID, repository.OrderSent))

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		locked, err := orderRepo.GetForUpdate(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if err := orderRepo.SetLineReceivedTx(ctx, tx, locked.Lines[0].ID, 18); err != nil {
			return err
		}
		return orderRepo.MarkReceivedTx(ctx, tx, order.ID)
	})
	require.NoError(t, err)

	found, err := orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderReceived, found.Status)
	require.NotNil(t, found.ReceivedAt)
	require.Len(t, found.Lines, 1)
	require.NotNil(t, found.Lines[0].ReceivedQuantity)
	assert.Equal(t, 18, *found.Lines[0].ReceivedQuantity)
}

func TestOrderRepository_UpdatePendingTx_RejectsSent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	supplierRepo := repository.NewSupplierRepository(suite.DB)
	orderRepo := repository.NewOrderRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	supplier := createTestSupplier(t, ctx, supplierRepo)
	med := createTestMedication(t, ctx, medRepo)
	order := createTestOrder(t, ctx, orderRepo, supplier.ID, time.Now().AddDate(0, 0, 7), med)
	require.NoError(t, orderRepo.MarkSent(ctx, order.ID, repository.OrderSent))

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		return orderRepo.UpdatePendingTx(ctx, tx, order)
	})
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestOrderRepository_ListOverdueSent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	supplierRepo := repository.NewSupplierRepository(suite.DB)
	orderRepo := repository.NewOrderRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)

	supplier := createTestSupplier(t, ctx, supplierRepo)
	med := createTestMedication(t, ctx, medRepo)

	overdue := createTestOrder(t, ctx, orderRepo, supplier.ID, time.Now().AddDate(0, 0, -3), med)
	onTime := createTestOrder(t, ctx, orderRepo, supplier.ID, time.Now().AddDate(0, 0, 7), med)
	require.NoError(t, orderRepo.MarkSent(ctx, overdue.ID, repository.OrderSent))
	require.NoError(t, orderRepo.MarkSent(ctx, onTime.ID, repository.OrderSent))

	orders, err := orderRepo.ListOverdueSent(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, overdue.ID, orders[0].ID)
}
