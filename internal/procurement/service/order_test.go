package service_test

import (
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invrepo "github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	invservice "github.com/farmatrack/farmatrack-backend/internal/inventory/service"
	"github.com/farmatrack/farmatrack-backend/internal/ledger"
	"github.com/farmatrack/farmatrack-backend/internal/procurement/repository"
	"github.com/farmatrack/farmatrack-backend/internal/procurement/service"
	"github.com/farmatrack/farmatrack-backend/pkg/config"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/notify"
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

type testServices struct {
	orderSvc     *service.OrderService
	supplierSvc  *service.SupplierService
	orderRepo    *repository.OrderRepository
	supplierRepo *repository.SupplierRepository
	medRepo      *invrepo.MedicationRepository
	movRepo      *invrepo.MovementRepository
	alertRepo    *invrepo.AlertRepository
}

// newTestServices wires the procurement services against the integration
// database, without broker, Redis or Prometheus backends.
func newTestServices() *testServices {
	orderRepo := repository.NewOrderRepository(suite.DB)
	supplierRepo := repository.NewSupplierRepository(suite.DB)
	medRepo := invrepo.NewMedicationRepository(suite.DB)
	movRepo := invrepo.NewMovementRepository(suite.DB)
	alertRepo := invrepo.NewAlertRepository(suite.DB)
	auditRepo := invrepo.NewAuditRepository(suite.DB)

	notifier := notify.New(&config.RedisConfig{}, suite.Logger)
	auditSvc := invservice.NewAuditService(auditRepo, nil, suite.Logger)
	alertSvc := invservice.NewAlertService(alertRepo, medRepo, nil, notifier, nil, suite.Logger)
	orderSvc := service.NewOrderService(suite.DB, orderRepo, supplierRepo, medRepo, movRepo, alertSvc, auditSvc, nil, suite.Logger)
	supplierSvc := service.NewSupplierService(supplierRepo, auditSvc, suite.Logger)

	return &testServices{
		orderSvc:     orderSvc,
		supplierSvc:  supplierSvc,
		orderRepo:    orderRepo,
		supplierRepo: supplierRepo,
		medRepo:      medRepo,
		movRepo:      movRepo,
		alertRepo:    alertRepo,
	}
}

func createTestSupplier(t *testing.T, ctx context.Context, repo *repository.SupplierRepository) *repository.Supplier {
	t.Helper()
	fx := suite.Fixtures.Supplier()
	supplier := &repository.Supplier{ID: fx.ID, Name: fx.Name, NIT: fx.NIT, Status: fx.Status}
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

func orderInput(supplierID, medID string, qty int) service.CreateOrderInput {
	return service.CreateOrderInput{
		SupplierID:   supplierID,
		ExpectedDate: time.Now().AddDate(0, 0, 7),
		Lines:        []service.OrderLineInput{{MedicationID: medID, Quantity: qty}},
	}
}

func TestOrderService_Create(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	med := createTestMedication(t, ctx, svcs.medRepo)

	order, err := svcs.orderSvc.Create(ctx, orderInput(supplier.ID, med.ID, 50))
	require.NoError(t, err)
	assert.Equal(t, repository.OrderPending, order.Status)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "OC-"))
	assert.True(t, order.EstimatedTotal.Equal(med.UnitPrice.Mul(decimal.NewFromInt(50))))

	// Lines snapshot the medication's current lot and price
	require.Len(t, order.Lines, 1)
	assert.Equal(t, med.LotCode, order.Lines[0].ExpectedLot)
	assert.True(t, med.UnitPrice.Equal(order.Lines[0].UnitPrice))
}

func TestOrderService_Create_Validation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	med := createTestMedication(t, ctx, svcs.medRepo)

	_, err := svcs.orderSvc.Create(ctx, service.CreateOrderInput{SupplierID: supplier.ID, ExpectedDate: time.Now()})
	assert.ErrorIs(t, err, errors.ErrBadRequest)

	_, err = svcs.orderSvc.Create(ctx, orderInput(supplier.ID, med.ID, 0))
	assert.ErrorIs(t, err, errors.ErrBadRequest)

	require.NoError(t, svcs.supplierRepo.SetStatus(ctx, supplier.ID, repository.SupplierInactive))
	_, err = svcs.orderSvc.Create(ctx, orderInput(supplier.ID, med.ID, 10))
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestOrderService_Send(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	med := createTestMedication(t, ctx, svcs.medRepo)

	order, err := svcs.orderSvc.Create(ctx, orderInput(supplier.ID, med.ID, 50))
	require.NoError(t, err)

	sent, err := svcs.orderSvc.Send(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	_, err = svcs.orderSvc.Send(ctx, order.ID)
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestOrderService_Send_PastExpectedDate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	med := createTestMedication(t, ctx, svcs.medRepo)

	input := orderInput(supplier.ID, med.ID, 50)
	input.ExpectedDate = time.Now().AddDate(0, 0, -2)
	order, err := svcs.orderSvc.Create(ctx, input)
	require.NoError(t, err)

	sent, err := svcs.orderSvc.Send(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderDelayed, sent.Status)

	alert, err := svcs.alertRepo.FindUnresolvedByOrder(ctx, order.ID, ledger.AlertOrderDelayed)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, ledger.PriorityHigh, alert.Priority)
}

func TestOrderService_Receive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	med := createTestMedication(t, ctx, svcs.medRepo)

	order, err := svcs.orderSvc.Create(ctx, orderInput(supplier.ID, med.ID, 50))
	require.NoError(t, err)
	_, err = svcs.orderSvc.Send(ctx, order.ID)
	require.NoError(t, err)

	// 45 of the 50 requested units arrive
	result, err := svcs.orderSvc.Receive(ctx, order.ID, []service.ReceivedLine{
		{LineID: order.Lines[0].ID, Quantity: 45},
	})
	require.NoError(t, err)
	assert.Equal(t, repository.OrderReceived, result.Order.Status)
	require.Len(t, result.Differences, 1)
	assert.Equal(t, 50, result.Differences[0].Requested)
	assert.Equal(t, 45, result.Differences[0].Received)

	// Stock grows by the received quantity, documented as ENTRADA
	found, err := svcs.medRepo.GetByID(ctx, med.ID)
	require.NoError(t, err)
	assert.Equal(t, 145, found.Stock)

	movements, _, err := svcs.movRepo.ListByMedication(ctx, med.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, invrepo.MovementIn, movements[0].Type)
	assert.Equal(t, 45, movements[0].Quantity)
	assert.Equal(t, "Recepcion orden "+order.OrderNumber, movements[0].Reason)

	// Receiving twice is rejected
	_, err = svcs.orderSvc.Receive(ctx, order.ID, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestOrderService_Receive_RejectsPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	med := createTestMedication(t, ctx, svcs.medRepo)

	order, err := svcs.orderSvc.Create(ctx, orderInput(supplier.ID, med.ID, 20))
	require.NoError(t, err)

	_, err = svcs.orderSvc.Receive(ctx, order.ID, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestOrderService_Receive_DefaultsToRequested(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	med := createTestMedication(t, ctx, svcs.medRepo)

	order, err := svcs.orderSvc.Create(ctx, orderInput(supplier.ID, med.ID, 30))
	require.NoError(t, err)
	_, err = svcs.orderSvc.Send(ctx, order.ID)
	require.NoError(t, err)

	// No payload: every line is taken as fully received
	result, err := svcs.orderSvc.Receive(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Differences)
	require.NotNil(t, result.Order.Lines[0].ReceivedQuantity)
	assert.Equal(t, 30, *result.Order.Lines[0].ReceivedQuantity)

	_, err = svcs.orderSvc.Receive(ctx, order.ID, []service.ReceivedLine{{LineID: "x", Quantity: -1}})
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestOrderService_Receive_ResolvesDelayAlert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	med := createTestMedication(t, ctx, svcs.medRepo)

	input := orderInput(supplier.ID, med.ID, 20)
	input.ExpectedDate = time.Now().AddDate(0, 0, -1)
	order, err := svcs.orderSvc.Create(ctx, input)
	require.NoError(t, err)
	_, err = svcs.orderSvc.Send(ctx, order.ID)
	require.NoError(t, err)

	alert, err := svcs.alertRepo.FindUnresolvedByOrder(ctx, order.ID, ledger.AlertOrderDelayed)
	require.NoError(t, err)
	require.NotNil(t, alert)

	_, err = svcs.orderSvc.Receive(ctx, order.ID, nil)
	require.NoError(t, err)

	alert, err = svcs.alertRepo.FindUnresolvedByOrder(ctx, order.ID, ledger.AlertOrderDelayed)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestOrderService_ScanDelayed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	med := createTestMedication(t, ctx, svcs.medRepo)

	order, err := svcs.orderSvc.Create(ctx, orderInput(supplier.ID, med.ID, 20))
	require.NoError(t, err)
	sent, err := svcs.orderSvc.Send(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderSent, sent.Status)

	// Push the expected date into the past, then scan
	_, err = suite.RawDB.ExecContext(ctx,
		`UPDATE purchase_orders SET expected_date = NOW() - INTERVAL '3 days' WHERE id = $1`, order.ID)
	require.NoError(t, err)

	require.NoError(t, svcs.orderSvc.ScanDelayed(ctx))

	found, err := svcs.orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.OrderDelayed, found.Status)

	alert, err := svcs.alertRepo.FindUnresolvedByOrder(ctx, order.ID, ledger.AlertOrderDelayed)
	require.NoError(t, err)
	require.NotNil(t, alert)

	// A second scan finds nothing new
	require.NoError(t, svcs.orderSvc.ScanDelayed(ctx))
}

func TestOrderService_Update(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	medA := createTestMedication(t, ctx, svcs.medRepo)
	medB := createTestMedication(t, ctx, svcs.medRepo)

	order, err := svcs.orderSvc.Create(ctx, orderInput(supplier.ID, medA.ID, 20))
	require.NoError(t, err)

	input := orderInput(supplier.ID, medB.ID, 40)
	updated, err := svcs.orderSvc.Update(ctx, order.ID, input)
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	assert.Equal(t, medB.ID, updated.Lines[0].MedicationID)
	assert.True(t, updated.EstimatedTotal.Equal(medB.UnitPrice.Mul(decimal.NewFromInt(40))))

	// Sent orders are no longer editable
	_, err = svcs.orderSvc.Send(ctx, order.ID)
	require.NoError(t, err)
	_, err = svcs.orderSvc.Update(ctx, order.ID, input)
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestSupplierService_Update_SkipsUnchangedFields(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	auditRepo := invrepo.NewAuditRepository(suite.DB)

	supplier := createTestSupplier(t, ctx, svcs.supplierRepo)
	phone := "3001234567"
	_, err := svcs.supplierSvc.Update(ctx, supplier.ID, service.UpdateSupplierInput{Phone: &phone})
	require.NoError(t, err)

	_, before, err := auditRepo.ListByEntity(ctx, service.EntitySupplier, supplier.ID, 1, 50)
	require.NoError(t, err)

	// Resubmitting the same values records nothing new
	_, err = svcs.supplierSvc.Update(ctx, supplier.ID, service.UpdateSupplierInput{
		Name:  &supplier.Name,
		Phone: &phone,
	})
	require.NoError(t, err)

	_, after, err := auditRepo.ListByEntity(ctx, service.EntitySupplier, supplier.ID, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSupplierService_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	svcs := newTestServices()
	med := createTestMedication(t, ctx, svcs.medRepo)

	// A supplier without orders is removed outright
	unused := createTestSupplier(t, ctx, svcs.supplierRepo)
	require.NoError(t, svcs.supplierSvc.Delete(ctx, unused.ID))
	_, err := svcs.supplierRepo.GetByID(ctx, unused.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// One with order history is deactivated to preserve it
	used := createTestSupplier(t, ctx, svcs.supplierRepo)
	_, err = svcs.orderSvc.Create(ctx, orderInput(used.ID, med.ID, 10))
	require.NoError(t, err)

	require.NoError(t, svcs.supplierSvc.Delete(ctx, used.ID))
	found, err := svcs.supplierRepo.GetByID(ctx, used.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SupplierInactive, found.Status)

	// Deleting again is rejected
	err = svcs.supplierSvc.Delete(ctx, used.ID)
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}
