package service

import (
	"context"

	invservice "github.com/farmatrack/farmatrack-backend/internal/inventory/service"
	"github.com/farmatrack/farmatrack-backend/internal/procurement/repository"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

// EntitySupplier is the audit entity name for suppliers.
const EntitySupplier = "proveedor"

// SupplierService handles supplier lifecycle.
type SupplierService struct {
	repo     *repository.SupplierRepository
	auditSvc *invservice.AuditService
	logger   *logger.Logger
}

// NewSupplierService creates a new supplier service
func NewSupplierService(repo *repository.SupplierRepository, auditSvc *invservice.AuditService, log *logger.Logger) *SupplierService {
	return &SupplierService{
		repo:     repo,
		auditSvc: auditSvc,
		logger:   log,
	}
}

// Create registers a new supplier. The NIT is unique across all suppliers.
func (s *SupplierService) Create(ctx context.Context, supplier *repository.Supplier) error {
	if err := s.repo.Create(ctx, supplier); err != nil {
		return err
	}

	s.auditSvc.RecordCreate(ctx, EntitySupplier, supplier.ID, map[string]interface{}{
		"name": supplier.Name, "nit": supplier.NIT,
	})
	return nil
}

// Get gets a supplier by ID
func (s *SupplierService) Get(ctx context.Context, id string) (*repository.Supplier, error) {
	return s.repo.GetByID(ctx, id)
}

// List lists suppliers with pagination
func (s *SupplierService) List(ctx context.Context, page, perPage int, status, search string) ([]*repository.Supplier, int64, error) {
	return s.repo.List(ctx, page, perPage, status, search)
}

// Update applies a partial update, recording one audit entry per changed
// field.
func (s *SupplierService) Update(ctx context.Context, id string, input UpdateSupplierInput) (*repository.Supplier, error) {
	supplier, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var changes []invservice.FieldChange

	if input.Name != nil && *input.Name != supplier.Name {
		changes = append(changes, invservice.FieldChange{Field: "name", Old: supplier.Name, New: *input.Name})
		supplier.Name = *input.Name
	}
	if input.NIT != nil && *input.NIT != supplier.NIT {
		changes = append(changes, invservice.FieldChange{Field: "nit", Old: supplier.NIT, New: *input.NIT})
		supplier.NIT = *input.NIT
	}
	if input.ContactName != nil && *input.ContactName != strValue(supplier.ContactName) {
		changes = append(changes, invservice.FieldChange{Field: "contact_name", Old: strValue(supplier.ContactName), New: *input.ContactName})
		supplier.ContactName = input.ContactName
	}
	if input.Phone != nil && *input.Phone != strValue(supplier.Phone) {
		changes = append(changes, invservice.FieldChange{Field: "phone", Old: strValue(supplier.Phone), New: *input.Phone})
		supplier.Phone = input.Phone
	}
	if input.Email != nil && *input.Email != strValue(supplier.Email) {
		changes = append(changes, invservice.FieldChange{Field: "email", Old: strValue(supplier.Email), New: *input.Email})
		supplier.Email = input.Email
	}
	if input.Address != nil && *input.Address != strValue(supplier.Address) {
		changes = append(changes, invservice.FieldChange{Field: "address", Old: strValue(supplier.Address), New: *input.Address})
		supplier.Address = input.Address
	}

	if len(changes) == 0 {
		return supplier, nil
	}

	if err := s.repo.Update(ctx, supplier); err != nil {
		return nil, err
	}

	s.auditSvc.RecordUpdate(ctx, EntitySupplier, id, changes)
	return supplier, nil
}

// UpdateSupplierInput carries updatable supplier fields. Nil means
// unchanged.
type UpdateSupplierInput struct {
	Name        *string
	NIT         *string
	ContactName *string
	Phone       *string
	Email       *string
	Address     *string
}

// Delete removes a supplier. Suppliers with purchase orders are
// deactivated to preserve order history; the rest are removed outright.
func (s *SupplierService) Delete(ctx context.Context, id string) error {
	supplier, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.repo.CountOrders(ctx, id)
	if err != nil {
		return err
	}

	if count > 0 {
		if supplier.Status == repository.SupplierInactive {
			return errors.InvalidState("supplier is already inactive")
		}
		if err := s.repo.SetStatus(ctx, id, repository.SupplierInactive); err != nil {
			return err
		}
		s.auditSvc.RecordAction(ctx, EntitySupplier, id, "DESACTIVAR", nil)
		return nil
	}

	if err := s.repo.HardDelete(ctx, id); err != nil {
		return err
	}
	s.auditSvc.RecordAction(ctx, EntitySupplier, id, "ELIMINAR", map[string]interface{}{
		"name": supplier.Name, "nit": supplier.NIT,
	})
	return nil
}

func strValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
