package service

import (
	"context"
	"encoding/json"

	"github.com/farmatrack/farmatrack-backend/internal/inventory/events"
	"github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

// FieldChange is one changed field in an update, recorded as its own
// audit entry.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// AuditService records changes as append-only audit log entries. Updates
// produce one entry per changed field so the history of any single field
// can be read back directly.
type AuditService struct {
	repo      *repository.AuditRepository
	publisher *events.Publisher
	logger    *logger.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo *repository.AuditRepository, publisher *events.Publisher, log *logger.Logger) *AuditService {
	return &AuditService{
		repo:      repo,
		publisher: publisher,
		logger:    log,
	}
}

// RecordCreate records a create action
func (s *AuditService) RecordCreate(ctx context.Context, entity, entityID string, metadata map[string]interface{}) {
	s.record(ctx, entity, entityID, repository.AuditActionCreate, nil, metadata)
}

// RecordUpdate records an update as one entry per changed field
func (s *AuditService) RecordUpdate(ctx context.Context, entity, entityID string, changes []FieldChange) {
	for i := range changes {
		c := changes[i]
		s.record(ctx, entity, entityID, repository.AuditActionUpdate, &c, nil)
	}
}

// RecordAction records a lifecycle action (deactivate, reactivate, delete,
// or a domain action like RECIBIR or CONFIRMAR)
func (s *AuditService) RecordAction(ctx context.Context, entity, entityID, action string, metadata map[string]interface{}) {
	s.record(ctx, entity, entityID, action, nil, metadata)
}

// ListByEntity lists audit entries for a specific entity with pagination
func (s *AuditService) ListByEntity(ctx context.Context, entity, entityID string, page, perPage int) ([]*repository.AuditLog, int64, error) {
	return s.repo.ListByEntity(ctx, entity, entityID, page, perPage)
}

// List lists audit entries with optional filters
func (s *AuditService) List(ctx context.Context, page, perPage int, filter repository.AuditFilter) ([]*repository.AuditLog, int64, error) {
	return s.repo.List(ctx, page, perPage, filter)
}

// record constructs an AuditLog from the request context and persists it.
// Audit failures are logged, never propagated: the business operation that
// triggered the entry has already happened.
func (s *AuditService) record(ctx context.Context, entity, entityID, action string, change *FieldChange, metadata map[string]interface{}) {
	entry := &repository.AuditLog{
		Entity:   entity,
		EntityID: entityID,
		Action:   action,
	}

	if userID := httputil.GetUserID(ctx); userID != "" {
		entry.UserID = &userID
	}
	if username := httputil.GetUsername(ctx); username != "" {
		entry.Username = &username
	}

	if change != nil {
		entry.Field = &change.Field
		entry.OldValue = &change.Old
		entry.NewValue = &change.New
	}

	if metadata != nil {
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			s.logger.Error().Err(err).Str("entity", entity).Str("entity_id", entityID).Msg("failed to marshal audit metadata")
		} else {
			metaStr := string(metaJSON)
			entry.Metadata = &metaStr
		}
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("entity", entity).
			Str("entity_id", entityID).
			Str("action", action).
			Msg("failed to create audit entry")
		return
	}

	s.publisher.PublishAuditLogCreated(ctx, entry)
}
