package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/contact-reconciler/pkg/apperrors"
	"github.com/ekaya-inc/contact-reconciler/pkg/models"
	"github.com/ekaya-inc/contact-reconciler/pkg/repositories"
)

// ImportAction is the idempotency decision for one staging row.
type ImportAction string

const (
	ActionCreate     ImportAction = "create"
	ActionUpdate     ImportAction = "update"
	ActionReactivate ImportAction = "reactivate"
)

// ImportTarget is the result of resolving a staging row's external key
// against the identifier mappings: the action to take and, for update and
// reactivate, the mapping and entity the row lands on.
type ImportTarget struct {
	Action  ImportAction
	Mapping *models.ExternalIdentifierMapping
	Entity  *models.ContactEntity
}

// IdentityResolver decides create vs update vs reactivate for a staging
// row based on its (external_system, external_id) key. Lookups take row
// locks so concurrent loads of the same key serialize instead of both
// deciding "create".
type IdentityResolver interface {
	// ResolveImportTarget resolves the row's external key. With dryRun set
	// the mapping is not touched, so the decision is observable without
	// side effects.
	ResolveImportTarget(ctx context.Context, run *models.ImportRun, externalID string, dryRun bool) (*ImportTarget, error)
}

type identityResolver struct {
	mappingRepo repositories.IdentifierMappingRepository
	entityRepo  repositories.EntityRepository
	logger      *zap.Logger
}

// NewIdentityResolver creates a new IdentityResolver.
func NewIdentityResolver(
	mappingRepo repositories.IdentifierMappingRepository,
	entityRepo repositories.EntityRepository,
	logger *zap.Logger,
) IdentityResolver {
	return &identityResolver{
		mappingRepo: mappingRepo,
		entityRepo:  entityRepo,
		logger:      logger.Named("identity-resolver"),
	}
}

var _ IdentityResolver = (*identityResolver)(nil)

func (s *identityResolver) ResolveImportTarget(ctx context.Context, run *models.ImportRun, externalID string, dryRun bool) (*ImportTarget, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("resolve import target: %w", apperrors.ErrMissingExternalID)
	}

	active, err := s.mappingRepo.GetActiveForUpdate(ctx, models.MappingEntityTypeContact, run.ExternalSystem, externalID)
	if err == nil {
		return s.targetFor(ctx, run, active, ActionUpdate, dryRun)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up active mapping: %w", err)
	}

	inactive, err := s.mappingRepo.GetMostRecentInactive(ctx, models.MappingEntityTypeContact, run.ExternalSystem, externalID)
	if err == nil {
		s.logger.Info("Reactivating identifier mapping",
			zap.String("external_system", run.ExternalSystem),
			zap.String("external_id", externalID),
			zap.String("entity_id", inactive.EntityID.String()))
		return s.targetFor(ctx, run, inactive, ActionReactivate, dryRun)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up inactive mapping: %w", err)
	}

	return &ImportTarget{Action: ActionCreate}, nil
}

// targetFor marks the mapping seen (reactivating it when inactive) and
// loads the mapped entity.
func (s *identityResolver) targetFor(ctx context.Context, run *models.ImportRun, mapping *models.ExternalIdentifierMapping, action ImportAction, dryRun bool) (*ImportTarget, error) {
	if !dryRun {
		if err := s.mappingRepo.MarkSeen(ctx, mapping.ID, run.ID); err != nil {
			return nil, fmt.Errorf("failed to mark mapping seen: %w", err)
		}
	}

	entity, err := s.entityRepo.GetByID(ctx, mapping.EntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapped entity %s: %w", mapping.EntityID, err)
	}

	return &ImportTarget{Action: action, Mapping: mapping, Entity: entity}, nil
}
