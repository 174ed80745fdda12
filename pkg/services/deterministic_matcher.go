package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contact-reconciler/pkg/models"
	"github.com/ekaya-inc/contact-reconciler/pkg/normalize"
	"github.com/ekaya-inc/contact-reconciler/pkg/repositories"
)

// ContactMatch is the outcome of deterministic matching for one record.
// EntityID is set only for direct outcomes (combined, email, phone).
// EmailMatchIDs and PhoneMatchIDs carry the raw per-channel hits so the
// fuzzy scorer can seed its candidate pool from ambiguous outcomes.
type ContactMatch struct {
	Outcome  models.MatchType
	EntityID *uuid.UUID

	EmailMatchIDs []uuid.UUID
	PhoneMatchIDs []uuid.UUID

	NormalizedEmail string
	NormalizedPhone string
}

// DeterministicMatcher matches an incoming record against core entities by
// normalized email and phone exclusively. Outcome precedence is strict:
// combined beats single-signal, any multi-entity result is ambiguous, and
// a record with no usable contact points is insufficient rather than none.
type DeterministicMatcher interface {
	MatchByContact(ctx context.Context, email, phone string) (*ContactMatch, error)
}

type deterministicMatcher struct {
	entityRepo repositories.EntityRepository
	logger     *zap.Logger
}

// NewDeterministicMatcher creates a new DeterministicMatcher.
func NewDeterministicMatcher(entityRepo repositories.EntityRepository, logger *zap.Logger) DeterministicMatcher {
	return &deterministicMatcher{
		entityRepo: entityRepo,
		logger:     logger.Named("deterministic-matcher"),
	}
}

var _ DeterministicMatcher = (*deterministicMatcher)(nil)

func (s *deterministicMatcher) MatchByContact(ctx context.Context, email, phone string) (*ContactMatch, error) {
	match := &ContactMatch{
		NormalizedEmail: normalize.Email(email),
		NormalizedPhone: normalize.Phone(phone),
	}

	if match.NormalizedEmail == "" && match.NormalizedPhone == "" {
		match.Outcome = models.MatchTypeInsufficient
		return match, nil
	}

	if match.NormalizedEmail != "" {
		entities, err := s.entityRepo.FindByEmail(ctx, match.NormalizedEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to match by email: %w", err)
		}
		match.EmailMatchIDs = entityIDs(entities)
	}

	if match.NormalizedPhone != "" {
		entities, err := s.entityRepo.FindByPhone(ctx, match.NormalizedPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to match by phone: %w", err)
		}
		match.PhoneMatchIDs = entityIDs(entities)
	}

	s.classify(match)
	return match, nil
}

// classify applies the precedence rules over the per-channel hit sets.
func (s *deterministicMatcher) classify(m *ContactMatch) {
	switch {
	case len(m.EmailMatchIDs) > 0 && len(m.PhoneMatchIDs) > 0:
		// Both channels hit. Agreement on exactly one entity is the
		// strongest outcome; any disagreement or multiplicity needs review.
		common := intersectIDs(m.EmailMatchIDs, m.PhoneMatchIDs)
		if len(common) == 1 {
			m.Outcome = models.MatchTypeCombined
			m.EntityID = &common[0]
			return
		}
		m.Outcome = models.MatchTypeAmbiguous

	case len(m.EmailMatchIDs) == 1:
		m.Outcome = models.MatchTypeEmail
		m.EntityID = &m.EmailMatchIDs[0]

	case len(m.EmailMatchIDs) > 1:
		m.Outcome = models.MatchTypeAmbiguous

	case len(m.PhoneMatchIDs) == 1:
		m.Outcome = models.MatchTypePhone
		m.EntityID = &m.PhoneMatchIDs[0]

	case len(m.PhoneMatchIDs) > 1:
		m.Outcome = models.MatchTypeAmbiguous

	default:
		m.Outcome = models.MatchTypeNone
	}
}

// CandidatePool returns the distinct entities hit on either channel, for
// seeding fuzzy scoring after an ambiguous outcome.
func (m *ContactMatch) CandidatePool() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(m.EmailMatchIDs)+len(m.PhoneMatchIDs))
	var pool []uuid.UUID
	for _, id := range m.EmailMatchIDs {
		if !seen[id] {
			seen[id] = true
			pool = append(pool, id)
		}
	}
	for _, id := range m.PhoneMatchIDs {
		if !seen[id] {
			seen[id] = true
			pool = append(pool, id)
		}
	}
	return pool
}

func entityIDs(entities []*models.ContactEntity) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	return ids
}

func intersectIDs(a, b []uuid.UUID) []uuid.UUID {
	inA := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		inA[id] = true
	}
	var out []uuid.UUID
	for _, id := range b {
		if inA[id] {
			inA[id] = false
			out = append(out, id)
		}
	}
	return out
}
