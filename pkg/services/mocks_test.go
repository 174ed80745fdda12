package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/contact-reconciler/pkg/apperrors"
	"github.com/ekaya-inc/contact-reconciler/pkg/database"
	"github.com/ekaya-inc/contact-reconciler/pkg/models"
	"github.com/ekaya-inc/contact-reconciler/pkg/normalize"
)

// ============================================================================
// Database scope fakes
// ============================================================================

// fakeTx satisfies pgx.Tx for transaction plumbing. Repositories are
// mocked, so only Commit and Rollback are ever reached.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeConn struct {
	txs []*fakeTx
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	c.txs = append(c.txs, tx)
	return tx, nil
}

func (c *fakeConn) Release() {}

// scopedContext returns a context carrying a database scope backed by a
// fake connection, so WithTransaction works without a database.
func scopedContext() context.Context {
	return database.SetScope(context.Background(), &database.Scope{Conn: &fakeConn{}})
}

// ============================================================================
// Repository fakes
// ============================================================================

type mockEntityRepository struct {
	entities map[uuid.UUID]*models.ContactEntity
	order    []uuid.UUID

	failCreateFor map[string]error // keyed by email, for error-isolation tests
}

func newMockEntityRepository() *mockEntityRepository {
	return &mockEntityRepository{entities: make(map[uuid.UUID]*models.ContactEntity)}
}

func (m *mockEntityRepository) Create(ctx context.Context, entity *models.ContactEntity) error {
	if err := m.failCreateFor[entity.Email]; err != nil {
		return err
	}
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	entity.CreatedAt = time.Now()
	entity.UpdatedAt = entity.CreatedAt
	m.entities[entity.ID] = entity
	m.order = append(m.order, entity.ID)
	return nil
}

func (m *mockEntityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ContactEntity, error) {
	e, ok := m.entities[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return e, nil
}

func (m *mockEntityRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]string) error {
	e, ok := m.entities[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	for field, value := range fields {
		e.ApplyField(field, value)
	}
	e.UpdatedAt = time.Now()
	return nil
}

func (m *mockEntityRepository) FindByEmail(ctx context.Context, normalizedEmail string) ([]*models.ContactEntity, error) {
	local, domain, valid := normalize.EmailLocalDomain(normalizedEmail)
	if !valid {
		return nil, nil
	}
	var out []*models.ContactEntity
	for _, id := range m.order {
		e := m.entities[id]
		if e.IsDeleted {
			continue
		}
		for _, email := range e.AllEmails() {
			l, d, ok := normalize.EmailLocalDomain(email)
			if email == normalizedEmail || (ok && l == local && d == domain) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (m *mockEntityRepository) FindByPhone(ctx context.Context, normalizedPhone string) ([]*models.ContactEntity, error) {
	var out []*models.ContactEntity
	for _, id := range m.order {
		e := m.entities[id]
		if e.IsDeleted {
			continue
		}
		for _, phone := range e.AllPhones() {
			if phone == normalizedPhone {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (m *mockEntityRepository) FindByNameBlock(ctx context.Context, lastName, firstInitial, postalCode string) ([]*models.ContactEntity, error) {
	var out []*models.ContactEntity
	for _, id := range m.order {
		e := m.entities[id]
		if e.IsDeleted {
			continue
		}
		if !strings.EqualFold(e.LastName, lastName) {
			continue
		}
		if e.FirstName == "" || !strings.EqualFold(e.FirstName[:1], firstInitial) {
			continue
		}
		if e.PostalCode != postalCode {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockEntityRepository) SetDeleted(ctx context.Context, id uuid.UUID, deleted bool) error {
	e, ok := m.entities[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	e.IsDeleted = deleted
	if deleted {
		now := time.Now()
		e.DeletedAt = &now
	} else {
		e.DeletedAt = nil
	}
	return nil
}

type mockMappingRepository struct {
	mappings map[uuid.UUID]*models.ExternalIdentifierMapping
}

func newMockMappingRepository() *mockMappingRepository {
	return &mockMappingRepository{mappings: make(map[uuid.UUID]*models.ExternalIdentifierMapping)}
}

func (m *mockMappingRepository) Create(ctx context.Context, mapping *models.ExternalIdentifierMapping) error {
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	now := time.Now()
	if mapping.FirstSeenAt.IsZero() {
		mapping.FirstSeenAt = now
	}
	if mapping.LastSeenAt.IsZero() {
		mapping.LastSeenAt = now
	}
	m.mappings[mapping.ID] = mapping
	return nil
}

func (m *mockMappingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExternalIdentifierMapping, error) {
	mp, ok := m.mappings[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return mp, nil
}

func (m *mockMappingRepository) findByKey(entityType, externalSystem, externalID string, active bool) (*models.ExternalIdentifierMapping, error) {
	var best *models.ExternalIdentifierMapping
	for _, mp := range m.mappings {
		if mp.EntityType != entityType || mp.ExternalSystem != externalSystem || mp.ExternalID != externalID {
			continue
		}
		if mp.IsActive != active {
			continue
		}
		if best == nil || mp.LastSeenAt.After(best.LastSeenAt) {
			best = mp
		}
	}
	if best == nil {
		return nil, apperrors.ErrNotFound
	}
	return best, nil
}

func (m *mockMappingRepository) GetActiveForUpdate(ctx context.Context, entityType, externalSystem, externalID string) (*models.ExternalIdentifierMapping, error) {
	return m.findByKey(entityType, externalSystem, externalID, true)
}

func (m *mockMappingRepository) GetActive(ctx context.Context, entityType, externalSystem, externalID string) (*models.ExternalIdentifierMapping, error) {
	return m.findByKey(entityType, externalSystem, externalID, true)
}

func (m *mockMappingRepository) GetMostRecentInactive(ctx context.Context, entityType, externalSystem, externalID string) (*models.ExternalIdentifierMapping, error) {
	return m.findByKey(entityType, externalSystem, externalID, false)
}

func (m *mockMappingRepository) MarkSeen(ctx context.Context, id uuid.UUID, runID uuid.UUID) error {
	mp, ok := m.mappings[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	mp.LastSeenAt = time.Now()
	mp.LastRunID = &runID
	mp.IsActive = true
	mp.DeactivatedReason = nil
	return nil
}

func (m *mockMappingRepository) Deactivate(ctx context.Context, id uuid.UUID, reason string) error {
	mp, ok := m.mappings[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	mp.IsActive = false
	mp.DeactivatedReason = &reason
	return nil
}

func (m *mockMappingRepository) ListActiveByEntity(ctx context.Context, entityID uuid.UUID) ([]*models.ExternalIdentifierMapping, error) {
	var out []*models.ExternalIdentifierMapping
	for _, mp := range m.mappings {
		if mp.EntityID == entityID && mp.IsActive {
			out = append(out, mp)
		}
	}
	return out, nil
}

func (m *mockMappingRepository) Repoint(ctx context.Context, id uuid.UUID, entityID uuid.UUID) error {
	mp, ok := m.mappings[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	mp.EntityID = entityID
	return nil
}

func (m *mockMappingRepository) RestoreState(ctx context.Context, state models.MappingState) error {
	mp, ok := m.mappings[state.MappingID]
	if !ok {
		return apperrors.ErrNotFound
	}
	mp.EntityID = state.EntityID
	mp.IsActive = state.IsActive
	mp.DeactivatedReason = state.DeactivatedReason
	return nil
}

type mockCandidateRepository struct {
	candidates map[uuid.UUID]*models.MatchCandidate
	order      []uuid.UUID
}

func newMockCandidateRepository() *mockCandidateRepository {
	return &mockCandidateRepository{candidates: make(map[uuid.UUID]*models.MatchCandidate)}
}

func (m *mockCandidateRepository) Create(ctx context.Context, candidate *models.MatchCandidate) error {
	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}
	if candidate.Status == "" {
		candidate.Status = models.CandidateStatusPending
	}
	candidate.CreatedAt = time.Now()
	candidate.UpdatedAt = candidate.CreatedAt
	m.candidates[candidate.ID] = candidate
	m.order = append(m.order, candidate.ID)
	return nil
}

func (m *mockCandidateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MatchCandidate, error) {
	c, ok := m.candidates[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (m *mockCandidateRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.MatchCandidate, error) {
	return m.GetByID(ctx, id)
}

func (m *mockCandidateRepository) PendingExists(ctx context.Context, runID uuid.UUID, sourceRowID string, entityID uuid.UUID) (bool, error) {
	for _, c := range m.candidates {
		if c.RunID == runID && c.SourceRowID == sourceRowID && c.EntityID == entityID && c.Status == models.CandidateStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCandidateRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CandidateStatus, decidedBy *uuid.UUID) error {
	c, ok := m.candidates[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.Status = status
	c.DecidedBy = decidedBy
	if status == models.CandidateStatusPending {
		c.DecidedAt = nil
	} else {
		now := time.Now()
		c.DecidedAt = &now
	}
	return nil
}

func (m *mockCandidateRepository) SetMergedEntityForRow(ctx context.Context, runID uuid.UUID, sourceRowID string, mergedEntityID uuid.UUID) error {
	for _, c := range m.candidates {
		if c.RunID == runID && c.SourceRowID == sourceRowID && c.Status == models.CandidateStatusPending {
			id := mergedEntityID
			c.MergedEntityID = &id
		}
	}
	return nil
}

func (m *mockCandidateRepository) ListByRunAndStatus(ctx context.Context, runID uuid.UUID, status models.CandidateStatus) ([]*models.MatchCandidate, error) {
	var out []*models.MatchCandidate
	for _, id := range m.order {
		c := m.candidates[id]
		if c.RunID == runID && c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockMergeRecordRepository struct {
	records map[uuid.UUID]*models.MergeRecord
}

func newMockMergeRecordRepository() *mockMergeRecordRepository {
	return &mockMergeRecordRepository{records: make(map[uuid.UUID]*models.MergeRecord)}
}

func (m *mockMergeRecordRepository) Create(ctx context.Context, record *models.MergeRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = time.Now()
	m.records[record.ID] = record
	return nil
}

func (m *mockMergeRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MergeRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r, nil
}

func (m *mockMergeRecordRepository) UndoExists(ctx context.Context, mergeRecordID uuid.UUID) (bool, error) {
	for _, r := range m.records {
		if r.DecisionType == models.MergeDecisionUndo && r.UndoOfID != nil && *r.UndoOfID == mergeRecordID {
			return true, nil
		}
	}
	return false, nil
}

type mockReconcileAuditRepository struct {
	entries []*models.AuditLogEntry
}

func (m *mockReconcileAuditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockReconcileAuditRepository) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]*models.AuditLogEntry, error) {
	var out []*models.AuditLogEntry
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockReconcileAuditRepository) DeleteByMergeRecord(ctx context.Context, mergeRecordID uuid.UUID) (int64, error) {
	var kept []*models.AuditLogEntry
	var deleted int64
	for _, e := range m.entries {
		if e.MergeRecordID != nil && *e.MergeRecordID == mergeRecordID {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return deleted, nil
}

func (m *mockReconcileAuditRepository) byAction(action string) []*models.AuditLogEntry {
	var out []*models.AuditLogEntry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// failingEntityRepository wraps the mock to fail a specific operation.
type failingEntityRepository struct {
	*mockEntityRepository
	failUpdateFor uuid.UUID
}

func (m *failingEntityRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]string) error {
	if id == m.failUpdateFor {
		return fmt.Errorf("simulated storage failure")
	}
	return m.mockEntityRepository.UpdateFields(ctx, id, fields)
}

// failingCandidateRepository wraps the mock to fail creation for one row.
type failingCandidateRepository struct {
	*mockCandidateRepository
	failForRow string
}

func (m *failingCandidateRepository) Create(ctx context.Context, candidate *models.MatchCandidate) error {
	if candidate.SourceRowID == m.failForRow {
		return fmt.Errorf("simulated storage failure")
	}
	return m.mockCandidateRepository.Create(ctx, candidate)
}
