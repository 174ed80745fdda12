// Package repositories provides data access for the reconciliation store.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/contact-reconciler/pkg/apperrors"
	"github.com/ekaya-inc/contact-reconciler/pkg/database"
	"github.com/ekaya-inc/contact-reconciler/pkg/models"
	"github.com/ekaya-inc/contact-reconciler/pkg/normalize"
)

// EntityRepository provides data access for core contact entities.
type EntityRepository interface {
	Create(ctx context.Context, entity *models.ContactEntity) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ContactEntity, error)
	// UpdateFields writes only the named survivorship-tracked fields.
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]string) error
	// FindByEmail matches the exact normalized email, the same local-part
	// prefix plus domain, or an alternate email.
	FindByEmail(ctx context.Context, normalizedEmail string) ([]*models.ContactEntity, error)
	// FindByPhone matches the exact normalized phone, primary or alternate.
	FindByPhone(ctx context.Context, normalizedPhone string) ([]*models.ContactEntity, error)
	// FindByNameBlock is the fuzzy-scoring blocking query: same last name,
	// same first-letter-of-first-name, same postal code.
	FindByNameBlock(ctx context.Context, lastName, firstInitial, postalCode string) ([]*models.ContactEntity, error)
	SetDeleted(ctx context.Context, id uuid.UUID, deleted bool) error
}

type entityRepository struct{}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository() EntityRepository {
	return &entityRepository{}
}

var _ EntityRepository = (*entityRepository)(nil)

const entityColumns = `
	id, first_name, last_name, email, phone, date_of_birth,
	street, city, state, postal_code, employer, school, notes,
	alternate_emails, alternate_phones,
	email_verified_at, phone_verified_at,
	is_deleted, deleted_at, created_at, updated_at`

// fieldColumns whitelists the payload field names UpdateFields may touch.
var fieldColumns = map[string]string{
	models.FieldFirstName:   "first_name",
	models.FieldLastName:    "last_name",
	models.FieldEmail:       "email",
	models.FieldPhone:       "phone",
	models.FieldDateOfBirth: "date_of_birth",
	models.FieldStreet:      "street",
	models.FieldCity:        "city",
	models.FieldState:       "state",
	models.FieldPostalCode:  "postal_code",
	models.FieldEmployer:    "employer",
	models.FieldSchool:      "school",
	models.FieldNotes:       "notes",
}

func (r *entityRepository) Create(ctx context.Context, entity *models.ContactEntity) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	now := time.Now()
	entity.CreatedAt = now
	entity.UpdatedAt = now
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}

	query := `
		INSERT INTO contact_entities (` + entityColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21
		)`

	_, err := scope.Q().Exec(ctx, query,
		entity.ID, entity.FirstName, entity.LastName, entity.Email, entity.Phone, entity.DateOfBirth,
		entity.Street, entity.City, entity.State, entity.PostalCode,
		entity.Employer, entity.School, entity.Notes,
		entity.AlternateEmails, entity.AlternatePhones,
		entity.EmailVerifiedAt, entity.PhoneVerifiedAt,
		entity.IsDeleted, entity.DeletedAt, entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact entity: %w", err)
	}

	return nil
}

func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ContactEntity, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + entityColumns + ` FROM contact_entities WHERE id = $1`

	row := scope.Q().QueryRow(ctx, query, id)
	return scanEntityRow(row)
}

func (r *entityRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if len(fields) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	args = append(args, id)

	for field, value := range fields {
		col, known := fieldColumns[field]
		if !known {
			continue
		}
		args = append(args, nullable(value))
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if len(setClauses) == 0 {
		return nil
	}

	args = append(args, time.Now())
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", len(args)))

	query := fmt.Sprintf(
		"UPDATE contact_entities SET %s WHERE id = $1",
		strings.Join(setClauses, ", "),
	)

	result, err := scope.Q().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update contact fields: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("contact entity %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func (r *entityRepository) FindByEmail(ctx context.Context, normalizedEmail string) ([]*models.ContactEntity, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	local, domain, valid := normalize.EmailLocalDomain(normalizedEmail)
	if !valid {
		return nil, nil
	}

	// Exact normalized match, same local-prefix + domain (tolerates plus
	// tags already stripped from the incoming side), or an alternate email.
	query := `
		SELECT ` + entityColumns + `
		FROM contact_entities
		WHERE is_deleted = false
		  AND (
			lower(email) = $1
			OR (split_part(split_part(lower(email), '@', 1), '+', 1) = $2
			    AND split_part(lower(email), '@', 2) = $3)
			OR $1 = ANY(alternate_emails)
		  )
		ORDER BY created_at ASC`

	rows, err := scope.Q().Query(ctx, query, normalizedEmail, local, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by email: %w", err)
	}
	defer rows.Close()

	return scanEntityRows(rows)
}

func (r *entityRepository) FindByPhone(ctx context.Context, normalizedPhone string) ([]*models.ContactEntity, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT ` + entityColumns + `
		FROM contact_entities
		WHERE is_deleted = false
		  AND (phone = $1 OR $1 = ANY(alternate_phones))
		ORDER BY created_at ASC`

	rows, err := scope.Q().Query(ctx, query, normalizedPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by phone: %w", err)
	}
	defer rows.Close()

	return scanEntityRows(rows)
}

func (r *entityRepository) FindByNameBlock(ctx context.Context, lastName, firstInitial, postalCode string) ([]*models.ContactEntity, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT ` + entityColumns + `
		FROM contact_entities
		WHERE is_deleted = false
		  AND lower(last_name) = lower($1)
		  AND lower(left(first_name, 1)) = lower($2)
		  AND postal_code = $3
		ORDER BY created_at ASC`

	rows, err := scope.Q().Query(ctx, query, lastName, firstInitial, postalCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query name block: %w", err)
	}
	defer rows.Close()

	return scanEntityRows(rows)
}

func (r *entityRepository) SetDeleted(ctx context.Context, id uuid.UUID, deleted bool) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE contact_entities
		SET is_deleted = $2,
		    deleted_at = CASE WHEN $2 THEN NOW() ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := scope.Q().Exec(ctx, query, id, deleted)
	if err != nil {
		return fmt.Errorf("failed to set entity deletion state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("contact entity %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

// nullable maps blank strings to NULL so empty resolved values clear
// columns instead of storing empty strings.
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanEntityRow(row pgx.Row) (*models.ContactEntity, error) {
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan contact entity: %w", err)
	}
	return e, nil
}

func scanEntityRows(rows pgx.Rows) ([]*models.ContactEntity, error) {
	var entities []*models.ContactEntity

	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact entity row: %w", err)
		}
		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contact entity rows: %w", err)
	}

	return entities, nil
}

func scanEntity(row pgx.Row) (*models.ContactEntity, error) {
	var e models.ContactEntity
	var firstName, lastName, email, phone *string
	var street, city, state, postalCode, employer, school, notes *string

	err := row.Scan(
		&e.ID, &firstName, &lastName, &email, &phone, &e.DateOfBirth,
		&street, &city, &state, &postalCode, &employer, &school, &notes,
		&e.AlternateEmails, &e.AlternatePhones,
		&e.EmailVerifiedAt, &e.PhoneVerifiedAt,
		&e.IsDeleted, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.FirstName = deref(firstName)
	e.LastName = deref(lastName)
	e.Email = deref(email)
	e.Phone = deref(phone)
	e.Street = deref(street)
	e.City = deref(city)
	e.State = deref(state)
	e.PostalCode = deref(postalCode)
	e.Employer = deref(employer)
	e.School = deref(school)
	e.Notes = deref(notes)

	return &e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
