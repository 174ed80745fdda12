package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contact-reconciler/pkg/models"
)

func seedEntity(t *testing.T, repo *mockEntityRepository, ctx context.Context, email, phone string) *models.ContactEntity {
	t.Helper()
	entity := &models.ContactEntity{Email: email, Phone: phone}
	require.NoError(t, repo.Create(ctx, entity))
	return entity
}

func TestMatchByContact_Insufficient(t *testing.T) {
	matcher := NewDeterministicMatcher(newMockEntityRepository(), zap.NewNop())

	tests := []struct {
		name  string
		email string
		phone string
	}{
		{"both blank", "", ""},
		{"unparseable email", "not-an-email", ""},
		{"unparseable phone", "", "12"},
		{"both unparseable", "nope", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := matcher.MatchByContact(scopedContext(), tt.email, tt.phone)
			require.NoError(t, err)
			assert.Equal(t, models.MatchTypeInsufficient, match.Outcome)
			assert.Nil(t, match.EntityID)
		})
	}
}

func TestMatchByContact_CombinedBeatsSingleSignal(t *testing.T) {
	repo := newMockEntityRepository()
	ctx := scopedContext()
	entity := seedEntity(t, repo, ctx, "jane@example.com", "+14155550101")
	matcher := NewDeterministicMatcher(repo, zap.NewNop())

	match, err := matcher.MatchByContact(ctx, "Jane+promo@Example.com", "(415) 555-0101")
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypeCombined, match.Outcome)
	require.NotNil(t, match.EntityID)
	assert.Equal(t, entity.ID, *match.EntityID)
}

func TestMatchByContact_SingleSignal(t *testing.T) {
	repo := newMockEntityRepository()
	ctx := scopedContext()
	entity := seedEntity(t, repo, ctx, "jane@example.com", "+14155550101")
	matcher := NewDeterministicMatcher(repo, zap.NewNop())

	match, err := matcher.MatchByContact(ctx, "jane@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypeEmail, match.Outcome)
	assert.Equal(t, entity.ID, *match.EntityID)

	match, err = matcher.MatchByContact(ctx, "", "415-555-0101")
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypePhone, match.Outcome)
	assert.Equal(t, entity.ID, *match.EntityID)
}

// A record whose email hits one entity and phone hits a different entity
// must come back ambiguous, never silently pick one side.
func TestMatchByContact_DisjointHitsAreAmbiguous(t *testing.T) {
	repo := newMockEntityRepository()
	ctx := scopedContext()
	byEmail := seedEntity(t, repo, ctx, "jane@example.com", "+12125550000")
	byPhone := seedEntity(t, repo, ctx, "other@example.com", "+14155550101")
	matcher := NewDeterministicMatcher(repo, zap.NewNop())

	match, err := matcher.MatchByContact(ctx, "jane@example.com", "+14155550101")
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypeAmbiguous, match.Outcome)
	assert.Nil(t, match.EntityID)

	assert.ElementsMatch(t, []uuid.UUID{byEmail.ID, byPhone.ID}, match.CandidatePool())
}

func TestMatchByContact_MultipleEmailHitsAreAmbiguous(t *testing.T) {
	repo := newMockEntityRepository()
	ctx := scopedContext()
	seedEntity(t, repo, ctx, "shared@example.com", "+12125550000")
	seedEntity(t, repo, ctx, "shared@example.com", "+13105550000")
	matcher := NewDeterministicMatcher(repo, zap.NewNop())

	match, err := matcher.MatchByContact(ctx, "shared@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypeAmbiguous, match.Outcome)
	assert.Len(t, match.EmailMatchIDs, 2)
}

func TestMatchByContact_BothChannelsAgreeOnOneOfMany(t *testing.T) {
	repo := newMockEntityRepository()
	ctx := scopedContext()
	both := seedEntity(t, repo, ctx, "shared@example.com", "+14155550101")
	seedEntity(t, repo, ctx, "shared@example.com", "+12125550000")
	matcher := NewDeterministicMatcher(repo, zap.NewNop())

	// Email hits two entities, phone narrows it to one.
	match, err := matcher.MatchByContact(ctx, "shared@example.com", "+14155550101")
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypeCombined, match.Outcome)
	assert.Equal(t, both.ID, *match.EntityID)
}

func TestMatchByContact_None(t *testing.T) {
	repo := newMockEntityRepository()
	ctx := scopedContext()
	seedEntity(t, repo, ctx, "jane@example.com", "+14155550101")
	matcher := NewDeterministicMatcher(repo, zap.NewNop())

	match, err := matcher.MatchByContact(ctx, "stranger@example.com", "+19175550000")
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypeNone, match.Outcome)
	assert.Nil(t, match.EntityID)
	assert.Empty(t, match.CandidatePool())
}

func TestMatchByContact_AlternateEmailMatches(t *testing.T) {
	repo := newMockEntityRepository()
	ctx := scopedContext()
	entity := &models.ContactEntity{
		Email:           "primary@example.com",
		AlternateEmails: []string{"old@example.com"},
	}
	require.NoError(t, repo.Create(ctx, entity))
	matcher := NewDeterministicMatcher(repo, zap.NewNop())

	match, err := matcher.MatchByContact(ctx, "old@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypeEmail, match.Outcome)
	assert.Equal(t, entity.ID, *match.EntityID)
}
