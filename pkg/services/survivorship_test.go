package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/contact-reconciler/pkg/models"
)

func profileWithRule(t *testing.T, rule models.FieldRule) *models.SurvivorshipProfile {
	t.Helper()
	p := &models.SurvivorshipProfile{
		Name:         "test",
		DefaultTiers: []models.Tier{models.TierManual, models.TierIncoming, models.TierExistingCore},
		Rules:        []models.FieldRule{rule},
	}
	require.NoError(t, p.Validate())
	return p
}

func TestResolveSurvivorship_ManualAlwaysWins(t *testing.T) {
	profile := profileWithRule(t, models.FieldRule{
		Field: models.FieldEmail,
		Tiers: []models.Tier{models.TierManual, models.TierVerifiedCore, models.TierExistingCore, models.TierIncoming},
	})
	editor := uuid.New()

	res := ResolveSurvivorship(profile, SurvivorshipInput{
		Incoming: map[string]string{models.FieldEmail: "incoming@example.com"},
		Core:     map[string]string{models.FieldEmail: "core@example.com"},
		Verified: map[string]string{models.FieldEmail: "core@example.com"},
		ManualOverrides: map[string]models.ManualOverride{
			models.FieldEmail: {Value: "manual@example.com", EditorID: &editor, EditedAt: time.Now()},
		},
	})

	assert.Equal(t, "manual@example.com", res.ResolvedValues[models.FieldEmail])
	d := res.Decisions[models.FieldEmail]
	assert.True(t, d.Manual)
	assert.True(t, d.Changed)
	assert.Equal(t, models.DecisionManualWins, d.Provenance)
	assert.Equal(t, 1, res.Stats.ManualWins)
}

func TestResolveSurvivorship_VerifiedCoreBeatsIncoming(t *testing.T) {
	profile := profileWithRule(t, models.FieldRule{
		Field: models.FieldEmail,
		Tiers: []models.Tier{models.TierManual, models.TierVerifiedCore, models.TierExistingCore, models.TierIncoming},
	})

	res := ResolveSurvivorship(profile, SurvivorshipInput{
		Incoming: map[string]string{models.FieldEmail: "incoming@example.com"},
		Core:     map[string]string{models.FieldEmail: "core@example.com"},
		Verified: map[string]string{models.FieldEmail: "core@example.com"},
	})

	assert.Equal(t, "core@example.com", res.ResolvedValues[models.FieldEmail])
	d := res.Decisions[models.FieldEmail]
	assert.False(t, d.Changed)
	assert.Equal(t, models.DecisionCoreKept, d.Provenance)
	require.Len(t, d.Losers, 2)
}

func TestResolveSurvivorship_PreferNonNullSkipsBlankTiers(t *testing.T) {
	profile := profileWithRule(t, models.FieldRule{
		Field: models.FieldPhone,
		Tiers: []models.Tier{models.TierManual, models.TierVerifiedCore, models.TierExistingCore, models.TierIncoming},
	})

	// Core has no phone; the incoming value should win even though
	// existing_core is ahead of incoming in tier order.
	res := ResolveSurvivorship(profile, SurvivorshipInput{
		Incoming: map[string]string{models.FieldPhone: "+14155550101"},
		Core:     map[string]string{models.FieldPhone: ""},
	})

	assert.Equal(t, "+14155550101", res.ResolvedValues[models.FieldPhone])
	d := res.Decisions[models.FieldPhone]
	assert.True(t, d.Changed)
	assert.Equal(t, models.DecisionIncomingWins, d.Provenance)
}

func TestResolveSurvivorship_PreferNonNullDisabled(t *testing.T) {
	preferNonNull := false
	profile := profileWithRule(t, models.FieldRule{
		Field:         models.FieldNotes,
		Tiers:         []models.Tier{models.TierManual, models.TierExistingCore, models.TierIncoming},
		PreferNonNull: &preferNonNull,
	})
	editor := uuid.New()

	// A deliberately blank manual override clears the field.
	res := ResolveSurvivorship(profile, SurvivorshipInput{
		Incoming: map[string]string{models.FieldNotes: "fresh notes"},
		Core:     map[string]string{models.FieldNotes: "old notes"},
		ManualOverrides: map[string]models.ManualOverride{
			models.FieldNotes: {Value: "", EditorID: &editor, EditedAt: time.Now()},
		},
	})

	assert.Equal(t, "", res.ResolvedValues[models.FieldNotes])
	d := res.Decisions[models.FieldNotes]
	assert.True(t, d.Changed)
	assert.Equal(t, models.TierManual, d.Winner.Tier)
}

func TestResolveSurvivorship_AllBlankFallsBackToFirstTier(t *testing.T) {
	profile := profileWithRule(t, models.FieldRule{
		Field: models.FieldEmployer,
		Tiers: []models.Tier{models.TierExistingCore, models.TierIncoming},
	})

	res := ResolveSurvivorship(profile, SurvivorshipInput{
		Incoming: map[string]string{models.FieldEmployer: ""},
		Core:     map[string]string{models.FieldEmployer: ""},
	})

	d := res.Decisions[models.FieldEmployer]
	assert.Equal(t, "", d.Winner.Value)
	assert.Equal(t, models.TierExistingCore, d.Winner.Tier)
	assert.False(t, d.Changed)
}

func TestResolveSurvivorship_UnruledFieldUsesDefaultTiers(t *testing.T) {
	profile := profileWithRule(t, models.FieldRule{
		Field: models.FieldEmail,
		Tiers: []models.Tier{models.TierExistingCore, models.TierIncoming},
	})

	// city has no rule; default order is manual > incoming > existing_core,
	// so the incoming value should win.
	res := ResolveSurvivorship(profile, SurvivorshipInput{
		Incoming: map[string]string{models.FieldCity: "Oakland"},
		Core:     map[string]string{models.FieldCity: "San Francisco"},
	})

	assert.Equal(t, "Oakland", res.ResolvedValues[models.FieldCity])
	assert.Equal(t, models.DecisionIncomingWins, res.Decisions[models.FieldCity].Provenance)
}

func TestResolveSurvivorship_FieldWithNoCandidatesSkipped(t *testing.T) {
	profile := profileWithRule(t, models.FieldRule{
		Field: models.FieldSchool,
		Tiers: []models.Tier{models.TierManual, models.TierIncoming},
	})

	// No manual override and no incoming value for school; the field must
	// not appear in the resolution at all, even though core has a value.
	res := ResolveSurvivorship(profile, SurvivorshipInput{
		Incoming: map[string]string{},
		Core:     map[string]string{models.FieldSchool: "State University"},
	})

	_, resolved := res.ResolvedValues[models.FieldSchool]
	assert.False(t, resolved)
	assert.Equal(t, 0, res.Stats.FieldsResolved)
}

func TestResolveSurvivorship_Deterministic(t *testing.T) {
	profile := DefaultSurvivorshipProfile()
	in := SurvivorshipInput{
		Incoming: map[string]string{
			models.FieldFirstName: "Jane",
			models.FieldEmail:     "jane@example.com",
			models.FieldCity:      "Oakland",
		},
		Core: map[string]string{
			models.FieldFirstName: "Janet",
			models.FieldEmail:     "janet@example.com",
			models.FieldCity:      "",
		},
		Verified: map[string]string{models.FieldEmail: "janet@example.com"},
	}

	first := ResolveSurvivorship(profile, in)
	for i := 0; i < 5; i++ {
		again := ResolveSurvivorship(profile, in)
		assert.Equal(t, first.ResolvedValues, again.ResolvedValues)
		assert.Equal(t, first.Stats, again.Stats)
	}
}

func TestResolveSurvivorship_StatsAddUp(t *testing.T) {
	profile := DefaultSurvivorshipProfile()
	editor := uuid.New()

	res := ResolveSurvivorship(profile, SurvivorshipInput{
		Incoming: map[string]string{
			models.FieldFirstName: "Jane",            // incoming wins (default rule)
			models.FieldEmail:     "new@example.com", // verified core kept
			models.FieldNotes:     "same",            // unchanged
		},
		Core: map[string]string{
			models.FieldFirstName: "Janet",
			models.FieldEmail:     "verified@example.com",
			models.FieldNotes:     "same",
			models.FieldLastName:  "Doe",
		},
		Verified: map[string]string{models.FieldEmail: "verified@example.com"},
		ManualOverrides: map[string]models.ManualOverride{
			models.FieldLastName: {Value: "Smith", EditorID: &editor, EditedAt: time.Now()},
		},
	})

	assert.Equal(t, res.Stats.FieldsResolved,
		res.Stats.ManualWins+res.Stats.IncomingWins+res.Stats.CoreKept)
	assert.Equal(t, 1, res.Stats.ManualWins)
	assert.Equal(t, 1, res.Stats.IncomingWins)
	assert.Equal(t, 2, res.Stats.FieldsChanged)
}

func TestLoadSurvivorshipProfile_InvalidPath(t *testing.T) {
	_, err := LoadSurvivorshipProfile("/nonexistent/profile.yaml")
	require.Error(t, err)
}

func TestDefaultSurvivorshipProfile_Valid(t *testing.T) {
	profile := DefaultSurvivorshipProfile()
	require.NotNil(t, profile.RuleFor(models.FieldEmail))
	require.NotNil(t, profile.RuleFor(models.FieldPhone))
	assert.Nil(t, profile.RuleFor(models.FieldCity))
}
