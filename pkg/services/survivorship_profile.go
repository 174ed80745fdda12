package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/contact-reconciler/pkg/models"
)

// LoadSurvivorshipProfile reads and validates a YAML profile. Load once at
// startup and inject the result; the profile is read-only afterwards.
func LoadSurvivorshipProfile(path string) (*models.SurvivorshipProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read survivorship profile: %w", err)
	}

	var profile models.SurvivorshipProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse survivorship profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid survivorship profile: %w", err)
	}

	return &profile, nil
}

// DefaultSurvivorshipProfile returns the built-in profile used when no
// profile file is configured. Contact points prefer verified core values
// over incoming data; everything else lets fresher incoming data win when
// the core holds nothing better.
func DefaultSurvivorshipProfile() *models.SurvivorshipProfile {
	preferCore := []models.Tier{
		models.TierManual, models.TierVerifiedCore, models.TierExistingCore, models.TierIncoming,
	}
	preferIncoming := []models.Tier{
		models.TierManual, models.TierIncoming, models.TierExistingCore,
	}

	profile := &models.SurvivorshipProfile{
		Name:         "default",
		DefaultTiers: preferIncoming,
		Rules: []models.FieldRule{
			{Field: models.FieldEmail, Tiers: preferCore},
			{Field: models.FieldPhone, Tiers: preferCore},
			{Field: models.FieldFirstName, Tiers: preferIncoming},
			{Field: models.FieldLastName, Tiers: preferIncoming},
			{Field: models.FieldDateOfBirth, Tiers: []models.Tier{
				models.TierManual, models.TierExistingCore, models.TierIncoming,
			}},
		},
	}

	// Built-in profile shape is fixed; a validation failure here is a bug.
	if err := profile.Validate(); err != nil {
		panic(fmt.Sprintf("default survivorship profile invalid: %v", err))
	}

	return profile
}
