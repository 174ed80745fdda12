package services

import (
	"fmt"

	"github.com/ekaya-inc/contact-reconciler/pkg/models"
)

// SurvivorshipInput gathers the per-field value sources for one record.
// All maps are keyed by the flat field names in models; absent keys mean
// the source carries no value for that field (distinct from a blank value,
// which means the source explicitly carries nothing).
type SurvivorshipInput struct {
	Incoming        map[string]string
	Core            map[string]string
	ManualOverrides map[string]models.ManualOverride
	Verified        map[string]string
}

// ResolveSurvivorship runs tiered field resolution for one record. It is a
// pure function of the profile and inputs: same inputs, same resolution.
// Fields governed by a profile rule use that rule's tier order; fields
// present in the incoming payload without a rule use the profile's default
// tier order. Fields with no candidate from any tier are skipped.
func ResolveSurvivorship(profile *models.SurvivorshipProfile, in SurvivorshipInput) *models.Resolution {
	res := &models.Resolution{
		ResolvedValues: make(map[string]string),
		Decisions:      make(map[string]models.FieldDecision),
	}

	for _, field := range resolutionFields(profile, in) {
		rule := profile.RuleFor(field)
		tiers := profile.DefaultTiers
		preferNonNull := true
		if rule != nil {
			tiers = rule.Tiers
			preferNonNull = rule.NonNullPreferred()
		}

		candidates := collectCandidates(field, tiers, in)
		if len(candidates) == 0 {
			continue
		}

		winner, reason := pickWinner(candidates, preferNonNull)
		decision := models.FieldDecision{
			Field:   field,
			Winner:  winner,
			Changed: winner.Value != in.Core[field],
			Manual:  winner.Tier == models.TierManual,
			Reason:  reason,
		}
		for _, c := range candidates {
			if c.Tier != winner.Tier {
				decision.Losers = append(decision.Losers, c)
			}
		}
		decision.Provenance = classifyDecision(decision)

		res.ResolvedValues[field] = winner.Value
		res.Decisions[field] = decision

		res.Stats.FieldsResolved++
		if decision.Changed {
			res.Stats.FieldsChanged++
		}
		switch decision.Provenance {
		case models.DecisionManualWins:
			res.Stats.ManualWins++
		case models.DecisionIncomingWins:
			res.Stats.IncomingWins++
		case models.DecisionCoreKept:
			res.Stats.CoreKept++
		}
	}

	return res
}

// resolutionFields returns the fields to resolve in a stable order: the
// profile's governed fields first, then incoming payload fields without a
// rule, following the tracked-field order.
func resolutionFields(profile *models.SurvivorshipProfile, in SurvivorshipInput) []string {
	fields := profile.GovernedFields()
	governed := make(map[string]bool, len(fields))
	for _, f := range fields {
		governed[f] = true
	}
	for _, f := range models.TrackedFields {
		if _, ok := in.Incoming[f]; ok && !governed[f] {
			fields = append(fields, f)
		}
	}
	return fields
}

// collectCandidates builds at most one candidate per tier, in the rule's
// tier order. A tier with no recorded value for the field contributes no
// candidate.
func collectCandidates(field string, tiers []models.Tier, in SurvivorshipInput) []models.FieldCandidate {
	var out []models.FieldCandidate
	for _, tier := range tiers {
		switch tier {
		case models.TierManual:
			if ov, ok := in.ManualOverrides[field]; ok {
				meta := map[string]string{"edited_at": ov.EditedAt.Format("2006-01-02T15:04:05Z07:00")}
				if ov.EditorID != nil {
					meta["editor_id"] = ov.EditorID.String()
				}
				if ov.ViolationID != nil {
					meta["violation_id"] = *ov.ViolationID
				}
				out = append(out, models.FieldCandidate{Tier: tier, Value: ov.Value, Metadata: meta})
			}
		case models.TierVerifiedCore:
			if v, ok := in.Verified[field]; ok {
				out = append(out, models.FieldCandidate{Tier: tier, Value: v})
			}
		case models.TierExistingCore:
			if v, ok := in.Core[field]; ok {
				out = append(out, models.FieldCandidate{Tier: tier, Value: v})
			}
		case models.TierIncoming:
			if v, ok := in.Incoming[field]; ok {
				out = append(out, models.FieldCandidate{Tier: tier, Value: v})
			}
		}
	}
	return out
}

// pickWinner applies the non-null preference over the ordered candidates.
// With the preference on, the first non-blank value wins and an all-blank
// field falls back to the first tier in order. With it off, the first
// configured tier wins outright.
func pickWinner(candidates []models.FieldCandidate, preferNonNull bool) (models.FieldCandidate, string) {
	if !preferNonNull {
		return candidates[0], fmt.Sprintf("first tier %s wins (non-null preference disabled)", candidates[0].Tier)
	}
	for _, c := range candidates {
		if c.Value != "" {
			return c, fmt.Sprintf("first non-null value in tier order (%s)", c.Tier)
		}
	}
	return candidates[0], fmt.Sprintf("all tiers null, fell back to first tier (%s)", candidates[0].Tier)
}

func classifyDecision(d models.FieldDecision) models.DecisionProvenance {
	switch {
	case d.Winner.Tier == models.TierManual:
		return models.DecisionManualWins
	case d.Winner.Tier == models.TierIncoming && d.Changed:
		return models.DecisionIncomingWins
	default:
		return models.DecisionCoreKept
	}
}
