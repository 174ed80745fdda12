package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Tiers
// ============================================================================

// Tier identifies the origin of a candidate value during survivorship
// resolution. Tiers form a closed enumeration; candidate construction
// dispatches on the tier name rather than subclassing per source.
type Tier string

const (
	TierManual       Tier = "manual"
	TierVerifiedCore Tier = "verified_core"
	TierExistingCore Tier = "existing_core"
	TierIncoming     Tier = "incoming"
)

// ValidTiers contains all valid tier values.
var ValidTiers = []Tier{TierManual, TierVerifiedCore, TierExistingCore, TierIncoming}

// IsValidTier checks if the given tier is valid.
func IsValidTier(t Tier) bool {
	for _, v := range ValidTiers {
		if v == t {
			return true
		}
	}
	return false
}

// ============================================================================
// Profile Configuration
// ============================================================================

// FieldRule configures survivorship for one field: an ordered list of tiers
// that may supply a value, and two independent preferences.
type FieldRule struct {
	Field string `yaml:"field"`
	Tiers []Tier `yaml:"tiers"`

	// PreferNonNull walks tiers in order and picks the first non-blank
	// value. Nil means true. When false the first configured tier wins
	// outright, blank or not (used for free-text fields where an empty
	// override is still a deliberate choice).
	PreferNonNull *bool `yaml:"prefer_non_null,omitempty"`

	// PreferRecentVerified is accepted from profiles but currently has no
	// effect: each field carries at most one verification timestamp, so
	// there is never more than one verified candidate to order. It becomes
	// meaningful once multiple verified sources feed the same field.
	PreferRecentVerified bool `yaml:"prefer_recent_verified,omitempty"`
}

// NonNullPreferred resolves the PreferNonNull default.
func (r *FieldRule) NonNullPreferred() bool {
	return r.PreferNonNull == nil || *r.PreferNonNull
}

// SurvivorshipProfile is the declarative, file-backed tier configuration.
// It is loaded once per process, treated as read-only, and injected into
// the resolver rather than held as process-wide state.
type SurvivorshipProfile struct {
	Name         string      `yaml:"name"`
	DefaultTiers []Tier      `yaml:"default_tiers"`
	Rules        []FieldRule `yaml:"rules"`

	rulesByField map[string]*FieldRule
}

// Validate checks tier names and rule shape, and indexes rules by field.
func (p *SurvivorshipProfile) Validate() error {
	if len(p.DefaultTiers) == 0 {
		return fmt.Errorf("profile %q: default_tiers must not be empty", p.Name)
	}
	for _, t := range p.DefaultTiers {
		if !IsValidTier(t) {
			return fmt.Errorf("profile %q: unknown default tier %q", p.Name, t)
		}
	}

	p.rulesByField = make(map[string]*FieldRule, len(p.Rules))
	for i := range p.Rules {
		rule := &p.Rules[i]
		if rule.Field == "" {
			return fmt.Errorf("profile %q: rule %d has no field", p.Name, i)
		}
		if len(rule.Tiers) == 0 {
			return fmt.Errorf("profile %q: rule for %q has no tiers", p.Name, rule.Field)
		}
		for _, t := range rule.Tiers {
			if !IsValidTier(t) {
				return fmt.Errorf("profile %q: rule for %q has unknown tier %q", p.Name, rule.Field, t)
			}
		}
		if _, dup := p.rulesByField[rule.Field]; dup {
			return fmt.Errorf("profile %q: duplicate rule for field %q", p.Name, rule.Field)
		}
		p.rulesByField[rule.Field] = rule
	}
	return nil
}

// RuleFor returns the rule governing a field, or nil when the field falls
// back to the profile's default tier order.
func (p *SurvivorshipProfile) RuleFor(field string) *FieldRule {
	if p.rulesByField == nil {
		return nil
	}
	return p.rulesByField[field]
}

// GovernedFields returns the fields with explicit rules, in rule order.
func (p *SurvivorshipProfile) GovernedFields() []string {
	fields := make([]string, 0, len(p.Rules))
	for i := range p.Rules {
		fields = append(fields, p.Rules[i].Field)
	}
	return fields
}

// ============================================================================
// Resolution Inputs
// ============================================================================

// ManualOverride carries a manually edited value plus editor metadata.
type ManualOverride struct {
	Value       string     `json:"value"`
	EditorID    *uuid.UUID `json:"editor_id,omitempty"`
	ViolationID *string    `json:"violation_id,omitempty"`
	EditedAt    time.Time  `json:"edited_at"`
}

// ============================================================================
// Resolution Outputs
// ============================================================================

// FieldCandidate is one tier's offering for a field during resolution.
type FieldCandidate struct {
	Tier     Tier              `json:"tier"`
	Value    string            `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DecisionProvenance classifies who effectively won a field decision.
type DecisionProvenance string

const (
	DecisionManualWins   DecisionProvenance = "manual_wins"
	DecisionIncomingWins DecisionProvenance = "incoming_wins"
	DecisionCoreKept     DecisionProvenance = "core_kept"
)

// FieldDecision records the survivorship outcome for one field.
type FieldDecision struct {
	Field      string             `json:"field"`
	Winner     FieldCandidate     `json:"winner"`
	Losers     []FieldCandidate   `json:"losers,omitempty"`
	Changed    bool               `json:"changed"`
	Manual     bool               `json:"manual"`
	Provenance DecisionProvenance `json:"provenance"`
	Reason     string             `json:"reason"`
}

// ResolutionStats aggregates decision provenance for observability.
type ResolutionStats struct {
	FieldsResolved int `json:"fields_resolved"`
	FieldsChanged  int `json:"fields_changed"`
	ManualWins     int `json:"manual_wins"`
	IncomingWins   int `json:"incoming_wins"`
	CoreKept       int `json:"core_kept"`
}

// Resolution is the full result of survivorship resolution for one record.
type Resolution struct {
	ResolvedValues map[string]string        `json:"resolved_values"`
	Decisions      map[string]FieldDecision `json:"decisions"`
	Stats          ResolutionStats          `json:"stats"`
}

// ChangedFields returns the fields whose winning value differs from the
// existing core value, in no particular order.
func (r *Resolution) ChangedFields() []string {
	var out []string
	for field, d := range r.Decisions {
		if d.Changed {
			out = append(out, field)
		}
	}
	return out
}
