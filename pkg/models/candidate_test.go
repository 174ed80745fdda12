package models

import "testing"

func TestMatchType_IsDirect(t *testing.T) {
	direct := []MatchType{MatchTypeCombined, MatchTypeEmail, MatchTypePhone}
	for _, m := range direct {
		if !m.IsDirect() {
			t.Errorf("%s should be direct", m)
		}
	}

	indirect := []MatchType{
		MatchTypeAmbiguous, MatchTypeNone, MatchTypeInsufficient,
		MatchTypeFuzzyHigh, MatchTypeFuzzyReview, MatchTypeFuzzyLow,
	}
	for _, m := range indirect {
		if m.IsDirect() {
			t.Errorf("%s should not be direct", m)
		}
	}
}

func TestMatchCandidate_IsReviewable(t *testing.T) {
	tests := []struct {
		status CandidateStatus
		want   bool
	}{
		{CandidateStatusPending, true},
		{CandidateStatusDeferred, true},
		{CandidateStatusAccepted, false},
		{CandidateStatusRejected, false},
		{CandidateStatusAutoMerged, false},
	}

	for _, tt := range tests {
		c := &MatchCandidate{Status: tt.status}
		if got := c.IsReviewable(); got != tt.want {
			t.Errorf("IsReviewable() with status %s = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMatchCandidate_IsAutoMergeable(t *testing.T) {
	c := &MatchCandidate{MatchType: MatchTypeFuzzyHigh, Confidence: 0.97}
	if !c.IsAutoMergeable(0.95) {
		t.Error("fuzzy_high at 0.97 should auto-merge at 0.95 threshold")
	}
	if c.IsAutoMergeable(0.98) {
		t.Error("fuzzy_high at 0.97 should not auto-merge at 0.98 threshold")
	}

	review := &MatchCandidate{MatchType: MatchTypeFuzzyReview, Confidence: 0.99}
	if review.IsAutoMergeable(0.95) {
		t.Error("fuzzy_review must never auto-merge regardless of confidence")
	}
}

func TestIsValidMatchType(t *testing.T) {
	if !IsValidMatchType(MatchTypeCombined) {
		t.Error("combined should be valid")
	}
	if IsValidMatchType(MatchType("exactish")) {
		t.Error("unknown match type should be invalid")
	}
}
