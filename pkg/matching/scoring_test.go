package matching

import (
	"testing"
	"time"
)

func TestJaroWinkler(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "martha", "martha", 1.0, 1.0},
		{"classic pair", "martha", "marhta", 0.95, 0.97},
		{"prefix boost", "dixon", "dicksonx", 0.75, 0.85},
		{"no similarity", "abc", "xyz", 0.0, 0.0},
		{"both empty", "", "", 0.0, 0.0},
		{"one empty", "jane", "", 0.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JaroWinkler(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("JaroWinkler(%q, %q) = %f, want in [%f, %f]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestJaroWinkler_Symmetric(t *testing.T) {
	pairs := [][2]string{{"jane doe", "jane dough"}, {"robert", "bob"}, {"smith", "smyth"}}
	for _, p := range pairs {
		if JaroWinkler(p[0], p[1]) != JaroWinkler(p[1], p[0]) {
			t.Errorf("JaroWinkler not symmetric for %q / %q", p[0], p[1])
		}
	}
}

func TestEditSimilarity(t *testing.T) {
	if got := EditSimilarity("kitten", "sitting"); got <= 0.5 || got >= 0.7 {
		t.Errorf("EditSimilarity(kitten, sitting) = %f, want ~0.571", got)
	}
	if got := EditSimilarity("same", "same"); got != 1.0 {
		t.Errorf("EditSimilarity(same, same) = %f, want 1.0", got)
	}
	if got := EditSimilarity("", ""); got != 0.0 {
		t.Errorf("EditSimilarity empty = %f, want 0.0", got)
	}
}

func TestTokenSetSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical tokens reordered", "123 Main St", "Main St 123", 1.0, 1.0},
		{"full overlap with extra token", "123 Main St Springfield", "123 Main St", 0.6, 0.9},
		{"disjoint", "oak avenue", "elm road", 0.0, 0.45},
		{"one blank", "", "main st", 0.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenSetSimilarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("TokenSetSimilarity(%q, %q) = %f, want in [%f, %f]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestTokenSortSimilarity(t *testing.T) {
	if got := TokenSortSimilarity("Acme Widgets Inc", "Inc Acme Widgets"); got != 1.0 {
		t.Errorf("TokenSortSimilarity reordered = %f, want 1.0", got)
	}
	if got := TokenSortSimilarity("Acme Widgets", ""); got != 0.0 {
		t.Errorf("TokenSortSimilarity with blank = %f, want 0.0", got)
	}
	ordered := TokenSortSimilarity("Springfield Elementary", "Elementary Springfield School")
	if ordered <= 0.5 {
		t.Errorf("TokenSortSimilarity partial = %f, want > 0.5", ordered)
	}
}

func TestDateProximity(t *testing.T) {
	base := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)

	if got := DateProximity(base, base, 730); got != 1.0 {
		t.Errorf("exact match = %f, want 1.0", got)
	}
	if got := DateProximity(base, base.AddDate(0, 0, 365), 730); got <= 0.49 || got >= 0.51 {
		t.Errorf("365 days apart = %f, want ~0.5", got)
	}
	if got := DateProximity(base, base.AddDate(0, 0, 730), 730); got != 0.0 {
		t.Errorf("730 days apart = %f, want 0.0", got)
	}
	if got := DateProximity(time.Time{}, base, 730); got != 0.0 {
		t.Errorf("zero date = %f, want 0.0", got)
	}
}
