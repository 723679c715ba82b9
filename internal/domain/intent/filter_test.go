package intent

import "testing"

func TestFilterActionMatching(t *testing.T) {
	f := &Filter{}
	f.AddAction("a.b.VIEW")
	f.AddAction("a.b.EDIT")

	tests := []struct {
		name   string
		intent *Intent
		want   bool
	}{
		{"listed action", New("a.b.VIEW", "", ""), true},
		{"other listed action", New("a.b.EDIT", "", ""), true},
		{"unlisted action", New("a.b.SEND", "", ""), false},
		{"no action passes", New("", "", ""), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.MatchIntent(tt.intent, ""); got != tt.want {
				t.Errorf("MatchIntent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterNoActionsRejectsActionedIntent(t *testing.T) {
	f := &Filter{}
	if f.MatchIntent(New("a.b.VIEW", "", ""), "") {
		t.Error("filter without actions admitted an intent that names one")
	}
	if !f.MatchIntent(New("", "", ""), "") {
		t.Error("empty filter should admit the empty intent")
	}
}

func TestFilterCategories(t *testing.T) {
	f := &Filter{}
	f.AddAction("a.b.VIEW")
	f.AddCategory("cat.DEFAULT")
	f.AddCategory("cat.BROWSABLE")

	if !f.MatchIntent(New("a.b.VIEW", "", "").WithCategories("cat.DEFAULT"), "") {
		t.Error("subset of filter categories should match")
	}
	if f.MatchIntent(New("a.b.VIEW", "", "").WithCategories("cat.OTHER"), "") {
		t.Error("category outside the filter should not match")
	}
}

func TestFilterDataMatrix(t *testing.T) {
	scheme := &Filter{}
	scheme.AddDataScheme("https")

	authority := &Filter{}
	authority.AddDataScheme("https")
	if err := authority.AddDataAuthority("*.example.com", ""); err != nil {
		t.Fatal(err)
	}

	pathed := &Filter{}
	pathed.AddDataScheme("https")
	if err := pathed.AddDataAuthority("example.com", ""); err != nil {
		t.Fatal(err)
	}
	pp, err := NewPathPattern(PatternPrefix, "/api/")
	if err != nil {
		t.Fatal(err)
	}
	pathed.AddDataPath(pp)

	typed := &Filter{}
	if err := typed.AddDataType("image/*"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		filter       *Filter
		data         string
		resolvedType string
		want         bool
	}{
		{"scheme match", scheme, "https://anything", "", true},
		{"scheme mismatch", scheme, "http://anything", "", false},
		{"scheme but no data", scheme, "", "", false},
		{"wildcard authority subdomain", authority, "https://api.example.com/x", "", true},
		{"wildcard authority exact", authority, "https://example.com/x", "", true},
		{"wildcard authority other host", authority, "https://example.org/x", "", false},
		{"path prefix match", pathed, "https://example.com/api/v1", "", true},
		{"path prefix mismatch", pathed, "https://example.com/web", "", false},
		{"type wildcard match", typed, "content://media/1", "image/png", true},
		{"type wildcard mismatch", typed, "content://media/1", "video/mp4", false},
		{"typed filter rejects raw scheme", typed, "https://x", "image/png", false},
		{"typed filter no data", typed, "", "image/png", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := New("", tt.data, "")
			if got := tt.filter.MatchIntent(in, tt.resolvedType); got != tt.want {
				t.Errorf("MatchIntent(data=%q type=%q) = %v, want %v",
					tt.data, tt.resolvedType, got, tt.want)
			}
		})
	}
}

func TestFilterEmptyDataSpecs(t *testing.T) {
	f := &Filter{}
	f.AddAction("a.b.VIEW")

	if !f.MatchIntent(New("a.b.VIEW", "", ""), "") {
		t.Error("filter without data specs should admit an intent without data or type")
	}
	if f.MatchIntent(New("a.b.VIEW", "https://x", ""), "") {
		t.Error("filter without data specs should reject an intent with data")
	}
	if f.MatchIntent(New("a.b.VIEW", "", ""), "text/plain") {
		t.Error("filter without data specs should reject an intent with a type")
	}
}

func TestFilterSchemeSpecificPart(t *testing.T) {
	f := &Filter{}
	f.AddDataScheme("mailto")
	p, err := NewPathPattern(PatternGlob, "*@example.com")
	if err != nil {
		t.Fatal(err)
	}
	f.AddDataSchemeSpecificPart(p)

	if !f.MatchIntent(New("", "mailto:bob@example.com", ""), "") {
		t.Error("ssp glob should match")
	}
	if f.MatchIntent(New("", "mailto:bob@example.org", ""), "") {
		t.Error("ssp glob should not match a different domain")
	}
}

func TestFilterAuthorityPort(t *testing.T) {
	f := &Filter{}
	f.AddDataScheme("https")
	if err := f.AddDataAuthority("example.com", "8443"); err != nil {
		t.Fatal(err)
	}

	if !f.MatchIntent(New("", "https://example.com:8443/", ""), "") {
		t.Error("matching port should match")
	}
	if f.MatchIntent(New("", "https://example.com:9000/", ""), "") {
		t.Error("different port should not match")
	}
	if f.MatchIntent(New("", "https://example.com/", ""), "") {
		t.Error("missing port should not match a port-qualified authority")
	}
}

func TestPathPatternTypes(t *testing.T) {
	tests := []struct {
		name    string
		typ     PatternType
		pattern string
		subject string
		want    bool
	}{
		{"literal hit", PatternLiteral, "/a", "/a", true},
		{"literal miss", PatternLiteral, "/a", "/a/b", false},
		{"prefix hit", PatternPrefix, "/a", "/a/b", true},
		{"prefix miss", PatternPrefix, "/a", "/b", false},
		{"glob hit", PatternGlob, "/a/*/c", "/a/b/c", true},
		{"glob miss", PatternGlob, "/a/*/c", "/a/c", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPathPattern(tt.typ, tt.pattern)
			if err != nil {
				t.Fatal(err)
			}
			if got := p.Match(tt.subject); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.subject, got, tt.want)
			}
		})
	}
}

func TestNewPathPatternInvalidGlob(t *testing.T) {
	if _, err := NewPathPattern(PatternGlob, "[unclosed"); err == nil {
		t.Error("invalid glob should fail to compile")
	}
}
