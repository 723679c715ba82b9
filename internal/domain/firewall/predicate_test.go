package firewall

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/intent-gate/intentgate/internal/domain/intent"
)

// mockProviders implements the provider interfaces for tests with
// injectable state and failure modes.
type mockProviders struct {
	packagesByUID map[int][]string
	platformUIDs  map[int]bool
	permissions   map[int][]string
	provisioned   bool

	packagesErr    error
	signaturesErr  error
	permissionsErr error
	provisionedErr error
}

func (m *mockProviders) PackagesForUID(uid int) ([]string, error) {
	if m.packagesErr != nil {
		return nil, m.packagesErr
	}
	return m.packagesByUID[uid], nil
}

func (m *mockProviders) SignaturesMatch(uid1, uid2 int) (bool, error) {
	if m.signaturesErr != nil {
		return false, m.signaturesErr
	}
	if uid2 == PlatformUID {
		return m.platformUIDs[uid1], nil
	}
	return m.platformUIDs[uid1] && m.platformUIDs[uid2], nil
}

func (m *mockProviders) CheckComponentPermission(permission string, _, uid, _ int, _ bool) (bool, error) {
	if m.permissionsErr != nil {
		return false, m.permissionsErr
	}
	for _, p := range m.permissions[uid] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProviders) DeviceProvisioned() (bool, error) {
	if m.provisionedErr != nil {
		return false, m.provisionedErr
	}
	return m.provisioned, nil
}

func testEnv(m *mockProviders) *Env {
	return &Env{
		Packages:    m,
		Permissions: m,
		Settings:    m,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func dispatchWith(in *intent.Intent, component *intent.ComponentName) *Dispatch {
	return &Dispatch{
		Kind:              intent.KindActivity,
		ResolvedComponent: component,
		Intent:            in,
		CallerUID:         10001,
		CallerPID:         1234,
		ReceivingUID:      10002,
	}
}

func TestStringMatcherModes(t *testing.T) {
	tests := []struct {
		name    string
		mode    MatchMode
		literal string
		value   string
		want    bool
	}{
		{"equals hit", ModeEquals, "abc", "abc", true},
		{"equals miss", ModeEquals, "abc", "abcd", false},
		{"starts-with hit", ModeStartsWith, "ab", "abc", true},
		{"starts-with miss", ModeStartsWith, "bc", "abc", false},
		{"contains hit", ModeContains, "b", "abc", true},
		{"contains miss", ModeContains, "x", "abc", false},
		{"pattern hit", ModePattern, "com.*.debug", "com.x.debug", true},
		{"pattern miss", ModePattern, "com.*.debug", "org.x.debug", false},
		{"regex hit", ModeRegex, `^a+b$`, "aaab", true},
		{"regex miss", ModeRegex, `^a+b$`, "ba", false},

		// An empty subject matches only equals/contains of "".
		{"empty subject equals empty", ModeEquals, "", "", true},
		{"empty subject equals nonempty", ModeEquals, "x", "", false},
		{"empty subject contains empty", ModeContains, "", "", true},
		{"empty subject starts-with empty", ModeStartsWith, "", "", false},
		{"empty subject pattern star", ModePattern, "*", "", false},
		{"empty subject regex any", ModeRegex, `.*`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewStringMatcher(tt.mode, tt.literal)
			if err != nil {
				t.Fatal(err)
			}
			if got := m.Match(tt.value); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestNewStringMatcherCompileErrors(t *testing.T) {
	if _, err := NewStringMatcher(ModePattern, "[bad"); err == nil {
		t.Error("invalid glob should fail at construction")
	}
	if _, err := NewStringMatcher(ModeRegex, "("); err == nil {
		t.Error("invalid regex should fail at construction")
	}
}

func TestCombinators(t *testing.T) {
	env := testEnv(&mockProviders{})
	d := dispatchWith(intent.New("a.b.C", "", ""), nil)

	yes := &CategoryPredicate{Category: "cat.X"}
	d.Intent.Categories = []string{"cat.X"}
	no := &CategoryPredicate{Category: "cat.Y"}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"empty and", &And{}, true},
		{"and all true", &And{Children: []Predicate{yes, yes}}, true},
		{"and one false", &And{Children: []Predicate{yes, no}}, false},
		{"empty or", &Or{}, false},
		{"or one true", &Or{Children: []Predicate{no, yes}}, true},
		{"or all false", &Or{Children: []Predicate{no, no}}, false},
		{"not true", &Not{Child: yes}, false},
		{"not false", &Not{Child: no}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred.Matches(env, d); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStringPredicateAttributes(t *testing.T) {
	component := intent.NewComponentName("com.x", ".Z")
	in := intent.New("a.b.VIEW", "https://example.com:8080/p/q", "")
	d := dispatchWith(in, component)
	d.ResolvedType = "TEXT/Plain"
	env := testEnv(&mockProviders{})

	tests := []struct {
		name  string
		attr  StringAttr
		mode  MatchMode
		value string
		want  bool
	}{
		{"action equals", AttrAction, ModeEquals, "a.b.VIEW", true},
		{"component equals", AttrComponent, ModeEquals, "com.x/com.x.Z", true},
		{"component-name equals", AttrComponentName, ModeEquals, "com.x.Z", true},
		{"component-package equals", AttrComponentPackage, ModeEquals, "com.x", true},
		{"data starts-with", AttrData, ModeStartsWith, "https://example.com", true},
		{"host equals", AttrHost, ModeEquals, "example.com", true},
		{"mime-type lowercased", AttrMimeType, ModeEquals, "text/plain", true},
		{"scheme equals", AttrScheme, ModeEquals, "https", true},
		{"path equals", AttrPath, ModeEquals, "/p/q", true},
		{"ssp contains", AttrSSP, ModeContains, "example.com:8080", true},
		{"action mismatch", AttrAction, ModeEquals, "a.b.EDIT", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewStringMatcher(tt.mode, tt.value)
			if err != nil {
				t.Fatal(err)
			}
			p := &StringPredicate{Attr: tt.attr, Matcher: m}
			if got := p.Matches(env, d); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStringPredicatePackagePath(t *testing.T) {
	env := testEnv(&mockProviders{})
	q := &PackageQuery{TargetPackage: "com.x", CallerUID: 10001, TargetUID: 10002}

	eq, err := NewStringMatcher(ModeEquals, "com.x")
	if err != nil {
		t.Fatal(err)
	}

	pkg := &StringPredicate{Attr: AttrComponentPackage, Matcher: eq}
	if !pkg.MatchesPackage(env, q) {
		t.Error("component-package should evaluate the target package on the package path")
	}

	action := &StringPredicate{Attr: AttrAction, Matcher: eq}
	if action.MatchesPackage(env, q) {
		t.Error("action has no subject on the package path")
	}
}

func TestSenderClassification(t *testing.T) {
	m := &mockProviders{platformUIDs: map[int]bool{10050: true}}
	env := testEnv(m)

	tests := []struct {
		name  string
		class CallerClass
		uid   int
		want  bool
	}{
		{"root is system", ClassSystem, RootUID, true},
		{"below first app uid is system", ClassSystem, 5000, true},
		{"app uid is not system", ClassSystem, 10001, false},
		{"platform-signed is signature", ClassSignature, 10050, true},
		{"unsigned is not signature", ClassSignature, 10001, false},
		{"plain app is user", ClassUser, 10001, true},
		{"platform-signed is not user", ClassUser, 10050, false},
		{"system uid is not user", ClassUser, 5000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &SenderPredicate{Class: tt.class}
			d := dispatchWith(intent.New("", "", ""), nil)
			d.CallerUID = tt.uid
			if got := p.Matches(env, d); got != tt.want {
				t.Errorf("Matches(uid=%d, class=%v) = %v, want %v", tt.uid, tt.class, got, tt.want)
			}
		})
	}
}

func TestTargetClassificationUsesReceivingUID(t *testing.T) {
	m := &mockProviders{platformUIDs: map[int]bool{10060: true}}
	env := testEnv(m)

	d := dispatchWith(intent.New("", "", ""), nil)
	d.ReceivingUID = 10060

	p := &TargetPredicate{Class: ClassSignature}
	if !p.Matches(env, d) {
		t.Error("target classification should use the receiving uid")
	}

	q := &PackageQuery{TargetUID: 10060}
	if !p.MatchesPackage(env, q) {
		t.Error("target classification should use the target uid on the package path")
	}
}

func TestSenderPackagePredicate(t *testing.T) {
	m := &mockProviders{packagesByUID: map[int][]string{
		10001: {"com.a", "com.shared"},
	}}
	env := testEnv(m)

	d := dispatchWith(intent.New("", "", ""), nil)

	if !(&SenderPackagePredicate{PackageName: "com.shared"}).Matches(env, d) {
		t.Error("any package behind the caller uid should match")
	}
	if (&SenderPackagePredicate{PackageName: "com.b"}).Matches(env, d) {
		t.Error("package not behind the caller uid should not match")
	}
}

func TestPermissionPredicates(t *testing.T) {
	m := &mockProviders{permissions: map[int][]string{
		10001: {"perm.SEND"},
		10002: {"perm.RECEIVE"},
	}}
	env := testEnv(m)
	d := dispatchWith(intent.New("", "", ""), nil)

	if !(&SenderPermissionPredicate{Permission: "perm.SEND"}).Matches(env, d) {
		t.Error("caller holds perm.SEND")
	}
	if (&SenderPermissionPredicate{Permission: "perm.OTHER"}).Matches(env, d) {
		t.Error("caller does not hold perm.OTHER")
	}
	if !(&TargetPermissionPredicate{Permission: "perm.RECEIVE"}).Matches(env, d) {
		t.Error("target holds perm.RECEIVE")
	}
	if (&TargetPermissionPredicate{Permission: "perm.SEND"}).Matches(env, d) {
		t.Error("target does not hold perm.SEND")
	}
}

func TestProviderFailuresEvaluateFalse(t *testing.T) {
	boom := errors.New("provider down")
	m := &mockProviders{
		packagesErr:    boom,
		signaturesErr:  boom,
		permissionsErr: boom,
		provisionedErr: boom,
	}
	env := testEnv(m)
	d := dispatchWith(intent.New("", "", ""), nil)

	preds := []Predicate{
		&SenderPredicate{Class: ClassSignature},
		&SenderPredicate{Class: ClassUser},
		&SenderPackagePredicate{PackageName: "com.a"},
		&SenderPermissionPredicate{Permission: "perm.X"},
		&TargetPermissionPredicate{Permission: "perm.X"},
		&ProvisionedPredicate{Want: true},
	}
	for _, p := range preds {
		if p.Matches(env, d) {
			t.Errorf("%T should evaluate to false when its provider fails", p)
		}
	}
}

func TestNilProvidersEvaluateFalse(t *testing.T) {
	env := &Env{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	d := dispatchWith(intent.New("", "", ""), nil)

	preds := []Predicate{
		&SenderPredicate{Class: ClassSignature},
		&SenderPackagePredicate{PackageName: "com.a"},
		&SenderPermissionPredicate{Permission: "perm.X"},
		&ProvisionedPredicate{Want: true},
	}
	for _, p := range preds {
		if p.Matches(env, d) {
			t.Errorf("%T should evaluate to false without a provider", p)
		}
	}
}

func TestPortPredicate(t *testing.T) {
	env := testEnv(&mockProviders{})

	tests := []struct {
		name string
		data string
		low  int
		high int
		want bool
	}{
		{"exact port", "https://h:8080/", 8080, 8080, true},
		{"in range", "https://h:8080/", 8000, 9000, true},
		{"below range", "https://h:7000/", 8000, 9000, false},
		{"no port", "https://h/", 0, 65535, false},
		{"no data", "", 0, 65535, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &PortPredicate{Low: tt.low, High: tt.high}
			d := dispatchWith(intent.New("", tt.data, ""), nil)
			if got := p.Matches(env, d); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComponentPredicate(t *testing.T) {
	env := testEnv(&mockProviders{})
	want := intent.NewComponentName("com.x", ".Z")

	p := &ComponentPredicate{Component: intent.NewComponentName("com.x", ".Z")}
	if !p.Matches(env, dispatchWith(nil, want)) {
		t.Error("identical component should match")
	}
	if p.Matches(env, dispatchWith(nil, intent.NewComponentName("com.x", ".Other"))) {
		t.Error("different class should not match")
	}
	if p.Matches(env, dispatchWith(nil, nil)) {
		t.Error("nil resolved component should not match")
	}
}

func TestProvisionedPredicate(t *testing.T) {
	env := testEnv(&mockProviders{provisioned: true})
	d := dispatchWith(nil, nil)

	if !(&ProvisionedPredicate{Want: true}).Matches(env, d) {
		t.Error("provisioned device should match want=true")
	}
	if (&ProvisionedPredicate{Want: false}).Matches(env, d) {
		t.Error("provisioned device should not match want=false")
	}
}
