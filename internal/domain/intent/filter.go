package intent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// PatternType selects how a PathPattern compares against a subject.
type PatternType int

const (
	// PatternLiteral requires an exact match.
	PatternLiteral PatternType = iota
	// PatternPrefix matches any subject starting with the pattern.
	PatternPrefix
	// PatternGlob matches with glob syntax (gobwas/glob grammar) with '/'
	// as separator: '*' does not match across '/', '**' does.
	PatternGlob
)

// PathPattern matches URI paths and scheme-specific parts. Glob patterns
// are compiled once at construction.
type PathPattern struct {
	typ      PatternType
	raw      string
	compiled glob.Glob
}

// NewPathPattern builds a PathPattern, compiling glob patterns eagerly so
// invalid patterns surface as parse errors rather than silent non-matches.
func NewPathPattern(typ PatternType, pattern string) (PathPattern, error) {
	p := PathPattern{typ: typ, raw: pattern}
	if typ == PatternGlob {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return PathPattern{}, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
		}
		p.compiled = g
	}
	return p, nil
}

// Match reports whether the subject matches the pattern.
func (p PathPattern) Match(s string) bool {
	switch p.typ {
	case PatternLiteral:
		return s == p.raw
	case PatternPrefix:
		return strings.HasPrefix(s, p.raw)
	case PatternGlob:
		return p.compiled.Match(s)
	default:
		return false
	}
}

// AuthorityEntry is one host[:port] a filter accepts. A host of "*.x.y"
// suffix-matches subdomains. Port -1 accepts any port.
type AuthorityEntry struct {
	host string
	wild bool
	port int
}

// NewAuthorityEntry parses a host and optional port attribute.
func NewAuthorityEntry(host, port string) (AuthorityEntry, error) {
	e := AuthorityEntry{host: strings.ToLower(host), port: -1}
	if strings.HasPrefix(e.host, "*.") {
		e.wild = true
		e.host = e.host[2:]
	}
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p < 0 || p > 65535 {
			return AuthorityEntry{}, fmt.Errorf("invalid authority port %q", port)
		}
		e.port = p
	}
	return e, nil
}

func (e AuthorityEntry) matches(u *URI) bool {
	if u == nil || u.Host == "" {
		return false
	}
	if e.wild {
		if u.Host != e.host && !strings.HasSuffix(u.Host, "."+e.host) {
			return false
		}
	} else if u.Host != e.host {
		return false
	}
	if e.port >= 0 && e.port != u.Port {
		return false
	}
	return true
}

// Filter is the platform intent-filter pattern: a conjunction of an action
// set, a category set, and data constraints (scheme, authority, path, SSP,
// MIME type). The zero value admits only intents with no action, no
// categories, no data, and no type.
type Filter struct {
	actions    []string
	categories []string

	schemes     []string
	authorities []AuthorityEntry
	paths       []PathPattern
	ssps        []PathPattern
	types       []string
}

// AddAction adds an accepted action.
func (f *Filter) AddAction(action string) {
	f.actions = append(f.actions, action)
}

// AddCategory adds a provided category.
func (f *Filter) AddCategory(category string) {
	f.categories = append(f.categories, category)
}

// AddDataScheme adds an accepted URI scheme (normalized to lower case).
func (f *Filter) AddDataScheme(scheme string) {
	f.schemes = append(f.schemes, strings.ToLower(scheme))
}

// AddDataAuthority adds an accepted host with an optional port.
func (f *Filter) AddDataAuthority(host, port string) error {
	e, err := NewAuthorityEntry(host, port)
	if err != nil {
		return err
	}
	f.authorities = append(f.authorities, e)
	return nil
}

// AddDataPath adds an accepted URI path pattern.
func (f *Filter) AddDataPath(p PathPattern) {
	f.paths = append(f.paths, p)
}

// AddDataSchemeSpecificPart adds an accepted scheme-specific-part pattern.
func (f *Filter) AddDataSchemeSpecificPart(p PathPattern) {
	f.ssps = append(f.ssps, p)
}

// AddDataType adds an accepted MIME type. Types are lowercased; "base/*"
// accepts any subtype and "*/*" (or "*") accepts any type.
func (f *Filter) AddDataType(t string) error {
	t = strings.ToLower(t)
	if t == "" || (t != "*" && !strings.Contains(t, "/")) {
		return fmt.Errorf("invalid mime type %q", t)
	}
	f.types = append(f.types, t)
	return nil
}

// Actions returns the filter's accepted actions. The resolver index buckets
// filters by these.
func (f *Filter) Actions() []string {
	return f.actions
}

// MatchIntent reports whether the filter admits the intent. The test order
// is the platform's: action, categories, then the data matrix.
// resolvedType, when non-empty, stands in for the intent's own type.
func (f *Filter) MatchIntent(in *Intent, resolvedType string) bool {
	if in == nil {
		return false
	}
	if in.Action != "" && !containsString(f.actions, in.Action) {
		return false
	}
	for _, c := range in.Categories {
		if !containsString(f.categories, c) {
			return false
		}
	}
	mimeType := resolvedType
	if mimeType == "" {
		mimeType = in.Type
	}
	return f.matchData(mimeType, in.URI)
}

// matchData implements the platform's scheme/authority/path/type matrix.
func (f *Filter) matchData(mimeType string, u *URI) bool {
	if len(f.types) == 0 && len(f.schemes) == 0 {
		// A filter with no data constraints admits only intents that
		// carry neither data nor type.
		return mimeType == "" && u == nil
	}

	scheme := ""
	if u != nil {
		scheme = u.Scheme
	}

	if len(f.schemes) > 0 {
		if !containsString(f.schemes, scheme) {
			return false
		}
		sspMatched := false
		if len(f.ssps) > 0 && u != nil {
			if !f.matchSSP(u.SchemeSpecificPart) {
				return false
			}
			sspMatched = true
		}
		if !sspMatched && len(f.authorities) > 0 {
			if !f.matchAuthority(u) {
				return false
			}
			if len(f.paths) > 0 && !f.matchPath(u.Path) {
				return false
			}
		}
	} else {
		// No schemes: by convention a typed filter still accepts bare
		// content:/file: URIs and intents with no data at all.
		if scheme != "" && scheme != "content" && scheme != "file" {
			return false
		}
	}

	if len(f.types) > 0 {
		return f.findMimeType(mimeType)
	}
	return mimeType == ""
}

func (f *Filter) matchAuthority(u *URI) bool {
	for _, a := range f.authorities {
		if a.matches(u) {
			return true
		}
	}
	return false
}

func (f *Filter) matchPath(path string) bool {
	for _, p := range f.paths {
		if p.Match(path) {
			return true
		}
	}
	return false
}

func (f *Filter) matchSSP(ssp string) bool {
	for _, p := range f.ssps {
		if p.Match(ssp) {
			return true
		}
	}
	return false
}

func (f *Filter) findMimeType(t string) bool {
	if t == "" {
		return false
	}
	t = strings.ToLower(t)
	base, _, hasSub := strings.Cut(t, "/")
	for _, ft := range f.types {
		if ft == "*" || ft == "*/*" || ft == t {
			return true
		}
		if hasSub && ft == base+"/*" {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
