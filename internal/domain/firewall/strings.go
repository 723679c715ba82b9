package firewall

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// MatchMode selects how a string predicate compares its literal against
// the subject value.
type MatchMode int

const (
	ModeEquals MatchMode = iota
	ModeStartsWith
	ModeContains
	ModePattern
	ModeRegex
)

func (m MatchMode) String() string {
	switch m {
	case ModeEquals:
		return "equals"
	case ModeStartsWith:
		return "starts-with"
	case ModeContains:
		return "contains"
	case ModePattern:
		return "pattern"
	case ModeRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// StringMatcher is the shared comparison core of all string predicates.
// Pattern and regex literals are compiled once at parse time.
type StringMatcher struct {
	mode    MatchMode
	literal string
	glob    glob.Glob
	regex   *regexp.Regexp
}

// NewStringMatcher compiles a matcher. Pattern mode uses gobwas/glob
// syntax; regex mode uses Go's RE2 syntax. A literal that does not compile
// is a parse error.
func NewStringMatcher(mode MatchMode, literal string) (*StringMatcher, error) {
	m := &StringMatcher{mode: mode, literal: literal}
	switch mode {
	case ModePattern:
		g, err := glob.Compile(literal)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", literal, err)
		}
		m.glob = g
	case ModeRegex:
		re, err := regexp.Compile(literal)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", literal, err)
		}
		m.regex = re
	}
	return m, nil
}

// Match compares the subject value. An empty subject (the attribute is
// absent from the dispatch) matches only a literal of "" under equals or
// contains; the remaining modes never match it.
func (m *StringMatcher) Match(value string) bool {
	if value == "" {
		switch m.mode {
		case ModeEquals, ModeContains:
			return m.literal == ""
		default:
			return false
		}
	}
	switch m.mode {
	case ModeEquals:
		return value == m.literal
	case ModeStartsWith:
		return strings.HasPrefix(value, m.literal)
	case ModeContains:
		return strings.Contains(value, m.literal)
	case ModePattern:
		return m.glob.Match(value)
	case ModeRegex:
		return m.regex.MatchString(value)
	default:
		return false
	}
}

// StringAttr names the dispatch attribute a string predicate inspects.
type StringAttr int

const (
	AttrAction StringAttr = iota
	AttrComponent
	AttrComponentName
	AttrComponentPackage
	AttrData
	AttrHost
	AttrMimeType
	AttrScheme
	AttrPath
	AttrSSP
)

// StringPredicate is any of the ten string-match leaves: a dispatch
// attribute paired with one StringMatcher.
type StringPredicate struct {
	Attr    StringAttr
	Matcher *StringMatcher
}

// value extracts the inspected attribute from a dispatch. Absent
// attributes extract as "".
func (p *StringPredicate) value(d *Dispatch) string {
	switch p.Attr {
	case AttrAction:
		if d.Intent == nil {
			return ""
		}
		return d.Intent.Action
	case AttrComponent:
		if d.ResolvedComponent == nil {
			return ""
		}
		return d.ResolvedComponent.FlattenToString()
	case AttrComponentName:
		if d.ResolvedComponent == nil {
			return ""
		}
		return d.ResolvedComponent.Class
	case AttrComponentPackage:
		if d.ResolvedComponent == nil {
			return ""
		}
		return d.ResolvedComponent.Package
	case AttrData:
		if d.Intent == nil {
			return ""
		}
		return d.Intent.Data
	case AttrHost:
		if d.Intent == nil {
			return ""
		}
		return d.Intent.Host()
	case AttrMimeType:
		// MIME types are compared lowercased.
		return strings.ToLower(d.ResolvedType)
	case AttrScheme:
		if d.Intent == nil {
			return ""
		}
		return d.Intent.Scheme()
	case AttrPath:
		if d.Intent == nil {
			return ""
		}
		return d.Intent.Path()
	case AttrSSP:
		if d.Intent == nil {
			return ""
		}
		return d.Intent.SchemeSpecificPart()
	default:
		return ""
	}
}

func (p *StringPredicate) Matches(_ *Env, d *Dispatch) bool {
	return p.Matcher.Match(p.value(d))
}

// MatchesPackage evaluates the one string attribute a package query has:
// the target package name. All other attributes have no subject there.
func (p *StringPredicate) MatchesPackage(_ *Env, q *PackageQuery) bool {
	if p.Attr == AttrComponentPackage {
		return p.Matcher.Match(q.TargetPackage)
	}
	return false
}
