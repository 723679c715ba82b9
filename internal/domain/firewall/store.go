package firewall

import (
	"github.com/intent-gate/intentgate/internal/domain/intent"
)

// Store is one immutable snapshot of the loaded rule set: a resolver per
// intent-dispatch kind plus the flat package-rule list (package queries
// carry no intent, so no index applies). Stores are built off the dispatch
// path and published whole; they are never mutated after installation.
type Store struct {
	resolvers    [len(intent.ResolverKinds)]*Resolver
	packageRules []*Rule
}

// NewStore returns an empty store with one resolver per resolver kind.
func NewStore() *Store {
	s := &Store{}
	for i := range s.resolvers {
		s.resolvers[i] = NewResolver()
	}
	return s
}

// Resolver returns the index for an intent-dispatch kind. KindPackage has
// no resolver; callers use PackageRules instead.
func (s *Store) Resolver(k intent.Kind) *Resolver {
	if int(k) >= len(s.resolvers) {
		return nil
	}
	return s.resolvers[k]
}

// PackageRules returns the rules consulted on package metadata queries.
func (s *Store) PackageRules() []*Rule {
	return s.packageRules
}

// Install indexes a parsed rule into the store: match-all rules into the
// match-all list, otherwise each intent-filter into the filter index and
// each component-filter into the component index. Package rules go into
// the flat list.
func (s *Store) Install(rule *Rule) {
	if rule.Kind() == intent.KindPackage {
		s.packageRules = append(s.packageRules, rule)
		return
	}
	resolver := s.Resolver(rule.Kind())
	if rule.MatchesAll() {
		resolver.AddMatchAll(rule)
		return
	}
	for _, f := range rule.IntentFilters() {
		resolver.AddFilter(f, rule)
	}
	for _, c := range rule.ComponentFilters() {
		resolver.AddComponentFilter(c, rule)
	}
}

// Counts returns the per-kind index sizes for the reload summary.
func (s *Store) Counts() map[intent.Kind]int {
	counts := make(map[intent.Kind]int, len(intent.ResolverKinds)+1)
	for _, k := range intent.ResolverKinds {
		counts[k] = s.Resolver(k).Size()
	}
	counts[intent.KindPackage] = len(s.packageRules)
	return counts
}
