package firewall

import (
	"github.com/intent-gate/intentgate/internal/domain/intent"
)

// filterEntry ties one intent-filter back to its owning rule.
type filterEntry struct {
	filter *intent.Filter
	rule   *Rule
}

// Resolver is the per-dispatch-kind index used by phase 1 of matching.
// Three parallel structures: an action-bucketed intent-filter index, a
// component-name index, and the match-all list.
//
// The filter index buckets each filter under every action it accepts;
// filters accepting no action sit in a side list. An intent that names an
// action only needs its bucket plus the side list; an intent with no
// action passes every filter's action test and falls back to scanning all
// filters. The index therefore only ever prunes — it never drops a filter
// that could admit the intent.
type Resolver struct {
	byAction   map[string][]filterEntry
	noAction   []filterEntry
	allFilters []filterEntry

	byComponent map[string][]*Rule
	matchAll    []*Rule
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		byAction:    make(map[string][]filterEntry),
		byComponent: make(map[string][]*Rule),
	}
}

// AddFilter registers one of a rule's intent-filters.
func (r *Resolver) AddFilter(f *intent.Filter, rule *Rule) {
	e := filterEntry{filter: f, rule: rule}
	r.allFilters = append(r.allFilters, e)
	actions := f.Actions()
	if len(actions) == 0 {
		r.noAction = append(r.noAction, e)
		return
	}
	for _, a := range actions {
		r.byAction[a] = append(r.byAction[a], e)
	}
}

// AddComponentFilter registers one of a rule's component-filters.
func (r *Resolver) AddComponentFilter(c *intent.ComponentName, rule *Rule) {
	key := c.FlattenToString()
	r.byComponent[key] = append(r.byComponent[key], rule)
}

// AddMatchAll registers a rule that applies to every dispatch of this kind.
func (r *Resolver) AddMatchAll(rule *Rule) {
	r.matchAll = append(r.matchAll, rule)
}

// Size is the number of indexed entries, for the reload summary line.
func (r *Resolver) Size() int {
	return len(r.allFilters) + len(r.byComponent) + len(r.matchAll)
}

// QueryCandidates builds the phase-1 candidate set for a dispatch:
// rules with a filter admitting the intent, rules listing the resolved
// component, and all match-all rules, deduplicated by rule identity in
// insertion order. The only allocation is the returned list.
func (r *Resolver) QueryCandidates(in *intent.Intent, resolvedType string, resolved *intent.ComponentName) []*Rule {
	var candidates []*Rule

	if in != nil {
		entries := r.allFilters
		if in.Action != "" {
			// Pruned probe: the bucket for this action plus the
			// filters that accept no action (an intent's action must
			// be among a filter's actions when both are present).
			entries = r.byAction[in.Action]
			for _, e := range entries {
				if e.filter.MatchIntent(in, resolvedType) {
					candidates = appendRule(candidates, e.rule)
				}
			}
			entries = r.noAction
		}
		for _, e := range entries {
			if e.filter.MatchIntent(in, resolvedType) {
				candidates = appendRule(candidates, e.rule)
			}
		}
	}

	if resolved != nil {
		for _, rule := range r.byComponent[resolved.FlattenToString()] {
			candidates = appendRule(candidates, rule)
		}
	}

	for _, rule := range r.matchAll {
		candidates = appendRule(candidates, rule)
	}

	return candidates
}

// appendRule appends rule unless it is already present. Candidate lists
// are a handful of entries, so a linear scan beats allocating a set.
func appendRule(list []*Rule, rule *Rule) []*Rule {
	for _, r := range list {
		if r == rule {
			return list
		}
	}
	return append(list, rule)
}
