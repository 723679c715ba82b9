package firewall

import (
	"github.com/intent-gate/intentgate/internal/domain/intent"
)

// Predicate is one node of a rule's boolean expression tree. Every node
// answers both evaluation paths: Matches for intent dispatches and
// MatchesPackage for package metadata queries. A predicate that cannot
// evaluate returns false and leaves the decision to other rules.
type Predicate interface {
	Matches(env *Env, d *Dispatch) bool
	MatchesPackage(env *Env, q *PackageQuery) bool
}

// And matches when all children match. An empty And matches everything;
// it is the implicit root of every rule's non-filter children.
type And struct {
	Children []Predicate
}

func (a *And) Matches(env *Env, d *Dispatch) bool {
	for _, c := range a.Children {
		if !c.Matches(env, d) {
			return false
		}
	}
	return true
}

func (a *And) MatchesPackage(env *Env, q *PackageQuery) bool {
	for _, c := range a.Children {
		if !c.MatchesPackage(env, q) {
			return false
		}
	}
	return true
}

// Or matches when any child matches. An empty Or matches nothing.
type Or struct {
	Children []Predicate
}

func (o *Or) Matches(env *Env, d *Dispatch) bool {
	for _, c := range o.Children {
		if c.Matches(env, d) {
			return true
		}
	}
	return false
}

func (o *Or) MatchesPackage(env *Env, q *PackageQuery) bool {
	for _, c := range o.Children {
		if c.MatchesPackage(env, q) {
			return true
		}
	}
	return false
}

// Not inverts its single child. The parser rejects any other child count.
type Not struct {
	Child Predicate
}

func (n *Not) Matches(env *Env, d *Dispatch) bool {
	return !n.Child.Matches(env, d)
}

func (n *Not) MatchesPackage(env *Env, q *PackageQuery) bool {
	return !n.Child.MatchesPackage(env, q)
}

// CategoryPredicate matches intents carrying the named category. It never
// matches on the package path.
type CategoryPredicate struct {
	Category string
}

func (p *CategoryPredicate) Matches(_ *Env, d *Dispatch) bool {
	return d.Intent != nil && d.Intent.HasCategory(p.Category)
}

func (p *CategoryPredicate) MatchesPackage(*Env, *PackageQuery) bool {
	return false
}

// PortPredicate matches intents whose data URI carries a port within
// [Low, High]. Never matches on the package path.
type PortPredicate struct {
	Low  int
	High int
}

func (p *PortPredicate) Matches(_ *Env, d *Dispatch) bool {
	if d.Intent == nil {
		return false
	}
	port := d.Intent.Port()
	return port >= 0 && port >= p.Low && port <= p.High
}

func (p *PortPredicate) MatchesPackage(*Env, *PackageQuery) bool {
	return false
}

// CallerClass is the coarse trust classification of a uid.
type CallerClass int

const (
	// ClassSignature means the uid's packages are signed by the platform.
	ClassSignature CallerClass = iota
	// ClassSystem means the uid is below the first application uid, or root.
	ClassSystem
	// ClassUser means neither of the above.
	ClassUser
)

// classifyMatches reports whether uid falls into the wanted class.
// Signature comparisons go through the package provider; a provider
// failure makes the predicate evaluate to false.
func classifyMatches(env *Env, uid int, want CallerClass) bool {
	switch want {
	case ClassSystem:
		return uid == RootUID || uid < FirstApplicationUID
	case ClassSignature:
		if env.Packages == nil {
			return false
		}
		ok, err := env.Packages.SignaturesMatch(uid, PlatformUID)
		if err != nil {
			return env.providerErr("sender/target signature", err)
		}
		return ok
	case ClassUser:
		if uid == RootUID || uid < FirstApplicationUID {
			return false
		}
		if env.Packages == nil {
			return false
		}
		ok, err := env.Packages.SignaturesMatch(uid, PlatformUID)
		if err != nil {
			return env.providerErr("sender/target signature", err)
		}
		return !ok
	default:
		return false
	}
}

// SenderPredicate classifies the caller.
type SenderPredicate struct {
	Class CallerClass
}

func (p *SenderPredicate) Matches(env *Env, d *Dispatch) bool {
	return classifyMatches(env, d.CallerUID, p.Class)
}

func (p *SenderPredicate) MatchesPackage(env *Env, q *PackageQuery) bool {
	return classifyMatches(env, q.CallerUID, p.Class)
}

// TargetPredicate classifies the resolved target.
type TargetPredicate struct {
	Class CallerClass
}

func (p *TargetPredicate) Matches(env *Env, d *Dispatch) bool {
	return classifyMatches(env, d.ReceivingUID, p.Class)
}

func (p *TargetPredicate) MatchesPackage(env *Env, q *PackageQuery) bool {
	return classifyMatches(env, q.TargetUID, p.Class)
}

// SenderPackagePredicate matches when any package backed by the caller's
// uid equals the named package.
type SenderPackagePredicate struct {
	PackageName string
}

func (p *SenderPackagePredicate) matchUID(env *Env, uid int) bool {
	if env.Packages == nil {
		return false
	}
	packages, err := env.Packages.PackagesForUID(uid)
	if err != nil {
		return env.providerErr("sender-package", err)
	}
	for _, pkg := range packages {
		if pkg == p.PackageName {
			return true
		}
	}
	return false
}

func (p *SenderPackagePredicate) Matches(env *Env, d *Dispatch) bool {
	return p.matchUID(env, d.CallerUID)
}

func (p *SenderPackagePredicate) MatchesPackage(env *Env, q *PackageQuery) bool {
	return p.matchUID(env, q.CallerUID)
}

// TargetPackagePredicate matches the resolved target's package exactly.
type TargetPackagePredicate struct {
	PackageName string
}

func (p *TargetPackagePredicate) Matches(_ *Env, d *Dispatch) bool {
	return d.ResolvedComponent != nil && d.ResolvedComponent.Package == p.PackageName
}

func (p *TargetPackagePredicate) MatchesPackage(_ *Env, q *PackageQuery) bool {
	return q.TargetPackage == p.PackageName
}

// SenderPermissionPredicate matches when the caller holds the named
// permission.
type SenderPermissionPredicate struct {
	Permission string
}

func (p *SenderPermissionPredicate) check(env *Env, pid, uid, owningUID int) bool {
	if env.Permissions == nil {
		return false
	}
	granted, err := env.Permissions.CheckComponentPermission(p.Permission, pid, uid, owningUID, false)
	if err != nil {
		return env.providerErr("sender-permission", err)
	}
	return granted
}

func (p *SenderPermissionPredicate) Matches(env *Env, d *Dispatch) bool {
	return p.check(env, d.CallerPID, d.CallerUID, d.ReceivingUID)
}

func (p *SenderPermissionPredicate) MatchesPackage(env *Env, q *PackageQuery) bool {
	// No caller pid is available on the package path.
	return p.check(env, -1, q.CallerUID, q.TargetUID)
}

// TargetPermissionPredicate matches when the resolved target holds the
// named permission.
type TargetPermissionPredicate struct {
	Permission string
}

func (p *TargetPermissionPredicate) check(env *Env, uid, owningUID int) bool {
	if env.Permissions == nil {
		return false
	}
	granted, err := env.Permissions.CheckComponentPermission(p.Permission, -1, uid, owningUID, false)
	if err != nil {
		return env.providerErr("target-permission", err)
	}
	return granted
}

func (p *TargetPermissionPredicate) Matches(env *Env, d *Dispatch) bool {
	return p.check(env, d.ReceivingUID, d.CallerUID)
}

func (p *TargetPermissionPredicate) MatchesPackage(env *Env, q *PackageQuery) bool {
	return p.check(env, q.TargetUID, q.CallerUID)
}

// FilterPredicate delegates to the platform's intent-filter semantics.
// Never matches on the package path.
type FilterPredicate struct {
	Filter *intent.Filter
}

func (p *FilterPredicate) Matches(_ *Env, d *Dispatch) bool {
	return d.Intent != nil && p.Filter.MatchIntent(d.Intent, d.ResolvedType)
}

func (p *FilterPredicate) MatchesPackage(*Env, *PackageQuery) bool {
	return false
}

// ComponentPredicate matches the resolved component's fully-qualified name
// exactly. Never matches on the package path.
type ComponentPredicate struct {
	Component *intent.ComponentName
}

func (p *ComponentPredicate) Matches(_ *Env, d *Dispatch) bool {
	return d.ResolvedComponent != nil && *d.ResolvedComponent == *p.Component
}

func (p *ComponentPredicate) MatchesPackage(*Env, *PackageQuery) bool {
	return false
}

// ProvisionedPredicate matches the device-provisioned state against the
// wanted value, on both paths.
type ProvisionedPredicate struct {
	Want bool
}

func (p *ProvisionedPredicate) matchSettings(env *Env) bool {
	if env.Settings == nil {
		return false
	}
	provisioned, err := env.Settings.DeviceProvisioned()
	if err != nil {
		return env.providerErr("provisioned", err)
	}
	return provisioned == p.Want
}

func (p *ProvisionedPredicate) Matches(env *Env, _ *Dispatch) bool {
	return p.matchSettings(env)
}

func (p *ProvisionedPredicate) MatchesPackage(env *Env, _ *PackageQuery) bool {
	return p.matchSettings(env)
}
