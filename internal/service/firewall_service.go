package service

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intent-gate/intentgate/internal/domain/audit"
	"github.com/intent-gate/intentgate/internal/domain/firewall"
	"github.com/intent-gate/intentgate/internal/domain/intent"
)

// Firewall is the dispatch façade: the five enforcement entry points, the
// query variants, and the owning handle of the live rule store.
//
// Enforcement entries run on arbitrary caller threads while the host
// dispatcher's coarse lock is held; they do no blocking I/O and take no
// further locks. Query entries drop the caller's identity before touching
// the providers and restore it on every exit path.
//
// The live store is an immutable snapshot behind an atomic pointer.
// Publish installs a replacement under the dispatcher lock; dispatches in
// flight keep the snapshot they started with.
type Firewall struct {
	env          *firewall.Env
	identity     firewall.IdentityScope
	dispatchLock sync.Locker
	store        atomic.Pointer[firewall.Store]
	audit        *AuditService
	metrics      *Metrics
	logger       *slog.Logger
}

// NewFirewall creates a Firewall with an empty store installed.
// dispatchLock is the host dispatcher's coarse lock; auditSvc may be nil
// when no audit sink is configured.
func NewFirewall(env *firewall.Env, identity firewall.IdentityScope, dispatchLock sync.Locker,
	auditSvc *AuditService, metrics *Metrics, logger *slog.Logger) *Firewall {
	f := &Firewall{
		env:          env,
		identity:     identity,
		dispatchLock: dispatchLock,
		audit:        auditSvc,
		metrics:      metrics,
		logger:       logger,
	}
	f.store.Store(firewall.NewStore())
	return f
}

// Publish installs a freshly built store. The swap happens under the
// dispatcher lock and is the reload path's only critical section.
func (f *Firewall) Publish(store *firewall.Store) {
	f.dispatchLock.Lock()
	f.store.Store(store)
	f.dispatchLock.Unlock()
}

// snapshot returns the store for the duration of one dispatch.
func (f *Firewall) snapshot() *firewall.Store {
	return f.store.Load()
}

// CheckStartActivity checks a start-activity dispatch. The dispatcher is
// assumed to hold its lock. Returns true to allow.
func (f *Firewall) CheckStartActivity(in *intent.Intent, callerUID, callerPID int,
	resolvedType string, resolvedUID, userID int) bool {
	var component *intent.ComponentName
	if in != nil {
		component = in.Component
	}
	return f.checkIntent(intent.KindActivity, component, in, callerUID, callerPID,
		resolvedType, resolvedUID, false, userID)
}

// CheckService checks a service bind/start dispatch.
func (f *Firewall) CheckService(resolved *intent.ComponentName, in *intent.Intent,
	callerUID, callerPID int, resolvedType string, resolvedUID, userID int) bool {
	return f.checkIntent(intent.KindService, resolved, in, callerUID, callerPID,
		resolvedType, resolvedUID, false, userID)
}

// CheckBroadcast checks a broadcast delivery.
func (f *Firewall) CheckBroadcast(in *intent.Intent, callerUID, callerPID int,
	resolvedType string, receivingUID, userID int) bool {
	var component *intent.ComponentName
	if in != nil {
		component = in.Component
	}
	return f.checkIntent(intent.KindBroadcast, component, in, callerUID, callerPID,
		resolvedType, receivingUID, false, userID)
}

// CheckProvider checks a content provider resolution.
func (f *Firewall) CheckProvider(resolved *intent.ComponentName, in *intent.Intent,
	callerUID, callerPID int, resolvedType string, resolvedUID, userID int) bool {
	return f.checkIntent(intent.KindProvider, resolved, in, callerUID, callerPID,
		resolvedType, resolvedUID, false, userID)
}

// CheckQueryActivity checks whether an activity is visible to a querying
// caller. Caller identity is dropped for the duration of the check.
func (f *Firewall) CheckQueryActivity(resolved *intent.ComponentName, in *intent.Intent,
	callerUID, callerPID int, resolvedType string, resolvedUID, userID int) bool {
	token := f.identity.ClearCallingIdentity()
	defer f.identity.RestoreCallingIdentity(token)
	return f.checkIntent(intent.KindActivity, resolved, in, callerUID, callerPID,
		resolvedType, resolvedUID, true, userID)
}

// CheckQueryService checks whether a service is visible to a querying
// caller.
func (f *Firewall) CheckQueryService(resolved *intent.ComponentName, in *intent.Intent,
	callerUID, callerPID int, resolvedType string, resolvedUID, userID int) bool {
	token := f.identity.ClearCallingIdentity()
	defer f.identity.RestoreCallingIdentity(token)
	return f.checkIntent(intent.KindService, resolved, in, callerUID, callerPID,
		resolvedType, resolvedUID, true, userID)
}

// CheckQueryReceiver checks whether a broadcast receiver is visible to a
// querying caller.
func (f *Firewall) CheckQueryReceiver(resolved *intent.ComponentName, in *intent.Intent,
	callerUID, callerPID int, resolvedType string, receivingUID, userID int) bool {
	token := f.identity.ClearCallingIdentity()
	defer f.identity.RestoreCallingIdentity(token)
	return f.checkIntent(intent.KindBroadcast, resolved, in, callerUID, callerPID,
		resolvedType, receivingUID, true, userID)
}

// CheckQueryProvider checks whether a content provider is visible to a
// querying caller.
func (f *Firewall) CheckQueryProvider(resolved *intent.ComponentName, in *intent.Intent,
	callerUID, callerPID int, resolvedType string, resolvedUID, userID int) bool {
	token := f.identity.ClearCallingIdentity()
	defer f.identity.RestoreCallingIdentity(token)
	return f.checkIntent(intent.KindProvider, resolved, in, callerUID, callerPID,
		resolvedType, resolvedUID, true, userID)
}

// CheckQueryPackage checks whether a package's metadata is visible to a
// querying caller. Package rules are a flat list; no intent semantics
// apply.
func (f *Firewall) CheckQueryPackage(targetUID int, targetPackage string, callerUID, userID int) bool {
	token := f.identity.ClearCallingIdentity()
	defer f.identity.RestoreCallingIdentity(token)

	q := &firewall.PackageQuery{
		TargetPackage: targetPackage,
		CallerUID:     callerUID,
		TargetUID:     targetUID,
		UserID:        userID,
	}

	block := false
	logHit := false
	for _, rule := range f.snapshot().PackageRules() {
		if rule.MatchesPackage(f.env, q) {
			block = block || rule.BlockQuery()
			logHit = logHit || rule.LogQuery()
			// Once we should both block and log there is no need to
			// keep trying rules.
			if block && logHit {
				break
			}
		}
	}

	if logHit {
		f.logPackageQuery(targetUID, targetPackage, callerUID, userID)
	}
	f.countCheck(intent.KindPackage, block)
	return !block
}

// checkIntent is the shared two-phase check. Phase 1 builds the candidate
// set from the snapshot's indices; phase 2 evaluates full predicates in
// insertion order, accumulating the path's block and log effects with an
// early exit once both are set.
func (f *Firewall) checkIntent(kind intent.Kind, resolved *intent.ComponentName, in *intent.Intent,
	callerUID, callerPID int, resolvedType string, receivingUID int, forQuery bool, userID int) bool {
	resolver := f.snapshot().Resolver(kind)
	candidates := resolver.QueryCandidates(in, resolvedType, resolved)

	d := &firewall.Dispatch{
		Kind:              kind,
		ResolvedComponent: resolved,
		Intent:            in,
		CallerUID:         callerUID,
		CallerPID:         callerPID,
		ResolvedType:      resolvedType,
		ReceivingUID:      receivingUID,
		UserID:            userID,
	}

	block := false
	logHit := false
	for _, rule := range candidates {
		if rule.Matches(f.env, d) {
			if forQuery {
				block = block || rule.BlockQuery()
				logHit = logHit || rule.LogQuery()
			} else {
				block = block || rule.Block()
				logHit = logHit || rule.Log()
			}
			if block && logHit {
				break
			}
		}
	}

	if logHit {
		f.logIntent(kind, in, resolved, callerUID, resolvedType)
	}
	f.countCheck(kind, block)
	return !block
}

func (f *Firewall) countCheck(kind intent.Kind, block bool) {
	if f.metrics == nil {
		return
	}
	decision := "allow"
	if block {
		decision = "deny"
	}
	f.metrics.ChecksTotal.WithLabelValues(kind.String(), decision).Inc()
}

// logIntent emits the audit record for a logged dispatch. The component
// logged is the one the caller named in the intent, falling back to the
// resolved one.
func (f *Firewall) logIntent(kind intent.Kind, in *intent.Intent, resolved *intent.ComponentName,
	callerUID int, resolvedType string) {
	cn := resolved
	if in != nil && in.Component != nil {
		cn = in.Component
	}

	rec := audit.Record{
		Timestamp:    time.Now(),
		Kind:         kind.String(),
		CallerUID:    callerUID,
		ResolvedType: resolvedType,
	}
	if cn != nil {
		rec.ShortComponent = cn.FlattenToShortString()
	}
	if in != nil {
		rec.Action = in.Action
		rec.DataString = in.Data
		rec.IntentFlags = in.Flags
	}

	if f.env.Packages != nil {
		packages, err := f.env.Packages.PackagesForUID(callerUID)
		if err != nil {
			f.logger.Error("failed to retrieve caller packages", "error", err)
		} else {
			rec.CallerPackageCount = len(packages)
			rec.CallerPackages = audit.JoinPackages(packages)
		}
	}

	f.emit(rec)
}

// logPackageQuery emits the audit record for a logged package query.
func (f *Firewall) logPackageQuery(targetUID int, targetPackage string, callerUID, userID int) {
	f.logger.Debug("package query log action triggered",
		"target_uid", targetUID,
		"package", targetPackage,
		"caller_uid", callerUID,
		"user_id", userID,
	)

	rec := audit.Record{
		Timestamp: time.Now(),
		Kind:      intent.KindPackage.String(),
		CallerUID: callerUID,
	}
	if f.env.Packages != nil {
		packages, err := f.env.Packages.PackagesForUID(callerUID)
		if err != nil {
			f.logger.Error("failed to retrieve caller packages", "error", err)
		} else {
			rec.CallerPackageCount = len(packages)
			rec.CallerPackages = audit.JoinPackages(packages)
		}
	}
	f.emit(rec)
}

func (f *Firewall) emit(rec audit.Record) {
	if f.audit != nil {
		f.audit.Record(rec)
	}
}
