// Package firewall contains the rule model of the intent firewall: boolean
// predicate trees, rules, the per-kind resolver indices, the rule store
// snapshot, and the XML rule parser.
//
// String predicates accept one match mode out of equals, starts-with,
// contains, pattern, and regex. "pattern" uses gobwas/glob syntax; "regex"
// uses Go's RE2 syntax. Both are compiled at parse time.
package firewall

import "log/slog"

// Well-known UIDs of the host platform.
const (
	// RootUID is the fixed root uid.
	RootUID = 0
	// PlatformUID is the uid the platform's own packages run under.
	PlatformUID = 1000
	// FirstApplicationUID is the first uid assigned to installed
	// applications; anything below it is a system uid.
	FirstApplicationUID = 10000
)

// PackageProvider answers package and signature queries about uids.
// Interface owned by the domain; the host dispatcher injects the real
// implementation and tests inject mocks.
type PackageProvider interface {
	// PackagesForUID returns every package name backed by the uid.
	PackagesForUID(uid int) ([]string, error)
	// SignaturesMatch reports whether the two uids' packages are signed
	// by the same certificates.
	SignaturesMatch(uid1, uid2 int) (bool, error)
}

// PermissionChecker answers component permission checks.
type PermissionChecker interface {
	// CheckComponentPermission reports whether the holder described by
	// pid/uid may access a component owned by owningUID guarded by the
	// named permission.
	CheckComponentPermission(permission string, pid, uid, owningUID int, exported bool) (bool, error)
}

// SettingsReader exposes the device configuration the provisioned
// predicate reads.
type SettingsReader interface {
	DeviceProvisioned() (bool, error)
}

// IdentityScope clears and restores the calling identity around provider
// calls made on the query paths, so downstream permission checks see the
// firewall's identity rather than the calling app's.
type IdentityScope interface {
	ClearCallingIdentity() uint64
	RestoreCallingIdentity(token uint64)
}

// Env is the evaluation context handed to every predicate: back-references
// to the injected providers plus a logger for provider failures. A
// predicate that cannot evaluate (nil provider, provider error) evaluates
// to false; the error itself is logged here, once, at the predicate site.
type Env struct {
	Packages    PackageProvider
	Permissions PermissionChecker
	Settings    SettingsReader
	Logger      *slog.Logger
}

// providerErr logs a provider failure and returns the fail-open value for
// predicates: no match.
func (e *Env) providerErr(predicate string, err error) bool {
	if e.Logger != nil {
		e.Logger.Error("provider call failed during rule evaluation",
			"predicate", predicate, "error", err)
	}
	return false
}
