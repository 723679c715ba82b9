package firewall

import "github.com/intent-gate/intentgate/internal/domain/intent"

// Dispatch describes one inter-component call on the enforcement or query
// path: the intent payload, the resolved target, and the caller identity.
type Dispatch struct {
	Kind              intent.Kind
	ResolvedComponent *intent.ComponentName
	Intent            *intent.Intent
	CallerUID         int
	CallerPID         int
	ResolvedType      string
	ReceivingUID      int
	UserID            int
}

// PackageQuery describes a package metadata query: which package the
// caller is asking about, and who is asking.
type PackageQuery struct {
	TargetPackage string
	CallerUID     int
	TargetUID     int
	UserID        int
}
