// Package audit contains the firewall's audit record type and the sink
// interface it is written through.
package audit

import (
	"context"
	"strings"
	"time"
)

const (
	// logPackagesMaxLength caps the joined caller-packages field.
	logPackagesMaxLength = 150
	// logPackagesSufficientLength is the point past which the packer
	// stops trying to fit further package names.
	logPackagesSufficientLength = 125
)

// Record is one structured audit event, emitted on a logged denial or a
// logged query.
type Record struct {
	// EventID is assigned by the audit pipeline.
	EventID string `json:"event_id,omitempty"`
	// Timestamp is when the dispatch was checked.
	Timestamp time.Time `json:"timestamp"`
	// Kind is the dispatch kind ("activity", "broadcast", ...).
	Kind string `json:"kind"`
	// ShortComponent is the abbreviated component the caller named, or
	// the resolved one when the intent carried none.
	ShortComponent string `json:"short_component,omitempty"`
	// CallerUID is the calling uid.
	CallerUID int `json:"caller_uid"`
	// CallerPackageCount is how many packages back the calling uid.
	CallerPackageCount int `json:"caller_package_count"`
	// CallerPackages is the joined caller package names, capped.
	CallerPackages string `json:"caller_packages,omitempty"`
	// Action is the intent action, if any.
	Action string `json:"action,omitempty"`
	// ResolvedType is the resolved MIME type, if any.
	ResolvedType string `json:"resolved_type,omitempty"`
	// DataString is the intent's raw data string, if any.
	DataString string `json:"data_string,omitempty"`
	// IntentFlags are the intent's flags.
	IntentFlags int `json:"intent_flags"`
}

// Sink receives audit records. Implementations must not block the
// dispatch path; the firewall writes through an async pipeline.
type Sink interface {
	// Append stores audit records.
	Append(ctx context.Context, records ...Record) error
	// Flush forces pending records out. Called during shutdown.
	Flush(ctx context.Context) error
	// Close releases resources.
	Close() error
}

// JoinPackages joins package names with ',' such that the result is no
// longer than 150 characters.
//
// Only full package names are added. A package that does not fit is
// skipped and the next one tried, unless the string built so far already
// exceeds 125 characters, in which case packing stops with what it has.
// When not even the first packages fit, the last 149 characters of the
// first package are returned with a trailing '-' to mark the truncation
// (the tail of a package name is the more distinctive part).
func JoinPackages(packages []string) string {
	first := true
	var sb strings.Builder
	for _, pkg := range packages {
		sep := 1
		if first {
			sep = 0
		}
		if sb.Len()+len(pkg)+sep < logPackagesMaxLength {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			sb.WriteString(pkg)
		} else if sb.Len() >= logPackagesSufficientLength {
			return sb.String()
		}
	}
	if sb.Len() == 0 && len(packages) > 0 {
		pkg := packages[0]
		return pkg[len(pkg)-logPackagesMaxLength+1:] + "-"
	}
	return sb.String()
}
