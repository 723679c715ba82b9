// Package intent models the host platform's dispatch payload: component
// names, data URIs, intents, and the intent-filter pattern language that
// admits them.
package intent

// Kind identifies the category of inter-component call being dispatched.
type Kind int

const (
	// KindActivity is a start-activity dispatch.
	KindActivity Kind = iota
	// KindBroadcast is a broadcast delivery.
	KindBroadcast
	// KindService is a service bind/start.
	KindService
	// KindProvider is a content provider resolution.
	KindProvider
	// KindPackage is a package metadata query (no intent semantics).
	KindPackage
)

// ResolverKinds are the kinds backed by an intent resolver index.
// KindPackage is excluded: package queries carry no intent.
var ResolverKinds = [4]Kind{KindActivity, KindBroadcast, KindService, KindProvider}

func (k Kind) String() string {
	switch k {
	case KindActivity:
		return "activity"
	case KindBroadcast:
		return "broadcast"
	case KindService:
		return "service"
	case KindProvider:
		return "provider"
	case KindPackage:
		return "package"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name (the rule file tag spelling) back to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "activity":
		return KindActivity, true
	case "broadcast":
		return KindBroadcast, true
	case "service":
		return KindService, true
	case "provider":
		return KindProvider, true
	case "package":
		return KindPackage, true
	default:
		return 0, false
	}
}

// Intent is a structured dispatch payload. Data holds the raw data string;
// URI is its parsed form (nil when Data is empty or unparseable).
type Intent struct {
	Action     string
	Categories []string
	Data       string
	URI        *URI
	Type       string
	Flags      int
	Component  *ComponentName
}

// New builds an Intent and parses its data string once, up front, so the
// dispatch path never re-parses.
func New(action, data, mimeType string) *Intent {
	in := &Intent{Action: action, Data: data, Type: mimeType}
	if data != "" {
		in.URI = ParseURI(data)
	}
	return in
}

// WithComponent sets the explicit target component and returns the intent.
func (in *Intent) WithComponent(c *ComponentName) *Intent {
	in.Component = c
	return in
}

// WithCategories appends categories and returns the intent.
func (in *Intent) WithCategories(categories ...string) *Intent {
	in.Categories = append(in.Categories, categories...)
	return in
}

// WithFlags sets the intent flags and returns the intent.
func (in *Intent) WithFlags(flags int) *Intent {
	in.Flags = flags
	return in
}

// HasCategory reports whether the intent carries the named category.
func (in *Intent) HasCategory(category string) bool {
	for _, c := range in.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Scheme returns the data URI scheme, or "" when the intent has no data.
func (in *Intent) Scheme() string {
	if in.URI == nil {
		return ""
	}
	return in.URI.Scheme
}

// Host returns the data URI host, or "" when there is none.
func (in *Intent) Host() string {
	if in.URI == nil {
		return ""
	}
	return in.URI.Host
}

// Path returns the data URI path, or "" when there is none.
func (in *Intent) Path() string {
	if in.URI == nil {
		return ""
	}
	return in.URI.Path
}

// SchemeSpecificPart returns everything after the scheme separator, or ""
// when the intent has no data.
func (in *Intent) SchemeSpecificPart() string {
	if in.URI == nil {
		return ""
	}
	return in.URI.SchemeSpecificPart
}

// Port returns the data URI port, or -1 when there is none.
func (in *Intent) Port() int {
	if in.URI == nil {
		return -1
	}
	return in.URI.Port
}
