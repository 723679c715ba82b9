package intent

import (
	"net/url"
	"strings"
)

// URI is the parsed form of an intent data string. Hierarchical URIs carry
// scheme, host, port and path; opaque URIs (mailto:, tel:, ...) carry only
// the scheme and the scheme-specific part. Port is -1 when absent.
type URI struct {
	Scheme             string
	Host               string
	Port               int
	Path               string
	SchemeSpecificPart string
}

// ParseURI parses a data string. Scheme and host are lowercased per URI
// normalization rules. Returns nil for strings that have no scheme at all.
func ParseURI(s string) *URI {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return nil
	}

	out := &URI{
		Scheme: strings.ToLower(u.Scheme),
		Port:   -1,
	}

	if u.Opaque != "" {
		out.SchemeSpecificPart = u.Opaque
		return out
	}

	out.Host = strings.ToLower(u.Hostname())
	out.Path = u.Path
	if p := u.Port(); p != "" {
		out.Port = atoiPort(p)
	}

	// Everything after "scheme:" is the scheme-specific part.
	if i := strings.IndexByte(s, ':'); i >= 0 {
		out.SchemeSpecificPart = s[i+1:]
	}
	return out
}

func atoiPort(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
		if n > 65535 {
			return -1
		}
	}
	return n
}
