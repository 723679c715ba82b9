// Package simenv implements the firewall's provider interfaces over a
// YAML-described host environment: a package table with uids, signing
// keys, and held permissions. The CLI uses it to evaluate dispatches
// outside the host dispatcher; tests use it as a fixture provider.
package simenv

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/intent-gate/intentgate/internal/domain/firewall"
)

// Package is one installed package in the simulated environment.
type Package struct {
	Name        string   `yaml:"name"`
	UID         int      `yaml:"uid"`
	SigningKey  string   `yaml:"signing_key"`
	Permissions []string `yaml:"permissions"`
}

// Environment is the root of a simenv YAML document.
type Environment struct {
	// PlatformSigningKey is the key id the platform packages are signed
	// with. Packages with the same key classify as signature senders.
	PlatformSigningKey string `yaml:"platform_signing_key"`
	// Provisioned is the device-provisioned flag.
	Provisioned bool `yaml:"provisioned"`
	// Packages is the installed package table.
	Packages []Package `yaml:"packages"`
}

// Provider serves the firewall's provider interfaces from a static
// Environment. It is safe for concurrent use: the environment is
// immutable after construction.
type Provider struct {
	env      Environment
	byUID    map[int][]Package
	byName   map[string]Package
	platform string
}

// Load reads an environment YAML file. Unknown fields are rejected so
// fixture typos fail loudly.
func Load(path string) (*Provider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open environment file: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var env Environment
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("parse environment file %s: %w", path, err)
	}
	return New(env), nil
}

// New builds a Provider from an in-memory environment.
func New(env Environment) *Provider {
	p := &Provider{
		env:      env,
		byUID:    make(map[int][]Package),
		byName:   make(map[string]Package),
		platform: env.PlatformSigningKey,
	}
	if p.platform == "" {
		p.platform = "platform"
	}
	for _, pkg := range env.Packages {
		p.byUID[pkg.UID] = append(p.byUID[pkg.UID], pkg)
		p.byName[pkg.Name] = pkg
	}
	return p
}

// PackagesForUID returns every package name backed by the uid. Unknown
// uids return an empty list, not an error, matching a package manager
// that simply has no record of the uid.
func (p *Provider) PackagesForUID(uid int) ([]string, error) {
	pkgs := p.byUID[uid]
	names := make([]string, len(pkgs))
	for i, pkg := range pkgs {
		names[i] = pkg.Name
	}
	return names, nil
}

// signingKey returns the key id for a uid. The platform uid always signs
// with the platform key, even without a package entry.
func (p *Provider) signingKey(uid int) string {
	if pkgs := p.byUID[uid]; len(pkgs) > 0 {
		return pkgs[0].SigningKey
	}
	if uid == firewall.PlatformUID {
		return p.platform
	}
	return ""
}

// SignaturesMatch reports whether both uids sign with the same key.
func (p *Provider) SignaturesMatch(uid1, uid2 int) (bool, error) {
	k1, k2 := p.signingKey(uid1), p.signingKey(uid2)
	return k1 != "" && k1 == k2, nil
}

// CheckComponentPermission grants root and the platform uid everything;
// other uids hold exactly the permissions listed for their packages.
func (p *Provider) CheckComponentPermission(permission string, _, uid, _ int, _ bool) (bool, error) {
	if uid == firewall.RootUID || uid == firewall.PlatformUID {
		return true, nil
	}
	for _, pkg := range p.byUID[uid] {
		for _, perm := range pkg.Permissions {
			if perm == permission {
				return true, nil
			}
		}
	}
	return false, nil
}

// DeviceProvisioned returns the fixture's provisioned flag.
func (p *Provider) DeviceProvisioned() (bool, error) {
	return p.env.Provisioned, nil
}

// ClearCallingIdentity is a no-op in the simulated environment.
func (p *Provider) ClearCallingIdentity() uint64 { return 0 }

// RestoreCallingIdentity is a no-op in the simulated environment.
func (p *Provider) RestoreCallingIdentity(uint64) {}

// UIDForPackage returns the uid behind a package name, for the CLI's
// dispatch construction. Returns -1 when unknown.
func (p *Provider) UIDForPackage(name string) int {
	if pkg, ok := p.byName[name]; ok {
		return pkg.UID
	}
	return -1
}

// Compile-time interface verification.
var (
	_ firewall.PackageProvider   = (*Provider)(nil)
	_ firewall.PermissionChecker = (*Provider)(nil)
	_ firewall.SettingsReader    = (*Provider)(nil)
	_ firewall.IdentityScope     = (*Provider)(nil)
)
