// Package registry resolves an application id to the native messaging hosts
// that can serve it.
//
// A host is described by the same manifest browsers read: name, absolute path
// of the executable and the extensions allowed to start it. Manifests live
// either in the browsers' manifest directories (DirRegistry) or in etcd
// (EtcdRegistry), where hosts on shared machines register with a lease.
package registry

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// HostType is the only connection type browsers support.
const HostType = "stdio"

// ErrInvalidManifest is wrapped by every validation failure.
var ErrInvalidManifest = errors.New("registry: invalid host manifest")

// HostManifest is a native messaging host manifest.
type HostManifest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	// Chrome
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	// Firefox
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
	// Weight is used by weighted selection; browsers never see a zero weight.
	Weight int `json:"weight,omitempty"`

	// ManifestPath is the file the manifest was read from or is written to.
	// "-" means stdout.
	ManifestPath string `json:"-"`
}

// Validate checks the manifest the way browsers do and fills in Type.
func (m *HostManifest) Validate() error {
	// Firefox rejects allowed_origins and Chrome rejects allowed_extensions
	if (len(m.AllowedOrigins) == 0) == (len(m.AllowedExtensions) == 0) {
		return errors.Wrap(ErrInvalidManifest, `exactly one of "allowed_origins" and "allowed_extensions" must be set`)
	}
	if m.Name == "" {
		return errors.Wrap(ErrInvalidManifest, `"name" is not specified`)
	}
	if m.Path == "" || !filepath.IsAbs(m.Path) {
		return errors.Wrapf(ErrInvalidManifest, `"path" must be absolute, got %q`, m.Path)
	}
	if m.Type != "" && m.Type != HostType {
		return errors.Wrapf(ErrInvalidManifest, "unsupported type %q", m.Type)
	}
	if m.Weight < 0 {
		return errors.Wrapf(ErrInvalidManifest, "negative weight %d", m.Weight)
	}
	if m.ManifestPath != "" && m.ManifestPath != "-" {
		base := filepath.Base(m.ManifestPath)
		ext := filepath.Ext(base)
		if strings.ToLower(ext) != ".json" {
			return errors.Wrapf(ErrInvalidManifest, "manifest file %s has no .json extension", m.ManifestPath)
		}
		if base[:len(base)-len(ext)] != m.Name {
			return errors.Wrapf(ErrInvalidManifest, "manifest file %s does not match name %s", m.ManifestPath, m.Name)
		}
	}
	m.Type = HostType
	return nil
}

// Args are the arguments a browser passes to the host: the manifest path and
// the origin of the calling extension.
func (m *HostManifest) Args(origin string) []string {
	var args []string
	if m.ManifestPath != "" && m.ManifestPath != "-" {
		args = append(args, m.ManifestPath)
	}
	if origin != "" {
		args = append(args, origin)
	}
	return args
}

// Registry stores host manifests by application name.
type Registry interface {
	// Register publishes m. A positive ttl (seconds) makes the entry expire
	// unless the registering process stays alive; stores without leases
	// ignore it.
	Register(ctx context.Context, m HostManifest, ttl int64) error
	Deregister(ctx context.Context, name string, path string) error
	// Discover returns every manifest registered for name. No hosts is not
	// an error: the slice is empty.
	Discover(ctx context.Context, name string) ([]HostManifest, error)
	// Watch sends the current manifests of name, then a fresh list after
	// every change, until ctx is done.
	Watch(ctx context.Context, name string) <-chan []HostManifest
}
