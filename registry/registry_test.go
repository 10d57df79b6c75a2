package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firefoxManifest(name, path string) HostManifest {
	return HostManifest{
		Name:              name,
		Description:       "test host",
		Path:              path,
		AllowedExtensions: []string{"portrpc@example.org"},
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(m *HostManifest)
		ok     bool
	}{
		{"firefox", func(m *HostManifest) {}, true},
		{"chrome", func(m *HostManifest) {
			m.AllowedExtensions = nil
			m.AllowedOrigins = []string{"chrome-extension://abc/"}
		}, true},
		{"both allow lists", func(m *HostManifest) { m.AllowedOrigins = []string{"chrome-extension://abc/"} }, false},
		{"no allow list", func(m *HostManifest) { m.AllowedExtensions = nil }, false},
		{"no name", func(m *HostManifest) { m.Name = "" }, false},
		{"relative path", func(m *HostManifest) { m.Path = "bin/host" }, false},
		{"wrong type", func(m *HostManifest) { m.Type = "socket" }, false},
		{"negative weight", func(m *HostManifest) { m.Weight = -1 }, false},
		{"manifest file matches", func(m *HostManifest) { m.ManifestPath = "/tmp/org.example.host.json" }, true},
		{"manifest to stdout", func(m *HostManifest) { m.ManifestPath = "-" }, true},
		{"manifest file not json", func(m *HostManifest) { m.ManifestPath = "/tmp/org.example.host.txt" }, false},
		{"manifest file other name", func(m *HostManifest) { m.ManifestPath = "/tmp/other.json" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := firefoxManifest("org.example.host", "/usr/bin/example-host")
			tt.modify(&m)
			err := m.Validate()
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, HostType, m.Type)
			} else {
				assert.ErrorIs(t, err, ErrInvalidManifest)
			}
		})
	}
}

func TestManifestArgs(t *testing.T) {
	m := firefoxManifest("h", "/bin/h")
	assert.Empty(t, m.Args(""))

	m.ManifestPath = "/home/u/.mozilla/native-messaging-hosts/h.json"
	assert.Equal(t, []string{m.ManifestPath, "portrpc@example.org"}, m.Args("portrpc@example.org"))
}

func TestDirRegistry(t *testing.T) {
	ctx := context.Background()
	firefox, chrome := t.TempDir(), t.TempDir()
	reg := NewDirRegistry(firefox, chrome)

	hosts, err := reg.Discover(ctx, "org.example.host")
	require.NoError(t, err)
	assert.Empty(t, hosts)

	m := firefoxManifest("org.example.host", "/usr/bin/example-host")
	require.NoError(t, reg.Register(ctx, m, 0))
	assert.FileExists(t, filepath.Join(firefox, "org.example.host.json"))

	// Same host installed for the second browser by hand
	chromeManifest := m
	chromeManifest.AllowedExtensions = nil
	chromeManifest.AllowedOrigins = []string{"chrome-extension://abc/"}
	data, err := MarshalManifest(chromeManifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(chrome, "org.example.host.json"), data, 0o644))

	hosts, err = reg.Discover(ctx, "org.example.host")
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, filepath.Join(firefox, "org.example.host.json"), hosts[0].ManifestPath)
	assert.Equal(t, "stdio", hosts[0].Type)
	assert.Equal(t, []string{"chrome-extension://abc/"}, hosts[1].AllowedOrigins)

	require.NoError(t, reg.Deregister(ctx, "org.example.host", "/other/path"))
	hosts, err = reg.Discover(ctx, "org.example.host")
	require.NoError(t, err)
	assert.Len(t, hosts, 2, "manifests of another executable are kept")

	require.NoError(t, reg.Deregister(ctx, "org.example.host", "/usr/bin/example-host"))
	hosts, err = reg.Discover(ctx, "org.example.host")
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestDirRegistryMalformedManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

	_, err := NewDirRegistry(dir).Discover(context.Background(), "broken")
	assert.Error(t, err)
}

func TestDirRegistryManifestIsBrowserReadable(t *testing.T) {
	m := firefoxManifest("h", "/bin/h")
	require.NoError(t, m.Validate())
	data, err := MarshalManifest(m)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"name": "h",
		"description": "test host",
		"path": "/bin/h",
		"type": "stdio",
		"allowed_extensions": ["portrpc@example.org"]
	}`, string(data))
}

func TestDirRegistryWatch(t *testing.T) {
	dir := t.TempDir()
	reg := NewDirRegistry(dir)
	reg.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := reg.Watch(ctx, "h")

	next := func() []HostManifest {
		select {
		case hosts := <-updates:
			return hosts
		case <-time.After(2 * time.Second):
			t.Fatal("no update from watch")
			return nil
		}
	}

	assert.Empty(t, next(), "initial snapshot")

	require.NoError(t, reg.Register(context.Background(), firefoxManifest("h", "/bin/h"), 0))
	hosts := next()
	require.Len(t, hosts, 1)
	assert.Equal(t, "/bin/h", hosts[0].Path)

	cancel()
	for range updates {
	}
}
