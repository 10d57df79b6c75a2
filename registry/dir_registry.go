package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"time"

	"github.com/pkg/errors"
)

// DefaultPollInterval is how often DirRegistry.Watch rereads manifests.
const DefaultPollInterval = 2 * time.Second

// DefaultDirs returns the per-user manifest directories of Firefox, Chrome
// and Chromium for the current OS.
func DefaultDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	switch runtime.GOOS {
	case "darwin":
		support := filepath.Join(home, "Library", "Application Support")
		return []string{
			filepath.Join(support, "Mozilla", "NativeMessagingHosts"),
			filepath.Join(support, "Google", "Chrome", "NativeMessagingHosts"),
			filepath.Join(support, "Chromium", "NativeMessagingHosts"),
		}
	default:
		return []string{
			filepath.Join(home, ".mozilla", "native-messaging-hosts"),
			filepath.Join(home, ".config", "google-chrome", "NativeMessagingHosts"),
			filepath.Join(home, ".config", "chromium", "NativeMessagingHosts"),
		}
	}
}

// DirRegistry keeps manifests as NAME.json files in browser manifest
// directories. Register writes to the first directory; Discover reads all.
type DirRegistry struct {
	Dirs         []string
	PollInterval time.Duration
}

// NewDirRegistry uses dirs, or DefaultDirs when none are given.
func NewDirRegistry(dirs ...string) *DirRegistry {
	if len(dirs) == 0 {
		dirs = DefaultDirs()
	}
	return &DirRegistry{Dirs: dirs, PollInterval: DefaultPollInterval}
}

// ReadManifest loads and validates a manifest file.
func ReadManifest(path string) (HostManifest, error) {
	var m HostManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errors.Wrapf(err, "parse %s", path)
	}
	m.ManifestPath = path
	if err := m.Validate(); err != nil {
		return m, errors.Wrap(err, path)
	}
	return m, nil
}

// MarshalManifest renders m the way it is written to disk.
func MarshalManifest(m HostManifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, errors.Wrap(err, "marshal manifest")
	}
	return buf.Bytes(), nil
}

// Register writes m to the first directory, creating it if needed. ttl is
// ignored: files do not expire.
func (r *DirRegistry) Register(ctx context.Context, m HostManifest, ttl int64) error {
	if len(r.Dirs) == 0 {
		return errors.New("registry: no manifest directory")
	}
	if m.ManifestPath == "" {
		m.ManifestPath = filepath.Join(r.Dirs[0], m.Name+".json")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := MarshalManifest(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.ManifestPath), 0o755); err != nil {
		return errors.Wrap(err, "create manifest directory")
	}
	return errors.Wrap(os.WriteFile(m.ManifestPath, data, 0o644), "write manifest")
}

// Deregister removes NAME.json from every directory where it points at path.
// Files that do not parse are left alone.
func (r *DirRegistry) Deregister(ctx context.Context, name string, path string) error {
	for _, dir := range r.Dirs {
		file := filepath.Join(dir, name+".json")
		m, err := ReadManifest(file)
		if err != nil || m.Path != path {
			continue
		}
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrap(err, "remove manifest")
		}
	}
	return nil
}

func (r *DirRegistry) Discover(ctx context.Context, name string) ([]HostManifest, error) {
	hosts := make([]HostManifest, 0, len(r.Dirs))
	for _, dir := range r.Dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := ReadManifest(filepath.Join(dir, name+".json"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, m)
	}
	return hosts, nil
}

// Watch polls the directories and sends a list whenever it differs from the
// previous one. Read errors are retried on the next tick.
func (r *DirRegistry) Watch(ctx context.Context, name string) <-chan []HostManifest {
	out := make(chan []HostManifest, 1)
	interval := r.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last []HostManifest
		first := true
		for {
			if hosts, err := r.Discover(ctx, name); err == nil && (first || !reflect.DeepEqual(hosts, last)) {
				select {
				case out <- hosts:
				case <-ctx.Done():
					return
				}
				last, first = hosts, false
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
