package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/sourcehost/internal/domain"
	"github.com/woxQAQ/sourcehost/internal/hostfn"
	"github.com/woxQAQ/sourcehost/internal/value"
)

// ManifestFile is the manifest's file name inside a plugin directory.
const ManifestFile = "manifest.yaml"

// Manifest represents the plugin manifest.yaml structure.
type Manifest struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Version  int    `yaml:"version"`
	Language string `yaml:"language"`
	URL      string `yaml:"url"`
	// NSFW is the source's content rating: 0 safe, 1 suggestive, 2 nsfw.
	NSFW    int        `yaml:"nsfw"`
	Wasm    WasmConfig `yaml:"wasm"`
	Author  string     `yaml:"author"`
	License string     `yaml:"license"`

	// Capabilities are the host namespaces the plugin may import. env is
	// always available.
	Capabilities []string `yaml:"capabilities"`

	Listings []domain.Listing `yaml:"listings"`

	// Settings are the defaults returned for keys the user never set.
	Settings map[string]any `yaml:"settings"`

	Network NetworkConfig `yaml:"network"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file"`
	Size int    `yaml:"size"` // KB
}

// NetworkConfig limits what the plugin may reach and how often.
type NetworkConfig struct {
	// AllowedHosts restricts requests to these hosts and their subdomains.
	// Empty allows every host.
	AllowedHosts []string `yaml:"allowed_hosts"`
	// RateLimit requests per RateLimitPeriod seconds. Zero is unlimited.
	RateLimit       int `yaml:"rate_limit"`
	RateLimitPeriod int `yaml:"rate_limit_period"`
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// grantable lists the namespaces a manifest may request.
func grantable() []string {
	var names []string
	for _, ns := range hostfn.Namespaces() {
		if ns.Name != "env" {
			names = append(names, ns.Name)
		}
	}
	return names
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		}
	}

	if m.ID == "" {
		return invalid("id", "id is required")
	}
	if strings.ContainsAny(m.ID, " \t/\\") {
		return invalid("id", "id must not contain whitespace or path separators: %q", m.ID)
	}

	if m.Name == "" {
		return invalid("name", "name is required")
	}

	if m.Version <= 0 {
		return invalid("version", "version must be a positive integer")
	}

	if m.Language == "" {
		return invalid("language", "language is required")
	}

	if m.NSFW < int(domain.RatingSafe) || m.NSFW > int(domain.RatingNSFW) {
		return invalid("nsfw", "nsfw must be 0, 1 or 2, got %d", m.NSFW)
	}

	if m.Wasm.File == "" {
		return invalid("wasm.file", "wasm.file is required")
	}

	if len(m.Capabilities) == 0 {
		return invalid("capabilities", "at least one capability is required")
	}

	valid := grantable()
	for _, c := range m.Capabilities {
		if !slices.Contains(valid, c) {
			return invalid("capabilities", "unknown capability: %s (must be one of: %s)",
				c, strings.Join(valid, ", "))
		}
	}

	for i, l := range m.Listings {
		if l.Name == "" {
			return invalid(fmt.Sprintf("listings[%d].name", i), "listing name is required")
		}
	}

	if _, err := m.Defaults(); err != nil {
		return invalid("settings", "%v", err)
	}

	if m.Network.RateLimit < 0 || m.Network.RateLimitPeriod < 0 {
		return invalid("network", "rate limits must not be negative")
	}

	wasmPath := m.WasmPath()
	if _, err := os.Stat(wasmPath); os.IsNotExist(err) {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

// Defaults converts the manifest's settings into values.
func (m *Manifest) Defaults() (map[string]value.Value, error) {
	if len(m.Settings) == 0 {
		return nil, nil
	}
	out := make(map[string]value.Value, len(m.Settings))
	for key, raw := range m.Settings {
		v, err := value.FromInterface(raw)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
