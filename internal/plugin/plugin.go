// Package plugin discovers source plugins on disk, keeps a registry of
// them and starts instances with the host state their manifests ask for.
package plugin

import (
	"slices"
	"time"

	"github.com/woxQAQ/sourcehost/internal/domain"
	"github.com/woxQAQ/sourcehost/internal/wasm"
)

// Plugin represents a loaded plugin with its manifest and compiled Wasm module.
type Plugin struct {
	// Manifest is the parsed plugin metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// LoadedAt is the timestamp when the plugin was loaded
	LoadedAt time.Time
}

// ID returns the plugin id.
func (p *Plugin) ID() string {
	return p.Manifest.ID
}

// Name returns the display name.
func (p *Plugin) Name() string {
	return p.Manifest.Name
}

// Language returns the language of the content the plugin serves.
func (p *Plugin) Language() string {
	return p.Manifest.Language
}

// Version returns the plugin version.
func (p *Plugin) Version() int {
	return p.Manifest.Version
}

// Capabilities returns the host namespaces granted to the plugin.
func (p *Plugin) Capabilities() []string {
	return p.Manifest.Capabilities
}

// HasCapability reports whether the plugin was granted namespace.
func (p *Plugin) HasCapability(namespace string) bool {
	return slices.Contains(p.Manifest.Capabilities, namespace)
}

// Listings returns the catalog views the plugin offers.
func (p *Plugin) Listings() []domain.Listing {
	return p.Manifest.Listings
}

// ContentRating returns the source's content rating.
func (p *Plugin) ContentRating() domain.ContentRating {
	return domain.ContentRating(p.Manifest.NSFW)
}
