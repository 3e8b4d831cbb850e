package plugin

import (
	"fmt"
)

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// WasmNotFoundError occurs when the Wasm file referenced in manifest doesn't exist.
type WasmNotFoundError struct {
	ManifestPath string
	WasmFile     string
}

func (e *WasmNotFoundError) Error() string {
	return fmt.Sprintf("Wasm file '%s' not found (referenced in manifest '%s')",
		e.WasmFile, e.ManifestPath)
}

// PluginLoadError occurs when a plugin cannot be compiled or started.
type PluginLoadError struct {
	PluginID string
	Err      error
}

func (e *PluginLoadError) Error() string {
	return fmt.Sprintf("failed to load plugin '%s': %v", e.PluginID, e.Err)
}

func (e *PluginLoadError) Unwrap() error {
	return e.Err
}

// PluginNotFoundError occurs when a plugin is not in the registry.
type PluginNotFoundError struct {
	PluginID string
}

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("plugin '%s' not found", e.PluginID)
}

// PluginAlreadyRegisteredError occurs when two plugins share an id.
type PluginAlreadyRegisteredError struct {
	PluginID string
}

func (e *PluginAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("plugin '%s' is already registered", e.PluginID)
}

// NoPluginsFoundError occurs when no plugins are found in the configured paths.
type NoPluginsFoundError struct {
	Paths []string
}

func (e *NoPluginsFoundError) Error() string {
	return fmt.Sprintf("no plugins found in paths: %v", e.Paths)
}
