package plugin

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry indexes loaded plugins by id and by language.
type Registry struct {
	sync.RWMutex
	plugins    map[string]*Plugin   // id -> plugin
	byLanguage map[string][]*Plugin // language -> plugins
	logger     *zap.Logger
}

// NewRegistry creates a new plugin registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		plugins:    make(map[string]*Plugin),
		byLanguage: make(map[string][]*Plugin),
		logger:     logger.With(zap.String("component", "plugin-registry")),
	}
}

// Register adds a plugin to the registry.
func (r *Registry) Register(plugin *Plugin) error {
	r.Lock()
	defer r.Unlock()

	id := plugin.Manifest.ID

	if _, exists := r.plugins[id]; exists {
		return &PluginAlreadyRegisteredError{PluginID: id}
	}

	r.plugins[id] = plugin

	lang := plugin.Manifest.Language
	r.byLanguage[lang] = append(r.byLanguage[lang], plugin)

	r.logger.Info("Plugin registered",
		zap.String("id", id),
		zap.String("language", lang),
	)

	return nil
}

// Get retrieves a plugin by id.
func (r *Registry) Get(id string) (*Plugin, bool) {
	r.RLock()
	defer r.RUnlock()

	plugin, ok := r.plugins[id]
	return plugin, ok
}

// LookupByLanguage finds the plugins serving a language, in registration
// order.
func (r *Registry) LookupByLanguage(lang string) []*Plugin {
	r.RLock()
	defer r.RUnlock()

	plugins, ok := r.byLanguage[lang]
	if !ok || len(plugins) == 0 {
		return []*Plugin{}
	}
	// Return copy to avoid race conditions
	result := make([]*Plugin, len(plugins))
	copy(result, plugins)
	return result
}

// List returns all registered plugins sorted by id.
func (r *Registry) List() []*Plugin {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Plugin, 0, len(r.plugins))
	for _, plugin := range r.plugins {
		result = append(result, plugin)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Manifest.ID < result[j].Manifest.ID
	})
	return result
}

// Unregister removes a plugin from the registry.
func (r *Registry) Unregister(id string) {
	r.Lock()
	defer r.Unlock()

	plugin, ok := r.plugins[id]
	if !ok {
		return
	}

	lang := plugin.Manifest.Language
	plugins := r.byLanguage[lang]
	for i, p := range plugins {
		if p.Manifest.ID == id {
			r.byLanguage[lang] = append(plugins[:i], plugins[i+1:]...)
			break
		}
	}
	if len(r.byLanguage[lang]) == 0 {
		delete(r.byLanguage, lang)
	}

	delete(r.plugins, id)

	r.logger.Info("Plugin unregistered", zap.String("id", id))
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.plugins)
}

// Languages returns the languages served by at least one plugin, sorted.
func (r *Registry) Languages() []string {
	r.RLock()
	defer r.RUnlock()

	langs := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
