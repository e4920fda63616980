package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/embx-dev/embx/internal/config"
	"github.com/embx-dev/embx/internal/errs"
)

// Registry resolves provider names to configured instances.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds the full provider set from the resolved configuration.
func NewRegistry(cfg config.Config) *Registry {
	providers := map[string]Provider{
		NameOpenAI:      newOpenAI(cfg),
		NameOpenRouter:  newOpenRouter(cfg),
		NameVoyage:      newVoyage(cfg),
		NameOllama:      newOllama(cfg),
		NameHuggingFace: newHuggingFace(cfg),
	}
	return &Registry{providers: providers}
}

// NewRegistryFrom builds a registry over an explicit provider set. Used
// where the caller supplies its own capabilities, e.g. in tests.
func NewRegistryFrom(providers map[string]Provider) *Registry {
	return &Registry{providers: providers}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q, available providers: %s",
			errs.ErrValidation, name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata describes one registered provider for display.
type Metadata struct {
	Name         string   `json:"name"`
	DefaultModel string   `json:"default_model"`
	Requires     []string `json:"requires"`
	Configured   bool     `json:"configured"`
}

// AllMetadata returns display metadata for every provider, sorted by name.
func (r *Registry) AllMetadata() []Metadata {
	out := make([]Metadata, 0, len(r.providers))
	for _, name := range r.Names() {
		p := r.providers[name]
		out = append(out, Metadata{
			Name:         p.Name(),
			DefaultModel: p.DefaultModel(),
			Requires:     p.RequiredConfigKeys(),
			Configured:   p.Configured(),
		})
	}
	return out
}
