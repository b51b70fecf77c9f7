// Package router maps client-visible model aliases to provider adapters and
// upstream model ids.
package router

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/modelrelay/modelrelay/pkg/config"
	"github.com/modelrelay/modelrelay/pkg/providers"
)

// Resolution is the routing decision for one request.
type Resolution struct {
	ProviderKey    string
	UpstreamModel  string
	Overrides      providers.Overrides
	EnsureToolCall bool
}

// Router resolves model aliases. Definitions sharing a name form a group;
// the configured strategy selects one member per request. Update swaps the
// routing table in place on config reload.
type Router struct {
	mu       sync.RWMutex
	groups   map[string][]config.ModelDefinition
	order    []string
	strategy string
}

func New(cfg config.ModelsConfig) *Router {
	r := &Router{}
	r.Update(cfg)
	return r
}

// Update replaces the routing table with definitions from cfg.
func (r *Router) Update(cfg config.ModelsConfig) {
	groups := make(map[string][]config.ModelDefinition)
	var order []string
	for _, def := range cfg.Definitions {
		if _, seen := groups[def.Name]; !seen {
			order = append(order, def.Name)
		}
		groups[def.Name] = append(groups[def.Name], def)
	}
	strategy := cfg.DefaultStrategy
	if strategy == "" {
		strategy = "first"
	}

	r.mu.Lock()
	r.groups = groups
	r.order = order
	r.strategy = strategy
	r.mu.Unlock()
}

// Resolve picks a definition for the alias and returns the provider key,
// upstream model id, and per-model overrides.
func (r *Router) Resolve(model string) (Resolution, error) {
	r.mu.RLock()
	group, ok := r.groups[model]
	strategy := r.strategy
	r.mu.RUnlock()
	if !ok {
		return Resolution{}, fmt.Errorf("model %q is not configured", model)
	}

	def := group[0]
	if strategy == "weighted" && len(group) > 1 {
		def = pickWeighted(group)
	}

	return Resolution{
		ProviderKey:    def.Provider,
		UpstreamModel:  def.UpstreamModel,
		EnsureToolCall: def.EnsureToolCall,
		Overrides: providers.Overrides{
			APIKey:           def.APIKey,
			BaseURL:          def.BaseURL,
			ProjectID:        def.ProjectID,
			Location:         def.Location,
			Credentials:      def.Credentials,
			CredentialsPath:  def.CredentialsPath,
			EndpointOverride: def.EndpointOverride,
		},
	}, nil
}

// pickWeighted samples proportionally to definition weights; unset weights
// count as one.
func pickWeighted(group []config.ModelDefinition) config.ModelDefinition {
	total := 0.0
	for _, def := range group {
		total += weightOf(def)
	}
	target := rand.Float64() * total
	for _, def := range group {
		target -= weightOf(def)
		if target < 0 {
			return def
		}
	}
	return group[len(group)-1]
}

func weightOf(def config.ModelDefinition) float64 {
	if def.Weight <= 0 {
		return 1
	}
	return def.Weight
}

// Models lists the configured aliases in declaration order.
func (r *Router) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedModels lists the configured aliases alphabetically.
func (r *Router) SortedModels() []string {
	out := r.Models()
	sort.Strings(out)
	return out
}
