package papersources

import (
	"sort"
	"sync"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

// Registry holds the collectors and hands them out in source priority order
// (domain.SourcePriority), which fixes the order of the merged record stream.
type Registry struct {
	mu         sync.RWMutex
	collectors map[domain.SourceType]Collector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		collectors: make(map[domain.SourceType]Collector),
	}
}

// Register adds a collector. A collector with the same source type is replaced.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[c.SourceType()] = c
}

// Get returns the collector for a source, or nil if none is registered.
func (r *Registry) Get(sourceType domain.SourceType) Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectors[sourceType]
}

// All returns every registered collector in priority order.
func (r *Registry) All() []Collector {
	return r.filter(func(Collector) bool { return true })
}

// Enabled returns the enabled collectors in priority order.
func (r *Registry) Enabled() []Collector {
	return r.filter(func(c Collector) bool { return c.IsEnabled() })
}

func (r *Registry) filter(keep func(Collector) bool) []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Collector, 0, len(r.collectors))
	for _, c := range r.collectors {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].SourceType().Rank(), out[j].SourceType().Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].SourceType() < out[j].SourceType()
	})
	return out
}
