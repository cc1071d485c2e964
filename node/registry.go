package node

import (
	"fmt"
	"sort"
	"sync"
)

// Definition binds a node type name to its constructor. New may fail, e.g.
// when a required backend is unavailable on this build.
type Definition struct {
	Type        string
	DisplayName string
	Category    string
	New         func() (Node, error)
}

var (
	regMu    sync.RWMutex
	registry = make(map[string]Definition)
)

// Register adds a node definition to the registry. Node files call this from
// init(). Registering the same type name twice panics: two nodes claiming one
// type is a programming error, not a runtime condition.
func Register(def Definition) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := registry[def.Type]; exists {
		panic(fmt.Sprintf("node: duplicate registration of %q", def.Type))
	}
	if def.New == nil {
		panic(fmt.Sprintf("node: registration of %q with nil constructor", def.Type))
	}
	registry[def.Type] = def
}

// Lookup returns the definition for a node type name.
func Lookup(typeName string) (Definition, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	def, ok := registry[typeName]
	return def, ok
}

// Definitions returns all registered definitions sorted by type name.
func Definitions() []Definition {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]Definition, 0, len(registry))
	for _, def := range registry {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
