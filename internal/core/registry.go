package core

import (
	"fmt"
	"sort"
	"sync"
)

// MapFunc builds the submission payload for one raw row. It must be total:
// absent values map to empty fields and the function never fails.
type MapFunc func(row RawRow, params SharedParams) any

// Definition contains everything needed to import one kind of record.
type Definition struct {
	Key            string     // Unique identifier: "doctors"
	Label          string     // Display name: "Doctors"
	Path           string     // Submission endpoint path: "/doctors/bulk"
	Aliases        AliasTable // Column alias resolution table
	RequiredParams []string   // Shared parameters that must be set before parsing
	Map            MapFunc
	Examples       [][]string // Template example rows, in Aliases order
}

// MissingParams returns the required parameters that p does not carry.
func (d Definition) MissingParams(p SharedParams) []string {
	var missing []string
	for _, name := range d.RequiredParams {
		if !p.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

var (
	registry   = make(map[string]Definition)
	registryMu sync.RWMutex
)

// Register adds an import definition to the registry.
// Panics if a definition with the same key is already registered or if it
// has no mapper.
func Register(def Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Key]; exists {
		panic(fmt.Sprintf("import kind already registered: %s", def.Key))
	}
	if def.Map == nil {
		panic(fmt.Sprintf("import kind %s has no mapper", def.Key))
	}

	registry[def.Key] = def
}

// Get returns a definition by key.
// Returns false if not found.
func Get(key string) (Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// Lookup is Get with an error for unknown keys.
func Lookup(key string) (Definition, error) {
	def, ok := Get(key)
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownKind, key)
	}
	return def, nil
}

// All returns all registered definitions sorted by key.
func All() []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Definition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// KindCount returns the number of registered definitions.
func KindCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered definitions.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Definition)
}
