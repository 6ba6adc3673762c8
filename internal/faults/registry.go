package faults

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Descriptor is a registry entry describing one error code.
type Descriptor struct {
	Code              string
	Category          Category
	Severity          Severity
	Description       string
	Retryable         bool
	FallbackAvailable bool
}

var codePattern = regexp.MustCompile(`^[A-Z]+_[A-Z_0-9]+$`)

// Registry is the process-wide catalog of error codes. Codes are write-once;
// reads vastly outnumber writes, so lookups take a read lock only.
type Registry struct {
	mu    sync.RWMutex
	codes map[string]Descriptor
}

// NewRegistry returns an empty registry. Most callers should use
// DefaultRegistry, which comes pre-populated with the standard catalog.
func NewRegistry() *Registry {
	return &Registry{codes: make(map[string]Descriptor)}
}

// Register adds a descriptor to the registry. It fails if the code does not
// match the CATEGORY_NAME pattern or was already registered.
func (r *Registry) Register(d Descriptor) error {
	if !codePattern.MatchString(d.Code) {
		return fmt.Errorf("error code %q does not match %s", d.Code, codePattern.String())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codes[d.Code]; exists {
		return fmt.Errorf("error code %q already registered", d.Code)
	}
	r.codes[d.Code] = d
	return nil
}

// Lookup returns the descriptor for a code.
func (r *Registry) Lookup(code string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.codes[code]
	return d, ok
}

// Codes returns all registered codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.codes))
	for code := range r.codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of registered codes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.codes)
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the lazily-built process-wide registry populated
// with the standard catalog.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for _, d := range catalog {
			if err := defaultRegistry.Register(d); err != nil {
				panic(fmt.Sprintf("faults: bad catalog entry: %v", err))
			}
		}
	})
	return defaultRegistry
}
