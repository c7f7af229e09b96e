package network

import (
	"sort"
	"sync"
)

// Registry holds registered network profiles.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Profile
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Profile),
	}
}

// Register adds or updates a profile.
func (r *Registry) Register(p *Profile) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.Name] = p
}

// Get retrieves a profile by name. Returns nil if not found.
// The returned profile is a copy.
func (r *Registry) Get(name string) *Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[name]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Names returns all registered network names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry pre-populated with built-in networks.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MonadTestnet())
	r.Register(Anvil())
	return r
}

// MonadTestnet returns the Monad testnet profile.
func MonadTestnet() *Profile {
	return &Profile{
		Name:          "monad-testnet",
		DisplayName:   "Monad Testnet",
		ChainID:       10143,
		NativeSymbol:  "MON",
		ExplorerTxURL: "https://testnet.monadexplorer.com/tx/",
	}
}

// Anvil returns the profile of a local Anvil/Hardhat node.
func Anvil() *Profile {
	return &Profile{
		Name:         "anvil",
		DisplayName:  "Local Anvil",
		ChainID:      31337,
		NativeSymbol: "ETH",
	}
}
