package identity

import (
	"sort"
	"sync"
)

// Account is a local system account as seen by the identity store.
// The numeric id distinguishes system/reserved accounts (below the
// configured threshold) from ordinary provisioned accounts.
type Account struct {
	Name    string
	UID     uint32
	GID     uint32
	HomeDir string
}

// AccountStore provides read access to local system accounts.
//
// The provisioning workflow only ever reads accounts through this interface;
// mutation happens indirectly through the external account-manager tool.
type AccountStore interface {
	// Lookup returns the account with the given name, or ErrAccountNotFound.
	Lookup(name string) (*Account, error)

	// List returns all known accounts sorted by name.
	List() ([]*Account, error)
}

// StaticStore is an in-memory AccountStore.
//
// It backs tests and lets the account-manager backend observe accounts it
// creates without a real passwd database. Safe for concurrent use.
type StaticStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewStaticStore creates a StaticStore pre-populated with the given accounts.
func NewStaticStore(accounts ...*Account) *StaticStore {
	s := &StaticStore{accounts: make(map[string]*Account, len(accounts))}
	for _, a := range accounts {
		s.accounts[a.Name] = a
	}
	return s
}

// Lookup implements AccountStore.
func (s *StaticStore) Lookup(name string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[name]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *a
	return &copied, nil
}

// List implements AccountStore.
func (s *StaticStore) List() ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Add inserts or replaces an account.
func (s *StaticStore) Add(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *a
	s.accounts[a.Name] = &copied
}
