// Package settings persists the per-account provisioning record.
//
// One record per local account, stored as a small JSON file in that
// account's home directory. The record tracks which external identities are
// linked to the account; it is overwritten whole on every successful
// provisioning run, never merged.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/webauthd/internal/logger"
	"github.com/marmos91/webauthd/pkg/identity"
)

// FileName is the record file name inside the account home directory.
const FileName = ".webauth.conf"

// Record is the provisioning state for one local account.
//
// NewUser is present in the stored JSON only while true: its absence marks
// an account whose provisioning has completed at least once.
type Record struct {
	NewUser  bool   `json:"new_user,omitempty"`
	Krb5User string `json:"krb5_user"`
	CodaUser string `json:"coda_user"`
}

// Store loads and saves provisioning records, resolving account home
// directories through the identity store.
type Store struct {
	accounts identity.AccountStore
}

// NewStore creates a Store backed by the given account store.
func NewStore(accounts identity.AccountStore) *Store {
	return &Store{accounts: accounts}
}

// Load returns the record for username.
//
// A missing account, a missing file, or an unparsable file all yield a fresh
// record with NewUser set and both identities defaulted to the local
// username. This is the "first login observed" state.
func (s *Store) Load(username string) Record {
	fresh := Record{NewUser: true, Krb5User: username, CodaUser: username}

	acct, err := s.accounts.Lookup(username)
	if err != nil {
		return fresh
	}

	data, err := os.ReadFile(filepath.Join(acct.HomeDir, FileName))
	if err != nil {
		return fresh
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warn("ignoring unparsable provisioning record",
			"username", username, "error", err)
		return fresh
	}
	return rec
}

// Save overwrites the record for username.
//
// The file is written with owner-only permissions and handed over to the
// account, which owns its provisioning state.
func (s *Store) Save(username string, rec Record) error {
	acct, err := s.accounts.Lookup(username)
	if err != nil {
		return fmt.Errorf("failed to resolve account %q: %w", username, err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode provisioning record: %w", err)
	}

	path := filepath.Join(acct.HomeDir, FileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write provisioning record: %w", err)
	}

	if err := os.Chown(path, int(acct.UID), int(acct.GID)); err != nil {
		// Not fatal: the record is readable by the writing process either
		// way, but a non-root deployment cannot hand off ownership.
		logger.Warn("failed to chown provisioning record",
			"username", username, "path", path, "error", err)
	}

	return nil
}
