package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/webauthd/pkg/identity"
)

// SmbBackend is the AccountManager, backed by the smbpasswd tool.
type SmbBackend struct {
	runner    Runner
	smbpasswd string
	accounts  identity.AccountStore

	// mu serializes the exists-check against creation. The workflow holds
	// no lock between validation and this step, so concurrent submissions
	// for the same brand-new name must be resolved here: exactly one
	// creates, the rest see the account and fail retryably.
	mu sync.Mutex
}

// NewSmbBackend creates the smbpasswd-backed account manager.
func NewSmbBackend(runner Runner, smbpasswd string, accounts identity.AccountStore) *SmbBackend {
	if smbpasswd == "" {
		smbpasswd = "smbpasswd"
	}
	return &SmbBackend{runner: runner, smbpasswd: smbpasswd, accounts: accounts}
}

// EnsureAccount implements AccountManager.
//
// Missing account: create it with the given password (OutcomeCreated).
// Existing account observed while isNewUser is true: another submission won
// the creation race; fail with ErrConcurrentCreation so the caller restarts
// the workflow. Existing account otherwise: update the password when one was
// supplied (OutcomeUpdated), no-op when not (OutcomeUnchanged).
func (b *SmbBackend) EnsureAccount(ctx context.Context, name string, secret identity.Secret, isNewUser bool) (AccountOutcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.accounts.Lookup(name)
	switch {
	case err == nil && isNewUser:
		return OutcomeUnchanged, ErrConcurrentCreation

	case err == nil:
		if secret.IsEmpty() {
			return OutcomeUnchanged, nil
		}
		// smbpasswd reads the new password twice from stdin (-s).
		if err := b.runner.Run(ctx, secret.Input(2), b.smbpasswd, "-s", name); err != nil {
			return OutcomeUnchanged, fmt.Errorf("%w: %v", ErrPasswordUpdateFailed, err)
		}
		return OutcomeUpdated, nil

	case errors.Is(err, identity.ErrAccountNotFound):
		if err := b.runner.Run(ctx, secret.Input(2), b.smbpasswd, "-s", "-a", name); err != nil {
			return OutcomeUnchanged, fmt.Errorf("%w: %v", ErrAccountCreateFailed, err)
		}
		return OutcomeCreated, nil

	default:
		return OutcomeUnchanged, fmt.Errorf("%w: %v", ErrAccountCreateFailed, err)
	}
}
