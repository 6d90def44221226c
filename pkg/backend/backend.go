// Package backend wraps the external trust services the provisioning
// workflow drives: the Kerberos ticket issuer (kinit), the local Samba
// account manager (smbpasswd), and the optional Coda token issuer (clog).
//
// Every backend call is a single bounded child-process invocation. Secrets
// reach the child only through its input stream, newline terminated, never
// via argv or the environment. The orchestrator depends on the capability
// interfaces below, so tests substitute doubles without spawning processes.
package backend

import (
	"context"
	"errors"

	"github.com/marmos91/webauthd/pkg/identity"
)

// Backend errors, split by failure semantics: rejected credentials and the
// creation race are retryable by the user, tool failures are fatal for the
// submission, install/secondary failures only degrade it.
var (
	ErrCredentialsRejected  = errors.New("username or password incorrect")
	ErrConcurrentCreation   = errors.New("local account was concurrently created")
	ErrAccountCreateFailed  = errors.New("failed to create local account")
	ErrPasswordUpdateFailed = errors.New("failed to change local password")
	ErrInstallFailed        = errors.New("failed to install credential cache")
	ErrSecondaryAuthFailed  = errors.New("failed to obtain secondary credentials")
)

// AccountOutcome describes what EnsureAccount did.
type AccountOutcome int

const (
	// OutcomeUnchanged means the account existed and no password was supplied.
	OutcomeUnchanged AccountOutcome = iota
	// OutcomeCreated means a new local account was created.
	OutcomeCreated
	// OutcomeUpdated means the existing account's password was updated.
	OutcomeUpdated
)

func (o AccountOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// TicketIssuer authenticates against the primary realm and places the
// resulting credential cache for a local account.
type TicketIssuer interface {
	// Authenticate proves principal/secret against the realm. On success the
	// returned request-scoped cache holds the obtained credentials; the
	// caller must Scrub it on every exit path.
	Authenticate(ctx context.Context, principal string, secret identity.Secret) (*CredCache, error)

	// Install re-runs the issuer as the target local account so the cache is
	// written directly with correct ownership (the privilege-dropping path).
	Install(ctx context.Context, account *identity.Account, principal string, secret identity.Secret) error

	// Relocate is the fallback when Install is not possible: it moves the
	// cache from Authenticate into the account's well-known cache location,
	// fixing ownership and permissions first.
	Relocate(cache *CredCache, account *identity.Account) error
}

// AccountManager creates or updates local accounts through the external
// account-manager tool.
type AccountManager interface {
	EnsureAccount(ctx context.Context, name string, secret identity.Secret, isNewUser bool) (AccountOutcome, error)
}

// TokenIssuer obtains tokens from the optional secondary trust service,
// running as the target local account. Best-effort by contract.
type TokenIssuer interface {
	Login(ctx context.Context, account *identity.Account, user string, secret identity.Secret) error
}
