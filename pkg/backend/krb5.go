package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/jcmturner/gokrb5/v8/credentials"

	"github.com/marmos91/webauthd/internal/logger"
	"github.com/marmos91/webauthd/pkg/identity"
)

// Krb5Config configures the primary ticket-issuer backend.
type Krb5Config struct {
	// Kinit is the path to the kinit tool.
	Kinit string

	// CacheDir holds the request-scoped temporary caches (os.TempDir if empty).
	CacheDir string

	// InstallDir is where per-uid caches are placed on the fallback path.
	// Default: /tmp (the conventional FILE:/tmp/krb5cc_<uid> location).
	InstallDir string

	// VerifyCache enables parsing the obtained cache and checking its client
	// principal against the requested identifier.
	VerifyCache bool
}

// Krb5Backend is the primary TicketIssuer, backed by kinit.
type Krb5Backend struct {
	runner Runner
	cfg    Krb5Config
}

// NewKrb5Backend creates the kinit-backed ticket issuer.
func NewKrb5Backend(runner Runner, cfg Krb5Config) *Krb5Backend {
	if cfg.Kinit == "" {
		cfg.Kinit = "kinit"
	}
	if cfg.InstallDir == "" {
		cfg.InstallDir = "/tmp"
	}
	return &Krb5Backend{runner: runner, cfg: cfg}
}

// Authenticate implements TicketIssuer.
//
// kinit runs against a temporary FILE: cache scoped to this request; any
// non-zero exit means the credentials were rejected. On success the cache is
// the authoritative evidence that principal/secret are valid and is returned
// for the install step.
func (b *Krb5Backend) Authenticate(ctx context.Context, principal string, secret identity.Secret) (*CredCache, error) {
	cache, err := NewCredCache(b.cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	err = b.runner.Run(ctx, secret.Input(1), b.cfg.Kinit, "-c", "FILE:"+cache.Path(), principal)
	if err != nil {
		cache.mustScrub()
		logger.Debug("kinit authentication failed", "principal", principal, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCredentialsRejected, err)
	}

	if b.cfg.VerifyCache {
		if err := verifyCachePrincipal(cache.Path(), principal); err != nil {
			cache.mustScrub()
			return nil, err
		}
	}

	return cache, nil
}

// Install implements TicketIssuer: kinit re-run as the target account, which
// knows best how to place its own cache. Fails when the account cannot run
// the issuer (e.g. it does not exist yet, or su is not permitted).
func (b *Krb5Backend) Install(ctx context.Context, account *identity.Account, principal string, secret identity.Secret) error {
	err := b.runner.Run(ctx, secret.Input(1), suTool, suArgs(account.Name, b.cfg.Kinit, principal)...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	return nil
}

// Relocate implements TicketIssuer: the fallback install path.
func (b *Krb5Backend) Relocate(cache *CredCache, account *identity.Account) error {
	if err := cache.InstallFor(account, b.cfg.InstallDir); err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	return nil
}

// verifyCachePrincipal parses the freshly obtained cache and checks that its
// client principal matches what was requested. A mismatch would mean the
// issuer authenticated something other than the validated identifier.
func verifyCachePrincipal(path, principal string) error {
	cc, err := credentials.LoadCCache(path)
	if err != nil {
		return fmt.Errorf("failed to parse credential cache: %w", err)
	}

	wantName, wantRealm, _ := strings.Cut(principal, "@")
	gotName := cc.GetClientPrincipalName().PrincipalNameString()
	gotRealm := cc.GetClientRealm()

	if gotName != wantName {
		return fmt.Errorf("credential cache principal %q does not match requested %q", gotName, wantName)
	}
	if wantRealm != "" && !strings.EqualFold(gotRealm, wantRealm) {
		return fmt.Errorf("credential cache realm %q does not match requested %q", gotRealm, wantRealm)
	}
	return nil
}
