package backend

import (
	"context"
	"fmt"

	"github.com/marmos91/webauthd/pkg/identity"
)

// CodaBackend is the optional secondary TokenIssuer, backed by the clog tool.
type CodaBackend struct {
	runner Runner
	clog   string
}

// NewCodaBackend creates the clog-backed token issuer.
func NewCodaBackend(runner Runner, clog string) *CodaBackend {
	if clog == "" {
		clog = "clog"
	}
	return &CodaBackend{runner: runner, clog: clog}
}

// Login implements TokenIssuer: clog run as the target local account so the
// tokens land in that account's session. An empty secret means the user
// chose not to supply one: skip, not an error.
func (b *CodaBackend) Login(ctx context.Context, account *identity.Account, user string, secret identity.Secret) error {
	if secret.IsEmpty() {
		return nil
	}

	err := b.runner.Run(ctx, secret.Input(1), suTool, suArgs(account.Name, b.clog, user)...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSecondaryAuthFailed, err)
	}
	return nil
}
