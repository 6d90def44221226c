package backend

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/marmos91/webauthd/pkg/identity"
)

// CredCache is the request-scoped temporary credential cache produced by the
// primary issuer's authentication step.
//
// It lives under a uniquely-named owner-only path and must never persist
// there: on the success path it is relocated into the account's well-known
// cache location, on every other path Scrub empties and removes it.
type CredCache struct {
	path string
}

// NewCredCache creates an empty cache file with owner-only permissions in
// dir (os.TempDir when empty).
func NewCredCache(dir string) (*CredCache, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "webauth_cc_"+uuid.NewString())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary credential cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to create temporary credential cache: %w", err)
	}
	return &CredCache{path: path}, nil
}

// Path returns the cache file location, for FILE: ccache references.
func (c *CredCache) Path() string {
	return c.path
}

// InstallFor moves the cache into dir under the conventional krb5cc_<uid>
// name, owned by the account and readable only by it. The rename is atomic;
// on failure the source is scrubbed so credentials never linger.
func (c *CredCache) InstallFor(account *identity.Account, dir string) error {
	target := filepath.Join(dir, fmt.Sprintf("krb5cc_%d", account.UID))

	if err := os.Chmod(c.path, 0600); err != nil {
		c.mustScrub()
		return fmt.Errorf("failed to restrict credential cache permissions: %w", err)
	}
	if err := unix.Chown(c.path, int(account.UID), int(account.GID)); err != nil {
		c.mustScrub()
		return fmt.Errorf("failed to chown credential cache to %s: %w", account.Name, err)
	}
	if err := os.Rename(c.path, target); err != nil {
		c.mustScrub()
		return fmt.Errorf("failed to move credential cache to %s: %w", target, err)
	}
	return nil
}

// Scrub zeroes and removes the cache file. Safe to call on every exit path:
// a cache already installed (renamed away) is a no-op.
func (c *CredCache) Scrub() error {
	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		return nil
	}
	// Truncate first so the ticket material is gone even if the unlink
	// fails or the block is recovered later.
	if err := os.Truncate(c.path, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to empty credential cache: %w", err)
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential cache: %w", err)
	}
	return nil
}

func (c *CredCache) mustScrub() {
	_ = c.Scrub()
}
