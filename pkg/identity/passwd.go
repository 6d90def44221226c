package identity

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// DefaultPasswdPath is the standard passwd database location.
const DefaultPasswdPath = "/etc/passwd"

// PasswdStore is an AccountStore backed by a passwd(5) file.
//
// The file is re-read on every call: account creation happens out of process
// (via the account-manager tool) between lookups, so caching would hide
// exactly the updates the workflow needs to observe.
type PasswdStore struct {
	path string
}

// NewPasswdStore creates a PasswdStore reading from path.
// An empty path falls back to DefaultPasswdPath.
func NewPasswdStore(path string) *PasswdStore {
	if path == "" {
		path = DefaultPasswdPath
	}
	return &PasswdStore{path: path}
}

// Lookup implements AccountStore.
func (s *PasswdStore) Lookup(name string) (*Account, error) {
	accounts, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, ErrAccountNotFound
}

// List implements AccountStore. Malformed lines are skipped rather than
// failing the whole read; a single bad entry should not take provisioning down.
func (s *PasswdStore) List() ([]*Account, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open passwd database %q: %w", s.path, err)
	}
	defer f.Close()

	var accounts []*Account
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if a := parsePasswdLine(line); a != nil {
			accounts = append(accounts, a)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read passwd database %q: %w", s.path, err)
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

// parsePasswdLine parses "name:passwd:uid:gid:gecos:home:shell".
// Returns nil for lines that don't parse.
func parsePasswdLine(line string) *Account {
	fields := strings.Split(line, ":")
	if len(fields) < 7 || fields[0] == "" {
		return nil
	}
	uid, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return nil
	}
	gid, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return nil
	}
	return &Account{
		Name:    fields[0],
		UID:     uint32(uid),
		GID:     uint32(gid),
		HomeDir: fields[5],
	}
}
