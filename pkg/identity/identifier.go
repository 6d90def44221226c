// Package identity implements credential identifier and secret validation for
// the provisioning workflow, together with local account lookup.
//
// The identifier grammar is deliberately strict: validated identifiers are
// later interpolated as bare positional arguments to external authentication
// tools (kinit, smbpasswd, clog), so it must be impossible to smuggle in
// option-like tokens, shell metacharacters, or a realm suffix that shadows a
// same-named account in another realm.
package identity

import (
	"regexp"
	"strings"
)

// Role identifies which trust service a credential identifier belongs to.
type Role string

const (
	// RoleLocal is the local Samba account identifier. It must be bare
	// (no realm part).
	RoleLocal Role = "local"

	// RoleKrb5 is the primary Kerberos identity.
	RoleKrb5 Role = "krb5"

	// RoleCoda is the optional secondary Coda identity.
	RoleCoda Role = "coda"
)

// Label returns the capitalized human-readable name used in user notices.
func (r Role) Label() string {
	switch r {
	case RoleKrb5:
		return "Kerberos"
	case RoleCoda:
		return "Coda"
	default:
		return "Local"
	}
}

// Identifier is a parsed and validated name[@REALM] credential identifier.
//
// Name always matches ^[a-z][a-z0-9_-]*$. Realm, when present, is a
// DNS-style domain with at least one dot (possibly with a trailing dot);
// a local identifier never carries one.
type Identifier struct {
	Name  string
	Realm string
}

// HasRealm reports whether a realm part was supplied.
func (id Identifier) HasRealm() bool {
	return id.Realm != ""
}

// String renders the identifier as submitted: "name" or "name@realm".
func (id Identifier) String() string {
	if id.Realm == "" {
		return id.Name
	}
	return id.Name + "@" + id.Realm
}

// Principal renders the identifier with the realm upper-cased, the
// convention Kerberos principals use.
func (id Identifier) Principal() string {
	if id.Realm == "" {
		return id.Name
	}
	return id.Name + "@" + strings.ToUpper(id.Realm)
}

// CodaUser renders the identifier with the realm lower-cased, the
// convention Coda cell names use.
func (id Identifier) CodaUser() string {
	if id.Realm == "" {
		return id.Name
	}
	return id.Name + "@" + strings.ToLower(id.Realm)
}

// identifierRegex matches name[@realm]. Realm labels are 1-63 alphanumeric
// or hyphen characters that cannot start or end with a hyphen; the last
// label needs at least two characters and may carry a trailing dot (FQDN).
// Full IDN rules are far messier than this; ASCII-only is intentional.
var identifierRegex = regexp.MustCompile(
	`^([a-z][a-z0-9_-]*)` +
		`(?:@(` +
		`(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+` +
		`[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]\.?` +
		`))?$`)

// Policy holds the process-wide, read-only identity policy loaded once at
// startup. Empty realm lists mean no restriction.
type Policy struct {
	// UserBlocklist lists names that may never be provisioned (e.g. root).
	UserBlocklist []string

	// RealmAllowlist, when non-empty, restricts realms to this set.
	RealmAllowlist []string

	// RealmBlocklist lists realms that are rejected outright.
	RealmBlocklist []string

	// MinUserID is the lowest numeric id of ordinary provisioned accounts;
	// anything below it is a system/reserved account.
	MinUserID uint32
}

// Validator checks raw form identifiers against the grammar, the policy
// lists, and the local account store. Pure given the policy and the store
// snapshot; no side effects.
type Validator struct {
	policy   Policy
	accounts AccountStore
}

// NewValidator creates a Validator bound to the given policy and account store.
func NewValidator(policy Policy, accounts AccountStore) *Validator {
	return &Validator{policy: policy, accounts: accounts}
}

// Validate parses raw as name[@realm] and applies role policy.
//
// Failure modes (all returned as *ValidationError wrapping a sentinel):
//   - ErrMalformedIdentifier: raw does not match the grammar
//   - ErrRealmNotAllowed: a realm was supplied but allowRealm is false, or
//     the realm is not on a configured allowlist
//   - ErrBlockedUser: name is on the user blocklist
//   - ErrReservedUser: local role only, the account exists with an id below
//     the system-account threshold
//   - ErrInvalidRealmSuffix / ErrRealmBlocked: realm policy violations
func (v *Validator) Validate(raw string, role Role, allowRealm bool) (Identifier, error) {
	m := identifierRegex.FindStringSubmatch(raw)
	if m == nil {
		return Identifier{}, &ValidationError{Role: role, Err: ErrMalformedIdentifier}
	}

	name, realm := m[1], m[2]

	if realm != "" && !allowRealm {
		return Identifier{}, &ValidationError{Role: role, Err: ErrRealmNotAllowed}
	}

	for _, blocked := range v.policy.UserBlocklist {
		if name == blocked {
			return Identifier{}, &ValidationError{Role: role, Err: ErrBlockedUser}
		}
	}

	// Blocking reserved names is not strictly necessary (the account manager
	// never overwrites an existing local password entry for them), but it
	// avoids a pointless round trip to the KDC.
	if role == RoleLocal {
		if acct, err := v.accounts.Lookup(name); err == nil && acct.UID < v.policy.MinUserID {
			return Identifier{}, &ValidationError{Role: role, Err: ErrReservedUser}
		}
	}

	if realm == "" {
		return Identifier{Name: name}, nil
	}

	// The regex should have caught this already.
	if !strings.Contains(realm, ".") {
		return Identifier{}, &ValidationError{Role: role, Err: ErrInvalidRealmSuffix}
	}

	if len(v.policy.RealmAllowlist) > 0 && !containsRealm(v.policy.RealmAllowlist, realm) {
		return Identifier{}, &ValidationError{Role: role, Err: ErrRealmNotAllowed}
	}
	if containsRealm(v.policy.RealmBlocklist, realm) {
		return Identifier{}, &ValidationError{Role: role, Err: ErrRealmBlocked}
	}

	return Identifier{Name: name, Realm: realm}, nil
}

// ValidateSecret applies the SecretGuard check and tags failures with the role.
func (v *Validator) ValidateSecret(raw string, role Role) (Secret, error) {
	s, err := NewSecret(raw)
	if err != nil {
		return Secret{}, &ValidationError{Role: role, Err: err}
	}
	return s, nil
}

// containsRealm does case-insensitive membership, ignoring a trailing FQDN dot.
func containsRealm(list []string, realm string) bool {
	realm = strings.TrimSuffix(realm, ".")
	for _, entry := range list {
		if strings.EqualFold(strings.TrimSuffix(entry, "."), realm) {
			return true
		}
	}
	return false
}
