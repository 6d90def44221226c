package identity

import (
	"errors"
	"testing"
)

func testValidator(t *testing.T) *Validator {
	t.Helper()

	store := NewStaticStore(
		&Account{Name: "daemon", UID: 1, GID: 1, HomeDir: "/usr/sbin"},
		&Account{Name: "bob", UID: 1001, GID: 1001, HomeDir: "/home/bob"},
	)

	policy := Policy{
		UserBlocklist: []string{"root"},
		MinUserID:     1000,
	}

	return NewValidator(policy, store)
}

func TestValidate_LocalGrammar(t *testing.T) {
	v := testValidator(t)

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"simple name", "alice", nil},
		{"digits and dash", "alice-2", nil},
		{"underscore", "web_user", nil},
		{"existing ordinary user", "bob", nil},
		{"uppercase rejected", "Admin", ErrMalformedIdentifier},
		{"leading digit rejected", "1alice", ErrMalformedIdentifier},
		{"shell metacharacters", "user;rm", ErrMalformedIdentifier},
		{"embedded space", "user name", ErrMalformedIdentifier},
		{"option injection", "-krestart", ErrMalformedIdentifier},
		{"empty", "", ErrMalformedIdentifier},
		{"realm on local identifier", "alice@example.com", ErrRealmNotAllowed},
		{"blocked user", "root", ErrBlockedUser},
		{"reserved system account", "daemon", ErrReservedUser},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, err := v.Validate(tc.raw, RoleLocal, false)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Validate(%q) error = %v, want %v", tc.raw, err, tc.wantErr)
			}
			if tc.wantErr == nil && id.Name != tc.raw {
				t.Errorf("Validate(%q) name = %q, want %q", tc.raw, id.Name, tc.raw)
			}
		})
	}
}

func TestValidate_Realms(t *testing.T) {
	v := testValidator(t)

	tests := []struct {
		name      string
		raw       string
		wantErr   error
		wantName  string
		wantRealm string
	}{
		{"upper realm", "alice@EXAMPLE.COM", nil, "alice", "EXAMPLE.COM"},
		{"lower realm", "alice@example.com", nil, "alice", "example.com"},
		{"trailing dot fqdn", "alice@example.com.", nil, "alice", "example.com."},
		{"multi-label", "alice@cs.cmu.edu", nil, "alice", "cs.cmu.edu"},
		{"no dot in realm", "alice@localhost", ErrMalformedIdentifier, "", ""},
		{"label starts with dash", "alice@-bad.com", ErrMalformedIdentifier, "", ""},
		{"label ends with dash", "alice@bad-.com", ErrMalformedIdentifier, "", ""},
		{"empty realm", "alice@", ErrMalformedIdentifier, "", ""},
		{"double at", "alice@a@b.com", ErrMalformedIdentifier, "", ""},
		{"blocked user with realm", "root@example.com", ErrBlockedUser, "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, err := v.Validate(tc.raw, RoleKrb5, true)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Validate(%q) error = %v, want %v", tc.raw, err, tc.wantErr)
			}
			if tc.wantErr != nil {
				return
			}
			if id.Name != tc.wantName || id.Realm != tc.wantRealm {
				t.Errorf("Validate(%q) = {%q %q}, want {%q %q}",
					tc.raw, id.Name, id.Realm, tc.wantName, tc.wantRealm)
			}
		})
	}
}

func TestValidate_RealmDisallowedForRole(t *testing.T) {
	v := testValidator(t)

	if _, err := v.Validate("alice@EXAMPLE.COM", RoleKrb5, false); !errors.Is(err, ErrRealmNotAllowed) {
		t.Errorf("allowRealm=false error = %v, want ErrRealmNotAllowed", err)
	}
	if _, err := v.Validate("alice@EXAMPLE.COM", RoleKrb5, true); err != nil {
		t.Errorf("allowRealm=true error = %v, want nil", err)
	}
}

func TestValidate_RealmLists(t *testing.T) {
	store := NewStaticStore()

	allow := NewValidator(Policy{
		RealmAllowlist: []string{"example.com"},
		MinUserID:      1000,
	}, store)

	if _, err := allow.Validate("alice@EXAMPLE.COM", RoleKrb5, true); err != nil {
		t.Errorf("allowlisted realm (case-insensitive) error = %v, want nil", err)
	}
	if _, err := allow.Validate("alice@other.org", RoleKrb5, true); !errors.Is(err, ErrRealmNotAllowed) {
		t.Errorf("non-allowlisted realm error = %v, want ErrRealmNotAllowed", err)
	}

	block := NewValidator(Policy{
		RealmBlocklist: []string{"evil.example"},
		MinUserID:      1000,
	}, store)

	if _, err := block.Validate("alice@evil.example", RoleKrb5, true); !errors.Is(err, ErrRealmBlocked) {
		t.Errorf("blocklisted realm error = %v, want ErrRealmBlocked", err)
	}
	if _, err := block.Validate("alice@evil.example.", RoleKrb5, true); !errors.Is(err, ErrRealmBlocked) {
		t.Errorf("blocklisted realm with trailing dot error = %v, want ErrRealmBlocked", err)
	}
	if _, err := block.Validate("alice@fine.example", RoleKrb5, true); err != nil {
		t.Errorf("non-blocklisted realm error = %v, want nil", err)
	}
}

func TestValidate_ReservedOnlyForLocalRole(t *testing.T) {
	v := testValidator(t)

	// daemon has uid 1 but the reserved check applies to the local role only.
	if _, err := v.Validate("daemon", RoleKrb5, true); err != nil {
		t.Errorf("reserved name for krb5 role error = %v, want nil", err)
	}
}

func TestIdentifierRendering(t *testing.T) {
	id := Identifier{Name: "alice", Realm: "Example.Com"}

	if got := id.String(); got != "alice@Example.Com" {
		t.Errorf("String() = %q", got)
	}
	if got := id.Principal(); got != "alice@EXAMPLE.COM" {
		t.Errorf("Principal() = %q", got)
	}
	if got := id.CodaUser(); got != "alice@example.com" {
		t.Errorf("CodaUser() = %q", got)
	}

	bare := Identifier{Name: "alice"}
	if got := bare.Principal(); got != "alice" {
		t.Errorf("bare Principal() = %q", got)
	}
	if bare.HasRealm() {
		t.Error("bare identifier should not have a realm")
	}
}

func TestValidationErrorNotice(t *testing.T) {
	tests := []struct {
		err  *ValidationError
		want string
	}{
		{&ValidationError{Role: RoleKrb5, Err: ErrMalformedIdentifier}, "Invalid Kerberos username"},
		{&ValidationError{Role: RoleLocal, Err: ErrRealmNotAllowed}, "Invalid username"},
		{&ValidationError{Role: RoleLocal, Err: ErrReservedUser}, "Cannot use a reserved username"},
		{&ValidationError{Role: RoleLocal, Err: ErrBlockedUser}, "Local username blocked by administrator"},
		{&ValidationError{Role: RoleCoda, Err: ErrInvalidSecret}, "Invalid Coda password"},
	}

	for _, tc := range tests {
		if got := tc.err.Notice(); got != tc.want {
			t.Errorf("Notice(%v) = %q, want %q", tc.err.Err, got, tc.want)
		}
	}
}
