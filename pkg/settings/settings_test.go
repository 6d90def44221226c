package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/webauthd/pkg/identity"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	home := t.TempDir()
	accounts := identity.NewStaticStore(&identity.Account{
		Name:    "bob",
		UID:     uint32(os.Getuid()),
		GID:     uint32(os.Getgid()),
		HomeDir: home,
	})
	return NewStore(accounts), home
}

func TestLoadMissingRecordIsFresh(t *testing.T) {
	store, _ := testStore(t)

	rec := store.Load("bob")
	assert.True(t, rec.NewUser)
	assert.Equal(t, "bob", rec.Krb5User)
	assert.Equal(t, "bob", rec.CodaUser)
}

func TestLoadUnknownAccountIsFresh(t *testing.T) {
	store, _ := testStore(t)

	rec := store.Load("stranger")
	assert.True(t, rec.NewUser)
	assert.Equal(t, "stranger", rec.Krb5User)
}

func TestLoadCorruptRecordIsFresh(t *testing.T) {
	store, home := testStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, FileName), []byte("{nope"), 0600))

	rec := store.Load("bob")
	assert.True(t, rec.NewUser)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, home := testStore(t)

	saved := Record{Krb5User: "bob@EXAMPLE.COM", CodaUser: "bob@coda.example.org"}
	require.NoError(t, store.Save("bob", saved))

	rec := store.Load("bob")
	assert.False(t, rec.NewUser)
	assert.Equal(t, "bob@EXAMPLE.COM", rec.Krb5User)
	assert.Equal(t, "bob@coda.example.org", rec.CodaUser)

	info, err := os.Stat(filepath.Join(home, FileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSaveOverwritesNotMerges(t *testing.T) {
	store, home := testStore(t)

	require.NoError(t, store.Save("bob", Record{Krb5User: "bob@A.COM", CodaUser: "bob@a.com"}))
	require.NoError(t, store.Save("bob", Record{Krb5User: "bob@B.COM"}))

	rec := store.Load("bob")
	assert.Equal(t, "bob@B.COM", rec.Krb5User)
	assert.Equal(t, "", rec.CodaUser)

	// new_user must be absent from the stored form once cleared.
	data, err := os.ReadFile(filepath.Join(home, FileName))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	_, present := raw["new_user"]
	assert.False(t, present, "new_user key should be omitted when false")
}

func TestSaveUnknownAccountFails(t *testing.T) {
	store, _ := testStore(t)
	assert.Error(t, store.Save("stranger", Record{}))
}
