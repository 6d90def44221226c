package session

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "secret")

	secret, err := LoadOrCreateSecret(path)
	require.NoError(t, err)
	assert.Len(t, secret, 64, "hex-encoded 32 random bytes")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Second load returns the same secret, not a fresh one.
	again, err := LoadOrCreateSecret(path)
	require.NoError(t, err)
	assert.Equal(t, secret, again)
}

func TestLoadOrCreateSecretRejectsShort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("too short"), 0600))

	_, err := LoadOrCreateSecret(path)
	assert.Error(t, err)
}

func popRequest(t *testing.T, w *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName && c.MaxAge >= 0 {
			req.AddCookie(c)
		}
	}
	return req
}

func TestFlashRoundTrip(t *testing.T) {
	flash := NewFlash([]byte("0123456789abcdef0123456789abcdef"))
	notices := []string{"Successfully authenticated alice@EXAMPLE.COM", "Created Local SMB user alice"}

	w := httptest.NewRecorder()
	require.NoError(t, flash.Set(w, notices))

	popped := flash.Pop(httptest.NewRecorder(), popRequest(t, w))
	assert.Equal(t, notices, popped)
}

func TestFlashPopClearsCookie(t *testing.T) {
	flash := NewFlash([]byte("0123456789abcdef0123456789abcdef"))

	w := httptest.NewRecorder()
	require.NoError(t, flash.Set(w, []string{"notice"}))

	clear := httptest.NewRecorder()
	flash.Pop(clear, popRequest(t, w))

	var cleared bool
	for _, c := range clear.Result().Cookies() {
		if c.Name == CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "pop must expire the cookie")
}

func TestFlashRejectsTamperedCookie(t *testing.T) {
	flash := NewFlash([]byte("0123456789abcdef0123456789abcdef"))
	other := NewFlash([]byte("ffffffffffffffffffffffffffffffff"))

	w := httptest.NewRecorder()
	require.NoError(t, other.Set(w, []string{"forged"}))

	popped := flash.Pop(httptest.NewRecorder(), popRequest(t, w))
	assert.Nil(t, popped)
}

func TestFlashEmptyNoticesSetNothing(t *testing.T) {
	flash := NewFlash([]byte("0123456789abcdef0123456789abcdef"))

	w := httptest.NewRecorder()
	require.NoError(t, flash.Set(w, nil))
	assert.Empty(t, w.Result().Cookies())
}
