package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/webauthd/pkg/api/handlers"
	"github.com/marmos91/webauthd/pkg/api/session"
	"github.com/marmos91/webauthd/pkg/identity"
	"github.com/marmos91/webauthd/pkg/provision"
	"github.com/marmos91/webauthd/pkg/settings"
)

type fakeProvisioner struct {
	result    *provision.Result
	secondary bool
	lastSub   provision.Submission
}

func (f *fakeProvisioner) Provision(ctx context.Context, sub provision.Submission) *provision.Result {
	f.lastSub = sub
	return f.result
}

func (f *fakeProvisioner) SecondaryEnabled() bool {
	return f.secondary
}

type testRig struct {
	router      http.Handler
	provisioner *fakeProvisioner
	store       *identity.StaticStore
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	store := identity.NewStaticStore(
		&identity.Account{Name: "alice", UID: 1001, GID: 1001, HomeDir: t.TempDir()},
	)
	validator := identity.NewValidator(identity.Policy{
		UserBlocklist: []string{"root"},
		MinUserID:     1000,
	}, store)
	provisioner := &fakeProvisioner{secondary: true}

	router := NewRouter(RouterDeps{
		Provisioner: provisioner,
		Validator:   validator,
		Settings:    settings.NewStore(store),
		Accounts:    store,
		Flash:       session.NewFlash([]byte("0123456789abcdef0123456789abcdef")),
	})

	return &testRig{router: router, provisioner: provisioner, store: store}
}

func (rig *testRig) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	rig.router.ServeHTTP(w, req)
	return w
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) handlers.Response {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// carryCookies copies the flash cookie from a redirect response to the
// follow-up request, like a browser would.
func carryCookies(from *httptest.ResponseRecorder, to *http.Request) {
	for _, c := range from.Result().Cookies() {
		if c.MaxAge >= 0 {
			to.AddCookie(c)
		}
	}
}

func TestIndex(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["coda_enabled"])
}

func TestIndexSubmitRedirectsToLogin(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do(postForm("/", url.Values{"username": {"alice"}}))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/l/alice", w.Header().Get("Location"))
}

func TestIndexSubmitInvalidUsername(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do(postForm("/", url.Values{"username": {"alice@example.com"}}))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	// Following the redirect surfaces the notice exactly once.
	follow := httptest.NewRequest(http.MethodGet, "/", nil)
	carryCookies(w, follow)
	resp := decodeResponse(t, rig.do(follow))
	assert.Equal(t, []string{"Invalid username"}, resp.Notices)
}

func TestLoginShowsRecord(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do(httptest.NewRequest(http.MethodGet, "/l/alice", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, true, data["new_user"], "no record on disk yet")
	assert.Equal(t, "alice", data["krb5_user"])
}

func TestLoginSubmitSuccess(t *testing.T) {
	rig := newTestRig(t)
	rig.provisioner.result = &provision.Result{
		Username: "alice",
		Krb5User: "alice@EXAMPLE.COM",
		Notices: []string{
			"Successfully authenticated alice@EXAMPLE.COM",
			"Created Local SMB user alice",
		},
	}

	w := rig.do(postForm("/l/alice", url.Values{
		"krb5_username": {"alice@example.com"},
		"krb5_password": {"hunter2"},
		"coda_username": {"alice@cs.example.com"},
		"coda_password": {"codapass"},
	}))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/a/alice", w.Header().Get("Location"))

	// The handler forwards the raw form as-is; validation belongs to the
	// workflow.
	assert.Equal(t, "alice", rig.provisioner.lastSub.Username)
	assert.True(t, rig.provisioner.lastSub.CodaPresent)
	assert.Equal(t, "hunter2", rig.provisioner.lastSub.Krb5Password)

	follow := httptest.NewRequest(http.MethodGet, "/a/alice", nil)
	carryCookies(w, follow)
	resp := decodeResponse(t, rig.do(follow))
	assert.Equal(t, rig.provisioner.result.Notices, resp.Notices)
}

func TestLoginSubmitCodaAbsent(t *testing.T) {
	rig := newTestRig(t)
	rig.provisioner.result = &provision.Result{Username: "alice"}

	rig.do(postForm("/l/alice", url.Values{
		"krb5_username": {"alice@example.com"},
		"krb5_password": {"hunter2"},
	}))
	assert.False(t, rig.provisioner.lastSub.CodaPresent,
		"absent field must not trigger the secondary step")
}

func TestLoginSubmitFailureRedirectsBack(t *testing.T) {
	rig := newTestRig(t)
	rig.provisioner.result = &provision.Result{
		Username: "alice",
		Err:      provisionTestErr{},
	}

	w := rig.do(postForm("/l/alice", url.Values{
		"krb5_username": {"alice@example.com"},
		"krb5_password": {"wrong"},
	}))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/l/alice", w.Header().Get("Location"))

	follow := httptest.NewRequest(http.MethodGet, "/l/alice", nil)
	carryCookies(w, follow)
	resp := decodeResponse(t, rig.do(follow))
	assert.Equal(t, []string{"Provisioning failed, try again later"}, resp.Notices)
}

type provisionTestErr struct{}

func (provisionTestErr) Error() string { return "backend exploded" }

func TestHealth(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = rig.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeResponse(t, w).Status)
}

func TestMetricsRoute(t *testing.T) {
	store := identity.NewStaticStore()
	validator := identity.NewValidator(identity.Policy{}, store)
	reg := prometheus.NewRegistry()

	router := NewRouter(RouterDeps{
		Provisioner: &fakeProvisioner{},
		Validator:   validator,
		Settings:    settings.NewStore(store),
		Accounts:    store,
		Flash:       session.NewFlash([]byte("0123456789abcdef0123456789abcdef")),
		Metrics:     reg,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Without a gatherer the route does not exist.
	routerNoMetrics := NewRouter(RouterDeps{
		Provisioner: &fakeProvisioner{},
		Validator:   validator,
		Settings:    settings.NewStore(store),
		Accounts:    store,
		Flash:       session.NewFlash([]byte("0123456789abcdef0123456789abcdef")),
	})
	w = httptest.NewRecorder()
	routerNoMetrics.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
