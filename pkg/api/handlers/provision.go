package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/webauthd/internal/logger"
	"github.com/marmos91/webauthd/pkg/api/session"
	"github.com/marmos91/webauthd/pkg/identity"
	"github.com/marmos91/webauthd/pkg/provision"
	"github.com/marmos91/webauthd/pkg/settings"
)

// Provisioner runs one provisioning submission. Implemented by
// provision.Orchestrator.
type Provisioner interface {
	Provision(ctx context.Context, sub provision.Submission) *provision.Result
	SecondaryEnabled() bool
}

// ProvisionHandler serves the two-step web flow: pick a username on the
// index page, then submit credentials on the per-user login page.
type ProvisionHandler struct {
	provisioner Provisioner
	validator   *identity.Validator
	settings    *settings.Store
	flash       *session.Flash
}

// NewProvisionHandler creates the web-flow handler.
func NewProvisionHandler(provisioner Provisioner, validator *identity.Validator, store *settings.Store, flash *session.Flash) *ProvisionHandler {
	return &ProvisionHandler{
		provisioner: provisioner,
		validator:   validator,
		settings:    store,
		flash:       flash,
	}
}

// loginView is the payload rendered on the login and success pages.
type loginView struct {
	Username    string `json:"username"`
	NewUser     bool   `json:"new_user"`
	Krb5User    string `json:"krb5_user"`
	CodaUser    string `json:"coda_user"`
	CodaEnabled bool   `json:"coda_enabled"`
}

// Index serves GET /: the username entry page.
func (h *ProvisionHandler) Index(w http.ResponseWriter, r *http.Request) {
	notices := h.flash.Pop(w, r)
	writeJSON(w, http.StatusOK, okResponse(map[string]bool{
		"coda_enabled": h.provisioner.SecondaryEnabled(),
	}, notices))
}

// IndexSubmit serves POST /: validate the bare local username and send the
// user to their login page.
func (h *ProvisionHandler) IndexSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Status: "error", Error: "malformed form"})
		return
	}

	username := r.PostFormValue("username")
	id, err := h.validator.Validate(username, identity.RoleLocal, false)
	if err != nil {
		h.redirectWithNotices(w, r, "/", []string{validationNotice(err)})
		return
	}

	http.Redirect(w, r, "/l/"+id.Name, http.StatusSeeOther)
}

// Login serves GET /l/{username}: the per-user credential page, showing
// which identities are already linked.
func (h *ProvisionHandler) Login(w http.ResponseWriter, r *http.Request) {
	id, err := h.validator.Validate(chi.URLParam(r, "username"), identity.RoleLocal, false)
	if err != nil {
		h.redirectWithNotices(w, r, "/", []string{validationNotice(err)})
		return
	}

	rec := h.settings.Load(id.Name)
	notices := h.flash.Pop(w, r)
	writeJSON(w, http.StatusOK, okResponse(h.view(id.Name, rec), notices))
}

// LoginSubmit serves POST /l/{username}: one provisioning submission.
//
// A completed workflow redirects to the success page; an aborted one
// redirects back to the login page. Both carry the per-step notices in the
// flash cookie.
func (h *ProvisionHandler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Status: "error", Error: "malformed form"})
		return
	}

	_, codaPresent := r.PostForm["coda_username"]
	sub := provision.Submission{
		Username:      username,
		Krb5Username:  r.PostFormValue("krb5_username"),
		Krb5Password:  r.PostFormValue("krb5_password"),
		LocalPassword: r.PostFormValue("samba_password"),
		CodaPresent:   codaPresent,
		CodaUsername:  r.PostFormValue("coda_username"),
		CodaPassword:  r.PostFormValue("coda_password"),
	}

	res := h.provisioner.Provision(r.Context(), sub)
	if !res.OK() {
		notices := append(res.Notices, res.FailureNotice())
		h.redirectWithNotices(w, r, "/l/"+username, notices)
		return
	}

	h.redirectWithNotices(w, r, "/a/"+res.Username, res.Notices)
}

// Success serves GET /a/{username}: the post-provisioning summary.
func (h *ProvisionHandler) Success(w http.ResponseWriter, r *http.Request) {
	id, err := h.validator.Validate(chi.URLParam(r, "username"), identity.RoleLocal, false)
	if err != nil {
		h.redirectWithNotices(w, r, "/", []string{validationNotice(err)})
		return
	}

	rec := h.settings.Load(id.Name)
	notices := h.flash.Pop(w, r)
	writeJSON(w, http.StatusOK, okResponse(h.view(id.Name, rec), notices))
}

func (h *ProvisionHandler) view(username string, rec settings.Record) loginView {
	return loginView{
		Username:    username,
		NewUser:     rec.NewUser,
		Krb5User:    rec.Krb5User,
		CodaUser:    rec.CodaUser,
		CodaEnabled: h.provisioner.SecondaryEnabled(),
	}
}

func (h *ProvisionHandler) redirectWithNotices(w http.ResponseWriter, r *http.Request, location string, notices []string) {
	if err := h.flash.Set(w, notices); err != nil {
		// The redirect still works; only the messages are lost.
		logger.Error("failed to set flash cookie", "error", err)
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// validationNotice renders a validation error as a user notice.
func validationNotice(err error) string {
	var ve *identity.ValidationError
	if errors.As(err, &ve) {
		return ve.Notice()
	}
	return "Invalid username"
}
