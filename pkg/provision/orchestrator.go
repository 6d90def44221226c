// Package provision implements the credential-provisioning workflow: validate
// the submitted identifiers and secrets, authenticate against the primary
// realm, create or update the local account, place the credential cache, run
// the optional secondary login, and persist the per-account record.
//
// Each submission is one synchronous unit of work. The workflow holds no state
// across submissions; the only shared resources are the account store and the
// per-account record file, and the one anticipated race (two submissions
// creating the same new account) is detected by the account manager and
// surfaced as retryable.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/webauthd/internal/logger"
	"github.com/marmos91/webauthd/internal/telemetry"
	"github.com/marmos91/webauthd/pkg/backend"
	"github.com/marmos91/webauthd/pkg/identity"
	"github.com/marmos91/webauthd/pkg/settings"
)

// Metrics records workflow outcomes. Implementations must be safe for
// concurrent use; a nil Metrics disables recording.
type Metrics interface {
	ObserveSubmission(outcome string, duration time.Duration)
	ObserveStepFailure(step string)
}

// Submission carries the raw form fields of one provisioning request.
// Nothing in here is validated yet.
type Submission struct {
	Username      string
	Krb5Username  string
	Krb5Password  string
	LocalPassword string

	// CodaPresent distinguishes "field absent from the form" from "field
	// submitted empty": only a present field triggers the secondary step.
	CodaPresent  bool
	CodaUsername string
	CodaPassword string
}

// Result is the outcome of one submission.
//
// Err is non-nil only when the workflow aborted; the best-effort steps
// (cache install, secondary login) report their failures through Notices and
// Degraded instead. Notices accumulate one entry per completed or failed
// step, in order, so the user can tell which independent operation needs
// retrying.
type Result struct {
	Username string
	NewUser  bool
	Krb5User string
	CodaUser string

	Notices  []string
	Degraded bool
	Err      error
}

// OK reports whether the workflow ran to completion, possibly degraded.
func (r *Result) OK() bool {
	return r.Err == nil
}

// Retryable reports whether resubmitting the same form may succeed without
// any change from the user.
func (r *Result) Retryable() bool {
	return errors.Is(r.Err, backend.ErrConcurrentCreation)
}

// FailureNotice renders the aborting error as a user-facing message.
// Returns "" when the workflow completed.
func (r *Result) FailureNotice() string {
	if r.Err == nil {
		return ""
	}

	var ve *identity.ValidationError
	if errors.As(r.Err, &ve) {
		return ve.Notice()
	}

	switch {
	case errors.Is(r.Err, backend.ErrCredentialsRejected):
		return "Username or password incorrect"
	case errors.Is(r.Err, backend.ErrConcurrentCreation):
		return "User already exists, try again"
	case errors.Is(r.Err, backend.ErrPasswordUpdateFailed):
		return "Failed to change local password"
	case errors.Is(r.Err, backend.ErrAccountCreateFailed):
		return "Failed to create local account"
	default:
		return "Provisioning failed, try again later"
	}
}

// Config wires an Orchestrator.
type Config struct {
	Validator *identity.Validator
	Accounts  identity.AccountStore
	Settings  *settings.Store
	Primary   backend.TicketIssuer
	Local     backend.AccountManager

	// Secondary is nil when the deployment has no secondary capability.
	Secondary backend.TokenIssuer

	// Metrics is optional.
	Metrics Metrics
}

// Orchestrator runs the provisioning workflow.
type Orchestrator struct {
	cfg Config
}

// New creates an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// SecondaryEnabled reports whether the deployment can issue secondary tokens.
func (o *Orchestrator) SecondaryEnabled() bool {
	return o.cfg.Secondary != nil
}

// Provision runs one submission through the workflow.
//
// Ordering and failure policy:
//  1. validate the local identifier and, for a new account, the primary
//     identifier (realm required); validate both secrets; abort on any
//     validation error before touching anything
//  2. authenticate against the primary realm (abort on rejection; nothing
//     has been created yet)
//  3. for a new account with no local password, substitute the primary
//     secret, telling the user
//  4. create or update the local account (abort on failure; a lost creation
//     race aborts retryably)
//  5. place the credential cache for the account: privilege-drop reissue
//     first, relocation of the temporary cache as fallback; failure degrades
//     but does not abort
//  6. when a secondary identity was submitted, validate it and log in;
//     failure degrades but does not abort
//  7. persist the provisioning record once steps 1-4 succeeded, even if
//     5 or 6 degraded
func (o *Orchestrator) Provision(ctx context.Context, sub Submission) *Result {
	ctx, span := telemetry.StartSpan(ctx, "provision.submit")
	defer span.End()

	start := time.Now()
	res := &Result{Username: sub.Username}

	outcome := o.run(ctx, sub, res)
	o.observeSubmission(outcome, time.Since(start))

	if res.Err != nil {
		telemetry.RecordError(ctx, res.Err)
		logger.Info("provisioning aborted",
			"username", sub.Username, "outcome", outcome, "error", res.Err)
	} else {
		logger.Info("provisioning completed",
			"username", res.Username, "new_user", res.NewUser,
			"degraded", res.Degraded)
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, sub Submission, res *Result) (outcome string) {
	// Step 1: validation. No process or filesystem effect before this passes.
	localID, err := o.cfg.Validator.Validate(sub.Username, identity.RoleLocal, false)
	if err != nil {
		res.Err = err
		return "validation_failed"
	}
	res.Username = localID.Name

	rec := o.cfg.Settings.Load(localID.Name)
	res.NewUser = rec.NewUser
	telemetry.SetAttributes(ctx,
		attribute.String("provision.username", localID.Name),
		attribute.Bool("provision.new_user", rec.NewUser))

	// The primary identity is fixed at account creation; later submissions
	// reuse the recorded one so it cannot drift.
	var krb5User string
	if rec.NewUser {
		primary, err := o.cfg.Validator.Validate(sub.Krb5Username, identity.RoleKrb5, true)
		if err != nil {
			res.Err = err
			return "validation_failed"
		}
		if !primary.HasRealm() {
			res.Err = &identity.ValidationError{Role: identity.RoleKrb5, Err: identity.ErrRealmRequired}
			return "validation_failed"
		}
		krb5User = primary.Principal()
	} else {
		krb5User = rec.Krb5User
	}
	res.Krb5User = krb5User

	krb5Pass, err := o.cfg.Validator.ValidateSecret(sub.Krb5Password, identity.RoleKrb5)
	if err != nil {
		res.Err = err
		return "validation_failed"
	}
	localPass, err := o.cfg.Validator.ValidateSecret(sub.LocalPassword, identity.RoleLocal)
	if err != nil {
		res.Err = err
		return "validation_failed"
	}

	// Step 2: primary authentication against a request-scoped cache.
	// The cache must be scrubbed on every exit path; relocation in step 5
	// empties it first, making the deferred scrub a no-op.
	cache, err := o.authenticate(ctx, krb5User, krb5Pass)
	if err != nil {
		res.Err = err
		return "auth_failed"
	}
	defer cache.Scrub()
	res.addNotice("Successfully authenticated %s", krb5User)

	// Step 3: documented convenience for first-time users, never silent.
	if rec.NewUser && localPass.IsEmpty() {
		res.addNotice("Using your Kerberos password for SMB authentication")
		localPass = krb5Pass
	}

	// Step 4: local account.
	acct, aborted := o.ensureAccount(ctx, localID.Name, localPass, rec.NewUser, res)
	if aborted != "" {
		return aborted
	}

	// Step 5: best-effort cache placement.
	o.installCache(ctx, cache, acct, krb5User, krb5Pass, res)

	// Step 6: best-effort secondary login.
	codaUser := o.secondaryLogin(ctx, acct, sub, res)
	res.CodaUser = codaUser

	// Step 7: the record is overwritten whole, not merged, and NewUser is
	// cleared for good.
	saved := settings.Record{Krb5User: krb5User, CodaUser: codaUser}
	if err := o.cfg.Settings.Save(localID.Name, saved); err != nil {
		logger.Error("failed to save provisioning record",
			"username", localID.Name, "error", err)
		o.observeStepFailure("settings")
		res.degrade("Failed to save authentication settings")
	}

	if res.Degraded {
		return "degraded"
	}
	return "ok"
}

func (o *Orchestrator) authenticate(ctx context.Context, krb5User string, krb5Pass identity.Secret) (*backend.CredCache, error) {
	ctx, span := telemetry.StartSpan(ctx, "provision.authenticate")
	defer span.End()

	cache, err := o.cfg.Primary.Authenticate(ctx, krb5User, krb5Pass)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	return cache, nil
}

// ensureAccount runs step 4 and resolves the resulting account. Returns a
// non-empty outcome label when the workflow must abort.
func (o *Orchestrator) ensureAccount(ctx context.Context, name string, pass identity.Secret, isNewUser bool, res *Result) (*identity.Account, string) {
	ctx, span := telemetry.StartSpan(ctx, "provision.ensure_account")
	defer span.End()

	created, err := o.cfg.Local.EnsureAccount(ctx, name, pass, isNewUser)
	if err != nil {
		telemetry.RecordError(ctx, err)
		res.Err = err
		if errors.Is(err, backend.ErrConcurrentCreation) {
			return nil, "conflict"
		}
		return nil, "account_failed"
	}

	switch created {
	case backend.OutcomeCreated:
		res.addNotice("Created Local SMB user %s", name)
	case backend.OutcomeUpdated:
		res.addNotice("Updated Local SMB password for %s", name)
	}

	acct, err := o.cfg.Accounts.Lookup(name)
	if err != nil {
		// The manager just reported success, so the account should resolve.
		res.Err = fmt.Errorf("%w: account %q not visible after provisioning: %v",
			backend.ErrAccountCreateFailed, name, err)
		return nil, "account_failed"
	}
	return acct, ""
}

// installCache runs step 5: reissue under the account first, fall back to
// relocating the authenticated temporary cache into the per-uid location.
func (o *Orchestrator) installCache(ctx context.Context, cache *backend.CredCache, acct *identity.Account, krb5User string, krb5Pass identity.Secret, res *Result) {
	ctx, span := telemetry.StartSpan(ctx, "provision.install_cache")
	defer span.End()

	err := o.cfg.Primary.Install(ctx, acct, krb5User, krb5Pass)
	if err != nil {
		logger.Warn("credential install under account failed, relocating temporary cache",
			"username", acct.Name, "error", err)
		err = o.cfg.Primary.Relocate(cache, acct)
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		o.observeStepFailure("install")
		res.degrade("Failed to obtain Kerberos credentials")
		return
	}
	res.addNotice("Obtained Kerberos credentials for %s", krb5User)
}

// secondaryLogin runs step 6 and returns the secondary identity to record.
// All failures degrade the result; none abort. A validated identity is
// recorded even when the password is invalid or the login fails; only a
// malformed identifier, which has nothing recordable, leaves it empty.
func (o *Orchestrator) secondaryLogin(ctx context.Context, acct *identity.Account, sub Submission, res *Result) string {
	if !sub.CodaPresent || o.cfg.Secondary == nil {
		return ""
	}

	ctx, span := telemetry.StartSpan(ctx, "provision.secondary_login")
	defer span.End()

	codaID, err := o.cfg.Validator.Validate(sub.CodaUsername, identity.RoleCoda, true)
	if err != nil {
		var ve *identity.ValidationError
		if errors.As(err, &ve) {
			res.degrade(ve.Notice())
		} else {
			res.degrade("Invalid Coda username")
		}
		o.observeStepFailure("secondary")
		return ""
	}
	codaPass, err := o.cfg.Validator.ValidateSecret(sub.CodaPassword, identity.RoleCoda)
	if err != nil {
		res.degrade("Invalid Coda password")
		o.observeStepFailure("secondary")
		return codaID.CodaUser()
	}

	codaUser := codaID.CodaUser()
	if codaPass.IsEmpty() {
		// An empty secondary password means "record the identity, skip the
		// login".
		return codaUser
	}

	if err := o.cfg.Secondary.Login(ctx, acct, codaUser, codaPass); err != nil {
		telemetry.RecordError(ctx, err)
		logger.Warn("secondary login failed", "username", acct.Name, "error", err)
		o.observeStepFailure("secondary")
		res.degrade("Failed to obtain Coda credentials")
		return codaUser
	}
	res.addNotice("Obtained Coda tokens for %s", codaUser)
	return codaUser
}

func (r *Result) addNotice(format string, args ...any) {
	r.Notices = append(r.Notices, fmt.Sprintf(format, args...))
}

func (r *Result) degrade(notice string) {
	r.Degraded = true
	r.Notices = append(r.Notices, notice)
}

func (o *Orchestrator) observeSubmission(outcome string, d time.Duration) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObserveSubmission(outcome, d)
	}
}

func (o *Orchestrator) observeStepFailure(step string) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObserveStepFailure(step)
	}
}
