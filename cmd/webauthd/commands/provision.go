package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/webauthd/internal/cli/prompt"
	"github.com/marmos91/webauthd/pkg/config"
	"github.com/marmos91/webauthd/pkg/provision"
)

var provisionCmd = &cobra.Command{
	Use:   "provision [username]",
	Short: "Provision a local account interactively",
	Long: `Run the provisioning workflow from the terminal instead of the web form.

Prompts for the same fields as the web flow: the Kerberos identity and
password, the local SMB password, and (when the Coda backend is enabled)
the Coda identity. Leaving the local SMB password empty for a new account
reuses the Kerberos password.

Examples:
  # Provision interactively
  webauthd provision

  # Provision a specific account
  webauthd provision alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProvision,
}

func runProvision(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	rt := buildRuntime(cfg)

	sub, err := promptSubmission(rt, args)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("Aborted.")
			return nil
		}
		return err
	}

	res := rt.orch.Provision(context.Background(), sub)
	for _, notice := range res.Notices {
		fmt.Println(notice)
	}
	if !res.OK() {
		return errors.New(res.FailureNotice())
	}

	fmt.Printf("\nAccount %q is ready.\n", res.Username)
	return nil
}

// promptSubmission collects the provisioning form fields interactively.
func promptSubmission(rt *runtime, args []string) (provision.Submission, error) {
	var sub provision.Submission
	var err error

	if len(args) > 0 {
		sub.Username = args[0]
	} else {
		sub.Username, err = prompt.Input("Local username", "")
		if err != nil {
			return sub, err
		}
	}

	rec := rt.settings.Load(sub.Username)
	if rec.NewUser {
		sub.Krb5Username, err = prompt.Input("Kerberos identity (user@REALM)", "")
		if err != nil {
			return sub, err
		}
	} else {
		fmt.Printf("Authenticating as %s\n", rec.Krb5User)
	}

	sub.Krb5Password, err = prompt.Password("Kerberos password")
	if err != nil {
		return sub, err
	}

	localLabel := "New local SMB password"
	if rec.NewUser {
		localLabel = "Local SMB password (empty to reuse Kerberos)"
	}
	sub.LocalPassword, err = prompt.Password(localLabel)
	if err != nil {
		return sub, err
	}

	if rt.orch.SecondaryEnabled() {
		sub.CodaUsername, err = prompt.Input("Coda identity (user@realm)", rec.CodaUser)
		if err != nil {
			return sub, err
		}
		if sub.CodaUsername != "" {
			sub.CodaPresent = true
			sub.CodaPassword, err = prompt.Password("Coda password (empty to skip token login)")
			if err != nil {
				return sub, err
			}
		}
	}

	return sub, nil
}
