package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/webauthd/internal/cli/output"
	"github.com/marmos91/webauthd/pkg/config"
	"github.com/marmos91/webauthd/pkg/identity"
	"github.com/marmos91/webauthd/pkg/settings"
)

var usersAll bool

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List provisionable accounts and their linked identities",
	Long: `List local accounts together with their provisioning records.

Reserved accounts (below the configured minimum user id) are hidden unless
--all is given. The KERBEROS and CODA columns show the external identities
recorded by the last successful provisioning run; a PENDING state means the
account exists but has never completed provisioning.`,
	RunE: runUsers,
}

func init() {
	usersCmd.Flags().BoolVarP(&usersAll, "all", "a", false, "Include reserved accounts")
}

func runUsers(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	accounts := identity.NewPasswdStore(cfg.Policy.PasswdPath)
	settingsStore := settings.NewStore(accounts)

	list, err := accounts.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	table := output.NewTableData("Username", "UID", "Kerberos", "Coda", "State")
	for _, acct := range list {
		if !usersAll && acct.UID < cfg.Policy.MinUserID {
			continue
		}

		rec := settingsStore.Load(acct.Name)
		state := "provisioned"
		if rec.NewUser {
			state = "pending"
		}
		table.AddRow(acct.Name, strconv.FormatUint(uint64(acct.UID), 10), rec.Krb5User, rec.CodaUser, state)
	}

	if len(table.Rows()) == 0 {
		fmt.Println("No accounts found.")
		return nil
	}

	return output.PrintTable(os.Stdout, table)
}
