package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/isometry/identity-from-directory/internal/identity"
	"github.com/isometry/identity-from-directory/internal/ldap"
	"github.com/isometry/identity-from-directory/internal/plugin"
)

var (
	lookupFields    []string
	lookupSubstring bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup TERM",
	Short: "Show the directory records a search returns",
	Long: `Searches the directory the way a login does and prints every record with
its fieldmap keys, followed by the addresses identity sync derives from it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		if err := ready(cfg); err != nil {
			return err
		}

		dir, err := plugin.LDAPOpener(cfg)(ctx, ldap.NewLoginVars(args[0], cfg.MailDomain))
		if err != nil {
			return err
		}
		defer dir.Close()

		fields := lookupFields
		if len(fields) == 0 {
			fields = []string{ldap.AllFields}
		}
		records, err := dir.Search(ctx, fields, args[0], !lookupSubstring)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for i, rec := range records {
			rows := make([][]string, 0, len(rec.Attributes))
			for _, a := range rec.Attributes {
				rows = append(rows, []string{a.Name, strings.Join(identity.Values(a.Value), "\n")})
			}
			fmt.Fprintf(w, "Record %d\n", i+1)
			printTable(w, []string{"Key", "Value"}, rows)

			user := identity.ExtractUserData(rec, identity.ExtractOptions{HandleProxyAddresses: cfg.HandleProxyAddresses})
			emails := identity.CollectEmails(rec, user.PrimaryEmail, identity.CollectOptions{HandleProxyAddresses: cfg.HandleProxyAddresses})
			fmt.Fprintf(w, "Addresses: %s\n\n", strings.Join(emails, ", "))
		}
		fmt.Fprintf(w, "%d record(s)\n", len(records))
		return nil
	},
}

func init() {
	lookupCmd.Flags().StringSliceVar(&lookupFields, "fields", nil, "fields to search (fieldmap keys or attributes); default search_fields")
	lookupCmd.Flags().BoolVar(&lookupSubstring, "substring", false, "match fields containing TERM instead of equal to it")
}
