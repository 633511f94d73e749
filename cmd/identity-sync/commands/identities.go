package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/isometry/identity-from-directory/internal/store"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities USERNAME",
	Short: "List a user's identities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, err := setup(cmd)
		if err != nil {
			return err
		}

		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer s.Close()

		userID, err := s.EnsureUser(ctx, args[0])
		if err != nil {
			return err
		}
		list, err := s.Identities(ctx, userID)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(list))
		for _, i := range list {
			rows = append(rows, []string{
				strconv.FormatInt(i.ID, 10),
				i.Email,
				i.Name,
				i.Organization,
				yesNo(i.Standard),
				yesNo(i.HTMLSignature),
				i.Changed.Format("2006-01-02 15:04:05"),
			})
		}
		printTable(cmd.OutOrStdout(), []string{"ID", "Email", "Name", "Organization", "Standard", "HTML", "Changed"}, rows)
		return nil
	},
}
