package commands

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/isometry/identity-from-directory/internal/metrics"
	"github.com/isometry/identity-from-directory/internal/plugin"
	"github.com/isometry/identity-from-directory/internal/store"
)

var metricsTextfile string

var loginCmd = &cobra.Command{
	Use:   "login USERNAME...",
	Short: "Synchronise identities as a login would",
	Long: `Runs the login_after synchronisation for each USERNAME: looks the login up
in the directory and creates, updates and (with delete_unmanaged) deletes
identities in the identity store.

Failures are reported but, as at a real login, never make the command fail
for the remaining users.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run (overrides metrics.textfile)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	p, err := plugin.New(plugin.Options{
		Config:        cfg,
		Store:         s,
		OpenDirectory: plugin.LDAPOpener(cfg),
		Metrics:       metrics.New(reg),
	})
	if err != nil {
		return err
	}
	if err := p.Ready(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; logins will not be synchronised\n", err)
	} else {
		tflog.Debug(ctx, "Configuration loaded", cfg.LogFields())
	}

	var rows [][]string
	for _, username := range args {
		out := p.LoginAfter(ctx, plugin.NewSession(), plugin.LoginArgs{Username: username})
		rows = append(rows, resultRows(username, out.Result)...)
	}
	printTable(cmd.OutOrStdout(), []string{"User", "Action", "Identity", "Email", "Standard", "Result"}, rows)

	path := cfg.Metrics.Textfile
	if metricsTextfile != "" {
		path = metricsTextfile
	}
	if path != "" {
		if err := metrics.WriteTextfile(path, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	return nil
}

func resultRows(username string, res *plugin.Result) [][]string {
	if res == nil {
		return nil
	}
	if res.Skipped != "" && len(res.Mutations) == 0 {
		return [][]string{{username, "-", "", "", "", res.Skipped}}
	}
	if len(res.Mutations) == 0 {
		return [][]string{{username, "-", "", "", "", "up to date"}}
	}

	rows := make([][]string, 0, len(res.Mutations))
	for i, m := range res.Mutations {
		id := ""
		if m.ID != 0 {
			id = strconv.FormatInt(m.ID, 10)
		}
		outcome := "applied"
		switch {
		case i >= len(res.Outcomes):
			// planned but never handed to the store
			outcome = "not applied"
		case res.Outcomes[i] != nil:
			outcome = "failed: " + res.Outcomes[i].Error()
		}
		rows = append(rows, []string{username, m.Action.String(), id, m.Record.Email, yesNo(m.Record.Standard), outcome})
	}
	return rows
}

