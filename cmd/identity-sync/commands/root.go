// Package commands implements the identity-sync CLI.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"
	"github.com/spf13/cobra"

	"github.com/isometry/identity-from-directory/internal/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "identity-sync",
	Short: "Synchronise mail identities from LDAP / Active Directory",
	Long: `identity-sync keeps a user's mail identities (name, address, aliases,
organization and signature) in line with their directory record.

The login command runs the same synchronisation a webmail login triggers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR, OFF); overrides logging.level")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(identitiesCmd)
	rootCmd.AddCommand(lookupCmd)
}

// setup loads the configuration and installs the root logger on the
// command's context.
func setup(cmd *cobra.Command) (context.Context, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}

	ctx := tfsdklog.NewRootProviderLogger(cmd.Context(),
		tfsdklog.WithLogName("identity-sync"),
		tfsdklog.WithLevel(hclog.LevelFromString(strings.ToUpper(level))),
		tfsdklog.WithStderrFromInit(),
		tfsdklog.WithoutLocation(),
	)

	return ctx, cfg, nil
}

// ready checks readiness for commands that need a complete configuration.
func ready(cfg *config.Config) error {
	if err := cfg.Ready(); err != nil {
		return fmt.Errorf("configuration not usable: %w", err)
	}
	return nil
}
