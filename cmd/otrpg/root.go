// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the otrpg CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otrpg",
		Short: "Open Table RPG - accounts and game lobbies",
		Long: `otrpg serves the account, session, and lobby API for hosted
tabletop sessions: GM and player registration, cookie sessions,
lobbies with a single DM, and single-use email invites.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("otrpg %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
