package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Anix003/aura-seer/cmd/internal/app"

	"github.com/spf13/cobra"
)

func main() {
	if err := app.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	rootCmd := &cobra.Command{
		Use:          "aura-seer",
		Short:        "Telemedicine chat delivery server",
		SilenceUsage: true,
		// Bare invocation serves.
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Serve()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Serve()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables or indexes for the configured store and apply AURA_DIRECTORY_SEED",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate()
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")

			tok, exp, err := app.IssueToken(user, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id (required)")
	cmd.Flags().String("role", "patient", "role claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
