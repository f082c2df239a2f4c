package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/docchat/internal/cli"
	"github.com/cloo-solutions/docchat/internal/cli/admin"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "docchatd",
		Short: "Docchat daemon and CLI",
		Long: `Docchat answers questions about uploaded PDF and DOCX documents.

Configuration is read from DOCCHAT_* environment variables and an optional .env file.
DOCCHAT_DATABASE_URL selects PostgreSQL (postgres://...) or an embedded SQLite file (sqlite://path).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.AskCmd())
	rootCmd.AddCommand(admin.StatsCmd())
	rootCmd.AddCommand(admin.SnapshotCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	handled, err := cli.HandleHelpJSON(rootCmd, os.Args[1:])
	if !handled {
		err = rootCmd.Execute()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
