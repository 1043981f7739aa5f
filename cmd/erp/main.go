package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	apiURL       string
	identityURL  string
	tokenFile    string
	outputFormat string
)

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "erp",
		Short:         "ERP administration CLI",
		Long:          `erp signs in to the ERP backend and browses its registers from the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("ERP_CONFIG"), "Path to config file (env: ERP_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "REST API base URL (env: ERP_API_URL)")
	rootCmd.PersistentFlags().StringVar(&identityURL, "identity-url", "", "Identity service URL (env: ERP_IDENTITY_URL)")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "File the session token is kept in (env: ERP_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}
