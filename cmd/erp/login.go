package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if password == "" {
				password = os.Getenv("ERP_PASSWORD")
			}
			if password == "" {
				var err error
				password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Senha")
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
			}

			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			var ok bool
			_ = withSpinner("Entrando...", func() error {
				ok = a.guard.Login(ctx, email, password)
				return nil
			})
			if !ok {
				return fmt.Errorf("login failed: usuário e/ou senha inválido")
			}

			pterm.Success.Printfln("Conectado como %s", a.guard.Identity().Label())
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", os.Getenv("ERP_EMAIL"), "Login e-mail (env: ERP_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (env: ERP_PASSWORD; prompted when unset)")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			a.guard.Logout()
			pterm.Success.Println("Sessão encerrada")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Validate the stored session and show who is signed in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			if !a.guard.CheckAuth(ctx) {
				return errNotSignedIn(a)
			}

			snap := a.guard.Snapshot()
			switch outputFormat {
			case "json":
				return writeJSON(os.Stdout, snap.Identity)
			case "table":
				writeIdentity(os.Stdout, snap.Identity)
				return nil
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}
}
