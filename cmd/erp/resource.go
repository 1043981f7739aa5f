package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/wrcelo/erpwebui/pkg/apiclient"
	"github.com/wrcelo/erpwebui/pkg/session"
)

func resourceNames() []string {
	names := make([]string, 0, len(apiclient.Resources))
	for _, r := range apiclient.Resources {
		names = append(names, string(r))
	}
	return names
}

func listCmd() *cobra.Command {
	var query string
	var limit int

	cmd := &cobra.Command{
		Use:       "list <resource>",
		Short:     "List the records of a register",
		Args:      cobra.ExactArgs(1),
		ValidArgs: resourceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiclient.ParseResource(args[0])
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			if err := a.requireSession(ctx); err != nil {
				return err
			}
			records, err := a.client.List(ctx, res)
			if err != nil {
				return describeError(a, fmt.Sprintf("failed to list %s", res), err)
			}

			records = filterRecords(records, query)
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			if len(records) == 0 {
				fmt.Println("Nenhum registro encontrado")
				return nil
			}

			switch outputFormat {
			case "json":
				return writeJSON(os.Stdout, records)
			case "table":
				return writeTable(os.Stdout, records)
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Only show records containing this text")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of records to show")

	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <resource> <id>",
		Short: "Show a single record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiclient.ParseResource(args[0])
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			if err := a.requireSession(ctx); err != nil {
				return err
			}
			rec, err := a.client.Fetch(ctx, res, args[1])
			if err != nil {
				return describeError(a, fmt.Sprintf("failed to get %s %s", res, args[1]), err)
			}

			switch outputFormat {
			case "json":
				return writeJSON(os.Stdout, rec)
			case "table":
				writeRecord(os.Stdout, rec)
				return nil
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}
}

func deleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <resource> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiclient.ParseResource(args[0])
			if err != nil {
				return err
			}
			id := args[1]

			if !yes {
				confirmed, err := pterm.DefaultInteractiveConfirm.Show(fmt.Sprintf("Remover %s %s?", res.Title(), id))
				if err != nil {
					return fmt.Errorf("failed to read confirmation: %w", err)
				}
				if !confirmed {
					return nil
				}
			}

			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if err := a.client.Remove(ctx, res, id); err != nil {
				return describeError(a, fmt.Sprintf("failed to delete %s %s", res, id), err)
			}
			pterm.Success.Printfln("%s %s removido", res.Title(), id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func createCmd() *cobra.Command {
	var data, file string

	cmd := &cobra.Command{
		Use:   "create <resource>",
		Short: "Create a record from a JSON object",
		Example: `  erp create cores --data '{"nome":"Azul"}'
  erp create clientes -f cliente.json`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: resourceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiclient.ParseResource(args[0])
			if err != nil {
				return err
			}
			rec, err := readRecord(cmd.InOrStdin(), data, file)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			if err := a.requireSession(ctx); err != nil {
				return err
			}
			created, err := a.client.Create(ctx, res, rec)
			if err != nil {
				return describeError(a, fmt.Sprintf("failed to create %s", res), err)
			}

			if id := created.ID(); id != "" {
				pterm.Success.Printfln("%s %s criado", res.Title(), id)
			} else {
				pterm.Success.Printfln("%s criado", res.Title())
			}
			if len(created) == 0 {
				return nil
			}
			switch outputFormat {
			case "json":
				return writeJSON(os.Stdout, created)
			case "table":
				writeRecord(os.Stdout, created)
				return nil
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Record as a JSON object")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the JSON object from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("data", "file")

	return cmd
}

func updateCmd() *cobra.Command {
	var data, file string

	cmd := &cobra.Command{
		Use:   "update <resource> <id>",
		Short: "Replace a record with a JSON object",
		Example: `  erp update cores 3 --data '{"nome":"Verde"}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiclient.ParseResource(args[0])
			if err != nil {
				return err
			}
			id := args[1]
			rec, err := readRecord(cmd.InOrStdin(), data, file)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if err := a.client.Update(ctx, res, id, rec); err != nil {
				return describeError(a, fmt.Sprintf("failed to update %s %s", res, id), err)
			}
			pterm.Success.Printfln("%s %s atualizado", res.Title(), id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Record as a JSON object")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the JSON object from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("data", "file")

	return cmd
}

// requireSession validates the stored token with the backend before a
// command touches a register.
func (a *app) requireSession(ctx context.Context) error {
	if !a.guard.CheckAuth(ctx) {
		return errNotSignedIn(a)
	}
	return nil
}

// describeError turns an API failure into a command error. A 401 has already
// ended the session and been announced by the notifier.
func describeError(a *app, what string, err error) error {
	if apiclient.IsUnauthorized(err) {
		return errNotSignedIn(a)
	}
	if apiclient.IsConnectionError(err) {
		return fmt.Errorf("%s: connection failed (%s)", what, a.cfg.API.BaseURL)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func errNotSignedIn(a *app) error {
	switch a.guard.Snapshot().Reason {
	case session.ReasonExpired:
		return fmt.Errorf("session expired; run 'erp login'")
	case session.ReasonRejected:
		return fmt.Errorf("session could not be validated (%s); run 'erp login'", a.cfg.API.BaseURL)
	default:
		return fmt.Errorf("not signed in; run 'erp login'")
	}
}
