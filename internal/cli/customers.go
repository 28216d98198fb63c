package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/receipt-desk/internal/adapters/backendapi"
	"github.com/eshaffer321/receipt-desk/internal/application/customers"
	"github.com/eshaffer321/receipt-desk/internal/domain/directory"
)

// cliSession keys the directory state of command line runs.
const cliSession = "cli"

// CustomerFlags holds the CLI flags shared by the customers commands.
type CustomerFlags struct {
	Token    string
	Username string
	Filters  directory.Filters
	Output   string
}

// HasFilters reports whether any search filter was given.
func (f CustomerFlags) HasFilters() bool {
	return f.Filters != directory.Filters{}
}

func (f *CustomerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Token, "token", "", "Backend token (default $RECEIPT_DESK_TOKEN)")
	cmd.Flags().StringVar(&f.Username, "username", "", "Log in as this user; password from $RECEIPT_DESK_PASSWORD")
	cmd.Flags().StringVar(&f.Filters.Days, "days", "", "Only customers who ordered in the last N days")
	cmd.Flags().StringVar(&f.Filters.MinOrders, "min-orders", "", "Minimum number of orders")
	cmd.Flags().StringVar(&f.Filters.DeliveryPartner, "partner", "", "Delivery partner slug or name")
	cmd.Flags().StringVar(&f.Filters.MinItemsInOrder, "min-items", "", "Minimum items in an order")
}

func newCustomersCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Browse and export the customer directory",
	}
	cmd.AddCommand(newCustomersListCommand(opts), newCustomersExportCommand(opts))
	return cmd
}

func newCustomersListCommand(opts *rootOptions) *cobra.Command {
	flags := &CustomerFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List customers, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app()
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			token, err := resolveToken(cmd.Context(), app.Clients.Backend, flags)
			if err != nil {
				return err
			}
			return RunCustomersList(cmd.Context(), cmd.OutOrStdout(), app.Customers, token, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newCustomersExportCommand(opts *rootOptions) *cobra.Command {
	flags := &CustomerFlags{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the customer list as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app()
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			token, err := resolveToken(cmd.Context(), app.Clients.Backend, flags)
			if err != nil {
				return err
			}
			return RunCustomersExport(cmd.Context(), cmd.OutOrStdout(), app.Customers, token, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&flags.Output, "output", "o", customers.ExportFilename, "File to write, or - for stdout")
	return cmd
}

// RunCustomersList loads or searches the directory and prints it.
func RunCustomersList(ctx context.Context, w io.Writer, svc *customers.Service, token string, flags *CustomerFlags) error {
	var (
		view customers.View
		err  error
	)
	if flags.HasFilters() {
		view, err = svc.Search(ctx, cliSession, token, flags.Filters)
	} else {
		view, err = svc.Load(ctx, cliSession, token)
	}
	if err != nil {
		return err
	}

	PrintHeader(w, "customers", view.Filters.DeliveryPartner)
	PrintCustomers(w, view.Customers)
	return nil
}

// RunCustomersExport streams the CSV export to flags.Output.
func RunCustomersExport(ctx context.Context, stdout io.Writer, svc *customers.Service, token string, flags *CustomerFlags) error {
	exp, err := svc.Export(ctx, cliSession, token, flags.Filters)
	if err != nil {
		return err
	}
	defer exp.Body.Close()

	if flags.Output == "-" {
		_, err := io.Copy(stdout, exp.Body)
		return err
	}

	out, err := os.Create(flags.Output)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, exp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", flags.Output, err)
	}

	fmt.Fprintf(stdout, "Wrote %d bytes to %s\n", n, flags.Output)
	return nil
}

// Loginer exchanges credentials for a backend token.
type Loginer interface {
	Login(ctx context.Context, creds backendapi.Credentials) (string, error)
}

// resolveToken prefers --token, then $RECEIPT_DESK_TOKEN, then a login with
// --username and $RECEIPT_DESK_PASSWORD.
func resolveToken(ctx context.Context, backend Loginer, flags *CustomerFlags) (string, error) {
	if flags.Token != "" {
		return flags.Token, nil
	}
	if token := os.Getenv("RECEIPT_DESK_TOKEN"); token != "" {
		return token, nil
	}
	if flags.Username == "" {
		return "", errors.New("no credentials: pass --token or --username")
	}
	return backend.Login(ctx, backendapi.Credentials{
		Username: flags.Username,
		Password: os.Getenv("RECEIPT_DESK_PASSWORD"),
	})
}
