package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ry-diffusion/Tina/internal/api"
)

// callTimeout bounds request/response commands.
const callTimeout = 10 * time.Second

// run connects to the daemon and calls fn with a bounded context.
func run(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, c *api.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	c, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return fn(ctx, c)
}

func newAccountsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage accounts",
	}
	cmd.AddCommand(
		newAccountsListCommand(opts),
		newAccountsCreateCommand(opts),
		newAccountsDeleteCommand(opts),
	)
	return cmd
}

func newAccountsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				resp, err := c.ListAccounts(ctx)
				if err != nil {
					return err
				}
				return newPrinter(opts).print(resp.Accounts, func(w io.Writer) {
					fmt.Fprintln(w, "ID\tNAME\tPHONE\tPAIRED\tCREATED")
					for _, a := range resp.Accounts {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, deref(a.Name), deref(a.PhoneNumber), yesNo(a.PhoneNumber != nil), unixTime(a.CreatedAt))
					}
				})
			})
		},
	}
}

func newAccountsCreateCommand(opts *RootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create <account-id>",
		Short: "Create an account, or rename an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var namePtr *string
			if cmd.Flags().Changed("name") {
				namePtr = &name
			}
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				resp, err := c.CreateAccount(ctx, args[0], namePtr)
				if err != nil {
					return err
				}
				return newPrinter(opts).print(resp.Account, func(w io.Writer) {
					fmt.Fprintf(w, "Account %s created. Pair it with: wppctl login %s\n", resp.Account.ID, resp.Account.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newAccountsDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <account-id>",
		Short: "Delete an account and everything stored for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				if err := c.DeleteAccount(ctx, args[0]); err != nil {
					return err
				}
				return newPrinter(opts).print(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Account %s deleted.\n", args[0])
				})
			})
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
