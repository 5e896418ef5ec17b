package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ry-diffusion/Tina/internal/api"
	"github.com/ry-diffusion/Tina/internal/worker"
)

// qrRetryAfter is how long login waits for a first QR code before asking
// the engine to emit it again.
const qrRetryAfter = 3 * time.Second

// ErrLoggedOut is returned by login when the account is logged out while
// pairing.
var ErrLoggedOut = errors.New("account logged out")

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "login <account-id>",
		Short: "Start an account and show its pairing QR code until it connects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return login(ctx, c, opts, args[0])
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	return cmd
}

func login(ctx context.Context, c *api.Client, opts *RootOptions, accountID string) error {
	stream, err := c.WatchEvents(ctx, "")
	if err != nil {
		return err
	}
	if err := c.StartAccount(ctx, accountID); err != nil {
		return err
	}

	events := make(chan *api.WatchEvent)
	errs := make(chan error, 1)
	go func() {
		for {
			e, err := stream.Recv()
			if err != nil {
				errs <- err
				return
			}
			select {
			case events <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	p := newPrinter(opts)
	retry := time.NewTimer(qrRetryAfter)
	defer retry.Stop()

	for {
		select {
		case <-retry.C:
			if err := c.RequestQrCode(ctx, accountID); err != nil {
				return err
			}
		case err := <-errs:
			return fmt.Errorf("event stream closed: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		case we := <-events:
			var e worker.Event
			if err := we.Decode(&e); err != nil || e.AccountID != accountID {
				continue
			}
			done, err := loginStep(p, opts, &e, retry)
			if err != nil || done {
				return err
			}
		}
	}
}

// loginStep renders one event of the account being paired and reports
// whether pairing has finished.
func loginStep(p *printer, opts *RootOptions, e *worker.Event, retry *time.Timer) (bool, error) {
	switch e.Kind {
	case worker.KindQrCode:
		retry.Stop()
		if e.QR == nil {
			return false, nil
		}
		return false, p.print(e, func(w io.Writer) {
			fmt.Fprintf(w, "\nScan this QR code with WhatsApp (Linked devices):\n\n%s\nWaiting for authentication...\n", renderQR(*e.QR))
		})
	case worker.KindConnected:
		retry.Stop()
		return true, p.print(e, func(w io.Writer) {
			fmt.Fprintf(w, "Connected as %s.\n", deref(e.PhoneNumber))
		})
	case worker.KindLoggedOut:
		return true, fmt.Errorf("%w: %s", ErrLoggedOut, e.AccountID)
	case worker.KindError:
		fmt.Fprintf(opts.ErrOut, "engine error: %s\n", e.Error)
	}
	return false, nil
}

func accountCommand(opts *RootOptions, use, short, done string, call func(*api.Client, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <account-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				if err := call(c, ctx, args[0]); err != nil {
					return err
				}
				return newPrinter(opts).print(map[string]string{"account_id": args[0], "result": done}, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s\n", args[0], done)
				})
			})
		},
	}
}

func newStartCommand(opts *RootOptions) *cobra.Command {
	return accountCommand(opts, "start", "Connect an account", "start requested", (*api.Client).StartAccount)
}

func newStopCommand(opts *RootOptions) *cobra.Command {
	return accountCommand(opts, "stop", "Disconnect an account", "stop requested", (*api.Client).StopAccount)
}

func newRefreshCommand(opts *RootOptions) *cobra.Command {
	return accountCommand(opts, "refresh", "Ask the engine to resend contacts and groups", "refresh requested", (*api.Client).RefreshAccount)
}

func newHistoryCommand(opts *RootOptions) *cobra.Command {
	var chat string
	var limit int64
	cmd := &cobra.Command{
		Use:   "history <account-id>",
		Short: "Ask the engine for older messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &api.HistoryRequest{AccountID: args[0], Limit: limit}
			if chat != "" {
				req.ChatJID = &chat
			}
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				if err := c.RequestHistory(ctx, req); err != nil {
					return err
				}
				return newPrinter(opts).print(req, func(w io.Writer) {
					fmt.Fprintf(w, "%s: history requested\n", args[0])
				})
			})
		},
	}
	cmd.Flags().StringVar(&chat, "chat", "", "only this chat JID")
	cmd.Flags().Int64Var(&limit, "limit", 100, "maximum messages to fetch")
	return cmd
}
