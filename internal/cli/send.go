package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ry-diffusion/Tina/internal/api"
)

func newSendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <account-id> <to-jid> <text>...",
		Short: "Send a text message",
		Long: `Send a text message. The recipient is a full JID such as
5511999999999@s.whatsapp.net or 120363000000000000@g.us.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, to := args[0], args[1]
			text := strings.Join(args[2:], " ")
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				if err := c.SendMessage(ctx, accountID, to, text); err != nil {
					return err
				}
				return newPrinter(opts).print(map[string]string{"account_id": accountID, "to": to, "result": "queued"}, func(w io.Writer) {
					fmt.Fprintf(w, "Message to %s queued.\n", to)
				})
			})
		},
	}
}
