package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ry-diffusion/Tina/internal/api"
)

func newContactsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "contacts <account-id>",
		Short: "List synced contacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				resp, err := c.GetContacts(ctx, args[0])
				if err != nil {
					return err
				}
				return newPrinter(opts).print(resp.Contacts, func(w io.Writer) {
					fmt.Fprintln(w, "JID\tNAME\tNOTIFY\tPHONE")
					for _, ct := range resp.Contacts {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ct.JID, deref(ct.Name), deref(ct.NotifyName), deref(ct.PhoneNumber))
					}
				})
			})
		},
	}
}

func newGroupsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "groups <account-id>",
		Short: "List synced groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				resp, err := c.GetGroups(ctx, args[0])
				if err != nil {
					return err
				}
				return newPrinter(opts).print(resp.Groups, func(w io.Writer) {
					fmt.Fprintln(w, "JID\tSUBJECT\tMEMBERS")
					for _, g := range resp.Groups {
						fmt.Fprintf(w, "%s\t%s\t%d\n", g.JID, deref(g.Subject), len(g.Participants))
					}
				})
			})
		},
	}
}

func newChatsCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "chats <account-id>",
		Short: "List chats with their latest message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				resp, err := c.GetChatPreviews(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return newPrinter(opts).print(resp.Previews, func(w io.Writer) {
					fmt.Fprintln(w, "CHAT\tNAME\tLAST\tMESSAGE")
					for _, p := range resp.Previews {
						last := deref(p.LastMessage)
						if p.FromMe {
							last = "you: " + last
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ChatJID, p.Name, unixTime(p.LastMessageAt), oneLine(last, 60))
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum chats; 0 lists all")
	return cmd
}

func newMessagesCommand(opts *RootOptions) *cobra.Command {
	var (
		chat          string
		limit, offset int
	)
	cmd := &cobra.Command{
		Use:   "messages <account-id>",
		Short: "List stored messages, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &api.GetMessagesRequest{AccountID: args[0], Limit: limit, Offset: offset}
			if chat != "" {
				req.ChatJID = &chat
			}
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				resp, err := c.GetMessages(ctx, req)
				if err != nil {
					return err
				}
				return newPrinter(opts).print(resp.Messages, func(w io.Writer) {
					fmt.Fprintln(w, "TIME\tCHAT\tFROM\tMESSAGE")
					for _, m := range resp.Messages {
						from := m.SenderJID
						if m.IsFromMe {
							from = "you"
						}
						body := deref(m.Content)
						if m.Content == nil {
							body = "[" + m.MessageType + "]"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", unixTime(m.Timestamp), m.ChatJID, from, oneLine(body, 80))
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&chat, "chat", "", "only this chat JID")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many messages")
	return cmd
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and account status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, func(ctx context.Context, c *api.Client) error {
				resp, err := c.GetStatus(ctx)
				if err != nil {
					return err
				}
				return newPrinter(opts).print(resp, func(w io.Writer) {
					engine := "stopped"
					if resp.EngineRunning {
						engine = "running"
					}
					fmt.Fprintf(w, "Engine:\t%s\n", engine)
					fmt.Fprintf(w, "Uptime:\t%s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
					fmt.Fprintln(w)
					fmt.Fprintln(w, "ACCOUNT\tSTATE\tPHONE\tCONTACTS\tGROUPS\tMESSAGES\tLAST ERROR")
					for _, a := range resp.Accounts {
						var contacts, groups, messages int64
						if a.Counts != nil {
							contacts, groups, messages = a.Counts.Contacts, a.Counts.Groups, a.Counts.Messages
						}
						lastErr := a.LastError
						if lastErr == "" {
							lastErr = "-"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n", a.AccountID, a.State, deref(a.PhoneNumber), contacts, groups, messages, lastErr)
					}
				})
			})
		},
	}
}

// oneLine flattens s and cuts it to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
