// Package cli implements wppctl, the command-line client of the daemon.
package cli

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ry-diffusion/Tina/internal/paths"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	Format      string // "text" | "json" | "yaml"
	NoAutostart bool

	Out    io.Writer
	ErrOut io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the wppctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Out: os.Stdout, ErrOut: os.Stderr}

	cmd := &cobra.Command{
		Use:   "wppctl",
		Short: "Control the wppd messaging daemon",
		Long: `wppctl manages accounts, reads synced data and sends messages through
a running wppd. The daemon is started in the background when its socket
does not answer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.Out = cmd.OutOrStdout()
			opts.ErrOut = cmd.ErrOrStderr()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", paths.ConfigPath(), "path to config.toml")
	cmd.PersistentFlags().StringVarP(&opts.Format, "format", "o", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVar(&opts.NoAutostart, "no-autostart", false, "fail instead of starting wppd")

	cmd.AddCommand(
		newAccountsCommand(opts),
		newLoginCommand(opts),
		newStartCommand(opts),
		newStopCommand(opts),
		newRefreshCommand(opts),
		newHistoryCommand(opts),
		newContactsCommand(opts),
		newGroupsCommand(opts),
		newChatsCommand(opts),
		newMessagesCommand(opts),
		newSendCommand(opts),
		newWatchCommand(opts),
		newStatusCommand(opts),
	)
	return cmd
}
