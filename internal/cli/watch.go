package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/ry-diffusion/Tina/internal/api"
)

func newWatchCommand(opts *RootOptions) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events until interrupted",
		Long: `Stream daemon events until interrupted. --prefix filters by event kind,
for example "account." or "sync.".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return watch(ctx, c, opts, prefix)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only kinds starting with this prefix")
	return cmd
}

func watch(ctx context.Context, c *api.Client, opts *RootOptions, prefix string) error {
	stream, err := c.WatchEvents(ctx, prefix)
	if err != nil {
		return err
	}
	for {
		e, err := stream.Recv()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) || grpcstatus.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		if err := writeEvent(opts, e); err != nil {
			return err
		}
	}
}

// writeEvent prints one event per line: a compact JSON object for json,
// a YAML document for yaml and a timestamped line otherwise.
func writeEvent(opts *RootOptions, e *api.WatchEvent) error {
	switch opts.Format {
	case "json":
		return json.NewEncoder(opts.Out).Encode(e)
	case "yaml":
		if _, err := io.WriteString(opts.Out, "---\n"); err != nil {
			return err
		}
		return writeYAML(opts.Out, e)
	}
	_, err := fmt.Fprintf(opts.Out, "%s  %-24s %s\n", e.Timestamp.Local().Format("15:04:05.000"), e.Kind, e.Payload)
	return err
}
