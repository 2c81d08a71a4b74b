package cli

import (
	"fmt"

	"github.com/pdl/orcastream/internal/dispatch"
	"github.com/spf13/cobra"
)

func newStreamsCommand(opts *Options, connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "streams",
		Short: "List the streams the gateway serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := connect(*opts)
			if err != nil {
				return err
			}
			defer backend.Close()

			streams, err := dispatch.New(opts.Namespace, backend.Live, backend.Resources).ListStreams(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range streams {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}
