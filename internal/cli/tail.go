package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/dispatch"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/spf13/cobra"
)

type tailLine struct {
	RefID    string          `json:"refId"`
	Stream   string          `json:"stream"`
	Buffered int             `json:"buffered"`
	Frame    json.RawMessage `json:"frame,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func newTailCommand(opts *Options, connect Connector) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "tail <stream>...",
		Short: "Follow one or more streams until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := connect(*opts)
			if err != nil {
				return err
			}
			defer backend.Close()

			stream, err := dispatch.New(opts.Namespace, backend.Live, backend.Resources).Dispatch(cmd.Context(), queriesFor(args))
			if err != nil {
				return err
			}
			defer func() { _ = stream.Close() }()

			printed := 0
			for resp := range stream.Responses() {
				if err := printResponse(cmd.OutOrStdout(), resp, asJSON); err != nil {
					return err
				}
				printed++
				if limit > 0 && printed >= limit {
					return nil
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print each response as a JSON line with the frame")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after N responses (0 = until interrupted)")
	return cmd
}

// queriesFor builds one query per stream with ref ids A, B, ..., Z, AA, AB, ...
func queriesFor(streams []string) []domain.Query {
	queries := make([]domain.Query, 0, len(streams))
	for i, s := range streams {
		queries = append(queries, domain.Query{RefID: refID(i), Stream: s})
	}
	return queries
}

func refID(i int) string {
	id := ""
	for i >= 0 {
		id = string(rune('A'+i%26)) + id
		i = i/26 - 1
	}
	return id
}

func printResponse(w io.Writer, resp dispatch.Response, asJSON bool) error {
	line := tailLine{RefID: resp.RefID, Stream: resp.Address.Path, Buffered: resp.Buffered}
	if resp.Err != nil {
		line.Error = resp.Err.Error()
	}

	if !asJSON {
		if line.Error != "" {
			_, err := fmt.Fprintf(w, "%s\t%s\terror: %s\n", line.RefID, line.Stream, line.Error)
			return err
		}
		_, err := fmt.Fprintf(w, "%s\t%s\trows=%d\tbuffered=%d\n", line.RefID, line.Stream, rowsOf(resp.Frame), line.Buffered)
		return err
	}

	if resp.Frame != nil {
		frame, err := data.FrameToJSON(resp.Frame, data.IncludeAll)
		if err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
		line.Frame = frame
	}
	return json.NewEncoder(w).Encode(line)
}

func rowsOf(frame *data.Frame) int {
	if frame == nil {
		return 0
	}
	return frame.Rows()
}
