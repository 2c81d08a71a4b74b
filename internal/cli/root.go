// Package cli contains the Cobra commands of orcatail, a terminal client for the gateway.
package cli

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pdl/orcastream/internal/adapter/remote"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/spf13/cobra"
)

const websocketPath = "/connection/websocket"

// Options are the connection flags shared by every command.
type Options struct {
	URL       string
	LiveURL   string
	Namespace string
	Token     string
	Timeout   time.Duration
}

// Backend is what the commands talk to.
type Backend struct {
	Resources domain.ResourceService
	Live      domain.LiveChannelService
	Close     func()
}

// Connector builds a Backend from the connection flags.
type Connector func(opts Options) (*Backend, error)

// NewRoot constructs the orcatail root command with the streams and tail subcommands.
func NewRoot(connect Connector) *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:           "orcatail",
		Short:         "Browse and tail orcastream streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.URL, "url", "http://localhost:8080", "Gateway base URL")
	root.PersistentFlags().StringVar(&opts.LiveURL, "live-url", "", "Websocket endpoint (default: derived from --url)")
	root.PersistentFlags().StringVarP(&opts.Namespace, "namespace", "n", "orcastream", "Channel namespace of the gateway")
	root.PersistentFlags().StringVar(&opts.Token, "token", "", "Bearer token for the gateway")
	root.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "Timeout of catalog requests")

	root.AddCommand(newStreamsCommand(opts, connect))
	root.AddCommand(newTailCommand(opts, connect))
	return root
}

// Connect dials the gateway with the remote HTTP and centrifuge clients.
func Connect(opts Options) (*Backend, error) {
	liveURL := opts.LiveURL
	if liveURL == "" {
		derived, err := websocketURL(opts.URL)
		if err != nil {
			return nil, err
		}
		liveURL = derived
	}

	resourceOpts := []remote.ResourceOption{remote.WithHTTPClient(&http.Client{Timeout: opts.Timeout})}
	var liveOpts []remote.LiveOption
	if opts.Token != "" {
		resourceOpts = append(resourceOpts, remote.WithToken(opts.Token))
		liveOpts = append(liveOpts, remote.WithLiveToken(opts.Token))
	}

	liveClient := remote.NewLiveClient(liveURL, liveOpts...)
	if err := liveClient.Connect(); err != nil {
		return nil, err
	}

	return &Backend{
		Resources: remote.NewResourceClient(opts.URL, resourceOpts...),
		Live:      liveClient,
		Close:     liveClient.Close,
	}, nil
}

func websocketURL(base string) (string, error) {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + websocketPath, nil
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + websocketPath, nil
	default:
		return "", fmt.Errorf("unsupported gateway URL %q: want http:// or https://", base)
	}
}
