package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/signaling"
)

type probeOptions struct {
	url        string
	apiKey     string
	id         string
	deviceName string
	username   string
	wait       time.Duration
}

func (o *probeOptions) peerInfo() signaling.PeerInfo {
	return signaling.PeerInfo{
		ID:         o.id,
		DeviceName: o.deviceName,
		Username:   o.username,
		UserAgent:  "vertex-probe",
	}
}

func newRootCmd() *cobra.Command {
	opts := &probeOptions{}

	root := &cobra.Command{
		Use:   "vertex-probe",
		Short: "Talk to a Vertex signaling relay from the terminal",
		Long: `vertex-probe connects to a signaling relay, registers as a peer and sends
protocol messages, printing what the relay sends back.

Examples:
  vertex-probe peers
  vertex-probe --url wss://relay.example.com/ws --api-key KEY peers
  vertex-probe send offer --to 4f2a --data '{"description":{"type":"offer","sdp":"v=0"}}'
  vertex-probe bye 4f2a-9c1e`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.url, "url", "ws://127.0.0.1:8086/ws", "signaling WebSocket URL")
	flags.StringVar(&opts.apiKey, "api-key", "", "API key sent as X-API-Key")
	flags.StringVar(&opts.id, "id", "probe-"+uuid.NewString()[:8], "peer id to register as")
	flags.StringVar(&opts.deviceName, "device-name", "vertex-probe", "device name to register with")
	flags.StringVar(&opts.username, "username", "", "username to register with")
	flags.DurationVar(&opts.wait, "wait", 2*time.Second, "how long to wait for replies")

	root.AddCommand(
		newPeersCmd(opts),
		newSendCmd(opts),
		newByeCmd(opts),
	)
	return root
}

// connect dials the relay and registers opts' peer. The registration
// broadcast is left unread.
func connect(cmd *cobra.Command, opts *probeOptions) (*probeClient, error) {
	client, err := dialRelay(cmd.Context(), opts.url, opts.apiKey)
	if err != nil {
		return nil, err
	}
	if err := client.register(opts.peerInfo()); err != nil {
		client.Close()
		return nil, fmt.Errorf("register: %w", err)
	}
	return client, nil
}
