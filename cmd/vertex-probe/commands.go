package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/signaling"
)

func newPeersCmd(opts *probeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "Register and print the relay's peer list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			deadline := time.Now().Add(opts.wait)
			for {
				r, err := client.next(deadline)
				if errors.Is(err, errNoReply) {
					return errors.New("no peer list received")
				}
				if err != nil {
					return err
				}
				if r.Type != signaling.MessageTypePeers {
					continue
				}
				var peers []signaling.PeerInfo
				if err := json.Unmarshal(r.Data, &peers); err != nil {
					return fmt.Errorf("decode peer list: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), peerTable(peers, opts.id))
				return nil
			}
		},
	}
}

func newSendCmd(opts *probeOptions) *cobra.Command {
	var (
		to   string
		data string
	)
	cmd := &cobra.Command{
		Use:   "send <offer|answer|candidate>",
		Short: "Register and send one routed message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{}
			if strings.TrimSpace(data) != "" {
				if err := json.Unmarshal([]byte(data), &payload); err != nil {
					return fmt.Errorf("--data must be a JSON object: %w", err)
				}
			}
			if to != "" {
				payload["to"] = to
			}
			if _, ok := payload["from"]; !ok {
				payload["from"] = opts.id
			}

			client, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.send(signaling.MessageType(args[0]), payload); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			replies, err := client.collect(opts.wait)
			printReplies(cmd.OutOrStdout(), replies)
			return err
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "id of the receiving peer")
	cmd.Flags().StringVar(&data, "data", "", "additional data fields as a JSON object")
	return cmd
}

func newByeCmd(opts *probeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bye <session-id>",
		Short: "Register and end the session <id1>-<id2>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.send(signaling.MessageTypeBye, map[string]string{"session_id": args[0]}); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			replies, err := client.collect(opts.wait)
			printReplies(cmd.OutOrStdout(), replies)
			return err
		},
	}
}
