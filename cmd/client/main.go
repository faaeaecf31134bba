// cmd/client is feedctl, the CLI for driving a replica.
//
// Usage:
//
//	feedctl post "hello"        --author alice --server http://localhost:8080
//	feedctl reply <evtId> "hi"  --author bob   --server http://localhost:8081
//	feedctl feed --text                        --server http://localhost:8082
//	feedctl status                             --server http://localhost:8082
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"replicated-feed/internal/client"
	"replicated-feed/internal/event"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "feedctl",
		Short: "CLI client for the replicated feed",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "replica address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(postCmd(), replyCmd(), feedCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── post / reply ─────────────────────────────────────────────────────────────

func postCmd() *cobra.Command {
	return writeCmd("post <text>", "Publish a top-level post", 1, func(args []string) event.Write {
		return event.Write{Text: args[0]}
	})
}

func replyCmd() *cobra.Command {
	return writeCmd("reply <parentEvtId> <text>", "Reply to a post or another reply", 2, func(args []string) event.Write {
		return event.Write{ParentID: args[0], Text: args[1]}
	})
}

// writeCmd never sets processId, so the replica stamps the write as its own.
func writeCmd(use, short string, nargs int, build func(args []string) event.Write) *cobra.Command {
	var author, evtID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := build(args)
			w.Author = author
			w.EventID = evtID

			c := client.New(serverAddr, timeout)
			ack, err := c.Post(context.Background(), w)
			if err != nil {
				return err
			}
			prettyPrint(ack)
			return nil
		},
	}
	cmd.Flags().StringVarP(&author, "author", "a", os.Getenv("USER"), "author name")
	cmd.Flags().StringVar(&evtID, "evt-id", "", "event id (default: generated by the replica)")
	return cmd
}

// ─── feed ─────────────────────────────────────────────────────────────────────

func feedCmd() *cobra.Command {
	var text bool
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the replica's feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			ctx := context.Background()
			if text {
				out, err := c.FeedText(ctx)
				if err != nil {
					return err
				}
				fmt.Print(out)
				return nil
			}
			v, err := c.Feed(ctx)
			if err != nil {
				return err
			}
			prettyPrint(v)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&text, "text", "t", false, "print the rendered feed instead of JSON")
	return cmd
}

// ─── status ───────────────────────────────────────────────────────────────────

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show clock, buffer size and counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			s, err := c.Status(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(s)
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
