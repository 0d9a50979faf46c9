package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/greysana/kitchen-display-system/internal/config"
	"github.com/greysana/kitchen-display-system/internal/connection"
	"github.com/greysana/kitchen-display-system/internal/logging"
	"github.com/greysana/kitchen-display-system/internal/protocol"
)

func tailCmd() *cobra.Command {
	var (
		url     string
		channel string
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print messages a display would receive",
		Long: `Connect to the relay like a display does, join a channel, and print each
message as it arrives. Push messages are decoded and colored by type;
anything else is printed as-is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTail(ctx, cmd.OutOrStdout(), url, channel, raw)
		},
	}

	cmd.Flags().StringVar(&url, "url", config.DefaultRelayURL, "relay websocket URL")
	cmd.Flags().StringVar(&channel, "channel", config.DefaultChannel, "channel to join")
	cmd.Flags().BoolVar(&raw, "raw", false, "print payloads without decoding")
	return cmd
}

func runTail(ctx context.Context, out io.Writer, url, channel string, raw bool) error {
	logging.InitLogger("warn", "text")

	mgr := connection.NewManager(connection.ManagerConfig{
		URL:     url,
		Channel: channel,
	}, logging.WithComponent("tail"))
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Stop(stopCtx)
	}()

	fmt.Fprintf(out, "tailing %s on %s\n", color.New(color.Bold).Sprint(channel), url)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-mgr.Messages():
			if !ok {
				return nil
			}
			if raw {
				fmt.Fprintf(out, "%s %s\n", msg.ReceivedAt.Format(time.TimeOnly), msg.Data)
				continue
			}
			fmt.Fprintln(out, formatMessage(msg))
		}
	}
}

var (
	newOrderColor = color.New(color.FgGreen)
	stageColor    = color.New(color.FgCyan)
	mutatedColor  = color.New(color.FgYellow)
	otherColor    = color.New(color.FgHiBlack)
)

// formatMessage renders one relay message as a single line.
func formatMessage(msg connection.RawMessage) string {
	at := msg.ReceivedAt.Format(time.TimeOnly)

	decoded, err := protocol.Decode(msg.Data)
	if err != nil {
		return fmt.Sprintf("%s %s", at, otherColor.Sprint(string(msg.Data)))
	}

	switch m := decoded.(type) {
	case protocol.NewOrder:
		return fmt.Sprintf("%s %s order=%s", at, newOrderColor.Sprint("NEW   "), m.OrderID)
	case protocol.StageChanged:
		return fmt.Sprintf("%s %s entry=%s stage=%s", at, stageColor.Sprint("STAGE "), m.SubjectID, m.NewStage)
	case protocol.OrderMutated:
		line := fmt.Sprintf("%s %s order=%s", at, mutatedColor.Sprint("UPDATE"), m.OrderID)
		if m.State != nil {
			line += " state=" + *m.State
		}
		if m.Cancelled != nil {
			line += fmt.Sprintf(" cancelled=%t", *m.Cancelled)
		}
		if m.Ticket != nil {
			line += " ticket=" + *m.Ticket
		}
		return line
	default:
		return fmt.Sprintf("%s %s", at, otherColor.Sprint(string(msg.Data)))
	}
}
