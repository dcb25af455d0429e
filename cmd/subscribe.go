package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/gredis/client"
	"github.com/luma/gredis/gateway"
)

var (
	patterns     bool
	confirmation bool
)

func init() {
	flags := SubscribeCmd.Flags()

	flags.BoolVar(&patterns, "pattern", false, "Treat the arguments as glob patterns")
	flags.BoolVar(&confirmation, "confirmations", false, "Also print subscribe confirmations")
}

var SubscribeCmd = &cobra.Command{
	Use:   "subscribe <channel...>",
	Short: "Print messages published to channels as JSON lines",
	Long: `Print messages published to channels as JSON lines

Usage
	gredis subscribe news alerts
	gredis subscribe --pattern 'news.*'

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer signalStop()

		c, err := client.New(conf.ClientOptions(log))
		if err != nil {
			return err
		}
		defer c.Close()

		ps, err := c.PubSub()
		if err != nil {
			return err
		}
		defer ps.Close()

		ps.IgnoreSubscribeMessages = !confirmation

		if patterns {
			err = ps.PSubscribe(ctx, args...)
		} else {
			err = ps.Subscribe(ctx, args...)
		}

		if err != nil {
			return err
		}

		log.Info("Subscribed",
			zap.Strings("channels", ps.Channels()),
			zap.Strings("patterns", ps.Patterns()))

		out := cmd.OutOrStdout()
		err = ps.Run(ctx, func(msg *client.Message) {
			line, err := gateway.RenderMessage(msg)
			if err != nil {
				log.Warn("Failed to render message", zap.Stringer("message", msg), zap.Error(err))
				return
			}

			fmt.Fprintln(out, string(line))
		})

		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	},
}
