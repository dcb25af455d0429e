package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/luma/gredis/client"
	"github.com/luma/gredis/gateway"
)

var shardHint string

func init() {
	ExecCmd.Flags().StringVar(&shardHint, "shard-hint", "", "Routes the command when connections are sharded")
}

var ExecCmd = &cobra.Command{
	Use:   "exec <command> [args...]",
	Short: "Execute a command and print its result as JSON",
	Long: `Execute a command and print its result as JSON

Usage
	gredis exec SET greeting hello
	gredis exec LRANGE queue 0 -1

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

		cmdArgs := make([]interface{}, len(args)-1)
		for i, arg := range args[1:] {
			cmdArgs[i] = arg
		}

		result, err := c.Execute(ctx, client.Cmd{
			Name:      args[0],
			Args:      cmdArgs,
			ShardHint: shardHint,
		})
		if err != nil {
			return err
		}

		out, err := gateway.Render(result)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
