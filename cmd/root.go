package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/gredis/cmd/gen"
	"github.com/luma/gredis/internal/env"
)

var (
	host           string
	port           int
	db             int
	password       string
	socketTimeout  time.Duration
	connectTimeout time.Duration
	retryOnTimeout bool
	encoding       string
	logLevel       string

	// Loaded before any sub command runs, flags take precedence over the
	// environment
	conf *env.Config
	log  *zap.Logger
)

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVar(&host, "host", "localhost", "The server host")
	flags.IntVarP(&port, "port", "p", 6379, "The server port")
	flags.IntVarP(&db, "db", "n", 0, "The database number to select")
	flags.StringVarP(&password, "password", "a", "", "The password to AUTH with")
	flags.DurationVar(&socketTimeout, "socket-timeout", 5*time.Second, "Timeout for every read and write, 0 disables it")
	flags.DurationVar(&connectTimeout, "connect-timeout", 5*time.Second, "Timeout for connecting")
	flags.BoolVar(&retryOnTimeout, "retry-on-timeout", false, "Retry a command once when it times out")
	flags.StringVar(&encoding, "encoding", "", "Decode replies from this charset")
	flags.StringVar(&logLevel, "log-level", "info", "The log level")

	RootCmd.AddCommand(ExecCmd)
	RootCmd.AddCommand(SubscribeCmd)
	RootCmd.AddCommand(GatewayCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

var RootCmd = &cobra.Command{
	Use:   "gredis",
	Short: "Talk to a Redis server",
	Long: `Talk to a Redis server

Connection settings are read from GREDIS_* environment variables and
.env.local, flags override them.`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		conf, err = env.LoadConfig(cmd.Context())
		if err != nil {
			return err
		}

		flags := cmd.Flags()

		if flags.Changed("host") {
			conf.Host = host
		}

		if flags.Changed("port") {
			conf.Port = port
		}

		if flags.Changed("db") {
			conf.DB = db
		}

		if flags.Changed("password") {
			conf.Password = password
		}

		if flags.Changed("socket-timeout") {
			conf.SocketTimeout = socketTimeout
		}

		if flags.Changed("connect-timeout") {
			conf.ConnectTimeout = connectTimeout
		}

		if flags.Changed("retry-on-timeout") {
			conf.RetryOnTimeout = retryOnTimeout
		}

		if flags.Changed("encoding") {
			conf.Encoding = encoding
		}

		if flags.Changed("log-level") {
			conf.LogLevel = logLevel
		}

		log, err = env.MakeLogger(conf.LogLevel)
		return err
	},
}

func Execute() {
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
