package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/gredis/client"
	"github.com/luma/gredis/gateway"
)

var (
	// The address to listen for http requests on
	httpAddr string

	maxConnections int
)

func init() {
	flags := GatewayCmd.Flags()

	flags.StringVar(&httpAddr, "http-addr", "0.0.0.0:7362", "The address to listen to HTTP requests on")
	flags.IntVar(&maxConnections, "max-connections", 0, "Cap on pooled server connections, 0 means no cap")
}

var GatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve commands over HTTP",
	Long: `Serve commands over HTTP

Usage
	gredis gateway --http-addr 127.0.0.1:7362

Routes
	GET  /ping
	POST /v1/commands   {"command": "SET", "args": ["key", "value"]}
	GET  /v1/keys/:key
	GET  /metrics

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		if cmd.Flags().Changed("http-addr") {
			conf.HTTPAddr = httpAddr
		}

		if cmd.Flags().Changed("max-connections") {
			conf.MaxConnections = maxConnections
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		options := conf.ClientOptions(log)
		options.Registerer = registry

		c, err := client.New(options)
		if err != nil {
			return err
		}

		server := gateway.NewServer(gateway.Options{
			Addr:      conf.HTTPAddr,
			Client:    c,
			Gatherer:  registry,
			DebugHTTP: conf.DebugHTTP,
			Log:       log.Named("gateway"),
		})

		if err := server.Start(ctx); err != nil {
			c.Close()
			return err
		}

		log.Info("Gateway ready",
			zap.String("httpAddr", server.Addr()),
			zap.String("redis", options.Addr()),
			zap.Int("db", options.DB))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The server has 5 seconds to finish the requests it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := c.Close(); err != nil {
			log.Error("Failed to close connections", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
