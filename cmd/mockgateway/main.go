package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omochice/openim-session/internal/logger"
	"github.com/omochice/openim-session/internal/mockgateway"
)

func main() {
	var (
		addr     string
		logLevel string
		tokens   map[string]string
	)

	rootCmd := &cobra.Command{
		Use:   "mockgateway",
		Short: "Run a fake IM gateway for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(logLevel, "console")
			if err != nil {
				return err
			}
			defer log.Sync()

			srv := mockgateway.New(addr, mockgateway.Options{Tokens: tokens, Logger: log})
			if err := srv.Start(); err != nil {
				return err
			}
			log.Info("connect clients to", zap.String("url", srv.URL()))

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig

			srv.Stop()
			log.Info("gateway stopped",
				zap.Int64("requests", srv.RequestCount()),
				zap.Int64("pings", srv.PingCount()))
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:10001", "listen address")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.Flags().StringToStringVar(&tokens, "token", nil, "required token per user, e.g. --token u1=secret")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
