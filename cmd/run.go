package cmd

import (
	"ballot-node/app"
	"ballot-node/metrics"
	"context"
	"errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the wallet monitor and the read-cache synchronizer",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	configuration, logger, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := app.Open(context.Background(), configuration, logger)
	if err != nil {
		return err
	}
	if err := client.Start(); err != nil {
		client.Stop()
		return err
	}
	defer client.Stop()

	if configuration.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		if err := client.Metrics.Register(registry); err != nil {
			return err
		}
		server := &http.Server{Addr: configuration.MetricsAddr, Handler: metrics.Handler(registry)}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server stopped", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		}()
		logger.Info("Serving metrics", "addr", configuration.MetricsAddr)
	}

	sign := make(chan os.Signal, 1)
	signal.Notify(sign, syscall.SIGINT, syscall.SIGTERM)
	<-sign
	logger.Info("Shutting down")
	return nil
}
