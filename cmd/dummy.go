package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageq/internal/dummy"
	"stageq/internal/logger"
)

func newDummyCmd(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "dummy",
		Short: "Run the in-memory payment service",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(cmd.ErrOrStderr(), v.GetString("log_level"))
			if err != nil {
				return err
			}
			port, _ := cmd.Flags().GetInt("port")
			latency, _ := cmd.Flags().GetDuration("latency")
			errorRate, _ := cmd.Flags().GetFloat64("error-rate")
			if errorRate < 0 || errorRate > 1 {
				return fmt.Errorf("error-rate must be between 0 and 1, got %v", errorRate)
			}

			srv, err := dummy.Start(dummy.ServerConfig{
				Port:      port,
				Latency:   latency,
				ErrorRate: errorRate,
				Log:       log,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	c.Flags().IntP("port", "p", 8080, "Port to run the dummy service on")
	c.Flags().Duration("latency", 200*time.Millisecond, "simulated upstream fetch delay of fetch-and-save")
	c.Flags().Float64("error-rate", 0, "share of fetch-and-save calls answered with 500")
	return c
}
