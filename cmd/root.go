package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cascadia-health/epiforecast/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "epiforecast",
	Short: "Meta-agent SEIR disease spread simulation service",
	Long:  "Runs stochastic SEIR simulations over census-tract and facility meta-agents, aggregates Monte Carlo repetitions into percentile forecasts, and calibrates disease parameters against observed surveillance data.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
