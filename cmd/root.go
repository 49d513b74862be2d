package cmd

import (
	"ballot-node/app"
	"ballot-node/config"
	"context"
	"encoding/json"
	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/cli/flags"
	"github.com/tendermint/tendermint/libs/log"
	"os"
)

var rootDir string

func init() {
	RootCmd.AddCommand(InitCmd)
	RootCmd.AddCommand(RunCmd)
	RootCmd.AddCommand(TxCmd)
	RootCmd.AddCommand(IdsCmd)
	RootCmd.AddCommand(QueryCmd)
	RootCmd.PersistentFlags().StringVar(&rootDir, "home", "./ballothome", "Home directory of the ballot node")
}

var RootCmd = cobra.Command{
	Use:          "ballot-node",
	Short:        "Election ledger client: writes, identifier map and cached reads",
	SilenceUsage: true,
}

func loadConfig() (*config.Config, log.Logger, error) {
	configuration, err := config.Load(rootDir)
	if err != nil {
		return nil, nil, err
	}
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	logger, err = flags.ParseLogLevel(configuration.LogLevel, logger, "info")
	if err != nil {
		return nil, nil, err
	}
	return configuration, logger, nil
}

// openClient opens a client for a one-shot command. Wallet facts are read
// once instead of being monitored.
func openClient(ctx context.Context) (*app.Client, error) {
	configuration, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client, err := app.Open(ctx, configuration, logger)
	if err != nil {
		return nil, err
	}
	client.Refresh(ctx)
	return client, nil
}

func printJSON(cmd *cobra.Command, value interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
