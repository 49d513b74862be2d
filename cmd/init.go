package cmd

import (
	"ballot-node/config"
	"ballot-node/crypto"
	"fmt"
	"github.com/spf13/cobra"
	"os"
)

var (
	initRPCURL   string
	initContract string
	initChainIDs []uint
)

func init() {
	InitCmd.Flags().StringVar(&initRPCURL, "rpc", config.DefaultConfig().RPCURL, "Ledger JSON-RPC endpoint")
	InitCmd.Flags().StringVar(&initContract, "contract", "", "Election contract address")
	InitCmd.Flags().UintSliceVar(&initChainIDs, "chain-id", []uint{31337}, "Supported chain ids, the first one signs")
	_ = InitCmd.MarkFlagRequired("contract")
}

var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize config file and signing key",
	RunE:  initialize,
}

func initialize(cmd *cobra.Command, args []string) error {
	configuration := config.DefaultConfig()
	configuration.SetRoot(rootDir)
	configuration.RPCURL = initRPCURL
	configuration.ContractAddress = initContract
	configuration.SupportedChainIDs = nil
	for _, id := range initChainIDs {
		configuration.SupportedChainIDs = append(configuration.SupportedChainIDs, uint64(id))
	}
	if err := configuration.ValidateBasic(); err != nil {
		return err
	}
	if err := config.WriteConfigFile(rootDir, configuration); err != nil {
		return err
	}

	keyFile := configuration.KeyPath()
	if _, err := os.Stat(keyFile); err == nil {
		key, err := crypto.LoadSigningKey(keyFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Keeping existing key %s (%s)\n", keyFile, crypto.Address(key).Hex())
		return nil
	}
	key, err := crypto.GenerateSigningKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveSigningKey(keyFile, key); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Generated key %s (%s)\n", keyFile, crypto.Address(key).Hex())
	return nil
}
