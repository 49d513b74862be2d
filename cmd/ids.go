package cmd

import (
	"ballot-node/app"
	"ballot-node/modules"
	"fmt"
	"github.com/spf13/cobra"
	"math/big"
)

var IdsCmd = &cobra.Command{
	Use:   "ids",
	Short: "Inspect and seed the identifier map",
}

func init() {
	IdsCmd.AddCommand(idsListCmd, idsAddCmd)
}

var idsListCmd = &cobra.Command{
	Use:   "list [election|position|candidate]",
	Short: "List mappings, of one kind or all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := modules.Kinds
		if len(args) == 1 {
			kind, err := modules.ParseKind(args[0])
			if err != nil {
				return err
			}
			kinds = []modules.Kind{kind}
		}
		configuration, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ids, closeStore, err := app.OpenIdentifierMap(configuration, logger)
		if err != nil {
			return err
		}
		defer closeStore()
		for _, kind := range kinds {
			for _, mapping := range ids.List(kind) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", mapping.Kind, mapping.UIID, mapping.OnchainID)
			}
		}
		return nil
	},
}

var idsAddCmd = &cobra.Command{
	Use:   "add <kind> <application id> <ledger id>",
	Short: "Map an application id to a ledger id",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := modules.ParseKind(args[0])
		if err != nil {
			return err
		}
		onchainID, ok := new(big.Int).SetString(args[2], 10)
		if !ok || onchainID.Sign() < 0 {
			return fmt.Errorf("ledger id %q is not a non-negative integer", args[2])
		}
		configuration, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ids, closeStore, err := app.OpenIdentifierMap(configuration, logger)
		if err != nil {
			return err
		}
		defer closeStore()
		if !ids.Insert(kind, args[1], onchainID) {
			return fmt.Errorf("%s %s or ledger id %s is already mapped differently", kind, args[1], onchainID)
		}
		return nil
	},
}
