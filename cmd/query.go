package cmd

import (
	"context"
	"fmt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var QueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Read election state from the contract",
}

func init() {
	QueryCmd.AddCommand(queryElectionCmd, queryCandidateCmd, queryHasVotedCmd, queryElectionsCmd, queryCandidatesCmd)
}

var queryElectionCmd = &cobra.Command{
	Use:   "election <id>",
	Short: "Show one election",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer client.Stop()
		election, err := client.Election(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, election)
	},
}

var queryCandidateCmd = &cobra.Command{
	Use:   "candidate <id>",
	Short: "Show one candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer client.Stop()
		candidate, err := client.Candidate(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, candidate)
	},
}

var queryHasVotedCmd = &cobra.Command{
	Use:   "has-voted <election> <position> <voter>",
	Short: "Check whether an address voted for a position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[2]) {
			return fmt.Errorf("%q is not an address", args[2])
		}
		ctx := context.Background()
		client, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer client.Stop()
		voted, err := client.HasVoted(ctx, args[0], args[1], common.HexToAddress(args[2]))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), voted)
		return nil
	},
}

var queryElectionsCmd = &cobra.Command{
	Use:   "elections",
	Short: "List every election",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer client.Stop()
		elections, err := client.Elections(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, elections)
	},
}

var queryCandidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List every candidate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer client.Stop()
		candidates, err := client.Candidates(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, candidates)
	},
}
