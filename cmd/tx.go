package cmd

import (
	"ballot-node/modules"
	"context"
	"errors"
	"fmt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"math/big"
	"time"
)

var TxCmd = &cobra.Command{
	Use:   "tx",
	Short: "Submit a write to the election contract",
}

var (
	txElection  string
	txPosition  string
	txCandidate string
	txName      string
	txID        string
	txOnchainID string
	txWallet    string
	txStart     string
	txDuration  time.Duration
)

func init() {
	TxCmd.AddCommand(voteCmd, createElectionCmd, addCandidateCmd, verifyCandidateCmd)

	voteCmd.Flags().StringVar(&txElection, "election", "", "Election id")
	voteCmd.Flags().StringVar(&txPosition, "position", "", "Position id")
	voteCmd.Flags().StringVar(&txCandidate, "candidate", "", "Candidate id")

	createElectionCmd.Flags().StringVar(&txName, "name", "", "Election name")
	createElectionCmd.Flags().StringVar(&txID, "id", "", "Application id, generated when empty")
	createElectionCmd.Flags().StringVar(&txOnchainID, "onchain-id", "", "Ledger id to map, inferred from the receipt when empty")
	createElectionCmd.Flags().StringVar(&txStart, "start", "", "Start time (RFC3339), now when empty")
	createElectionCmd.Flags().DurationVar(&txDuration, "duration", 7*24*time.Hour, "Voting window")

	addCandidateCmd.Flags().StringVar(&txElection, "election", "", "Election id")
	addCandidateCmd.Flags().StringVar(&txPosition, "position", "", "Position id")
	addCandidateCmd.Flags().StringVar(&txName, "name", "", "Candidate name")
	addCandidateCmd.Flags().StringVar(&txWallet, "wallet", "", "Candidate wallet address")
	addCandidateCmd.Flags().StringVar(&txID, "id", "", "Application id, generated when empty")
	addCandidateCmd.Flags().StringVar(&txOnchainID, "onchain-id", "", "Ledger id to map, inferred from the receipt when empty")

	verifyCandidateCmd.Flags().StringVar(&txCandidate, "candidate", "", "Candidate id")
}

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Cast a vote",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submit(cmd, func(ctx context.Context, tx writer) (modules.Record, error) {
			return tx.SubmitVote(ctx, modules.VoteRequest{
				ElectionID:  txElection,
				PositionID:  txPosition,
				CandidateID: txCandidate,
			})
		})
	},
}

var createElectionCmd = &cobra.Command{
	Use:   "create-election",
	Short: "Create an election",
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		if txStart != "" {
			var err error
			if start, err = time.Parse(time.RFC3339, txStart); err != nil {
				return fmt.Errorf("parsing --start: %w", err)
			}
		}
		onchainID, err := optionalID(txOnchainID)
		if err != nil {
			return err
		}
		return submit(cmd, func(ctx context.Context, tx writer) (modules.Record, error) {
			return tx.CreateElection(ctx, modules.CreateElectionRequest{
				UIID:      txID,
				OnchainID: onchainID,
				Name:      txName,
				StartTime: start,
				EndTime:   start.Add(txDuration),
			})
		})
	},
}

var addCandidateCmd = &cobra.Command{
	Use:   "add-candidate",
	Short: "Register a candidate for a position",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(txWallet) {
			return fmt.Errorf("--wallet %q is not an address", txWallet)
		}
		onchainID, err := optionalID(txOnchainID)
		if err != nil {
			return err
		}
		return submit(cmd, func(ctx context.Context, tx writer) (modules.Record, error) {
			return tx.AddCandidate(ctx, modules.AddCandidateRequest{
				UIID:       txID,
				OnchainID:  onchainID,
				ElectionID: txElection,
				PositionID: txPosition,
				Name:       txName,
				Wallet:     common.HexToAddress(txWallet),
			})
		})
	},
}

var verifyCandidateCmd = &cobra.Command{
	Use:   "verify-candidate",
	Short: "Mark a candidate as verified",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submit(cmd, func(ctx context.Context, tx writer) (modules.Record, error) {
			return tx.VerifyCandidate(ctx, modules.VerifyCandidateRequest{CandidateID: txCandidate})
		})
	},
}

type writer interface {
	SubmitVote(ctx context.Context, req modules.VoteRequest) (modules.Record, error)
	CreateElection(ctx context.Context, req modules.CreateElectionRequest) (modules.Record, error)
	AddCandidate(ctx context.Context, req modules.AddCandidateRequest) (modules.Record, error)
	VerifyCandidate(ctx context.Context, req modules.VerifyCandidateRequest) (modules.Record, error)
}

func submit(cmd *cobra.Command, write func(context.Context, writer) (modules.Record, error)) error {
	ctx := context.Background()
	client, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer client.Stop()
	record, err := write(ctx, client)
	var rpcErr *modules.RPCError
	if err != nil && !errors.As(err, &rpcErr) {
		// rejected before anything was recorded
		return err
	}
	if printErr := printJSON(cmd, newRecordView(record)); printErr != nil {
		return printErr
	}
	return err
}

func optionalID(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() <= 0 {
		return nil, fmt.Errorf("ledger id %q is not a positive integer", s)
	}
	return id, nil
}

type recordView struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Subject      string `json:"subject,omitempty"`
	Status       string `json:"status"`
	Hash         string `json:"hash,omitempty"`
	Block        string `json:"block,omitempty"`
	GasUsed      uint64 `json:"gasUsed,omitempty"`
	EstimatedGas uint64 `json:"estimatedGas,omitempty"`
	Error        string `json:"error,omitempty"`
}

func newRecordView(record modules.Record) recordView {
	view := recordView{
		ID:           record.ID,
		Kind:         string(record.Kind),
		Subject:      record.Subject,
		Status:       string(record.Status),
		Hash:         record.Hash,
		EstimatedGas: record.EstimatedGas,
	}
	if record.Receipt != nil {
		view.GasUsed = record.Receipt.GasUsed
		if record.Receipt.BlockNumber != nil {
			view.Block = record.Receipt.BlockNumber.String()
		}
	}
	if record.Err != nil {
		view.Error = record.Err.Error()
	}
	return view
}
