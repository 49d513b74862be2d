package messages

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"math/big"
	"time"
)

type TransactionType string

const (
	TxSubmitVote      TransactionType = "submitVote"
	TxCreateElection  TransactionType = "createElection"
	TxAddCandidate    TransactionType = "addCandidate"
	TxVerifyCandidate TransactionType = "verifyCandidate"
)

// Administrative reports whether the write is reserved to election administrators.
func (txType TransactionType) Administrative() bool {
	return txType != TxSubmitVote
}

// Transaction is a write with every identifier already resolved to its ledger form.
// Exactly one of the payload pointers is set, matching TxType.
type Transaction struct {
	TxType TransactionType

	Vote         *Vote
	Election     *Election
	Candidate    *Candidate
	Verification *Verification
}

type Vote struct {
	ElectionID  *big.Int
	PositionID  *big.Int
	CandidateID *big.Int
}

type Election struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
}

type Candidate struct {
	ElectionID *big.Int
	PositionID *big.Int
	Name       string
	Wallet     common.Address
}

type Verification struct {
	CandidateID *big.Int
}

// Result is what the ledger returns for a settled write. Receipt is nil when
// the client does not wait for inclusion.
type Result struct {
	Hash    string
	Receipt *types.Receipt
}

type QueryType string

const (
	QueryElection       QueryType = "getElection"
	QueryCandidate      QueryType = "getCandidate"
	QueryHasVoted       QueryType = "hasVoted"
	QueryElectionCount  QueryType = "electionCount"
	QueryCandidateCount QueryType = "candidateCount"
)

type ElectionView struct {
	ID         *big.Int
	Name       string
	StartTime  time.Time
	EndTime    time.Time
	Active     bool
	TotalVotes *big.Int
}

type CandidateView struct {
	ID         *big.Int
	ElectionID *big.Int
	PositionID *big.Int
	Name       string
	Verified   bool
	VoteCount  *big.Int
}
