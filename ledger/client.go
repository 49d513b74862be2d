package ledger

/*
Client is the election contract as seen from this node: reads go through eth_call with a bounded
retry, writes are signed with the node's key and sent once. A write is never retried here; callers
decide whether a second attempt is acceptable.
*/

import (
	"ballot-node/messages"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/tendermint/tendermint/libs/log"
	"math/big"
	"net/http"
	"sync"
	"time"
)

var (
	ErrReadOnly = errors.New("ledger client has no signing key")
	ErrReverted = errors.New("transaction reverted")
)

// Backend is the JSON-RPC surface the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

type Options struct {
	Address common.Address
	// Key signs writes; a client without one can only read.
	Key *ecdsa.PrivateKey
	// ChainID pins the chain writes are signed for. When nil each write is
	// signed for the chain the endpoint reports at that moment.
	ChainID *big.Int
	// WaitReceipts makes Submit block until the transaction is mined.
	WaitReceipts bool
	ReadAttempts uint64
}

type Client struct {
	backend      Backend
	abi          abi.ABI
	address      common.Address
	contract     *bind.BoundContract
	from         common.Address
	key          *ecdsa.PrivateKey
	chainID      *big.Int
	authMu       sync.Mutex
	auths        map[string]*bind.TransactOpts
	waitReceipts bool
	readAttempts uint64
	newBackOff   func() backoff.BackOff
	sendMu       sync.Mutex
	logger       log.Logger
}

// Dial opens a JSON-RPC connection. The timeout applies to every HTTP round
// trip; websocket endpoints are only bounded by ctx during the handshake.
func Dial(ctx context.Context, url string, timeout time.Duration) (*ethclient.Client, error) {
	rpcClient, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return ethclient.NewClient(rpcClient), nil
}

func New(backend Backend, options Options, logger log.Logger) (*Client, error) {
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("parsing contract abi: %w", err)
	}
	client := &Client{
		backend:      backend,
		abi:          parsed,
		address:      options.Address,
		contract:     bind.NewBoundContract(options.Address, parsed, backend, backend, backend),
		key:          options.Key,
		chainID:      options.ChainID,
		auths:        make(map[string]*bind.TransactOpts),
		waitReceipts: options.WaitReceipts,
		readAttempts: options.ReadAttempts,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: logger.With("module", "ledger"),
	}
	if client.readAttempts == 0 {
		client.readAttempts = 1
	}
	if options.Key != nil {
		client.from = crypto.PubkeyToAddress(options.Key.PublicKey)
	}
	return client, nil
}

// transactor returns signing options for the chain the write will land on.
func (c *Client) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	chainID := c.chainID
	if chainID == nil {
		observed, err := c.backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading chain id: %w", err)
		}
		if observed == nil {
			return nil, errors.New("endpoint reported no chain id")
		}
		chainID = observed
	}
	c.authMu.Lock()
	defer c.authMu.Unlock()
	auth, ok := c.auths[chainID.String()]
	if !ok {
		var err error
		auth, err = bind.NewKeyedTransactorWithChainID(c.key, chainID)
		if err != nil {
			return nil, fmt.Errorf("creating transactor: %w", err)
		}
		c.auths[chainID.String()] = auth
	}
	opts := *auth
	opts.Context = ctx
	return &opts, nil
}

func (c *Client) Address() common.Address { return c.address }

// EventID is the topic a contract event is logged under, zero for an event
// the client does not know.
func (c *Client) EventID(name string) common.Hash {
	return c.abi.Events[name].ID
}

// From is the account writes are sent from, zero for a read-only client.
func (c *Client) From() common.Address { return c.from }

// ------------------------------------------------------------------------------------------------------------------- //
// WRITES

func packTransaction(tx messages.Transaction) (string, []interface{}, error) {
	switch tx.TxType {
	case messages.TxSubmitVote:
		if tx.Vote == nil {
			break
		}
		return "vote", []interface{}{tx.Vote.ElectionID, tx.Vote.PositionID, tx.Vote.CandidateID}, nil
	case messages.TxCreateElection:
		if tx.Election == nil {
			break
		}
		return "createElection", []interface{}{
			tx.Election.Name, unixSeconds(tx.Election.StartTime), unixSeconds(tx.Election.EndTime),
		}, nil
	case messages.TxAddCandidate:
		if tx.Candidate == nil {
			break
		}
		return "addCandidate", []interface{}{
			tx.Candidate.ElectionID, tx.Candidate.PositionID, tx.Candidate.Name, tx.Candidate.Wallet,
		}, nil
	case messages.TxVerifyCandidate:
		if tx.Verification == nil {
			break
		}
		return "verifyCandidate", []interface{}{tx.Verification.CandidateID}, nil
	default:
		return "", nil, fmt.Errorf("unknown transaction type %q", tx.TxType)
	}
	return "", nil, fmt.Errorf("%s transaction without payload", tx.TxType)
}

func unixSeconds(t time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}

func (c *Client) Estimate(ctx context.Context, tx messages.Transaction) (uint64, error) {
	if c.key == nil {
		return 0, ErrReadOnly
	}
	method, args, err := packTransaction(tx)
	if err != nil {
		return 0, err
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return 0, fmt.Errorf("packing %s: %w", method, err)
	}
	return c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &c.address, Data: data})
}

// Submit signs and sends tx. When receipts are awaited a reverted transaction
// returns its Result alongside ErrReverted, so the hash is not lost.
func (c *Client) Submit(ctx context.Context, tx messages.Transaction) (*messages.Result, error) {
	if c.key == nil {
		return nil, ErrReadOnly
	}
	method, args, err := packTransaction(tx)
	if err != nil {
		return nil, err
	}
	opts, err := c.transactor(ctx)
	if err != nil {
		return nil, err
	}
	// nonces come from the pending state, so sends must not interleave
	c.sendMu.Lock()
	signed, err := c.contract.Transact(opts, method, args...)
	c.sendMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sending %s: %w", method, err)
	}
	result := &messages.Result{Hash: signed.Hash().Hex()}
	c.logger.Info("Sent transaction", "method", method, "hash", result.Hash, "nonce", signed.Nonce())
	if !c.waitReceipts {
		return result, nil
	}
	receipt, err := bind.WaitMined(ctx, c.backend, signed)
	if err != nil {
		return result, fmt.Errorf("waiting for %s: %w", result.Hash, err)
	}
	result.Receipt = receipt
	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, fmt.Errorf("%s in block %v: %w", method, receipt.BlockNumber, ErrReverted)
	}
	return result, nil
}

// ------------------------------------------------------------------------------------------------------------------- //
// READS

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	operation := func() error {
		out = nil
		err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
		if errors.Is(err, bind.ErrNoCode) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.readAttempts-1), ctx)
	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		c.logger.Debug("Retrying read", "method", method, "wait", wait, "err", err)
	})
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	return out, nil
}

func (c *Client) Election(ctx context.Context, id *big.Int) (*messages.ElectionView, error) {
	out, err := c.call(ctx, string(messages.QueryElection), id)
	if err != nil {
		return nil, err
	}
	return unpackElection(id, out)
}

func (c *Client) Candidate(ctx context.Context, id *big.Int) (*messages.CandidateView, error) {
	out, err := c.call(ctx, string(messages.QueryCandidate), id)
	if err != nil {
		return nil, err
	}
	return unpackCandidate(id, out)
}

func (c *Client) HasVoted(ctx context.Context, electionID, positionID *big.Int, voter common.Address) (bool, error) {
	out, err := c.call(ctx, string(messages.QueryHasVoted), electionID, positionID, voter)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, errors.New("hasVoted: unexpected output")
	}
	voted, ok := out[0].(bool)
	if !ok {
		return false, errors.New("hasVoted: unexpected output")
	}
	return voted, nil
}

func (c *Client) ElectionCount(ctx context.Context) (*big.Int, error) {
	return c.count(ctx, messages.QueryElectionCount)
}

func (c *Client) CandidateCount(ctx context.Context) (*big.Int, error) {
	return c.count(ctx, messages.QueryCandidateCount)
}

func (c *Client) count(ctx context.Context, query messages.QueryType) (*big.Int, error) {
	out, err := c.call(ctx, string(query))
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected output", query)
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output", query)
	}
	return count, nil
}

func unpackElection(id *big.Int, out []interface{}) (*messages.ElectionView, error) {
	if len(out) != 5 {
		return nil, fmt.Errorf("getElection: %d outputs", len(out))
	}
	name, ok1 := out[0].(string)
	start, ok2 := out[1].(uint64)
	end, ok3 := out[2].(uint64)
	active, ok4 := out[3].(bool)
	total, ok5 := out[4].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return nil, errors.New("getElection: unexpected output types")
	}
	return &messages.ElectionView{
		ID:         new(big.Int).Set(id),
		Name:       name,
		StartTime:  time.Unix(int64(start), 0).UTC(),
		EndTime:    time.Unix(int64(end), 0).UTC(),
		Active:     active,
		TotalVotes: total,
	}, nil
}

func unpackCandidate(id *big.Int, out []interface{}) (*messages.CandidateView, error) {
	if len(out) != 5 {
		return nil, fmt.Errorf("getCandidate: %d outputs", len(out))
	}
	name, ok1 := out[0].(string)
	electionID, ok2 := out[1].(*big.Int)
	positionID, ok3 := out[2].(*big.Int)
	verified, ok4 := out[3].(bool)
	votes, ok5 := out[4].(*big.Int)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return nil, errors.New("getCandidate: unexpected output types")
	}
	return &messages.CandidateView{
		ID:         new(big.Int).Set(id),
		ElectionID: electionID,
		PositionID: positionID,
		Name:       name,
		Verified:   verified,
		VoteCount:  votes,
	}, nil
}
