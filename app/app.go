package app

import (
	"ballot-node/cache"
	"ballot-node/config"
	"ballot-node/crypto"
	"ballot-node/ledger"
	"ballot-node/messages"
	"ballot-node/metrics"
	"ballot-node/modules"
	"ballot-node/wallet"
	"context"
	"errors"
	"fmt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	tmdb "github.com/tendermint/tm-db"
	"io/fs"
	"math/big"
	"strconv"
	"time"
)

// Ledger is everything the client needs from the election contract.
type Ledger interface {
	modules.Ledger
	Address() common.Address
	EventID(name string) common.Hash
	Election(ctx context.Context, id *big.Int) (*messages.ElectionView, error)
	Candidate(ctx context.Context, id *big.Int) (*messages.CandidateView, error)
	HasVoted(ctx context.Context, electionID, positionID *big.Int, voter common.Address) (bool, error)
	ElectionCount(ctx context.Context) (*big.Int, error)
	CandidateCount(ctx context.Context) (*big.Int, error)
}

type Client struct {
	IDs     *modules.IdentifierMap
	Cache   *cache.QueryCache
	Tracker *modules.Tracker
	Sync    *modules.Synchronizer
	Metrics *metrics.Metrics
	Monitor *wallet.Monitor // nil unless opened against a live endpoint

	chain         Ledger
	adminAttempts int
	now           func() time.Time
	services      []service.Service
	closers       []func() error
	logger        log.Logger
}

func NewClient(cfg *config.Config, db tmdb.DB, chain Ledger, events modules.EventSource,
	state modules.WalletState, m *metrics.Metrics, logger log.Logger) (*Client, error) {
	policy, err := modules.ParseHashPolicy(cfg.HashPolicy)
	if err != nil {
		return nil, err
	}
	ids, err := modules.NewIdentifierMap(db, logger)
	if err != nil {
		return nil, err
	}
	queryCache, err := cache.New(cfg.CacheSize, logger)
	if err != nil {
		return nil, err
	}
	client := &Client{
		IDs:           ids,
		Cache:         queryCache,
		Metrics:       m,
		chain:         chain,
		adminAttempts: cfg.AdminWriteAttempts,
		now:           time.Now,
		logger:        logger.With("module", "app"),
	}
	client.Tracker = modules.NewTracker(modules.NewGuard(state), ids, chain, queryCache, m, logger,
		modules.TrackerOptions{HashPolicy: policy, CreationLogs: creationLogs(chain)})
	client.Sync = modules.NewSynchronizer(events, ids, queryCache, m, cfg.PollInterval, logger)
	client.services = []service.Service{client.Sync}
	if client.adminAttempts < 1 {
		client.adminAttempts = 1
	}
	return client, nil
}

// Open builds a client against the configured endpoint and identifier store.
// A missing key file is not an error; the client can still read.
func Open(ctx context.Context, cfg *config.Config, logger log.Logger) (*Client, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadSigningKey(cfg.KeyPath())
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("No signing key, writes are disabled", "file", cfg.KeyPath())
		key, err = nil, nil
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	backend, err := ledger.Dial(ctx, cfg.RPCURL, cfg.RPCTimeout)
	if err != nil {
		db.Close()
		return nil, err
	}
	chainIDs := cfg.ChainIDs()
	chain, err := ledger.New(backend, ledger.Options{
		Address:      cfg.Contract(),
		Key:          key,
		WaitReceipts: cfg.WaitReceipts,
		ReadAttempts: cfg.ReadAttempts,
	}, logger)
	if err != nil {
		backend.Close()
		db.Close()
		return nil, err
	}
	monitor := wallet.NewMonitor(backend, key, chainIDs, cfg.WalletRefreshInterval, cfg.RPCTimeout, logger)
	events := modules.EventSourceFunc(func(ctx context.Context, sink chan<- messages.VoteEvent) (interface{}, error) {
		return chain.SubscribeVotes(ctx, sink)
	})
	client, err := NewClient(cfg, db, chain, events, monitor, metrics.New(), logger)
	if err != nil {
		backend.Close()
		db.Close()
		return nil, err
	}
	client.Monitor = monitor
	client.services = append([]service.Service{monitor}, client.services...)
	client.closers = []func() error{
		func() error { backend.Close(); return nil },
		db.Close,
	}
	return client, nil
}

func creationLogs(chain Ledger) map[modules.Kind]modules.CreationLog {
	return map[modules.Kind]modules.CreationLog{
		modules.KindElection:  {Address: chain.Address(), Topic: chain.EventID(messages.ElectionCreatedEvent)},
		modules.KindCandidate: {Address: chain.Address(), Topic: chain.EventID(messages.CandidateAddedEvent)},
	}
}

func openDB(cfg *config.Config) (tmdb.DB, error) {
	switch cfg.DBBackend {
	case config.BackendMemDB:
		return tmdb.NewMemDB(), nil
	case config.BackendGoLevelDB:
		db, err := tmdb.NewGoLevelDB("idmap", cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("opening identifier store: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unsupported db backend %q", cfg.DBBackend)
}

func (c *Client) Start() error {
	for _, s := range c.services {
		if err := s.Start(); err != nil {
			return fmt.Errorf("starting %s: %w", s, err)
		}
	}
	return nil
}

// Stop stops the services in reverse order and releases the store and the
// connection. It is safe on a client that was never started.
func (c *Client) Stop() {
	for i := len(c.services) - 1; i >= 0; i-- {
		if c.services[i].IsRunning() {
			if err := c.services[i].Stop(); err != nil {
				c.logger.Error("Stopping service", "service", c.services[i], "err", err)
			}
		}
	}
	for _, closer := range c.closers {
		if err := closer(); err != nil {
			c.logger.Error("Closing resource", "err", err)
		}
	}
}

// Refresh updates the wallet facts once; one-shot commands call it instead
// of starting the monitor.
func (c *Client) Refresh(ctx context.Context) {
	if c.Monitor != nil {
		c.Monitor.Refresh(ctx)
	}
}

// ------------------------------------------------------------------------------------------------------------------- //
// WRITES

func (c *Client) SubmitVote(ctx context.Context, req modules.VoteRequest) (modules.Record, error) {
	return c.Tracker.SubmitVote(ctx, req)
}

func (c *Client) CreateElection(ctx context.Context, req modules.CreateElectionRequest) (modules.Record, error) {
	if req.UIID == "" {
		// fixed before the first attempt so a retry maps the same id
		req.UIID = "election_" + strconv.FormatInt(c.now().UnixNano()/int64(time.Millisecond), 10)
	}
	return c.administrative(messages.TxCreateElection, func() (modules.Record, error) {
		return c.Tracker.CreateElection(ctx, req)
	})
}

func (c *Client) AddCandidate(ctx context.Context, req modules.AddCandidateRequest) (modules.Record, error) {
	if req.UIID == "" {
		req.UIID = "candidate_" + strconv.FormatInt(c.now().UnixNano()/int64(time.Millisecond), 10)
	}
	return c.administrative(messages.TxAddCandidate, func() (modules.Record, error) {
		return c.Tracker.AddCandidate(ctx, req)
	})
}

func (c *Client) VerifyCandidate(ctx context.Context, req modules.VerifyCandidateRequest) (modules.Record, error) {
	return c.administrative(messages.TxVerifyCandidate, func() (modules.Record, error) {
		return c.Tracker.VerifyCandidate(ctx, req)
	})
}

// administrative runs an admin write up to adminAttempts times. Only ledger
// failures are retried, and not those the chain already executed and reverted.
func (c *Client) administrative(kind messages.TransactionType, write func() (modules.Record, error)) (modules.Record, error) {
	var record modules.Record
	var err error
	for attempt := 1; attempt <= c.adminAttempts; attempt++ {
		record, err = write()
		if err == nil || !retryable(err) {
			return record, err
		}
		if attempt < c.adminAttempts {
			c.logger.Info("Retrying administrative write", "kind", kind, "attempt", attempt, "err", err)
		}
	}
	return record, err
}

func retryable(err error) bool {
	var rpcErr *modules.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return !errors.Is(err, ledger.ErrReverted) && !errors.Is(err, ledger.ErrReadOnly) &&
		!errors.Is(err, modules.ErrMissingHash)
}

func (c *Client) Records() []modules.Record {
	return c.Tracker.Records()
}

// ------------------------------------------------------------------------------------------------------------------- //
// READS

func (c *Client) Election(ctx context.Context, electionID string) (*messages.ElectionView, error) {
	id, err := c.IDs.Resolve(modules.KindElection, electionID)
	if err != nil {
		return nil, err
	}
	return c.election(ctx, id)
}

func (c *Client) election(ctx context.Context, id *big.Int) (*messages.ElectionView, error) {
	value, err := c.Cache.Fetch(ctx, cache.ElectionKey(id.String()), func(ctx context.Context) (interface{}, error) {
		return c.chain.Election(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return value.(*messages.ElectionView), nil
}

func (c *Client) Candidate(ctx context.Context, candidateID string) (*messages.CandidateView, error) {
	id, err := c.IDs.Resolve(modules.KindCandidate, candidateID)
	if err != nil {
		return nil, err
	}
	return c.candidate(ctx, id)
}

func (c *Client) candidate(ctx context.Context, id *big.Int) (*messages.CandidateView, error) {
	value, err := c.Cache.Fetch(ctx, cache.CandidateKey(id.String()), func(ctx context.Context) (interface{}, error) {
		return c.chain.Candidate(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return value.(*messages.CandidateView), nil
}

func (c *Client) HasVoted(ctx context.Context, electionID, positionID string, voter common.Address) (bool, error) {
	election, err := c.IDs.Resolve(modules.KindElection, electionID)
	if err != nil {
		return false, err
	}
	position, err := c.IDs.Resolve(modules.KindPosition, positionID)
	if err != nil {
		return false, err
	}
	key := cache.HasVotedKey(election.String(), position.String(), voter.Hex())
	value, err := c.Cache.Fetch(ctx, key, func(ctx context.Context) (interface{}, error) {
		return c.chain.HasVoted(ctx, election, position, voter)
	})
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

// Elections lists every election the contract knows. Ledger ids start at 1.
func (c *Client) Elections(ctx context.Context) ([]*messages.ElectionView, error) {
	value, err := c.Cache.Fetch(ctx, cache.ElectionsKey, func(ctx context.Context) (interface{}, error) {
		count, err := c.chain.ElectionCount(ctx)
		if err != nil {
			return nil, err
		}
		elections := make([]*messages.ElectionView, 0, count.Int64())
		for id := int64(1); id <= count.Int64(); id++ {
			election, err := c.election(ctx, big.NewInt(id))
			if err != nil {
				return nil, err
			}
			elections = append(elections, election)
		}
		return elections, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]*messages.ElectionView), nil
}

func (c *Client) Candidates(ctx context.Context) ([]*messages.CandidateView, error) {
	value, err := c.Cache.Fetch(ctx, cache.CandidatesKey, func(ctx context.Context) (interface{}, error) {
		count, err := c.chain.CandidateCount(ctx)
		if err != nil {
			return nil, err
		}
		candidates := make([]*messages.CandidateView, 0, count.Int64())
		for id := int64(1); id <= count.Int64(); id++ {
			candidate, err := c.candidate(ctx, big.NewInt(id))
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, candidate)
		}
		return candidates, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]*messages.CandidateView), nil
}

// OpenIdentifierMap opens only the identifier store, for commands that do not
// talk to the ledger.
func OpenIdentifierMap(cfg *config.Config, logger log.Logger) (*modules.IdentifierMap, func() error, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	ids, err := modules.NewIdentifierMap(db, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return ids, db.Close, nil
}
