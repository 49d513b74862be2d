package modules

import (
	"ballot-node/cache"
	"ballot-node/messages"
	"ballot-node/metrics"
	"context"
	"errors"
	"fmt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/tendermint/tendermint/libs/log"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

func (status Status) Terminal() bool {
	return status == StatusConfirmed || status == StatusFailed
}

// Record is one attempted write. While pending it is keyed by a placeholder
// id; once the ledger answers it is keyed by the transaction hash.
type Record struct {
	ID           string
	Kind         messages.TransactionType
	Subject      string // application id of the entity the write targets
	Status       Status
	Hash         string
	Receipt      *types.Receipt
	Err          error
	EstimatedGas uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Ledger submits writes. Submit blocks until the RPC settles; on a rejected
// transaction it may return a Result carrying the hash alongside the error.
type Ledger interface {
	Estimate(ctx context.Context, tx messages.Transaction) (uint64, error)
	Submit(ctx context.Context, tx messages.Transaction) (*messages.Result, error)
}

// RPCError wraps a ledger failure. The placeholder record stays failed with it.
type RPCError struct {
	Kind messages.TransactionType
	Hash string
	Err  error
}

func (e *RPCError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("%s %s failed: %v", e.Kind, e.Hash, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

var ErrMissingHash = errors.New("ledger returned no transaction hash")

type HashPolicy string

const (
	// HashSynthesize keeps a confirmed write whose hash the ledger omitted
	// under a locally generated "hash-<nanos>" id.
	HashSynthesize HashPolicy = "synthesize"
	// HashReject treats a missing hash as a failed write.
	HashReject HashPolicy = "reject"
)

func ParseHashPolicy(s string) (HashPolicy, error) {
	switch HashPolicy(s) {
	case HashSynthesize, HashReject:
		return HashPolicy(s), nil
	}
	return "", fmt.Errorf("unknown hash policy %q", s)
}

// CreationLog identifies the log a create write emits; its first indexed
// argument is the ledger id of the new entity.
type CreationLog struct {
	Address common.Address
	Topic   common.Hash
}

type TrackerOptions struct {
	HashPolicy HashPolicy
	// CreationLogs restricts id inference per kind to the matching log. A kind
	// without an entry considers every log of the receipt.
	CreationLogs map[Kind]CreationLog
	// Observer receives a copy of every record transition, after the table is updated.
	Observer func(Record)
	Now      func() time.Time
}

type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Record

	guard   *Guard
	ids     *IdentifierMap
	ledger  Ledger
	cache   cache.Invalidator
	metrics *metrics.Metrics
	logger  log.Logger
	options TrackerOptions
}

func NewTracker(guard *Guard, ids *IdentifierMap, ledger Ledger, invalidator cache.Invalidator,
	m *metrics.Metrics, logger log.Logger, options TrackerOptions) *Tracker {
	if options.HashPolicy == "" {
		options.HashPolicy = HashSynthesize
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Tracker{
		records: make(map[string]*Record),
		guard:   guard,
		ids:     ids,
		ledger:  ledger,
		cache:   invalidator,
		metrics: m,
		logger:  logger.With("module", "tracker"),
		options: options,
	}
}

type VoteRequest struct {
	ElectionID  string
	PositionID  string
	CandidateID string
}

type CreateElectionRequest struct {
	UIID      string   // generated when empty
	OnchainID *big.Int // when set, mapped directly instead of inferred from the receipt
	Name      string
	StartTime time.Time
	EndTime   time.Time
}

type AddCandidateRequest struct {
	UIID       string
	OnchainID  *big.Int
	ElectionID string
	PositionID string
	Name       string
	Wallet     common.Address
}

type VerifyCandidateRequest struct {
	CandidateID string
}

func (t *Tracker) SubmitVote(ctx context.Context, req VoteRequest) (Record, error) {
	if err := t.guard.Validate(); err != nil {
		return Record{}, err
	}
	vote := &messages.Vote{}
	var err error
	if vote.ElectionID, err = t.ids.Resolve(KindElection, req.ElectionID); err != nil {
		return Record{}, err
	}
	if vote.PositionID, err = t.ids.Resolve(KindPosition, req.PositionID); err != nil {
		return Record{}, err
	}
	if vote.CandidateID, err = t.ids.Resolve(KindCandidate, req.CandidateID); err != nil {
		return Record{}, err
	}
	tx := messages.Transaction{TxType: messages.TxSubmitVote, Vote: vote}
	return t.execute(ctx, tx, req.CandidateID, nil)
}

func (t *Tracker) CreateElection(ctx context.Context, req CreateElectionRequest) (Record, error) {
	if err := t.guard.Validate(); err != nil {
		return Record{}, err
	}
	uiID := req.UIID
	if uiID == "" {
		uiID = "election_" + strconv.FormatInt(t.options.Now().UnixNano()/int64(time.Millisecond), 10)
	}
	tx := messages.Transaction{
		TxType: messages.TxCreateElection,
		Election: &messages.Election{
			Name:      req.Name,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		},
	}
	return t.execute(ctx, tx, uiID, func(result *messages.Result) {
		t.enrich(KindElection, uiID, req.OnchainID, result.Receipt)
	})
}

func (t *Tracker) AddCandidate(ctx context.Context, req AddCandidateRequest) (Record, error) {
	if err := t.guard.Validate(); err != nil {
		return Record{}, err
	}
	candidate := &messages.Candidate{Name: req.Name, Wallet: req.Wallet}
	var err error
	if candidate.ElectionID, err = t.ids.Resolve(KindElection, req.ElectionID); err != nil {
		return Record{}, err
	}
	if candidate.PositionID, err = t.ids.Resolve(KindPosition, req.PositionID); err != nil {
		return Record{}, err
	}
	uiID := req.UIID
	if uiID == "" {
		uiID = "candidate_" + strconv.FormatInt(t.options.Now().UnixNano()/int64(time.Millisecond), 10)
	}
	tx := messages.Transaction{TxType: messages.TxAddCandidate, Candidate: candidate}
	return t.execute(ctx, tx, uiID, func(result *messages.Result) {
		t.enrich(KindCandidate, uiID, req.OnchainID, result.Receipt)
	})
}

func (t *Tracker) VerifyCandidate(ctx context.Context, req VerifyCandidateRequest) (Record, error) {
	if err := t.guard.Validate(); err != nil {
		return Record{}, err
	}
	candidateID, err := t.ids.Resolve(KindCandidate, req.CandidateID)
	if err != nil {
		return Record{}, err
	}
	tx := messages.Transaction{
		TxType:       messages.TxVerifyCandidate,
		Verification: &messages.Verification{CandidateID: candidateID},
	}
	return t.execute(ctx, tx, req.CandidateID, nil)
}

// execute runs everything after the guard and id resolution: placeholder,
// estimate, submission, promotion or failure.
func (t *Tracker) execute(ctx context.Context, tx messages.Transaction, subject string,
	onConfirmed func(*messages.Result)) (Record, error) {
	kind := string(tx.TxType)
	placeholder := t.begin(tx.TxType, subject)
	t.metrics.TxSubmitted.WithLabelValues(kind).Inc()

	gas, err := t.ledger.Estimate(ctx, tx)
	if err != nil {
		t.metrics.EstimateFailures.Inc()
		t.logger.Debug("Gas estimate skipped", "id", placeholder.ID, "err", err)
	} else {
		t.setEstimate(placeholder.ID, gas)
	}

	// once submitted, a write runs to completion regardless of the caller
	result, err := t.ledger.Submit(context.WithoutCancel(ctx), tx)
	if err != nil {
		hash := ""
		if result != nil {
			hash = result.Hash
		}
		return t.fail(placeholder, &RPCError{Kind: tx.TxType, Hash: hash, Err: err})
	}
	hash := result.Hash
	if hash == "" {
		if t.options.HashPolicy == HashReject {
			return t.fail(placeholder, &RPCError{Kind: tx.TxType, Err: ErrMissingHash})
		}
		hash = "hash-" + strconv.FormatInt(t.options.Now().UnixNano(), 10)
		t.logger.Error("Ledger returned no hash, synthesized one", "id", placeholder.ID, "hash", hash)
	}
	record := t.promote(placeholder, hash, result.Receipt)
	if onConfirmed != nil {
		onConfirmed(result)
	}
	t.cache.InvalidateAll()
	t.metrics.Invalidations.WithLabelValues("broad").Inc()
	return record, nil
}

func (t *Tracker) begin(kind messages.TransactionType, subject string) Record {
	now := t.options.Now()
	record := &Record{
		ID:        fmt.Sprintf("%s-%d-%s", kind, now.UnixNano(), uuid.NewString()[:8]),
		Kind:      kind,
		Subject:   subject,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.mu.Lock()
	t.records[record.ID] = record
	snapshot := *record
	t.mu.Unlock()
	t.logger.Info("Submitting transaction", "id", record.ID, "kind", kind, "subject", subject)
	t.notify(snapshot)
	return snapshot
}

func (t *Tracker) setEstimate(id string, gas uint64) {
	t.mu.Lock()
	if record, ok := t.records[id]; ok {
		record.EstimatedGas = gas
	}
	t.mu.Unlock()
}

// promote swaps the placeholder for a confirmed record keyed by hash in one
// critical section, so readers never see both or neither.
func (t *Tracker) promote(placeholder Record, hash string, receipt *types.Receipt) Record {
	now := t.options.Now()
	t.mu.Lock()
	pending, ok := t.records[placeholder.ID]
	if !ok {
		pending = &placeholder
	}
	confirmed := *pending
	confirmed.ID = hash
	confirmed.Hash = hash
	confirmed.Status = StatusConfirmed
	confirmed.Receipt = receipt
	confirmed.UpdatedAt = now
	if _, exists := t.records[hash]; exists {
		t.logger.Error("Replacing record with duplicate hash", "hash", hash)
	}
	t.records[hash] = &confirmed
	delete(t.records, placeholder.ID)
	t.mu.Unlock()

	t.metrics.TxConfirmed.WithLabelValues(string(confirmed.Kind)).Inc()
	t.metrics.TxLatency.WithLabelValues(string(confirmed.Kind)).Observe(now.Sub(confirmed.CreatedAt).Seconds())
	t.logger.Info("Transaction confirmed", "placeholder", placeholder.ID, "hash", hash, "kind", confirmed.Kind)
	t.notify(confirmed)
	return confirmed
}

func (t *Tracker) fail(placeholder Record, rpcErr *RPCError) (Record, error) {
	now := t.options.Now()
	t.mu.Lock()
	pending, ok := t.records[placeholder.ID]
	if !ok {
		pending = &placeholder
		t.records[placeholder.ID] = pending
	}
	pending.Status = StatusFailed
	pending.Hash = rpcErr.Hash
	pending.Err = rpcErr
	pending.UpdatedAt = now
	failed := *pending
	t.mu.Unlock()

	t.metrics.TxFailed.WithLabelValues(string(failed.Kind)).Inc()
	t.metrics.TxLatency.WithLabelValues(string(failed.Kind)).Observe(now.Sub(failed.CreatedAt).Seconds())
	t.logger.Error("Transaction failed", "id", failed.ID, "kind", failed.Kind, "err", rpcErr.Err)
	t.notify(failed)
	return failed, rpcErr
}

func (t *Tracker) notify(record Record) {
	if t.options.Observer != nil {
		t.options.Observer(record)
	}
}

// enrich maps a freshly created entity, from the explicit id when the request
// carried one and from the receipt logs otherwise.
func (t *Tracker) enrich(kind Kind, uiID string, explicit *big.Int, receipt *types.Receipt) {
	onchainID := explicit
	if onchainID == nil {
		onchainID = t.inferFromReceipt(kind, receipt)
	}
	if onchainID == nil {
		t.metrics.InferenceMisses.Inc()
		t.logger.Info("Could not infer ledger id", "kind", kind, "ui", uiID)
		return
	}
	t.ids.Insert(kind, uiID, onchainID)
}

func (t *Tracker) inferFromReceipt(kind Kind, receipt *types.Receipt) *big.Int {
	if receipt == nil {
		return nil
	}
	filter, filtered := t.options.CreationLogs[kind]
	for _, entry := range receipt.Logs {
		if entry == nil {
			continue
		}
		if filtered {
			if entry.Address != filter.Address || len(entry.Topics) < 2 || entry.Topics[0] != filter.Topic {
				continue
			}
			if id := InferID(entry.Topics[1].Bytes()); id != nil {
				return id
			}
			continue
		}
		if len(entry.Topics) > 1 {
			if id := InferID(entry.Topics[1].Bytes()); id != nil {
				return id
			}
		}
		if id := InferID(entry.Data); id != nil {
			return id
		}
	}
	return nil
}

// Records returns a snapshot of every record, newest first.
func (t *Tracker) Records() []Record {
	t.mu.RLock()
	records := make([]Record, 0, len(t.records))
	for _, record := range t.records {
		records = append(records, *record)
	}
	t.mu.RUnlock()
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
	return records
}

// Record looks a record up by its id or, for failed writes that still carry
// their placeholder id, by hash.
func (t *Tracker) Record(idOrHash string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if record, ok := t.records[idOrHash]; ok {
		return *record, true
	}
	for _, record := range t.records {
		if record.Hash != "" && record.Hash == idOrHash {
			return *record, true
		}
	}
	return Record{}, false
}
