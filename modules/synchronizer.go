package modules

import (
	"ballot-node/cache"
	"ballot-node/messages"
	"ballot-node/metrics"
	"context"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"math/big"
	"sync"
	"time"
)

const DefaultPollInterval = 30 * time.Second

// EventSource delivers VoteCast events into sink until the returned handle is
// torn down. See Teardown for the handles it may return.
type EventSource interface {
	SubscribeVotes(ctx context.Context, sink chan<- messages.VoteEvent) (interface{}, error)
}

type EventSourceFunc func(ctx context.Context, sink chan<- messages.VoteEvent) (interface{}, error)

func (f EventSourceFunc) SubscribeVotes(ctx context.Context, sink chan<- messages.VoteEvent) (interface{}, error) {
	return f(ctx, sink)
}

// Synchronizer keeps the read cache honest against votes it did not submit
// itself. Events give targeted invalidation; the poll is the only defence
// against events that never arrive.
type Synchronizer struct {
	service.BaseService

	source       EventSource
	ids          *IdentifierMap
	cache        cache.Invalidator
	metrics      *metrics.Metrics
	pollInterval time.Duration
	events       chan messages.VoteEvent

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	teardown func() error
	failures <-chan error
}

func NewSynchronizer(source EventSource, ids *IdentifierMap, invalidator cache.Invalidator,
	m *metrics.Metrics, pollInterval time.Duration, logger log.Logger) *Synchronizer {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	s := &Synchronizer{
		source:       source,
		ids:          ids,
		cache:        invalidator,
		metrics:      m,
		pollInterval: pollInterval,
		events:       make(chan messages.VoteEvent, 64),
	}
	s.BaseService = *service.NewBaseService(logger.With("module", "sync"), "Synchronizer", s)
	return s
}

func (s *Synchronizer) OnStart() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()
	// a failed handshake is not fatal, the poll keeps running and retries it
	s.subscribe()
	go s.loop()
	return nil
}

func (s *Synchronizer) OnStop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.unsubscribe()
}

// Subscribed reports whether an event subscription is currently held.
func (s *Synchronizer) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardown != nil
}

func (s *Synchronizer) subscribe() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	handle, err := s.source.SubscribeVotes(ctx, s.events)
	if err != nil {
		s.Logger.Error("Vote subscription failed", "err", err)
		return
	}
	var failures <-chan error
	if h, ok := handle.(interface{ Err() <-chan error }); ok {
		failures = h.Err()
	}
	s.mu.Lock()
	s.teardown = Teardown(handle)
	s.failures = failures
	s.mu.Unlock()
	s.Logger.Info("Subscribed to vote events")
}

func (s *Synchronizer) unsubscribe() {
	s.mu.Lock()
	teardown := s.teardown
	s.teardown = nil
	s.failures = nil
	s.mu.Unlock()
	if teardown == nil {
		return
	}
	if err := teardown(); err != nil {
		s.Logger.Error("Vote subscription teardown failed", "err", err)
	}
}

func (s *Synchronizer) loop() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		failures := s.failures
		s.mu.Unlock()
		select {
		case <-s.Quit():
			return
		case event := <-s.events:
			s.HandleVote(event)
		case err, ok := <-failures:
			if !ok || err == nil {
				s.mu.Lock()
				if s.failures == failures {
					s.failures = nil
				}
				s.mu.Unlock()
				continue
			}
			s.Logger.Error("Vote subscription dropped", "err", err)
			s.unsubscribe()
			// whatever arrived while the stream was down is lost
			s.invalidateAll()
		case <-ticker.C:
			s.Poll()
			if !s.Subscribed() {
				s.subscribe()
			}
		}
	}
}

// Poll re-invalidates the election list.
func (s *Synchronizer) Poll() {
	s.cache.Invalidate(cache.ElectionsKey)
	s.metrics.Invalidations.WithLabelValues("poll").Inc()
}

// HandleVote invalidates what a single VoteCast event may have changed.
func (s *Synchronizer) HandleVote(event messages.VoteEvent) {
	s.metrics.EventsReceived.Inc()
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("Vote event handling panicked", "tx", event.TxHash, "panic", r)
			s.invalidateAll()
		}
	}()
	ids, err := DecodeVote(event.Payload)
	if err != nil {
		s.metrics.DecodeFailures.Inc()
		s.Logger.Debug("Undecodable vote event", "tx", event.TxHash, "err", err)
		s.invalidateAll()
		return
	}
	keys := s.keysFor(ids, decodeVoter(event.Payload))
	s.cache.Invalidate(keys...)
	s.metrics.Invalidations.WithLabelValues("targeted").Inc()
	s.Logger.Debug("Vote event", "tx", event.TxHash, "block", event.BlockNumber, "keys", len(keys))
}

func (s *Synchronizer) keysFor(ids VoteKeys, voter *common.Address) []string {
	keys := []string{cache.ElectionsKey, cache.CandidatesKey}
	if ids.Election != nil {
		keys = append(keys, s.entityKeys(KindElection, ids.Election, cache.ElectionKey)...)
	}
	if ids.Candidate != nil {
		keys = append(keys, s.entityKeys(KindCandidate, ids.Candidate, cache.CandidateKey)...)
	}
	if ids.Election != nil && ids.Position != nil && voter != nil {
		keys = append(keys, cache.HasVotedKey(ids.Election.String(), ids.Position.String(), voter.Hex()))
	}
	return keys
}

// entityKeys covers both the numeric form and the application id, since a
// read may have been cached under either.
func (s *Synchronizer) entityKeys(kind Kind, id *big.Int, key func(string) string) []string {
	keys := []string{key(id.String())}
	if uiID, ok := s.ids.LookupUI(kind, id); ok && uiID != id.String() {
		keys = append(keys, key(uiID))
	}
	return keys
}

func (s *Synchronizer) invalidateAll() {
	s.cache.InvalidateAll()
	s.metrics.Invalidations.WithLabelValues("broad").Inc()
}

func decodeVoter(payload messages.Payload) *common.Address {
	var value interface{}
	switch payload.Shape {
	case messages.ShapePositional:
		if len(payload.Positional) > 3 {
			value = payload.Positional[3]
		}
	case messages.ShapeNamed:
		value = payload.Named["voter"]
	}
	switch v := value.(type) {
	case common.Address:
		return &v
	case *common.Address:
		return v
	case string:
		if common.IsHexAddress(v) {
			address := common.HexToAddress(v)
			return &address
		}
	}
	return nil
}
