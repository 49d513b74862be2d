package modules

import (
	"ballot-node/cache"
	"ballot-node/messages"
	"ballot-node/metrics"
	"context"
	"errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tendermint/tendermint/libs/log"
	"math/big"
	"sync"
	"testing"
	"time"
)

func mockSynchronizer(t *testing.T, source EventSource, poll time.Duration) (*Synchronizer, *recordingCache, *IdentifierMap) {
	ids := mockIdentifierMap(t)
	invalidated := &recordingCache{}
	return NewSynchronizer(source, ids, invalidated, metrics.New(), poll, log.NewNopLogger()), invalidated, ids
}

func eventually(condition func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}

// ------------------------------------------------------------------------------------------------------------------- //
// DECODING

func TestDecodePositional(t *testing.T) {
	keys, err := DecodeVote(messages.PositionalPayload(big.NewInt(1), uint64(2), "3", mockAccount))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if keys.Election.Int64() != 1 || keys.Position.Int64() != 2 || keys.Candidate.Int64() != 3 {
		t.Errorf("Wrong keys %+v", keys)
	}
}

func TestDecodeNamed(t *testing.T) {
	keys, err := DecodeVote(messages.NamedPayload(map[string]interface{}{
		"electionId":  common.BigToHash(big.NewInt(4)),
		"position_id": "0x05",
		"candidateId": *big.NewInt(6),
	}))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if keys.Election.Int64() != 4 || keys.Position.Int64() != 5 || keys.Candidate.Int64() != 6 {
		t.Errorf("Wrong keys %+v", keys)
	}
}

func TestDecodePartial(t *testing.T) {
	keys, err := DecodeVote(messages.PositionalPayload(big.NewInt(1), "not a number"))
	if err != nil {
		t.Fatalf("Partial payload rejected: %v", err)
	}
	if keys.Election == nil || keys.Position != nil || keys.Candidate != nil {
		t.Errorf("Wrong partial keys %+v", keys)
	}
	keys, _ = DecodeVote(messages.NamedPayload(map[string]interface{}{"candidateId": -3}))
	if !keys.Empty() {
		t.Errorf("Negative id decoded")
	}
}

func TestDecodeUnknownShape(t *testing.T) {
	var decodeErr *DecodeError
	if _, err := DecodeVote(messages.Payload{}); !errors.As(err, &decodeErr) {
		t.Errorf("Unknown shape decoded")
	}
	if _, err := DecodeVote(messages.Payload{Shape: messages.ShapeNamed}); !errors.As(err, &decodeErr) {
		t.Errorf("Empty named payload decoded")
	}
}

// ------------------------------------------------------------------------------------------------------------------- //
// INVALIDATION

func TestVoteInvalidatesTargetedKeys(t *testing.T) {
	s, invalidated, ids := mockSynchronizer(t, nil, 0)
	ids.Insert(KindElection, "election_1", big.NewInt(7))
	s.HandleVote(messages.VoteEvent{Payload: messages.PositionalPayload(
		big.NewInt(7), big.NewInt(1), big.NewInt(9), mockAccount)})
	for _, key := range []string{
		cache.ElectionsKey,
		cache.CandidatesKey,
		cache.ElectionKey("7"),
		cache.ElectionKey("election_1"),
		cache.CandidateKey("9"),
		cache.HasVotedKey("7", "1", mockAccount.Hex()),
	} {
		if !invalidated.has(key) {
			t.Errorf("Key %s not invalidated", key)
		}
	}
	if invalidated.broad() != 0 {
		t.Errorf("Decodable event caused broad invalidation")
	}
}

func TestPartialVoteInvalidatesLists(t *testing.T) {
	s, invalidated, _ := mockSynchronizer(t, nil, 0)
	s.HandleVote(messages.VoteEvent{Payload: messages.NamedPayload(map[string]interface{}{
		"candidateId": struct{}{},
	})})
	if !invalidated.has(cache.ElectionsKey) || !invalidated.has(cache.CandidatesKey) {
		t.Errorf("List keys not invalidated")
	}
}

func TestUndecodableVoteInvalidatesAll(t *testing.T) {
	s, invalidated, _ := mockSynchronizer(t, nil, 0)
	s.HandleVote(messages.VoteEvent{Payload: messages.Payload{Shape: messages.ShapePositional}})
	if invalidated.broad() != 1 {
		t.Errorf("Expected broad invalidation")
	}
}

func TestPoll(t *testing.T) {
	s, invalidated, _ := mockSynchronizer(t, nil, 0)
	s.Poll()
	if !invalidated.has(cache.ElectionsKey) {
		t.Errorf("Poll did not invalidate the election list")
	}
}

// ------------------------------------------------------------------------------------------------------------------- //
// TEARDOWN

type unsubscriber struct{ calls int }

func (u *unsubscriber) Unsubscribe() { u.calls++ }

type stopper struct{ calls int }

func (s *stopper) Stop() error { s.calls++; return errors.New("already stopped") }

type panicker struct{}

func (panicker) Unsubscribe() { panic("boom") }

func TestTeardown(t *testing.T) {
	if err := Teardown(nil)(); err != nil {
		t.Errorf("Nil handle: %v", err)
	}
	if err := Teardown(42)(); err != nil {
		t.Errorf("Unknown handle: %v", err)
	}

	calls := 0
	teardown := Teardown(func() { calls++ })
	teardown()
	teardown()
	if calls != 1 {
		t.Errorf("Function handle called %d times", calls)
	}

	u := &unsubscriber{}
	teardown = Teardown(u)
	teardown()
	teardown()
	if u.calls != 1 {
		t.Errorf("Unsubscribe called %d times", u.calls)
	}

	s := &stopper{}
	if err := Teardown(s)(); err == nil || s.calls != 1 {
		t.Errorf("Stop error not reported")
	}

	if err := Teardown(panicker{})(); err == nil {
		t.Errorf("Panic not reported")
	}
}

type cancelHandle func()

type closeHandle func() error

func TestTeardownNamedFunctions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if err := Teardown(cancel)(); err != nil {
		t.Errorf("CancelFunc: %v", err)
	}
	if ctx.Err() == nil {
		t.Errorf("CancelFunc handle was not called")
	}

	called := 0
	teardown := Teardown(cancelHandle(func() { called++ }))
	teardown()
	teardown()
	if called != 1 {
		t.Errorf("Named function handle called %d times", called)
	}

	if err := Teardown(closeHandle(func() error { return errors.New("closed twice") }))(); err == nil {
		t.Errorf("Named function error not reported")
	}
	if err := Teardown(closeHandle(func() error { return nil }))(); err != nil {
		t.Errorf("Named function: %v", err)
	}

	if err := Teardown(cancelHandle(nil))(); err != nil {
		t.Errorf("Nil named function: %v", err)
	}
	if err := Teardown(func(int) {})(); err != nil {
		t.Errorf("Function with arguments: %v", err)
	}
}

// ------------------------------------------------------------------------------------------------------------------- //
// SERVICE

type fakeSource struct {
	mu      sync.Mutex
	sink    chan<- messages.VoteEvent
	handles []*fakeSubscription
	fail    bool
}

type fakeSubscription struct {
	mu       sync.Mutex
	errs     chan error
	unsubbed bool
}

func (s *fakeSubscription) Unsubscribe() {
	s.mu.Lock()
	s.unsubbed = true
	s.mu.Unlock()
}

func (s *fakeSubscription) Err() <-chan error { return s.errs }

func (s *fakeSubscription) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubbed
}

func (f *fakeSource) SubscribeVotes(ctx context.Context, sink chan<- messages.VoteEvent) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("dial refused")
	}
	f.sink = sink
	handle := &fakeSubscription{errs: make(chan error, 1)}
	f.handles = append(f.handles, handle)
	return handle, nil
}

func (f *fakeSource) subscriptions() []*fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSubscription(nil), f.handles...)
}

func TestSynchronizerService(t *testing.T) {
	source := &fakeSource{}
	s, invalidated, _ := mockSynchronizer(t, source, time.Hour)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	source.mu.Lock()
	sink := source.sink
	source.mu.Unlock()
	sink <- messages.VoteEvent{Payload: messages.PositionalPayload(big.NewInt(2), big.NewInt(1), big.NewInt(5))}
	if !eventually(func() bool { return invalidated.has(cache.CandidateKey("5")) }) {
		t.Errorf("Event not handled")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	handles := source.subscriptions()
	if len(handles) != 1 || !handles[0].stopped() {
		t.Errorf("Subscription not torn down")
	}
}

func TestSynchronizerResubscribes(t *testing.T) {
	source := &fakeSource{fail: true}
	s, invalidated, _ := mockSynchronizer(t, source, 10*time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatalf("Failed handshake should not stop the service: %v", err)
	}
	defer s.Stop()
	if !eventually(func() bool { return invalidated.has(cache.ElectionsKey) }) {
		t.Errorf("Poll did not run")
	}
	source.mu.Lock()
	source.fail = false
	source.mu.Unlock()
	if !eventually(s.Subscribed) {
		t.Fatalf("Never resubscribed")
	}

	source.subscriptions()[0].errs <- errors.New("connection reset")
	if !eventually(func() bool { return invalidated.broad() > 0 }) {
		t.Errorf("Dropped stream did not invalidate the cache")
	}
	if !eventually(func() bool { return len(source.subscriptions()) > 1 }) {
		t.Errorf("Dropped stream not resubscribed")
	}
	if !source.subscriptions()[0].stopped() {
		t.Errorf("Dropped subscription not torn down")
	}
}
