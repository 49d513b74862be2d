package modules

import (
	"ballot-node/messages"
	"ballot-node/metrics"
	"context"
	"fmt"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	"sync"
	"testing"
)

var mockAccount = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

type fakeWallet struct {
	connected bool
	network   bool
	signer    bool
	account   bool
}

func readyWallet() *fakeWallet {
	return &fakeWallet{connected: true, network: true, signer: true, account: true}
}

func (w *fakeWallet) Connected() bool          { return w.connected }
func (w *fakeWallet) OnSupportedNetwork() bool { return w.network }
func (w *fakeWallet) SignerReady() bool        { return w.signer }

func (w *fakeWallet) Account() (common.Address, bool) {
	if !w.account {
		return common.Address{}, false
	}
	return mockAccount, true
}

type fakeLedger struct {
	mu          sync.Mutex
	estimates   int
	submits     int
	estimateErr error
	submitErr   error
	// result is returned as is when set, otherwise a fresh hash is generated
	result    *messages.Result
	submitted []messages.Transaction
}

func (l *fakeLedger) Estimate(ctx context.Context, tx messages.Transaction) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.estimates++
	if l.estimateErr != nil {
		return 0, l.estimateErr
	}
	return 21000, nil
}

func (l *fakeLedger) Submit(ctx context.Context, tx messages.Transaction) (*messages.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submits++
	l.submitted = append(l.submitted, tx)
	if l.submitErr != nil {
		return l.result, l.submitErr
	}
	if l.result != nil {
		return l.result, nil
	}
	return &messages.Result{Hash: fmt.Sprintf("0x%064x", l.submits)}, nil
}

func (l *fakeLedger) calls() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.estimates, l.submits
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
	all         int
}

func (c *recordingCache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, keys...)
}

func (c *recordingCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all++
}

func (c *recordingCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, invalidated := range c.invalidated {
		if invalidated == key {
			return true
		}
	}
	return false
}

func (c *recordingCache) broad() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.all
}

func mockIdentifierMap(t *testing.T) *IdentifierMap {
	return mockIdentifierMapOn(tmdb.NewMemDB(), t)
}

func mockIdentifierMapOn(db tmdb.DB, t *testing.T) *IdentifierMap {
	ids, err := NewIdentifierMap(db, log.NewNopLogger())
	if err != nil {
		t.Fatalf("Identifier map: %v", err)
	}
	return ids
}

type trackerFixture struct {
	wallet   *fakeWallet
	ledger   *fakeLedger
	ids      *IdentifierMap
	cache    *recordingCache
	tracker  *Tracker
	observed *[]Record
}

func mockTracker(t *testing.T, policy HashPolicy) trackerFixture {
	return mockTrackerWith(t, TrackerOptions{HashPolicy: policy})
}

func mockTrackerWith(t *testing.T, options TrackerOptions) trackerFixture {
	fixture := trackerFixture{
		wallet:   readyWallet(),
		ledger:   &fakeLedger{},
		ids:      mockIdentifierMap(t),
		cache:    &recordingCache{},
		observed: &[]Record{},
	}
	var mu sync.Mutex
	options.Observer = func(record Record) {
		mu.Lock()
		*fixture.observed = append(*fixture.observed, record)
		mu.Unlock()
	}
	fixture.tracker = NewTracker(NewGuard(fixture.wallet), fixture.ids, fixture.ledger, fixture.cache,
		metrics.New(), log.NewNopLogger(), options)
	return fixture
}

func statuses(records []Record) []Status {
	var sequence []Status
	for _, record := range records {
		sequence = append(sequence, record.Status)
	}
	return sequence
}
