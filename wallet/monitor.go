package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"math/big"
	"sync"
	"time"
)

const DefaultRefreshInterval = 10 * time.Second

// ChainProbe reports which chain the RPC endpoint serves.
type ChainProbe interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Monitor holds the wallet facts writes are checked against. Connectivity and
// network are refreshed from the endpoint on an interval; the account and the
// signer come from the key the node was started with.
type Monitor struct {
	service.BaseService

	probe     ChainProbe
	supported map[string]bool
	interval  time.Duration
	timeout   time.Duration
	account   common.Address
	hasKey    bool

	mu        sync.RWMutex
	connected bool
	chainID   *big.Int
	lastErr   error
}

func NewMonitor(probe ChainProbe, key *ecdsa.PrivateKey, supportedChainIDs []*big.Int,
	interval, timeout time.Duration, logger log.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	m := &Monitor{
		probe:     probe,
		supported: make(map[string]bool, len(supportedChainIDs)),
		interval:  interval,
		timeout:   timeout,
	}
	for _, id := range supportedChainIDs {
		m.supported[id.String()] = true
	}
	if key != nil {
		m.account = crypto.PubkeyToAddress(key.PublicKey)
		m.hasKey = true
	}
	m.BaseService = *service.NewBaseService(logger.With("module", "wallet"), "WalletMonitor", m)
	return m
}

func (m *Monitor) OnStart() error {
	m.Refresh(context.Background())
	go m.loop()
	return nil
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.Quit():
			return
		case <-ticker.C:
			m.Refresh(context.Background())
		}
	}
}

// Refresh asks the endpoint for its chain id once and records the outcome.
func (m *Monitor) Refresh(ctx context.Context) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	chainID, err := m.probe.ChainID(ctx)
	if err == nil && chainID == nil {
		err = errors.New("endpoint reported no chain id")
	}

	m.mu.Lock()
	wasConnected, previous := m.connected, m.chainID
	m.lastErr = err
	if err != nil {
		m.connected = false
	} else {
		m.connected = true
		m.chainID = chainID
	}
	m.mu.Unlock()

	switch {
	case err != nil && wasConnected:
		m.Logger.Error("Lost ledger endpoint", "err", err)
	case err != nil:
		m.Logger.Debug("Ledger endpoint unreachable", "err", err)
	case !wasConnected:
		m.Logger.Info("Connected to ledger endpoint", "chain", chainID, "supported", m.supported[chainID.String()])
	case previous != nil && previous.Cmp(chainID) != 0:
		m.Logger.Info("Ledger endpoint switched chain", "from", previous, "to", chainID)
	}
}

func (m *Monitor) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *Monitor) OnSupportedNetwork() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected && m.chainID != nil && m.supported[m.chainID.String()]
}

func (m *Monitor) SignerReady() bool {
	return m.hasKey
}

func (m *Monitor) Account() (common.Address, bool) {
	return m.account, m.hasKey
}

// ChainID is the last chain id the endpoint reported, nil before the first
// successful refresh.
func (m *Monitor) ChainID() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.chainID == nil {
		return nil
	}
	return new(big.Int).Set(m.chainID)
}

func (m *Monitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}
