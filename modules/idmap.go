package modules

/*
IdentifierMap translates application identifiers ("president", "election_1700000000000")
into the ledger's integer identifiers and back.

Every kind keeps two indexes so both directions are a single map lookup. The indexes are
rebuilt from the durable store on open; only forward entries are read back, reverse entries
are written alongside them so the store stays inspectable on its own.

	fwd/<kind>/<uiID>       -> decimal ledger id
	rev/<kind>/<ledger id>  -> uiID
*/

import (
	"fmt"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	"math/big"
	"sort"
	"strings"
	"sync"
)

type Kind string

const (
	KindElection  Kind = "election"
	KindPosition  Kind = "position"
	KindCandidate Kind = "candidate"
)

var Kinds = []Kind{KindElection, KindPosition, KindCandidate}

func ParseKind(s string) (Kind, error) {
	for _, kind := range Kinds {
		if string(kind) == s {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown identifier kind %q", s)
}

type Mapping struct {
	Kind      Kind
	UIID      string
	OnchainID *big.Int
}

// ResolutionError is returned when an application identifier has neither a
// mapping nor a numeric form.
type ResolutionError struct {
	Kind Kind
	UIID string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s id %q: no mapping and not numeric", e.Kind, e.UIID)
}

const (
	forwardPrefix = "fwd/"
	reversePrefix = "rev/"
)

type IdentifierMap struct {
	mu        sync.RWMutex
	db        tmdb.DB
	logger    log.Logger
	toOnchain map[Kind]map[string]*big.Int
	toUI      map[Kind]map[string]string
}

func NewIdentifierMap(db tmdb.DB, logger log.Logger) (*IdentifierMap, error) {
	idMap := &IdentifierMap{
		db:        db,
		logger:    logger.With("module", "idmap"),
		toOnchain: make(map[Kind]map[string]*big.Int, len(Kinds)),
		toUI:      make(map[Kind]map[string]string, len(Kinds)),
	}
	for _, kind := range Kinds {
		idMap.toOnchain[kind] = make(map[string]*big.Int)
		idMap.toUI[kind] = make(map[string]string)
	}
	if err := idMap.load(); err != nil {
		return nil, err
	}
	return idMap, nil
}

func (m *IdentifierMap) load() error {
	start := []byte(forwardPrefix)
	end := []byte(forwardPrefix)
	end[len(end)-1]++
	it, err := m.db.Iterator(start, end)
	if err != nil {
		return fmt.Errorf("iterating identifier store: %w", err)
	}
	defer it.Close()
	loaded := 0
	for ; it.Valid(); it.Next() {
		parts := strings.SplitN(strings.TrimPrefix(string(it.Key()), forwardPrefix), "/", 2)
		if len(parts) != 2 {
			m.logger.Error("Skipping malformed identifier key", "key", string(it.Key()))
			continue
		}
		kind, err := ParseKind(parts[0])
		if err != nil {
			m.logger.Error("Skipping identifier of unknown kind", "key", string(it.Key()))
			continue
		}
		onchainID, ok := new(big.Int).SetString(string(it.Value()), 10)
		if !ok {
			m.logger.Error("Skipping malformed ledger id", "key", string(it.Key()), "value", string(it.Value()))
			continue
		}
		m.toOnchain[kind][parts[1]] = onchainID
		m.toUI[kind][onchainID.String()] = parts[1]
		loaded++
	}
	m.logger.Debug("Loaded identifier map", "entries", loaded)
	return nil
}

func (m *IdentifierMap) LookupOnchain(kind Kind, uiID string) (*big.Int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	onchainID, ok := m.toOnchain[kind][uiID]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(onchainID), true
}

func (m *IdentifierMap) LookupUI(kind Kind, onchainID *big.Int) (string, bool) {
	if onchainID == nil {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	uiID, ok := m.toUI[kind][onchainID.String()]
	return uiID, ok
}

// Insert records uiID <-> onchainID. It never overwrites: a pair that would
// break the bijection is logged and dropped. Re-inserting an existing pair
// succeeds without touching the store.
func (m *IdentifierMap) Insert(kind Kind, uiID string, onchainID *big.Int) bool {
	if _, known := m.toOnchain[kind]; !known || uiID == "" || onchainID == nil || onchainID.Sign() < 0 {
		m.logger.Error("Rejected invalid identifier mapping", "kind", kind, "ui", uiID, "onchain", onchainID)
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := onchainID.String()
	existing, hasUI := m.toOnchain[kind][uiID]
	owner, hasOnchain := m.toUI[kind][key]
	if hasUI && existing.Cmp(onchainID) == 0 {
		return true
	}
	if hasUI || hasOnchain {
		m.logger.Info("Ignored conflicting identifier mapping",
			"kind", kind, "ui", uiID, "onchain", key, "mappedOnchain", existing, "mappedUI", owner)
		return false
	}
	batch := m.db.NewBatch()
	defer batch.Close()
	batch.Set(forwardKey(kind, uiID), []byte(key))
	batch.Set(reverseKey(kind, key), []byte(uiID))
	if err := batch.WriteSync(); err != nil {
		m.logger.Error("Failed to persist identifier mapping", "kind", kind, "ui", uiID, "err", err)
		return false
	}
	m.toOnchain[kind][uiID] = new(big.Int).Set(onchainID)
	m.toUI[kind][key] = uiID
	m.logger.Info("Mapped identifier", "kind", kind, "ui", uiID, "onchain", key)
	return true
}

func (m *IdentifierMap) List(kind Kind) []Mapping {
	m.mu.RLock()
	mappings := make([]Mapping, 0, len(m.toOnchain[kind]))
	for uiID, onchainID := range m.toOnchain[kind] {
		mappings = append(mappings, Mapping{Kind: kind, UIID: uiID, OnchainID: new(big.Int).Set(onchainID)})
	}
	m.mu.RUnlock()
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].UIID < mappings[j].UIID })
	return mappings
}

// Resolve returns the ledger id for uiID: the mapping first, then uiID read as
// a decimal literal. There is no third path.
func (m *IdentifierMap) Resolve(kind Kind, uiID string) (*big.Int, error) {
	if onchainID, ok := m.LookupOnchain(kind, uiID); ok {
		return onchainID, nil
	}
	if onchainID, ok := parseNumericID(uiID); ok {
		return onchainID, nil
	}
	return nil, &ResolutionError{Kind: kind, UIID: uiID}
}

func parseNumericID(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, false
		}
	}
	return new(big.Int).SetString(s, 10)
}

// InferID reads a ledger id from the first 32-byte word of a log field. Ids
// start at 1, so an all-zero word means nothing was emitted. Replace this once
// the contract's creation events are decoded by name.
func InferID(data []byte) *big.Int {
	if len(data) < 32 {
		return nil
	}
	id := new(big.Int).SetBytes(data[:32])
	if id.Sign() == 0 {
		return nil
	}
	return id
}

func forwardKey(kind Kind, uiID string) []byte {
	return []byte(forwardPrefix + string(kind) + "/" + uiID)
}

func reverseKey(kind Kind, onchainID string) []byte {
	return []byte(reversePrefix + string(kind) + "/" + onchainID)
}
