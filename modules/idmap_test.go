package modules

import (
	"errors"
	"github.com/drhodes/golorem"
	tmdb "github.com/tendermint/tm-db"
	"math/big"
	"testing"
)

// ------------------------------------------------------------------------------------------------------------------- //
// LOOKUPS

func TestMapRoundTrip(t *testing.T) {
	ids := mockIdentifierMap(t)
	if !ids.Insert(KindElection, "election_1", big.NewInt(7)) {
		t.Fatalf("Insert refused")
	}
	onchainID, ok := ids.LookupOnchain(KindElection, "election_1")
	if !ok || onchainID.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("Wrong ledger id %v", onchainID)
	}
	uiID, ok := ids.LookupUI(KindElection, big.NewInt(7))
	if !ok || uiID != "election_1" {
		t.Errorf("Wrong application id %q", uiID)
	}
	if _, ok := ids.LookupOnchain(KindCandidate, "election_1"); ok {
		t.Errorf("Kinds are not partitioned")
	}
}

func TestMapRoundTripRandom(t *testing.T) {
	ids := mockIdentifierMap(t)
	for i := int64(1); i <= 20; i++ {
		uiID := lorem.Word(4, 10) + "_" + big.NewInt(i).String()
		onchainID := new(big.Int).Lsh(big.NewInt(i), 200)
		if !ids.Insert(KindCandidate, uiID, onchainID) {
			t.Fatalf("Insert refused for %s", uiID)
		}
		if got, _ := ids.LookupOnchain(KindCandidate, uiID); got.Cmp(onchainID) != 0 {
			t.Errorf("Corrupted ledger id for %s", uiID)
		}
		if got, _ := ids.LookupUI(KindCandidate, onchainID); got != uiID {
			t.Errorf("Corrupted application id for %s", onchainID)
		}
	}
}

// ------------------------------------------------------------------------------------------------------------------- //
// BIJECTION

func TestMapKeepsBijection(t *testing.T) {
	ids := mockIdentifierMap(t)
	ids.Insert(KindElection, "election_1", big.NewInt(7))
	if ids.Insert(KindElection, "election_1", big.NewInt(8)) {
		t.Errorf("Remapped application id")
	}
	if ids.Insert(KindElection, "election_2", big.NewInt(7)) {
		t.Errorf("Remapped ledger id")
	}
	if onchainID, _ := ids.LookupOnchain(KindElection, "election_1"); onchainID.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("Existing mapping changed to %v", onchainID)
	}
	if _, ok := ids.LookupUI(KindElection, big.NewInt(8)); ok {
		t.Errorf("Rejected ledger id was indexed")
	}
	if _, ok := ids.LookupOnchain(KindElection, "election_2"); ok {
		t.Errorf("Rejected application id was indexed")
	}
	if !ids.Insert(KindElection, "election_1", big.NewInt(7)) {
		t.Errorf("Identical pair should be accepted")
	}
	if len(ids.List(KindElection)) != 1 {
		t.Errorf("Expected one mapping")
	}
}

func TestMapRejectsInvalid(t *testing.T) {
	ids := mockIdentifierMap(t)
	if ids.Insert(KindElection, "", big.NewInt(1)) {
		t.Errorf("Empty application id accepted")
	}
	if ids.Insert(KindElection, "x", nil) {
		t.Errorf("Nil ledger id accepted")
	}
	if ids.Insert(Kind("ballot"), "x", big.NewInt(1)) {
		t.Errorf("Unknown kind accepted")
	}
}

// ------------------------------------------------------------------------------------------------------------------- //
// PERSISTENCE

func TestMapReload(t *testing.T) {
	db := tmdb.NewMemDB()
	ids := mockIdentifierMapOn(db, t)
	ids.Insert(KindPosition, "president", big.NewInt(1))
	ids.Insert(KindCandidate, "candidate_1", big.NewInt(12))

	reloaded := mockIdentifierMapOn(db, t)
	if onchainID, ok := reloaded.LookupOnchain(KindPosition, "president"); !ok || onchainID.Int64() != 1 {
		t.Errorf("Position mapping lost")
	}
	if uiID, ok := reloaded.LookupUI(KindCandidate, big.NewInt(12)); !ok || uiID != "candidate_1" {
		t.Errorf("Candidate mapping lost")
	}
}

func TestMapList(t *testing.T) {
	ids := mockIdentifierMap(t)
	ids.Insert(KindPosition, "treasurer", big.NewInt(3))
	ids.Insert(KindPosition, "president", big.NewInt(1))
	ids.Insert(KindPosition, "secretary", big.NewInt(2))
	mappings := ids.List(KindPosition)
	if len(mappings) != 3 {
		t.Fatalf("Expected 3 mappings, got %d", len(mappings))
	}
	if mappings[0].UIID != "president" || mappings[2].UIID != "treasurer" {
		t.Errorf("Mappings not sorted")
	}
}

// ------------------------------------------------------------------------------------------------------------------- //
// RESOLUTION

func TestResolve(t *testing.T) {
	ids := mockIdentifierMap(t)
	ids.Insert(KindPosition, "president", big.NewInt(4))

	if id, err := ids.Resolve(KindPosition, "president"); err != nil || id.Int64() != 4 {
		t.Errorf("Mapped id not resolved")
	}
	if id, err := ids.Resolve(KindPosition, "42"); err != nil || id.Int64() != 42 {
		t.Errorf("Numeric id not resolved")
	}
	for _, uiID := range []string{"vice-president", "", "-1", "0x10", "1.5"} {
		_, err := ids.Resolve(KindPosition, uiID)
		var resolutionErr *ResolutionError
		if !errors.As(err, &resolutionErr) {
			t.Errorf("Expected resolution error for %q, got %v", uiID, err)
		}
	}
}

func TestInferID(t *testing.T) {
	word := make([]byte, 32)
	word[31] = 9
	if id := InferID(word); id == nil || id.Int64() != 9 {
		t.Errorf("Id not inferred")
	}
	if id := InferID(append(word, make([]byte, 32)...)); id == nil || id.Int64() != 9 {
		t.Errorf("Only the first word should be read")
	}
	if InferID(word[:31]) != nil {
		t.Errorf("Short data inferred")
	}
	if InferID(make([]byte, 32)) != nil {
		t.Errorf("Zero word inferred")
	}
}
