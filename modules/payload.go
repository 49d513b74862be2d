package modules

import (
	"ballot-node/messages"
	"fmt"
	"github.com/ethereum/go-ethereum/common"
	"math/big"
	"strings"
)

// VoteKeys are the identifiers a VoteCast payload yielded. A nil field did
// not decode; the others are still usable.
type VoteKeys struct {
	Election  *big.Int
	Position  *big.Int
	Candidate *big.Int
}

func (keys VoteKeys) Empty() bool {
	return keys.Election == nil && keys.Position == nil && keys.Candidate == nil
}

// DecodeError means a payload could not be read at all. It never reaches the
// user; callers fall back to broad invalidation.
type DecodeError struct {
	Shape  messages.PayloadShape
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s payload: %s", e.Shape, e.Reason)
}

// Argument order of VoteCast(electionId, positionId, candidateId, voter).
const (
	electionArg = iota
	positionArg
	candidateArg
)

var argNames = map[int][]string{
	electionArg:  {"electionId", "electionID", "election_id", "election"},
	positionArg:  {"positionId", "positionID", "position_id", "position"},
	candidateArg: {"candidateId", "candidateID", "candidate_id", "candidate"},
}

func DecodeVote(payload messages.Payload) (VoteKeys, error) {
	var lookup func(arg int) (interface{}, bool)
	switch payload.Shape {
	case messages.ShapePositional:
		if payload.Positional == nil {
			return VoteKeys{}, &DecodeError{Shape: payload.Shape, Reason: "no arguments"}
		}
		lookup = func(arg int) (interface{}, bool) {
			if arg >= len(payload.Positional) {
				return nil, false
			}
			return payload.Positional[arg], true
		}
	case messages.ShapeNamed:
		if payload.Named == nil {
			return VoteKeys{}, &DecodeError{Shape: payload.Shape, Reason: "no arguments"}
		}
		lookup = func(arg int) (interface{}, bool) {
			for _, name := range argNames[arg] {
				if value, ok := payload.Named[name]; ok {
					return value, true
				}
			}
			return nil, false
		}
	default:
		return VoteKeys{}, &DecodeError{Shape: payload.Shape, Reason: "unrecognised shape"}
	}
	return VoteKeys{
		Election:  decodeArg(lookup, electionArg),
		Position:  decodeArg(lookup, positionArg),
		Candidate: decodeArg(lookup, candidateArg),
	}, nil
}

func decodeArg(lookup func(int) (interface{}, bool), arg int) *big.Int {
	value, ok := lookup(arg)
	if !ok {
		return nil
	}
	id, ok := toBigInt(value)
	if !ok {
		return nil
	}
	return id
}

// toBigInt accepts the forms ledger integers arrive in after ABI or JSON
// decoding. Negative values are never valid ids.
func toBigInt(value interface{}) (*big.Int, bool) {
	var id *big.Int
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, false
		}
		id = new(big.Int).Set(v)
	case big.Int:
		id = new(big.Int).Set(&v)
	case uint64:
		id = new(big.Int).SetUint64(v)
	case uint32:
		id = new(big.Int).SetUint64(uint64(v))
	case uint16:
		id = new(big.Int).SetUint64(uint64(v))
	case uint8:
		id = new(big.Int).SetUint64(uint64(v))
	case uint:
		id = new(big.Int).SetUint64(uint64(v))
	case int64:
		id = big.NewInt(v)
	case int32:
		id = big.NewInt(int64(v))
	case int:
		id = big.NewInt(int64(v))
	case float64:
		if v != float64(int64(v)) {
			return nil, false
		}
		id = big.NewInt(int64(v))
	case string:
		var ok bool
		if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
			id, ok = new(big.Int).SetString(v[2:], 16)
		} else {
			id, ok = parseNumericID(v)
		}
		if !ok {
			return nil, false
		}
	case common.Hash:
		id = new(big.Int).SetBytes(v.Bytes())
	case [32]byte:
		id = new(big.Int).SetBytes(v[:])
	case []byte:
		if len(v) == 0 || len(v) > 32 {
			return nil, false
		}
		id = new(big.Int).SetBytes(v)
	default:
		return nil, false
	}
	if id.Sign() < 0 {
		return nil, false
	}
	return id, true
}
