package messages

// VoteCastEvent is the single ledger event the read cache listens to.
const VoteCastEvent = "VoteCast"

// Create writes log these; the first indexed argument is the new ledger id.
const (
	ElectionCreatedEvent = "ElectionCreated"
	CandidateAddedEvent  = "CandidateAdded"
)

type PayloadShape int

const (
	ShapeUnknown PayloadShape = iota
	ShapePositional
	ShapeNamed
)

func (shape PayloadShape) String() string {
	switch shape {
	case ShapePositional:
		return "positional"
	case ShapeNamed:
		return "named"
	default:
		return "unknown"
	}
}

// Payload carries decoded event arguments in whichever shape the decoding
// layer produced. Only the field matching Shape is meaningful.
type Payload struct {
	Shape      PayloadShape
	Positional []interface{}
	Named      map[string]interface{}
}

func PositionalPayload(args ...interface{}) Payload {
	return Payload{Shape: ShapePositional, Positional: args}
}

func NamedPayload(args map[string]interface{}) Payload {
	return Payload{Shape: ShapeNamed, Named: args}
}

type VoteEvent struct {
	TxHash      string
	BlockNumber uint64
	Payload     Payload
}
