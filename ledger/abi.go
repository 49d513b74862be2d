package ledger

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"strings"
)

// ElectionABI is the interface of the election contract this client talks to.
// Only the functions and events the client uses are listed.
const ElectionABI = `[
	{"type":"function","name":"createElection","stateMutability":"nonpayable",
	 "inputs":[{"name":"name","type":"string"},{"name":"startTime","type":"uint64"},{"name":"endTime","type":"uint64"}],
	 "outputs":[{"name":"electionId","type":"uint256"}]},
	{"type":"function","name":"addCandidate","stateMutability":"nonpayable",
	 "inputs":[{"name":"electionId","type":"uint256"},{"name":"positionId","type":"uint256"},{"name":"name","type":"string"},{"name":"wallet","type":"address"}],
	 "outputs":[{"name":"candidateId","type":"uint256"}]},
	{"type":"function","name":"verifyCandidate","stateMutability":"nonpayable",
	 "inputs":[{"name":"candidateId","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"vote","stateMutability":"nonpayable",
	 "inputs":[{"name":"electionId","type":"uint256"},{"name":"positionId","type":"uint256"},{"name":"candidateId","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"getElection","stateMutability":"view",
	 "inputs":[{"name":"electionId","type":"uint256"}],
	 "outputs":[{"name":"name","type":"string"},{"name":"startTime","type":"uint64"},{"name":"endTime","type":"uint64"},{"name":"active","type":"bool"},{"name":"totalVotes","type":"uint256"}]},
	{"type":"function","name":"getCandidate","stateMutability":"view",
	 "inputs":[{"name":"candidateId","type":"uint256"}],
	 "outputs":[{"name":"name","type":"string"},{"name":"electionId","type":"uint256"},{"name":"positionId","type":"uint256"},{"name":"verified","type":"bool"},{"name":"voteCount","type":"uint256"}]},
	{"type":"function","name":"hasVoted","stateMutability":"view",
	 "inputs":[{"name":"electionId","type":"uint256"},{"name":"positionId","type":"uint256"},{"name":"voter","type":"address"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"electionCount","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"candidateCount","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"ElectionCreated","anonymous":false,
	 "inputs":[{"name":"electionId","type":"uint256","indexed":true},{"name":"name","type":"string","indexed":false}]},
	{"type":"event","name":"CandidateAdded","anonymous":false,
	 "inputs":[{"name":"candidateId","type":"uint256","indexed":true},{"name":"electionId","type":"uint256","indexed":true},{"name":"positionId","type":"uint256","indexed":true}]},
	{"type":"event","name":"VoteCast","anonymous":false,
	 "inputs":[{"name":"electionId","type":"uint256","indexed":true},{"name":"positionId","type":"uint256","indexed":true},{"name":"candidateId","type":"uint256","indexed":true},{"name":"voter","type":"address","indexed":false}]}
]`

func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ElectionABI))
}
