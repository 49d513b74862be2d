package modules

import (
	"github.com/ethereum/go-ethereum/common"
)

// WalletState exposes the facts a write depends on. Implementations update
// them asynchronously; Guard only reads what is currently held.
type WalletState interface {
	Connected() bool
	OnSupportedNetwork() bool
	SignerReady() bool
	Account() (common.Address, bool)
}

type GuardReason string

const (
	ReasonNotConnected   GuardReason = "NotConnected"
	ReasonWrongNetwork   GuardReason = "WrongNetwork"
	ReasonClientNotReady GuardReason = "ClientNotReady"
	ReasonNoAccount      GuardReason = "NoAccount"
)

type GuardError struct {
	Reason  GuardReason
	Message string
}

func (e *GuardError) Error() string { return string(e.Reason) + ": " + e.Message }

var (
	ErrNotConnected   = &GuardError{Reason: ReasonNotConnected, Message: "wallet is not connected"}
	ErrWrongNetwork   = &GuardError{Reason: ReasonWrongNetwork, Message: "wallet is on an unsupported network"}
	ErrClientNotReady = &GuardError{Reason: ReasonClientNotReady, Message: "signing client is not ready"}
	ErrNoAccount      = &GuardError{Reason: ReasonNoAccount, Message: "no account available"}
)

type Guard struct {
	state WalletState
}

func NewGuard(state WalletState) *Guard {
	return &Guard{state: state}
}

// Validate must run immediately before every write; it is the only
// authorization check this layer performs.
func (guard *Guard) Validate() error {
	if !guard.state.Connected() {
		return ErrNotConnected
	}
	if !guard.state.OnSupportedNetwork() {
		return ErrWrongNetwork
	}
	if !guard.state.SignerReady() {
		return ErrClientNotReady
	}
	if _, ok := guard.state.Account(); !ok {
		return ErrNoAccount
	}
	return nil
}
