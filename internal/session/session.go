package session

import (
	"errors"

	"skinvault/internal/chain"
)

// ErrNotConnected is returned when an operation requires a wallet session
// and none is present.
var ErrNotConnected = errors.New("wallet not connected")

// Session is the explicit wallet context threaded through every orchestrator
// call: the connected address plus its sign-and-execute capability. Nothing
// reads wallet state from ambient scope.
type Session struct {
	Address string
	Signer  chain.Signer
}

// New builds a session from a signer.
func New(signer chain.Signer) Session {
	if signer == nil {
		return Session{}
	}
	return Session{Address: signer.Address(), Signer: signer}
}

// Connected reports whether the session can sign transactions.
func (s Session) Connected() bool {
	return s.Address != "" && s.Signer != nil
}

// Validate returns ErrNotConnected for unusable sessions.
func (s Session) Validate() error {
	if !s.Connected() {
		return ErrNotConnected
	}
	return nil
}
