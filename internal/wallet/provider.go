package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Provider is the EIP-1193-shaped RPC surface of a wallet. Implementations
// must support at least eth_sendTransaction, eth_chainId, eth_accounts and
// personal_sign.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// RPCError is a provider-level error with an EIP-1193 error code.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// CodeUserRejected is the EIP-1193 code for a user declining a request.
const CodeUserRejected = 4001

// IsUserRejection reports whether err is the user declining a signature or
// transaction in their wallet.
func IsUserRejection(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == CodeUserRejected
}

// TxParams is the transaction request object passed to eth_sendTransaction.
type TxParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// Session is the currently connected signing context.
type Session struct {
	Address  common.Address
	ChainID  int64
	Provider Provider
}

// SessionAccessor exposes the active wallet session. It is injected into the
// coordinators instead of living in package-level state so tests can run in
// isolation.
type SessionAccessor interface {
	Active(ctx context.Context) (*Session, error)
}

// ErrNoSession is returned when no wallet is connected.
var ErrNoSession = errors.New("no wallet session")

// StaticAccessor returns a fixed session; used for the daemon's own key and
// in tests.
type StaticAccessor struct {
	Session *Session
}

func (a StaticAccessor) Active(context.Context) (*Session, error) {
	if a.Session == nil {
		return nil, ErrNoSession
	}
	return a.Session, nil
}
