package web3

import (
	"context"
	"math/big"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethevent "github.com/ethereum/go-ethereum/event"
)

// Backend is the remote endpoint as seen by the binding, the submitter and
// the migrator. Both *ethclient.Client and the go-ethereum simulated backend
// satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client is a named network endpoint. Besides the Backend methods it
// reports chain metadata, deploys contracts and streams logs.
type Client interface {
	Backend
	Name() string
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	Balance(ctx context.Context, address common.Address) (*big.Int, error)
	DeployContract(ctx context.Context, auth *bind.TransactOpts, parsed abi.ABI, bytecode []byte, params ...any) (DeploymentResult, error)
	SubscribeEvents(ctx context.Context, query gethcore.FilterQuery) (*EventSubscription, error)
	Close()
}

// ChainSnapshot represents summarized network metadata for reporting.
type ChainSnapshot struct {
	Network     string
	ChainID     string
	BlockNumber string
	GasPrice    string
	Notes       string
}

// DeploymentResult captures the outcome of a contract deployment request.
type DeploymentResult struct {
	ContractAddress common.Address
	Transaction     *types.Transaction
}

// EventSubscription wraps a log subscription so callers can manage lifecycle
// without depending on the go-ethereum event package.
type EventSubscription struct {
	logs <-chan types.Log
	sub  gethevent.Subscription
}

// NewEventSubscription constructs a managed subscription wrapper.
func NewEventSubscription(logs <-chan types.Log, sub gethevent.Subscription) *EventSubscription {
	return &EventSubscription{logs: logs, sub: sub}
}

// Logs returns the channel that receives blockchain logs.
func (e *EventSubscription) Logs() <-chan types.Log {
	return e.logs
}

// Err forwards the subscription error channel.
func (e *EventSubscription) Err() <-chan error {
	if e == nil || e.sub == nil {
		return nil
	}
	return e.sub.Err()
}

// Close terminates the subscription.
func (e *EventSubscription) Close() {
	if e == nil || e.sub == nil {
		return
	}
	e.sub.Unsubscribe()
}

// TransactionRequest is an unsigned write call. Zero Gas, nil GasPrice and
// nil Nonce are filled from the endpoint at send time.
type TransactionRequest struct {
	From     common.Address
	To       *common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Nonce    *uint64
	Data     []byte
	// Deadline is the unix timestamp a time-boxed call embeds in its
	// arguments; zero means the call is not time-boxed.
	Deadline int64
}

// Expired reports whether the request deadline is not strictly in the future.
func (r TransactionRequest) Expired(now time.Time) bool {
	return r.Deadline != 0 && r.Deadline <= now.Unix()
}

// TxParams are the caller supplied transaction options of a write call.
type TxParams struct {
	From     common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Nonce    *uint64
	Deadline int64
	// Timeout bounds the wait for a receipt; zero uses the submitter default.
	Timeout time.Duration
}

// Signer signs transaction requests for a single account.
type Signer interface {
	Address() common.Address
	Sign(req TransactionRequest, chainID *big.Int) (*types.Transaction, error)
}
