// Package simtest provides an in-process chain and hand-assembled contracts
// for tests that need real transaction round trips.
package simtest

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ChainID is the chain ID of the go-ethereum simulated backend.
const ChainID = 1337

// GasLimit is the block gas limit of the simulated chain.
const GasLimit = 10_000_000

// Ether is 10^18 wei.
var Ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var (
	// AcceptAllRuntime stops immediately, accepting any call and any value.
	AcceptAllRuntime = []byte{0x00}
	// ConstantRuntime returns the 32-byte word 10000 for any call.
	ConstantRuntime = []byte{0x61, 0x27, 0x10, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3}
)

// Chain is a funded simulated chain.
type Chain struct {
	Backend *backends.SimulatedBackend
	Key     *ecdsa.PrivateKey
	From    common.Address
	ChainID *big.Int
}

// New starts a simulated chain funding a fresh deployer key and every
// address in funded with 100 ether.
func New(t testing.TB, funded ...common.Address) *Chain {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	balance := new(big.Int).Mul(big.NewInt(100), Ether)
	alloc := types.GenesisAlloc{from: {Balance: balance}}
	for _, addr := range funded {
		alloc[addr] = types.Account{Balance: new(big.Int).Set(balance)}
	}

	backend := backends.NewSimulatedBackend(alloc, GasLimit)
	t.Cleanup(func() { _ = backend.Close() })

	return &Chain{Backend: backend, Key: key, From: from, ChainID: big.NewInt(ChainID)}
}

// Transactor returns transact opts for the deployer key.
func (c *Chain) Transactor(t testing.TB) *bind.TransactOpts {
	t.Helper()
	auth, err := bind.NewKeyedTransactorWithChainID(c.Key, c.ChainID)
	if err != nil {
		t.Fatalf("new transactor: %v", err)
	}
	return auth
}

// Deploy installs runtime code and mines the creation transaction.
func (c *Chain) Deploy(t testing.TB, runtime []byte) common.Address {
	t.Helper()

	auth := c.Transactor(t)
	auth.GasLimit = 1_000_000
	addr, tx, _, err := bind.DeployContract(auth, abi.ABI{}, InitCode(runtime), c.Backend)
	if err != nil {
		t.Fatalf("deploy contract: %v", err)
	}
	c.Backend.Commit()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	receipt, err := c.Backend.TransactionReceipt(ctx, tx.Hash())
	if err != nil {
		t.Fatalf("deploy receipt: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("deploy failed with status %d", receipt.Status)
	}
	return addr
}

// InitCode wraps runtime code in a constructor that returns it verbatim.
func InitCode(runtime []byte) []byte {
	n := byte(len(runtime))
	prefix := []byte{0x60, n, 0x60, 0x0c, 0x60, 0x00, 0x39, 0x60, n, 0x60, 0x00, 0xf3}
	return append(prefix, runtime...)
}

// RevertRuntime always reverts with Error(reason).
func RevertRuntime(reason string) []byte {
	payload := ErrorPayload(reason)
	n := byte(len(payload))
	prefix := []byte{0x60, n, 0x60, 0x0c, 0x60, 0x00, 0x39, 0x60, n, 0x60, 0x00, 0xfd}
	return append(prefix, payload...)
}

// ErrorPayload encodes reason as Solidity's Error(string) revert data.
func ErrorPayload(reason string) []byte {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	return append(crypto.Keccak256([]byte("Error(string)"))[:4], packed...)
}
