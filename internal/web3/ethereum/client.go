package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/web3"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name        string
	RPCURL      string
	WSURL       string
	BatchRPCURL string
	Notes       string
	// ChainID, when set, is trusted instead of querying eth_chainId.
	ChainID *big.Int
}

// Client implements web3.Client for EVM compatible chains. All Backend
// methods are served by the embedded endpoint.
type Client struct {
	web3.Backend

	name        string
	notes       string
	rpcClient   *gethrpc.Client
	batchClient *gethrpc.Client
	eth         *ethclient.Client
	eventClient logSubscriber
	chainID     *big.Int
	mu          sync.Mutex
}

var _ web3.Client = (*Client)(nil)

// logSubscriber mirrors the subset of methods required for log subscriptions.
type logSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q gethcore.FilterQuery, ch chan<- coretypes.Log) (gethcore.Subscription, error)
}

// committer is implemented by backends that only mine on demand.
type committer interface {
	Commit() common.Hash
}

// NewClient dials the configured RPC endpoints and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("网络 %s 未配置 RPC 地址", cfg.Name))
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeNetwork, err, fmt.Sprintf("连接网络 %s 失败", cfg.Name))
	}
	eth := ethclient.NewClient(rpcClient)

	batchClient := rpcClient
	if batchURL := strings.TrimSpace(cfg.BatchRPCURL); batchURL != "" && batchURL != rpcURL {
		batchClient, err = gethrpc.DialContext(ctx, batchURL)
		if err != nil {
			rpcClient.Close()
			return nil, xerrors.Wrap(xerrors.CodeNetwork, err, fmt.Sprintf("连接网络 %s 的批量 RPC 失败", cfg.Name))
		}
	}

	eventClient := logSubscriber(eth)
	if wsURL := strings.TrimSpace(cfg.WSURL); wsURL != "" {
		if wsRPC, wsErr := gethrpc.DialContext(ctx, wsURL); wsErr == nil {
			eventClient = ethclient.NewClient(wsRPC)
		}
	}

	c := &Client{
		Backend:     eth,
		name:        cfg.Name,
		notes:       cfg.Notes,
		rpcClient:   rpcClient,
		batchClient: batchClient,
		eth:         eth,
		eventClient: eventClient,
	}
	if cfg.ChainID != nil {
		c.chainID = new(big.Int).Set(cfg.ChainID)
	}
	return c, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing purposes.
func NewSimulatedClient(name string, chainID *big.Int, backend *backends.SimulatedBackend) *Client {
	return &Client{
		Backend:     backend,
		name:        name,
		eventClient: backend,
		chainID:     new(big.Int).Set(chainID),
		notes:       "simulated backend",
	}
}

// Name returns the network name the client was registered under.
func (c *Client) Name() string {
	return c.name
}

// ChainID returns the configured chain ID, asking the endpoint once when
// none was configured.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.Backend.ChainID(ctx)
	if err != nil {
		return nil, web3.ClassifyError(err)
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eventClient != nil {
		if ec, ok := c.eventClient.(*ethclient.Client); ok && ec != c.eth {
			ec.Close()
		}
		c.eventClient = nil
	}
	if c.batchClient != nil && c.batchClient != c.rpcClient {
		c.batchClient.Close()
	}
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	} else if c.rpcClient != nil {
		c.rpcClient.Close()
	}
	c.rpcClient = nil
	c.batchClient = nil
}

// FetchChainSnapshot gathers chain ID, head block and gas price. Remote
// endpoints answer in a single batch round trip.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}

	if c.batchClient != nil {
		var (
			chainID  hexutil.Big
			head     hexutil.Uint64
			gasPrice hexutil.Big
		)
		elems := []gethrpc.BatchElem{
			{Method: "eth_chainId", Result: &chainID},
			{Method: "eth_blockNumber", Result: &head},
			{Method: "eth_gasPrice", Result: &gasPrice},
		}
		if err := c.batchClient.BatchCallContext(ctx, elems); err != nil {
			return web3.ChainSnapshot{}, web3.ClassifyError(err)
		}
		for _, elem := range elems {
			if elem.Error != nil {
				return web3.ChainSnapshot{}, web3.ClassifyError(fmt.Errorf("%s: %w", elem.Method, elem.Error))
			}
		}
		return web3.ChainSnapshot{
			Network:     c.name,
			ChainID:     toHexBig(chainID.ToInt()),
			BlockNumber: head.String(),
			GasPrice:    toHexBig(gasPrice.ToInt()),
			Notes:       c.notes,
		}, nil
	}

	id, err := c.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	header, err := c.Backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return web3.ChainSnapshot{}, web3.ClassifyError(err)
	}
	price, err := c.Backend.SuggestGasPrice(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, web3.ClassifyError(err)
	}
	return web3.ChainSnapshot{
		Network:     c.name,
		ChainID:     toHexBig(id),
		BlockNumber: toHexBig(header.Number),
		GasPrice:    toHexBig(price),
		Notes:       c.notes,
	}, nil
}

// Balance returns the latest balance of address in wei.
func (c *Client) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	reader, ok := c.Backend.(interface {
		BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error)
	})
	if !ok {
		return nil, errors.New("当前客户端不支持余额查询")
	}
	balance, err := reader.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, web3.ClassifyError(err)
	}
	return balance, nil
}

// DeployContract sends the contract creation transaction using the provided
// transact opts and bytecode. The receipt is not awaited.
func (c *Client) DeployContract(ctx context.Context, auth *bind.TransactOpts, parsed abi.ABI, bytecode []byte, params ...any) (web3.DeploymentResult, error) {
	if auth == nil {
		return web3.DeploymentResult{}, xerrors.New(xerrors.CodeInvalidArgument, "未提供交易签名器")
	}
	if len(bytecode) == 0 {
		return web3.DeploymentResult{}, xerrors.New(xerrors.CodeInvalidArgument, "合约字节码不能为空")
	}

	originalCtx := auth.Context
	auth.Context = ctx
	defer func() { auth.Context = originalCtx }()

	address, tx, _, err := bind.DeployContract(auth, parsed, bytecode, c.Backend, params...)
	if err != nil {
		return web3.DeploymentResult{}, web3.ClassifyError(err)
	}

	if sim, ok := c.Backend.(committer); ok {
		sim.Commit()
	}

	return web3.DeploymentResult{ContractAddress: address, Transaction: tx}, nil
}

// SubscribeEvents attaches a log subscription to the chain.
func (c *Client) SubscribeEvents(ctx context.Context, query gethcore.FilterQuery) (*web3.EventSubscription, error) {
	if c == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	c.mu.Lock()
	subscriber := c.eventClient
	c.mu.Unlock()
	if subscriber == nil {
		return nil, errors.New("当前客户端不支持事件订阅")
	}

	logs := make(chan coretypes.Log, 64)
	sub, err := subscriber.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, web3.ClassifyError(err)
	}
	return web3.NewEventSubscription(logs, sub), nil
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}
