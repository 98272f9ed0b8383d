package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/web3"
	"InkaSwap-Provider/internal/web3/ethereum"
)

// Registry manages a set of network clients keyed by network name.
type Registry struct {
	mu             sync.RWMutex
	defaultNetwork string
	clients        map[string]web3.Client
}

// NewRegistry instantiates clients for the named networks, or for every
// configured network when names is empty.
func NewRegistry(ctx context.Context, defs web3.NetworkDefinitions, names ...string) (*Registry, error) {
	if len(names) == 0 {
		names = defs.Names()
	}
	if len(names) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置任何网络的 RPC 端点")
	}

	r := &Registry{clients: make(map[string]web3.Client, len(names))}
	for _, name := range names {
		def, resolved, err := defs.Lookup(name)
		if err != nil {
			r.Close()
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "查找网络配置失败")
		}
		client, err := dial(ctx, resolved, def)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.clients[resolved] = client
	}

	r.defaultNetwork = defs.Default
	if _, ok := r.clients[r.defaultNetwork]; !ok {
		r.defaultNetwork = r.Networks()[0]
	}
	return r, nil
}

func dial(ctx context.Context, name string, def web3.NetworkDefinition) (web3.Client, error) {
	chainType := strings.ToLower(strings.TrimSpace(def.Type))
	if chainType == "" {
		chainType = "evm"
	}
	switch chainType {
	case "evm":
		client, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:        name,
			RPCURL:      def.RPCURL,
			WSURL:       def.WSURL,
			BatchRPCURL: def.BatchRPCURL,
			Notes:       def.Description,
			ChainID:     def.ChainIDBig(),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("网络 %s 使用了不支持的类型 %s", name, def.Type))
	}
}

// Register adds or replaces a client, for example a simulated chain.
func (r *Registry) Register(client web3.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients == nil {
		r.clients = make(map[string]web3.Client)
	}
	if previous, ok := r.clients[client.Name()]; ok && previous != client {
		previous.Close()
	}
	r.clients[client.Name()] = client
	if r.defaultNetwork == "" {
		r.defaultNetwork = client.Name()
	}
}

// Default returns the client configured as default network.
func (r *Registry) Default() (web3.Client, error) {
	if r == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未初始化的网络客户端注册表")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[r.defaultNetwork]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("默认网络 %s 未在注册表中", r.defaultNetwork))
	}
	return client, nil
}

// Client returns the client identified by name; an empty name selects the
// default network.
func (r *Registry) Client(name string) (web3.Client, error) {
	if name == "" {
		return r.Default()
	}
	if r == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未初始化的网络客户端注册表")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("网络 %s 未在注册表中", name))
	}
	return client, nil
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Networks returns the registered network names in sorted order.
func (r *Registry) Networks() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
