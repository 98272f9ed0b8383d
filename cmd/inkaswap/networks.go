package main

import (
	"context"

	"github.com/spf13/cobra"

	"InkaSwap-Provider/internal/contract"
	"InkaSwap-Provider/internal/web3"
	"InkaSwap-Provider/internal/web3/provider"
)

// chainStatus 是 --snapshot 输出的链上状态。
type chainStatus struct {
	BlockNumber string `json:"block_number,omitempty"`
	GasPrice    string `json:"gas_price,omitempty"`
	FromBalance string `json:"from_balance,omitempty"`
}

func newNetworksCommand(a *app) *cobra.Command {
	var snapshot bool
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "列出配置的网络，可选查询链上状态",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			type entry struct {
				Name          string `json:"name"`
				Default       bool   `json:"default"`
				ChainID       int64  `json:"chain_id,omitempty"`
				RPCURL        string `json:"rpc_url"`
				From          string `json:"from,omitempty"`
				WrappedNative string `json:"wrapped_native,omitempty"`
				Factory       string `json:"factory,omitempty"`
				*chainStatus
				Error string `json:"error,omitempty"`
			}
			_, defaultName, _ := a.defs.Lookup("")

			out := make([]entry, 0, len(a.defs.Networks))
			for _, name := range a.defs.Names() {
				def := a.defs.Networks[name]
				e := entry{
					Name:          name,
					Default:       name == defaultName,
					ChainID:       def.ChainID,
					RPCURL:        def.RPCURL,
					From:          def.From,
					WrappedNative: def.WrappedNative,
					Factory:       def.Factory,
				}
				if snapshot {
					status, err := dialStatus(cmd.Context(), a, name, def.From)
					if err != nil {
						e.Error = err.Error()
					}
					e.chainStatus = status
				}
				out = append(out, e)
			}
			return a.print(out)
		},
	}
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "连接节点查询区块高度、gas 价格与 from 地址余额")
	return cmd
}

func dialStatus(ctx context.Context, a *app, name, from string) (*chainStatus, error) {
	registry, err := provider.NewRegistry(ctx, a.defs, name)
	if err != nil {
		return nil, err
	}
	defer registry.Close()
	client, err := registry.Client(name)
	if err != nil {
		return nil, err
	}
	return fetchStatus(ctx, client, from)
}

// fetchStatus 查询区块高度与 gas 价格；配置了 from 时附带其余额 (BNB)。
func fetchStatus(ctx context.Context, client web3.Client, from string) (*chainStatus, error) {
	snap, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	status := &chainStatus{BlockNumber: snap.BlockNumber, GasPrice: snap.GasPrice}
	if from == "" {
		return status, nil
	}
	address, err := contract.ParseAddress(from)
	if err != nil {
		return status, err
	}
	balance, err := client.Balance(ctx, address)
	if err != nil {
		return status, err
	}
	status.FromBalance = web3.FormatUnits(balance, 18)
	return status, nil
}
