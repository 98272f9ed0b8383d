package main

import (
	"context"
	"errors"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"InkaSwap-Provider/pkg/logger"
)

func newEventsCommand(a *app) *cobra.Command {
	var target bindingFlags
	cmd := &cobra.Command{
		Use:   "events",
		Short: "订阅并解码合约事件，例如 InkaSwapOperation",
		Long:  "需要网络配置 ws_url。每条事件输出一行 JSON，直到中断。",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			binding, err := target.bind()
			if err != nil {
				return err
			}
			client, _, closeClient, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer closeClient()

			sub, err := client.SubscribeEvents(ctx, gethcore.FilterQuery{Addresses: []common.Address{binding.Address()}})
			if err != nil {
				return err
			}
			defer sub.Close()

			log := logger.Named("events")
			for {
				select {
				case <-ctx.Done():
					if errors.Is(ctx.Err(), context.Canceled) {
						return nil
					}
					return ctx.Err()
				case err := <-sub.Err():
					return err
				case entry := <-sub.Logs():
					ev, ok, err := binding.DecodeLog(entry)
					if err != nil {
						log.Warn("事件解码失败", "tx_hash", entry.TxHash.Hex(), "error", err)
						continue
					}
					if !ok {
						continue
					}
					if err := a.print(eventSummary(ev)); err != nil {
						return err
					}
				}
			}
		},
	}
	target.register(cmd)
	return cmd
}
