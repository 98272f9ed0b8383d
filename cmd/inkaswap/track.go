package main

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/txtrack"
	"InkaSwap-Provider/internal/web3/provider"
	"InkaSwap-Provider/pkg/logger"
)

func newTrackCommand(a *app) *cobra.Command {
	var hashes []string
	cmd := &cobra.Command{
		Use:   "track",
		Short: "持续重查超时交易的回执并记录最终状态",
		Long: "从跟踪队列消费交易哈希，查询回执后把 confirmed、reverted 或 abandoned 写入交易记录。" +
			"启动时会把记录中仍为 pending 的交易重新入队。本命令从不重新发送交易。",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, network, err := a.definition()
			if err != nil {
				return err
			}

			registry, err := provider.NewRegistry(ctx, a.defs)
			if err != nil {
				return err
			}
			defer registry.Close()

			repo, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			queue, err := a.openQueue(ctx)
			if err != nil {
				return err
			}
			defer queue.Close()

			tracker := txtrack.NewTracker(queue, repo, 0)
			for _, raw := range hashes {
				if !isHash(raw) {
					return xerrors.New(xerrors.CodeInvalidArgument, "无效的交易哈希: "+raw)
				}
				if err := tracker.Track(ctx, network, common.HexToHash(raw)); err != nil {
					return err
				}
			}
			queued, err := txtrack.Requeue(ctx, repo, queue, 0)
			if err != nil {
				return err
			}
			logger.Named("txtrack").Info("跟踪队列已就绪", "requeued", queued, "added", len(hashes))

			a.startMetrics(ctx)
			reconciler := txtrack.NewReconciler(registry, repo, queue,
				txtrack.WithInterval(a.pollInterval()),
				txtrack.WithMaxAttempts(a.cfg.Tracker.MaxAttempts),
				txtrack.WithRecorder(a.recorder),
			)
			if err := reconciler.Run(ctx, queue, a.cfg.Tracker.Workers); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&hashes, "hash", nil, "额外加入跟踪的交易哈希，归属 --network 指定的网络")
	return cmd
}

func isHash(raw string) bool {
	if len(raw) != 2+2*common.HashLength || raw[:2] != "0x" {
		return false
	}
	for _, c := range raw[2:] {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
