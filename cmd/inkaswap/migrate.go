package main

import (
	"github.com/spf13/cobra"

	"InkaSwap-Provider/internal/contract"
	"InkaSwap-Provider/internal/deploy"
	xerrors "InkaSwap-Provider/internal/errors"
)

func newMigrateCommand(a *app) *cobra.Command {
	var (
		artifactPath string
		args         []string
		reset        bool
		dryRun       bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "部署合约并记录迁移结果",
		Long: "读取 truffle 构建产物并部署到目标网络。InkaPancakeSwapProvider 默认使用网络配置中的 " +
			"wrapped_native 与 factory 作为构造参数。已记录的迁移会被跳过，除非指定 --reset。",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if artifactPath == "" {
				artifactPath = a.cfg.Deploy.Artifact
			}
			if artifactPath == "" {
				return xerrors.New(xerrors.CodeInvalidArgument, "未指定构建产物，请设置 deploy.artifact 或 --artifact")
			}
			artifact, err := deploy.LoadArtifact(artifactPath)
			if err != nil {
				return err
			}

			s, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			ctorArgs := make([]any, 0, len(args))
			for _, raw := range args {
				ctorArgs = append(ctorArgs, raw)
			}
			if len(ctorArgs) == 0 && artifact.ContractName == contract.InkaProviderName {
				if s.def.WrappedNative == "" || s.def.Factory == "" {
					return xerrors.New(xerrors.CodeInvalidArgument, "网络未配置 wrapped_native 或 factory，请通过 --arg 指定构造参数")
				}
				ctorArgs = []any{s.def.WrappedNative, s.def.Factory}
			}

			migrator := deploy.NewMigrator(s.client, s.wallet, s.repo,
				deploy.WithNetworkDefinition(s.def),
				deploy.WithSubmitter(s.submitter),
			)
			result, err := migrator.Run(ctx, deploy.MigrateRequest{
				Artifact: artifact,
				Args:     ctorArgs,
				Force:    reset,
				DryRun:   dryRun,
			})
			if err != nil {
				return err
			}
			return a.print(map[string]any{
				"network":      result.Network,
				"contract":     result.Contract,
				"address":      result.Address.Hex(),
				"tx_hash":      result.TxHash.Hex(),
				"block_number": result.BlockNumber,
				"gas_estimate": result.GasEstimate,
				"args_hash":    result.ArgsHash,
				"skipped":      result.Skipped,
				"dry_run":      result.DryRun,
			})
		},
	}
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "构建产物路径，默认取配置 deploy.artifact")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "构造参数，可重复指定")
	cmd.Flags().BoolVar(&reset, "reset", false, "忽略已有迁移记录重新部署")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只估算部署所需 gas")
	return cmd
}
