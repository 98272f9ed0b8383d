package main

import (
	"github.com/spf13/cobra"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/wallet"
)

func newWalletCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "钱包相关命令",
	}

	var (
		index       uint32
		count       uint32
		mnemonicEnv string
		rawPath     string
	)
	address := &cobra.Command{
		Use:   "address",
		Short: "列出助记词派生的地址",
		Long:  "按 BIP-44 路径 m/44'/60'/0'/0/i 派生地址，或用 --path 指定完整路径。只输出地址与路径，不输出私钥。",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := mnemonicEnv
			if env == "" {
				def, _, err := a.definition()
				if err != nil {
					return err
				}
				env = def.MnemonicEnv
			}
			phrase, err := a.secrets.Mnemonic(env)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeInvalidMnemonic, err, "无法读取助记词")
			}

			type entry struct {
				Index   *uint32 `json:"index,omitempty"`
				Path    string  `json:"path"`
				Address string  `json:"address"`
			}
			if rawPath != "" {
				if cmd.Flags().Changed("index") || cmd.Flags().Changed("count") {
					return xerrors.New(xerrors.CodeInvalidArgument, "--path 不能与 --index 或 --count 同时使用")
				}
				path, err := wallet.ParsePath(rawPath)
				if err != nil {
					return err
				}
				w, err := wallet.Derive(phrase, wallet.WithPath(path))
				if err != nil {
					return err
				}
				return a.print([]entry{{Path: w.Path().String(), Address: w.Address().Hex()}})
			}

			if count == 0 {
				count = 1
			}
			wallets, err := wallet.DeriveAccounts(phrase, index, count)
			if err != nil {
				return err
			}
			out := make([]entry, 0, len(wallets))
			for i, w := range wallets {
				n := index + uint32(i)
				out = append(out, entry{Index: &n, Path: w.Path().String(), Address: w.Address().Hex()})
			}
			return a.print(out)
		},
	}
	address.Flags().Uint32Var(&index, "index", 0, "起始地址序号")
	address.Flags().Uint32Var(&count, "count", 1, "派生的地址数量")
	address.Flags().StringVar(&rawPath, "path", "", "完整派生路径，例如 m/44'/60'/1'/0/0")
	address.Flags().StringVar(&mnemonicEnv, "mnemonic-env", "", "保存助记词的环境变量，默认取网络配置 mnemonic_env")

	cmd.AddCommand(address)
	return cmd
}
