package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"InkaSwap-Provider/internal/contract"
	"InkaSwap-Provider/internal/deploy"
	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/web3"
)

// bindingFlags 是 call、send 与 events 共用的合约定位参数。
type bindingFlags struct {
	address string
	abiPath string
}

func (f *bindingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.address, "address", "", "合约地址")
	cmd.Flags().StringVar(&f.abiPath, "abi", "", "ABI 或 truffle 构建产物路径，默认使用内置的 InkaPancakeSwapProvider ABI")
	_ = cmd.MarkFlagRequired("address")
}

func (f *bindingFlags) bind() (*contract.Binding, error) {
	if f.abiPath == "" {
		p, err := contract.BindInkaProvider(f.address)
		if err != nil {
			return nil, err
		}
		return p.Binding, nil
	}
	content, err := os.ReadFile(f.abiPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("读取 ABI 文件 %s 失败", f.abiPath))
	}
	if trimmed := bytes.TrimSpace(content); len(trimmed) > 0 && trimmed[0] == '{' {
		artifact, err := deploy.ParseArtifact(content)
		if err != nil {
			return nil, err
		}
		return contract.BindDefinition(artifact.Definition, f.address)
	}
	return contract.BindJSON(content, f.address)
}

// txFlags 是写交易的可选参数，未指定时取网络配置或节点建议值。
type txFlags struct {
	value    string
	gas      uint64
	gasPrice string
	timeout  time.Duration
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.value, "value", "", "随交易发送的 BNB 数量，例如 0.0863")
	cmd.Flags().Uint64Var(&f.gas, "gas", 0, "gas 上限，默认取网络配置或估算")
	cmd.Flags().StringVar(&f.gasPrice, "gas-price", "", "gas 价格 (gwei)，默认取网络配置或节点建议")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "等待回执的时长，超时后交易转入后台跟踪")
}

func (f *txFlags) params(def web3.NetworkDefinition, from common.Address) (web3.TxParams, error) {
	params := web3.TxParams{From: from, Gas: f.gas, Timeout: f.timeout}
	if f.value != "" {
		value, err := web3.ParseUnits(f.value, 18)
		if err != nil {
			return params, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "--value 无效")
		}
		params.Value = value
	}
	if params.Gas == 0 {
		params.Gas = def.Gas
	}
	if f.gasPrice != "" {
		price, err := web3.ParseUnits(f.gasPrice, 9)
		if err != nil {
			return params, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "--gas-price 无效")
		}
		params.GasPrice = price
	} else {
		price, err := def.GasPrice()
		if err != nil {
			return params, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "gas_price_gwei 配置无效")
		}
		params.GasPrice = price
	}
	return params, nil
}

func newCallCommand(a *app) *cobra.Command {
	var (
		target bindingFlags
		from   string
	)
	cmd := &cobra.Command{
		Use:   "call METHOD [ARGS...]",
		Short: "以 eth_call 调用合约方法并输出返回值",
		Long:  "参数按 ABI 类型转换；数组参数使用 JSON 写法，例如 '[\"0x...\",\"0x...\"]'。",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			binding, err := target.bind()
			if err != nil {
				return err
			}
			callArgs, err := parseArgs(args[1:])
			if err != nil {
				return err
			}
			pc, err := binding.Invoke(args[0], callArgs...)
			if err != nil {
				return err
			}
			opts := &contract.CallOpts{}
			if from != "" {
				if opts.From, err = contract.ParseAddress(from); err != nil {
					return err
				}
			}

			client, _, closeClient, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()

			a.recorder.ObserveCall(pc.Method(), "call")
			out, err := pc.Call(cmd.Context(), client, opts)
			if err != nil {
				return err
			}
			values := make([]any, len(out))
			for i, v := range out {
				values[i] = formatValue(v)
			}
			return a.print(map[string]any{"method": pc.Signature(), "outputs": values})
		},
	}
	target.register(cmd)
	cmd.Flags().StringVar(&from, "from", "", "eth_call 使用的发送方地址")
	return cmd
}

func newSendCommand(a *app) *cobra.Command {
	var (
		target bindingFlags
		tx     txFlags
	)
	cmd := &cobra.Command{
		Use:   "send METHOD [ARGS...]",
		Short: "签名并发送合约写交易",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			binding, err := target.bind()
			if err != nil {
				return err
			}
			callArgs, err := parseArgs(args[1:])
			if err != nil {
				return err
			}
			pc, err := binding.Invoke(args[0], callArgs...)
			if err != nil {
				return err
			}
			return a.sendCall(cmd.Context(), binding, pc, tx)
		},
	}
	target.register(cmd)
	tx.register(cmd)
	return cmd
}

func newSwapCommand(a *app) *cobra.Command {
	var (
		address      string
		amountOutMin string
		path         []string
		to           string
		deadlineIn   time.Duration
		tx           txFlags
	)
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "调用 swapBNBForTokenSupportingFee 兑换代币",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := contract.BindInkaProvider(address)
			if err != nil {
				return err
			}
			minOut, ok := new(big.Int).SetString(amountOutMin, 10)
			if !ok || minOut.Sign() < 0 {
				return xerrors.New(xerrors.CodeArgumentType, fmt.Sprintf("--amount-out-min %q 不是非负整数", amountOutMin))
			}
			hops := make([]common.Address, 0, len(path))
			for _, raw := range path {
				hop, err := contract.ParseAddress(raw)
				if err != nil {
					return err
				}
				hops = append(hops, hop)
			}
			if len(hops) < 2 {
				return xerrors.New(xerrors.CodeArgumentType, "--path 至少需要两个代币地址")
			}

			var recipient common.Address
			if to != "" {
				if recipient, err = contract.ParseAddress(to); err != nil {
					return err
				}
			}
			deadline := time.Now().Add(deadlineIn).Unix()

			return a.withSession(cmd.Context(), func(s *session) error {
				if to == "" {
					recipient = s.wallet.Address()
				}
				pc, err := provider.Swap(minOut, hops, recipient, deadline)
				if err != nil {
					return err
				}
				return a.sendWith(cmd.Context(), s, provider.Binding, pc, tx)
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "InkaPancakeSwapProvider 合约地址")
	cmd.Flags().StringVar(&amountOutMin, "amount-out-min", "0", "可接受的最少兑换数量 (最小单位)")
	cmd.Flags().StringSliceVar(&path, "path", nil, "兑换路径，逗号分隔的代币地址，首个为 WBNB")
	cmd.Flags().StringVar(&to, "to", "", "接收地址，默认为钱包地址")
	cmd.Flags().DurationVar(&deadlineIn, "deadline-in", 20*time.Minute, "交易截止时间距现在的时长")
	tx.register(cmd)
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func (a *app) withSession(ctx context.Context, fn func(*session) error) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}

func (a *app) sendCall(ctx context.Context, binding *contract.Binding, pc *contract.PendingCall, flags txFlags) error {
	return a.withSession(ctx, func(s *session) error {
		return a.sendWith(ctx, s, binding, pc, flags)
	})
}

func (a *app) sendWith(ctx context.Context, s *session, binding *contract.Binding, pc *contract.PendingCall, flags txFlags) error {
	params, err := flags.params(s.def, s.wallet.Address())
	if err != nil {
		return err
	}
	a.recorder.ObserveCall(pc.Method(), "send")
	receipt, err := pc.Send(ctx, s.transactor, params)
	if err != nil {
		return err
	}
	return a.print(receiptSummary(binding, receipt))
}

func receiptSummary(binding *contract.Binding, receipt *types.Receipt) map[string]any {
	summary := map[string]any{
		"tx_hash":      receipt.TxHash.Hex(),
		"block_number": receipt.BlockNumber.Uint64(),
		"gas_used":     receipt.GasUsed,
		"status":       receipt.Status,
	}
	events, err := binding.DecodeLogs(receipt)
	if err != nil {
		summary["events_error"] = err.Error()
		return summary
	}
	decoded := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		decoded = append(decoded, eventSummary(ev))
	}
	summary["events"] = decoded
	return summary
}

func eventSummary(ev contract.Event) map[string]any {
	fields := make(map[string]any, len(ev.Fields))
	for k, v := range ev.Fields {
		fields[k] = formatValue(v)
	}
	return map[string]any{
		"event":        ev.Name,
		"signature":    ev.Signature,
		"fields":       fields,
		"tx_hash":      ev.TxHash.Hex(),
		"block_number": ev.BlockNumber,
		"log_index":    ev.Index,
	}
}

// parseArgs 把命令行参数转换为 ABI 编码器接受的值：JSON 数组或对象按 JSON 解析，
// 其余保持字符串，由绑定按 ABI 类型转换。
func parseArgs(raw []string) ([]any, error) {
	out := make([]any, 0, len(raw))
	for i, arg := range raw {
		trimmed := strings.TrimSpace(arg)
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			dec := json.NewDecoder(strings.NewReader(trimmed))
			dec.UseNumber()
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeArgumentType, err, fmt.Sprintf("第 %d 个参数不是有效的 JSON", i+1))
			}
			out = append(out, v)
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

// formatValue 把解码结果转换为便于 JSON 输出的形式。
func formatValue(v any) any {
	switch x := v.(type) {
	case *big.Int:
		return x.String()
	case common.Address:
		return x.Hex()
	case common.Hash:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	case [32]byte:
		return hexutil.Encode(x[:])
	case []common.Address:
		out := make([]string, len(x))
		for i, addr := range x {
			out[i] = addr.Hex()
		}
		return out
	case []*big.Int:
		out := make([]string, len(x))
		for i, n := range x {
			out[i] = n.String()
		}
		return out
	}
	return v
}
