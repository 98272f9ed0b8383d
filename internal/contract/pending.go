package contract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/web3"
)

// Sender signs and submits a write request, blocking until a receipt is
// available or timeout elapses.
type Sender interface {
	Send(ctx context.Context, req web3.TransactionRequest, timeout time.Duration) (*types.Receipt, error)
}

// CallOpts tunes a read call.
type CallOpts struct {
	From common.Address
	// BlockNumber selects historical state; nil means latest.
	BlockNumber *big.Int
}

// PendingCall is an encoded method invocation that has not touched the
// network yet. Reads are executed with Call, writes with Send.
type PendingCall struct {
	to     common.Address
	entry  Entry
	method abi.Method
	args   []any
	data   []byte
}

// Method returns the method name.
func (p *PendingCall) Method() string {
	return p.entry.Name
}

// Signature returns the canonical method signature.
func (p *PendingCall) Signature() string {
	return p.method.Sig
}

// IsRead reports whether the method is view or pure.
func (p *PendingCall) IsRead() bool {
	return p.entry.Mutability().IsRead()
}

// IsPayable reports whether the method accepts native value.
func (p *PendingCall) IsPayable() bool {
	return p.entry.Mutability() == MutabilityPayable
}

// Data returns a copy of the ABI encoded call data.
func (p *PendingCall) Data() []byte {
	return common.CopyBytes(p.data)
}

// Args returns the coerced arguments.
func (p *PendingCall) Args() []any {
	out := make([]any, len(p.args))
	copy(out, p.args)
	return out
}

// Call executes the method with eth_call and decodes its outputs. It never
// mutates chain state, so write methods may also be simulated this way.
func (p *PendingCall) Call(ctx context.Context, caller bind.ContractCaller, opts *CallOpts) ([]any, error) {
	if caller == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未提供链访问后端")
	}
	if opts == nil {
		opts = &CallOpts{}
	}

	to := p.to
	msg := gethcore.CallMsg{From: opts.From, To: &to, Data: p.Data()}
	out, err := caller.CallContract(ctx, msg, opts.BlockNumber)
	if err != nil {
		return nil, withMethod(web3.ClassifyError(err), p.entry.Name)
	}
	if len(out) == 0 && len(p.method.Outputs) > 0 {
		code, codeErr := caller.CodeAt(ctx, p.to, opts.BlockNumber)
		if codeErr == nil && len(code) == 0 {
			return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("地址 %s 上没有合约代码", p.to.Hex()),
				xerrors.WithMetadata(xerrors.MetaMethod, p.entry.Name))
		}
	}

	values, err := p.method.Outputs.Unpack(out)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSubmission, err, fmt.Sprintf("解码 %s 返回值失败", p.entry.Name),
			xerrors.WithMetadata(xerrors.MetaMethod, p.entry.Name))
	}
	return values, nil
}

// Request builds the unsigned transaction for a write call without any I/O.
// Reads and value sent to a non-payable method are constraint violations.
func (p *PendingCall) Request(params web3.TxParams) (web3.TransactionRequest, error) {
	if p.IsRead() {
		return web3.TransactionRequest{}, p.violation(fmt.Sprintf("%s 是只读函数，请使用 Call", p.entry.Name))
	}

	value := new(big.Int)
	if params.Value != nil {
		if params.Value.Sign() < 0 {
			return web3.TransactionRequest{}, p.violation("转账金额不能为负数")
		}
		value.Set(params.Value)
	}
	if value.Sign() > 0 && !p.IsPayable() {
		return web3.TransactionRequest{}, p.violation(fmt.Sprintf("%s 不是 payable 函数，不能附带 %s wei", p.entry.Name, value))
	}

	var gasPrice *big.Int
	if params.GasPrice != nil {
		gasPrice = new(big.Int).Set(params.GasPrice)
	}
	var nonce *uint64
	if params.Nonce != nil {
		n := *params.Nonce
		nonce = &n
	}
	deadline := params.Deadline
	if deadline == 0 {
		deadline = p.deadlineArgument()
	}

	to := p.to
	return web3.TransactionRequest{
		From:     params.From,
		To:       &to,
		Value:    value,
		Gas:      params.Gas,
		GasPrice: gasPrice,
		Nonce:    nonce,
		Data:     p.Data(),
		Deadline: deadline,
	}, nil
}

// Send builds the request, then signs and submits it through sender. All
// local checks run before sender is touched.
func (p *PendingCall) Send(ctx context.Context, sender Sender, params web3.TxParams) (*types.Receipt, error) {
	req, err := p.Request(params)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未提供交易发送器")
	}
	receipt, err := sender.Send(ctx, req, params.Timeout)
	if err != nil {
		return receipt, withMethod(err, p.entry.Name)
	}
	return receipt, nil
}

// deadlineArgument picks up a uint "deadline" input so time-boxed calls are
// checked locally even when the caller does not repeat it in TxParams.
func (p *PendingCall) deadlineArgument() int64 {
	for i, in := range p.method.Inputs {
		if in.Name != "deadline" || in.Type.T != abi.UintTy {
			continue
		}
		switch v := p.args[i].(type) {
		case *big.Int:
			if v.IsInt64() {
				return v.Int64()
			}
		case uint64:
			if v <= 1<<63-1 {
				return int64(v)
			}
		case uint32:
			return int64(v)
		}
	}
	return 0
}

func (p *PendingCall) violation(msg string) error {
	return xerrors.New(xerrors.CodeConstraintViolation, msg, xerrors.WithMetadata(xerrors.MetaMethod, p.entry.Name))
}

func withMethod(err error, name string) error {
	if e, ok := xerrors.From(err); ok && e.Meta(xerrors.MetaMethod) != "" {
		return err
	}
	return xerrors.Annotate(err, xerrors.MetaMethod, name)
}
