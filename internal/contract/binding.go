package contract

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "InkaSwap-Provider/internal/errors"
)

// Binding pairs a validated ABI with the address of a deployed instance.
// It is immutable once constructed and safe for concurrent use.
type Binding struct {
	def     *Definition
	address common.Address
	methods map[string][]method
}

type method struct {
	entry Entry
	abi   abi.Method
}

// Bind validates the ABI entries and the address and returns a binding
// exposing one method per function entry.
func Bind(entries []Entry, address string) (*Binding, error) {
	def, err := Parse(entries)
	if err != nil {
		return nil, err
	}
	return BindDefinition(def, address)
}

// BindJSON is Bind for a JSON ABI document.
func BindJSON(abiJSON []byte, address string) (*Binding, error) {
	def, err := ParseJSON(abiJSON)
	if err != nil {
		return nil, err
	}
	return BindDefinition(def, address)
}

// BindDefinition binds an already validated definition to an address.
func BindDefinition(def *Definition, address string) (*Binding, error) {
	if def == nil {
		return nil, xerrors.New(xerrors.CodeInvalidABI, "ABI 不能为空")
	}
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	bySig := make(map[string]abi.Method, len(def.parsed.Methods))
	for _, m := range def.parsed.Methods {
		bySig[m.Sig] = m
	}

	methods := make(map[string][]method)
	for _, e := range def.entries {
		if e.Type != EntryFunction {
			continue
		}
		sig, err := e.Signature()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidABI, err, "计算函数签名失败")
		}
		m, ok := bySig[sig]
		if !ok {
			return nil, xerrors.Newf(xerrors.CodeInvalidABI, "函数 %s 未出现在解析结果中", sig)
		}
		methods[e.Name] = append(methods[e.Name], method{entry: e, abi: m})
	}

	return &Binding{def: def, address: addr, methods: methods}, nil
}

// Address returns the bound contract address.
func (b *Binding) Address() common.Address {
	return b.address
}

// Definition returns the validated ABI backing the binding.
func (b *Binding) Definition() *Definition {
	return b.def
}

// Functions returns the sorted names of the exposed methods.
func (b *Binding) Functions() []string {
	names := make([]string, 0, len(b.methods))
	for name := range b.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Method returns the ABI entries declared under name, one per overload.
func (b *Binding) Method(name string) ([]Entry, bool) {
	overloads, ok := b.methods[name]
	if !ok {
		return nil, false
	}
	out := make([]Entry, len(overloads))
	for i, m := range overloads {
		out[i] = m.entry
	}
	return out, true
}

// Invoke validates and encodes a call to the named method. Overloads are
// resolved by argument count and then by the first successful coercion.
// No network access happens here.
func (b *Binding) Invoke(name string, args ...any) (*PendingCall, error) {
	overloads, ok := b.methods[name]
	if !ok {
		return nil, xerrors.New(xerrors.CodeUnknownMethod, fmt.Sprintf("ABI 中没有函数 %s", name),
			xerrors.WithMetadata(xerrors.MetaMethod, name))
	}

	var firstErr error
	for _, m := range overloads {
		if len(m.abi.Inputs) != len(args) && len(overloads) > 1 {
			continue
		}
		values, err := coerceArguments(name, m.abi.Inputs, args)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		packed, err := m.abi.Inputs.Pack(values...)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeArgumentType, err, fmt.Sprintf("%s 参数编码失败", name),
				xerrors.WithMetadata(xerrors.MetaMethod, name))
		}
		data := make([]byte, 0, len(m.abi.ID)+len(packed))
		data = append(data, m.abi.ID...)
		data = append(data, packed...)
		return &PendingCall{
			to:     b.address,
			entry:  m.entry,
			method: m.abi,
			args:   values,
			data:   data,
		}, nil
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, xerrors.New(xerrors.CodeArgumentType,
		fmt.Sprintf("%s 没有接受 %d 个参数的重载", name, len(args)),
		xerrors.WithMetadata(xerrors.MetaMethod, name))
}

// Event is a decoded log emitted by the bound contract.
type Event struct {
	Name        string
	Signature   string
	Fields      map[string]any
	TxHash      common.Hash
	BlockNumber uint64
	Index       uint
}

// DecodeLogs decodes the logs a receipt carries for the bound address.
// Logs from other addresses, anonymous events and unknown topics are
// skipped.
func (b *Binding) DecodeLogs(receipt *types.Receipt) ([]Event, error) {
	if receipt == nil {
		return nil, nil
	}
	var events []Event
	for _, log := range receipt.Logs {
		if log == nil || log.Address != b.address {
			continue
		}
		ev, ok, err := b.DecodeLog(*log)
		if err != nil {
			return nil, err
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// DecodeLog decodes a single log. The boolean is false when the log's first
// topic matches no event of the ABI.
func (b *Binding) DecodeLog(log types.Log) (Event, bool, error) {
	if len(log.Topics) == 0 {
		return Event{}, false, nil
	}
	abiEvent, err := b.def.parsed.EventByID(log.Topics[0])
	if err != nil {
		return Event{}, false, nil
	}

	fields := make(map[string]any)
	if len(log.Data) > 0 {
		if err := abiEvent.Inputs.UnpackIntoMap(fields, log.Data); err != nil {
			return Event{}, false, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("解码事件 %s 失败", abiEvent.Name))
		}
	}
	var indexed abi.Arguments
	for _, in := range abiEvent.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
			return Event{}, false, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("解码事件 %s 的索引字段失败", abiEvent.Name))
		}
	}

	return Event{
		Name:        abiEvent.RawName,
		Signature:   abiEvent.Sig,
		Fields:      fields,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		Index:       log.Index,
	}, true, nil
}
