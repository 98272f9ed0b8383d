package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	xerrors "InkaSwap-Provider/internal/errors"
)

// Entry types of a JSON ABI document.
const (
	EntryConstructor = "constructor"
	EntryFunction    = "function"
	EntryEvent       = "event"
	EntryReceive     = "receive"
	EntryFallback    = "fallback"
	EntryError       = "error"
)

// Mutability is the state mutability class of a function entry.
type Mutability string

const (
	MutabilityPure       Mutability = "pure"
	MutabilityView       Mutability = "view"
	MutabilityNonPayable Mutability = "nonpayable"
	MutabilityPayable    Mutability = "payable"
)

// IsRead reports whether calls with this mutability never modify state.
func (m Mutability) IsRead() bool {
	return m == MutabilityPure || m == MutabilityView
}

// Param is one typed input or output of an ABI entry.
type Param struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	InternalType string  `json:"internalType,omitempty"`
	Indexed      bool    `json:"indexed,omitempty"`
	Components   []Param `json:"components,omitempty"`
}

// Entry is one element of a JSON ABI document. Payable and Constant are the
// legacy pre-0.5 flags; when both they and StateMutability are present they
// must agree.
type Entry struct {
	Type            string     `json:"type"`
	Name            string     `json:"name,omitempty"`
	Inputs          []Param    `json:"inputs"`
	Outputs         []Param    `json:"outputs,omitempty"`
	StateMutability Mutability `json:"stateMutability,omitempty"`
	Payable         *bool      `json:"payable,omitempty"`
	Constant        *bool      `json:"constant,omitempty"`
	Anonymous       bool       `json:"anonymous,omitempty"`
}

// Mutability resolves the effective mutability of the entry.
func (e Entry) Mutability() Mutability {
	if e.StateMutability != "" {
		return e.StateMutability
	}
	switch {
	case e.Constant != nil && *e.Constant:
		return MutabilityView
	case e.Payable != nil && *e.Payable:
		return MutabilityPayable
	case e.Type == EntryReceive:
		return MutabilityPayable
	default:
		return MutabilityNonPayable
	}
}

// Signature returns the canonical "name(type,...)" form used for selectors
// and for the uniqueness check.
func (e Entry) Signature() (string, error) {
	types := make([]string, len(e.Inputs))
	for i, in := range e.Inputs {
		t, err := newType(in)
		if err != nil {
			return "", err
		}
		types[i] = t.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(types, ",")), nil
}

// Definition is a validated ABI: the ordered entries as supplied plus the
// go-ethereum representation used for encoding.
type Definition struct {
	entries []Entry
	parsed  abi.ABI
}

// ParseJSON decodes and validates a JSON ABI document.
func ParseJSON(data []byte) (*Definition, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidABI, err, "ABI 不是合法的 JSON 数组")
	}
	return Parse(entries)
}

// Parse validates entries and builds the encoder. It fails with an
// INVALID_ABI error when an entry is malformed or two entries collide on
// signature.
func Parse(entries []Entry) (*Definition, error) {
	if err := validate(entries); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(entries)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidABI, err, "序列化 ABI 失败")
	}
	parsed, err := abi.JSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidABI, err, "解析 ABI 失败")
	}

	cloned := make([]Entry, len(entries))
	copy(cloned, entries)
	return &Definition{entries: cloned, parsed: parsed}, nil
}

// Entries returns a copy of the ABI entries in document order.
func (d *Definition) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// ABI returns the go-ethereum representation of the definition.
func (d *Definition) ABI() abi.ABI {
	return d.parsed
}

// Constructor returns the constructor entry, if the ABI declares one.
func (d *Definition) Constructor() (Entry, bool) {
	for _, e := range d.entries {
		if e.Type == EntryConstructor {
			return e, true
		}
	}
	return Entry{}, false
}

// FunctionNames returns the sorted, de-duplicated names of function entries.
func (d *Definition) FunctionNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, e := range d.entries {
		if e.Type != EntryFunction {
			continue
		}
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

// PackConstructor coerces and encodes constructor arguments.
func (d *Definition) PackConstructor(args ...any) ([]byte, error) {
	values, err := d.CoerceConstructor(args...)
	if err != nil {
		return nil, err
	}
	packed, err := d.parsed.Pack("", values...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeArgumentType, err, "构造参数编码失败")
	}
	return packed, nil
}

// CoerceConstructor converts constructor arguments to the Go types expected
// by the encoder.
func (d *Definition) CoerceConstructor(args ...any) ([]any, error) {
	return coerceArguments("constructor", d.parsed.Constructor.Inputs, args)
}

func validate(entries []Entry) error {
	signatures := make(map[string]int)
	singletons := make(map[string]int)

	for i, e := range entries {
		if err := validateEntry(e); err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidABI, err, fmt.Sprintf("ABI 第 %d 项无效", i))
		}
		switch e.Type {
		case EntryFunction, EntryEvent, EntryError:
			sig, _ := e.Signature()
			key := e.Type + ":" + sig
			if prev, ok := signatures[key]; ok {
				return xerrors.Newf(xerrors.CodeInvalidABI, "ABI 第 %d 项与第 %d 项签名重复: %s", i, prev, sig)
			}
			signatures[key] = i
		case EntryConstructor, EntryReceive, EntryFallback:
			if prev, ok := singletons[e.Type]; ok {
				return xerrors.Newf(xerrors.CodeInvalidABI, "ABI 第 %d 项与第 %d 项重复声明 %s", i, prev, e.Type)
			}
			singletons[e.Type] = i
		}
	}
	return nil
}

func validateEntry(e Entry) error {
	switch e.Type {
	case EntryFunction, EntryEvent, EntryError:
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("%s 缺少 name", e.Type)
		}
	case EntryConstructor, EntryReceive, EntryFallback:
	case "":
		return fmt.Errorf("缺少 type 字段")
	default:
		return fmt.Errorf("未知的 type: %q", e.Type)
	}

	if e.Anonymous && e.Type != EntryEvent {
		return fmt.Errorf("anonymous 仅适用于 event")
	}
	if (e.Type == EntryReceive || e.Type == EntryFallback) && len(e.Inputs) > 0 {
		return fmt.Errorf("%s 不能声明参数", e.Type)
	}
	if e.Type != EntryFunction && len(e.Outputs) > 0 {
		return fmt.Errorf("%s 不能声明返回值", e.Type)
	}

	if err := validateMutability(e); err != nil {
		return err
	}

	for i, p := range e.Inputs {
		if _, err := newType(p); err != nil {
			return fmt.Errorf("参数 %d: %w", i, err)
		}
		if p.Indexed && e.Type != EntryEvent {
			return fmt.Errorf("参数 %d: indexed 仅适用于 event", i)
		}
	}
	for i, p := range e.Outputs {
		if _, err := newType(p); err != nil {
			return fmt.Errorf("返回值 %d: %w", i, err)
		}
	}
	return nil
}

func validateMutability(e Entry) error {
	switch e.StateMutability {
	case "", MutabilityPure, MutabilityView, MutabilityNonPayable, MutabilityPayable:
	default:
		return fmt.Errorf("未知的 stateMutability: %q", e.StateMutability)
	}
	if e.Type == EntryEvent || e.Type == EntryError {
		if e.StateMutability != "" || e.Payable != nil || e.Constant != nil {
			return fmt.Errorf("%s 不能声明 stateMutability", e.Type)
		}
		return nil
	}

	m := e.Mutability()
	if e.Payable != nil && *e.Payable != (m == MutabilityPayable) {
		return fmt.Errorf("payable=%t 与 stateMutability=%s 冲突", *e.Payable, m)
	}
	if e.Constant != nil && *e.Constant != m.IsRead() {
		return fmt.Errorf("constant=%t 与 stateMutability=%s 冲突", *e.Constant, m)
	}
	if e.Type == EntryReceive && m != MutabilityPayable {
		return fmt.Errorf("receive 必须为 payable")
	}
	if e.Type == EntryConstructor && m.IsRead() {
		return fmt.Errorf("constructor 不能为 %s", m)
	}
	return nil
}

func newType(p Param) (abi.Type, error) {
	if err := requireTypes(p); err != nil {
		return abi.Type{}, err
	}
	t, err := abi.NewType(p.Type, p.InternalType, toMarshaling(p.Components))
	if err != nil {
		return abi.Type{}, fmt.Errorf("参数 %q 类型 %q 无效: %w", p.Name, p.Type, err)
	}
	return t, nil
}

func requireTypes(p Param) error {
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("参数 %q 缺少 type 字段", p.Name)
	}
	for _, c := range p.Components {
		if err := requireTypes(c); err != nil {
			return err
		}
	}
	return nil
}

func toMarshaling(params []Param) []abi.ArgumentMarshaling {
	if len(params) == 0 {
		return nil
	}
	out := make([]abi.ArgumentMarshaling, len(params))
	for i, p := range params {
		out[i] = abi.ArgumentMarshaling{
			Name:         p.Name,
			Type:         p.Type,
			InternalType: p.InternalType,
			Components:   toMarshaling(p.Components),
			Indexed:      p.Indexed,
		}
	}
	return out
}
