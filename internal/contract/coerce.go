package contract

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "InkaSwap-Provider/internal/errors"
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// coerceArguments validates positional arguments against the declared
// inputs and converts them to the Go types the go-ethereum encoder expects.
// Any mismatch yields an ARGUMENT_TYPE error.
func coerceArguments(method string, inputs abi.Arguments, args []any) ([]any, error) {
	if len(args) != len(inputs) {
		return nil, xerrors.New(xerrors.CodeArgumentType,
			fmt.Sprintf("%s 需要 %d 个参数，实际为 %d", method, len(inputs), len(args)),
			xerrors.WithMetadata(xerrors.MetaMethod, method))
	}
	out := make([]any, len(args))
	for i, in := range inputs {
		value, err := coerceValue(in.Type, args[i])
		if err != nil {
			name := in.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, xerrors.Wrap(xerrors.CodeArgumentType, err,
				fmt.Sprintf("%s 的参数 %s 应为 %s", method, name, in.Type.String()),
				xerrors.WithMetadata(xerrors.MetaMethod, method),
				xerrors.WithMetadata(xerrors.MetaArgument, name))
		}
		out[i] = value.Interface()
	}
	return out, nil
}

func coerceValue(t abi.Type, v any) (reflect.Value, error) {
	if v == nil {
		return reflect.Value{}, fmt.Errorf("值不能为空")
	}
	switch t.T {
	case abi.IntTy, abi.UintTy:
		return coerceInteger(t, v)
	case abi.BoolTy:
		return coerceBool(v)
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return reflect.Value{}, fmt.Errorf("期望字符串，实际为 %T", v)
		}
		return reflect.ValueOf(s), nil
	case abi.AddressTy:
		addr, err := toAddress(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(addr), nil
	case abi.BytesTy:
		b, err := toBytes(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	case abi.FixedBytesTy, abi.FunctionTy:
		return coerceFixedBytes(t, v)
	case abi.SliceTy, abi.ArrayTy:
		return coerceList(t, v)
	case abi.TupleTy:
		return coerceTuple(t, v)
	default:
		return reflect.Value{}, fmt.Errorf("不支持的参数类型 %s", t.String())
	}
}

func coerceInteger(t abi.Type, v any) (reflect.Value, error) {
	n, err := toBigInt(v)
	if err != nil {
		return reflect.Value{}, err
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return reflect.Value{}, fmt.Errorf("%s 不能为负数", t.String())
		}
		if n.BitLen() > t.Size {
			return reflect.Value{}, fmt.Errorf("%s 超出 %s 范围", n, t.String())
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		minValue := new(big.Int).Neg(limit)
		if n.Cmp(minValue) < 0 || n.Cmp(limit) >= 0 {
			return reflect.Value{}, fmt.Errorf("%s 超出 %s 范围", n, t.String())
		}
	}

	target := t.GetType()
	if target == bigIntType {
		return reflect.ValueOf(n), nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(target), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(target), nil
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, fmt.Errorf("值不能为空")
		}
		return new(big.Int).Set(x), nil
	case big.Int:
		return new(big.Int).Set(&x), nil
	case *hexutil.Big:
		if x == nil {
			return nil, fmt.Errorf("值不能为空")
		}
		return new(big.Int).Set(x.ToInt()), nil
	case json.Number:
		return parseInteger(x.String())
	case string:
		return parseInteger(x)
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
			return nil, fmt.Errorf("%v 不是可精确表示的整数", x)
		}
		return big.NewInt(int64(x)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("期望整数，实际为 %T", v)
}

func parseInteger(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok || s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%q 不是整数", raw)
	}
	if neg {
		n.Neg(n)
	}
	return n, nil
}

func coerceBool(v any) (reflect.Value, error) {
	switch x := v.(type) {
	case bool:
		return reflect.ValueOf(x), nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%q 不是布尔值", x)
		}
		return reflect.ValueOf(b), nil
	}
	return reflect.Value{}, fmt.Errorf("期望布尔值，实际为 %T", v)
}

func toAddress(v any) (common.Address, error) {
	switch x := v.(type) {
	case common.Address:
		return x, nil
	case *common.Address:
		if x == nil {
			return common.Address{}, fmt.Errorf("地址不能为空")
		}
		return *x, nil
	case [common.AddressLength]byte:
		return common.Address(x), nil
	case string:
		return parseAddress(x)
	}
	return common.Address{}, fmt.Errorf("期望地址，实际为 %T", v)
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return common.CopyBytes(x), nil
	case string:
		b, err := hexutil.Decode(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("%q 不是 0x 开头的十六进制字节串", x)
		}
		return b, nil
	case hexutil.Bytes:
		return common.CopyBytes(x), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		out := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(out), rv)
		return out, nil
	}
	return nil, fmt.Errorf("期望字节串，实际为 %T", v)
}

func coerceFixedBytes(t abi.Type, v any) (reflect.Value, error) {
	b, err := toBytes(v)
	if err != nil {
		return reflect.Value{}, err
	}
	if len(b) > t.Size {
		return reflect.Value{}, fmt.Errorf("长度 %d 超过 %s", len(b), t.String())
	}
	target := reflect.New(t.GetType()).Elem()
	reflect.Copy(target, reflect.ValueOf(b))
	return target, nil
}

func coerceList(t abi.Type, v any) (reflect.Value, error) {
	if s, ok := v.(string); ok {
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return reflect.Value{}, fmt.Errorf("期望 JSON 数组: %w", err)
		}
		v = decoded
	}
	src := reflect.ValueOf(v)
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		return reflect.Value{}, fmt.Errorf("期望数组，实际为 %T", v)
	}
	if t.T == abi.ArrayTy && src.Len() != t.Size {
		return reflect.Value{}, fmt.Errorf("需要 %d 个元素，实际为 %d", t.Size, src.Len())
	}

	var target reflect.Value
	if t.T == abi.ArrayTy {
		target = reflect.New(t.GetType()).Elem()
	} else {
		target = reflect.MakeSlice(t.GetType(), src.Len(), src.Len())
	}
	for i := 0; i < src.Len(); i++ {
		elem, err := coerceValue(*t.Elem, src.Index(i).Interface())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("元素 %d: %w", i, err)
		}
		target.Index(i).Set(elem)
	}
	return target, nil
}

func coerceTuple(t abi.Type, v any) (reflect.Value, error) {
	if s, ok := v.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return reflect.Value{}, fmt.Errorf("期望 JSON 对象或数组: %w", err)
		}
		v = decoded
	}

	target := reflect.New(t.GetType()).Elem()
	switch src := v.(type) {
	case map[string]any:
		for i, name := range t.TupleRawNames {
			raw, ok := src[name]
			if !ok {
				return reflect.Value{}, fmt.Errorf("缺少字段 %s", name)
			}
			field, err := coerceValue(*t.TupleElems[i], raw)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("字段 %s: %w", name, err)
			}
			target.Field(i).Set(field)
		}
		return target, nil
	case []any:
		if len(src) != len(t.TupleElems) {
			return reflect.Value{}, fmt.Errorf("需要 %d 个字段，实际为 %d", len(t.TupleElems), len(src))
		}
		for i, raw := range src {
			field, err := coerceValue(*t.TupleElems[i], raw)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("字段 %d: %w", i, err)
			}
			target.Field(i).Set(field)
		}
		return target, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().ConvertibleTo(t.GetType()) {
		return rv.Convert(t.GetType()), nil
	}
	return reflect.Value{}, fmt.Errorf("期望结构体，实际为 %T", v)
}
