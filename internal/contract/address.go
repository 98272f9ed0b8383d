package contract

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "InkaSwap-Provider/internal/errors"
)

// ParseAddress validates a 0x-prefixed textual 20-byte address. Mixed-case input must
// carry a valid EIP-55 checksum; all-lower or all-upper input is accepted
// as is.
func ParseAddress(raw string) (common.Address, error) {
	addr, err := parseAddress(raw)
	if err != nil {
		return common.Address{}, xerrors.Wrap(xerrors.CodeInvalidAddress, err, "地址格式无效")
	}
	return addr, nil
}

func parseAddress(raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, fmt.Errorf("%q 缺少 0x 前缀", raw)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q 不是 20 字节的十六进制地址", raw)
	}
	addr := common.HexToAddress(s)
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if isMixedCase(body) && body != addr.Hex()[2:] {
		return common.Address{}, fmt.Errorf("%q 的 EIP-55 校验和错误", raw)
	}
	return addr, nil
}

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}
