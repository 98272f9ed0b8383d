package web3

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "InkaSwap-Provider/internal/errors"
)

// revertErrorCode is the JSON-RPC error code nodes use for execution reverts.
const revertErrorCode = 3

const revertMarker = "execution reverted"

// indexingMarker is what geth answers for receipts of blocks its
// transaction indexer has not reached yet.
const indexingMarker = "transaction indexing is in progress"

// ReceiptPending reports whether a receipt lookup failed only because the
// receipt is not available yet. The transaction may still confirm.
func ReceiptPending(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gethcore.NotFound) {
		return true
	}
	return strings.Contains(err.Error(), indexingMarker)
}

// ClassifyError maps a failure returned by the remote endpoint onto the
// unified error codes. Errors that already carry a code pass through
// unchanged; anything unrecognised is reported as a submission failure.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return xerrors.Wrap(xerrors.CodeTimeout, err, "等待节点响应超时")
	case errors.Is(err, context.Canceled):
		return xerrors.Wrap(xerrors.CodeTimeout, err, "请求已被取消")
	}

	if reason, ok := RevertReason(err); ok {
		opts := []xerrors.Option{}
		if reason != "" {
			opts = append(opts, xerrors.WithMetadata(xerrors.MetaRevertReason, reason))
		}
		return xerrors.Wrap(xerrors.CodeReverted, err, "合约执行回滚", opts...)
	}

	if isTransportError(err) {
		return xerrors.Wrap(xerrors.CodeNetwork, err, "无法连接节点")
	}

	return xerrors.Wrap(xerrors.CodeSubmission, err, "节点拒绝了请求")
}

// RevertReason reports whether err is an execution revert and, when the
// endpoint supplied it, the decoded reason string.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := err.Error()
	reverted := strings.Contains(msg, revertMarker)

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		reverted = true
	}
	if !reverted {
		return "", false
	}

	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		if reason := DecodeRevertData(dataErr.ErrorData()); reason != "" {
			return reason, true
		}
	}
	if idx := strings.Index(msg, revertMarker+": "); idx >= 0 {
		return strings.TrimSpace(msg[idx+len(revertMarker)+2:]), true
	}
	return "", true
}

// DecodeRevertData decodes the data payload attached to a revert. Standard
// Error(string) payloads yield the message; custom errors yield their hex
// encoding.
func DecodeRevertData(data any) string {
	var raw []byte
	switch d := data.(type) {
	case string:
		decoded, err := hexutil.Decode(d)
		if err != nil {
			return ""
		}
		raw = decoded
	case []byte:
		raw = d
	case hexutil.Bytes:
		raw = d
	}
	if len(raw) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(raw); err == nil {
		return reason
	}
	return hexutil.Encode(raw)
}

func isTransportError(err error) bool {
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
