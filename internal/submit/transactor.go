package submit

import (
	"context"
	"fmt"
	"math/big"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/web3"
)

// Transactor completes, signs and submits write requests for one signer.
// It satisfies contract.Sender.
type Transactor struct {
	submitter *Submitter
	signer    web3.Signer
	chainID   *big.Int
	now       func() time.Time
}

// TransactorOption configures a Transactor.
type TransactorOption func(*Transactor)

// WithChainID pins the chain ID instead of asking the endpoint.
func WithChainID(id *big.Int) TransactorOption {
	return func(t *Transactor) {
		if id != nil {
			t.chainID = new(big.Int).Set(id)
		}
	}
}

// WithClock overrides the clock used for deadline checks.
func WithClock(now func() time.Time) TransactorOption {
	return func(t *Transactor) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTransactor binds a signer to a submitter.
func NewTransactor(submitter *Submitter, signer web3.Signer, opts ...TransactorOption) *Transactor {
	t := &Transactor{submitter: submitter, signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Signer returns the signing account.
func (t *Transactor) Signer() web3.Signer {
	return t.signer
}

// Send checks req locally, fills the nonce, gas price and gas limit the
// caller left open, then signs and submits it. Local violations are
// reported before the endpoint is contacted.
func (t *Transactor) Send(ctx context.Context, req web3.TransactionRequest, timeout time.Duration) (*types.Receipt, error) {
	tx, err := t.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return t.submitter.Submit(ctx, tx, WaitOptions{Timeout: timeout})
}

// Prepare returns the signed transaction Send would broadcast.
func (t *Transactor) Prepare(ctx context.Context, req web3.TransactionRequest) (*types.Transaction, error) {
	if t.signer == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置签名钱包")
	}
	if req.Expired(t.now()) {
		return nil, xerrors.New(xerrors.CodeConstraintViolation,
			fmt.Sprintf("deadline %d 已过期", req.Deadline))
	}
	from := t.signer.Address()
	if req.From == (common.Address{}) {
		req.From = from
	}
	if req.From != from {
		return nil, xerrors.New(xerrors.CodeConstraintViolation,
			fmt.Sprintf("交易发送方 %s 与钱包地址 %s 不一致", req.From.Hex(), from.Hex()))
	}

	backend := t.submitter.Backend()
	if req.Nonce == nil {
		nonce, err := backend.PendingNonceAt(ctx, from)
		if err != nil {
			return nil, web3.ClassifyError(err)
		}
		req.Nonce = &nonce
	}
	if req.GasPrice == nil {
		price, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, web3.ClassifyError(err)
		}
		req.GasPrice = price
	}
	if req.Gas == 0 {
		gas, err := backend.EstimateGas(ctx, gethcore.CallMsg{
			From:     from,
			To:       req.To,
			GasPrice: req.GasPrice,
			Value:    req.Value,
			Data:     req.Data,
		})
		if err != nil {
			return nil, web3.ClassifyError(err)
		}
		req.Gas = gas
	}

	chainID := t.chainID
	if chainID == nil {
		id, err := backend.ChainID(ctx)
		if err != nil {
			return nil, web3.ClassifyError(err)
		}
		chainID = id
	}
	return t.signer.Sign(req, chainID)
}
