// Package submit broadcasts signed transactions and waits for their
// receipts. It is the single place where endpoint failures are mapped onto
// the NETWORK, SUBMISSION, REVERTED and TIMEOUT codes. Nothing is retried.
package submit

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/web3"
	"InkaSwap-Provider/pkg/logger"
)

// Outcomes reported to the Recorder.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeReverted  = "reverted"
	OutcomeTimeout   = "timeout"
	OutcomeRejected  = "rejected"
	OutcomeNetwork   = "network_error"
)

const (
	defaultPollInterval = time.Second
	defaultTimeout      = 2 * time.Minute
	trackTimeout        = 5 * time.Second
)

// Tracker receives hashes of transactions whose receipt did not arrive in
// time so they can be re-queried later.
type Tracker interface {
	Track(ctx context.Context, network string, hash common.Hash) error
}

// Recorder observes submission outcomes.
type Recorder interface {
	ObserveSubmission(network, outcome string, elapsed time.Duration)
}

// WaitOptions bounds the wait for a receipt.
type WaitOptions struct {
	// Timeout overrides the submitter default when positive.
	Timeout time.Duration
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithPollInterval sets how often the receipt is polled.
func WithPollInterval(d time.Duration) Option {
	return func(s *Submitter) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithDefaultTimeout sets the receipt timeout used when WaitOptions has none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Submitter) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTracker publishes timed out transactions to t.
func WithTracker(t Tracker) Option {
	return func(s *Submitter) { s.tracker = t }
}

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Submitter) { s.recorder = r }
}

// WithNetwork labels logs, metrics and tracked hashes.
func WithNetwork(name string) Option {
	return func(s *Submitter) { s.network = name }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.log = l
		}
	}
}

// Submitter sends signed transactions through a backend.
type Submitter struct {
	backend  web3.Backend
	poll     time.Duration
	timeout  time.Duration
	tracker  Tracker
	recorder Recorder
	network  string
	log      *slog.Logger
}

// committer is implemented by the simulated backend, which only mines on
// demand.
type committer interface {
	Commit() common.Hash
}

// New creates a submitter for backend.
func New(backend web3.Backend, opts ...Option) *Submitter {
	s := &Submitter{
		backend: backend,
		poll:    defaultPollInterval,
		timeout: defaultTimeout,
		log:     logger.Named("submit"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Backend returns the endpoint the submitter talks to.
func (s *Submitter) Backend() web3.Backend {
	return s.backend
}

// Network returns the network label.
func (s *Submitter) Network() string {
	return s.network
}

// Submit broadcasts tx and blocks until its receipt is available.
func (s *Submitter) Submit(ctx context.Context, tx *types.Transaction, opts WaitOptions) (*types.Receipt, error) {
	if tx == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "交易不能为空")
	}
	started := time.Now()

	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		classified := withHash(web3.ClassifyError(err), tx.Hash())
		s.observe(outcomeOf(classified), started)
		s.log.Warn("发送交易失败", "network", s.network, "tx_hash", tx.Hash().Hex(), "error", classified)
		return nil, classified
	}
	logger.Audit().Info("transaction submitted",
		"network", s.network,
		"tx_hash", tx.Hash().Hex(),
		"nonce", tx.Nonce(),
		"to", addressOrCreate(tx.To()),
		"value", tx.Value().String(),
	)

	if c, ok := s.backend.(committer); ok {
		c.Commit()
	}
	return s.wait(ctx, tx, opts, started)
}

// Wait polls for the receipt of an already broadcast transaction.
func (s *Submitter) Wait(ctx context.Context, tx *types.Transaction, opts WaitOptions) (*types.Receipt, error) {
	if tx == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "交易不能为空")
	}
	return s.wait(ctx, tx, opts, time.Now())
}

func (s *Submitter) wait(ctx context.Context, tx *types.Transaction, opts WaitOptions, started time.Time) (*types.Receipt, error) {
	timeout := s.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hash := tx.Hash()
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil && receipt != nil:
			return s.finish(ctx, tx, receipt, started)
		case err != nil && !web3.ReceiptPending(err) && !expired(waitCtx):
			// The transaction is already broadcast: only a lookup the node
			// rejects outright ends the wait early.
			classified := withHash(web3.ClassifyError(err), hash)
			if code := xerrors.CodeOf(classified); code != xerrors.CodeNetwork && code != xerrors.CodeTimeout {
				s.observe(outcomeOf(classified), started)
				return nil, classified
			}
			s.log.Debug("查询交易回执失败，继续等待", "network", s.network, "tx_hash", hash.Hex(), "error", err)
		}
		if expired(waitCtx) {
			return nil, s.timedOut(ctx, hash, timeout, started)
		}

		select {
		case <-waitCtx.Done():
			return nil, s.timedOut(ctx, hash, timeout, started)
		case <-ticker.C:
		}
	}
}

// expired reports whether ctx is done or its deadline has passed. Transport
// errors raised at the deadline can arrive before ctx.Err is set.
func expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}

func (s *Submitter) finish(ctx context.Context, tx *types.Transaction, receipt *types.Receipt, started time.Time) (*types.Receipt, error) {
	hash := tx.Hash()
	if receipt.Status == types.ReceiptStatusSuccessful {
		s.observe(OutcomeConfirmed, started)
		s.log.Info("交易已确认", "network", s.network, "tx_hash", hash.Hex(), "block", receipt.BlockNumber, "gas_used", receipt.GasUsed)
		return receipt, nil
	}

	opts := []xerrors.Option{xerrors.WithMetadata(xerrors.MetaTxHash, hash.Hex())}
	if reason := s.replay(ctx, tx, receipt); reason != "" {
		opts = append(opts, xerrors.WithMetadata(xerrors.MetaRevertReason, reason))
	}
	s.observe(OutcomeReverted, started)
	s.log.Warn("交易执行回滚", "network", s.network, "tx_hash", hash.Hex(), "block", receipt.BlockNumber)
	return receipt, xerrors.New(xerrors.CodeReverted, fmt.Sprintf("交易 %s 执行回滚", hash.Hex()), opts...)
}

// replay re-executes a failed transaction against the state it ran on to
// recover the revert reason. An empty result means the node did not
// provide one.
func (s *Submitter) replay(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) string {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return ""
	}
	msg := gethcore.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	var block *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		block = new(big.Int).Sub(receipt.BlockNumber, common.Big1)
	}
	_, err = s.backend.CallContract(ctx, msg, block)
	reason, _ := web3.RevertReason(err)
	return reason
}

func (s *Submitter) timedOut(ctx context.Context, hash common.Hash, timeout time.Duration, started time.Time) error {
	s.observe(OutcomeTimeout, started)
	s.log.Warn("等待交易回执超时", "network", s.network, "tx_hash", hash.Hex(), "timeout", timeout)

	if s.tracker != nil {
		trackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackTimeout)
		defer cancel()
		if err := s.tracker.Track(trackCtx, s.network, hash); err != nil {
			s.log.Error("登记待确认交易失败", "tx_hash", hash.Hex(), "error", err)
		}
	}
	return xerrors.New(xerrors.CodeTimeout,
		fmt.Sprintf("交易 %s 在 %s 内未确认，请稍后按哈希查询", hash.Hex(), timeout),
		xerrors.WithMetadata(xerrors.MetaTxHash, hash.Hex()))
}

func (s *Submitter) observe(outcome string, started time.Time) {
	if s.recorder != nil {
		s.recorder.ObserveSubmission(s.network, outcome, time.Since(started))
	}
}

func outcomeOf(err error) string {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeNetwork:
		return OutcomeNetwork
	case xerrors.CodeReverted:
		return OutcomeReverted
	case xerrors.CodeTimeout:
		return OutcomeTimeout
	default:
		return OutcomeRejected
	}
}

func withHash(err error, hash common.Hash) error {
	return xerrors.Annotate(err, xerrors.MetaTxHash, hash.Hex())
}

func addressOrCreate(to *common.Address) string {
	if to == nil {
		return "create"
	}
	return to.Hex()
}
