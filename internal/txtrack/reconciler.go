package txtrack

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/storage/mysql"
	"InkaSwap-Provider/internal/submit"
	"InkaSwap-Provider/internal/web3"
	"InkaSwap-Provider/pkg/logger"
)

const (
	defaultInterval    = 15 * time.Second
	defaultMaxAttempts = 40
)

// Networks resolves a network name to its client; *provider.Registry
// satisfies it.
type Networks interface {
	Client(name string) (web3.Client, error)
}

// Reconciler re-queries receipts of queued transactions and records their
// final status. Transactions still pending are queued again until
// maxAttempts is reached, after which they are marked abandoned.
type Reconciler struct {
	networks    Networks
	repo        mysql.TransactionRepository
	producer    Producer
	recorder    submit.Recorder
	interval    time.Duration
	maxAttempts int
	now         func() time.Time
	log         *slog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithInterval sets the delay before a still-pending hash is checked again.
func WithInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMaxAttempts bounds how many times a hash is checked.
func WithMaxAttempts(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithRecorder reports final outcomes.
func WithRecorder(rec submit.Recorder) ReconcilerOption {
	return func(r *Reconciler) { r.recorder = rec }
}

// NewReconciler builds a reconciler publishing retries to producer.
func NewReconciler(networks Networks, repo mysql.TransactionRepository, producer Producer, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		networks:    networks,
		repo:        repo,
		producer:    producer,
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
		log:         logger.Named("txtrack"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run consumes queued hashes until ctx is done.
func (r *Reconciler) Run(ctx context.Context, consumer Consumer, workers int) error {
	return consumer.Consume(ctx, workers, r.Handle)
}

// Handle checks one queued transaction. A returned error asks the queue to
// redeliver the message.
func (r *Reconciler) Handle(ctx context.Context, pending Pending) error {
	if wait := pending.Due(r.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	client, err := r.networks.Client(pending.Network)
	if err != nil {
		r.log.Error("待确认交易的网络不可用", "network", pending.Network, "tx_hash", pending.Hash, "error", err)
		return r.save(ctx, pending, mysql.StatusAbandoned, nil)
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(pending.Hash))
	switch {
	case web3.ReceiptPending(err):
		return r.retry(ctx, pending)
	case err != nil:
		classified := web3.ClassifyError(err)
		r.log.Warn("重查交易回执失败", "network", pending.Network, "tx_hash", pending.Hash, "error", classified)
		return classified
	}

	pending.Attempts++
	status := mysql.StatusConfirmed
	outcome := submit.OutcomeConfirmed
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = mysql.StatusReverted
		outcome = submit.OutcomeReverted
	}
	r.log.Info("交易最终状态已确认", "network", pending.Network, "tx_hash", pending.Hash, "status", status, "block", receipt.BlockNumber)
	if err := r.save(ctx, pending, status, receipt); err != nil {
		return err
	}
	r.observe(ctx, pending, outcome)
	return nil
}

func (r *Reconciler) retry(ctx context.Context, pending Pending) error {
	pending.Attempts++
	if pending.Attempts >= r.maxAttempts {
		r.log.Warn("交易多次重查仍未确认，停止跟踪", "network", pending.Network, "tx_hash", pending.Hash, "attempts", pending.Attempts)
		return r.save(ctx, pending, mysql.StatusAbandoned, nil)
	}
	if err := r.save(ctx, pending, mysql.StatusPending, nil); err != nil {
		return err
	}
	pending.NotBefore = r.now().Add(r.interval).UnixMilli()
	if err := r.producer.Publish(ctx, pending); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "重新投递待确认交易失败")
	}
	return nil
}

func (r *Reconciler) save(ctx context.Context, pending Pending, status string, receipt *types.Receipt) error {
	if r.repo == nil {
		return nil
	}
	record := mysql.TransactionRecord{Hash: pending.Hash, Network: pending.Network}
	if existing, err := r.repo.GetTransaction(ctx, pending.Hash); err == nil {
		record = *existing
	} else if !errors.Is(err, xerrors.ErrNotFound) {
		return err
	}
	record.Status = status
	record.Attempts = pending.Attempts
	record.UpdatedAt = r.now().Unix()
	if receipt != nil && receipt.BlockNumber != nil {
		record.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return r.repo.SaveTransaction(ctx, record)
}

func (r *Reconciler) observe(ctx context.Context, pending Pending, outcome string) {
	if r.recorder == nil {
		return
	}
	var elapsed time.Duration
	if r.repo != nil {
		if record, err := r.repo.GetTransaction(ctx, pending.Hash); err == nil && record.CreatedAt > 0 {
			elapsed = r.now().Sub(time.Unix(record.CreatedAt, 0))
		}
	}
	r.recorder.ObserveSubmission(pending.Network, outcome, elapsed)
}
